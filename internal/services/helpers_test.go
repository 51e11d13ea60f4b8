package services

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"brewnet-server/internal/models"
	"brewnet-server/internal/realtime"
	"brewnet-server/internal/redis"
	"brewnet-server/internal/store/storetest"
	"brewnet-server/internal/utils"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, ev realtime.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) byType(eventType string) []realtime.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []realtime.Event
	for _, ev := range p.events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

type recordingPusher struct {
	mu     sync.Mutex
	pushes []Push
	err    error
	// release, when set, holds every Push until it is closed.
	release chan struct{}
}

func (p *recordingPusher) Push(ctx context.Context, push Push) error {
	p.mu.Lock()
	release := p.release
	p.mu.Unlock()
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushes = append(p.pushes, push)
	return p.err
}

func (p *recordingPusher) sent() []Push {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Push(nil), p.pushes...)
}

type fakeBlobs struct {
	uploads map[string][]byte
	deleted []string
}

func (f *fakeBlobs) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	if f.uploads == nil {
		f.uploads = map[string][]byte{}
	}
	f.uploads[key] = body
	return "https://cdn.test/" + key, nil
}

func (f *fakeBlobs) Delete(ctx context.Context, fileURL string) error {
	f.deleted = append(f.deleted, fileURL)
	return nil
}

func (f *fakeBlobs) PresignedURL(ctx context.Context, key string, expiration time.Duration) (string, error) {
	return "https://cdn.test/" + key + "?signed=1", nil
}

func (f *fakeBlobs) EnsureBucket(ctx context.Context) error { return nil }

type env struct {
	stores    *storetest.Stores
	kv        *redis.Memory
	tokens    *utils.TokenIssuer
	publisher *recordingPublisher
	pusher    *recordingPusher
	blobs     *fakeBlobs
	log       logrus.FieldLogger

	auth      *AuthService
	profiles  *ProfileService
	chats     *ChatService
	discovery *DiscoveryService
	swipes    *SwipeService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	logger, _ := test.NewNullLogger()
	e := &env{
		stores:    storetest.New(),
		kv:        redis.NewMemory(),
		tokens:    utils.NewTokenIssuer("test-secret-0123456789", time.Hour, 24*time.Hour),
		publisher: &recordingPublisher{},
		pusher:    &recordingPusher{},
		blobs:     &fakeBlobs{},
		log:       logger,
	}
	e.auth = NewAuthService(e.stores.Profiles, e.kv, e.tokens, nil,
		AuthConfig{OTPExpiry: 5 * time.Minute, PasswordResetTTL: time.Hour}, logger)
	e.profiles = NewProfileService(e.stores.Profiles, e.blobs, ImageConfig{
		MaxFileSize:  1024,
		AllowedTypes: []string{"image/jpeg", "image/png"},
	}, logger)
	notifier := NewNotifier(e.pusher, e.stores.Profiles, logger)
	e.chats = NewChatService(e.stores.Chats, e.stores.Messages, e.stores.Profiles, e.publisher, notifier, logger)
	e.discovery = NewDiscoveryService(e.stores.Profiles, e.stores.Swipes, 10, logger)
	e.swipes = NewSwipeService(e.stores.Swipes, e.stores.Profiles, e.chats, logger)
	return e
}

func (e *env) addProfile(t *testing.T, p models.Profile) *models.Profile {
	t.Helper()
	if p.Interests.Data() == nil {
		p.Interests = models.NewFlags(nil)
	}
	if p.Qualities.Data() == nil {
		p.Qualities = models.NewFlags(nil)
	}
	require.NoError(t, e.stores.Profiles.Create(context.Background(), &p))
	return &p
}

func ptr[T any](v T) *T { return &v }
