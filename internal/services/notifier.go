package services

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"brewnet-server/internal/models"
	"brewnet-server/internal/store"

	"github.com/sirupsen/logrus"
)

var ErrStaleDeviceToken = errors.New("device token no longer registered")

const (
	previewLength = 100
	pushTimeout   = 10 * time.Second
)

type Push struct {
	DeviceToken string
	Title       string
	Body        string
	Data        map[string]string
}

type Pusher interface {
	Push(ctx context.Context, push Push) error
}

// Notifier sends best-effort new-message pushes. Failures are logged, never
// returned to the sender.
type Notifier struct {
	pusher   Pusher
	profiles store.ProfileStore
	log      logrus.FieldLogger
}

func NewNotifier(pusher Pusher, profiles store.ProfileStore, log logrus.FieldLogger) *Notifier {
	return &Notifier{pusher: pusher, profiles: profiles, log: log}
}

func (n *Notifier) NewMessage(ctx context.Context, msg *models.Message) {
	if n == nil || n.pusher == nil {
		return
	}
	log := n.log.WithFields(logrus.Fields{"chat_id": msg.ChatID, "receiver_id": msg.ReceiverID})

	people, err := n.profiles.GetMany(ctx, []string{msg.SenderID, msg.ReceiverID})
	if err != nil {
		log.WithError(err).Warn("Push skipped: failed to load profiles")
		return
	}

	var sender, receiver *models.Profile
	for i := range people {
		switch people[i].ID {
		case msg.SenderID:
			sender = &people[i]
		case msg.ReceiverID:
			receiver = &people[i]
		}
	}
	if receiver == nil || receiver.DeviceToken == "" {
		return
	}

	title := "New message"
	if sender != nil && sender.Username != "" {
		title = sender.Username
	}

	err = n.pusher.Push(ctx, Push{
		DeviceToken: receiver.DeviceToken,
		Title:       title,
		Body:        truncate(msg.Content, previewLength),
		Data: map[string]string{
			"type":     "message",
			"chatId":   msg.ChatID,
			"senderId": msg.SenderID,
		},
	})
	switch {
	case errors.Is(err, ErrStaleDeviceToken):
		if err := n.profiles.Patch(ctx, receiver.ID, map[string]interface{}{"device_token": ""}); err != nil {
			log.WithError(err).Warn("Failed to clear stale device token")
		}
	case err != nil:
		log.WithError(err).Warn("Push failed")
	}
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max-1]) + "…"
}
