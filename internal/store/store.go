// Package store holds one typed client per collection: profiles, chats,
// messages and swipes.
package store

import (
	"context"
	"errors"
	"sort"
	"strings"

	"brewnet-server/internal/models"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("record already exists")
)

type ProfileStore interface {
	Create(ctx context.Context, p *models.Profile) error
	Get(ctx context.Context, id string) (*models.Profile, error)
	GetByEmail(ctx context.Context, email string) (*models.Profile, error)
	GetByPhone(ctx context.Context, phone string) (*models.Profile, error)
	GetByFirebaseUID(ctx context.Context, uid string) (*models.Profile, error)
	GetMany(ctx context.Context, ids []string) ([]models.Profile, error)
	// Patch writes the given columns; last writer wins.
	Patch(ctx context.Context, id string, fields map[string]interface{}) error
	// ListAfter pages profiles by id ascending, skipping excludeIDs and
	// starting strictly after afterID when it is non-empty.
	ListAfter(ctx context.Context, afterID string, excludeIDs []string, limit int) ([]models.Profile, error)
}

type ChatStore interface {
	// CreateIfAbsent inserts the chat unless a chat with the same id exists,
	// then returns the stored chat. created reports whether this call inserted it.
	CreateIfAbsent(ctx context.Context, chat *models.Chat) (stored *models.Chat, created bool, err error)
	Get(ctx context.Context, id string) (*models.Chat, error)
	ListForUser(ctx context.Context, userID string) ([]models.Chat, error)
	// ApplyMessage updates the denormalized preview and adds one to the
	// receiver's unread counter.
	ApplyMessage(ctx context.Context, msg *models.Message) (*models.Chat, error)
	ResetUnread(ctx context.Context, chatID, userID string) error
}

type MessageStore interface {
	Create(ctx context.Context, msg *models.Message) error
	ListByChat(ctx context.Context, chatID string) ([]models.Message, error)
	// MarkRead flips is_read on unread messages addressed to receiverID.
	MarkRead(ctx context.Context, chatID, receiverID string) (int64, error)
}

type SwipeStore interface {
	Upsert(ctx context.Context, s *models.Swipe) error
	Get(ctx context.Context, swiperID, targetID string) (*models.Swipe, error)
	ListBySwiper(ctx context.Context, swiperID string) ([]models.Swipe, error)
	ListByTarget(ctx context.Context, targetID string) ([]models.Swipe, error)
}

const chatKeySeparator = "_"

// ChatKey is the deterministic id of the chat between a and b; the order of
// the arguments does not matter.
func ChatKey(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return strings.Join(pair, chatKeySeparator)
}

// SortedPair returns a and b in ascending order.
func SortedPair(a, b string) []string {
	if a > b {
		return []string{b, a}
	}
	return []string{a, b}
}
