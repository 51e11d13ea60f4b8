// Package realtime pushes chat changes to connected WebSocket clients.
// Clients subscribe to topics (their chat list, or one chat) and get a
// snapshot first, then an event on every change.
package realtime

import (
	"context"
	"encoding/json"

	"brewnet-server/internal/models"
)

const (
	EventSnapshot = "snapshot"
	EventMessage  = "message"
	EventRead     = "read"
	EventChat     = "chat"
	EventTyping   = "typing"
	EventError    = "error"
)

type Event struct {
	Type  string          `json:"type"`
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func NewEvent(topic, eventType string, data interface{}) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: eventType, Topic: topic, Data: raw}, nil
}

func ChatListTopic(userID string) string { return "chats:" + userID }

func ChatTopic(chatID string) string { return "chat:" + chatID }

// Publisher delivers an event to every subscriber of its topic.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Snapshotter supplies the current state sent on subscribe.
type Snapshotter interface {
	ListChats(ctx context.Context, userID string) ([]models.ChatUser, error)
	ListMessages(ctx context.Context, chatID, userID string) ([]models.Message, error)
	// AuthorizeChat fails unless userID participates in chatID.
	AuthorizeChat(ctx context.Context, chatID, userID string) error
}

type ReadReceipt struct {
	ChatID   string `json:"chatId"`
	ReaderID string `json:"readerId"`
	Count    int64  `json:"count"`
}

type Typing struct {
	ChatID   string `json:"chatId"`
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}
