package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"brewnet-server/internal/models"
	"brewnet-server/internal/realtime"
	"brewnet-server/internal/store"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

const (
	maxMessageLength = 4000
	fallbackUsername = "User"
)

type ChatService struct {
	chats     store.ChatStore
	messages  store.MessageStore
	profiles  store.ProfileStore
	publisher realtime.Publisher
	notifier  *Notifier
	log       logrus.FieldLogger
	now       func() time.Time
}

// NewChatService accepts a nil publisher or notifier; live updates or pushes
// are then skipped.
func NewChatService(chats store.ChatStore, messages store.MessageStore, profiles store.ProfileStore,
	publisher realtime.Publisher, notifier *Notifier, log logrus.FieldLogger) *ChatService {
	return &ChatService{
		chats:     chats,
		messages:  messages,
		profiles:  profiles,
		publisher: publisher,
		notifier:  notifier,
		log:       log,
		now:       time.Now,
	}
}

// UsePublisher sets where chat events go. The hub needs the service for
// snapshots, so the publisher is attached after construction.
func (s *ChatService) UsePublisher(p realtime.Publisher) {
	s.publisher = p
}

// GetOrCreateChat returns the one chat between a and b. The id is derived
// from the sorted pair and creation is insert-if-absent, so concurrent
// callers converge on the same chat.
func (s *ChatService) GetOrCreateChat(ctx context.Context, a, b string) (*models.Chat, error) {
	if a == "" || b == "" {
		return nil, invalid("both participants are required")
	}
	if a == b {
		return nil, ErrSelfChat
	}
	if _, err := s.profiles.Get(ctx, b); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: user %s", ErrNotFound, b)
		}
		return nil, err
	}

	chat, created, err := s.chats.CreateIfAbsent(ctx, &models.Chat{
		ID:           store.ChatKey(a, b),
		Participants: pq.StringArray(store.SortedPair(a, b)),
	})
	if err != nil {
		return nil, err
	}
	if created {
		s.log.WithField("chat_id", chat.ID).Info("Chat created")
		s.publishSummaries(ctx, chat)
	}
	return chat, nil
}

// SendMessage stores the message, then updates the chat summary and the
// receiver's unread counter as a separate best-effort step. A failed summary
// update is logged and the send still succeeds. There is no idempotency key;
// a retried send may store a duplicate.
func (s *ChatService) SendMessage(ctx context.Context, chatID, senderID, content string) (*models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, invalid("message content is required")
	}
	if len(content) > maxMessageLength {
		return nil, invalid("message is too long")
	}

	chat, err := s.participantChat(ctx, chatID, senderID)
	if err != nil {
		return nil, err
	}
	receiverID, ok := chat.OtherParticipant(senderID)
	if !ok {
		return nil, fmt.Errorf("%w: chat %s has no other participant", ErrInvalidInput, chatID)
	}

	msg := &models.Message{
		ID:         uuid.NewString(),
		ChatID:     chat.ID,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		Timestamp:  s.now().UTC(),
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	s.publish(ctx, realtime.ChatTopic(chat.ID), realtime.EventMessage, msg)

	log := s.log.WithFields(logrus.Fields{"chat_id": chat.ID, "message_id": msg.ID})
	updated, err := s.chats.ApplyMessage(ctx, msg)
	if err != nil {
		log.WithError(err).Warn("Chat summary update failed; preview and unread count are stale")
	} else {
		s.publishSummaries(ctx, updated)
	}

	s.pushAsync(ctx, msg)
	return msg, nil
}

// pushAsync sends the push off the request path. It outlives the request
// context but is bounded by pushTimeout.
func (s *ChatService) pushAsync(ctx context.Context, msg *models.Message) {
	if s.notifier == nil {
		return
	}
	pushed := *msg
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pushTimeout)
		defer cancel()
		s.notifier.NewMessage(ctx, &pushed)
	}()
}

// MarkRead resets the reader's unread counter and flips is_read on every
// unread message addressed to the reader.
func (s *ChatService) MarkRead(ctx context.Context, chatID, readerID string) (int64, error) {
	chat, err := s.participantChat(ctx, chatID, readerID)
	if err != nil {
		return 0, err
	}

	n, err := s.messages.MarkRead(ctx, chat.ID, readerID)
	if err != nil {
		return 0, fmt.Errorf("mark messages read: %w", err)
	}
	if err := s.chats.ResetUnread(ctx, chat.ID, readerID); err != nil {
		return n, fmt.Errorf("reset unread count: %w", err)
	}

	s.publish(ctx, realtime.ChatTopic(chat.ID), realtime.EventRead, realtime.ReadReceipt{
		ChatID:   chat.ID,
		ReaderID: readerID,
		Count:    n,
	})
	if fresh, err := s.chats.Get(ctx, chat.ID); err == nil {
		s.publishSummaries(ctx, fresh)
	}
	return n, nil
}

// ListChats returns the reader's chat list, newest activity first. Chats
// whose other profile no longer exists are skipped.
func (s *ChatService) ListChats(ctx context.Context, userID string) ([]models.ChatUser, error) {
	chats, err := s.chats.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	otherIDs := make([]string, 0, len(chats))
	for i := range chats {
		if other, ok := chats[i].OtherParticipant(userID); ok {
			otherIDs = append(otherIDs, other)
		}
	}
	people, err := s.profilesByID(ctx, otherIDs)
	if err != nil {
		return nil, err
	}

	rows := make([]models.ChatUser, 0, len(chats))
	for i := range chats {
		other, ok := chats[i].OtherParticipant(userID)
		if !ok {
			continue
		}
		p, ok := people[other]
		if !ok {
			continue
		}
		rows = append(rows, summaryRow(&chats[i], userID, p))
	}
	return rows, nil
}

// ChatUserInfo is the header of one chat from userID's side; a missing
// profile shows as "User".
func (s *ChatService) ChatUserInfo(ctx context.Context, chatID, userID string) (*models.ChatUser, error) {
	chat, err := s.participantChat(ctx, chatID, userID)
	if err != nil {
		return nil, err
	}
	other, _ := chat.OtherParticipant(userID)

	p, err := s.profiles.Get(ctx, other)
	if errors.Is(err, store.ErrNotFound) {
		p = &models.Profile{ID: other, Username: fallbackUsername}
	} else if err != nil {
		return nil, err
	}
	row := summaryRow(chat, userID, p)
	return &row, nil
}

// ListMessages returns the chat's messages by timestamp ascending.
func (s *ChatService) ListMessages(ctx context.Context, chatID, userID string) ([]models.Message, error) {
	chat, err := s.participantChat(ctx, chatID, userID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.messages.ListByChat(ctx, chat.ID)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	return msgs, nil
}

func (s *ChatService) AuthorizeChat(ctx context.Context, chatID, userID string) error {
	_, err := s.participantChat(ctx, chatID, userID)
	return err
}

func (s *ChatService) participantChat(ctx context.Context, chatID, userID string) (*models.Chat, error) {
	chat, err := s.chats.Get(ctx, chatID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: chat %s", ErrNotFound, chatID)
	}
	if err != nil {
		return nil, err
	}
	if !chat.HasParticipant(userID) {
		return nil, fmt.Errorf("%w: not a participant of chat %s", ErrForbidden, chatID)
	}
	return chat, nil
}

func (s *ChatService) profilesByID(ctx context.Context, ids []string) (map[string]*models.Profile, error) {
	people, err := s.profiles.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*models.Profile, len(people))
	for i := range people {
		byID[people[i].ID] = &people[i]
	}
	return byID, nil
}

// publishSummaries pushes each participant's own chat-list row.
func (s *ChatService) publishSummaries(ctx context.Context, chat *models.Chat) {
	if s.publisher == nil {
		return
	}
	people, err := s.profilesByID(ctx, chat.Participants)
	if err != nil {
		s.log.WithError(err).WithField("chat_id", chat.ID).Warn("Skipping chat summary push")
		return
	}
	for _, viewer := range chat.Participants {
		other, _ := chat.OtherParticipant(viewer)
		p, ok := people[other]
		if !ok {
			continue
		}
		s.publish(ctx, realtime.ChatListTopic(viewer), realtime.EventChat, summaryRow(chat, viewer, p))
	}
}

func (s *ChatService) publish(ctx context.Context, topic, eventType string, data interface{}) {
	if s.publisher == nil {
		return
	}
	ev, err := realtime.NewEvent(topic, eventType, data)
	if err == nil {
		err = s.publisher.Publish(ctx, ev)
	}
	if err != nil {
		s.log.WithError(err).WithField("topic", topic).Warn("Realtime publish failed")
	}
}

func summaryRow(chat *models.Chat, viewer string, other *models.Profile) models.ChatUser {
	if chat.UnreadCount == nil {
		chat.FillUnread()
	}
	return models.ChatUser{
		ChatID:          chat.ID,
		ID:              other.ID,
		Username:        other.Username,
		ProfileImageURL: other.ProfileImageURL,
		LastMessage:     chat.LastMessage,
		LastMessageTime: chat.LastMessageTimestamp,
		UnreadCount:     chat.UnreadCount[viewer],
	}
}
