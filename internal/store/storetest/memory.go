// Package storetest provides in-memory stores with the same semantics as the
// postgres-backed ones, for service and handler tests.
package storetest

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"brewnet-server/internal/models"
	"brewnet-server/internal/store"
)

// Stores bundles one of each in-memory store.
type Stores struct {
	Profiles *Profiles
	Chats    *Chats
	Messages *Messages
	Swipes   *Swipes
}

func New() *Stores {
	return &Stores{
		Profiles: NewProfiles(),
		Chats:    NewChats(),
		Messages: NewMessages(),
		Swipes:   NewSwipes(),
	}
}

// Profiles.

type Profiles struct {
	mu   sync.Mutex
	byID map[string]models.Profile
	// Err, when set, is returned by every call.
	Err error
}

func NewProfiles() *Profiles {
	return &Profiles{byID: make(map[string]models.Profile)}
}

func (s *Profiles) Create(ctx context.Context, p *models.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if _, ok := s.byID[p.ID]; ok {
		return store.ErrDuplicate
	}
	for _, existing := range s.byID {
		if sameOptional(existing.Email, p.Email) || sameOptional(existing.PhoneNumber, p.PhoneNumber) ||
			sameOptional(existing.FirebaseUID, p.FirebaseUID) {
			return store.ErrDuplicate
		}
	}
	s.byID[p.ID] = *p
	return nil
}

func (s *Profiles) Get(ctx context.Context, id string) (*models.Profile, error) {
	return s.find(func(p *models.Profile) bool { return p.ID == id })
}

func (s *Profiles) GetByEmail(ctx context.Context, email string) (*models.Profile, error) {
	email = strings.ToLower(email)
	return s.find(func(p *models.Profile) bool { return p.Email != nil && *p.Email == email })
}

func (s *Profiles) GetByPhone(ctx context.Context, phone string) (*models.Profile, error) {
	return s.find(func(p *models.Profile) bool { return p.PhoneNumber != nil && *p.PhoneNumber == phone })
}

func (s *Profiles) GetByFirebaseUID(ctx context.Context, uid string) (*models.Profile, error) {
	return s.find(func(p *models.Profile) bool { return p.FirebaseUID != nil && *p.FirebaseUID == uid })
}

func (s *Profiles) GetMany(ctx context.Context, ids []string) ([]models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	var out []models.Profile
	for _, id := range ids {
		if p, ok := s.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// Patch understands the column names the services write.
func (s *Profiles) Patch(ctx context.Context, id string, fields map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	p, ok := s.byID[id]
	if !ok {
		return store.ErrNotFound
	}
	for col, v := range fields {
		if err := applyColumn(&p, col, v); err != nil {
			return err
		}
	}
	s.byID[id] = p
	return nil
}

func (s *Profiles) ListAfter(ctx context.Context, afterID string, excludeIDs []string, limit int) ([]models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	excluded := make(map[string]bool, len(excludeIDs))
	for _, id := range excludeIDs {
		excluded[id] = true
	}

	var out []models.Profile
	for id, p := range s.byID {
		if excluded[id] || (afterID != "" && id <= afterID) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Profiles) find(match func(*models.Profile) bool) (*models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	for _, p := range s.byID {
		p := p
		if match(&p) {
			return &p, nil
		}
	}
	return nil, store.ErrNotFound
}

func sameOptional(a, b *string) bool {
	return a != nil && b != nil && *a == *b
}

// Chats.

type Chats struct {
	mu    sync.Mutex
	chats map[string]models.Chat
	// ApplyErr, when set, fails ApplyMessage only.
	ApplyErr error
}

func NewChats() *Chats {
	return &Chats{chats: make(map[string]models.Chat)}
}

func (s *Chats) CreateIfAbsent(ctx context.Context, chat *models.Chat) (*models.Chat, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.chats[chat.ID]; ok {
		return cloneChat(existing), false, nil
	}
	c := *cloneChat(*chat)
	c.Members = nil
	for _, id := range c.Participants {
		c.Members = append(c.Members, models.ChatMember{ChatID: c.ID, UserID: id})
	}
	c.FillUnread()
	s.chats[c.ID] = c
	return cloneChat(c), true, nil
}

func (s *Chats) Get(ctx context.Context, id string) (*models.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneChat(c), nil
}

func (s *Chats) ListForUser(ctx context.Context, userID string) ([]models.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Chat
	for _, c := range s.chats {
		if c.HasParticipant(userID) {
			out = append(out, *cloneChat(c))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := out[i].LastMessageTimestamp, out[j].LastMessageTimestamp
		switch {
		case ti != nil && tj != nil && !ti.Equal(*tj):
			return ti.After(*tj)
		case ti != nil && tj == nil:
			return true
		case ti == nil && tj != nil:
			return false
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Chats) ApplyMessage(ctx context.Context, msg *models.Message) (*models.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ApplyErr != nil {
		return nil, s.ApplyErr
	}
	c, ok := s.chats[msg.ChatID]
	if !ok {
		return nil, store.ErrNotFound
	}
	ts := msg.Timestamp
	c.LastMessage = msg.Content
	c.LastMessageTimestamp = &ts
	c.LastMessageSenderID = msg.SenderID
	c.Members = bumpMember(c.Members, c.ID, msg.ReceiverID, func(n int) int { return n + 1 })
	c.FillUnread()
	s.chats[c.ID] = c
	return cloneChat(c), nil
}

func (s *Chats) ResetUnread(ctx context.Context, chatID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[chatID]
	if !ok {
		return nil
	}
	c.Members = bumpMember(c.Members, chatID, userID, func(int) int { return 0 })
	c.FillUnread()
	s.chats[chatID] = c
	return nil
}

func bumpMember(members []models.ChatMember, chatID, userID string, f func(int) int) []models.ChatMember {
	out := append([]models.ChatMember(nil), members...)
	for i := range out {
		if out[i].UserID == userID {
			out[i].UnreadCount = f(out[i].UnreadCount)
			return out
		}
	}
	return append(out, models.ChatMember{ChatID: chatID, UserID: userID, UnreadCount: f(0)})
}

func cloneChat(c models.Chat) *models.Chat {
	out := c
	out.Participants = append(out.Participants[:0:0], c.Participants...)
	out.Members = append([]models.ChatMember(nil), c.Members...)
	if c.LastMessageTimestamp != nil {
		ts := *c.LastMessageTimestamp
		out.LastMessageTimestamp = &ts
	}
	out.FillUnread()
	return &out
}

// Messages.

type Messages struct {
	mu       sync.Mutex
	messages []models.Message
	Err      error
}

func NewMessages() *Messages {
	return &Messages{}
}

func (s *Messages) Create(ctx context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.messages = append(s.messages, *msg)
	return nil
}

func (s *Messages) ListByChat(ctx context.Context, chatID string) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Message
	for _, m := range s.messages {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Messages) MarkRead(ctx context.Context, chatID, receiverID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for i := range s.messages {
		m := &s.messages[i]
		if m.ChatID == chatID && m.ReceiverID == receiverID && !m.IsRead {
			m.IsRead = true
			n++
		}
	}
	return n, nil
}

// All returns every stored message in insertion order.
func (s *Messages) All() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Message(nil), s.messages...)
}

// Swipes.

type Swipes struct {
	mu     sync.Mutex
	swipes map[[2]string]models.Swipe
}

func NewSwipes() *Swipes {
	return &Swipes{swipes: make(map[[2]string]models.Swipe)}
}

func (s *Swipes) Upsert(ctx context.Context, sw *models.Swipe) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.swipes[[2]string{sw.SwiperID, sw.TargetID}] = *sw
	return nil
}

func (s *Swipes) Get(ctx context.Context, swiperID, targetID string) (*models.Swipe, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sw, ok := s.swipes[[2]string{swiperID, targetID}]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &sw, nil
}

func (s *Swipes) ListBySwiper(ctx context.Context, swiperID string) ([]models.Swipe, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Swipe
	for key, sw := range s.swipes {
		if key[0] == swiperID {
			out = append(out, sw)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TargetID < out[j].TargetID })
	return out, nil
}

func (s *Swipes) ListByTarget(ctx context.Context, targetID string) ([]models.Swipe, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Swipe
	for key, sw := range s.swipes {
		if key[1] == targetID {
			out = append(out, sw)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SwiperID < out[j].SwiperID })
	return out, nil
}

var errUnknownColumn = errors.New("storetest: unknown profile column")
