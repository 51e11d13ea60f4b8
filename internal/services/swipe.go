package services

import (
	"context"
	"errors"
	"fmt"

	"brewnet-server/internal/models"
	"brewnet-server/internal/store"

	"github.com/sirupsen/logrus"
)

type SwipeResult struct {
	Action  string `json:"action"`
	Matched bool   `json:"matched"`
	ChatID  string `json:"chatId,omitempty"`
}

type SwipeService struct {
	swipes   store.SwipeStore
	profiles store.ProfileStore
	chats    *ChatService
	log      logrus.FieldLogger
}

func NewSwipeService(swipes store.SwipeStore, profiles store.ProfileStore, chats *ChatService, log logrus.FieldLogger) *SwipeService {
	return &SwipeService{swipes: swipes, profiles: profiles, chats: chats, log: log}
}

// Swipe records a like or pass; swiping the same target again replaces the
// earlier action. Two likes open the chat between the pair.
func (s *SwipeService) Swipe(ctx context.Context, swiperID, targetID, action string) (*SwipeResult, error) {
	if action != models.SwipeLike && action != models.SwipePass {
		return nil, invalid("action must be like or pass")
	}
	if swiperID == targetID {
		return nil, invalid("cannot swipe on yourself")
	}
	if _, err := s.profiles.Get(ctx, targetID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: user %s", ErrNotFound, targetID)
		}
		return nil, err
	}

	if err := s.swipes.Upsert(ctx, &models.Swipe{SwiperID: swiperID, TargetID: targetID, Action: action}); err != nil {
		return nil, err
	}
	result := &SwipeResult{Action: action}
	if action != models.SwipeLike {
		return result, nil
	}

	back, err := s.swipes.Get(ctx, targetID, swiperID)
	if errors.Is(err, store.ErrNotFound) {
		return result, nil
	}
	if err != nil {
		return nil, err
	}
	if back.Action != models.SwipeLike {
		return result, nil
	}

	chat, err := s.chats.GetOrCreateChat(ctx, swiperID, targetID)
	if err != nil {
		return nil, fmt.Errorf("open chat for match: %w", err)
	}
	s.log.WithFields(logrus.Fields{"swiper_id": swiperID, "target_id": targetID, "chat_id": chat.ID}).Info("Mutual like")
	result.Matched = true
	result.ChatID = chat.ID
	return result, nil
}

// Likes lists the ids the user liked, for restoring the card queue.
func (s *SwipeService) Likes(ctx context.Context, userID string) ([]string, error) {
	swipes, err := s.swipes.ListBySwiper(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := []string{}
	for _, sw := range swipes {
		if sw.Action == models.SwipeLike {
			ids = append(ids, sw.TargetID)
		}
	}
	return ids, nil
}
