package store

import (
	"context"
	"errors"
	"fmt"

	"brewnet-server/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Chats struct {
	db *gorm.DB
}

func NewChats(db *gorm.DB) *Chats {
	return &Chats{db: db}
}

func (s *Chats) CreateIfAbsent(ctx context.Context, chat *models.Chat) (*models.Chat, bool, error) {
	created := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Omit(clause.Associations).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(chat)
		if res.Error != nil {
			return res.Error
		}
		created = res.RowsAffected == 1
		if !created {
			return nil
		}

		members := make([]models.ChatMember, 0, len(chat.Participants))
		for _, id := range chat.Participants {
			members = append(members, models.ChatMember{ChatID: chat.ID, UserID: id})
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&members).Error
	})
	if err != nil {
		return nil, false, fmt.Errorf("create chat %s: %w", chat.ID, err)
	}

	stored, err := s.Get(ctx, chat.ID)
	if err != nil {
		return nil, false, err
	}
	return stored, created, nil
}

func (s *Chats) Get(ctx context.Context, id string) (*models.Chat, error) {
	var chat models.Chat
	if err := s.db.WithContext(ctx).Preload("Members").Where("id = ?", id).First(&chat).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get chat %s: %w", id, err)
	}
	chat.FillUnread()
	return &chat, nil
}

func (s *Chats) ListForUser(ctx context.Context, userID string) ([]models.Chat, error) {
	var chats []models.Chat
	if err := s.db.WithContext(ctx).Preload("Members").
		Where("? = ANY(participants)", userID).
		Order("last_message_timestamp DESC NULLS LAST").
		Order("id ASC").
		Find(&chats).Error; err != nil {
		return nil, fmt.Errorf("list chats for %s: %w", userID, err)
	}
	for i := range chats {
		chats[i].FillUnread()
	}
	return chats, nil
}

func (s *Chats) ApplyMessage(ctx context.Context, msg *models.Message) (*models.Chat, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Chat{}).Where("id = ?", msg.ChatID).Updates(map[string]interface{}{
			"last_message":           msg.Content,
			"last_message_timestamp": msg.Timestamp,
			"last_message_sender_id": msg.SenderID,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}

		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "chat_id"}, {Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"unread_count": gorm.Expr("chat_members.unread_count + 1")}),
		}).Create(&models.ChatMember{ChatID: msg.ChatID, UserID: msg.ReceiverID, UnreadCount: 1}).Error
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("apply message to chat %s: %w", msg.ChatID, err)
	}
	return s.Get(ctx, msg.ChatID)
}

func (s *Chats) ResetUnread(ctx context.Context, chatID, userID string) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "chat_id"}, {Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"unread_count": 0}),
	}).Create(&models.ChatMember{ChatID: chatID, UserID: userID}).Error
	if err != nil {
		return fmt.Errorf("reset unread for %s in %s: %w", userID, chatID, err)
	}
	return nil
}
