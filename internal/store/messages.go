package store

import (
	"context"
	"fmt"

	"brewnet-server/internal/models"

	"gorm.io/gorm"
)

type Messages struct {
	db *gorm.DB
}

func NewMessages(db *gorm.DB) *Messages {
	return &Messages{db: db}
}

func (s *Messages) Create(ctx context.Context, msg *models.Message) error {
	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("create message in %s: %w", msg.ChatID, err)
	}
	return nil
}

func (s *Messages) ListByChat(ctx context.Context, chatID string) ([]models.Message, error) {
	var messages []models.Message
	if err := s.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("timestamp ASC").Order("id ASC").
		Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("list messages in %s: %w", chatID, err)
	}
	return messages, nil
}

func (s *Messages) MarkRead(ctx context.Context, chatID, receiverID string) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("chat_id = ? AND receiver_id = ? AND is_read = ?", chatID, receiverID, false).
		Update("is_read", true)
	if res.Error != nil {
		return 0, fmt.Errorf("mark messages read in %s: %w", chatID, res.Error)
	}
	return res.RowsAffected, nil
}
