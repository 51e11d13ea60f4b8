package store

import (
	"context"
	"errors"
	"fmt"

	"brewnet-server/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Swipes struct {
	db *gorm.DB
}

func NewSwipes(db *gorm.DB) *Swipes {
	return &Swipes{db: db}
}

// Upsert records the latest action; swiping again on the same target replaces it.
func (s *Swipes) Upsert(ctx context.Context, sw *models.Swipe) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "swiper_id"}, {Name: "target_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"action", "updated_at"}),
	}).Create(sw).Error
	if err != nil {
		return fmt.Errorf("record swipe %s→%s: %w", sw.SwiperID, sw.TargetID, err)
	}
	return nil
}

func (s *Swipes) Get(ctx context.Context, swiperID, targetID string) (*models.Swipe, error) {
	var sw models.Swipe
	err := s.db.WithContext(ctx).
		Where("swiper_id = ? AND target_id = ?", swiperID, targetID).
		First(&sw).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get swipe: %w", err)
	}
	return &sw, nil
}

func (s *Swipes) ListBySwiper(ctx context.Context, swiperID string) ([]models.Swipe, error) {
	var swipes []models.Swipe
	if err := s.db.WithContext(ctx).Where("swiper_id = ?", swiperID).Find(&swipes).Error; err != nil {
		return nil, fmt.Errorf("list swipes for %s: %w", swiperID, err)
	}
	return swipes, nil
}

// ListByTarget returns the swipes other users made on targetID.
func (s *Swipes) ListByTarget(ctx context.Context, targetID string) ([]models.Swipe, error) {
	var swipes []models.Swipe
	if err := s.db.WithContext(ctx).Where("target_id = ?", targetID).Find(&swipes).Error; err != nil {
		return nil, fmt.Errorf("list swipes on %s: %w", targetID, err)
	}
	return swipes, nil
}
