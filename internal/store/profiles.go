package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"brewnet-server/internal/models"

	"gorm.io/gorm"
)

type Profiles struct {
	db *gorm.DB
}

func NewProfiles(db *gorm.DB) *Profiles {
	return &Profiles{db: db}
}

func (s *Profiles) Create(ctx context.Context, p *models.Profile) error {
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create profile: %w", err)
	}
	return nil
}

func (s *Profiles) Get(ctx context.Context, id string) (*models.Profile, error) {
	return s.first(ctx, "id = ?", id)
}

func (s *Profiles) GetByEmail(ctx context.Context, email string) (*models.Profile, error) {
	return s.first(ctx, "email = ?", strings.ToLower(email))
}

func (s *Profiles) GetByPhone(ctx context.Context, phone string) (*models.Profile, error) {
	return s.first(ctx, "phone_number = ?", phone)
}

func (s *Profiles) GetByFirebaseUID(ctx context.Context, uid string) (*models.Profile, error) {
	return s.first(ctx, "firebase_uid = ?", uid)
}

func (s *Profiles) GetMany(ctx context.Context, ids []string) ([]models.Profile, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var profiles []models.Profile
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&profiles).Error; err != nil {
		return nil, fmt.Errorf("get profiles: %w", err)
	}
	return profiles, nil
}

func (s *Profiles) Patch(ctx context.Context, id string, fields map[string]interface{}) error {
	res := s.db.WithContext(ctx).Model(&models.Profile{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return ErrDuplicate
		}
		return fmt.Errorf("patch profile %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Profiles) ListAfter(ctx context.Context, afterID string, excludeIDs []string, limit int) ([]models.Profile, error) {
	query := s.db.WithContext(ctx).Model(&models.Profile{})
	if afterID != "" {
		query = query.Where("id > ?", afterID)
	}
	if len(excludeIDs) > 0 {
		query = query.Where("id NOT IN ?", excludeIDs)
	}

	var profiles []models.Profile
	if err := query.Order("id ASC").Limit(limit).Find(&profiles).Error; err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	return profiles, nil
}

func (s *Profiles) first(ctx context.Context, cond string, arg interface{}) (*models.Profile, error) {
	var p models.Profile
	if err := s.db.WithContext(ctx).Where(cond, arg).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &p, nil
}

// isUniqueViolation matches postgres error 23505 without tying the store to
// one driver's error type.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "23505") || strings.Contains(msg, "duplicate key")
}
