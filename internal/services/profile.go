package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"brewnet-server/internal/models"
	"brewnet-server/internal/store"

	"github.com/sirupsen/logrus"
)

const (
	minimumAge         = 18
	maxUsernameLength  = 40
	maxBioLength       = 500
	imageURLExpiration = 15 * time.Minute
)

type ImageConfig struct {
	MaxFileSize  int64
	AllowedTypes []string
}

type BasicsInput struct {
	Username          string
	DateOfBirth       string
	Gender            string
	GenderSubcategory string
	Bio               string
}

// ProfileService applies the onboarding steps, each one a field patch on
// the caller's profile. Last writer wins.
type ProfileService struct {
	profiles store.ProfileStore
	blobs    BlobStore
	images   ImageConfig
	log      logrus.FieldLogger
	now      func() time.Time
}

func NewProfileService(profiles store.ProfileStore, blobs BlobStore, images ImageConfig, log logrus.FieldLogger) *ProfileService {
	return &ProfileService{
		profiles: profiles,
		blobs:    blobs,
		images:   images,
		log:      log,
		now:      time.Now,
	}
}

func ProfileImageKey(userID string) string { return "profile_images/" + userID }

func (s *ProfileService) Get(ctx context.Context, id string) (*models.Profile, error) {
	p, err := s.profiles.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: profile %s", ErrNotFound, id)
	}
	return p, err
}

func (s *ProfileService) Create(ctx context.Context, p *models.Profile) error {
	err := s.profiles.Create(ctx, p)
	if errors.Is(err, store.ErrDuplicate) {
		return fmt.Errorf("%w: profile %s", ErrAlreadyExists, p.ID)
	}
	return err
}

func (s *ProfileService) UpdateBasics(ctx context.Context, id string, in BasicsInput) (*models.Profile, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" || len(username) > maxUsernameLength {
		return nil, invalid("username must be between 1 and 40 characters")
	}
	dob, err := time.Parse(models.DateOfBirthLayout, strings.TrimSpace(in.DateOfBirth))
	if err != nil {
		return nil, invalid("invalid date format, use YYYY-MM-DD")
	}
	if models.AgeOn(dob, s.now()) < minimumAge {
		return nil, invalid("you must be 18 or older to use this app")
	}
	gender := strings.TrimSpace(in.Gender)
	if gender == "" {
		return nil, invalid("gender is required")
	}
	bio := strings.TrimSpace(in.Bio)
	if len(bio) > maxBioLength {
		return nil, invalid("bio must be at most 500 characters")
	}

	return s.patch(ctx, id, map[string]interface{}{
		"username":           username,
		"date_of_birth":      dob.Format(models.DateOfBirthLayout),
		"gender":             gender,
		"gender_subcategory": strings.TrimSpace(in.GenderSubcategory),
		"bio":                bio,
	})
}

// UpdateLocation keeps the previous place name when locationName is blank.
func (s *ProfileService) UpdateLocation(ctx context.Context, id string, lat, lng float64, locationName string) (*models.Profile, error) {
	if math.IsNaN(lat) || math.IsNaN(lng) || lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return nil, invalid("coordinates out of range")
	}
	fields := map[string]interface{}{
		"latitude":            lat,
		"longitude":           lng,
		"location_updated_at": s.now().UTC(),
	}
	if name := strings.TrimSpace(locationName); name != "" {
		fields["location_name"] = name
	}
	return s.patch(ctx, id, fields)
}

func (s *ProfileService) UpdatePurpose(ctx context.Context, id, purpose string) (*models.Profile, error) {
	purpose = strings.TrimSpace(purpose)
	if purpose == "" {
		return nil, invalid("purpose is required")
	}
	return s.patch(ctx, id, map[string]interface{}{"purpose": purpose})
}

func (s *ProfileService) UpdateSeek(ctx context.Context, id, want string) (*models.Profile, error) {
	if !models.IsWant(want) {
		return nil, invalid("want must be one of professional, social, both")
	}
	return s.patch(ctx, id, map[string]interface{}{"want": want})
}

func (s *ProfileService) UpdateInterests(ctx context.Context, id string, interests map[string]bool) (*models.Profile, error) {
	for k := range interests {
		if !models.IsInterest(k) {
			return nil, invalid(fmt.Sprintf("unknown interest %q", k))
		}
	}
	return s.patch(ctx, id, map[string]interface{}{"interests": models.NewFlags(interests)})
}

func (s *ProfileService) UpdateQualities(ctx context.Context, id string, qualities map[string]bool) (*models.Profile, error) {
	for k := range qualities {
		if !models.IsQuality(k) {
			return nil, invalid(fmt.Sprintf("unknown quality %q", k))
		}
	}
	return s.patch(ctx, id, map[string]interface{}{"qualities": models.NewFlags(qualities)})
}

// UpdateProfileImage stores the image at profile_images/<id>, replacing the
// previous one, and records its URL.
func (s *ProfileService) UpdateProfileImage(ctx context.Context, id string, r io.Reader, size int64, contentType string) (*models.Profile, error) {
	if s.blobs == nil {
		return nil, fmt.Errorf("%w: blob storage is disabled", ErrUnavailable)
	}
	if size <= 0 || size > s.images.MaxFileSize {
		return nil, invalid(fmt.Sprintf("image must be between 1 byte and %d bytes", s.images.MaxFileSize))
	}
	if !s.allowedType(contentType) {
		return nil, invalid(fmt.Sprintf("unsupported image type %q", contentType))
	}
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}

	url, err := s.blobs.Upload(ctx, ProfileImageKey(id), r, size, contentType)
	if err != nil {
		return nil, err
	}
	// The object path never changes and is cached for a year; the version
	// parameter makes clients fetch the new image.
	url = fmt.Sprintf("%s?v=%d", url, s.now().Unix())

	return s.patch(ctx, id, map[string]interface{}{"profile_image_url": url})
}

func (s *ProfileService) RemoveProfileImage(ctx context.Context, id string) (*models.Profile, error) {
	if s.blobs == nil {
		return nil, fmt.Errorf("%w: blob storage is disabled", ErrUnavailable)
	}
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.ProfileImageURL == "" {
		return p, nil
	}
	if err := s.blobs.Delete(ctx, p.ProfileImageURL); err != nil {
		// federated accounts start with an external photo URL
		if !errors.Is(err, ErrInvalidInput) {
			return nil, err
		}
	}
	return s.patch(ctx, id, map[string]interface{}{"profile_image_url": ""})
}

// ProfileImageURL returns a short-lived signed URL, for private buckets.
func (s *ProfileService) ProfileImageURL(ctx context.Context, id string) (string, error) {
	if s.blobs == nil {
		return "", fmt.Errorf("%w: blob storage is disabled", ErrUnavailable)
	}
	p, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if p.ProfileImageURL == "" {
		return "", fmt.Errorf("%w: no profile image", ErrNotFound)
	}
	return s.blobs.PresignedURL(ctx, ProfileImageKey(id), imageURLExpiration)
}

func (s *ProfileService) UpdateOnlineStatus(ctx context.Context, id string, online bool) error {
	_, err := s.patch(ctx, id, map[string]interface{}{
		"is_online":   online,
		"last_active": s.now().UTC(),
	})
	return err
}

func (s *ProfileService) RegisterDeviceToken(ctx context.Context, id, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return invalid("device token is required")
	}
	_, err := s.patch(ctx, id, map[string]interface{}{"device_token": token})
	return err
}

func (s *ProfileService) IsProfileComplete(ctx context.Context, id string) (bool, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return p.IsComplete(), nil
}

func (s *ProfileService) patch(ctx context.Context, id string, fields map[string]interface{}) (*models.Profile, error) {
	if err := s.profiles.Patch(ctx, id, fields); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: profile %s", ErrNotFound, id)
		}
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *ProfileService) allowedType(contentType string) bool {
	for _, t := range s.images.AllowedTypes {
		if strings.EqualFold(t, contentType) {
			return true
		}
	}
	return false
}
