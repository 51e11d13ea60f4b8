package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"time"

	"brewnet-server/internal/matching"
	"brewnet-server/internal/models"
	"brewnet-server/internal/store"

	"github.com/sirupsen/logrus"
)

const (
	DefaultBatchSize  = 10
	MaxBatchSize      = 50
	recommendPoolSize = 200
	earthRadiusKm     = 6371.0
)

// Card is one discovery card.
type Card struct {
	ID              string          `json:"userId"`
	Username        string          `json:"username"`
	DateOfBirth     string          `json:"dateOfBirth"`
	Age             *int            `json:"age,omitempty"`
	ProfileImageURL string          `json:"profileImageUrl"`
	LocationName    string          `json:"locationName"`
	Latitude        *float64        `json:"latitude"`
	Longitude       *float64        `json:"longitude"`
	DistanceKm      *float64        `json:"distanceKm,omitempty"`
	Interests       map[string]bool `json:"interests"`
	Qualities       map[string]bool `json:"qualities"`
	Bio             *string         `json:"bio"`
	Want            string          `json:"want,omitempty"`
	Score           *float64        `json:"score,omitempty"`
}

// CardBatch is one page; NextCursor is empty once the chain is exhausted.
type CardBatch struct {
	Cards      []Card `json:"cards"`
	NextCursor string `json:"nextCursor"`
}

type DiscoveryService struct {
	profiles    store.ProfileStore
	swipes      store.SwipeStore
	defaultSize int
	log         logrus.FieldLogger
	now         func() time.Time
}

func NewDiscoveryService(profiles store.ProfileStore, swipes store.SwipeStore, defaultSize int, log logrus.FieldLogger) *DiscoveryService {
	if defaultSize <= 0 || defaultSize > MaxBatchSize {
		defaultSize = DefaultBatchSize
	}
	return &DiscoveryService{
		profiles:    profiles,
		swipes:      swipes,
		defaultSize: defaultSize,
		log:         log,
		now:         time.Now,
	}
}

// EncodeCursor and DecodeCursor keep the last-seen id opaque to clients.
func EncodeCursor(lastID string) string {
	if lastID == "" {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString([]byte(lastID))
}

func DecodeCursor(cursor string) (string, error) {
	if cursor == "" {
		return "", nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil || len(raw) == 0 {
		return "", invalid("malformed cursor")
	}
	return string(raw), nil
}

// FetchNextBatch pages profiles by id ascending, strictly after the cursor,
// never returning the requester or anyone the requester already swiped.
func (s *DiscoveryService) FetchNextBatch(ctx context.Context, userID, cursor string, limit int) (*CardBatch, error) {
	if limit <= 0 {
		limit = s.defaultSize
	}
	if limit > MaxBatchSize {
		limit = MaxBatchSize
	}
	afterID, err := DecodeCursor(cursor)
	if err != nil {
		return nil, err
	}

	viewer, err := s.viewer(ctx, userID)
	if err != nil {
		return nil, err
	}
	exclude, err := s.excluded(ctx, userID)
	if err != nil {
		return nil, err
	}

	// One extra row tells us whether another page exists.
	profiles, err := s.profiles.ListAfter(ctx, afterID, exclude, limit+1)
	if err != nil {
		return nil, err
	}
	hasMore := len(profiles) > limit
	if hasMore {
		profiles = profiles[:limit]
	}

	batch := &CardBatch{Cards: make([]Card, 0, len(profiles))}
	for i := range profiles {
		batch.Cards = append(batch.Cards, s.card(viewer, &profiles[i]))
	}
	if hasMore {
		batch.NextCursor = EncodeCursor(profiles[len(profiles)-1].ID)
	}

	s.log.WithFields(logrus.Fields{"user_id": userID, "count": len(batch.Cards), "has_more": hasMore}).Debug("Discovery batch")
	return batch, nil
}

// Recommend ranks unswiped profiles by compatibility. A like or pass the
// candidate made on the requester adjusts the score.
func (s *DiscoveryService) Recommend(ctx context.Context, userID string, limit int) ([]Card, error) {
	if limit <= 0 {
		limit = s.defaultSize
	}
	if limit > MaxBatchSize {
		limit = MaxBatchSize
	}

	viewer, err := s.viewer(ctx, userID)
	if err != nil {
		return nil, err
	}
	exclude, err := s.excluded(ctx, userID)
	if err != nil {
		return nil, err
	}
	pool, err := s.profiles.ListAfter(ctx, "", exclude, recommendPoolSize)
	if err != nil {
		return nil, err
	}

	incoming, err := s.swipes.ListByTarget(ctx, userID)
	if err != nil {
		return nil, err
	}
	feedback := make(map[string][]string, len(incoming))
	for _, sw := range incoming {
		feedback[sw.SwiperID] = append(feedback[sw.SwiperID], sw.Action)
	}

	candidates := make([]matching.Candidate, 0, len(pool))
	byID := make(map[string]*models.Profile, len(pool))
	for i := range pool {
		candidates = append(candidates, matching.FromProfile(&pool[i]))
		byID[pool[i].ID] = &pool[i]
	}

	ranked := matching.Rank(matching.FromProfile(viewer), candidates, feedback, limit)
	cards := make([]Card, 0, len(ranked))
	for _, m := range ranked {
		card := s.card(viewer, byID[m.ID])
		score := m.Score
		card.Score = &score
		cards = append(cards, card)
	}
	return cards, nil
}

func (s *DiscoveryService) viewer(ctx context.Context, userID string) (*models.Profile, error) {
	p, err := s.profiles.Get(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: profile %s", ErrNotFound, userID)
	}
	return p, err
}

// excluded is the requester plus every profile they swiped.
func (s *DiscoveryService) excluded(ctx context.Context, userID string) ([]string, error) {
	swiped, err := s.swipes.ListBySwiper(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(swiped)+1)
	ids = append(ids, userID)
	for _, sw := range swiped {
		ids = append(ids, sw.TargetID)
	}
	return ids, nil
}

func (s *DiscoveryService) card(viewer, p *models.Profile) Card {
	c := Card{
		ID:              p.ID,
		Username:        p.Username,
		DateOfBirth:     p.DateOfBirth,
		ProfileImageURL: p.ProfileImageURL,
		LocationName:    p.LocationName,
		Latitude:        p.Latitude,
		Longitude:       p.Longitude,
		Interests:       p.Interests.Data(),
		Qualities:       p.Qualities.Data(),
		Bio:             p.Bio,
		Want:            p.Want,
	}
	if c.Interests == nil {
		c.Interests = map[string]bool{}
	}
	if c.Qualities == nil {
		c.Qualities = map[string]bool{}
	}
	if age, ok := p.Age(s.now()); ok {
		c.Age = &age
	}
	if viewer.HasLocation() && p.HasLocation() {
		d := math.Round(HaversineKm(*viewer.Latitude, *viewer.Longitude, *p.Latitude, *p.Longitude)*10) / 10
		c.DistanceKm = &d
	}
	return c
}

// HaversineKm is the great-circle distance between two coordinates.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
