package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"brewnet-server/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	id, err := DecodeCursor(EncodeCursor("user-42"))
	require.NoError(t, err)
	assert.Equal(t, "user-42", id)

	id, err = DecodeCursor("")
	require.NoError(t, err)
	assert.Empty(t, id)

	_, err = DecodeCursor("!!not-base64!!")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestFetchNextBatchWalksWholeChain(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	for i := 0; i < 25; i++ {
		e.addProfile(t, models.Profile{ID: fmt.Sprintf("u%02d", i), Username: fmt.Sprintf("user %d", i)})
	}
	me := "u07"

	seen := map[string]bool{}
	cursor := ""
	var sizes []int
	for {
		batch, err := e.discovery.FetchNextBatch(ctx, me, cursor, 10)
		require.NoError(t, err)
		sizes = append(sizes, len(batch.Cards))
		for _, c := range batch.Cards {
			assert.NotEqual(t, me, c.ID, "requester returned")
			assert.False(t, seen[c.ID], "repeated %s", c.ID)
			seen[c.ID] = true
		}
		if batch.NextCursor == "" {
			break
		}
		cursor = batch.NextCursor
	}

	assert.Equal(t, []int{10, 10, 4}, sizes)
	assert.Len(t, seen, 24)
}

func TestFetchNextBatchExcludesSwiped(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c", "d"} {
		e.addProfile(t, models.Profile{ID: id})
	}
	require.NoError(t, e.stores.Swipes.Upsert(ctx, &models.Swipe{SwiperID: "a", TargetID: "b", Action: models.SwipePass}))
	require.NoError(t, e.stores.Swipes.Upsert(ctx, &models.Swipe{SwiperID: "c", TargetID: "d", Action: models.SwipeLike}))

	batch, err := e.discovery.FetchNextBatch(ctx, "a", "", 0)
	require.NoError(t, err)
	var ids []string
	for _, c := range batch.Cards {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []string{"c", "d"}, ids)
	assert.Empty(t, batch.NextCursor)
}

func TestFetchNextBatchClampsLimit(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	for i := 0; i < 60; i++ {
		e.addProfile(t, models.Profile{ID: fmt.Sprintf("p%02d", i)})
	}

	batch, err := e.discovery.FetchNextBatch(ctx, "p00", "", 500)
	require.NoError(t, err)
	assert.Len(t, batch.Cards, MaxBatchSize)
	assert.NotEmpty(t, batch.NextCursor)

	_, err = e.discovery.FetchNextBatch(ctx, "nobody", "", 5)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = e.discovery.FetchNextBatch(ctx, "p00", "%%%", 5)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCardAgeAndDistance(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.discovery.now = func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }

	// Addis Ababa and Adama, roughly 75 km apart
	e.addProfile(t, models.Profile{ID: "a", Latitude: ptr(9.0300), Longitude: ptr(38.7400)})
	e.addProfile(t, models.Profile{ID: "b", DateOfBirth: "1996-07-01", Latitude: ptr(8.5400), Longitude: ptr(39.2700),
		Interests: models.NewFlags(map[string]bool{"Music": true})})
	e.addProfile(t, models.Profile{ID: "c"})

	batch, err := e.discovery.FetchNextBatch(ctx, "a", "", 10)
	require.NoError(t, err)
	require.Len(t, batch.Cards, 2)

	b := batch.Cards[0]
	require.NotNil(t, b.Age)
	assert.Equal(t, 27, *b.Age)
	require.NotNil(t, b.DistanceKm)
	assert.InDelta(t, 79, *b.DistanceKm, 5)
	assert.True(t, b.Interests["Music"])

	c := batch.Cards[1]
	assert.Nil(t, c.Age)
	assert.Nil(t, c.DistanceKm)
	assert.NotNil(t, c.Interests)
}

func TestHaversineKm(t *testing.T) {
	assert.InDelta(t, 0, HaversineKm(1, 1, 1, 1), 1e-9)
	// one degree of latitude
	assert.InDelta(t, 111.19, HaversineKm(0, 0, 1, 0), 0.01)
}

func TestRecommend(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	flags := func(keys ...string) models.Flags {
		m := map[string]bool{}
		for _, k := range keys {
			m[k] = true
		}
		return models.NewFlags(m)
	}

	e.addProfile(t, models.Profile{ID: "me", Want: models.WantSocial, Interests: flags("Music", "Travel"), Qualities: flags("Kind")})
	e.addProfile(t, models.Profile{ID: "twin", Want: models.WantSocial, Interests: flags("Music", "Travel"), Qualities: flags("Kind")})
	e.addProfile(t, models.Profile{ID: "close", Want: models.WantBoth, Interests: flags("Music"), Qualities: flags("Kind")})
	e.addProfile(t, models.Profile{ID: "far", Want: models.WantProfessional, Interests: flags("Politics"), Qualities: flags("Driven")})
	e.addProfile(t, models.Profile{ID: "gone", Want: models.WantSocial, Interests: flags("Music", "Travel"), Qualities: flags("Kind")})
	require.NoError(t, e.stores.Swipes.Upsert(ctx, &models.Swipe{SwiperID: "me", TargetID: "gone", Action: models.SwipePass}))

	cards, err := e.discovery.Recommend(ctx, "me", 10)
	require.NoError(t, err)
	require.Len(t, cards, 3)
	assert.Equal(t, "twin", cards[0].ID)
	assert.Equal(t, "close", cards[1].ID)
	assert.Equal(t, "far", cards[2].ID)
	require.NotNil(t, cards[0].Score)
	assert.InDelta(t, 1.0, *cards[0].Score, 1e-9)

	// twin passing on me drops their score below close's
	require.NoError(t, e.stores.Swipes.Upsert(ctx, &models.Swipe{SwiperID: "twin", TargetID: "me", Action: models.SwipePass}))
	require.NoError(t, e.stores.Swipes.Upsert(ctx, &models.Swipe{SwiperID: "close", TargetID: "me", Action: models.SwipeLike}))
	cards, err = e.discovery.Recommend(ctx, "me", 1)
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, "close", cards[0].ID)
}
