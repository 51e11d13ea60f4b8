package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"brewnet-server/internal/config"
	"brewnet-server/internal/models"
	"brewnet-server/internal/redis"
	"brewnet-server/internal/services"
	"brewnet-server/internal/store/storetest"
	"brewnet-server/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type memBlobs struct {
	objects map[string][]byte
}

func (m *memBlobs) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.objects[key] = body
	return "https://cdn.test/" + key, nil
}

func (m *memBlobs) Delete(ctx context.Context, fileURL string) error { return nil }

func (m *memBlobs) PresignedURL(ctx context.Context, key string, expiration time.Duration) (string, error) {
	return "https://cdn.test/" + key + "?sig=1", nil
}

func (m *memBlobs) EnsureBucket(ctx context.Context) error { return nil }

type app struct {
	router *gin.Engine
	stores *storetest.Stores
	blobs  *memBlobs
	// socketUsers records the user each /ws upgrade was handed.
	socketUsers []string
}

func newApp(t *testing.T) *app {
	t.Helper()
	logger, _ := test.NewNullLogger()
	cfg := &config.Config{
		OTPExpose:          true,
		MapsAPIKey:         "maps-key",
		MaxFileSize:        1024,
		AllowedImageTypes:  []string{"image/jpeg", "image/png"},
		RateLimitPerMinute: 1000,
		CORSAllowedOrigins: []string{"*"},
	}
	stores := storetest.New()
	kv := redis.NewMemory()
	blobs := &memBlobs{objects: map[string][]byte{}}

	tokens := utils.NewTokenIssuer("handler-test-secret-0123", time.Hour, 24*time.Hour)
	auth := services.NewAuthService(stores.Profiles, kv, tokens, nil,
		services.AuthConfig{OTPExpiry: time.Minute, PasswordResetTTL: time.Hour}, logger)
	profiles := services.NewProfileService(stores.Profiles, blobs,
		services.ImageConfig{MaxFileSize: cfg.MaxFileSize, AllowedTypes: cfg.AllowedImageTypes}, logger)
	chats := services.NewChatService(stores.Chats, stores.Messages, stores.Profiles, nil, nil, logger)
	discovery := services.NewDiscoveryService(stores.Profiles, stores.Swipes, 10, logger)
	swipes := services.NewSwipeService(stores.Swipes, stores.Profiles, chats, logger)

	a := &app{stores: stores, blobs: blobs}
	a.router = SetupRoutes(Router{
		Auth:      NewAuthHandler(auth, cfg, logger),
		Users:     NewUserHandler(profiles, discovery, cfg, logger),
		Matches:   NewMatchHandler(swipes, discovery, logger),
		Messages:  NewMessageHandler(chats, logger),
		Validator: auth,
		Limits:    kv,
		WebSocket: func(c *gin.Context, userID string) {
			a.socketUsers = append(a.socketUsers, userID)
			c.Status(http.StatusSwitchingProtocols)
		},
		Config: cfg,
		Log:    logger,
	})
	return a
}

func (a *app) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

type authBody struct {
	User struct {
		ID string `json:"userId"`
	} `json:"user"`
	Tokens struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	} `json:"tokens"`
	IsNewUser bool `json:"is_new_user"`
}

// signUp returns the new user's id and access token.
func (a *app) signUp(t *testing.T, email string) (string, string) {
	t.Helper()
	w := a.do(t, http.MethodPost, "/api/v1/auth/signup", "", gin.H{
		"email": email, "password": "s3cret-pass", "confirm_password": "s3cret-pass",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var body authBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.User.ID, body.Tokens.AccessToken
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func TestHealthAndClientConfig(t *testing.T) {
	a := newApp(t)
	assert.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/health", "", nil).Code)

	w := a.do(t, http.MethodGet, "/api/v1/config", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"maps_api_key":"maps-key"}`, w.Body.String())

	w = a.do(t, http.MethodGet, "/api/v1/catalog", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Photography")
}

func TestEmailAuthFlow(t *testing.T) {
	a := newApp(t)
	_, token := a.signUp(t, "ana@example.com")

	w := a.do(t, http.MethodPost, "/api/v1/auth/signup", "", gin.H{
		"email": "ana@example.com", "password": "s3cret-pass", "confirm_password": "s3cret-pass",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = a.do(t, http.MethodPost, "/api/v1/auth/signup", "", gin.H{"email": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(t, http.MethodPost, "/api/v1/auth/signin", "", gin.H{"email": "ana@example.com", "password": "wrong-pass"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"Invalid email or password"}`, w.Body.String())

	w = a.do(t, http.MethodPost, "/api/v1/auth/signin", "", gin.H{"email": "ana@example.com", "password": "s3cret-pass"})
	require.Equal(t, http.StatusOK, w.Code)
	var signedIn authBody
	decode(t, w, &signedIn)
	assert.False(t, signedIn.IsNewUser)

	w = a.do(t, http.MethodPost, "/api/v1/auth/refresh", "", gin.H{"refresh_token": signedIn.Tokens.RefreshToken})
	assert.Equal(t, http.StatusOK, w.Code)
	w = a.do(t, http.MethodPost, "/api/v1/auth/refresh", "", gin.H{"refresh_token": signedIn.Tokens.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	assert.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/api/v1/users/profile", token, nil).Code)
	assert.Equal(t, http.StatusOK, a.do(t, http.MethodPost, "/api/v1/auth/logout", token, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, a.do(t, http.MethodGet, "/api/v1/users/profile", token, nil).Code)
}

func TestPhoneAuthFlow(t *testing.T) {
	a := newApp(t)

	w := a.do(t, http.MethodPost, "/api/v1/auth/phone/start", "", gin.H{"phone": "+251 911 234 567"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var started PhoneVerificationResponse
	decode(t, w, &started)
	require.Len(t, started.Code, 6)

	w = a.do(t, http.MethodPost, "/api/v1/auth/phone/verify", "", gin.H{
		"verification_id": started.VerificationID, "code": started.Code,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var verified authBody
	decode(t, w, &verified)
	assert.True(t, verified.IsNewUser)

	w = a.do(t, http.MethodPost, "/api/v1/auth/phone/start", "", gin.H{"phone": "0911"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(t, http.MethodPost, "/api/v1/auth/google", "", gin.H{"id_token": "x"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestPasswordResetFlow(t *testing.T) {
	a := newApp(t)
	a.signUp(t, "ana@example.com")

	w := a.do(t, http.MethodPost, "/api/v1/auth/password/forgot", "", gin.H{"email": "nobody@example.com"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "reset_token")

	w = a.do(t, http.MethodPost, "/api/v1/auth/password/forgot", "", gin.H{"email": "ana@example.com"})
	require.Equal(t, http.StatusOK, w.Code)
	var forgot struct {
		ResetToken string `json:"reset_token"`
	}
	decode(t, w, &forgot)
	require.NotEmpty(t, forgot.ResetToken)

	w = a.do(t, http.MethodPost, "/api/v1/auth/password/reset", "", gin.H{"token": forgot.ResetToken, "password": "new-pass-123"})
	assert.Equal(t, http.StatusOK, w.Code)
	w = a.do(t, http.MethodPost, "/api/v1/auth/password/reset", "", gin.H{"token": forgot.ResetToken, "password": "new-pass-123"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = a.do(t, http.MethodPost, "/api/v1/auth/signin", "", gin.H{"email": "ana@example.com", "password": "new-pass-123"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestOnboardingSteps(t *testing.T) {
	a := newApp(t)
	_, token := a.signUp(t, "ana@example.com")

	w := a.do(t, http.MethodGet, "/api/v1/users/profile/complete", token, nil)
	assert.JSONEq(t, `{"complete":false}`, w.Body.String())

	w = a.do(t, http.MethodPatch, "/api/v1/users/profile/basics", token, gin.H{
		"username": "Ana", "date_of_birth": "1995-03-14", "gender": "Female", "bio": "hi",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = a.do(t, http.MethodPatch, "/api/v1/users/profile/basics", token, gin.H{
		"username": "Ana", "date_of_birth": "2020-03-14", "gender": "Female",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "18 or older")

	w = a.do(t, http.MethodPatch, "/api/v1/users/profile/location", token, gin.H{
		"latitude": 9.03, "longitude": 38.74, "location_name": "Addis Ababa",
	})
	assert.Equal(t, http.StatusOK, w.Code)
	w = a.do(t, http.MethodPatch, "/api/v1/users/profile/location", token, gin.H{"latitude": 100, "longitude": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Equal(t, http.StatusOK, a.do(t, http.MethodPatch, "/api/v1/users/profile/purpose", token, gin.H{"purpose": "Networking"}).Code)
	assert.Equal(t, http.StatusOK, a.do(t, http.MethodPatch, "/api/v1/users/profile/seek", token, gin.H{"want": "both"}).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodPatch, "/api/v1/users/profile/seek", token, gin.H{"want": "romance"}).Code)
	assert.Equal(t, http.StatusOK, a.do(t, http.MethodPatch, "/api/v1/users/profile/interests", token,
		gin.H{"selected": gin.H{"Music": true}}).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodPatch, "/api/v1/users/profile/qualities", token,
		gin.H{"selected": gin.H{"Flying": true}}).Code)
	assert.Equal(t, http.StatusOK, a.do(t, http.MethodPut, "/api/v1/users/status", token, gin.H{"is_online": false}).Code)
	assert.Equal(t, http.StatusOK, a.do(t, http.MethodPut, "/api/v1/users/device-token", token, gin.H{"token": "fcm"}).Code)

	w = a.do(t, http.MethodGet, "/api/v1/users/profile", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got struct {
		User models.Profile `json:"user"`
	}
	decode(t, w, &got)
	assert.Equal(t, "Ana", got.User.Username)
	assert.Equal(t, "Addis Ababa", got.User.LocationName)
	assert.Equal(t, models.WantBoth, got.User.Want)
	assert.False(t, got.User.IsOnline)

	w = a.do(t, http.MethodGet, "/api/v1/users/profile/complete", token, nil)
	assert.JSONEq(t, `{"complete":true}`, w.Body.String())
}

func multipartImage(t *testing.T, contentType string, body []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="image"; filename="me.png"`)
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(body)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestProfilePhoto(t *testing.T) {
	a := newApp(t)
	userID, token := a.signUp(t, "ana@example.com")

	upload := func(contentType string, body []byte) *httptest.ResponseRecorder {
		buf, ct := multipartImage(t, contentType, body)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/users/profile/photo", buf)
		req.Header.Set("Content-Type", ct)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		a.router.ServeHTTP(w, req)
		return w
	}

	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)
	w := upload("", png)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "https://cdn.test/profile_images/"+userID+"?v=")
	assert.Equal(t, png, a.blobs.objects["profile_images/"+userID])

	assert.Equal(t, http.StatusBadRequest, upload("image/gif", []byte("GIF89a")).Code)
	assert.Equal(t, http.StatusBadRequest, upload("image/png", make([]byte, 2048)).Code)

	w = a.do(t, http.MethodGet, "/api/v1/profiles/"+userID+"/photo", token, nil)
	assert.Equal(t, http.StatusTemporaryRedirect, w.Code)
	assert.Equal(t, "https://cdn.test/profile_images/"+userID+"?sig=1", w.Header().Get("Location"))

	assert.Equal(t, http.StatusOK, a.do(t, http.MethodDelete, "/api/v1/users/profile/photo", token, nil).Code)
	assert.Equal(t, http.StatusNotFound, a.do(t, http.MethodGet, "/api/v1/profiles/"+userID+"/photo", token, nil).Code)
}

func TestDiscoverAndSwipe(t *testing.T) {
	a := newApp(t)
	anaID, anaToken := a.signUp(t, "ana@example.com")
	benID, benToken := a.signUp(t, "ben@example.com")
	for i := 0; i < 3; i++ {
		require.NoError(t, a.stores.Profiles.Create(context.Background(), &models.Profile{
			ID: fmt.Sprintf("extra-%d", i), Interests: models.NewFlags(nil), Qualities: models.NewFlags(nil),
		}))
	}

	seen := map[string]bool{}
	cursor := ""
	for page := 0; ; page++ {
		require.Less(t, page, 10)
		w := a.do(t, http.MethodGet, "/api/v1/users/discover?limit=2&cursor="+cursor, anaToken, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var batch services.CardBatch
		decode(t, w, &batch)
		for _, card := range batch.Cards {
			assert.NotEqual(t, anaID, card.ID)
			assert.False(t, seen[card.ID], "repeated %s", card.ID)
			seen[card.ID] = true
		}
		if batch.NextCursor == "" {
			break
		}
		cursor = batch.NextCursor
	}
	assert.Len(t, seen, 4)

	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodGet, "/api/v1/users/discover?limit=x", anaToken, nil).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodGet, "/api/v1/users/discover?cursor=%25%25", anaToken, nil).Code)

	w := a.do(t, http.MethodPost, "/api/v1/matches/swipe", anaToken, gin.H{"target_id": benID, "action": "like"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"action":"like","matched":false}`, w.Body.String())

	w = a.do(t, http.MethodPost, "/api/v1/matches/swipe", benToken, gin.H{"target_id": anaID, "action": "like"})
	require.Equal(t, http.StatusOK, w.Code)
	var result services.SwipeResult
	decode(t, w, &result)
	assert.True(t, result.Matched)
	assert.NotEmpty(t, result.ChatID)

	w = a.do(t, http.MethodPost, "/api/v1/matches/swipe", anaToken, gin.H{"target_id": benID, "action": "superlike"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(t, http.MethodGet, "/api/v1/matches/likes", anaToken, nil)
	assert.JSONEq(t, fmt.Sprintf(`{"likes":[%q]}`, benID), w.Body.String())

	// swiped profiles leave the deck
	w = a.do(t, http.MethodGet, "/api/v1/users/discover?limit=50", anaToken, nil)
	assert.NotContains(t, w.Body.String(), benID)

	w = a.do(t, http.MethodGet, "/api/v1/matches/recommendations?limit=2", anaToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var rec struct {
		Cards []services.Card `json:"cards"`
	}
	decode(t, w, &rec)
	assert.Len(t, rec.Cards, 2)
}

func TestChatFlow(t *testing.T) {
	a := newApp(t)
	anaID, anaToken := a.signUp(t, "ana@example.com")
	benID, benToken := a.signUp(t, "ben@example.com")
	_, eveToken := a.signUp(t, "eve@example.com")

	w := a.do(t, http.MethodPost, "/api/v1/chats", anaToken, gin.H{"user_id": benID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var created struct {
		Chat models.Chat `json:"chat"`
	}
	decode(t, w, &created)
	chatID := created.Chat.ID

	w = a.do(t, http.MethodPost, "/api/v1/chats", benToken, gin.H{"user_id": anaID})
	decode(t, w, &created)
	assert.Equal(t, chatID, created.Chat.ID)

	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodPost, "/api/v1/chats", anaToken, gin.H{"user_id": anaID}).Code)

	base := "/api/v1/chats/" + chatID
	w = a.do(t, http.MethodPost, base+"/messages", anaToken, gin.H{"content": "hello"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodPost, base+"/messages", anaToken, gin.H{"content": ""}).Code)
	assert.Equal(t, http.StatusForbidden, a.do(t, http.MethodPost, base+"/messages", eveToken, gin.H{"content": "hi"}).Code)
	assert.Equal(t, http.StatusForbidden, a.do(t, http.MethodGet, base+"/messages", eveToken, nil).Code)
	assert.Equal(t, http.StatusNotFound, a.do(t, http.MethodGet, "/api/v1/chats/nope/messages", anaToken, nil).Code)

	w = a.do(t, http.MethodGet, "/api/v1/chats", benToken, nil)
	var list struct {
		Chats []models.ChatUser `json:"chats"`
	}
	decode(t, w, &list)
	require.Len(t, list.Chats, 1)
	assert.Equal(t, "hello", list.Chats[0].LastMessage)
	assert.Equal(t, 1, list.Chats[0].UnreadCount)
	assert.Equal(t, "ana", list.Chats[0].Username)

	w = a.do(t, http.MethodGet, base, benToken, nil)
	assert.Contains(t, w.Body.String(), `"username":"ana"`)

	w = a.do(t, http.MethodPut, base+"/read", benToken, nil)
	assert.JSONEq(t, `{"marked_read":1}`, w.Body.String())

	w = a.do(t, http.MethodGet, base+"/messages", benToken, nil)
	var msgs struct {
		Messages []models.Message `json:"messages"`
	}
	decode(t, w, &msgs)
	require.Len(t, msgs.Messages, 1)
	assert.True(t, msgs.Messages[0].IsRead)
	assert.Equal(t, benID, msgs.Messages[0].ReceiverID)
}

func TestRespondErrorMapping(t *testing.T) {
	logger, hook := test.NewNullLogger()
	tests := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("%w: chat x", services.ErrNotFound), http.StatusNotFound},
		{services.ErrSelfChat, http.StatusBadRequest},
		{services.ErrInvalidOTP, http.StatusBadRequest},
		{services.ErrSessionExpired, http.StatusUnauthorized},
		{services.ErrForbidden, http.StatusForbidden},
		{services.ErrAlreadyExists, http.StatusConflict},
		{services.ErrUnavailable, http.StatusServiceUnavailable},
		{errors.New("pq: connection refused"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		respondError(c, logger, tt.err)
		assert.Equal(t, tt.status, w.Code, tt.err.Error())
	}

	// internals are logged, not echoed
	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, "pq: connection refused", hook.LastEntry().Data["error"].(error).Error())
}

func TestWebSocketReceivesAuthenticatedUser(t *testing.T) {
	a := newApp(t)
	userID, token := a.signUp(t, "ws@example.com")

	assert.Equal(t, http.StatusUnauthorized, a.do(t, http.MethodGet, "/api/v1/ws", "", nil).Code)
	assert.Empty(t, a.socketUsers)

	w := a.do(t, http.MethodGet, "/api/v1/ws?token="+token, "", nil)
	assert.Equal(t, http.StatusSwitchingProtocols, w.Code)
	require.Len(t, a.socketUsers, 1)
	assert.Equal(t, userID, a.socketUsers[0])
}
