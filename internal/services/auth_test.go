package services

import (
	"context"
	"errors"
	"testing"

	"brewnet-server/internal/models"
	"brewnet-server/internal/store"
	"brewnet-server/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signUp(t *testing.T, e *env, email, password string) *AuthResult {
	t.Helper()
	res, err := e.auth.SignUpWithEmail(context.Background(), SignUpInput{
		Email: email, Password: password, ConfirmPassword: password,
	})
	require.NoError(t, err)
	return res
}

func TestSignUpWithEmail(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	res := signUp(t, e, "Ana@Example.com", "password123")
	assert.True(t, res.IsNewUser)
	assert.Equal(t, "ana", res.Profile.Username)
	assert.Equal(t, "ana@example.com", *res.Profile.Email)
	assert.Equal(t, models.AuthProviderEmail, res.Profile.AuthProvider)

	claims, err := e.auth.ValidateAccessToken(ctx, res.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, res.Profile.ID, claims.UserID)

	_, err = e.auth.SignUpWithEmail(ctx, SignUpInput{Email: "ana@example.com", Password: "password123", ConfirmPassword: "password123"})
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestSignUpWithEmailValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.auth.SignUpWithEmail(ctx, SignUpInput{Email: "a@b.co", Password: "password123", ConfirmPassword: "password124"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.EqualError(t, err, "passwords do not match")

	_, err = e.auth.SignUpWithEmail(ctx, SignUpInput{Email: "a@b.co", Password: "short", ConfirmPassword: "short"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = e.auth.SignUpWithEmail(ctx, SignUpInput{Email: "a@b.co", Phone: "0911", Password: "password123", ConfirmPassword: "password123"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = e.auth.SignUpWithEmail(ctx, SignUpInput{Email: "a@b.co", Phone: "+14155550123", Password: "password123", ConfirmPassword: "password123"})
	require.NoError(t, err)
	_, err = e.auth.SignUpWithEmail(ctx, SignUpInput{Email: "c@d.co", Phone: "+1 415 555 0123", Password: "password123", ConfirmPassword: "password123"})
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestSignInWithEmail(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	created := signUp(t, e, "ana@example.com", "password123")
	require.NoError(t, e.auth.SignOut(ctx, created.Profile.ID, created.Tokens.SessionID))

	res, err := e.auth.SignInWithEmail(ctx, "ANA@example.com", "password123")
	require.NoError(t, err)
	assert.False(t, res.IsNewUser)
	assert.Equal(t, created.Profile.ID, res.Profile.ID)

	stored, err := e.stores.Profiles.Get(ctx, created.Profile.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsOnline)

	_, err = e.auth.SignInWithEmail(ctx, "ana@example.com", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = e.auth.SignInWithEmail(ctx, "nobody@example.com", "password123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestPhoneVerificationFlow(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	v, err := e.auth.StartPhoneVerification(ctx, "+251 91 123 4567")
	require.NoError(t, err)
	assert.Equal(t, "+251911234567", v.Phone)

	_, err = e.auth.VerifyPhoneCode(ctx, v.VerificationID, wrongCode(v.Code))
	assert.ErrorIs(t, err, ErrInvalidOTP)

	res, err := e.auth.VerifyPhoneCode(ctx, v.VerificationID, v.Code)
	require.NoError(t, err)
	assert.True(t, res.IsNewUser)
	assert.Equal(t, models.AuthProviderPhone, res.Profile.AuthProvider)

	_, err = e.auth.VerifyPhoneCode(ctx, v.VerificationID, v.Code)
	assert.ErrorIs(t, err, ErrInvalidOTP, "codes are single use")

	again, err := e.auth.StartPhoneVerification(ctx, "+251911234567")
	require.NoError(t, err)
	res2, err := e.auth.VerifyPhoneCode(ctx, again.VerificationID, again.Code)
	require.NoError(t, err)
	assert.False(t, res2.IsNewUser)
	assert.Equal(t, res.Profile.ID, res2.Profile.ID)
}

func TestResendInvalidatesPreviousCode(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	first, err := e.auth.StartPhoneVerification(ctx, "+14155550123")
	require.NoError(t, err)
	second, err := e.auth.ResendPhoneVerification(ctx, "+14155550123")
	require.NoError(t, err)
	assert.NotEqual(t, first.VerificationID, second.VerificationID)

	_, err = e.auth.VerifyPhoneCode(ctx, first.VerificationID, first.Code)
	assert.ErrorIs(t, err, ErrInvalidOTP)

	_, err = e.auth.VerifyPhoneCode(ctx, second.VerificationID, second.Code)
	assert.NoError(t, err)
}

func TestPhoneVerificationLocksAfterAttempts(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	v, err := e.auth.StartPhoneVerification(ctx, "+14155550123")
	require.NoError(t, err)
	for i := 0; i < maxOTPAttempts; i++ {
		_, err := e.auth.VerifyPhoneCode(ctx, v.VerificationID, wrongCode(v.Code))
		require.ErrorIs(t, err, ErrInvalidOTP)
	}
	_, err = e.auth.VerifyPhoneCode(ctx, v.VerificationID, v.Code)
	assert.ErrorIs(t, err, ErrInvalidOTP)
}

type fakeVerifier struct {
	identity *FederatedIdentity
}

func (f fakeVerifier) VerifyIDToken(ctx context.Context, idToken string) (*FederatedIdentity, error) {
	if idToken != "good" {
		return nil, ErrInvalidCredentials
	}
	return f.identity, nil
}

func TestSignInWithFederatedToken(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.auth.SignInWithFederatedToken(ctx, "good")
	assert.ErrorIs(t, err, ErrUnavailable)

	e.auth.verifier = fakeVerifier{identity: &FederatedIdentity{
		UID: "fb-1", Email: "Bea@Example.com", EmailVerified: true, Name: "Bea", Picture: "https://photos.test/bea.jpg",
	}}

	_, err = e.auth.SignInWithFederatedToken(ctx, "bad")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	res, err := e.auth.SignInWithFederatedToken(ctx, "good")
	require.NoError(t, err)
	assert.True(t, res.IsNewUser)
	assert.Equal(t, "Bea", res.Profile.Username)
	assert.Equal(t, "bea@example.com", *res.Profile.Email)
	assert.Equal(t, models.AuthProviderGoogle, res.Profile.AuthProvider)

	again, err := e.auth.SignInWithFederatedToken(ctx, "good")
	require.NoError(t, err)
	assert.False(t, again.IsNewUser)
	assert.Equal(t, res.Profile.ID, again.Profile.ID)
}

func TestFederatedSignInLinksEmailAccount(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	existing := signUp(t, e, "cy@example.com", "password123")

	e.auth.verifier = fakeVerifier{identity: &FederatedIdentity{UID: "fb-2", Email: "cy@example.com", EmailVerified: true, Name: "Cy"}}
	res, err := e.auth.SignInWithFederatedToken(ctx, "good")
	require.NoError(t, err)
	assert.False(t, res.IsNewUser)
	assert.Equal(t, existing.Profile.ID, res.Profile.ID)

	linked, err := e.stores.Profiles.GetByFirebaseUID(ctx, "fb-2")
	require.NoError(t, err)
	assert.Equal(t, existing.Profile.ID, linked.ID)
}

func TestFederatedSignInRefusesUnverifiedEmail(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	victim := signUp(t, e, "dan@example.com", "password123")

	e.auth.verifier = fakeVerifier{identity: &FederatedIdentity{UID: "fb-other", Email: "Dan@example.com", Name: "Not Dan"}}
	_, err := e.auth.SignInWithFederatedToken(ctx, "good")
	assert.ErrorIs(t, err, ErrAlreadyExists)

	_, err = e.stores.Profiles.GetByFirebaseUID(ctx, "fb-other")
	assert.ErrorIs(t, err, store.ErrNotFound)
	stored, err := e.stores.Profiles.Get(ctx, victim.Profile.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.FirebaseUID)
}

func TestFederatedSignUpDropsUnverifiedEmail(t *testing.T) {
	e := newEnv(t)
	e.auth.verifier = fakeVerifier{identity: &FederatedIdentity{UID: "fb-3", Email: "fay@example.com", Name: "Fay"}}

	res, err := e.auth.SignInWithFederatedToken(context.Background(), "good")
	require.NoError(t, err)
	assert.True(t, res.IsNewUser)
	assert.Nil(t, res.Profile.Email)
}

func TestRefreshAndSignOut(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res := signUp(t, e, "dee@example.com", "password123")

	pair, err := e.auth.Refresh(ctx, res.Tokens.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, res.Tokens.SessionID, pair.SessionID)

	// The rotated-out pair is dead, including a replay of its refresh token.
	_, err = e.auth.Refresh(ctx, res.Tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrSessionExpired)
	_, err = e.auth.ValidateAccessToken(ctx, res.Tokens.AccessToken)
	assert.ErrorIs(t, err, ErrSessionExpired)
	_, err = e.auth.ValidateAccessToken(ctx, pair.AccessToken)
	require.NoError(t, err)

	_, err = e.auth.Refresh(ctx, res.Tokens.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	require.NoError(t, e.auth.SignOut(ctx, res.Profile.ID, pair.SessionID))

	_, err = e.auth.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrSessionExpired)
	_, err = e.auth.ValidateAccessToken(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, ErrSessionExpired)

	stored, err := e.stores.Profiles.Get(ctx, res.Profile.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsOnline)
}

func TestPasswordReset(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	first := signUp(t, e, "eve@example.com", "password123")
	second, err := e.auth.SignInWithEmail(ctx, "eve@example.com", "password123")
	require.NoError(t, err)

	token, err := e.auth.RequestPasswordReset(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Empty(t, token)

	token, err = e.auth.RequestPasswordReset(ctx, "eve@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	assert.ErrorIs(t, e.auth.ResetPassword(ctx, token, "short"), ErrInvalidInput)
	require.NoError(t, e.auth.ResetPassword(ctx, token, "new-password-1"))
	assert.ErrorIs(t, e.auth.ResetPassword(ctx, token, "new-password-2"), ErrInvalidToken)

	for _, tokens := range []*utils.TokenPair{first.Tokens, second.Tokens} {
		_, err = e.auth.ValidateAccessToken(ctx, tokens.AccessToken)
		assert.ErrorIs(t, err, ErrSessionExpired)
		_, err = e.auth.Refresh(ctx, tokens.RefreshToken)
		assert.ErrorIs(t, err, ErrSessionExpired)
	}

	_, err = e.auth.SignInWithEmail(ctx, "eve@example.com", "password123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = e.auth.SignInWithEmail(ctx, "eve@example.com", "new-password-1")
	assert.NoError(t, err)
}

func TestAuthStoreFailure(t *testing.T) {
	e := newEnv(t)
	boom := errors.New("db down")
	e.stores.Profiles.Err = boom

	_, err := e.auth.SignInWithEmail(context.Background(), "ana@example.com", "password123")
	assert.ErrorIs(t, err, boom)
}

func wrongCode(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}
