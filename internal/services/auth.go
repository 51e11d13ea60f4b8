package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"brewnet-server/internal/models"
	"brewnet-server/internal/redis"
	"brewnet-server/internal/store"
	"brewnet-server/internal/utils"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	maxOTPAttempts    = 5
	minPasswordLength = 8
)

// IdentityVerifier checks a federated (Google via Firebase) ID token.
type IdentityVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*FederatedIdentity, error)
}

type AuthConfig struct {
	OTPExpiry        time.Duration
	PasswordResetTTL time.Duration
}

type AuthResult struct {
	Profile   *models.Profile  `json:"user"`
	Tokens    *utils.TokenPair `json:"tokens"`
	IsNewUser bool             `json:"is_new_user"`
}

// PhoneVerification is returned when a code has been issued. Code is only
// filled in so that the handler can echo it in development.
type PhoneVerification struct {
	VerificationID string
	Phone          string
	Code           string
	ExpiresAt      time.Time
}

type SignUpInput struct {
	Email           string
	Phone           string
	Password        string
	ConfirmPassword string
}

type AuthService struct {
	profiles store.ProfileStore
	kv       redis.Store
	tokens   *utils.TokenIssuer
	verifier IdentityVerifier
	cfg      AuthConfig
	log      logrus.FieldLogger
	now      func() time.Time
}

// NewAuthService accepts a nil verifier; federated sign-in then reports ErrUnavailable.
func NewAuthService(profiles store.ProfileStore, kv redis.Store, tokens *utils.TokenIssuer,
	verifier IdentityVerifier, cfg AuthConfig, log logrus.FieldLogger) *AuthService {
	return &AuthService{
		profiles: profiles,
		kv:       kv,
		tokens:   tokens,
		verifier: verifier,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
}

func sessionPrefix(userID string) string { return "session:" + userID + ":" }

func sessionKey(userID, sessionID string) string { return sessionPrefix(userID) + sessionID }

func otpKey(verificationID string) string { return "otp:" + verificationID }

func otpPhoneKey(phone string) string { return "otp:phone:" + phone }

func otpAttemptsKey(verificationID string) string { return "otp:attempts:" + verificationID }

func resetKey(token string) string { return "pwreset:" + token }

func (s *AuthService) SignUpWithEmail(ctx context.Context, in SignUpInput) (*AuthResult, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if in.Password != in.ConfirmPassword {
		return nil, invalid("passwords do not match")
	}
	if len(in.Password) < minPasswordLength {
		return nil, invalid("password must be at least 8 characters")
	}

	if _, err := s.profiles.GetByEmail(ctx, email); err == nil {
		return nil, fmt.Errorf("%w: email is already registered", ErrAlreadyExists)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	var phone *string
	if strings.TrimSpace(in.Phone) != "" {
		formatted, err := utils.FormatPhoneNumber(in.Phone)
		if err != nil {
			return nil, invalid(err.Error())
		}
		if _, err := s.profiles.GetByPhone(ctx, formatted); err == nil {
			return nil, fmt.Errorf("%w: phone number is already registered", ErrAlreadyExists)
		} else if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		phone = &formatted
	}

	hash, err := utils.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	profile := &models.Profile{
		ID:           uuid.NewString(),
		Username:     strings.SplitN(email, "@", 2)[0],
		Email:        &email,
		PhoneNumber:  phone,
		PasswordHash: hash,
		AuthProvider: models.AuthProviderEmail,
		Interests:    models.NewFlags(nil),
		Qualities:    models.NewFlags(nil),
		IsOnline:     true,
		LastActive:   &now,
	}
	if err := s.profiles.Create(ctx, profile); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, fmt.Errorf("%w: account already exists", ErrAlreadyExists)
		}
		return nil, err
	}

	tokens, err := s.startSession(ctx, profile.ID)
	if err != nil {
		return nil, err
	}
	s.log.WithField("user_id", profile.ID).Info("User signed up with email")
	return &AuthResult{Profile: profile, Tokens: tokens, IsNewUser: true}, nil
}

func (s *AuthService) SignInWithEmail(ctx context.Context, email, password string) (*AuthResult, error) {
	profile, err := s.profiles.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if profile.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}

	ok, err := utils.VerifyPassword(password, profile.PasswordHash)
	if err != nil || !ok {
		return nil, ErrInvalidCredentials
	}

	return s.signIn(ctx, profile, false)
}

// StartPhoneVerification issues a new code for phone and invalidates any
// code issued before.
func (s *AuthService) StartPhoneVerification(ctx context.Context, phone string) (*PhoneVerification, error) {
	formatted, err := utils.FormatPhoneNumber(phone)
	if err != nil {
		return nil, invalid(err.Error())
	}

	if previous, err := s.kv.Get(ctx, otpPhoneKey(formatted)); err == nil {
		if err := s.kv.Del(ctx, otpKey(previous), otpAttemptsKey(previous)); err != nil {
			return nil, fmt.Errorf("invalidate previous code: %w", err)
		}
	} else if !errors.Is(err, redis.ErrMiss) {
		return nil, err
	}

	code, err := utils.GenerateOTP()
	if err != nil {
		return nil, fmt.Errorf("generate code: %w", err)
	}
	verificationID := uuid.NewString()

	if err := s.kv.Set(ctx, otpKey(verificationID), formatted+"|"+code, s.cfg.OTPExpiry); err != nil {
		return nil, fmt.Errorf("store code: %w", err)
	}
	if err := s.kv.Set(ctx, otpPhoneKey(formatted), verificationID, s.cfg.OTPExpiry); err != nil {
		return nil, fmt.Errorf("store code: %w", err)
	}

	// No SMS gateway is wired; the code goes to the log at debug level.
	s.log.WithFields(logrus.Fields{"phone": formatted, "verification_id": verificationID}).Info("Phone verification code issued")
	s.log.WithFields(logrus.Fields{"phone": formatted, "code": code}).Debug("Phone verification code")

	return &PhoneVerification{
		VerificationID: verificationID,
		Phone:          formatted,
		Code:           code,
		ExpiresAt:      s.now().Add(s.cfg.OTPExpiry),
	}, nil
}

func (s *AuthService) ResendPhoneVerification(ctx context.Context, phone string) (*PhoneVerification, error) {
	return s.StartPhoneVerification(ctx, phone)
}

// VerifyPhoneCode consumes the code and signs the phone in, creating the
// profile on first verification.
func (s *AuthService) VerifyPhoneCode(ctx context.Context, verificationID, code string) (*AuthResult, error) {
	stored, err := s.kv.Get(ctx, otpKey(verificationID))
	if errors.Is(err, redis.ErrMiss) {
		return nil, ErrInvalidOTP
	}
	if err != nil {
		return nil, err
	}
	phone, expected, found := strings.Cut(stored, "|")
	if !found {
		return nil, ErrInvalidOTP
	}

	if !utils.OTPMatches(expected, code) {
		attempts, err := s.kv.Incr(ctx, otpAttemptsKey(verificationID))
		if err != nil {
			return nil, err
		}
		if attempts == 1 {
			_ = s.kv.Expire(ctx, otpAttemptsKey(verificationID), s.cfg.OTPExpiry)
		}
		if attempts >= maxOTPAttempts {
			_ = s.kv.Del(ctx, otpKey(verificationID), otpPhoneKey(phone), otpAttemptsKey(verificationID))
		}
		return nil, ErrInvalidOTP
	}

	// GetDel makes a concurrent second verification of the same code fail.
	if _, err := s.kv.GetDel(ctx, otpKey(verificationID)); errors.Is(err, redis.ErrMiss) {
		return nil, ErrInvalidOTP
	} else if err != nil {
		return nil, err
	}
	_ = s.kv.Del(ctx, otpPhoneKey(phone), otpAttemptsKey(verificationID))

	profile, err := s.profiles.GetByPhone(ctx, phone)
	if err == nil {
		return s.signIn(ctx, profile, false)
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	profile = &models.Profile{
		ID:           uuid.NewString(),
		PhoneNumber:  &phone,
		AuthProvider: models.AuthProviderPhone,
		Interests:    models.NewFlags(nil),
		Qualities:    models.NewFlags(nil),
	}
	if err := s.profiles.Create(ctx, profile); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, fmt.Errorf("%w: phone number is already registered", ErrAlreadyExists)
		}
		return nil, err
	}
	s.log.WithField("user_id", profile.ID).Info("User signed up with phone")
	return s.signIn(ctx, profile, true)
}

func (s *AuthService) SignInWithFederatedToken(ctx context.Context, idToken string) (*AuthResult, error) {
	if s.verifier == nil {
		return nil, fmt.Errorf("%w: federated sign-in is disabled", ErrUnavailable)
	}
	identity, err := s.verifier.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, err
	}

	profile, err := s.profiles.GetByFirebaseUID(ctx, identity.UID)
	if err == nil {
		return s.signIn(ctx, profile, false)
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	email := strings.ToLower(identity.Email)
	if email != "" {
		existing, err := s.profiles.GetByEmail(ctx, email)
		if err == nil {
			// Linking hands the account to whoever holds the token, so the
			// provider must have proven ownership of the address.
			if !identity.EmailVerified {
				s.log.WithField("user_id", existing.ID).Warn("Refused federated link: email not verified")
				return nil, fmt.Errorf("%w: email is registered to another account", ErrAlreadyExists)
			}
			if err := s.profiles.Patch(ctx, existing.ID, map[string]interface{}{"firebase_uid": identity.UID}); err != nil {
				return nil, err
			}
			uid := identity.UID
			existing.FirebaseUID = &uid
			return s.signIn(ctx, existing, false)
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}

	uid := identity.UID
	profile = &models.Profile{
		ID:              uuid.NewString(),
		Username:        identity.Name,
		FirebaseUID:     &uid,
		ProfileImageURL: identity.Picture,
		AuthProvider:    models.AuthProviderGoogle,
		Interests:       models.NewFlags(nil),
		Qualities:       models.NewFlags(nil),
	}
	if email != "" && identity.EmailVerified {
		profile.Email = &email
	}
	if err := s.profiles.Create(ctx, profile); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, fmt.Errorf("%w: account already exists", ErrAlreadyExists)
		}
		return nil, err
	}
	s.log.WithField("user_id", profile.ID).Info("User signed up with Google")
	return s.signIn(ctx, profile, true)
}

// Refresh rotates a live session: the old session is consumed and a new
// one with a fresh id is started, so a refresh token works exactly once.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*utils.TokenPair, error) {
	claims, err := s.tokens.Parse(refreshToken, utils.TokenTypeRefresh)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if _, err := s.kv.GetDel(ctx, sessionKey(claims.UserID, claims.SessionID)); err != nil {
		if errors.Is(err, redis.ErrMiss) {
			s.log.WithField("user_id", claims.UserID).Warn("Refresh with consumed or expired session")
			return nil, ErrSessionExpired
		}
		return nil, fmt.Errorf("consume session: %w", err)
	}
	return s.startSession(ctx, claims.UserID)
}

// ValidateAccessToken parses the token and checks its session is still live.
func (s *AuthService) ValidateAccessToken(ctx context.Context, accessToken string) (*utils.Claims, error) {
	claims, err := s.tokens.Parse(accessToken, utils.TokenTypeAccess)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if err := s.requireSession(ctx, claims.UserID, claims.SessionID); err != nil {
		return nil, err
	}
	return claims, nil
}

func (s *AuthService) SignOut(ctx context.Context, userID, sessionID string) error {
	if err := s.kv.Del(ctx, sessionKey(userID, sessionID)); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	now := s.now().UTC()
	if err := s.profiles.Patch(ctx, userID, map[string]interface{}{"is_online": false, "last_active": now}); err != nil &&
		!errors.Is(err, store.ErrNotFound) {
		s.log.WithError(err).WithField("user_id", userID).Warn("Failed to mark user offline")
	}
	return nil
}

// RequestPasswordReset returns an empty token, and no error, for unknown
// emails so the endpoint does not reveal which emails are registered.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	profile, err := s.profiles.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	token := uuid.NewString()
	if err := s.kv.Set(ctx, resetKey(token), profile.ID, s.cfg.PasswordResetTTL); err != nil {
		return "", fmt.Errorf("store reset token: %w", err)
	}
	s.log.WithField("user_id", profile.ID).Info("Password reset requested")
	return token, nil
}

func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return invalid("password must be at least 8 characters")
	}
	userID, err := s.kv.GetDel(ctx, resetKey(token))
	if errors.Is(err, redis.ErrMiss) {
		return ErrInvalidToken
	}
	if err != nil {
		return err
	}

	hash, err := utils.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.profiles.Patch(ctx, userID, map[string]interface{}{"password_hash": hash}); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidToken
		}
		return err
	}
	if err := s.kv.DelPrefix(ctx, sessionPrefix(userID)); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	s.log.WithField("user_id", userID).Info("Password reset, sessions revoked")
	return nil
}

func (s *AuthService) signIn(ctx context.Context, profile *models.Profile, isNew bool) (*AuthResult, error) {
	tokens, err := s.startSession(ctx, profile.ID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if err := s.profiles.Patch(ctx, profile.ID, map[string]interface{}{"is_online": true, "last_active": now}); err != nil {
		s.log.WithError(err).WithField("user_id", profile.ID).Warn("Failed to mark user online")
	} else {
		profile.IsOnline = true
		profile.LastActive = &now
	}
	return &AuthResult{Profile: profile, Tokens: tokens, IsNewUser: isNew}, nil
}

func (s *AuthService) startSession(ctx context.Context, userID string) (*utils.TokenPair, error) {
	pair, err := s.tokens.IssuePair(userID, "")
	if err != nil {
		return nil, err
	}
	if err := s.kv.Set(ctx, sessionKey(userID, pair.SessionID), "1", s.tokens.RefreshExpiry()); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	return pair, nil
}

func (s *AuthService) requireSession(ctx context.Context, userID, sessionID string) error {
	live, err := s.kv.Exists(ctx, sessionKey(userID, sessionID))
	if err != nil {
		return fmt.Errorf("check session: %w", err)
	}
	if !live {
		return ErrSessionExpired
	}
	return nil
}
