package services

import (
	"context"
	"fmt"

	"brewnet-server/internal/config"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// FederatedIdentity is what a verified Google/Firebase ID token tells us.
type FederatedIdentity struct {
	UID   string
	Email string
	// EmailVerified is the provider's email_verified claim. Only a verified
	// email may be linked to an existing account.
	EmailVerified bool
	Name          string
	Picture       string
	Provider      string
}

// Firebase verifies federated ID tokens and sends FCM pushes.
type Firebase struct {
	auth      *auth.Client
	messaging *messaging.Client
}

func NewFirebase(ctx context.Context, cfg *config.Config) (*Firebase, error) {
	var opts []option.ClientOption
	if cfg.FirebaseCredsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.FirebaseCredsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.FirebaseProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}

	authClient, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase auth: %w", err)
	}

	messagingClient, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase messaging: %w", err)
	}

	return &Firebase{auth: authClient, messaging: messagingClient}, nil
}

func (f *Firebase) VerifyIDToken(ctx context.Context, idToken string) (*FederatedIdentity, error) {
	token, err := f.auth.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}

	identity := &FederatedIdentity{
		UID:           token.UID,
		Email:         claimString(token.Claims, "email"),
		EmailVerified: claimBool(token.Claims, "email_verified"),
		Name:          claimString(token.Claims, "name"),
		Picture:       claimString(token.Claims, "picture"),
		Provider:      token.Firebase.SignInProvider,
	}
	return identity, nil
}

// Push sends one notification to a device token.
func (f *Firebase) Push(ctx context.Context, push Push) error {
	_, err := f.messaging.Send(ctx, &messaging.Message{
		Token: push.DeviceToken,
		Notification: &messaging.Notification{
			Title: push.Title,
			Body:  push.Body,
		},
		Data: push.Data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
	})
	if err != nil {
		if messaging.IsUnregistered(err) {
			return fmt.Errorf("%w: %v", ErrStaleDeviceToken, err)
		}
		return fmt.Errorf("fcm send: %w", err)
	}
	return nil
}

func claimString(claims map[string]interface{}, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}

func claimBool(claims map[string]interface{}, key string) bool {
	v, _ := claims[key].(bool)
	return v
}
