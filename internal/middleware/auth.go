package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"brewnet-server/internal/services"
	"brewnet-server/internal/utils"

	"github.com/gin-gonic/gin"
)

// Context keys set by AuthRequired.
const (
	UserIDKey    = "user_id"
	SessionIDKey = "session_id"
)

type TokenValidator interface {
	ValidateAccessToken(ctx context.Context, token string) (*utils.Claims, error)
}

// AuthRequired accepts a Bearer header or, for websocket upgrades where
// browsers cannot set headers, a token query parameter.
func AuthRequired(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Bearer token required"})
			return
		}

		claims, err := validator.ValidateAccessToken(c.Request.Context(), tokenString)
		if err != nil {
			msg := "Invalid token"
			if errors.Is(err, services.ErrSessionExpired) {
				msg = "Session expired"
			} else if !errors.Is(err, services.ErrInvalidToken) {
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Unable to verify session"})
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Set(SessionIDKey, claims.SessionID)
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	if header := c.GetHeader("Authorization"); header != "" {
		token := strings.TrimPrefix(header, "Bearer ")
		if token == header || token == "" {
			return "", false
		}
		return token, true
	}
	if token := c.Query("token"); token != "" {
		return token, true
	}
	return "", false
}
