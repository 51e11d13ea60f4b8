package handlers

import (
	"errors"
	"net/http"

	"brewnet-server/internal/middleware"
	"brewnet-server/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// respondError maps service sentinels to a status and the single
// {"error": ...} body clients show. Unknown errors are logged and hidden.
func respondError(c *gin.Context, log logrus.FieldLogger, err error) {
	status := http.StatusInternalServerError
	msg := "Internal server error"

	switch {
	case errors.Is(err, services.ErrInvalidInput), errors.Is(err, services.ErrSelfChat),
		errors.Is(err, services.ErrInvalidOTP):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, services.ErrInvalidCredentials):
		status, msg = http.StatusUnauthorized, "Invalid email or password"
	case errors.Is(err, services.ErrInvalidToken), errors.Is(err, services.ErrSessionExpired):
		status, msg = http.StatusUnauthorized, err.Error()
	case errors.Is(err, services.ErrForbidden):
		status, msg = http.StatusForbidden, "Access denied"
	case errors.Is(err, services.ErrNotFound):
		status, msg = http.StatusNotFound, err.Error()
	case errors.Is(err, services.ErrAlreadyExists):
		status, msg = http.StatusConflict, err.Error()
	case errors.Is(err, services.ErrUnavailable):
		status, msg = http.StatusServiceUnavailable, err.Error()
	default:
		log.WithError(err).WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.FullPath(),
		}).Error("Request failed")
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": msg})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func currentUser(c *gin.Context) string {
	return c.GetString(middleware.UserIDKey)
}
