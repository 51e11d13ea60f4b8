package handlers

import (
	"net/http"

	"brewnet-server/internal/config"

	"github.com/gin-gonic/gin"
)

// ClientConfig hands the client the keys it needs but must not embed.
func ClientConfig(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"maps_api_key": cfg.MapsAPIKey})
	}
}
