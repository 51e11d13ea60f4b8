package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"brewnet-server/internal/redis"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const rateLimitWindow = time.Minute

// RateLimit allows perMinute requests per user (or client IP before sign
// in) in each fixed one-minute window. Zero disables the limit. Counter
// failures let the request through.
func RateLimit(kv redis.Store, perMinute int, log logrus.FieldLogger) gin.HandlerFunc {
	now := time.Now
	return func(c *gin.Context) {
		if perMinute <= 0 {
			c.Next()
			return
		}

		subject := c.GetString(UserIDKey)
		if subject == "" {
			subject = "ip:" + c.ClientIP()
		}
		window := now().Unix() / int64(rateLimitWindow.Seconds())
		key := fmt.Sprintf("ratelimit:%s:%d", subject, window)

		ctx := c.Request.Context()
		n, err := kv.Incr(ctx, key)
		if err != nil {
			log.WithError(err).Warn("Rate limit counter unavailable")
			c.Next()
			return
		}
		if n == 1 {
			if err := kv.Expire(ctx, key, rateLimitWindow); err != nil {
				log.WithError(err).Warn("Failed to expire rate limit counter")
			}
		}

		if n > int64(perMinute) {
			retry := rateLimitWindow - time.Duration(now().Unix()%int64(rateLimitWindow.Seconds()))*time.Second
			c.Header("Retry-After", strconv.Itoa(int(retry.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
			return
		}
		c.Next()
	}
}
