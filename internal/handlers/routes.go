package handlers

import (
	"net/http"

	"brewnet-server/internal/config"
	"brewnet-server/internal/middleware"
	"brewnet-server/internal/redis"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Router bundles what SetupRoutes mounts.
type Router struct {
	Auth      *AuthHandler
	Users     *UserHandler
	Matches   *MatchHandler
	Messages  *MessageHandler
	Validator middleware.TokenValidator
	Limits    redis.Store
	WebSocket func(c *gin.Context, userID string)
	Config    *config.Config
	Log       logrus.FieldLogger
}

func SetupRoutes(r Router) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(r.Log), middleware.CORS(r.Config.CORSAllowedOrigins))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authRequired := middleware.AuthRequired(r.Validator)
	limit := middleware.RateLimit(r.Limits, r.Config.RateLimitPerMinute, r.Log)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/config", ClientConfig(r.Config))
		v1.GET("/catalog", r.Users.Catalog)

		auth := v1.Group("/auth")
		auth.Use(limit)
		{
			auth.POST("/signup", r.Auth.SignUp)
			auth.POST("/signin", r.Auth.SignIn)
			auth.POST("/phone/start", r.Auth.StartPhoneVerification)
			auth.POST("/phone/resend", r.Auth.ResendPhoneVerification)
			auth.POST("/phone/verify", r.Auth.VerifyPhone)
			auth.POST("/google", r.Auth.GoogleSignIn)
			auth.POST("/refresh", r.Auth.RefreshToken)
			auth.POST("/password/forgot", r.Auth.ForgotPassword)
			auth.POST("/password/reset", r.Auth.ResetPassword)
			auth.POST("/logout", authRequired, r.Auth.Logout)
		}

		users := v1.Group("/users")
		users.Use(authRequired, limit)
		{
			users.GET("/profile", r.Users.GetProfile)
			users.GET("/profile/complete", r.Users.ProfileComplete)
			users.PATCH("/profile/basics", r.Users.UpdateBasics)
			users.PATCH("/profile/location", r.Users.UpdateLocation)
			users.PATCH("/profile/purpose", r.Users.UpdatePurpose)
			users.PATCH("/profile/seek", r.Users.UpdateSeek)
			users.PATCH("/profile/interests", r.Users.UpdateInterests)
			users.PATCH("/profile/qualities", r.Users.UpdateQualities)
			users.POST("/profile/photo", r.Users.UploadPhoto)
			users.DELETE("/profile/photo", r.Users.DeletePhoto)
			users.PUT("/status", r.Users.UpdateOnlineStatus)
			users.PUT("/device-token", r.Users.RegisterDeviceToken)
			users.GET("/discover", r.Users.DiscoverUsers)
		}

		v1.GET("/profiles/:id/photo", authRequired, r.Users.GetPhoto)

		matches := v1.Group("/matches")
		matches.Use(authRequired, limit)
		{
			matches.POST("/swipe", r.Matches.Swipe)
			matches.GET("/likes", r.Matches.GetLikes)
			matches.GET("/recommendations", r.Matches.GetRecommendations)
		}

		chats := v1.Group("/chats")
		chats.Use(authRequired, limit)
		{
			chats.POST("", r.Messages.CreateChat)
			chats.GET("", r.Messages.GetConversations)
			chats.GET("/:chat_id", r.Messages.GetConversation)
			chats.GET("/:chat_id/messages", r.Messages.GetMessages)
			chats.POST("/:chat_id/messages", r.Messages.SendMessage)
			chats.PUT("/:chat_id/read", r.Messages.MarkAsRead)
		}

		if r.WebSocket != nil {
			v1.GET("/ws", authRequired, func(c *gin.Context) {
				r.WebSocket(c, currentUser(c))
			})
		}
	}

	return router
}
