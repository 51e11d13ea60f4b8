package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"brewnet-server/internal/config"
	"brewnet-server/internal/database"
	"brewnet-server/internal/handlers"
	"brewnet-server/internal/logger"
	"brewnet-server/internal/realtime"
	"brewnet-server/internal/redis"
	"brewnet-server/internal/services"
	"brewnet-server/internal/store"
	"brewnet-server/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load environment variables
	envErr := godotenv.Load()

	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	if envErr != nil {
		log.Debug("No .env file found")
	}
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("Invalid configuration")
	}
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Initialize(cfg.DatabaseURL, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}

	// Without redis, sessions and rate windows live in process memory and
	// realtime events stay on this instance.
	var kv redis.Store = redis.NewMemory()
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = redis.Initialize(cfg.RedisURL, log)
		if err != nil {
			log.WithError(err).Fatal("Failed to connect to Redis")
		}
		defer redisClient.Close()
		kv = redisClient
	} else {
		log.Warn("REDIS_URL not set; using in-memory sessions")
	}

	profiles := store.NewProfiles(db)
	chats := store.NewChats(db)
	messages := store.NewMessages(db)
	swipes := store.NewSwipes(db)

	tokens := utils.NewTokenIssuer(cfg.JWTSecret, cfg.JWTExpiry, cfg.RefreshExpiry)

	var verifier services.IdentityVerifier
	var pusher services.Pusher
	if cfg.FirebaseEnabled() {
		fb, err := services.NewFirebase(ctx, cfg)
		if err != nil {
			log.WithError(err).Fatal("Failed to initialize Firebase")
		}
		verifier, pusher = fb, fb
	} else {
		log.Warn("Firebase not configured; Google sign-in and push notifications are disabled")
	}

	var blobs services.BlobStore
	storage, err := services.NewStorageService(cfg)
	if err != nil {
		log.WithError(err).Warn("Blob storage unavailable; profile images are disabled")
	} else {
		if err := storage.EnsureBucket(ctx); err != nil {
			log.WithError(err).WithField("bucket", cfg.S3Bucket).Warn("Failed to ensure storage bucket")
		}
		blobs = storage
	}

	authService := services.NewAuthService(profiles, kv, tokens, verifier, services.AuthConfig{
		OTPExpiry:        cfg.OTPExpiry,
		PasswordResetTTL: cfg.PasswordResetTTL,
	}, log)
	profileService := services.NewProfileService(profiles, blobs, services.ImageConfig{
		MaxFileSize:  cfg.MaxFileSize,
		AllowedTypes: cfg.AllowedImageTypes,
	}, log)
	var notifier *services.Notifier
	if pusher != nil {
		notifier = services.NewNotifier(pusher, profiles, log)
	}
	chatService := services.NewChatService(chats, messages, profiles, nil, notifier, log)
	discoveryService := services.NewDiscoveryService(profiles, swipes, cfg.DiscoveryBatchSize, log)
	swipeService := services.NewSwipeService(swipes, profiles, chatService, log)

	hub := realtime.NewHub(chatService, cfg.CORSAllowedOrigins, log)
	go hub.Run(ctx)
	chatService.UsePublisher(hub)
	if redisClient != nil {
		bridge := realtime.NewBridge(redisClient, hub, log)
		hub.UsePublisher(bridge)
		chatService.UsePublisher(bridge)
		go func() {
			if err := bridge.Run(ctx); err != nil {
				log.WithError(err).Error("Realtime bridge stopped")
			}
		}()
	}

	router := handlers.SetupRoutes(handlers.Router{
		Auth:      handlers.NewAuthHandler(authService, cfg, log),
		Users:     handlers.NewUserHandler(profileService, discoveryService, cfg, log),
		Matches:   handlers.NewMatchHandler(swipeService, discoveryService, log),
		Messages:  handlers.NewMessageHandler(chatService, log),
		Validator: authService,
		Limits:    kv,
		WebSocket: hub.ServeWS,
		Config:    cfg,
		Log:       log,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.WithField("port", cfg.Port).Info("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	<-ctx.Done()
	shutdown(srv, log)
}

func shutdown(srv *http.Server, log logrus.FieldLogger) {
	log.Info("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Graceful shutdown failed")
	}
}
