package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/convo/backend/internal/application/chat"
	"github.com/convo/backend/internal/domain/orders"
	"github.com/convo/backend/internal/infrastructure/auth"
	"github.com/convo/backend/internal/infrastructure/config"
	"github.com/convo/backend/internal/infrastructure/logger"
	"github.com/convo/backend/internal/infrastructure/persistence"
	"github.com/convo/backend/internal/infrastructure/ratelimit"
	"github.com/convo/backend/internal/infrastructure/signing"
	"github.com/convo/backend/internal/infrastructure/storefront"
	"github.com/convo/backend/internal/interfaces/http/handler"
	"github.com/convo/backend/internal/interfaces/http/middleware"
	"github.com/convo/backend/internal/interfaces/http/router"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting conversational backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Initialize database connection
	db, err := persistence.NewDatabase(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	// Optional Redis connection for the shared lookup rate limiter. Without
	// it a per-instance limiter keeps guest lookups bounded on a single node.
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			log.Warn("Redis unreachable at startup, lookups will run fail-open", zap.Error(err))
		} else {
			log.Info("Redis connected successfully")
		}
		cancel()
		defer func() {
			if err := redisClient.Close(); err != nil {
				log.Error("Error closing Redis client", zap.Error(err))
			}
		}()
	}

	// Initialize repositories
	eventRepo := persistence.NewGormEventRepository(db.DB)
	turnRepo := persistence.NewGormTurnRepository(db.DB)
	userRepo := persistence.NewGormUserRepository(db.DB)
	conversationRepo := persistence.NewGormConversationRepository(db.DB)
	auditRepo := persistence.NewGormAuditRepository(db.DB)

	// Request signer for the storefront lookup endpoint. An empty secret is
	// rejected by config validation, so this only fails on programmer error.
	signer, err := signing.NewSigner(cfg.Storefront.SigningSecret)
	if err != nil {
		log.Fatal("Failed to create request signer", zap.Error(err))
	}

	thresholds := ratelimit.Thresholds{
		IPLimit:    cfg.RateLimit.IPLimit,
		UserLimit:  cfg.RateLimit.UserLimit,
		OrderLimit: cfg.RateLimit.OrderLimit,
		Window:     cfg.RateLimit.Window,
	}
	var lookupLimiter orders.RateLimiter
	if redisClient != nil {
		lookupLimiter = ratelimit.NewRedisLimiter(redisClient, thresholds, log)
	} else {
		lookupLimiter = ratelimit.NewLocalLimiter(thresholds)
	}

	lookupClient, err := storefront.NewClient(storefront.Config{
		BaseURL: cfg.Storefront.BaseURL,
		Timeout: cfg.Storefront.LookupTimeout,
		Retry: orders.RetryPolicy{
			ThrottleMax: cfg.Storefront.ThrottleRetryMax,
			BackoffBase: cfg.Storefront.BackoffBase,
		},
	}, signer, log)
	if err != nil {
		log.Fatal("Failed to create storefront client", zap.Error(err))
	}

	// Assemble the turn pipeline
	replies := chat.NewTemplateReplies()
	guestFlow := chat.NewGuestFlowService(lookupLimiter, lookupClient, replies, log)
	pipeline := chat.NewTurnPipeline(chat.PipelineParams{
		Events:          eventRepo,
		Turns:           turnRepo,
		Users:           userRepo,
		Conversations:   conversationRepo,
		Audit:           auditRepo,
		Classifier:      chat.NewKeywordClassifier(),
		Enricher:        chat.NewNoopEnricher(),
		Generator:       replies,
		GuestFlow:       guestFlow,
		MaxMessageChars: cfg.Chat.MaxMessageChars,
		HistoryWindow:   cfg.Chat.HistoryWindow,
		Logger:          log,
	})

	tokenVerifier := auth.NewTokenVerifier(cfg.JWT)

	// Webhook signature verification is optional; without a secret the
	// WhatsApp endpoint accepts unsigned deliveries (dev only).
	var webhookSigner *signing.Signer
	if cfg.Storefront.WebhookSecret != "" {
		webhookSigner, err = signing.NewSigner(cfg.Storefront.WebhookSecret)
		if err != nil {
			log.Fatal("Failed to create webhook signer", zap.Error(err))
		}
	} else if cfg.App.Env == "production" {
		log.Warn("WhatsApp webhook signature verification is disabled")
	}

	engine := setupEngine(cfg, tokenVerifier, log)

	r := router.NewRouter(engine, router.WithAPIVersion("v1"))
	r.Register(handler.NewChatHandler(pipeline, log))
	r.Register(handler.NewWhatsAppHandler(pipeline, webhookSigner, cfg.Storefront.WebhookVerifyToken, log))
	r.Register(handler.NewSystemHandler(db, redisClient))
	r.Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Forced shutdown", zap.Error(err))
	}

	log.Info("Server stopped")
}

// setupEngine builds the gin engine with the middleware chain. Order
// matters: request IDs come first so every later stage can log them, the
// body limit runs before any handler reads the payload, and optional auth
// runs last so rejected tokens are still rate limited.
func setupEngine(cfg *config.Config, verifier *auth.TokenVerifier, log *zap.Logger) *gin.Engine {
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Fatal("Invalid trusted proxies", zap.Error(err))
		}
	}

	engine.Use(middleware.RequestID())
	engine.Use(logger.GinMiddleware(log))
	engine.Use(logger.Recovery(log))

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	if len(cfg.HTTP.CORSAllowMethods) > 0 {
		corsCfg.AllowMethods = cfg.HTTP.CORSAllowMethods
	}
	if len(cfg.HTTP.CORSAllowHeaders) > 0 {
		corsCfg.AllowHeaders = cfg.HTTP.CORSAllowHeaders
	}
	engine.Use(middleware.CORSWithConfig(corsCfg))

	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))
	if cfg.HTTP.RateLimitEnabled {
		engine.Use(middleware.IPRateLimit(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow))
	}
	engine.Use(middleware.OptionalAuth(verifier))

	return engine
}
