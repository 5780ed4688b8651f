package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Baaaki/scooter-fleet/internal/broker"
	"github.com/Baaaki/scooter-fleet/internal/config"
	"github.com/Baaaki/scooter-fleet/internal/database"
	"github.com/Baaaki/scooter-fleet/internal/handler"
	"github.com/Baaaki/scooter-fleet/internal/metrics"
	"github.com/Baaaki/scooter-fleet/internal/middleware"
	"github.com/Baaaki/scooter-fleet/internal/presence"
	"github.com/Baaaki/scooter-fleet/internal/ratelimit"
	"github.com/Baaaki/scooter-fleet/internal/realtime"
	"github.com/Baaaki/scooter-fleet/internal/repository"
	"github.com/Baaaki/scooter-fleet/internal/service"
	"github.com/Baaaki/scooter-fleet/pkg/logger"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	cfg := config.Load()

	if err := logger.Init(!cfg.IsProduction()); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(cfg)
	if err != nil {
		logger.Log.Fatal("Failed to connect database", zap.Error(err))
	}
	if err := migrate(cfg, db); err != nil {
		logger.Log.Fatal("Failed to migrate database", zap.Error(err))
	}

	// Redis backs both the room broker and the auth IP limiter when configured.
	// main owns the client, the broker only borrows it.
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = broker.DialRedis(cfg.RedisURL)
		if err != nil {
			logger.Log.Fatal("Failed to connect redis", zap.Error(err))
		}
		defer redisClient.Close()
	}

	bus, err := newBroker(cfg, redisClient)
	if err != nil {
		logger.Log.Fatal("Failed to initialize broker", zap.Error(err))
	}
	defer bus.Close()

	hub := realtime.NewHub(bus)
	if err := hub.Start(ctx); err != nil {
		logger.Log.Fatal("Failed to start hub", zap.Error(err))
	}
	tracker := presence.NewTracker[*realtime.Client]()

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	chatRepo := repository.NewChatRepository(db)
	messageRepo := repository.NewMessageRepository(db)

	// Initialize services
	limiter := ratelimit.NewLimiter(chatRepo, cfg.ChatRateLimit, cfg.ChatRateWindow)
	authService := service.NewAuthService(userRepo, cfg.JWTSecret, cfg.JWTExpiry)
	chatService := service.NewChatService(chatRepo, messageRepo, userRepo, limiter, hub)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	router.Use(middleware.SecurityHeadersMiddleware())
	router.Use(middleware.HSTSMiddleware(cfg.IsProduction()))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "online": tracker.Count()})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	routes := handler.Routes{
		Auth: handler.NewAuthHandler(authService, handler.CookieConfig{
			Name:   cfg.AuthCookieName,
			MaxAge: cfg.JWTExpiry,
			Secure: cfg.IsProduction(),
		}),
		Chat:        handler.NewChatHandler(chatService),
		Admin:       handler.NewAdminHandler(chatService),
		Gateway:     handler.NewGateway(hub, tracker, chatService, cfg.CORSOrigins),
		RequireAuth: middleware.AuthMiddleware(authService, cfg.AuthCookieName),
	}
	if redisClient != nil {
		routes.AuthLimit = middleware.NewRateLimiter(redisClient, middleware.RateLimiterConfig{
			MaxRequests: cfg.RateLimitMaxRequests,
			Window:      cfg.RateLimitWindow,
			BlockTime:   cfg.RateLimitBlockTime,
		}).Middleware()
	}
	routes.Register(router)

	srv := &http.Server{
		Addr:              cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Log.Info("Server starting", zap.String("addr", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Log.Info("Shutting down server")

	// Shutdown does not track hijacked sockets, close them first
	logger.Log.Info("Closing realtime connections", zap.Int("count", hub.Close()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("Server shutdown failed", zap.Error(err))
	}
}

func migrate(cfg *config.Config, db *gorm.DB) error {
	if cfg.Migrations == "sql" {
		return database.MigrateUp(cfg.DatabaseURL)
	}
	return database.AutoMigrate(db)
}

// newBroker prefers NATS, then Redis pub/sub, then the in-process bus for a
// single instance.
func newBroker(cfg *config.Config, redisClient *redis.Client) (broker.Broker, error) {
	switch {
	case cfg.NATSURL != "":
		logger.Log.Info("Using NATS broker", zap.String("url", cfg.NATSURL))
		return broker.NewNATSBroker(cfg.NATSURL, broker.DefaultNATSSubject)
	case redisClient != nil:
		logger.Log.Info("Using Redis broker")
		return broker.NewRedisBroker(redisClient, broker.DefaultRedisChannel), nil
	default:
		logger.Log.Info("Using in-process broker")
		return broker.NewLocalBroker(), nil
	}
}
