package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/admitflow/admitflow/internal/api"
	"github.com/admitflow/admitflow/internal/audience"
	"github.com/admitflow/admitflow/internal/broadcast"
	"github.com/admitflow/admitflow/internal/chat"
	"github.com/admitflow/admitflow/internal/coalesce"
	"github.com/admitflow/admitflow/internal/config"
	"github.com/admitflow/admitflow/internal/db"
	"github.com/admitflow/admitflow/internal/middleware"
	"github.com/admitflow/admitflow/internal/models"
	"github.com/admitflow/admitflow/internal/observ"
	"github.com/admitflow/admitflow/internal/presence"
	"github.com/admitflow/admitflow/internal/realtime"
	"github.com/admitflow/admitflow/internal/repository/postgres"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// ---------------------------------------------------------------
	// 1. Config and logger
	// ---------------------------------------------------------------
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	// ---------------------------------------------------------------
	// 2. Postgres
	//
	// Background() at startup: there is no parent request to inherit a
	// deadline from, and "take as long as you need to connect" is the
	// right boot behavior.
	// ---------------------------------------------------------------
	database, err := db.New(context.Background(), cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer database.Close()
	pool := database.Pool()

	// ---------------------------------------------------------------
	// 3. Redis — backs the TTL signal stores (presence + typing)
	// ---------------------------------------------------------------
	signals, err := presence.NewRedisStore(context.Background(), cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer signals.Close()

	tracker := presence.NewTracker(signals, cfg.PresenceTTL, nil)
	typing := presence.NewTypingCoordinator(signals, cfg.TypingTTL, nil)

	// ---------------------------------------------------------------
	// 4. Event bus — RabbitMQ topic exchange with a reconnect
	//    supervisor. The capability probe caches its health so the
	//    send path can fail fast while the broker is down instead of
	//    pinging it on every request.
	// ---------------------------------------------------------------
	bus, err := realtime.NewAMQPBus(cfg.AMQPURL, logger)
	if err != nil {
		return fmt.Errorf("connect to amqp: %w", err)
	}
	defer bus.Close()

	probe := realtime.NewCapabilityProbe(bus, 5*time.Second, nil)

	// ---------------------------------------------------------------
	// 5. Repositories
	// ---------------------------------------------------------------
	tenantRepo := postgres.NewTenantStore(pool)
	profileRepo := postgres.NewProfileStore(pool)
	directoryRepo := postgres.NewDirectoryStore(pool)
	conversationRepo := postgres.NewConversationStore(pool)
	messageRepo := postgres.NewMessageStore(pool)
	receiptRepo := postgres.NewReceiptStore(pool)
	broadcastRepo := postgres.NewBroadcastStore(pool)

	// ---------------------------------------------------------------
	// 6. Domain services
	// ---------------------------------------------------------------
	resolver := audience.NewResolver(directoryRepo)

	chatSvc := chat.NewService(conversationRepo, messageRepo, profileRepo, resolver, bus, probe, logger)

	dispatcher := broadcast.NewDispatcher(resolver, broadcastRepo, receiptRepo, bus, logger, nil)

	// ---------------------------------------------------------------
	// 7. Realtime feeds and websocket gateway
	//
	// The gateway gets fetch closures rather than the services
	// themselves: realtime stays a pure transport layer with no
	// dependency on chat or presence.
	// ---------------------------------------------------------------
	registry := realtime.NewRegistry()
	feeds := realtime.NewFeeds(bus, registry, cfg.CoalesceDebounce, coalesce.RealClock(), logger)

	gateway := realtime.NewGateway(feeds, realtime.GatewayDeps{
		ListConversations: func(ctx context.Context, tenantID, userID uuid.UUID) ([]models.ConversationSummary, error) {
			return chatSvc.ListConversations(ctx, tenantID, userID)
		},
		PresenceMap: func(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]bool, error) {
			return tracker.Online(ctx, tenantID, ids)
		},
		Typers: func(ctx context.Context, conversationID uuid.UUID) ([]uuid.UUID, error) {
			return typing.Typers(ctx, conversationID)
		},
	}, logger)

	// ---------------------------------------------------------------
	// 8. HTTP surface
	// ---------------------------------------------------------------
	authHandler := api.NewAuthHandler(profileRepo, tenantRepo, cfg.JWTSecret, logger)
	conversationHandler := api.NewConversationHandler(chatSvc, profileRepo, logger)
	audienceHandler := api.NewAudienceHandler(resolver, logger)
	broadcastHandler := api.NewBroadcastHandler(dispatcher, profileRepo, logger)
	presenceHandler := api.NewPresenceHandler(tracker, typing, conversationRepo, bus, logger)
	wsHandler := api.NewWSHandler(gateway, logger)

	srv := gin.New()
	srv.Use(gin.Logger(), gin.Recovery())

	// Public: load balancers hit health, and auth issues the tokens
	// everything else requires.
	srv.GET("/v1/health", func(c *gin.Context) {
		status := gin.H{"status": "ok"}
		code := 200
		if err := database.Health(c.Request.Context()); err != nil {
			status["status"] = "degraded"
			status["database"] = err.Error()
			code = 503
		}
		if !probe.Available(c.Request.Context()) {
			status["realtime"] = "unavailable"
		}
		c.JSON(code, status)
	})
	srv.POST("/v1/auth/signup", authHandler.Signup)
	srv.POST("/v1/auth/login", authHandler.Login)

	v1 := srv.Group("/v1")
	v1.Use(middleware.AuthMiddleware(cfg.JWTSecret))

	v1.GET("/conversations", conversationHandler.List)
	v1.POST("/conversations/direct", conversationHandler.Direct)
	v1.GET("/conversations/:id/messages", conversationHandler.Messages)
	v1.POST("/conversations/:id/messages", conversationHandler.Send)
	v1.POST("/conversations/:id/read", conversationHandler.Read)
	v1.DELETE("/conversations/:id", conversationHandler.Remove)
	v1.POST("/conversations/:id/typing", presenceHandler.Typing)

	v1.GET("/audience", audienceHandler.Resolve)

	v1.GET("/broadcasts", broadcastHandler.List)
	v1.POST("/broadcasts",
		middleware.RequireRole(models.RoleStaff, models.RoleAdmin),
		broadcastHandler.Create,
	)
	v1.POST("/messages/:id/delivered", broadcastHandler.AckDelivered)
	v1.POST("/messages/:id/read", broadcastHandler.AckRead)

	v1.POST("/presence/heartbeat", presenceHandler.Heartbeat)
	v1.GET("/presence", presenceHandler.Online)

	v1.GET("/ws", wsHandler.Serve)

	logger.Info("starting admitflow",
		zap.String("port", cfg.Port),
		zap.String("env", cfg.Env),
	)

	return srv.Run(":" + cfg.Port)
}
