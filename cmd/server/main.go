// Package main runs the live streaming HTTP server with WebSocket and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aura-live/backend/config"
	"github.com/aura-live/backend/internal/auth"
	"github.com/aura-live/backend/internal/capture"
	"github.com/aura-live/backend/internal/chat"
	"github.com/aura-live/backend/internal/live"
	"github.com/aura-live/backend/internal/middleware"
	"github.com/aura-live/backend/internal/models"
	"github.com/aura-live/backend/internal/notifications"
	"github.com/aura-live/backend/internal/presence"
	"github.com/aura-live/backend/internal/realtime"
	"github.com/aura-live/backend/internal/storage/memory"
	"github.com/aura-live/backend/internal/streams"
	"github.com/aura-live/backend/internal/tips"
	"github.com/aura-live/backend/internal/worker"
	"github.com/aura-live/backend/pkg/database"
	"github.com/aura-live/backend/pkg/queue"
	"github.com/aura-live/backend/pkg/redis"
	"github.com/aura-live/backend/pkg/response"
	"github.com/aura-live/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	sfu := realtime.NewSFU(logger, cfg.WebRTC.ICEUrls)
	deps := live.Deps{
		Capture: capture.NewDevice(sfu, logger),
		Logger:  logger,
	}

	var (
		users auth.Users
		hub   *realtime.Hub
	)
	switch cfg.Server.Backend {
	case "memory":
		logger.Warn("using in-memory stores; data is lost on restart")
		timeouts := memory.NewTimeoutStore()
		deps.Store = memory.NewSessionStore()
		deps.Presence = memory.NewPresenceRegistry()
		deps.Chat = memory.NewChatChannel()
		deps.Timeouts = timeouts
		deps.Tips = memory.NewTipsLedger()
		deps.Notifier = memory.NewNotifier()
		deps.Thumbnails = memory.NewThumbnailStore()
		users = memory.NewUsers()
		hub = realtime.NewHub(logger, nil, nil)
		go worker.NewTimeoutPurger(timeouts, cfg.Worker.TimeoutPurgeInterval, logger).Run(bgCtx)
	default:
		pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
		if err != nil {
			logger.Fatal("database", zap.Error(err))
		}
		defer pool.Close()
		if err := database.Migrate(ctx, pool, logger); err != nil {
			logger.Fatal("migrate", zap.Error(err))
		}

		rdb, err := redis.NewClient(ctx, redis.Options{
			URL:      cfg.Redis.URL,
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		}, logger)
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		defer rdb.Close()

		events := realtime.NewRedisPubSub(rdb.Client, realtime.EventsPrefix, logger)
		hub = realtime.NewHub(logger, events, events)
		wirePostgres(&deps, pool, rdb, logger)
		users = auth.NewRepository(pool)
	}
	deps.Events = hub

	if cfg.AWS.Region != "" {
		s3Client, err := storage.NewS3(ctx, storage.S3Config{
			Region:           cfg.AWS.Region,
			AccessKeyID:      cfg.AWS.AccessKeyID,
			SecretAccessKey:  cfg.AWS.SecretAccessKey,
			ThumbnailsBucket: cfg.AWS.ThumbnailsBucket,
		}, logger)
		if err != nil {
			logger.Warn("s3 disabled, thumbnails rejected", zap.Error(err))
		} else {
			deps.Thumbnails = s3Client
		}
	}

	liveSvc := live.NewService(deps, live.ServiceConfig{
		Controller: live.Config{
			HeartbeatInterval: cfg.Live.HeartbeatInterval,
			SampleInterval:    cfg.Live.SampleInterval,
			DefaultTimeout:    time.Duration(cfg.Live.DefaultTimeoutMinutes) * time.Minute,
			MaxThumbnailSize:  cfg.Live.MaxThumbnailSize,
		},
		HistoryPageSize:  cfg.Live.HistoryPageSize,
		ChatHistoryLimit: cfg.Live.ChatHistoryLimit,
	}, live.NewRegistry())

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	authHandler := auth.NewHandler(users, jwtService, liveSvc, logger)
	liveHandler := live.NewHandler(liveSvc, logger)

	authenticate := func(token string) (live.Participant, error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return live.Participant{}, err
		}
		return live.Participant{ID: claims.UserID, DisplayName: claims.DisplayName, Role: models.Role(claims.Role)}, nil
	}
	origins := middleware.ParseOrigins(cfg.Server.CORSAllowedOrigins)
	upgrader := realtime.Upgrader(origins.Allows)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(origins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		api.GET("/auth/me", authHandler.Me)
		api.POST("/auth/logout", authHandler.Logout)
		api.GET("/admin/live", middleware.RequireRole(models.RoleAdmin), liveHandler.Running)
		liveHandler.Register(api)
	}

	// Token in query; browsers cannot set headers on WebSocket upgrades.
	router.GET("/ws", realtime.ServeWs(hub, sfu, liveSvc, authenticate, upgrader, logger))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port), zap.String("backend", cfg.Server.Backend))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	liveSvc.Shutdown(shutdownCtx)
	bgCancel()
	logger.Info("server stopped")
}

func wirePostgres(deps *live.Deps, pool *pgxpool.Pool, rdb *redis.Client, logger *zap.Logger) {
	chatBus := realtime.NewRedisPubSub(rdb.Client, realtime.ChatPrefix, logger)
	presenceBus := realtime.NewRedisPubSub(rdb.Client, realtime.PresencePrefix, logger)

	deps.Store = streams.NewRepository(pool)
	deps.Presence = presence.NewRegistry(rdb.Client, presenceBus, logger)
	deps.Chat = chat.NewChannel(pool, chatBus, logger)
	deps.Timeouts = chat.NewTimeoutRepository(pool)
	deps.Tips = tips.NewRepository(pool)
	deps.Notifier = notifications.NewNotifier(queue.NewQueue(rdb.Client, logger))
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
