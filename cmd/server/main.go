package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dmoreira/interchat/internal/api"
	"github.com/dmoreira/interchat/internal/cache"
	"github.com/dmoreira/interchat/internal/config"
	"github.com/dmoreira/interchat/internal/db"
	"github.com/dmoreira/interchat/internal/hub"
	"github.com/dmoreira/interchat/internal/middleware"
	"github.com/dmoreira/interchat/internal/observ"
	"github.com/dmoreira/interchat/internal/repository"
	"github.com/dmoreira/interchat/internal/repository/postgres"
	"github.com/dmoreira/interchat/internal/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer database.Close()

	pool := database.Pool()
	gateway := repository.Gateway{
		Rooms:       postgres.NewRoomStore(pool),
		Users:       postgres.NewUserStore(pool),
		Memberships: postgres.NewMembershipStore(pool),
		Messages:    postgres.NewMessageStore(pool),
	}

	// The lookup cache is an optimization: if Redis is down at boot, run
	// without it rather than refusing to start.
	redisClient := connectRedis(ctx, cfg.RedisURL, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}
	lookup := cache.NewLookup(redisClient, gateway.Rooms, gateway.Users, cfg.LookupCacheTTL, logger)

	coord := hub.New(gateway, lookup, logger, hub.Options{PersistTimeout: cfg.PersistTimeout})
	if err := coord.Start(ctx); err != nil {
		return fmt.Errorf("start coordinator: %w", err)
	}
	defer coord.Stop()

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Logger(), gin.Recovery())

	engine.GET("/v1/health", func(c *gin.Context) {
		if err := database.Health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authHandler := api.NewAuthHandler(gateway.Users, cfg.JWTSecret, logger)
	engine.POST("/v1/auth/login", authHandler.Login)

	wsHandler := ws.NewHandler(coord, cfg.JWTSecret, cfg.SendBuffer, logger)
	engine.GET("/v1/ws", wsHandler.Serve)

	roomHandler := api.NewRoomHandler(gateway.Rooms, coord, logger)
	membershipHandler := api.NewMembershipHandler(coord, gateway.Memberships, gateway.Rooms, logger)
	messageHandler := api.NewMessageHandler(coord, gateway.Messages, gateway.Rooms, logger)
	userHandler := api.NewUserHandler(gateway.Users, logger)

	v1 := engine.Group("/v1")
	v1.Use(middleware.AuthMiddleware(cfg.JWTSecret))
	v1.GET("/me", userHandler.Me)
	v1.GET("/rooms", roomHandler.List)
	v1.GET("/rooms/stats", roomHandler.Stats)
	v1.GET("/rooms/:id/messages", messageHandler.List)
	v1.POST("/rooms/:id/messages", messageHandler.Create)
	v1.GET("/rooms/:id/users", membershipHandler.ListMembers)
	v1.POST("/rooms/:id/join", membershipHandler.Join)
	v1.POST("/rooms/:id/leave", membershipHandler.Leave)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: engine,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting interchat",
			zap.String("port", cfg.Port),
			zap.String("env", cfg.Env),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func connectRedis(ctx context.Context, redisURL string, logger *zap.Logger) *redis.Client {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Warn("invalid REDIS_URL, lookup cache disabled", zap.Error(err))
		return nil
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unreachable, lookup cache disabled", zap.Error(err))
		client.Close()
		return nil
	}

	logger.Info("redis connection established", zap.String("addr", opts.Addr))
	return client
}
