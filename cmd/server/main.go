// Package main runs the polls and voting HTTP server with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pollpulse/backend/config"
	"github.com/pollpulse/backend/internal/auth"
	"github.com/pollpulse/backend/internal/identity"
	"github.com/pollpulse/backend/internal/middleware"
	"github.com/pollpulse/backend/internal/polls"
	"github.com/pollpulse/backend/internal/results"
	"github.com/pollpulse/backend/internal/votes"
	"github.com/pollpulse/backend/pkg/database"
	"github.com/pollpulse/backend/pkg/redis"
	"github.com/pollpulse/backend/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), int32(cfg.Database.MaxConns), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	jwtValidate := func(token string) (uuid.UUID, string, error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return uuid.Nil, "", err
		}
		return claims.UserID, claims.Email, nil
	}

	gate := polls.NewGate(polls.SystemClock{})
	resolver := identity.NewResolver(cfg.Identity.AnonSalt)

	// Auth (the identity provider for authenticated voters)
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)

	// Polls
	pollRepo := polls.NewRepository(pool)
	pollHandler := polls.NewHandler(pollRepo, gate, logger)

	// Results, with the redis read-through snapshot cache
	resultsCache := results.NewCache(rdb.Client, time.Duration(cfg.Results.CacheTTLSeconds)*time.Second, logger)
	aggregator := results.NewAggregator(pool, gate, resultsCache)
	resultsHandler := results.NewHandler(aggregator, logger)

	// Vote ledger; invalidates the results cache on each successful cast
	ledger := votes.NewLedger(pool, gate, resultsCache, logger)
	voteHandler := votes.NewHandler(ledger, resolver, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
		authGroup.GET("/profile", middleware.JWT(jwtValidate), authHandler.Profile)
	}

	// Polls: reads are public, results stay queryable after a poll closes
	router.GET("/polls", pollHandler.List)
	router.GET("/polls/:id", pollHandler.GetByID)
	router.GET("/polls/:id/results", resultsHandler.Get)

	// Voting admits anonymous clients; a present token must still be valid
	router.POST("/polls/:id/vote", middleware.OptionalJWT(jwtValidate), voteHandler.Cast)

	// Poll management requires an authenticated owner
	managed := router.Group("/polls")
	managed.Use(middleware.JWT(jwtValidate))
	{
		managed.POST("", pollHandler.Create)
		managed.PATCH("/:id", pollHandler.Update)
		managed.DELETE("/:id", pollHandler.Delete)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
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
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
