package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/humanmade/backend/internal/api/handlers"
	"github.com/humanmade/backend/internal/cache/redis"
	"github.com/humanmade/backend/internal/metrics"
	"github.com/humanmade/backend/internal/middleware/ratelimit"
	"github.com/humanmade/backend/internal/middleware/security"
	"github.com/humanmade/backend/internal/rating"
	"github.com/humanmade/backend/internal/storage/sqlite"
	"github.com/humanmade/backend/internal/users"
	"github.com/humanmade/backend/pkg/config"
	appLogger "github.com/humanmade/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting humanmade rating API server")

	metrics.Init()

	if dir := filepath.Dir(cfg.SQLite.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			appLogger.Fatal("Failed to create data directory", zap.Error(err))
		}
	}

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path, nil)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	ctx := context.Background()
	if err := sqliteClient.CreateSchema(ctx); err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	userService := users.NewService(sqliteClient)
	if cfg.Auth.Admin != "" {
		if err := userService.EnsureAdmin(ctx, cfg.Auth.Admin); err != nil {
			appLogger.Warn("Could not create admin user", zap.Error(err))
		}
	}

	var summaryCache rating.SummaryCache
	if cfg.Redis.Enabled {
		redisClient, err := redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			appLogger.Warn("Redis unavailable, serving summaries without cache", zap.Error(err))
		} else {
			defer redisClient.Close()
			summaryCache = redis.NewSummaryCache(redisClient, redis.SummaryCacheConfig{
				TTL:              cfg.Redis.TTL(),
				FailureThreshold: 5,
				Cooldown:         30 * time.Second,
			})
		}
	}

	submitLimiter := ratelimit.New(ratelimit.Config{
		Name:                "submit",
		MaxRequestsInWindow: cfg.SpamDetect.MaxRequestsInWindow,
		Window:              cfg.SpamDetect.Window(),
		Logger:              appLogger.Named("ratelimit"),
	})
	readLimiter := ratelimit.New(ratelimit.Config{
		Name:                "read",
		MaxRequestsInWindow: cfg.ReadLimit.MaxRequestsInWindow,
		Window:              cfg.ReadLimit.Window(),
		Logger:              appLogger.Named("ratelimit"),
	})

	ratingService := rating.NewService(sqliteClient, rating.Config{
		Cache:           summaryCache,
		DuplicateWindow: cfg.Rating.DuplicateWindowHours,
	})

	fiberCfg := fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	}
	if cfg.Server.TrustProxy {
		fiberCfg.ProxyHeader = fiber.HeaderXForwardedFor
	}
	app := fiber.New(fiberCfg)

	app.Use(recover.New())
	app.Use(requestid.New(requestid.Config{
		Generator: uuid.NewString,
	}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${locals:requestid} ${status} ${method} ${path} ${latency}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORS.AllowOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		IsDevelopment: cfg.Logging.Level == "debug",
	}))

	handlers.Register(app, handlers.Routes{
		Ratings:        ratingService,
		Users:          userService,
		Store:          sqliteClient,
		SubmitLimiter:  submitLimiter,
		ReadLimiter:    readLimiter,
		MaxFieldLength: cfg.Rating.MaxFieldLength,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		appLogger.Warn("Shutdown did not complete", zap.Error(err))
	}
	appLogger.Info("Server stopped")
}
