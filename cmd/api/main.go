package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/medterm/backend/internal/analytics"
	"github.com/medterm/backend/internal/api/handlers"
	"github.com/medterm/backend/internal/athena"
	redisCache "github.com/medterm/backend/internal/cache/redis"
	"github.com/medterm/backend/internal/llm"
	"github.com/medterm/backend/internal/metrics"
	"github.com/medterm/backend/internal/middleware/ratelimit"
	"github.com/medterm/backend/internal/middleware/security"
	"github.com/medterm/backend/internal/middleware/validation"
	"github.com/medterm/backend/internal/workflow"
	"github.com/medterm/backend/pkg/config"
	appLogger "github.com/medterm/backend/pkg/logger"
)

func main() {
	// Local development convenience; a missing .env is not an error.
	_ = godotenv.Load()

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

	appLogger.Info("Starting medical terminology API server")

	metrics.Init()

	store, err := analytics.New(cfg.Database.URL)
	if err != nil {
		appLogger.Fatal("Failed to open analytics store", zap.Error(err))
	}
	defer store.Close()

	directoryClient := athena.NewClient(athena.Config{
		BaseURL:       cfg.Directory.BaseURL,
		APIKey:        cfg.Directory.APIKey,
		Retries:       cfg.Directory.Retries,
		BackoffFactor: cfg.Directory.BackoffFactor,
		Timeout:       time.Duration(cfg.Directory.TimeoutSec) * time.Second,
	})
	defer directoryClient.Close()

	llmClient := llm.NewClient(
		cfg.LLM.APIKey,
		cfg.LLM.Model,
		cfg.LLM.Temperature,
		cfg.LLM.MaxTokens,
		time.Duration(cfg.LLM.TimeoutSec)*time.Second,
	)

	workflowService := workflow.NewService(llmClient, directoryClient)

	var cache handlers.LookupCache
	if cfg.Redis.Enabled {
		cacheClient, err := redisCache.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			appLogger.Warn("Redis unavailable, running without cache", zap.Error(err))
		} else {
			defer cacheClient.Close()
			cache = cacheClient
		}
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(requestid.New(requestid.Config{
		Generator: func() string { return uuid.NewString() },
	}))
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.Server.AllowedOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		AllowedOrigins: []string{cfg.Server.AllowedOrigins},
	}))

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: 120,
		SkipPaths:            []string{"/api/health", "/metrics"},
		Logger:               appLogger.GetLogger(),
	})
	defer limiter.Stop()
	app.Use(limiter.Middleware())

	app.Use(validation.Middleware(validation.Config{
		Logger: appLogger.GetLogger(),
	}))

	cacheTTL := time.Duration(cfg.Directory.CacheTTLSec) * time.Second
	languageHandler := handlers.NewLanguageHandler(store, workflowService)
	searchHandler := handlers.NewSearchHandler(store, workflowService, cache, cacheTTL)
	metricsHandler := handlers.NewMetricsHandler(store)
	wsHandler := handlers.NewWebSocketHandler(metricsHandler, 5*time.Second)

	api := app.Group("/api")

	api.Post("/create_language", languageHandler.CreateLanguage)
	api.Get("/languages", languageHandler.GetLanguages)
	api.Get("/language_info", languageHandler.GetLanguageInfo)

	api.Get("/search", searchHandler.HandleSearch)
	api.Get("/synonyms", searchHandler.GetSynonyms)
	api.Get("/concept_lookup", searchHandler.ConceptLookup)
	api.Post("/select_synonym", searchHandler.SelectSynonym)
	api.Post("/cache/invalidate", searchHandler.InvalidateCache)

	api.Get("/metrics/stream", websocket.New(wsHandler.HandleConnection))
	api.Get("/metrics/:metric_type", metricsHandler.GetMetric)
	api.Get("/metrics", metricsHandler.GetAllMetrics)
	api.Get("/search_paths", metricsHandler.GetSearchPaths)

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	app.Get("/metrics", metrics.MetricsHandler())

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
	app.Shutdown()
	appLogger.Info("Server stopped")
}
