package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"refundsaga/api/routes"
	"refundsaga/internal/app"
	"refundsaga/internal/shared/config"
	"refundsaga/internal/shared/jobs"
	"refundsaga/internal/shared/middleware"
	"refundsaga/pkg/logger"
	"refundsaga/pkg/obs"
	"refundsaga/pkg/ratelimit"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	appLogger := logger.GetDefault()

	// Smart environment loading
	if err := godotenv.Load(); err != nil {
		// Check if we're in production/container mode
		if os.Getenv("GIN_MODE") == "release" || os.Getenv("DOCKER_CONTAINER") == "true" {
			appLogger.Info("Production environment: using container environment variables")
		} else {
			appLogger.Info("No .env file found, using system environment variables")
		}
	} else {
		appLogger.Info("Development environment: loaded .env file")
	}

	// Load config
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		appLogger.Error("Invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	// Set Gin mode (debug/release)
	gin.SetMode(cfg.GinMode)

	shutdownTracer, err := obs.InitTracer(cfg.Tracing)
	if err != nil {
		appLogger.Error("Failed to initialize tracing", slog.Any("error", err))
		os.Exit(1)
	}

	// Stores, event channel and saga components for this role
	application, err := app.New(cfg, appLogger)
	if err != nil {
		appLogger.Error("Failed to start application", slog.Any("error", err))
		os.Exit(1)
	}

	sagaCtx, sagaCancel := context.WithCancel(context.Background())
	defer sagaCancel()

	application.Subscribe()
	if err := application.Channel.Start(sagaCtx); err != nil {
		appLogger.Error("Failed to start event consumers", slog.Any("error", err))
		application.Close()
		os.Exit(1)
	}
	appLogger.Info("Saga consumers started",
		slog.String("role", cfg.Saga.Role),
		slog.String("event_bus", cfg.Saga.EventBus),
		slog.String("store", cfg.Saga.StoreDriver),
	)

	// Reconciliation sweeps
	var scheduler *jobs.Scheduler
	if cfg.Saga.ReconcileEnabled {
		scheduler, err = startSweeps(application, cfg.Saga.ReconcileEvery, appLogger)
		if err != nil {
			appLogger.Error("Failed to schedule reconciliation", slog.Any("error", err))
			application.Close()
			os.Exit(1)
		}
	} else {
		appLogger.Info("Reconciliation disabled")
	}

	// Initialize Rate Limiter
	var rateLimiter *ratelimit.RateLimiter
	if cfg.RateLimit.Enabled && application.DB.Redis != nil {
		rateLimiter = ratelimit.NewRateLimiter(application.DB.Redis, cfg.RateLimit)
		appLogger.Info("Rate limiter initialized",
			slog.Bool("enabled", cfg.RateLimit.Enabled),
			slog.Duration("window", cfg.RateLimit.WindowDuration),
			slog.Int("default_requests", cfg.RateLimit.DefaultRequests),
		)
	} else {
		appLogger.Info("Rate limiting disabled")
	}

	router := setupRouter(cfg, application, rateLimiter, appLogger)

	// HTTP server
	srv := &http.Server{
		Addr:           cfg.GetServerAddress(),
		Handler:        router,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxHeaderBytes: cfg.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		appLogger.Info("🚀 Server running",
			slog.String("address", cfg.GetServerAddress()),
			slog.String("health_check", fmt.Sprintf("http://localhost:%s/health", cfg.Port)),
			slog.String("ops_api", fmt.Sprintf("http://localhost:%s%s/ops", cfg.Port, cfg.GetAPIBasePath())),
			slog.String("version", Version),
			slog.String("commit", GitCommit),
			slog.String("built", BuildTime),
			slog.Bool("redis", application.DB.Redis != nil),
			slog.Bool("rate_limiting", rateLimiter != nil),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Server failed", slog.Any("error", err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Forced shutdown", slog.Any("error", err))
	}

	// Stop sweeps before consumers so no sweep publishes into a closed channel
	if scheduler != nil {
		if err := scheduler.Stop(); err != nil {
			appLogger.Error("Error stopping scheduler", slog.Any("error", err))
		}
	}
	sagaCancel()
	if err := application.Close(); err != nil {
		appLogger.Error("Error closing application", slog.Any("error", err))
	}
	if err := shutdownTracer(ctx); err != nil {
		appLogger.Error("Error flushing traces", slog.Any("error", err))
	}

	appLogger.Info("Server exited gracefully")
}

func startSweeps(application *app.App, interval time.Duration, log *logger.Logger) (*jobs.Scheduler, error) {
	scheduler, err := jobs.NewScheduler(log)
	if err != nil {
		return nil, err
	}
	for name, sweeper := range application.Sweepers() {
		if err := scheduler.Every(name, interval, sweeper); err != nil {
			scheduler.Stop()
			return nil, err
		}
	}
	scheduler.Start()
	log.Info("Reconciliation scheduled", slog.Duration("interval", interval))
	return scheduler, nil
}

func setupRouter(cfg *config.Config, application *app.App, rateLimiter *ratelimit.RateLimiter, appLogger *logger.Logger) *gin.Engine {
	engine := gin.New()

	// Logs requests + recovers from panics
	engine.Use(middleware.RequestLogger(appLogger), gin.Recovery())

	// CORS configuration
	engine.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Global rate limiting middleware (applied to all routes)
	if rateLimiter != nil {
		engine.Use(ratelimit.Middleware(rateLimiter, appLogger))
	}

	routes.NewRouter(application).SetupRoutes(engine)

	return engine
}
