package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/crosspost/crosspost/internal/ai"
	"github.com/crosspost/crosspost/internal/api"
	"github.com/crosspost/crosspost/internal/app"
	"github.com/crosspost/crosspost/internal/service"
	"github.com/crosspost/crosspost/internal/storage"
	"github.com/crosspost/crosspost/pkg/config"
	"github.com/crosspost/crosspost/pkg/logging"
	"github.com/crosspost/crosspost/pkg/telemetry"
)

func main() {
	// A missing .env is fine; the environment may already be set
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logging.InitLogger(&cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logging.GetLogger().Sync()

	logger := logging.GetLogger()
	logger.Info("Starting Crosspost API Server")

	if cfg.Server.JWTSecret == "" {
		logger.Fatal("jwt_secret must be set")
	}

	// Initialize telemetry
	telemetryShutdown, err := telemetry.Init(&cfg.Telemetry)
	if err != nil {
		logger.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer telemetryShutdown()

	ctx := context.Background()
	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize application", zap.Error(err))
	}
	defer a.Close(ctx)

	var media storage.Store
	if cfg.Storage.S3Bucket != "" {
		s3Store, err := storage.NewS3Store(&cfg.Storage)
		if err != nil {
			logger.Fatal("Failed to initialize media storage", zap.Error(err))
		}
		media = s3Store
	} else {
		logger.Warn("No S3 bucket configured, media uploads disabled")
	}
	if a.Queue == nil {
		logger.Warn("Redis disabled, scheduled publishing unavailable")
	}

	posts := service.NewPostService(a.Store, a.Publisher, a.Queue, media)
	accounts := service.NewAccountService(a.Store, a.Credentials, a.Clients, a.Clients, a.Cache, cfg.Server.JWTSecret)
	generator := ai.NewOpenAI(&cfg.AI, "")

	// Create Gin router
	if cfg.Logging.Level == "DEBUG" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	router := api.NewRouter(posts, accounts, generator, a.Store, api.Options{
		JWTSecret:   cfg.Server.JWTSecret,
		FrontendURL: cfg.Server.FrontendURL,
	})
	router.SetupRoutes(engine)

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: engine,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Server starting", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
