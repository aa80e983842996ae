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

	"github.com/davidmoltin/procurement-workflows/internal/api/rest"
	"github.com/davidmoltin/procurement-workflows/internal/api/rest/handlers"
	"github.com/davidmoltin/procurement-workflows/internal/blobstore"
	"github.com/davidmoltin/procurement-workflows/internal/repository/postgres"
	"github.com/davidmoltin/procurement-workflows/internal/services"
	"github.com/davidmoltin/procurement-workflows/internal/textsource"
	"github.com/davidmoltin/procurement-workflows/internal/websocket"
	"github.com/davidmoltin/procurement-workflows/internal/workers"
	"github.com/davidmoltin/procurement-workflows/pkg/auth"
	"github.com/davidmoltin/procurement-workflows/pkg/config"
	"github.com/davidmoltin/procurement-workflows/pkg/database"
	"github.com/davidmoltin/procurement-workflows/pkg/llm"
	"github.com/davidmoltin/procurement-workflows/pkg/llm/providers"
	"github.com/davidmoltin/procurement-workflows/pkg/logger"
	"github.com/davidmoltin/procurement-workflows/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	log, err := logger.New(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	logger.SetDefault(log)
	log.Info("Starting Procurement Workflows API",
		logger.String("version", cfg.App.Version),
		logger.String("environment", cfg.App.Environment),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Apply schema migrations before opening the pool
	if err := database.RunMigrations(cfg.DatabaseURL(), log); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// Initialize PostgreSQL
	db, err := database.NewPostgresDB(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	healthChecks := map[string]handlers.HealthChecker{"database": db}

	// Request lock and event fan-out: Redis when configured, in-process otherwise
	var locker services.Locker
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		rc, err := database.NewRedisClient(ctx, cfg, log)
		if err != nil {
			return fmt.Errorf("failed to initialize redis: %w", err)
		}
		defer rc.Close()
		redisClient = rc.Client
		locker = services.NewRedisLocker(rc.Client, cfg.Workflow.LockTTL)
		healthChecks["redis"] = rc
	} else {
		log.Warn("Redis disabled, using in-process request lock and event hub (single instance only)")
		locker = services.NewLocalLocker()
	}

	// Document storage
	var blobs blobstore.Store
	switch cfg.Storage.Backend {
	case "minio":
		store, err := blobstore.NewMinIOStore(ctx, blobstore.MinIOConfig{
			Endpoint:  cfg.Storage.MinIOEndpoint,
			AccessKey: cfg.Storage.MinIOAccessKey,
			SecretKey: cfg.Storage.MinIOSecretKey,
			Bucket:    cfg.Storage.MinIOBucket,
			UseSSL:    cfg.Storage.MinIOUseSSL,
		}, log)
		if err != nil {
			return fmt.Errorf("failed to initialize blob store: %w", err)
		}
		blobs = store
		healthChecks["storage"] = store
	default:
		log.Warn("Using in-memory document storage; uploads are lost on restart")
		blobs = blobstore.NewMemoryStore()
	}

	m := metrics.New()

	// OCR for scanned documents
	var ocr textsource.OCR
	if cfg.OCR.Provider != "" {
		client, err := providers.New(&llm.Config{
			Provider:     llm.Provider(cfg.OCR.Provider),
			APIKey:       cfg.OCR.APIKey,
			DefaultModel: cfg.OCR.Model,
			Timeout:      cfg.OCR.Timeout,
			MaxRetries:   2,
			RetryDelay:   time.Second,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize ocr provider: %w", err)
		}
		ocr = textsource.NewVisionOCR(client, cfg.OCR.Model, m)
		log.Info("OCR enabled", logger.String("provider", cfg.OCR.Provider))
	}

	// Initialize repositories
	requestRepo := postgres.NewPurchaseRequestRepository(db)
	userRepo := postgres.NewUserRepository(db)

	// Notifications are delivered off the request path
	notificationService, err := services.NewNotificationService(&cfg.Notification, userRepo, m, log)
	if err != nil {
		return fmt.Errorf("failed to initialize notification service: %w", err)
	}
	hub := websocket.NewHub(redisClient, m, log)
	if err := hub.Start(); err != nil {
		return fmt.Errorf("failed to start websocket hub: %w", err)
	}
	defer hub.Stop()

	dispatcher := workers.NewNotificationDispatcher(
		workers.Fanout{notificationService, hub},
		m,
		log,
		cfg.Notification.QueueSize,
	)
	// not tied to the signal context; Stop drains the queue on shutdown
	dispatcher.Start(context.Background())

	// Initialize services
	jwtManager := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL)
	workflowService := services.NewWorkflowService(
		requestRepo,
		locker,
		blobs,
		dispatcher,
		m,
		log,
		services.WorkflowOptions{
			ProformaTolerance:    cfg.Workflow.ProformaTolerance,
			EnforceProformaMatch: cfg.Workflow.EnforceProformaMatch,
		},
	)
	documentService := services.NewDocumentService(
		workflowService,
		textsource.New(ocr),
		cfg.Workflow.AmountTolerance,
		cfg.Workflow.MaxUploadBytes(),
	)
	authService := services.NewAuthService(userRepo, jwtManager, m, log)

	// Initialize handlers
	h := handlers.NewHandlers(
		log,
		handlers.Services{
			Workflow:  workflowService,
			Documents: documentService,
			Auth:      authService,
		},
		cfg.Workflow.MaxUploadBytes(),
		healthChecks,
		cfg.App.Version,
	)
	h.Events = websocket.NewHandler(hub, cfg.Server.AllowedOrigins, log)

	// Initialize router
	router := rest.NewRouter(log, cfg.Server, h, jwtManager, m, prometheus.DefaultGatherer)
	router.SetupRoutes()
	go router.RateLimiter().Cleanup(ctx, 10*time.Minute)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		log.Info("API server listening", logger.String("address", addr))
		serverErrors <- server.ListenAndServe()
	}()

	// Block until we receive a signal or an error
	select {
	case err := <-serverErrors:
		dispatcher.Stop()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	}

	// Give outstanding requests a deadline for completion
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		server.Close()
		dispatcher.Stop()
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	// Flush queued notifications once no new transitions can arrive
	dispatcher.Stop()
	log.Info("Server stopped gracefully")

	return nil
}
