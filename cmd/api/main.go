package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-contrib/gzip"
	_ "github.com/joho/godotenv/autoload"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/templeerp/yearend/docs" // Swagger docs
	"github.com/templeerp/yearend/internal/config"
	"github.com/templeerp/yearend/internal/database"
	"github.com/templeerp/yearend/internal/handlers"
	"github.com/templeerp/yearend/internal/jobs"
	"github.com/templeerp/yearend/internal/middleware"
	"github.com/templeerp/yearend/internal/repository"
	"github.com/templeerp/yearend/internal/services"
	"github.com/templeerp/yearend/internal/storage"
	"github.com/templeerp/yearend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// @title Year-End Closing API
// @version 1.0
// @description Fiscal year closing service: balance carry-forward, profit and loss posting and year rollover

// @host localhost:8080
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Setup(cfg.Environment, cfg.LogLevel)

	// Initialize Sentry (GlitchTip) when DSN is configured
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			TracesSampleRate: 0.2,
			Environment:      cfg.Environment,
		}); err != nil {
			logger.Error("Sentry initialization failed", "error", err)
		} else {
			logger.Info("Sentry initialized")
		}
	}

	// Set Gin mode
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Connect to database
	db, err := database.Connect(cfg)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	logger.Info("Connected to database")

	if cfg.AutoMigrate {
		if err := database.Migrate(db); err != nil {
			logger.Error("Failed to migrate database", "error", err)
			os.Exit(1)
		}
		logger.Info("Database schema migrated")
	}

	// Initialize storage
	store, err := storage.NewLocalStorage(cfg.StoragePath)
	if err != nil {
		logger.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	logger.Info("Initialized local storage", "path", cfg.StoragePath)

	// Initialize repositories
	repos := repository.NewRepositories(db)

	// Initialize background worker
	worker := jobs.NewWorker(cfg.WorkerCount)
	logger.Info("Started background worker", "goroutines", cfg.WorkerCount)

	// Initialize services
	svcs := services.NewServices(repos, worker, store, cfg)

	// Schedule recurring jobs
	scheduleJobs(worker, svcs)

	// Initialize handlers
	h := handlers.NewHandlers(svcs)

	// Setup router
	router := setupRouter(h, cfg)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	// Running closings are not cancelled and get a grace period to finish. One that outlives it
	// is cut off by the exit; its run stays processing until the stale sweep marks it interrupted.
	if worker.ShutdownTimeout(cfg.ClosingShutdownGrace) {
		logger.Info("Background worker stopped")
	} else {
		closings := worker.Running("year-end-closing:")
		logger.Error("Background worker did not stop in time", "grace", cfg.ClosingShutdownGrace, "running_closings", len(closings))
		for _, job := range closings {
			logger.Error("Closing cut off by shutdown", "job", job.Name)
		}
	}

	// Flush Sentry events before exit
	if cfg.SentryDSN != "" {
		sentry.Flush(5 * time.Second)
	}

	logger.Info("Server exited gracefully")
}

func setupRouter(h *handlers.Handlers, cfg *config.Config) *gin.Engine {
	router := gin.New()

	// Global middleware
	if cfg.SentryDSN != "" {
		router.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	}
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORS(cfg.AllowedOrigins))
	router.Use(gzip.Gzip(gzip.DefaultCompression))

	// Redirect root to swagger
	router.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, "/swagger/index.html")
	})

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	v1 := router.Group("/api/v1")
	{
		// Health check (public)
		v1.GET("/health", h.Health.Index)

		// Protected routes (requires an organization-scoped token)
		protected := v1.Group("")
		protected.Use(middleware.Auth(cfg.JWTSecret), middleware.RequireOrganization())

		accounting := protected.Group("")
		accounting.Use(middleware.RequireRole("admin", "accountant"))
		{
			closing := accounting.Group("/year_end_closing")
			{
				closing.GET("/summary", h.Closing.Summary)
				closing.GET("/validate", h.Closing.Validate)
				closing.POST("/execute", h.Closing.Execute)
				closing.GET("/progress", h.Closing.Progress)
				closing.GET("/runs", h.Closing.Runs)
				closing.GET("/runs/:run_id", h.Closing.ShowRun)
				closing.GET("/runs/:run_id/snapshot", h.Closing.Snapshot)
			}

			accounting.GET("/audits", h.Audit.Index)
			accounting.GET("/jobs/status", h.Job.Status)
		}
	}

	return router
}

func scheduleJobs(worker *jobs.Worker, svcs *services.Services) {
	// Mark closings that stopped reporting progress as interrupted
	worker.ScheduleEveryImmediate(services.StaleSweepJob, 5*time.Minute, func(ctx context.Context) error {
		logger.Debug("[Job] Sweeping stale closing runs...")
		return svcs.Closing.SweepStaleRuns(ctx)
	})

	logger.Info("Scheduled recurring jobs")
}
