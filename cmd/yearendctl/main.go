package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"

	"github.com/templeerp/yearend/internal/commands"
	"github.com/templeerp/yearend/internal/config"
	"github.com/templeerp/yearend/internal/database"
	"github.com/templeerp/yearend/internal/jobs"
	"github.com/templeerp/yearend/internal/repository"
	"github.com/templeerp/yearend/internal/services"
	"github.com/templeerp/yearend/internal/storage"
	"github.com/templeerp/yearend/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := commands.NewRootCommand(openRuntime)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// openRuntime wires the closing service the same way the API does. Logs go to stderr so JSON output stays clean.
func openRuntime(ctx context.Context) (*commands.Runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger.SetupTo(os.Stderr, cfg.Environment, getEnv("YEARENDCTL_LOG_LEVEL", "warn"))

	db, err := database.Connect(cfg)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	store, err := storage.NewLocalStorage(cfg.StoragePath)
	if err != nil {
		sqlDB.Close()
		return nil, err
	}

	worker := jobs.NewWorker(1)
	svcs := services.NewServices(repository.NewRepositories(db), worker, store, cfg)

	return &commands.Runtime{
		Closing: svcs.Closing,
		Close: func() {
			worker.Shutdown()
			sqlDB.Close()
		},
	}, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
