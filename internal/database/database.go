package database

import (
	"fmt"
	"time"

	"github.com/templeerp/yearend/internal/config"
	"github.com/templeerp/yearend/internal/models"
	pkgLogger "github.com/templeerp/yearend/pkg/logger"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect establishes a connection to the PostgreSQL database.
// Closing runs hold one connection per transfer batch, so the pool is sized from WorkerCount upwards.
func Connect(cfg *config.Config) (*gorm.DB, error) {
	logLevel := logger.Warn
	if cfg.Environment != "production" {
		logLevel = logger.Info
	}

	gormLogger := pkgLogger.NewGormLogger(logLevel, cfg.DBSlowQuery)

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger:                 gormLogger,
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
		TranslateError:         true, // unique violations surface as gorm.ErrDuplicatedKey
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	// Configure connection pool
	maxOpen := cfg.DBMaxOpenConns
	if maxOpen < cfg.WorkerCount+2 {
		maxOpen = cfg.WorkerCount + 2
	}
	sqlDB.SetMaxIdleConns(min(5, maxOpen))
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// Migrate creates or updates the tables owned by the closing service.
// The chart of accounts and the journal belong to the wider ERP schema and are
// only migrated here so a standalone deployment has them.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.FiscalYear{},
		&models.AccountGroup{},
		&models.Ledger{},
		&models.YearLedgerBalance{},
		&models.JournalEntry{},
		&models.JournalLine{},
		&models.ClosingRun{},
		&models.AuditLog{},
	); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
