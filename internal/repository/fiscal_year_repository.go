package repository

import (
	"context"
	"time"

	"github.com/templeerp/yearend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FiscalYearRepository defines the interface for fiscal year data access
type FiscalYearRepository interface {
	FindByID(ctx context.Context, id uint) (*models.FiscalYear, error)
	FindActive(ctx context.Context, orgID uint) (*models.FiscalYear, error)
	ExistsStartingOn(ctx context.Context, orgID uint, start time.Time) (bool, error)
	Create(ctx context.Context, year *models.FiscalYear) error
	CountActive(ctx context.Context, orgID uint) (int64, error)
	Rollover(ctx context.Context, orgID, closingYearID, openingYearID uint) error
}

type fiscalYearRepository struct {
	db *gorm.DB
}

// NewFiscalYearRepository creates a new fiscal year repository
func NewFiscalYearRepository(db *gorm.DB) FiscalYearRepository {
	return &fiscalYearRepository{db: db}
}

func (r *fiscalYearRepository) FindByID(ctx context.Context, id uint) (*models.FiscalYear, error) {
	var year models.FiscalYear
	if err := r.db.WithContext(ctx).First(&year, id).Error; err != nil {
		return nil, err
	}
	return &year, nil
}

// FindActive returns the active, unclosed year of an organization
func (r *fiscalYearRepository) FindActive(ctx context.Context, orgID uint) (*models.FiscalYear, error) {
	var year models.FiscalYear
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND active = ? AND closed = ?", orgID, true, false).
		Order("start_date DESC").
		First(&year).Error
	if err != nil {
		return nil, err
	}
	return &year, nil
}

func (r *fiscalYearRepository) ExistsStartingOn(ctx context.Context, orgID uint, start time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.FiscalYear{}).
		Where("organization_id = ? AND start_date = ?", orgID, models.DateOnly(start)).
		Count(&count).Error
	return count > 0, err
}

func (r *fiscalYearRepository) Create(ctx context.Context, year *models.FiscalYear) error {
	return r.db.WithContext(ctx).Create(year).Error
}

func (r *fiscalYearRepository) CountActive(ctx context.Context, orgID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.FiscalYear{}).
		Where("organization_id = ? AND active = ?", orgID, true).
		Count(&count).Error
	return count, err
}

// Rollover closes the old year and activates the new one in a single transaction.
// The old year row is locked and the single-active-year and single-P&L-ledger
// invariants are re-checked before anything is written.
func (r *fiscalYearRepository) Rollover(ctx context.Context, orgID, closingYearID, openingYearID uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var closing models.FiscalYear
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND organization_id = ?", closingYearID, orgID).
			First(&closing).Error; err != nil {
			return err
		}
		if !closing.Active || closing.Closed {
			return ErrYearNotActive
		}

		var otherActive int64
		if err := tx.Model(&models.FiscalYear{}).
			Where("organization_id = ? AND active = ? AND id <> ?", orgID, true, closingYearID).
			Count(&otherActive).Error; err != nil {
			return err
		}
		if otherActive > 0 {
			return ErrActiveYearConflict
		}

		var paCount int64
		if err := tx.Model(&models.Ledger{}).
			Where("organization_id = ? AND pa = ?", orgID, true).
			Count(&paCount).Error; err != nil {
			return err
		}
		if paCount != 1 {
			return ErrPALedgerConflict
		}

		now := time.Now()
		if err := tx.Model(&models.FiscalYear{}).
			Where("id = ?", closingYearID).
			Updates(map[string]interface{}{"closed": true, "active": false, "closed_at": now}).Error; err != nil {
			return err
		}
		return tx.Model(&models.FiscalYear{}).
			Where("id = ? AND organization_id = ?", openingYearID, orgID).
			Updates(map[string]interface{}{"active": true, "closed": false}).Error
	})
}
