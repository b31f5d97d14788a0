package repository

import (
	"context"

	"github.com/templeerp/yearend/internal/models"

	"gorm.io/gorm"
)

// ChartRepository defines the interface for chart-of-accounts data access
type ChartRepository interface {
	ListGroups(ctx context.Context, orgID uint) ([]models.AccountGroup, error)
	ListLedgers(ctx context.Context, orgID uint) ([]models.Ledger, error)
	FindPALedgers(ctx context.Context, orgID uint) ([]models.Ledger, error)
}

type chartRepository struct {
	db *gorm.DB
}

// NewChartRepository creates a new chart-of-accounts repository
func NewChartRepository(db *gorm.DB) ChartRepository {
	return &chartRepository{db: db}
}

func (r *chartRepository) ListGroups(ctx context.Context, orgID uint) ([]models.AccountGroup, error) {
	var groups []models.AccountGroup
	err := r.db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Order("code ASC, id ASC").
		Find(&groups).Error
	return groups, err
}

func (r *chartRepository) ListLedgers(ctx context.Context, orgID uint) ([]models.Ledger, error) {
	var ledgers []models.Ledger
	err := r.db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Order("id ASC").
		Find(&ledgers).Error
	return ledgers, err
}

// FindPALedgers returns every ledger flagged as the P&L accumulation ledger, with its group
func (r *chartRepository) FindPALedgers(ctx context.Context, orgID uint) ([]models.Ledger, error) {
	var ledgers []models.Ledger
	err := r.db.WithContext(ctx).
		Preload("Group").
		Where("organization_id = ? AND pa = ?", orgID, true).
		Order("id ASC").
		Find(&ledgers).Error
	return ledgers, err
}
