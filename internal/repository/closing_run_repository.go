package repository

import (
	"context"
	"errors"
	"time"

	"github.com/templeerp/yearend/internal/models"

	"gorm.io/gorm"
)

// ClosingRunRepository defines the interface for closing job-status records
type ClosingRunRepository interface {
	// Create inserts a processing run; ErrRunInProgress if the org already has one
	Create(ctx context.Context, run *models.ClosingRun) error
	Update(ctx context.Context, run *models.ClosingRun) error
	FindLatest(ctx context.Context, orgID uint) (*models.ClosingRun, error)
	FindByRunID(ctx context.Context, orgID uint, runID string) (*models.ClosingRun, error)
	FindProcessing(ctx context.Context, orgID uint) (*models.ClosingRun, error)
	FindStale(ctx context.Context, cutoff time.Time) ([]models.ClosingRun, error)
	List(ctx context.Context, orgID uint, query *ListQuery) ([]models.ClosingRun, int64, error)
}

type closingRunRepository struct {
	db *gorm.DB
}

// NewClosingRunRepository creates a new closing run repository
func NewClosingRunRepository(db *gorm.DB) ClosingRunRepository {
	return &closingRunRepository{db: db}
}

func (r *closingRunRepository) Create(ctx context.Context, run *models.ClosingRun) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var processing int64
		if err := tx.Model(&models.ClosingRun{}).
			Where("organization_id = ? AND status = ?", run.OrganizationID, models.RunStatusProcessing).
			Count(&processing).Error; err != nil {
			return err
		}
		if processing > 0 {
			return ErrRunInProgress
		}
		err := tx.Create(run).Error
		// The partial unique index catches a concurrent insert that passed the count
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrRunInProgress
		}
		return err
	})
}

func (r *closingRunRepository) Update(ctx context.Context, run *models.ClosingRun) error {
	return r.db.WithContext(ctx).Save(run).Error
}

func (r *closingRunRepository) FindLatest(ctx context.Context, orgID uint) (*models.ClosingRun, error) {
	var run models.ClosingRun
	err := r.db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Order("created_at DESC, id DESC").
		First(&run).Error
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *closingRunRepository) FindByRunID(ctx context.Context, orgID uint, runID string) (*models.ClosingRun, error) {
	var run models.ClosingRun
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND run_id = ?", orgID, runID).
		First(&run).Error
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *closingRunRepository) FindProcessing(ctx context.Context, orgID uint) (*models.ClosingRun, error) {
	var run models.ClosingRun
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND status = ?", orgID, models.RunStatusProcessing).
		First(&run).Error
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// FindStale returns processing runs that have not been updated since cutoff
func (r *closingRunRepository) FindStale(ctx context.Context, cutoff time.Time) ([]models.ClosingRun, error) {
	var runs []models.ClosingRun
	err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", models.RunStatusProcessing, cutoff).
		Find(&runs).Error
	return runs, err
}

func (r *closingRunRepository) List(ctx context.Context, orgID uint, query *ListQuery) ([]models.ClosingRun, int64, error) {
	var runs []models.ClosingRun
	var total int64

	db := r.db.WithContext(ctx).Model(&models.ClosingRun{}).Where("organization_id = ?", orgID)
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := db.Order("created_at DESC").
		Limit(query.Limit()).
		Offset(query.Offset()).
		Find(&runs).Error
	return runs, total, err
}
