package repository

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/templeerp/yearend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BalanceRepository defines the interface for year ledger balance data access
type BalanceRepository interface {
	// FindOpening returns nil without error when the ledger has no row for the year
	FindOpening(ctx context.Context, yearID, ledgerID uint) (*models.YearLedgerBalance, error)
	ListByYear(ctx context.Context, yearID uint) ([]models.YearLedgerBalance, error)
	UpsertBatch(ctx context.Context, rows []models.YearLedgerBalance) error
	AddToBalance(ctx context.Context, yearID, ledgerID uint, debit, credit decimal.Decimal) (*models.YearLedgerBalance, error)
}

type balanceRepository struct {
	db *gorm.DB
}

// NewBalanceRepository creates a new balance repository
func NewBalanceRepository(db *gorm.DB) BalanceRepository {
	return &balanceRepository{db: db}
}

func (r *balanceRepository) FindOpening(ctx context.Context, yearID, ledgerID uint) (*models.YearLedgerBalance, error) {
	var row models.YearLedgerBalance
	err := r.db.WithContext(ctx).
		Where("fiscal_year_id = ? AND ledger_id = ?", yearID, ledgerID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *balanceRepository) ListByYear(ctx context.Context, yearID uint) ([]models.YearLedgerBalance, error) {
	var rows []models.YearLedgerBalance
	err := r.db.WithContext(ctx).
		Where("fiscal_year_id = ?", yearID).
		Order("ledger_id ASC").
		Find(&rows).Error
	return rows, err
}

// UpsertBatch writes one batch of opening balances atomically.
// Rows are keyed by (fiscal_year_id, ledger_id) so a replayed batch overwrites instead of duplicating.
func (r *balanceRepository) UpsertBatch(ctx context.Context, rows []models.YearLedgerBalance) error {
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "fiscal_year_id"}, {Name: "ledger_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"debit", "credit", "quantity", "unit_price", "uom", "updated_at"}),
		}).Create(&rows).Error
	})
}

// AddToBalance adds amounts to a ledger's opening balance and re-nets the sides
func (r *balanceRepository) AddToBalance(ctx context.Context, yearID, ledgerID uint, debit, credit decimal.Decimal) (*models.YearLedgerBalance, error) {
	var result models.YearLedgerBalance
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("fiscal_year_id = ? AND ledger_id = ?", yearID, ledgerID).
			First(&result).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			result = models.YearLedgerBalance{FiscalYearID: yearID, LedgerID: ledgerID}
		} else if err != nil {
			return err
		}

		result.Debit, result.Credit = models.NetSides(result.Debit.Add(debit), result.Credit.Add(credit))
		return tx.Save(&result).Error
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}
