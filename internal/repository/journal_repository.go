package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/templeerp/yearend/internal/models"

	"gorm.io/gorm"
)

// LineTotals is the period activity of one ledger split by side
type LineTotals struct {
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	QuantityIn  decimal.Decimal
	QuantityOut decimal.Decimal
	HasQuantity bool
}

// JournalRepository defines the interface for journal data access
type JournalRepository interface {
	SumByLedger(ctx context.Context, ledgerID uint, from, to time.Time) (LineTotals, error)
	LockEntries(ctx context.Context, orgID uint, from, to time.Time) (int64, error)
}

type journalRepository struct {
	db *gorm.DB
}

// NewJournalRepository creates a new journal repository
func NewJournalRepository(db *gorm.DB) JournalRepository {
	return &journalRepository{db: db}
}

// SumByLedger totals the lines of a ledger whose entry date is within [from, to]
func (r *journalRepository) SumByLedger(ctx context.Context, ledgerID uint, from, to time.Time) (LineTotals, error) {
	var rows []struct {
		Side     string
		Amount   decimal.Decimal
		Quantity decimal.NullDecimal
	}

	err := r.db.WithContext(ctx).
		Table("journal_lines").
		Select("journal_lines.side AS side, COALESCE(SUM(journal_lines.amount), 0) AS amount, SUM(journal_lines.quantity) AS quantity").
		Joins("JOIN journal_entries ON journal_entries.id = journal_lines.journal_entry_id").
		Where("journal_lines.ledger_id = ? AND journal_entries.entry_date BETWEEN ? AND ?",
			ledgerID, models.DateOnly(from), models.DateOnly(to)).
		Group("journal_lines.side").
		Scan(&rows).Error
	if err != nil {
		return LineTotals{}, err
	}

	totals := LineTotals{}
	for _, row := range rows {
		if row.Side == models.SideDebit {
			totals.Debit = totals.Debit.Add(row.Amount)
			if row.Quantity.Valid {
				totals.QuantityIn = totals.QuantityIn.Add(row.Quantity.Decimal)
				totals.HasQuantity = true
			}
			continue
		}
		totals.Credit = totals.Credit.Add(row.Amount)
		if row.Quantity.Valid {
			totals.QuantityOut = totals.QuantityOut.Add(row.Quantity.Decimal)
			totals.HasQuantity = true
		}
	}
	return totals, nil
}

// LockEntries flags every entry of the organization dated within [from, to] as locked
func (r *journalRepository) LockEntries(ctx context.Context, orgID uint, from, to time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.JournalEntry{}).
		Where("organization_id = ? AND entry_date BETWEEN ? AND ? AND locked = ?",
			orgID, models.DateOnly(from), models.DateOnly(to), false).
		Updates(map[string]interface{}{"locked": true, "locked_at": time.Now()})
	return result.RowsAffected, result.Error
}
