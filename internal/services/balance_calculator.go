package services

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/templeerp/yearend/internal/models"
	"github.com/templeerp/yearend/internal/repository"
)

// LedgerBalance is the netted closing balance of one ledger.
// At most one of Debit and Credit is non-zero.
type LedgerBalance struct {
	LedgerID  uint             `json:"ledger_id"`
	Debit     decimal.Decimal  `json:"debit"`
	Credit    decimal.Decimal  `json:"credit"`
	Quantity  *decimal.Decimal `json:"quantity,omitempty"`
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"`
	UOM       *string          `json:"uom,omitempty"`
}

// Net returns debit minus credit
func (b LedgerBalance) Net() decimal.Decimal {
	return b.Debit.Sub(b.Credit)
}

// IsZero returns true when the ledger carries no amount
func (b LedgerBalance) IsZero() bool {
	return b.Debit.IsZero() && b.Credit.IsZero()
}

// BalanceCalculator combines a year's opening balance with journal activity
type BalanceCalculator struct {
	balanceRepo repository.BalanceRepository
	journalRepo repository.JournalRepository
}

func NewBalanceCalculator(balanceRepo repository.BalanceRepository, journalRepo repository.JournalRepository) *BalanceCalculator {
	return &BalanceCalculator{
		balanceRepo: balanceRepo,
		journalRepo: journalRepo,
	}
}

// ComputeClosingBalance returns the ledger balance for year as of asOf.
// Activity is summed over [year.StartDate, asOf]; asOf past the year end is clamped to it.
func (c *BalanceCalculator) ComputeClosingBalance(ctx context.Context, ledger *models.Ledger, year *models.FiscalYear, asOf time.Time) (LedgerBalance, error) {
	to := models.DateOnly(asOf)
	if end := models.DateOnly(year.EndDate); to.After(end) {
		to = end
	}

	opening, err := c.balanceRepo.FindOpening(ctx, year.ID, ledger.ID)
	if err != nil {
		return LedgerBalance{}, fmt.Errorf("failed to load opening balance of ledger %d: %w", ledger.ID, err)
	}

	debit, credit := decimal.Zero, decimal.Zero
	var openingQty, openingPrice *decimal.Decimal
	uom := ledger.UOM
	if opening != nil {
		debit, credit = opening.Debit, opening.Credit
		openingQty, openingPrice = opening.Quantity, opening.UnitPrice
		if opening.UOM != nil {
			uom = opening.UOM
		}
	}

	period := repository.LineTotals{}
	if !to.Before(models.DateOnly(year.StartDate)) {
		period, err = c.journalRepo.SumByLedger(ctx, ledger.ID, year.StartDate, to)
		if err != nil {
			return LedgerBalance{}, fmt.Errorf("failed to sum journal lines of ledger %d: %w", ledger.ID, err)
		}
	}

	result := LedgerBalance{LedgerID: ledger.ID}
	result.Debit, result.Credit = models.NetSides(debit.Add(period.Debit), credit.Add(period.Credit))

	if openingQty != nil || period.HasQuantity {
		qty := period.QuantityIn.Sub(period.QuantityOut)
		if openingQty != nil {
			qty = qty.Add(*openingQty)
		}
		result.Quantity = &qty
		result.UnitPrice = unitPrice(ledger, result, qty, openingPrice)
		result.UOM = uom
	}

	return result, nil
}

// unitPrice keeps the opening price unless an inventory ledger can derive a weighted average
func unitPrice(ledger *models.Ledger, b LedgerBalance, qty decimal.Decimal, opening *decimal.Decimal) *decimal.Decimal {
	if ledger.IsInventory && !qty.IsZero() {
		avg := b.Net().Abs().Div(qty.Abs()).Round(4)
		return &avg
	}
	return opening
}

// BalanceSnapshot memoizes closing balances for one (year, asOf) pass.
// It is not safe for concurrent use; each pass owns its snapshot.
type BalanceSnapshot struct {
	calc  *BalanceCalculator
	year  *models.FiscalYear
	asOf  time.Time
	cache map[uint]LedgerBalance
}

// Snapshot starts a memoized pass over the ledgers of year as of asOf
func (c *BalanceCalculator) Snapshot(year *models.FiscalYear, asOf time.Time) *BalanceSnapshot {
	return &BalanceSnapshot{
		calc:  c,
		year:  year,
		asOf:  asOf,
		cache: make(map[uint]LedgerBalance),
	}
}

// Balance returns the cached balance of ledger, computing it on first use
func (s *BalanceSnapshot) Balance(ctx context.Context, ledger *models.Ledger) (LedgerBalance, error) {
	if b, ok := s.cache[ledger.ID]; ok {
		return b, nil
	}
	b, err := s.calc.ComputeClosingBalance(ctx, ledger, s.year, s.asOf)
	if err != nil {
		return LedgerBalance{}, err
	}
	s.cache[ledger.ID] = b
	return b, nil
}

// Year returns the fiscal year the snapshot is computed for
func (s *BalanceSnapshot) Year() *models.FiscalYear {
	return s.year
}

// AsOf returns the cut-off date of the snapshot
func (s *BalanceSnapshot) AsOf() time.Time {
	return s.asOf
}
