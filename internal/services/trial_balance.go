package services

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/templeerp/yearend/internal/models"
)

// trialBalanceTolerance absorbs rounding dust in the debit/credit comparison
var trialBalanceTolerance = decimal.NewFromFloat(0.01)

// TrialBalance is the debit and credit total over every ledger of an organization
type TrialBalance struct {
	TotalDebit  decimal.Decimal `json:"total_debit"`
	TotalCredit decimal.Decimal `json:"total_credit"`
	Difference  decimal.Decimal `json:"difference"`
	Balanced    bool            `json:"balanced"`
	AsOf        string          `json:"as_of"`
}

// ComputeTrialBalance sums the closing balances of every ledger as of the year end
func (a *ChartAggregator) ComputeTrialBalance(ctx context.Context, orgID uint, year *models.FiscalYear) (TrialBalance, error) {
	tree, err := a.LoadTree(ctx, orgID)
	if err != nil {
		return TrialBalance{}, err
	}
	return trialBalanceOf(ctx, tree.Ledgers(), a.calc.Snapshot(year, year.EndDate))
}

func trialBalanceOf(ctx context.Context, ledgers []*models.Ledger, snap *BalanceSnapshot) (TrialBalance, error) {
	tb := TrialBalance{
		TotalDebit:  decimal.Zero,
		TotalCredit: decimal.Zero,
		AsOf:        snap.AsOf().Format(models.DateLayout),
	}
	for _, l := range ledgers {
		b, err := snap.Balance(ctx, l)
		if err != nil {
			return TrialBalance{}, err
		}
		tb.TotalDebit = tb.TotalDebit.Add(b.Debit)
		tb.TotalCredit = tb.TotalCredit.Add(b.Credit)
	}
	tb.Difference = tb.TotalDebit.Sub(tb.TotalCredit).Abs()
	tb.Balanced = tb.Difference.LessThan(trialBalanceTolerance)
	return tb, nil
}
