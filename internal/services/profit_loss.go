package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/templeerp/yearend/internal/models"
)

// ProfitLoss is the result of a period. Net is positive for a profit, negative for a loss.
type ProfitLoss struct {
	Revenue     decimal.Decimal `json:"revenue"`
	OtherIncome decimal.Decimal `json:"other_income"`
	DirectCost  decimal.Decimal `json:"direct_cost"`
	Expenses    decimal.Decimal `json:"expenses"`
	Net         decimal.Decimal `json:"net"`
}

// IsProfit returns true when the period closed with a profit
func (p ProfitLoss) IsProfit() bool {
	return p.Net.IsPositive()
}

// ComputeProfitLoss combines revenue, other income, direct cost and expense totals as of asOf
func (a *ChartAggregator) ComputeProfitLoss(ctx context.Context, orgID uint, year *models.FiscalYear, asOf time.Time) (ProfitLoss, error) {
	tree, err := a.LoadTree(ctx, orgID)
	if err != nil {
		return ProfitLoss{}, err
	}
	return profitLossOf(ctx, tree, a.calc.Snapshot(year, asOf))
}

// profitLossOf reads group totals as signed net debits. Revenue and income are
// credit-normal so they come out negative and are negated into a contribution.
func profitLossOf(ctx context.Context, tree *ChartTree, snap *BalanceSnapshot) (ProfitLoss, error) {
	var pl ProfitLoss
	var err error
	if pl.Revenue, err = tree.Total(ctx, models.PrefixRevenue, snap); err != nil {
		return ProfitLoss{}, err
	}
	if pl.OtherIncome, err = tree.Total(ctx, models.PrefixOtherIncome, snap); err != nil {
		return ProfitLoss{}, err
	}
	if pl.DirectCost, err = tree.Total(ctx, models.PrefixDirectCost, snap); err != nil {
		return ProfitLoss{}, err
	}
	if pl.Expenses, err = tree.Total(ctx, models.PrefixExpense, snap); err != nil {
		return ProfitLoss{}, err
	}

	pl.Net = pl.OtherIncome.Neg().
		Add(pl.Revenue.Neg()).
		Sub(pl.Expenses).
		Sub(pl.DirectCost)
	return pl, nil
}
