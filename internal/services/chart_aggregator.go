package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/templeerp/yearend/internal/models"
	"github.com/templeerp/yearend/internal/repository"
)

// ChartTree is an adjacency-list view of an organization's chart of accounts
type ChartTree struct {
	groups   map[uint]*models.AccountGroup
	children map[uint][]uint
	ledgers  map[uint][]*models.Ledger
	roots    []*models.AccountGroup
	all      []*models.Ledger
}

// NewChartTree indexes groups by parent and ledgers by group
func NewChartTree(groups []models.AccountGroup, ledgers []models.Ledger) *ChartTree {
	t := &ChartTree{
		groups:   make(map[uint]*models.AccountGroup, len(groups)),
		children: make(map[uint][]uint),
		ledgers:  make(map[uint][]*models.Ledger),
	}
	for i := range groups {
		g := &groups[i]
		t.groups[g.ID] = g
	}
	for i := range groups {
		g := &groups[i]
		if g.IsRoot() {
			t.roots = append(t.roots, g)
			continue
		}
		t.children[*g.ParentID] = append(t.children[*g.ParentID], g.ID)
	}
	for i := range ledgers {
		l := &ledgers[i]
		t.ledgers[l.GroupID] = append(t.ledgers[l.GroupID], l)
		t.all = append(t.all, l)
	}
	return t
}

// Ledgers returns every ledger of the chart in load order
func (t *ChartTree) Ledgers() []*models.Ledger {
	return t.all
}

// Group returns the group with the given id, or nil
func (t *ChartTree) Group(id uint) *models.AccountGroup {
	return t.groups[id]
}

// Classification returns the class of the group a ledger belongs to
func (t *ChartTree) Classification(ledger *models.Ledger) models.Classification {
	if g := t.groups[ledger.GroupID]; g != nil {
		return g.Classification()
	}
	return models.ClassUnclassified
}

// Roots returns the root groups whose code starts with prefix
func (t *ChartTree) Roots(prefix string) []*models.AccountGroup {
	var roots []*models.AccountGroup
	for _, g := range t.roots {
		if strings.HasPrefix(g.Code, prefix) {
			roots = append(roots, g)
		}
	}
	return roots
}

// Walk visits every ledger in the subtree of groupID, depth first.
// A group reached twice (a cycle in parent references) is not descended again.
func (t *ChartTree) Walk(groupID uint, visit func(*models.Ledger) error) error {
	return t.walk(groupID, make(map[uint]bool), visit)
}

func (t *ChartTree) walk(groupID uint, seen map[uint]bool, visit func(*models.Ledger) error) error {
	if seen[groupID] {
		return nil
	}
	seen[groupID] = true

	for _, l := range t.ledgers[groupID] {
		if err := visit(l); err != nil {
			return err
		}
	}
	for _, child := range t.children[groupID] {
		if err := t.walk(child, seen, visit); err != nil {
			return err
		}
	}
	return nil
}

// Total sums the signed net balance (debit minus credit) of every ledger under the prefix roots
func (t *ChartTree) Total(ctx context.Context, prefix string, snap *BalanceSnapshot) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, root := range t.Roots(prefix) {
		err := t.Walk(root.ID, func(l *models.Ledger) error {
			b, err := snap.Balance(ctx, l)
			if err != nil {
				return err
			}
			total = total.Add(b.Net())
			return nil
		})
		if err != nil {
			return decimal.Zero, err
		}
	}
	return total, nil
}

// ClassTotals holds the signed group totals of every top-level class
type ClassTotals struct {
	Assets      decimal.Decimal `json:"assets"`
	Liabilities decimal.Decimal `json:"liabilities"`
	Equity      decimal.Decimal `json:"equity"`
	Revenue     decimal.Decimal `json:"revenue"`
	DirectCost  decimal.Decimal `json:"direct_cost"`
	Expenses    decimal.Decimal `json:"expenses"`
	OtherIncome decimal.Decimal `json:"other_income"`
}

// ChartAggregator computes group totals, trial balances and P&L over the chart of accounts
type ChartAggregator struct {
	chartRepo repository.ChartRepository
	calc      *BalanceCalculator
}

func NewChartAggregator(chartRepo repository.ChartRepository, calc *BalanceCalculator) *ChartAggregator {
	return &ChartAggregator{
		chartRepo: chartRepo,
		calc:      calc,
	}
}

// LoadTree reads the organization's groups and ledgers
func (a *ChartAggregator) LoadTree(ctx context.Context, orgID uint) (*ChartTree, error) {
	groups, err := a.chartRepo.ListGroups(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to load account groups: %w", err)
	}
	ledgers, err := a.chartRepo.ListLedgers(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledgers: %w", err)
	}
	return NewChartTree(groups, ledgers), nil
}

// GroupTotal returns the signed total of the root groups whose code starts with codePrefix
func (a *ChartAggregator) GroupTotal(ctx context.Context, orgID uint, codePrefix string, year *models.FiscalYear, asOf time.Time) (decimal.Decimal, error) {
	tree, err := a.LoadTree(ctx, orgID)
	if err != nil {
		return decimal.Zero, err
	}
	return tree.Total(ctx, codePrefix, a.calc.Snapshot(year, asOf))
}

// ClassTotals computes all seven class totals in one pass
func (a *ChartAggregator) ClassTotals(ctx context.Context, tree *ChartTree, snap *BalanceSnapshot) (ClassTotals, error) {
	var totals ClassTotals
	targets := []struct {
		prefix string
		dst    *decimal.Decimal
	}{
		{models.PrefixAssets, &totals.Assets},
		{models.PrefixLiabilities, &totals.Liabilities},
		{models.PrefixEquity, &totals.Equity},
		{models.PrefixRevenue, &totals.Revenue},
		{models.PrefixDirectCost, &totals.DirectCost},
		{models.PrefixExpense, &totals.Expenses},
		{models.PrefixOtherIncome, &totals.OtherIncome},
	}
	for _, target := range targets {
		total, err := tree.Total(ctx, target.prefix, snap)
		if err != nil {
			return ClassTotals{}, err
		}
		*target.dst = total
	}
	return totals, nil
}
