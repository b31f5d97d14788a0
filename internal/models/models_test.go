package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func day(s string) time.Time {
	t, _ := time.Parse(DateLayout, s)
	return t
}

func TestFiscalYear_NextPeriod(t *testing.T) {
	tests := []struct {
		name      string
		start     string
		end       string
		wantStart string
		wantEnd   string
	}{
		{"april to march", "2024-04-01", "2025-03-31", "2025-04-01", "2026-03-31"},
		{"calendar year", "2024-01-01", "2024-12-31", "2025-01-01", "2025-12-31"},
		{"february month end into leap year", "2023-03-01", "2024-02-29", "2024-03-01", "2025-02-28"},
		{"february month end before leap year", "2022-03-01", "2023-02-28", "2023-03-01", "2024-02-29"},
		{"mid month end", "2024-07-16", "2025-07-15", "2025-07-16", "2026-07-15"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fy := &FiscalYear{StartDate: day(tt.start), EndDate: day(tt.end)}
			start, end := fy.NextPeriod()
			assert.Equal(t, tt.wantStart, start.Format(DateLayout))
			assert.Equal(t, tt.wantEnd, end.Format(DateLayout))
		})
	}
}

func TestFiscalYear_Contains(t *testing.T) {
	fy := &FiscalYear{StartDate: day("2024-04-01"), EndDate: day("2025-03-31")}

	assert.True(t, fy.Contains(day("2024-04-01")))
	assert.True(t, fy.Contains(day("2025-03-31").Add(23*time.Hour)))
	assert.False(t, fy.Contains(day("2025-04-01")))
	assert.False(t, fy.Contains(day("2024-03-31")))
}

func TestClassifyCode(t *testing.T) {
	assert.Equal(t, ClassAssets, ClassifyCode("1100"))
	assert.Equal(t, ClassLiabilities, ClassifyCode("2000"))
	assert.Equal(t, ClassEquity, ClassifyCode("3999"))
	assert.Equal(t, ClassRevenue, ClassifyCode("4010"))
	assert.Equal(t, ClassDirectCost, ClassifyCode("5000"))
	assert.Equal(t, ClassExpense, ClassifyCode("6500"))
	assert.Equal(t, ClassOtherIncome, ClassifyCode("8000"))
	assert.Equal(t, ClassUnclassified, ClassifyCode("7000"))
	assert.Equal(t, ClassUnclassified, ClassifyCode(""))

	assert.True(t, ClassEquity.IsBalanceSheet())
	assert.False(t, ClassRevenue.IsBalanceSheet())
	assert.False(t, ClassUnclassified.IsBalanceSheet())
}

func TestNetSides(t *testing.T) {
	d, c := NetSides(decimal.NewFromInt(300), decimal.NewFromInt(100))
	assert.True(t, d.Equal(decimal.NewFromInt(200)))
	assert.True(t, c.IsZero())

	d, c = NetSides(decimal.NewFromInt(100), decimal.NewFromInt(300))
	assert.True(t, d.IsZero())
	assert.True(t, c.Equal(decimal.NewFromInt(200)))

	d, c = NetSides(decimal.NewFromInt(50), decimal.NewFromInt(50))
	assert.True(t, d.IsZero())
	assert.True(t, c.IsZero())
}

func TestClosingRun_IsStale(t *testing.T) {
	now := time.Now()
	run := &ClosingRun{Status: RunStatusProcessing, UpdatedAt: now.Add(-time.Hour)}

	assert.True(t, run.IsStale(now.Add(-30*time.Minute)))
	assert.False(t, run.IsStale(now.Add(-2*time.Hour)))

	run.Status = RunStatusCompleted
	assert.False(t, run.IsStale(now))
}
