package repository

import (
	"errors"

	"gorm.io/gorm"
)

// Repositories holds all repository instances
type Repositories struct {
	FiscalYear FiscalYearRepository
	Chart      ChartRepository
	Balance    BalanceRepository
	Journal    JournalRepository
	ClosingRun ClosingRunRepository
	Audit      AuditRepository
}

// NewRepositories creates all repository instances
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		FiscalYear: NewFiscalYearRepository(db),
		Chart:      NewChartRepository(db),
		Balance:    NewBalanceRepository(db),
		Journal:    NewJournalRepository(db),
		ClosingRun: NewClosingRunRepository(db),
		Audit:      NewAuditRepository(db),
	}
}

// Errors raised by guarded writes
var (
	ErrYearNotActive      = errors.New("fiscal year is no longer the active open year")
	ErrActiveYearConflict = errors.New("another fiscal year is already active")
	ErrPALedgerConflict   = errors.New("exactly one profit and loss ledger is required")
	ErrRunInProgress      = errors.New("a closing run is already processing")
)

// ListQuery represents common query parameters
type ListQuery struct {
	Page    int
	PerPage int
}

// NewListQuery creates a ListQuery with defaults
func NewListQuery() *ListQuery {
	return &ListQuery{
		Page:    1,
		PerPage: 20,
	}
}

// Offset returns the row offset of the current page
func (q *ListQuery) Offset() int {
	if q.Page < 1 {
		q.Page = 1
	}
	return (q.Page - 1) * q.Limit()
}

// Limit returns the page size clamped to [1, 100]
func (q *ListQuery) Limit() int {
	if q.PerPage < 1 {
		q.PerPage = 20
	}
	if q.PerPage > 100 {
		q.PerPage = 100
	}
	return q.PerPage
}
