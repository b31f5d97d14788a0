package models

import (
	"time"
)

// ClosingRun is the persisted job-status record of one year-end closing
type ClosingRun struct {
	ID             uint       `gorm:"primaryKey" json:"-"`
	RunID          string     `gorm:"size:36;uniqueIndex;not null" json:"run_id"`
	OrganizationID uint       `gorm:"not null;index;uniqueIndex:idx_closing_runs_processing,where:status = 'processing'" json:"organization_id"`
	StartedByID    uint       `gorm:"not null" json:"started_by_id"`
	FromYearID     uint       `gorm:"not null" json:"from_year_id"`
	ToYearID       *uint      `json:"to_year_id"`
	Status         string     `gorm:"size:20;not null;index" json:"status"`
	Phase          string     `gorm:"size:30;not null" json:"phase"`
	Percent        int        `gorm:"not null;default:0" json:"percent"`
	Message        string     `gorm:"type:text" json:"message"`
	ProfitLoss     *string    `gorm:"size:32" json:"profit_loss,omitempty"`
	LedgersTotal   int        `json:"ledgers_total"`
	LedgersDone    int        `json:"ledgers_done"`
	SnapshotPath   *string    `json:"snapshot_path,omitempty"`
	CompletedAt    *time.Time `json:"completed_at"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `gorm:"index" json:"updated_at"`
}

// TableName specifies the table name for ClosingRun
func (ClosingRun) TableName() string {
	return "closing_runs"
}

// Run status constants
const (
	RunStatusIdle       = "idle"
	RunStatusProcessing = "processing"
	RunStatusCompleted  = "completed"
	RunStatusError      = "error"
)

// Closing phases
const (
	PhaseIdle         = "idle"
	PhaseValidating   = "validating"
	PhaseCreatingYear = "creating_year"
	PhaseCalculatePnL = "calculating_pnl"
	PhaseTransferring = "transferring_balances"
	PhasePostingPnL   = "posting_pnl"
	PhaseLocking      = "locking_entries"
	PhaseFinalizing   = "finalizing"
	PhaseCompleted    = "completed"
	PhaseError        = "error"
)

// ErrorPercent is reported when a run fails
const ErrorPercent = -1

// IsProcessing returns true while the run is still working
func (r *ClosingRun) IsProcessing() bool {
	return r.Status == RunStatusProcessing
}

// IsStale reports whether a processing run stopped reporting before cutoff
func (r *ClosingRun) IsStale(cutoff time.Time) bool {
	return r.IsProcessing() && r.UpdatedAt.Before(cutoff)
}
