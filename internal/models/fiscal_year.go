package models

import (
	"time"
)

// FiscalYear represents one accounting period of an organization
type FiscalYear struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	OrganizationID uint       `gorm:"not null;index" json:"organization_id"`
	StartDate      time.Time  `gorm:"type:date;not null;index" json:"start_date"`
	EndDate        time.Time  `gorm:"type:date;not null" json:"end_date"`
	Active         bool       `gorm:"default:false;index" json:"active"`
	Closed         bool       `gorm:"default:false" json:"closed"`
	ClosedAt       *time.Time `json:"closed_at"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// TableName specifies the table name for FiscalYear
func (FiscalYear) TableName() string {
	return "fiscal_years"
}

// IsClosed returns true once the year has been closed
func (f *FiscalYear) IsClosed() bool {
	return f.Closed
}

// Contains reports whether the calendar date of t falls inside the year window
func (f *FiscalYear) Contains(t time.Time) bool {
	d := DateOnly(t)
	return !d.Before(DateOnly(f.StartDate)) && !d.After(DateOnly(f.EndDate))
}

// NextPeriod returns the start and end dates of the following year.
// Both dates move forward exactly one year; an end date on the last day of
// its month stays on the last day of that month (Feb 28 -> Feb 29 on leap years).
func (f *FiscalYear) NextPeriod() (time.Time, time.Time) {
	return shiftOneYear(DateOnly(f.StartDate)), shiftOneYear(DateOnly(f.EndDate))
}

// Label returns a short human readable period, e.g. "2024-04-01 - 2025-03-31"
func (f *FiscalYear) Label() string {
	return f.StartDate.Format(DateLayout) + " - " + f.EndDate.Format(DateLayout)
}

// FiscalYearResponse is the JSON response format
type FiscalYearResponse struct {
	ID        uint       `json:"id"`
	StartDate string     `json:"start_date"`
	EndDate   string     `json:"end_date"`
	Active    bool       `json:"active"`
	Closed    bool       `json:"closed"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
}

// ToResponse converts FiscalYear to FiscalYearResponse
func (f *FiscalYear) ToResponse() FiscalYearResponse {
	return FiscalYearResponse{
		ID:        f.ID,
		StartDate: f.StartDate.Format(DateLayout),
		EndDate:   f.EndDate.Format(DateLayout),
		Active:    f.Active,
		Closed:    f.Closed,
		ClosedAt:  f.ClosedAt,
	}
}

// DateLayout is the wire format for calendar dates
const DateLayout = "2006-01-02"

// DateOnly truncates t to midnight UTC of its calendar date
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func shiftOneYear(t time.Time) time.Time {
	y, m, d := t.Date()
	lastDay := daysIn(y, m)
	nextLast := daysIn(y+1, m)
	if d == lastDay || d > nextLast {
		d = nextLast
	}
	return time.Date(y+1, m, d, 0, 0, 0, 0, time.UTC)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
