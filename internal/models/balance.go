package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// YearLedgerBalance is the opening balance of one ledger for one fiscal year
type YearLedgerBalance struct {
	ID           uint             `gorm:"primaryKey" json:"id"`
	FiscalYearID uint             `gorm:"not null;uniqueIndex:idx_year_ledger" json:"fiscal_year_id"`
	LedgerID     uint             `gorm:"not null;uniqueIndex:idx_year_ledger;index" json:"ledger_id"`
	Debit        decimal.Decimal  `gorm:"type:decimal(20,2);not null;default:0" json:"debit"`
	Credit       decimal.Decimal  `gorm:"type:decimal(20,2);not null;default:0" json:"credit"`
	Quantity     *decimal.Decimal `gorm:"type:decimal(20,4)" json:"quantity,omitempty"`
	UnitPrice    *decimal.Decimal `gorm:"type:decimal(20,4)" json:"unit_price,omitempty"`
	UOM          *string          `gorm:"size:20" json:"uom,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// TableName specifies the table name for YearLedgerBalance
func (YearLedgerBalance) TableName() string {
	return "year_ledger_balances"
}

// IsZero returns true when neither side carries an amount
func (b *YearLedgerBalance) IsZero() bool {
	return b.Debit.IsZero() && b.Credit.IsZero()
}

// Line sides
const (
	SideDebit  = "debit"
	SideCredit = "credit"
)

// JournalEntry is the header of a double-entry posting
type JournalEntry struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	OrganizationID uint       `gorm:"not null;index" json:"organization_id"`
	EntryDate      time.Time  `gorm:"type:date;not null;index" json:"entry_date"`
	Reference      string     `gorm:"size:100" json:"reference"`
	Locked         bool       `gorm:"default:false;index" json:"locked"`
	LockedAt       *time.Time `json:"locked_at"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`

	// Associations
	Lines []JournalLine `gorm:"foreignKey:JournalEntryID" json:"lines,omitempty"`
}

// TableName specifies the table name for JournalEntry
func (JournalEntry) TableName() string {
	return "journal_entries"
}

// JournalLine is one debit or credit leg of a journal entry
type JournalLine struct {
	ID             uint             `gorm:"primaryKey" json:"id"`
	JournalEntryID uint             `gorm:"not null;index" json:"journal_entry_id"`
	LedgerID       uint             `gorm:"not null;index" json:"ledger_id"`
	Amount         decimal.Decimal  `gorm:"type:decimal(20,2);not null" json:"amount"`
	Side           string           `gorm:"size:6;not null" json:"side"` // debit, credit
	Quantity       *decimal.Decimal `gorm:"type:decimal(20,4)" json:"quantity,omitempty"`
}

// TableName specifies the table name for JournalLine
func (JournalLine) TableName() string {
	return "journal_lines"
}

// IsDebit returns true for debit legs
func (l *JournalLine) IsDebit() bool {
	return l.Side == SideDebit
}

// NetSides nets a debit and a credit total so that at most one side is non-zero.
// A tie returns zero on both sides.
func NetSides(debit, credit decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	switch debit.Cmp(credit) {
	case 1:
		return debit.Sub(credit), decimal.Zero
	case -1:
		return decimal.Zero, credit.Sub(debit)
	}
	return decimal.Zero, decimal.Zero
}
