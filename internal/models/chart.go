package models

import (
	"time"
)

// Classification is the top-level chart-of-accounts category of a group
type Classification string

// Classification constants, keyed by the first digit of the group code
const (
	ClassAssets       Classification = "assets"
	ClassLiabilities  Classification = "liabilities"
	ClassEquity       Classification = "equity"
	ClassRevenue      Classification = "revenue"
	ClassDirectCost   Classification = "direct_cost"
	ClassExpense      Classification = "expense"
	ClassOtherIncome  Classification = "other_income"
	ClassUnclassified Classification = "unclassified"
)

// Code prefixes of the top-level classes
const (
	PrefixAssets      = "1"
	PrefixLiabilities = "2"
	PrefixEquity      = "3"
	PrefixRevenue     = "4"
	PrefixDirectCost  = "5"
	PrefixExpense     = "6"
	PrefixOtherIncome = "8"
)

// ClassifyCode maps a group code to its classification
func ClassifyCode(code string) Classification {
	if code == "" {
		return ClassUnclassified
	}
	switch code[0] {
	case '1':
		return ClassAssets
	case '2':
		return ClassLiabilities
	case '3':
		return ClassEquity
	case '4':
		return ClassRevenue
	case '5':
		return ClassDirectCost
	case '6':
		return ClassExpense
	case '8':
		return ClassOtherIncome
	}
	return ClassUnclassified
}

// IsBalanceSheet returns true for assets, liabilities and equity.
// Everything else is a temporary account that resets every period.
func (c Classification) IsBalanceSheet() bool {
	return c == ClassAssets || c == ClassLiabilities || c == ClassEquity
}

// AccountGroup is a node of the chart-of-accounts tree
type AccountGroup struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	OrganizationID uint      `gorm:"not null;index" json:"organization_id"`
	Code           string    `gorm:"size:20;not null;index" json:"code"`
	Name           string    `gorm:"not null" json:"name"`
	ParentID       *uint     `gorm:"index" json:"parent_id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`

	// Associations
	Parent *AccountGroup `gorm:"foreignKey:ParentID" json:"-"`
}

// TableName specifies the table name for AccountGroup
func (AccountGroup) TableName() string {
	return "account_groups"
}

// Classification returns the top-level class of the group
func (g *AccountGroup) Classification() Classification {
	return ClassifyCode(g.Code)
}

// IsRoot returns true if the group has no parent
func (g *AccountGroup) IsRoot() bool {
	return g.ParentID == nil
}

// Ledger is a leaf account of the chart of accounts
type Ledger struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	OrganizationID uint      `gorm:"not null;index" json:"organization_id"`
	GroupID        uint      `gorm:"not null;index" json:"group_id"`
	Name           string    `gorm:"not null" json:"name"`
	PA             bool      `gorm:"column:pa;default:false;index" json:"pa"` // retained earnings / P&L accumulation
	IsInventory    bool      `gorm:"default:false" json:"is_inventory"`
	UOM            *string   `gorm:"size:20" json:"uom"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`

	// Associations
	Group *AccountGroup `gorm:"foreignKey:GroupID" json:"group,omitempty"`
}

// TableName specifies the table name for Ledger
func (Ledger) TableName() string {
	return "ledgers"
}
