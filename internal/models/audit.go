package models

import (
	"time"
)

// AuditLog represents a system audit entry
type AuditLog struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	OrganizationID uint      `gorm:"not null;index" json:"organization_id"`
	UserID         uint      `gorm:"not null" json:"user_id"`
	Action         string    `gorm:"size:50;not null" json:"action"` // CLOSE_START, CLOSE_COMPLETE, CLOSE_FAIL
	Entity         string    `gorm:"size:50;not null" json:"entity"` // FiscalYear, ClosingRun
	EntityID       uint      `json:"entity_id"`
	Details        string    `gorm:"type:text" json:"details"`
	IPAddress      string    `gorm:"size:45" json:"ip_address"`
	UserAgent      string    `gorm:"size:255" json:"user_agent"`
	CreatedAt      time.Time `gorm:"index" json:"created_at"`
}

// TableName specifies the table name for AuditLog
func (AuditLog) TableName() string {
	return "audit_logs"
}

// Audit actions written by the closing service
const (
	AuditActionCloseStart    = "CLOSE_START"
	AuditActionCloseComplete = "CLOSE_COMPLETE"
	AuditActionCloseFail     = "CLOSE_FAIL"
)
