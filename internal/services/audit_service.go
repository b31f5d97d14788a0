package services

import (
	"context"

	"github.com/templeerp/yearend/internal/models"
	"github.com/templeerp/yearend/internal/repository"
)

type AuditService struct {
	repo repository.AuditRepository
}

func NewAuditService(repo repository.AuditRepository) *AuditService {
	return &AuditService{repo: repo}
}

// Log records an audit entry
func (s *AuditService) Log(ctx context.Context, orgID, userID uint, action, entity string, entityID uint, details, ip, userAgent string) error {
	logEntry := &models.AuditLog{
		OrganizationID: orgID,
		UserID:         userID,
		Action:         action,
		Entity:         entity,
		EntityID:       entityID,
		Details:        details,
		IPAddress:      ip,
		UserAgent:      userAgent,
	}
	return s.repo.Create(ctx, logEntry)
}

// List retrieves the audit trail of an organization, newest first
func (s *AuditService) List(ctx context.Context, orgID uint, query *repository.ListQuery) ([]models.AuditLog, int64, error) {
	return s.repo.List(ctx, orgID, query)
}
