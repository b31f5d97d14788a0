package services

import (
	"github.com/templeerp/yearend/internal/config"
	"github.com/templeerp/yearend/internal/jobs"
	"github.com/templeerp/yearend/internal/repository"
	"github.com/templeerp/yearend/internal/storage"
)

// Services holds all service instances
type Services struct {
	Closing *YearEndClosingService
	Audit   *AuditService
	Job     *JobService
}

// NewServices creates all service instances
func NewServices(repos *repository.Repositories, worker *jobs.Worker, storage *storage.LocalStorage, cfg *config.Config) *Services {
	auditSvc := NewAuditService(repos.Audit)

	closingSvc := NewYearEndClosingService(repos, auditSvc, worker, storage, ClosingOptions{
		BatchSize:  cfg.ClosingBatchSize,
		StaleAfter: cfg.ClosingStaleAfter,
	})

	return &Services{
		Closing: closingSvc,
		Audit:   auditSvc,
		Job:     NewJobService(worker),
	}
}
