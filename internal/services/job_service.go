package services

import (
	"github.com/templeerp/yearend/internal/jobs"
)

// StaleSweepJob is the worker name of the scheduled sweep that marks abandoned closing runs
const StaleSweepJob = "closing_stale_sweep"

// workerStats is satisfied by *jobs.Worker
type workerStats interface {
	GetStats() jobs.WorkerStats
	Running(prefix string) []jobs.RunningJob
	LastRun(name string) (jobs.JobRun, bool)
}

// JobStatus describes the background worker for operators
type JobStatus struct {
	jobs.WorkerStats
	RunningClosings []jobs.RunningJob `json:"running_closings"`
	LastStaleSweep  *jobs.JobRun      `json:"last_stale_sweep"`
}

type JobService struct {
	worker workerStats
}

func NewJobService(worker workerStats) *JobService {
	return &JobService{
		worker: worker,
	}
}

// GetStatus returns worker counters, the closings currently executing in this process and the latest sweep outcome
func (s *JobService) GetStatus() *JobStatus {
	status := &JobStatus{
		WorkerStats:     s.worker.GetStats(),
		RunningClosings: s.worker.Running(closingJobPrefix),
	}
	if last, ok := s.worker.LastRun(StaleSweepJob); ok {
		status.LastStaleSweep = &last
	}
	return status
}
