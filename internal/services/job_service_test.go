package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/templeerp/yearend/internal/jobs"
)

func TestJobService_GetStatus(t *testing.T) {
	w := jobs.NewWorker(2)
	svc := NewJobService(w)

	started := make(chan struct{})
	release := make(chan struct{})
	w.EnqueueAsync(closingJobPrefix+"run-1", func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	})
	<-started

	status := svc.GetStatus()
	require.Len(t, status.RunningClosings, 1)
	assert.Equal(t, closingJobPrefix+"run-1", status.RunningClosings[0].Name)
	assert.Nil(t, status.LastStaleSweep)
	assert.Equal(t, 2, status.MaxConcurrent)

	close(release)
	w.ScheduleEveryImmediate(StaleSweepJob, time.Hour, func(ctx context.Context) error {
		return errors.New("database unavailable")
	})
	assert.Eventually(t, func() bool { return svc.GetStatus().LastStaleSweep != nil }, time.Second, 10*time.Millisecond)
	w.Shutdown()

	status = svc.GetStatus()
	assert.Empty(t, status.RunningClosings)
	assert.Equal(t, "database unavailable", status.LastStaleSweep.Error)
	assert.EqualValues(t, 1, status.FailedJobs)
}
