package jobs

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/templeerp/yearend/pkg/logger"
)

// Job represents a background task
type Job func(ctx context.Context) error

// Worker runs background jobs (year-end closings) and scheduled maintenance
type Worker struct {
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	asyncSem      chan struct{}
	maxConcurrent int
	stats         WorkerStats
	running       map[string]time.Time
	lastRuns      map[string]JobRun
	statsMu       sync.RWMutex
}

// WorkerStats holds statistics about the worker
type WorkerStats struct {
	ActiveJobs    int   `json:"active_jobs"`
	CompletedJobs int64 `json:"completed_jobs"`
	FailedJobs    int64 `json:"failed_jobs"`
	MaxConcurrent int   `json:"max_concurrent"`
}

// RunningJob is a job currently executing
type RunningJob struct {
	Name      string    `json:"name"`
	StartedAt time.Time `json:"started_at"`
}

// JobRun is the outcome of the most recent execution of a named job
type JobRun struct {
	FinishedAt time.Time     `json:"finished_at"`
	Elapsed    time.Duration `json:"elapsed"`
	Error      string        `json:"error,omitempty"`
}

// NewWorker creates a worker that runs at most maxConcurrent async jobs at once
func NewWorker(maxConcurrent int) *Worker {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		ctx:           ctx,
		cancel:        cancel,
		asyncSem:      make(chan struct{}, maxConcurrent),
		maxConcurrent: maxConcurrent,
		running:       make(map[string]time.Time),
		lastRuns:      make(map[string]JobRun),
	}
}

// EnqueueAsync runs a job in its own goroutine, bounded by the concurrency limit.
// The job receives the worker context, not the caller's, so it outlives the request that started it.
func (w *Worker) EnqueueAsync(name string, job Job) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		select {
		case w.asyncSem <- struct{}{}:
		case <-w.ctx.Done():
			logger.Warn("Worker stopped before job started", "job", name)
			return
		}
		defer func() { <-w.asyncSem }()

		w.run(w.ctx, name, job)
	}()
}

// EnqueueUncancelable runs a job that must not be interrupted once it has started.
// Its context ignores Shutdown, which still waits for it to return. When the worker stops
// before the job gets a slot, dropped is called with the cause instead of running the job.
func (w *Worker) EnqueueUncancelable(name string, job Job, dropped func(error)) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		select {
		case w.asyncSem <- struct{}{}:
		case <-w.ctx.Done():
			logger.Warn("Worker stopped before job started", "job", name)
			if dropped != nil {
				dropped(w.ctx.Err())
			}
			return
		}
		defer func() { <-w.asyncSem }()

		w.run(context.WithoutCancel(w.ctx), name, job)
	}()
}

// ScheduleEvery runs a job at fixed intervals. The first run happens after the interval.
func (w *Worker) ScheduleEvery(name string, interval time.Duration, job Job) {
	w.schedule(name, interval, false, job)
}

// ScheduleEveryImmediate runs a job once at startup, then at fixed intervals
func (w *Worker) ScheduleEveryImmediate(name string, interval time.Duration, job Job) {
	w.schedule(name, interval, true, job)
}

func (w *Worker) schedule(name string, interval time.Duration, immediate bool, job Job) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if immediate {
			w.run(w.ctx, name, job)
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-w.ctx.Done():
				return
			case <-ticker.C:
				w.run(w.ctx, name, job)
			}
		}
	}()
}

func (w *Worker) run(ctx context.Context, name string, job Job) {
	start := time.Now()
	w.trackJobStart(name, start)
	var err error
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Job panic", "job", name, "panic", fmt.Sprint(r))
			err = fmt.Errorf("panic: %v", r)
		}
		w.trackJobEnd(name, start, err)
	}()

	if err = job(ctx); err != nil {
		logger.Error("Job failed", "job", name, "error", err, "elapsed", time.Since(start))
		return
	}
	logger.Info("Job completed", "job", name, "elapsed", time.Since(start))
}

// Shutdown cancels the worker context and waits for running jobs to return
func (w *Worker) Shutdown() {
	w.cancel()
	w.wg.Wait()
}

// ShutdownTimeout is Shutdown bounded by timeout. It reports whether every job returned in time.
func (w *Worker) ShutdownTimeout(timeout time.Duration) bool {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Context returns the worker's context for checking cancellation
func (w *Worker) Context() context.Context {
	return w.ctx
}

// GetStats returns the current worker statistics
func (w *Worker) GetStats() WorkerStats {
	w.statsMu.RLock()
	defer w.statsMu.RUnlock()
	stats := w.stats
	stats.MaxConcurrent = w.maxConcurrent
	return stats
}

// Running lists the jobs currently executing whose name starts with prefix, oldest first
func (w *Worker) Running(prefix string) []RunningJob {
	w.statsMu.RLock()
	defer w.statsMu.RUnlock()
	jobs := make([]RunningJob, 0, len(w.running))
	for name, startedAt := range w.running {
		if strings.HasPrefix(name, prefix) {
			jobs = append(jobs, RunningJob{Name: name, StartedAt: startedAt})
		}
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].StartedAt.Before(jobs[j].StartedAt) })
	return jobs
}

// LastRun returns the outcome of the latest finished execution of the named job
func (w *Worker) LastRun(name string) (JobRun, bool) {
	w.statsMu.RLock()
	defer w.statsMu.RUnlock()
	run, ok := w.lastRuns[name]
	return run, ok
}

func (w *Worker) trackJobStart(name string, start time.Time) {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	w.stats.ActiveJobs++
	w.running[name] = start
}

// trackJobEnd counts every finished job as completed; failures are also counted separately
func (w *Worker) trackJobEnd(name string, start time.Time, err error) {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	w.stats.ActiveJobs--
	w.stats.CompletedJobs++
	delete(w.running, name)

	run := JobRun{FinishedAt: time.Now(), Elapsed: time.Since(start)}
	if err != nil {
		w.stats.FailedJobs++
		run.Error = err.Error()
	}
	w.lastRuns[name] = run
}
