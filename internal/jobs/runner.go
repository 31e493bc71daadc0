package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/nguyentantai21042004/meeting-recorder/internal/logger"
	"github.com/nguyentantai21042004/meeting-recorder/internal/metrics"
)

// Job is a named periodic task.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Runner runs every job once at start and then on its interval until the
// context ends.
type Runner struct {
	jobs    []Job
	logger  logger.Logger
	metrics *metrics.Metrics
	wg      sync.WaitGroup
}

func NewRunner(log logger.Logger, m *metrics.Metrics, jobs ...Job) *Runner {
	return &Runner{jobs: jobs, logger: log, metrics: m}
}

// Start launches one goroutine per job with a positive interval.
func (r *Runner) Start(ctx context.Context) {
	for _, job := range r.jobs {
		if job.Interval <= 0 || job.Run == nil {
			r.logger.Debug(ctx, "Job %s disabled", job.Name)
			continue
		}
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.runEvery(ctx, job)
		}()
	}
}

// Wait blocks until every job loop has returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) runEvery(ctx context.Context, job Job) {
	r.runOnce(ctx, job)
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.runOnce(ctx, job)
		}
	}
}

func (r *Runner) runOnce(ctx context.Context, job Job) {
	start := time.Now()
	err := job.Run(ctx)
	d := time.Since(start)
	if r.metrics != nil {
		r.metrics.RecordJob(job.Name, err, d)
	}
	if err != nil {
		r.logger.Warn(ctx, "Job %s failed after %s: %v", job.Name, d.Round(time.Millisecond), err)
		return
	}
	r.logger.Debug(ctx, "Job %s finished in %s", job.Name, d.Round(time.Millisecond))
}
