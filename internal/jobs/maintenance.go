package jobs

import (
	"context"
	"time"

	"github.com/nguyentantai21042004/meeting-recorder/internal/logger"
	"github.com/nguyentantai21042004/meeting-recorder/internal/scheduler"
)

// Sessions is the part of the session manager the maintenance jobs drive.
type Sessions interface {
	ExpirePending(ctx context.Context, timeout time.Duration) int
	Prune(cutoff time.Time) int
}

// Scheduler retries binding of waiting sessions.
type Scheduler interface {
	ScheduleAll(ctx context.Context) []scheduler.Assignment
}

// Resetter drops a cached connection.
type Resetter interface {
	Reset()
}

// Archive deletes old archived sessions.
type Archive interface {
	DeleteEndedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Schedule holds the maintenance intervals. A zero interval disables a job.
type Schedule struct {
	PendingTimeout   time.Duration
	PendingInterval  time.Duration
	ScheduleInterval time.Duration
	UploadReset      time.Duration
	PruneInterval    time.Duration
	SessionRetention time.Duration
	ArchiveRetention time.Duration
}

// Maintenance builds the recorder's periodic jobs. cache and archive may
// be nil.
func Maintenance(s Schedule, sessions Sessions, sched Scheduler, cache Resetter, archive Archive, log logger.Logger) []Job {
	now := time.Now
	pendingInterval := s.PendingInterval
	if pendingInterval <= 0 && s.PendingTimeout > 0 {
		pendingInterval = min(s.PendingTimeout/4, 30*time.Second)
	}

	jobs := []Job{
		{
			Name:     "pending_expiry",
			Interval: pendingInterval,
			Run: func(ctx context.Context) error {
				if n := sessions.ExpirePending(ctx, s.PendingTimeout); n > 0 {
					log.Info(ctx, "Closed %d sessions that found no worker", n)
				}
				return nil
			},
		},
		{
			Name:     "schedule_all",
			Interval: s.ScheduleInterval,
			Run: func(ctx context.Context) error {
				if bound := sched.ScheduleAll(ctx); len(bound) > 0 {
					log.Info(ctx, "Bound %d waiting sessions", len(bound))
				}
				return nil
			},
		},
		{
			Name:     "session_prune",
			Interval: s.PruneInterval,
			Run: func(ctx context.Context) error {
				if n := sessions.Prune(now().Add(-s.SessionRetention)); n > 0 {
					log.Debug(ctx, "Pruned %d closed sessions", n)
				}
				return nil
			},
		},
	}
	if cache != nil {
		jobs = append(jobs, Job{
			Name:     "upload_cache_reset",
			Interval: s.UploadReset,
			Run: func(ctx context.Context) error {
				cache.Reset()
				log.Info(ctx, "Upload service cache reset")
				return nil
			},
		})
	}
	if archive != nil && s.ArchiveRetention > 0 {
		jobs = append(jobs, Job{
			Name:     "archive_retention",
			Interval: time.Hour,
			Run: func(ctx context.Context) error {
				n, err := archive.DeleteEndedBefore(ctx, now().Add(-s.ArchiveRetention))
				if err != nil {
					return err
				}
				if n > 0 {
					log.Info(ctx, "Deleted %d archived sessions", n)
				}
				return nil
			},
		})
	}
	return jobs
}
