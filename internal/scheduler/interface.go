package scheduler

import (
	"context"
	"time"

	"github.com/nguyentantai21042004/meeting-recorder/internal/models"
	"github.com/nguyentantai21042004/meeting-recorder/internal/worker"
)

// Scheduler binds pool workers to open sessions. A worker is never bound to
// more than one session.
type Scheduler interface {
	// Register sets the pool. Pool order decides which free worker is claimed first.
	Register(workers ...*worker.Worker)
	// RequestAssignment returns a free worker without binding it.
	RequestAssignment() (*worker.Worker, bool)
	// OnSessionOpened queues a session for a worker. Idempotent per id.
	OnSessionOpened(sessionID string)
	// ScheduleAll binds a free worker to every queued session that has none.
	// Unreachable workers are skipped, and a failed bind moves on to the next
	// free worker within the same pass.
	ScheduleAll(ctx context.Context) []Assignment
	// Release frees the worker and removes its session from the queue.
	Release(workerID string)
	// Forget drops a session that never got (or no longer needs) a worker.
	Forget(sessionID string)
	WorkerFor(sessionID string) (*worker.Worker, bool)
	Pending() []Pending
	Workers() []models.WorkerInfo
}

// BindFunc starts recording sessionID on w. An error unbinds the worker and
// leaves the session queued.
type BindFunc func(ctx context.Context, sessionID string, w *worker.Worker) error

// Assignment is one successful binding made by ScheduleAll.
type Assignment struct {
	SessionID string
	WorkerID  string
}

// Pending is a queued session still waiting for a worker.
type Pending struct {
	SessionID string
	Since     time.Time
}
