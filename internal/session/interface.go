package session

import (
	"context"
	"time"

	"github.com/nguyentantai21042004/meeting-recorder/internal/models"
	"github.com/nguyentantai21042004/meeting-recorder/internal/voice"
	"github.com/nguyentantai21042004/meeting-recorder/internal/worker"
)

// Manager owns the registry of meeting sessions and drives each one through
// Created, Recording, Closing, Finalizing and Closed.
type Manager interface {
	// HandleEvent applies one voice-state change.
	HandleEvent(ctx context.Context, ev voice.Event)
	// Bind starts recording sessionID on w. Used as the scheduler's BindFunc.
	Bind(ctx context.Context, sessionID string, w *worker.Worker) error
	// ExpirePending closes sessions that waited longer than timeout for a worker.
	ExpirePending(ctx context.Context, timeout time.Duration) int
	// Prune forgets closed sessions that ended before cutoff.
	Prune(cutoff time.Time) int
	Get(id string) (models.Snapshot, bool)
	List() []models.Snapshot
	// Shutdown stops every recording and waits for running finalizations.
	Shutdown(ctx context.Context) error
}

// Archiver persists closed sessions.
type Archiver interface {
	SaveSession(ctx context.Context, snap models.Snapshot) error
}
