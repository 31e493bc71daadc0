package recovery

import (
	"context"

	"github.com/nguyentantai21042004/meeting-recorder/internal/upload"
)

// Recoverer re-uploads working dirs that a pipeline run preserved after a
// partial upload.
type Recoverer interface {
	// Recover uploads dir and removes it once every file reached the
	// destination.
	Recover(ctx context.Context, dir string) (upload.Result, error)
}

// Watcher monitors a drop folder and recovers every session folder moved
// into it.
type Watcher interface {
	Start(ctx context.Context) error
	Stop() error
}
