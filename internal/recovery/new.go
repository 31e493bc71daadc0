package recovery

import (
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/nguyentantai21042004/meeting-recorder/internal/logger"
	"github.com/nguyentantai21042004/meeting-recorder/internal/upload"
)

// New creates a Recoverer over uploader.
func New(uploader upload.Uploader, log logger.Logger) Recoverer {
	return &implRecoverer{
		uploader: uploader,
		logger:   log,
	}
}

// NewWatcher watches dropDir and hands new session folders to rec, at most
// maxConcurrent at a time.
func NewWatcher(dropDir string, rec Recoverer, log logger.Logger, maxConcurrent int) (Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	if err := watcher.Add(dropDir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("add watch path: %w", err)
	}

	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	return &implWatcher{
		dropDir:       dropDir,
		recoverer:     rec,
		logger:        log,
		watcher:       watcher,
		maxConcurrent: maxConcurrent,
		semaphore:     make(chan struct{}, maxConcurrent),
		settle:        500 * time.Millisecond,
		inFlight:      make(map[string]bool),
	}, nil
}
