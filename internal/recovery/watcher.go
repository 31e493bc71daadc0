package recovery

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/nguyentantai21042004/meeting-recorder/internal/logger"
	"github.com/nguyentantai21042004/meeting-recorder/internal/pipeline"
)

type implWatcher struct {
	dropDir       string
	recoverer     Recoverer
	logger        logger.Logger
	watcher       *fsnotify.Watcher
	maxConcurrent int
	semaphore     chan struct{}
	settle        time.Duration
	wg            sync.WaitGroup

	mu       sync.Mutex
	inFlight map[string]bool
}

// Start recovers folders already in the drop dir, then every folder created
// or moved into it until ctx is done.
func (w *implWatcher) Start(ctx context.Context) error {
	w.logger.Info(ctx, "Recovery watcher started (max concurrent: %d). Monitoring: %s", w.maxConcurrent, w.dropDir)

	entries, err := os.ReadDir(w.dropDir)
	if err != nil {
		return fmt.Errorf("read drop dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			if err := w.dispatch(ctx, filepath.Join(w.dropDir, e.Name())); err != nil {
				return err
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Info(ctx, "Waiting for ongoing recoveries to complete...")
			w.wg.Wait()
			w.logger.Info(ctx, "Recovery watcher stopped")
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if event.Op&fsnotify.Create != fsnotify.Create {
				continue
			}
			info, err := os.Stat(event.Name)
			if err != nil || !info.IsDir() {
				w.logger.Debug(ctx, "Ignoring non-folder entry: %s", event.Name)
				continue
			}
			w.logger.Info(ctx, "New session folder detected: %s", event.Name)
			if err := w.dispatch(ctx, event.Name); err != nil {
				return err
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Error(ctx, "Watcher error: %v", err)
		}
	}
}

// dispatch recovers dir in the background once a semaphore slot is free.
func (w *implWatcher) dispatch(ctx context.Context, dir string) error {
	w.mu.Lock()
	if w.inFlight[dir] {
		w.mu.Unlock()
		return nil
	}
	w.inFlight[dir] = true
	w.mu.Unlock()

	select {
	case w.semaphore <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer func() { <-w.semaphore }()
		defer func() {
			w.mu.Lock()
			delete(w.inFlight, dir)
			w.mu.Unlock()
		}()

		// a folder being copied in may not have its metadata yet
		select {
		case <-time.After(w.settle):
		case <-ctx.Done():
			return
		}
		if _, err := os.Stat(filepath.Join(dir, pipeline.MetadataFile)); err != nil {
			w.logger.Warn(ctx, "Skipping %s: no %s", dir, pipeline.MetadataFile)
			return
		}
		if _, err := w.recoverer.Recover(ctx, dir); err != nil {
			w.logger.Error(ctx, "Failed to recover %s: %v", dir, err)
		}
	}()
	return nil
}

// Stop closes the file watcher
func (w *implWatcher) Stop() error {
	return w.watcher.Close()
}
