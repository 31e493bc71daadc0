package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nguyentantai21042004/meeting-recorder/internal/logger"
	"github.com/nguyentantai21042004/meeting-recorder/internal/models"
	"github.com/nguyentantai21042004/meeting-recorder/internal/voice"
)

// ErrBusy is returned when a worker already runs a recording task.
var ErrBusy = errors.New("worker is busy")

// FinishedFunc receives the capture result of a recording task. It runs on
// the task goroutine before the worker disconnects.
type FinishedFunc func(ctx context.Context, res voice.CaptureResult)

// Worker is one voice identity of the pool. It runs at most one recording
// task at a time and always ends a task disconnected.
type Worker struct {
	ID   string
	Name string

	capture     voice.Capture
	logger      logger.Logger
	stopTimeout time.Duration

	mu    sync.Mutex
	state models.WorkerState
	task  *task
}

type task struct {
	sessionID string
	cancel    context.CancelFunc
	done      chan struct{}
}

// New creates a disconnected worker.
func New(id, name string, capture voice.Capture, log logger.Logger) *Worker {
	if name == "" {
		name = id
	}
	return &Worker{
		ID:          id,
		Name:        name,
		capture:     capture,
		logger:      log,
		stopTimeout: 30 * time.Second,
		state:       models.WorkerDisconnected,
	}
}

func (w *Worker) State() models.WorkerState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Reachable reports whether the worker's voice connection can take a task.
func (w *Worker) Reachable() bool {
	return w.capture.Connected()
}

// Busy reports whether the worker has an active recording task.
func (w *Worker) Busy() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.task != nil
}

func (w *Worker) Info() models.WorkerInfo {
	w.mu.Lock()
	defer w.mu.Unlock()
	info := models.WorkerInfo{ID: w.ID, Name: w.Name, State: w.state, Busy: w.task != nil}
	if w.task != nil {
		info.SessionID = w.task.sessionID
	}
	return info
}

// StartRecording joins channelID and records it until the capture ends or
// StopRecording is called. onFinished receives the result.
func (w *Worker) StartRecording(ctx context.Context, sessionID, channelID string, onFinished FinishedFunc) error {
	w.mu.Lock()
	if w.task != nil {
		w.mu.Unlock()
		return fmt.Errorf("%s: %w", w.ID, ErrBusy)
	}
	taskCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	t := &task{sessionID: sessionID, cancel: cancel, done: make(chan struct{})}
	w.task = t
	w.mu.Unlock()

	rec, err := w.capture.StartRecording(ctx, channelID)
	if err != nil {
		cancel()
		w.mu.Lock()
		w.task = nil
		w.mu.Unlock()
		close(t.done)
		return fmt.Errorf("start recording: %w", err)
	}

	w.mu.Lock()
	w.state = models.WorkerConnected
	w.mu.Unlock()
	w.logger.Info(ctx, "Worker %s recording session %s", w.ID, sessionID)

	go w.run(taskCtx, t, rec, onFinished)
	return nil
}

func (w *Worker) run(ctx context.Context, t *task, rec voice.Recording, onFinished FinishedFunc) {
	defer close(t.done)
	defer w.cleanup(t)
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error(ctx, "Worker %s: recording hook panicked: %v", w.ID, r)
		}
	}()

	var res voice.CaptureResult
	select {
	case res = <-rec.Done():
	case <-ctx.Done():
		rec.Stop()
		timer := time.NewTimer(w.stopTimeout)
		select {
		case res = <-rec.Done():
		case <-timer.C:
			res = voice.CaptureResult{Err: fmt.Errorf("%w: capture did not stop", models.ErrPartialCapture)}
		}
		timer.Stop()
	}

	if res.Err != nil {
		w.logger.Warn(ctx, "Worker %s: capture ended with error: %v", w.ID, res.Err)
	}
	if onFinished != nil {
		onFinished(ctx, res)
	}
}

// cleanup disconnects the worker and frees it.
func (w *Worker) cleanup(t *task) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := w.capture.Disconnect(ctx); err != nil {
		w.logger.Warn(ctx, "Worker %s: disconnect failed: %v", w.ID, err)
	}

	w.mu.Lock()
	w.state = models.WorkerDisconnected
	if w.task == t {
		w.task = nil
	}
	w.mu.Unlock()
	t.cancel()
}

// StopRecording cancels the active recording task and returns a channel that
// is closed once the worker is disconnected.
func (w *Worker) StopRecording() <-chan struct{} {
	w.mu.Lock()
	t := w.task
	w.mu.Unlock()
	if t == nil {
		done := make(chan struct{})
		close(done)
		return done
	}
	t.cancel()
	return t.done
}
