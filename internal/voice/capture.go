package voice

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nguyentantai21042004/meeting-recorder/internal/models"
)

type gatewayCapture struct {
	gateway  *Gateway
	workerID string
}

func (c *gatewayCapture) Connected() bool {
	return c.gateway.workerConn(c.workerID) != nil
}

func (c *gatewayCapture) StartRecording(ctx context.Context, channelID string) (Recording, error) {
	g := c.gateway
	conn := g.workerConn(c.workerID)
	if conn == nil {
		return nil, models.Transient(fmt.Errorf("worker %s: %w", c.workerID, errNotConnected))
	}

	id := uuid.NewString()
	dir := filepath.Join(g.opts.RecordDir, c.workerID, id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create recording dir: %w", err)
	}

	rec := &gatewayRecording{
		id:        id,
		channelID: channelID,
		dir:       dir,
		startedAt: time.Now(),
		files:     make(map[string]*os.File),
		paths:     make(map[string]string),
		finished:  make(chan struct{}),
		done:      make(chan CaptureResult, 1),
	}
	rec.onFinish = func() { g.clearRecording(c.workerID, rec) }
	rec.requestStop = func() {
		if err := conn.send(envelope{Type: msgStopRecording, RecordingID: id, ChannelID: channelID}); err != nil {
			rec.finish(fmt.Errorf("%w: %v", models.ErrPartialCapture, err))
			return
		}
		t := time.NewTimer(g.opts.StopTimeout)
		defer t.Stop()
		select {
		case <-rec.finished:
		case <-t.C:
			rec.finish(fmt.Errorf("%w: stop not acknowledged", models.ErrPartialCapture))
		}
	}

	g.mu.Lock()
	if _, busy := g.recordings[c.workerID]; busy {
		g.mu.Unlock()
		os.RemoveAll(dir)
		return nil, fmt.Errorf("worker %s is already recording", c.workerID)
	}
	g.recordings[c.workerID] = rec
	g.mu.Unlock()

	if err := conn.send(envelope{Type: msgStartRecording, RecordingID: id, ChannelID: channelID}); err != nil {
		g.clearRecording(c.workerID, rec)
		os.RemoveAll(dir)
		return nil, models.Transient(err)
	}
	g.logger.Info(ctx, "Worker %s recording channel %s into %s", c.workerID, channelID, dir)
	return rec, nil
}

func (c *gatewayCapture) Disconnect(ctx context.Context) error {
	conn := c.gateway.workerConn(c.workerID)
	if conn == nil {
		return nil
	}
	return conn.send(envelope{Type: msgDisconnect})
}

// gatewayRecording writes each member's audio frames to its own file.
type gatewayRecording struct {
	id        string
	channelID string
	dir       string
	startedAt time.Time

	requestStop func()
	onFinish    func()
	stopOnce    sync.Once

	mu       sync.Mutex
	files    map[string]*os.File
	paths    map[string]string
	writeErr error
	closed   bool
	finished chan struct{}
	done     chan CaptureResult
}

func (r *gatewayRecording) Stop() {
	r.stopOnce.Do(func() { go r.requestStop() })
}

func (r *gatewayRecording) Done() <-chan CaptureResult {
	return r.done
}

func (r *gatewayRecording) write(memberID string, audio []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	f, ok := r.files[memberID]
	if !ok {
		path := filepath.Join(r.dir, safeName(memberID)+".ogg")
		var err error
		f, err = os.Create(path)
		if err != nil {
			if r.writeErr == nil {
				r.writeErr = fmt.Errorf("%w: %s: %v", models.ErrPartialCapture, memberID, err)
			}
			return
		}
		r.files[memberID] = f
		r.paths[memberID] = path
	}
	if _, err := f.Write(audio); err != nil && r.writeErr == nil {
		r.writeErr = fmt.Errorf("%w: %s: %v", models.ErrPartialCapture, memberID, err)
	}
}

// finish closes the track files and delivers the result once.
func (r *gatewayRecording) finish(err error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	for _, f := range r.files {
		f.Close()
	}
	if err == nil {
		err = r.writeErr
	}
	tracks := make(map[string]string, len(r.paths))
	for id, p := range r.paths {
		tracks[id] = p
	}
	r.mu.Unlock()

	close(r.finished)
	if r.onFinish != nil {
		r.onFinish()
	}
	r.done <- CaptureResult{Tracks: tracks, StartedAt: r.startedAt, Err: err}
}

func safeName(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, id)
}
