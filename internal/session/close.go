package session

import (
	"context"
	"fmt"
	"time"

	"github.com/nguyentantai21042004/meeting-recorder/internal/logger"
	"github.com/nguyentantai21042004/meeting-recorder/internal/models"
	"github.com/nguyentantai21042004/meeting-recorder/internal/pipeline"
	"github.com/nguyentantai21042004/meeting-recorder/internal/voice"
)

// close runs a Closing session to Closed: stop the recording, free the
// worker, delete the channel, wait for the pipeline and post the results.
func (m *implManager) close(ctx context.Context, s *Session, reason string) {
	ctx = logger.WithSession(ctx, s.ID)

	s.mu.Lock()
	workerID := s.workerID
	thread := s.threadID
	snap := s.snapshotLocked(m.now())
	s.mu.Unlock()
	m.publish(snap)

	if w, ok := m.deps.Scheduler.WorkerFor(s.ID); ok && w.ID == workerID {
		<-w.StopRecording()
		m.logger.Info(ctx, "Recording task of %s stopped", w.ID)
		m.deps.Scheduler.Release(w.ID)
	} else {
		m.deps.Scheduler.Forget(s.ID)
	}
	// the freed worker may serve a waiting session
	m.deps.Scheduler.ScheduleAll(ctx)

	if reason != "" {
		m.notify(ctx, thread, reason)
	}
	m.notify(ctx, thread, fmt.Sprintf(endedNotice, formatDuration(snap.Duration), joinNames(snap.Participants)))
	m.notify(ctx, thread, generatingNotice)

	if err := m.deps.Platform.CloseSession(ctx, s.ID); err != nil {
		m.logger.Error(ctx, "Failed to delete voice channel %s: %v", s.ID, err)
	}

	s.mu.Lock()
	s.state = models.StateFinalizing
	snap = s.snapshotLocked(m.now())
	s.mu.Unlock()
	m.publish(snap)

	results, uploadOK, outcome := m.finalize(ctx, s)

	s.mu.Lock()
	s.setResultsLocked(results)
	s.uploadOK = uploadOK
	results = s.results
	s.mu.Unlock()

	m.postResults(ctx, thread, results)

	s.mu.Lock()
	s.state = models.StateClosed
	snap = s.snapshotLocked(m.now())
	s.mu.Unlock()
	close(s.closed)

	m.deps.Metrics.RecordSessionClosed(outcome, snap.Duration)
	if m.deps.Archive != nil {
		if err := m.deps.Archive.SaveSession(ctx, snap); err != nil {
			m.logger.Warn(ctx, "Failed to archive session %s: %v", s.ID, err)
		}
	}
	m.publish(snap)
	m.logger.Info(ctx, "Session %s closed (%s) after %s", s.ID, outcome, formatDuration(snap.Duration))
}

type pipelineResult struct {
	out pipeline.Output
	err error
}

// finalize runs the pipeline bounded by FinalizeWait. On timeout the run is
// cancelled and given FinalizeGrace to return; after that the fields it
// reported so far are used and the missing ones become placeholders.
func (m *implManager) finalize(ctx context.Context, s *Session) (models.Results, bool, string) {
	var capture voice.CaptureResult
	select {
	case capture = <-s.capture:
	default:
	}
	if capture.Err != nil {
		m.logger.Warn(ctx, "Capture of %s is incomplete: %v", s.ID, capture.Err)
	}

	s.mu.Lock()
	in := pipeline.Input{
		SessionID:      s.ID,
		Name:           s.Name,
		StartTime:      s.startTime,
		EndTime:        s.endTime,
		Tracks:         capture.Tracks,
		JoinTimes:      make(map[string]time.Time, len(s.joinTimes)),
		RecordingStart: capture.StartedAt,
		Participants:   append([]string(nil), s.all...),
		Progress: func(r models.Results) {
			s.mu.Lock()
			s.partial = r
			s.mu.Unlock()
		},
	}
	for id, t := range s.joinTimes {
		in.JoinTimes[id] = t
	}
	s.mu.Unlock()

	fctx, cancel := context.WithTimeout(ctx, m.opts.FinalizeWait)
	defer cancel()

	done := make(chan pipelineResult, 1)
	go func() {
		out, err := m.deps.Pipeline.Run(fctx, in)
		done <- pipelineResult{out: out, err: err}
	}()

	select {
	case r := <-done:
		return m.finished(ctx, s, r, "closed")
	case <-fctx.Done():
	}

	m.logger.Warn(ctx, "Session %s: %v (%v)", s.ID, models.ErrFinalizeTimeout, fctx.Err())
	m.deps.Metrics.FinalizeTimeouts.Inc()

	grace := time.NewTimer(m.opts.FinalizeGrace)
	defer grace.Stop()
	select {
	case r := <-done:
		return m.finished(ctx, s, r, "timeout")
	case <-grace.C:
	}

	s.mu.Lock()
	partial := s.partial
	s.mu.Unlock()
	return partial, false, "timeout"
}

func (m *implManager) finished(ctx context.Context, s *Session, r pipelineResult, outcome string) (models.Results, bool, string) {
	if r.err != nil {
		m.logger.Error(ctx, "Pipeline for %s did not run: %v", s.ID, r.err)
		s.mu.Lock()
		partial := s.partial
		s.mu.Unlock()
		return partial, false, "failed"
	}
	uploaded := r.out.Upload != nil && r.out.Upload.OK()
	return r.out.Results, uploaded, outcome
}

// postResults attaches transcript, summary and to-do list to the thread and
// renames it to the generated title.
func (m *implManager) postResults(ctx context.Context, threadID string, r models.Results) {
	if threadID == "" {
		return
	}
	files := []struct {
		message, filename, content string
	}{
		{transcriptMessage, "meeting_transcript.txt", r.Transcript},
		{summaryMessage, "meeting_summary.txt", r.Summary},
		{todolistMessage, "meeting_todolist.txt", r.Todolist},
	}
	for _, f := range files {
		pctx, cancel := context.WithTimeout(ctx, m.opts.NotifyTimeout)
		if err := m.deps.Presenter.PostFile(pctx, threadID, f.message, f.filename, f.content); err != nil {
			m.logger.Warn(ctx, "Failed to post %s: %v", f.filename, err)
		}
		cancel()
	}
	if r.Title == "" || r.Title == models.TitleUnavailable || r.Title == m.opts.EmptyPlaceholder {
		return
	}
	pctx, cancel := context.WithTimeout(ctx, m.opts.NotifyTimeout)
	defer cancel()
	if err := m.deps.Presenter.SetTitle(pctx, threadID, r.Title); err != nil {
		m.logger.Warn(ctx, "Failed to rename thread: %v", err)
	}
}
