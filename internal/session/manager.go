package session

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/nguyentantai21042004/meeting-recorder/internal/models"
	"github.com/nguyentantai21042004/meeting-recorder/internal/voice"
	"github.com/nguyentantai21042004/meeting-recorder/internal/worker"
)

func (m *implManager) HandleEvent(ctx context.Context, ev voice.Event) {
	if ev.MemberIsBot || ev.BeforeChannel == ev.AfterChannel {
		return
	}
	at := ev.At
	if at.IsZero() {
		at = m.now()
	}

	if ev.AfterChannel != "" {
		if m.opts.TriggerChannel != "" && ev.AfterChannel == m.opts.TriggerChannel {
			m.openSession(ctx, ev, at)
		} else if s := m.lookup(ev.AfterChannel); s != nil {
			m.join(ctx, s, ev.MemberID, m.memberName(ev), at)
		}
	}
	if ev.BeforeChannel != "" {
		if s := m.lookup(ev.BeforeChannel); s != nil {
			m.leave(ctx, s, ev.MemberID, at)
		}
	}
}

// openSession creates a new meeting channel for a member who joined the
// trigger channel. The initiator is its first participant.
func (m *implManager) openSession(ctx context.Context, ev voice.Event, at time.Time) {
	name := fmt.Sprintf("%s-%s", m.opts.RoomPrefix, at.Format("150405"))
	channelID, err := m.deps.Platform.CreateSession(ctx, name, ev.MemberID)
	if err != nil {
		m.logger.Error(ctx, "Failed to create new meeting room: %v", err)
		return
	}

	member := m.memberName(ev)
	s := newSession(channelID, name, ev.MemberID, at)
	s.joinLocked(ev.MemberID, member, at)

	m.mu.Lock()
	m.sessions[channelID] = s
	m.mu.Unlock()
	m.deps.Metrics.SessionsCreated.Inc()
	m.deps.Metrics.ActiveSessions.Inc()
	m.logger.Info(ctx, "Created new meeting room: %s (%s)", name, channelID)

	content := fmt.Sprintf(threadContent, member, at.Format("2006-01-02 15:04:05"), name, member)
	tctx, cancel := context.WithTimeout(ctx, m.opts.NotifyTimeout)
	threadID, err := m.deps.Presenter.OpenThread(tctx, name, content)
	cancel()
	if err != nil {
		m.logger.Warn(ctx, "Failed to open thread for %s: %v", name, err)
	}

	s.mu.Lock()
	s.threadID = threadID
	snap := s.snapshotLocked(m.now())
	s.mu.Unlock()
	m.publish(snap)

	m.deps.Scheduler.OnSessionOpened(channelID)
	m.deps.Scheduler.ScheduleAll(ctx)
}

func (m *implManager) join(ctx context.Context, s *Session, memberID, name string, at time.Time) {
	s.mu.Lock()
	if !s.openLocked() {
		s.mu.Unlock()
		m.logger.Debug(ctx, "Ignoring join of %s: session %s is %s", memberID, s.ID, s.state)
		return
	}
	added, cancelled := s.joinLocked(memberID, name, at)
	thread := s.threadID
	display := s.nameLocked(memberID)
	snap := s.snapshotLocked(m.now())
	s.mu.Unlock()

	if cancelled {
		m.logger.Info(ctx, "Session %s has new participants, close cancelled", s.ID)
	}
	if added {
		m.notify(ctx, thread, fmt.Sprintf(joinNotice, display))
		m.publish(snap)
	}
}

func (m *implManager) leave(ctx context.Context, s *Session, memberID string, at time.Time) {
	s.mu.Lock()
	if !s.openLocked() {
		s.mu.Unlock()
		return
	}
	removed, empty := s.leaveLocked(memberID, at)
	if removed && empty && s.closeTimer == nil {
		s.timerGen++
		gen := s.timerGen
		s.closeTimer = time.AfterFunc(m.opts.CloseDebounce, func() { m.debounceExpired(s, gen) })
	}
	thread := s.threadID
	display := s.nameLocked(memberID)
	snap := s.snapshotLocked(m.now())
	s.mu.Unlock()

	if !removed {
		return
	}
	m.notify(ctx, thread, fmt.Sprintf(leaveNotice, display))
	m.publish(snap)
	if empty {
		m.logger.Info(ctx, "Session %s has no human participants, closing in %s", s.ID, m.opts.CloseDebounce)
	}
}

func (m *implManager) debounceExpired(s *Session, gen int) {
	s.mu.Lock()
	if gen != s.timerGen || len(s.active) > 0 {
		s.mu.Unlock()
		return
	}
	s.closeTimer = nil
	s.mu.Unlock()

	if !m.track() {
		return
	}
	defer m.wg.Done()
	if !m.beginClose(s) {
		return
	}
	m.close(m.baseCtx, s, "")
}

// track registers one close run with wg. It fails once Shutdown is draining.
func (m *implManager) track() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.draining {
		return false
	}
	m.wg.Add(1)
	return true
}

// beginClose moves an open session to Closing. It returns false when the
// session was already closing.
func (m *implManager) beginClose(s *Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.openLocked() {
		return false
	}
	if s.closeTimer != nil {
		s.closeTimer.Stop()
		s.closeTimer = nil
	}
	s.timerGen++
	s.state = models.StateClosing
	s.endTime = m.now()
	return true
}

func (m *implManager) Bind(ctx context.Context, sessionID string, w *worker.Worker) error {
	s := m.lookup(sessionID)
	if s == nil {
		return fmt.Errorf("session %s not found", sessionID)
	}
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()
	if state != models.StateCreated {
		return fmt.Errorf("session %s is %s", sessionID, state)
	}

	err := w.StartRecording(ctx, s.ID, s.ID, func(_ context.Context, res voice.CaptureResult) {
		select {
		case s.capture <- res:
		default:
		}
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.state != models.StateCreated {
		state := s.state
		s.mu.Unlock()
		w.StopRecording()
		return fmt.Errorf("session %s became %s while binding", sessionID, state)
	}
	s.workerID = w.ID
	s.state = models.StateRecording
	snap := s.snapshotLocked(m.now())
	s.mu.Unlock()

	m.logger.Info(ctx, "Bot %s started recording %s", w.Name, s.Name)
	m.publish(snap)
	return nil
}

func (m *implManager) ExpirePending(ctx context.Context, timeout time.Duration) int {
	cutoff := m.now().Add(-timeout)
	n := 0
	for _, p := range m.deps.Scheduler.Pending() {
		if p.Since.After(cutoff) {
			continue
		}
		s := m.lookup(p.SessionID)
		if s == nil {
			m.deps.Scheduler.Forget(p.SessionID)
			continue
		}
		s.mu.Lock()
		waiting := s.state == models.StateCreated && s.workerID == ""
		s.mu.Unlock()
		if !waiting || !m.track() {
			continue
		}
		if !m.beginClose(s) {
			m.wg.Done()
			continue
		}

		m.logger.Warn(ctx, "Session %s waited %s for a worker, closing", s.ID, m.now().Sub(p.Since).Round(time.Second))
		m.deps.Metrics.PendingExpired.Inc()
		n++
		go func() {
			defer m.wg.Done()
			m.close(m.baseCtx, s, "No recorder became available; the meeting was not recorded.")
		}()
	}
	return n
}

func (m *implManager) Prune(cutoff time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.sessions {
		s.mu.Lock()
		stale := s.state == models.StateClosed && s.endTime.Before(cutoff)
		s.mu.Unlock()
		if stale {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}

func (m *implManager) Get(id string) (models.Snapshot, bool) {
	s := m.lookup(id)
	if s == nil {
		return models.Snapshot{}, false
	}
	return s.Snapshot(), true
}

func (m *implManager) List() []models.Snapshot {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	out := make([]models.Snapshot, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

func (m *implManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		if !m.beginClose(s) {
			continue
		}
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.close(m.baseCtx, s, "The recorder is shutting down.")
		}()
	}

	m.mu.Lock()
	m.draining = true
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.cancel()
		return nil
	case <-ctx.Done():
		// abort running pipelines; they degrade to placeholders
		m.cancel()
		<-done
		return ctx.Err()
	}
}

func (m *implManager) lookup(id string) *Session {
	if id == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id]
}

func (m *implManager) memberName(ev voice.Event) string {
	if ev.MemberName != "" {
		return ev.MemberName
	}
	if name, ok := m.deps.Platform.DisplayName(ev.MemberID); ok && name != "" {
		return name
	}
	return ev.MemberID
}

func (m *implManager) notify(ctx context.Context, threadID, text string) {
	if threadID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, m.opts.NotifyTimeout)
	defer cancel()
	if err := m.deps.Presenter.Notify(ctx, threadID, text); err != nil {
		m.logger.Warn(ctx, "Cannot update thread %s: %v", threadID, err)
	}
}

func (m *implManager) publish(snap models.Snapshot) {
	if m.deps.Publisher != nil {
		m.deps.Publisher.PublishSnapshot(snap)
	}
}
