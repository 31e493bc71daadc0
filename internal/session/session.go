package session

import (
	"sync"
	"time"

	"github.com/nguyentantai21042004/meeting-recorder/internal/models"
	"github.com/nguyentantai21042004/meeting-recorder/internal/voice"
)

// Session is one meeting. Every field below mu is guarded by it; the manager
// is the only writer.
type Session struct {
	ID        string
	Name      string
	Initiator string

	// capture receives the worker's recording result once.
	capture chan voice.CaptureResult
	// closed is closed when the session reaches StateClosed.
	closed chan struct{}

	mu         sync.Mutex
	state      models.SessionState
	startTime  time.Time
	endTime    time.Time
	active     map[string]bool
	all        []string
	names      map[string]string
	joinTimes  map[string]time.Time
	leaveTimes map[string]time.Time
	threadID   string
	workerID   string
	closeTimer *time.Timer
	timerGen   int
	results    models.Results
	// partial holds what the pipeline reported before it finished.
	partial   models.Results
	generated bool
	uploadOK  bool
}

func newSession(id, name, initiator string, start time.Time) *Session {
	return &Session{
		ID:         id,
		Name:       name,
		Initiator:  initiator,
		capture:    make(chan voice.CaptureResult, 1),
		closed:     make(chan struct{}),
		state:      models.StateCreated,
		startTime:  start,
		active:     make(map[string]bool),
		names:      make(map[string]string),
		joinTimes:  make(map[string]time.Time),
		leaveTimes: make(map[string]time.Time),
	}
}

// joinLocked adds a member to the roster. It reports whether the member was
// not active before, and whether a pending close was cancelled.
func (s *Session) joinLocked(memberID, name string, at time.Time) (added, cancelled bool) {
	if name != "" {
		s.names[memberID] = name
	}
	if s.active[memberID] {
		return false, false
	}
	s.active[memberID] = true
	if _, seen := s.joinTimes[memberID]; !seen {
		s.joinTimes[memberID] = at
		s.all = append(s.all, memberID)
	}
	if s.closeTimer != nil {
		s.closeTimer.Stop()
		s.closeTimer = nil
		s.timerGen++
		cancelled = true
	}
	return true, cancelled
}

// leaveLocked removes a member and reports whether any human is left.
func (s *Session) leaveLocked(memberID string, at time.Time) (removed, empty bool) {
	if !s.active[memberID] {
		return false, len(s.active) == 0
	}
	delete(s.active, memberID)
	s.leaveTimes[memberID] = at
	return true, len(s.active) == 0
}

// openLocked reports whether the session still accepts participants.
func (s *Session) openLocked() bool {
	return s.state == models.StateCreated || s.state == models.StateRecording
}

// setResultsLocked stores the outputs. Later calls are ignored.
func (s *Session) setResultsLocked(r models.Results) bool {
	if s.generated {
		return false
	}
	s.results = r.WithPlaceholders()
	s.generated = true
	return true
}

func (s *Session) nameLocked(memberID string) string {
	if n := s.names[memberID]; n != "" {
		return n
	}
	return memberID
}

func (s *Session) Snapshot() models.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(time.Now())
}

func (s *Session) snapshotLocked(now time.Time) models.Snapshot {
	end := s.endTime
	if end.IsZero() {
		end = now
	}
	snap := models.Snapshot{
		ID:         s.ID,
		Name:       s.Name,
		State:      s.state,
		WorkerID:   s.workerID,
		ThreadID:   s.threadID,
		StartTime:  s.startTime,
		EndTime:    s.endTime,
		Duration:   end.Sub(s.startTime),
		Transcript: s.results.Transcript,
		Summary:    s.results.Summary,
		Todolist:   s.results.Todolist,
		Title:      s.results.Title,
		UploadOK:   s.uploadOK,
	}
	for _, id := range s.all {
		snap.Participants = append(snap.Participants, s.nameLocked(id))
		if s.active[id] {
			snap.Active = append(snap.Active, s.nameLocked(id))
		}
	}
	return snap
}
