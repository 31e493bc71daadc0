package models

import (
	"strings"
	"time"
)

// WorkerState is the connectivity state of a pool worker.
type WorkerState string

const (
	WorkerConnected    WorkerState = "connected"
	WorkerDisconnected WorkerState = "disconnected"
)

// SessionState is the lifecycle state of a meeting session.
type SessionState string

const (
	StateCreated    SessionState = "created"
	StateRecording  SessionState = "recording"
	StateClosing    SessionState = "closing"
	StateFinalizing SessionState = "finalizing"
	StateClosed     SessionState = "closed"
)

// Placeholders written in place of pipeline outputs that could not be produced.
const (
	TranscriptUnavailable = "(Transcript not available)"
	SummaryUnavailable    = "(Summary not available)"
	TodolistUnavailable   = "(To-do list not available)"
	TitleUnavailable      = "(Title not available)"
)

// RawSegment is one fragment returned by the transcription service, relative
// to the start of the audio file it came from.
type RawSegment struct {
	Offset   float64 `json:"offset"`
	Duration float64 `json:"duration"`
	Text     string  `json:"text"`
}

// AudioPart is one exported audio file of a speaker. Index orders the parts of
// a recording that was split at the maximum segment duration.
type AudioPart struct {
	SpeakerID string `json:"speaker_id"`
	Index     int    `json:"index"`
	Path      string `json:"path"`
}

// TranscriptSegment is a segment placed on the meeting's wall-clock timeline.
type TranscriptSegment struct {
	SpeakerID string    `json:"speaker_id"`
	Speaker   string    `json:"speaker"`
	Timestamp time.Time `json:"timestamp"`
	Text      string    `json:"text"`
}

// Results holds the generated outputs of one session.
type Results struct {
	Transcript string `json:"transcript"`
	Summary    string `json:"summary"`
	Todolist   string `json:"todolist"`
	Title      string `json:"title"`
}

// Complete reports whether every output has been produced.
func (r Results) Complete() bool {
	return strings.TrimSpace(r.Transcript) != "" &&
		strings.TrimSpace(r.Summary) != "" &&
		strings.TrimSpace(r.Todolist) != ""
}

// WithPlaceholders returns a copy where every blank field carries its placeholder.
func (r Results) WithPlaceholders() Results {
	if strings.TrimSpace(r.Transcript) == "" {
		r.Transcript = TranscriptUnavailable
	}
	if strings.TrimSpace(r.Summary) == "" {
		r.Summary = SummaryUnavailable
	}
	if strings.TrimSpace(r.Todolist) == "" {
		r.Todolist = TodolistUnavailable
	}
	if strings.TrimSpace(r.Title) == "" {
		r.Title = TitleUnavailable
	}
	return r
}

// Snapshot is the read-only view of a session handed to presenters and the API.
type Snapshot struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	State        SessionState  `json:"state"`
	WorkerID     string        `json:"worker_id,omitempty"`
	ThreadID     string        `json:"thread_id,omitempty"`
	StartTime    time.Time     `json:"start_time"`
	EndTime      time.Time     `json:"end_time,omitempty"`
	Duration     time.Duration `json:"duration"`
	Participants []string      `json:"participants"`
	Active       []string      `json:"active"`
	Transcript   string        `json:"transcript,omitempty"`
	Summary      string        `json:"summary,omitempty"`
	Todolist     string        `json:"todolist,omitempty"`
	Title        string        `json:"title,omitempty"`
	UploadOK     bool          `json:"upload_ok"`
}

// WorkerInfo is the read-only view of a pool worker.
type WorkerInfo struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	State     WorkerState `json:"state"`
	Busy      bool        `json:"busy"`
	SessionID string      `json:"session_id,omitempty"`
}
