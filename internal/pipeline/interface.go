package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/nguyentantai21042004/meeting-recorder/internal/models"
	"github.com/nguyentantai21042004/meeting-recorder/internal/upload"
)

// ErrAlreadyGenerated is returned when a session's outputs were already produced.
var ErrAlreadyGenerated = errors.New("session already generated")

// Pipeline turns the captured tracks of a closed session into a transcript,
// summary, to-do list and title.
type Pipeline interface {
	// Run executes export, transcription, merge, generation, persistence and
	// upload. Stage failures degrade to placeholders; the only error is
	// ErrAlreadyGenerated.
	Run(ctx context.Context, in Input) (Output, error)
}

// Input describes one closed session.
type Input struct {
	SessionID string
	Name      string
	StartTime time.Time
	EndTime   time.Time
	// Tracks maps member id to the captured audio file.
	Tracks map[string]string
	// JoinTimes anchors each speaker's audio on the wall clock.
	JoinTimes map[string]time.Time
	// RecordingStart is when capture began. Zero when unknown.
	RecordingStart time.Time
	Participants   []string
	// Progress, when set, receives the outputs produced so far after the
	// transcript is merged and after each generated field. Placeholders are
	// not applied.
	Progress func(models.Results)
}

// Output is what a run produced.
type Output struct {
	RunID    string
	Results  models.Results
	Segments []models.TranscriptSegment
	WorkDir  string
	// Upload is nil when no destination is configured.
	Upload  *upload.Result
	Cleaned bool
}
