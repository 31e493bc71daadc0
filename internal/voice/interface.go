package voice

import (
	"context"
	"time"

	"github.com/nguyentantai21042004/meeting-recorder/internal/models"
)

// Event is a voice-state change of one member. Empty channel ids mean
// "not in a voice channel".
type Event struct {
	MemberID      string    `json:"member_id"`
	MemberName    string    `json:"member_name"`
	MemberIsBot   bool      `json:"is_bot"`
	BeforeChannel string    `json:"before"`
	AfterChannel  string    `json:"after"`
	At            time.Time `json:"at"`
}

// CaptureResult is delivered once when a recording ends.
type CaptureResult struct {
	// Tracks maps member id to the captured audio file.
	Tracks    map[string]string
	StartedAt time.Time
	Err       error
}

// Recording is an in-progress capture of one channel.
type Recording interface {
	// Stop asks the capture to finish. Safe to call more than once.
	Stop()
	// Done yields exactly one result after the capture finished.
	Done() <-chan CaptureResult
}

// Capture is the voice connection of one worker identity.
type Capture interface {
	StartRecording(ctx context.Context, channelID string) (Recording, error)
	Disconnect(ctx context.Context) error
	Connected() bool
}

// Platform creates meeting channels and resolves member names.
type Platform interface {
	// CreateSession opens a new voice channel and moves the initiator into it.
	CreateSession(ctx context.Context, name, initiatorID string) (string, error)
	// CloseSession deletes the voice channel.
	CloseSession(ctx context.Context, channelID string) error
	Directory
}

// Directory resolves member ids to display names.
type Directory interface {
	DisplayName(memberID string) (string, bool)
}

// Presenter publishes session progress, e.g. as a forum thread.
type Presenter interface {
	OpenThread(ctx context.Context, title, content string) (string, error)
	Notify(ctx context.Context, threadID, text string) error
	// PostFile posts text as an attachment named filename after a message.
	PostFile(ctx context.Context, threadID, message, filename, content string) error
	SetTitle(ctx context.Context, threadID, title string) error
}

// SnapshotPublisher receives session snapshots for live views.
type SnapshotPublisher interface {
	PublishSnapshot(snap models.Snapshot)
}
