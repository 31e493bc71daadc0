package transcriber

import (
	"context"

	"github.com/nguyentantai21042004/meeting-recorder/internal/models"
)

// Transcriber converts every exported audio part of a session in one call.
type Transcriber interface {
	// Transcribe returns, per speaker, the segments of each part in part order.
	// Parts that fail with a non-transient error are skipped; a transient
	// failure of any part fails the whole call.
	Transcribe(ctx context.Context, parts map[string][]models.AudioPart) (map[string][]PartResult, error)
}

// PartResult holds the segments of one audio part, offsets relative to the part.
type PartResult struct {
	Part     models.AudioPart
	Segments []models.RawSegment
}

// Provider selects the speech-to-text backend.
type Provider string

const (
	ProviderGemini  Provider = "gemini"
	ProviderHTTP    Provider = "http"
	ProviderWhisper Provider = "whisper"
)

// engine transcribes a single audio file.
type engine interface {
	transcribeFile(ctx context.Context, path string) ([]models.RawSegment, error)
}
