package transcriber

import (
	"fmt"
	"net/http"

	"golang.org/x/sync/semaphore"

	"github.com/nguyentantai21042004/meeting-recorder/internal/config"
	"github.com/nguyentantai21042004/meeting-recorder/internal/logger"
	"github.com/nguyentantai21042004/meeting-recorder/internal/models"
	"github.com/nguyentantai21042004/meeting-recorder/pkg/executor"
)

type implTranscriber struct {
	engine engine
	sem    *semaphore.Weighted
	logger logger.Logger
}

// New creates the Transcriber for the configured provider. ffmpegPath is
// used by the whisper provider to resample audio.
func New(cfg config.TranscriptionConfig, geminiKeys []string, ffmpegPath string, exec executor.Executor, log logger.Logger) (Transcriber, error) {
	var eng engine
	switch Provider(cfg.Provider) {
	case ProviderGemini, "":
		if len(geminiKeys) == 0 {
			return nil, models.Configuration("gemini transcription needs language.gemini_api_keys")
		}
		eng = newGeminiEngine(geminiKeys, cfg.Model, cfg.Language, log)
	case ProviderHTTP:
		if cfg.Endpoint == "" {
			return nil, models.Configuration("transcription.endpoint is not set")
		}
		eng = newHTTPEngine(cfg, &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
			},
		})
	case ProviderWhisper:
		eng = newWhisperEngine(cfg, ffmpegPath, exec, log)
	default:
		return nil, fmt.Errorf("unknown transcription provider %q", cfg.Provider)
	}

	return newWithEngine(eng, cfg.MaxConcurrent, log), nil
}

func newWithEngine(eng engine, maxConcurrent int, log logger.Logger) *implTranscriber {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &implTranscriber{
		engine: eng,
		sem:    semaphore.NewWeighted(int64(maxConcurrent)),
		logger: log,
	}
}
