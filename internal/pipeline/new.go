package pipeline

import (
	"sync"
	"time"

	"github.com/nguyentantai21042004/meeting-recorder/internal/config"
	"github.com/nguyentantai21042004/meeting-recorder/internal/logger"
	"github.com/nguyentantai21042004/meeting-recorder/internal/metrics"
	"github.com/nguyentantai21042004/meeting-recorder/internal/models"
	"github.com/nguyentantai21042004/meeting-recorder/internal/summarizer"
	"github.com/nguyentantai21042004/meeting-recorder/internal/transcriber"
	"github.com/nguyentantai21042004/meeting-recorder/internal/upload"
	"github.com/nguyentantai21042004/meeting-recorder/internal/voice"
	"github.com/nguyentantai21042004/meeting-recorder/pkg/executor"
	"github.com/nguyentantai21042004/meeting-recorder/pkg/retry"
)

// Options tune a Pipeline.
type Options struct {
	RecordingsDir string
	MaxSegment    time.Duration
	MaxConcurrent int
	FFmpegPath    string
	FFprobePath   string
	WriteDocx     bool
	// EmptyPlaceholder replaces every output when no segment survives.
	EmptyPlaceholder string
	Retry            retry.Options
}

// OptionsFrom builds Options from the loaded config.
func OptionsFrom(cfg *config.Config) Options {
	return Options{
		RecordingsDir:    cfg.Paths.Recordings,
		MaxSegment:       cfg.Pipeline.MaxSegmentDuration,
		MaxConcurrent:    cfg.Pipeline.MaxConcurrent,
		FFmpegPath:       cfg.Pipeline.FFmpegPath,
		FFprobePath:      cfg.Pipeline.FFprobePath,
		WriteDocx:        cfg.Pipeline.WriteDocx,
		EmptyPlaceholder: cfg.Pipeline.EmptyPlaceholder,
		Retry: retry.Options{
			MaxAttempts:    cfg.Retry.MaxAttempts,
			InitialDelay:   cfg.Retry.InitialDelay,
			BackoffFactor:  cfg.Retry.BackoffFactor,
			JitterFraction: cfg.Retry.JitterFraction,
		},
	}
}

// Deps are the collaborators a Pipeline calls. Uploader and Directory may be nil.
type Deps struct {
	Executor    executor.Executor
	Transcriber transcriber.Transcriber
	Summarizer  summarizer.Summarizer
	Uploader    upload.Uploader
	Retry       *retry.Executor
	Directory   voice.Directory
	Metrics     *metrics.Metrics
}

type implPipeline struct {
	opts   Options
	deps   Deps
	logger logger.Logger

	mu        sync.Mutex
	generated map[string]bool
}

// New creates a Pipeline instance
func New(opts Options, deps Deps, log logger.Logger) Pipeline {
	if opts.MaxSegment <= 0 {
		opts.MaxSegment = 30 * time.Minute
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 4
	}
	if opts.FFmpegPath == "" {
		opts.FFmpegPath = "ffmpeg"
	}
	if opts.FFprobePath == "" {
		opts.FFprobePath = "ffprobe"
	}
	if opts.EmptyPlaceholder == "" {
		opts.EmptyPlaceholder = models.TranscriptUnavailable
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = retry.DefaultOptions()
	}
	return &implPipeline{
		opts:      opts,
		deps:      deps,
		logger:    log,
		generated: make(map[string]bool),
	}
}
