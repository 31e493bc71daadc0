package session

import (
	"context"
	"sync"
	"time"

	"github.com/nguyentantai21042004/meeting-recorder/internal/config"
	"github.com/nguyentantai21042004/meeting-recorder/internal/logger"
	"github.com/nguyentantai21042004/meeting-recorder/internal/metrics"
	"github.com/nguyentantai21042004/meeting-recorder/internal/models"
	"github.com/nguyentantai21042004/meeting-recorder/internal/pipeline"
	"github.com/nguyentantai21042004/meeting-recorder/internal/scheduler"
	"github.com/nguyentantai21042004/meeting-recorder/internal/voice"
)

// Options tune session lifecycles.
type Options struct {
	TriggerChannel string
	RoomPrefix     string
	CloseDebounce  time.Duration
	FinalizeWait   time.Duration
	// FinalizeGrace is how long a timed-out pipeline may take to return
	// after cancellation before its progress is used instead.
	FinalizeGrace time.Duration
	// NotifyTimeout bounds each presenter call.
	NotifyTimeout time.Duration
	// EmptyPlaceholder marks a title that must not rename the thread.
	EmptyPlaceholder string
}

// OptionsFrom builds Options from the loaded config.
func OptionsFrom(cfg *config.Config) Options {
	return Options{
		TriggerChannel:   cfg.Session.TriggerChannel,
		RoomPrefix:       cfg.Session.RoomPrefix,
		CloseDebounce:    cfg.Session.CloseDebounce,
		FinalizeWait:     cfg.Session.FinalizeWait,
		FinalizeGrace:    cfg.Session.FinalizeGrace,
		NotifyTimeout:    cfg.Session.NotifyTimeout,
		EmptyPlaceholder: cfg.Pipeline.EmptyPlaceholder,
	}
}

// Deps are the collaborators of a Manager. Presenter, Publisher and Archive
// are optional.
type Deps struct {
	Platform  voice.Platform
	Presenter voice.Presenter
	Scheduler scheduler.Scheduler
	Pipeline  pipeline.Pipeline
	Publisher voice.SnapshotPublisher
	Archive   Archiver
	Metrics   *metrics.Metrics
}

type implManager struct {
	opts   Options
	deps   Deps
	logger logger.Logger
	now    func() time.Time

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu       sync.Mutex
	sessions map[string]*Session
	// draining is set once Shutdown waits on wg; no close run starts after it.
	draining bool
}

// NewManager creates a Manager with an empty registry.
func NewManager(opts Options, deps Deps, log logger.Logger) Manager {
	if opts.RoomPrefix == "" {
		opts.RoomPrefix = "meeting"
	}
	if opts.CloseDebounce <= 0 {
		opts.CloseDebounce = 5 * time.Second
	}
	if opts.FinalizeWait <= 0 {
		opts.FinalizeWait = time.Hour
	}
	if opts.FinalizeGrace <= 0 {
		opts.FinalizeGrace = 5 * time.Second
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = 30 * time.Second
	}
	if opts.EmptyPlaceholder == "" {
		opts.EmptyPlaceholder = models.TranscriptUnavailable
	}
	if deps.Presenter == nil {
		deps.Presenter = voice.NewLogPresenter(log)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &implManager{
		opts:     opts,
		deps:     deps,
		logger:   log,
		now:      time.Now,
		baseCtx:  ctx,
		cancel:   cancel,
		sessions: make(map[string]*Session),
	}
}
