package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nguyentantai21042004/meeting-recorder/internal/api"
	"github.com/nguyentantai21042004/meeting-recorder/internal/config"
	"github.com/nguyentantai21042004/meeting-recorder/internal/jobs"
	"github.com/nguyentantai21042004/meeting-recorder/internal/logger"
	"github.com/nguyentantai21042004/meeting-recorder/internal/metrics"
	"github.com/nguyentantai21042004/meeting-recorder/internal/pipeline"
	"github.com/nguyentantai21042004/meeting-recorder/internal/recovery"
	"github.com/nguyentantai21042004/meeting-recorder/internal/scheduler"
	"github.com/nguyentantai21042004/meeting-recorder/internal/session"
	"github.com/nguyentantai21042004/meeting-recorder/internal/store"
	"github.com/nguyentantai21042004/meeting-recorder/internal/summarizer"
	"github.com/nguyentantai21042004/meeting-recorder/internal/transcriber"
	"github.com/nguyentantai21042004/meeting-recorder/internal/upload"
	"github.com/nguyentantai21042004/meeting-recorder/internal/voice"
	"github.com/nguyentantai21042004/meeting-recorder/internal/worker"
	"github.com/nguyentantai21042004/meeting-recorder/pkg/executor"
	"github.com/nguyentantai21042004/meeting-recorder/pkg/retry"
)

// uploadStack is the destination side shared by serve and recover.
type uploadStack struct {
	cache    *upload.ConnectionCache
	uploader upload.Uploader
}

func newRetry(log logger.Logger, m *metrics.Metrics) *retry.Executor {
	return retry.New(log, retry.Hooks{
		OnRetry:     func(name string, _ int, _ error) { m.RecordRetry(name) },
		OnExhausted: func(name string, _ error) { m.RecordExhausted(name) },
	})
}

// newUploadStack returns nil when uploads are disabled.
func newUploadStack(cfg *config.Config, rx *retry.Executor, m *metrics.Metrics, log logger.Logger) (*uploadStack, error) {
	factory, err := upload.NewFactory(cfg.Upload)
	if err != nil {
		return nil, err
	}
	if factory == nil {
		return nil, nil
	}
	cache := upload.NewConnectionCache(factory, upload.CacheOptionsFrom(cfg.Upload, m.RecordUploadEvent), log)
	uploader := upload.NewUploader(cache, rx, upload.UploaderOptions{
		BatchSize:  cfg.Upload.BatchSize,
		BatchPause: cfg.Upload.BatchPause,
		Retry:      pipeline.OptionsFrom(cfg).Retry,
	}, log)
	return &uploadStack{cache: cache, uploader: uploader}, nil
}

// App is the fully wired recorder service.
type App struct {
	cfg     *config.Config
	logger  logger.Logger
	metrics *metrics.Metrics

	gateway   *voice.Gateway
	scheduler scheduler.Scheduler
	sessions  session.Manager
	uploads   *uploadStack
	pool      *pgxpool.Pool
	archive   *store.Store
	hub       *api.Hub
	runner    *jobs.Runner
	watcher   recovery.Watcher

	gatewayServer *http.Server
	apiServer     *http.Server
}

func newApp(ctx context.Context, cfg *config.Config, log logger.Logger) (*App, error) {
	reg := prometheus.DefaultRegisterer
	m := metrics.New(reg)
	rx := newRetry(log, m)
	exec := executor.New()

	for _, dir := range []string{cfg.Paths.Recordings, cfg.Paths.Temp} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	tr, err := transcriber.New(cfg.Transcription, cfg.Language.GeminiKeys, cfg.Pipeline.FFmpegPath, exec, log)
	if err != nil {
		return nil, fmt.Errorf("transcriber: %w", err)
	}
	sum, err := summarizer.New(cfg.Language, log)
	if err != nil {
		return nil, fmt.Errorf("summarizer: %w", err)
	}
	uploads, err := newUploadStack(cfg, rx, m, log)
	if err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}

	a := &App{cfg: cfg, logger: log, metrics: m, uploads: uploads, hub: api.NewHub(log)}

	if cfg.Database.URL != "" {
		pool, err := pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("connect db: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ping db: %w", err)
		}
		a.pool = pool
		a.archive = store.New(pool)
		if err := a.archive.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	}

	tokens := make(map[string]string, len(cfg.Workers.Pool))
	for _, w := range cfg.Workers.Pool {
		tokens[w.ID] = w.Token
	}
	a.gateway = voice.NewGateway(voice.GatewayOptions{
		WorkerTokens:   tokens,
		ControlToken:   cfg.Gateway.ControlToken,
		RecordDir:      cfg.Paths.Temp,
		PingInterval:   cfg.Gateway.PingInterval,
		MaxFrame:       cfg.Gateway.MaxFrameBytes,
		RequestTimeout: cfg.Gateway.RequestTimeout,
	}, log)

	pdeps := pipeline.Deps{
		Executor:    exec,
		Transcriber: tr,
		Summarizer:  sum,
		Retry:       rx,
		Directory:   a.gateway,
		Metrics:     m,
	}
	if uploads != nil {
		pdeps.Uploader = uploads.uploader
	}
	pipe := pipeline.New(pipeline.OptionsFrom(cfg), pdeps, log)

	// the scheduler binds through the manager, which schedules through the
	// scheduler
	var mgr session.Manager
	a.scheduler = scheduler.New(func(ctx context.Context, sessionID string, w *worker.Worker) error {
		return mgr.Bind(ctx, sessionID, w)
	}, m, log)
	a.scheduler.Register(buildWorkers(cfg.Workers.Pool, a.gateway.Capture, log)...)

	sdeps := session.Deps{
		Platform:  a.gateway,
		Presenter: a.gateway,
		Scheduler: a.scheduler,
		Pipeline:  pipe,
		Publisher: a.hub,
		Metrics:   m,
	}
	if a.archive != nil {
		sdeps.Archive = a.archive
	}
	mgr = session.NewManager(session.OptionsFrom(cfg), sdeps, log)
	a.sessions = mgr

	adeps := api.Deps{
		Sessions: mgr,
		Workers:  a.scheduler,
		Hub:      a.hub,
		Metrics:  m,
		Gatherer: prometheus.DefaultGatherer,
	}
	if a.archive != nil {
		adeps.Archive = a.archive
	}
	if uploads != nil {
		adeps.Upload = uploads.cache
	}
	a.apiServer = &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.NewRouter(cfg.HTTP.JWTSecret, adeps, log),
		ReadHeaderTimeout: 10 * time.Second,
	}
	a.gatewayServer = &http.Server{
		Addr:              cfg.Gateway.Addr,
		Handler:           a.gateway.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	a.runner = jobs.NewRunner(log, m, jobs.Maintenance(a.schedule(), mgr, a.scheduler, a.resetter(), a.archiveJobs(), log)...)

	if cfg.Recovery.DropDir != "" && uploads != nil {
		if err := os.MkdirAll(cfg.Recovery.DropDir, 0755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", cfg.Recovery.DropDir, err)
		}
		w, err := recovery.NewWatcher(cfg.Recovery.DropDir, recovery.New(uploads.uploader, log), log, cfg.Recovery.MaxConcurrent)
		if err != nil {
			return nil, err
		}
		a.watcher = w
	}
	return a, nil
}

// buildWorkers creates one worker per configured identity, in config order.
func buildWorkers(entries []config.WorkerEntry, capture func(workerID string) voice.Capture, log logger.Logger) []*worker.Worker {
	workers := make([]*worker.Worker, 0, len(entries))
	for _, entry := range entries {
		workers = append(workers, worker.New(entry.ID, entry.Name, capture(entry.ID), log))
	}
	return workers
}

func (a *App) schedule() jobs.Schedule {
	return jobs.Schedule{
		PendingTimeout:   a.cfg.Workers.PendingTimeout,
		ScheduleInterval: a.cfg.Workers.ScheduleInterval,
		UploadReset:      a.cfg.Upload.ResetInterval,
		PruneInterval:    10 * time.Minute,
		SessionRetention: a.cfg.Session.Retention,
		ArchiveRetention: a.cfg.Database.Retention,
	}
}

func (a *App) resetter() jobs.Resetter {
	if a.uploads == nil {
		return nil
	}
	return a.uploads.cache
}

func (a *App) archiveJobs() jobs.Archive {
	if a.archive == nil {
		return nil
	}
	return a.archive
}

func (a *App) close() {
	if a.watcher != nil {
		a.watcher.Stop()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
