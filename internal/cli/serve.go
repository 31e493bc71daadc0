package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

const shutdownGrace = 2 * time.Minute

func NewServeCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the recorder service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(opts)
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log.Info(ctx, "========================================")
			log.Info(ctx, "Meeting Recorder")
			log.Info(ctx, "========================================")
			log.Info(ctx, "System: %s/%s", runtime.GOOS, runtime.GOARCH)
			log.Info(ctx, "Workers: %d", len(cfg.Workers.Pool))

			app, err := newApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer app.close()
			return app.run(ctx)
		},
	}
}

// run serves until ctx is cancelled or a listener fails, then shuts down:
// stop taking events, close every session, then stop the listeners.
func (a *App) run(ctx context.Context) error {
	errChan := make(chan error, 3)
	listen := func(name string, srv *http.Server) {
		a.logger.Info(ctx, "%s listening on %s", name, srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}
	go listen("Bridge gateway", a.gatewayServer)
	go listen("HTTP API", a.apiServer)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.runner.Start(runCtx)
	if a.watcher != nil {
		go func() {
			if err := a.watcher.Start(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				errChan <- err
			}
		}()
	}

	events := make(chan struct{})
	go func() {
		defer close(events)
		for {
			select {
			case <-runCtx.Done():
				return
			case ev := <-a.gateway.Events():
				a.sessions.HandleEvent(runCtx, ev)
			}
		}
	}()

	a.logger.Info(ctx, "========================================")
	a.logger.Info(ctx, "Recorder is ready!")
	a.logger.Info(ctx, "Trigger channel: %s", a.cfg.Session.TriggerChannel)
	a.logger.Info(ctx, "Recordings: %s", a.cfg.Paths.Recordings)
	a.logger.Info(ctx, "Upload backend: %s", a.cfg.Upload.Backend)
	a.logger.Info(ctx, "Press Ctrl+C to stop")
	a.logger.Info(ctx, "========================================")

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info(context.Background(), "Shutdown signal received")
	case runErr = <-errChan:
		a.logger.Error(context.Background(), "Listener error: %v", runErr)
	}

	a.logger.Info(context.Background(), "Shutting down gracefully...")
	cancel()
	<-events

	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownGrace)
	defer done()
	if err := a.sessions.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn(shutdownCtx, "Sessions did not finish in time: %v", err)
	}
	a.runner.Wait()

	for _, srv := range []*http.Server{a.apiServer, a.gatewayServer} {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn(shutdownCtx, "Shutdown of %s: %v", srv.Addr, err)
		}
	}
	a.logger.Info(context.Background(), "Recorder stopped")
	return runErr
}
