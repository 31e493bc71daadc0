package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/nguyentantai21042004/meeting-recorder/internal/config"
	"github.com/nguyentantai21042004/meeting-recorder/internal/logger"
	"github.com/nguyentantai21042004/meeting-recorder/internal/summarizer"
	"github.com/nguyentantai21042004/meeting-recorder/internal/transcriber"
	"github.com/nguyentantai21042004/meeting-recorder/internal/upload"
	"github.com/nguyentantai21042004/meeting-recorder/pkg/executor"
)

type check struct {
	name   string
	ok     bool
	detail string
}

func NewDoctorCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check prerequisites",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			cfg, log, err := loadConfig(opts)
			if err != nil {
				printCheck(out, check{name: "Config", detail: err.Error()})
				return fmt.Errorf("prerequisites missing")
			}
			printCheck(out, check{name: "Config", ok: true, detail: opts.ConfigPath})

			checks := runChecks(cmd.Context(), cfg, executor.New(), log)
			ok := true
			for _, c := range checks {
				printCheck(out, c)
				ok = ok && c.ok
			}
			if !ok {
				fmt.Fprintln(out, "\nSome prerequisites are missing.")
				return fmt.Errorf("prerequisites missing")
			}
			fmt.Fprintln(out, "\nAll prerequisites met. Ready to record!")
			return nil
		},
	}
}

func runChecks(ctx context.Context, cfg *config.Config, exec executor.Executor, log logger.Logger) []check {
	var checks []check

	for _, bin := range []string{cfg.Pipeline.FFmpegPath, cfg.Pipeline.FFprobePath} {
		if path, err := exec.LookPath(bin); err != nil {
			checks = append(checks, check{name: bin, detail: "not found. Install ffmpeg"})
		} else {
			checks = append(checks, check{name: bin, ok: true, detail: path})
		}
	}

	if _, err := transcriber.New(cfg.Transcription, cfg.Language.GeminiKeys, cfg.Pipeline.FFmpegPath, exec, log); err != nil {
		checks = append(checks, check{name: "Transcription", detail: err.Error()})
	} else {
		checks = append(checks, check{name: "Transcription", ok: true, detail: cfg.Transcription.Provider})
	}
	if _, err := summarizer.New(cfg.Language, log); err != nil {
		checks = append(checks, check{name: "Language service", detail: err.Error()})
	} else {
		checks = append(checks, check{name: "Language service", ok: true, detail: cfg.Language.Provider + " " + cfg.Language.Model})
	}

	if _, err := upload.NewFactory(cfg.Upload); err != nil {
		checks = append(checks, check{name: "Upload", detail: err.Error()})
	} else {
		checks = append(checks, check{name: "Upload", ok: true, detail: cfg.Upload.Backend})
	}

	if cfg.HTTP.JWTSecret == "" {
		checks = append(checks, check{name: "API auth", detail: "http.jwt_secret not set; the API will reject every request"})
	} else {
		checks = append(checks, check{name: "API auth", ok: true, detail: "configured"})
	}
	if cfg.Gateway.ControlToken == "" {
		checks = append(checks, check{name: "Control bridge", detail: "gateway.control_token not set. Set MEETREC_CONTROL_TOKEN"})
	} else {
		checks = append(checks, check{name: "Control bridge", ok: true, detail: "token configured"})
	}
	for _, w := range cfg.Workers.Pool {
		if w.Token == "" {
			checks = append(checks, check{name: "Worker " + w.ID, detail: "token not set"})
		}
	}

	if cfg.Database.URL != "" {
		checks = append(checks, checkDatabase(ctx, cfg.Database.URL))
	}
	return checks
}

func checkDatabase(ctx context.Context, url string) check {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return check{name: "Database", detail: err.Error()}
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		return check{name: "Database", detail: err.Error()}
	}
	return check{name: "Database", ok: true, detail: "reachable"}
}

func printCheck(w io.Writer, c check) {
	mark := "✓"
	if !c.ok {
		mark = "✗"
	}
	fmt.Fprintf(w, "%s %s: %s\n", mark, c.name, c.detail)
}
