package cli

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/nguyentantai21042004/meeting-recorder/internal/metrics"
	"github.com/nguyentantai21042004/meeting-recorder/internal/recovery"
)

func NewRecoverCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "recover <dir>...",
		Short: "Re-upload session folders kept after a failed upload",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(opts)
			if err != nil {
				return err
			}
			defer log.Sync()

			m := metrics.New(prometheus.NewRegistry())
			uploads, err := newUploadStack(cfg, newRetry(log, m), m, log)
			if err != nil {
				return err
			}
			if uploads == nil {
				return fmt.Errorf("upload.backend is %q: nothing to recover to", cfg.Upload.Backend)
			}

			rec := recovery.New(uploads.uploader, log)
			ctx := cmd.Context()

			failed := 0
			for _, dir := range args {
				res, err := rec.Recover(ctx, dir)
				if err != nil {
					log.Error(ctx, "Recovery of %s failed: %v", dir, err)
					failed++
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: uploaded %d/%d files in %s\n", dir, res.Uploaded, res.Total, res.Duration.Round(time.Millisecond))
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d folders were not recovered", failed, len(args))
			}
			return nil
		},
	}
}
