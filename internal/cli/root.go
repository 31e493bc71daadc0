package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nguyentantai21042004/meeting-recorder/internal/config"
	"github.com/nguyentantai21042004/meeting-recorder/internal/logger"
)

// Options are the global flags.
type Options struct {
	ConfigPath string
}

func NewRootCmd() *cobra.Command {
	opts := &Options{}
	rootCmd := &cobra.Command{
		Use:           "recorder",
		Short:         "Record voice meetings with a pool of worker bots",
		Long:          "Assigns recorder bots to meetings, captures per-speaker audio, and produces transcripts, summaries and to-do lists.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "config.yaml", "path to a .yaml or .toml config file")

	rootCmd.AddCommand(NewServeCmd(opts))
	rootCmd.AddCommand(NewRecoverCmd(opts))
	rootCmd.AddCommand(NewDoctorCmd(opts))
	rootCmd.AddCommand(NewTokenCmd(opts))

	return rootCmd
}

func loadConfig(opts *Options) (*config.Config, logger.Logger, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, logger.NewWithFormat(cfg.Logging.Level, cfg.Logging.Format), nil
}
