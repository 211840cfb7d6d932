package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cutmassively/cutm/internal/config"
	"github.com/cutmassively/cutm/internal/logging"
	"github.com/spf13/cobra"
)

const description = `Download a video from Google Drive and slice it into fragments
using time codes from a Google Spreadsheet.

Fragments are stream-copied with ffmpeg and uploaded back to a Drive
folder. Work already done (fragments on the drive or cut locally) is
skipped, so an interrupted run can simply be started again.`

type rootOptions struct {
	configPath string
	out        io.Writer
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &rootOptions{out: out}

	cmd := &cobra.Command{
		Use:           "cutm",
		Short:         "Cut a Drive video into fragments from spreadsheet time codes",
		Long:          description,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", config.Version, config.GitCommit, config.BuildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withEnv(cmd.Context(), "pipeline", runPipeline)
		},
	}
	cmd.SetOut(out)
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", config.DefaultPath(),
		"configuration file (JSON or TOML)")

	cmd.AddCommand(
		newTimecodesCmd(opts),
		newHistoryCmd(opts),
		newDoctorCmd(opts),
	)
	return cmd
}

// env is what every subcommand gets after configuration and logging are up.
type env struct {
	cfg    *config.Config
	logger *slog.Logger
	out    io.Writer
}

// withEnv loads the configuration, opens the log file and runs fn with a
// context cancelled on SIGINT/SIGTERM. A failure of fn is logged as
// critical before it is returned.
func (o *rootOptions) withEnv(parent context.Context, component string, fn func(ctx context.Context, e *env) error) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logFile, err := logging.OpenFile(cfg.LogPath())
	if err != nil {
		return err
	}
	defer logFile.Close()

	logger := logging.WithComponent(logging.NewLogger(cfg.LogLevel, logFile), component)
	logger.Debug("configuration loaded",
		"version", config.Version,
		"config", logging.SanitizePath(cfg.Path()),
		"temporary_dir", cfg.TemporaryDir,
		"do_upload", cfg.DoUpload,
	)

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := fn(ctx, &env{cfg: cfg, logger: logger, out: o.out}); err != nil {
		logging.Critical(logger, "command failed", "error", err)
		return err
	}
	return nil
}
