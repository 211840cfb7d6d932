package main

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/cutmassively/cutm/internal/config"
	"github.com/cutmassively/cutm/internal/logging"
	"github.com/cutmassively/cutm/internal/pipeline"
	"github.com/spf13/cobra"
)

var (
	okMark   = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")).Render("[OK]")
	failMark = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")).Render("[FAILED]")
)

func newDoctorCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, credentials and the cutting tool",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withEnv(cmd.Context(), "doctor", runDoctor)
		},
	}
}

func runDoctor(ctx context.Context, e *env) error {
	failed := 0
	check := func(name string, detail string, err error) {
		if err != nil {
			failed++
			fmt.Fprintf(e.out, "%s %s: %v\n", failMark, name, err)
			e.logger.Error("doctor check failed", "check", name, "error", err)
			return
		}
		fmt.Fprintf(e.out, "%s %s: %s\n", okMark, name, detail)
	}

	check("config", logging.SanitizePath(e.cfg.Path()), nil)

	credentials, err := config.CheckedPath(e.cfg.AuthToken)
	check("credentials", credentials, err)

	cutter, err := pipeline.NewFFmpeg(pipeline.Config{Tool: e.cfg.FFmpeg, Logger: e.logger})
	if err != nil {
		check("cutting tool", "", err)
	} else {
		version, err := cutter.Probe(ctx)
		check("cutting tool", fmt.Sprintf("%s (%s)", cutter.Path(), version), err)
	}

	return doctorResult(e.out, failed)
}

func doctorResult(w io.Writer, failed int) error {
	if failed > 0 {
		return fmt.Errorf("%d check(s) failed", failed)
	}
	fmt.Fprintln(w, "All checks passed.")
	return nil
}
