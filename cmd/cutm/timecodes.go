package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/cutmassively/cutm/internal/cloud"
	"github.com/cutmassively/cutm/internal/export"
	"github.com/cutmassively/cutm/internal/fragment"
	"github.com/spf13/cobra"
)

func newTimecodesCmd(opts *rootOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "timecodes",
		Short: "Print the time codes the pipeline would cut",
		Long: `Read the worksheet and print every selected, valid time code with the
fragment name it maps to. Nothing is downloaded, cut or uploaded.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != export.FormatText && format != export.FormatEDL {
				return fmt.Errorf("unknown format %q (want %s or %s)", format, export.FormatText, export.FormatEDL)
			}
			return opts.withEnv(cmd.Context(), "timecodes", func(ctx context.Context, e *env) error {
				return printTimecodes(ctx, e, format)
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", export.FormatText, "output format: text or edl")
	return cmd
}

func printTimecodes(ctx context.Context, e *env, format string) error {
	g, err := newGoogle(e.cfg, e)
	if err != nil {
		return err
	}

	videoID, err := cloud.AsID(e.cfg.VideoURL)
	if err != nil {
		return fmt.Errorf("video_url: %w", err)
	}
	meta, err := g.drive.Get(ctx, videoID)
	if err != nil {
		return err
	}
	ext := filepath.Ext(meta.Name)

	tcs, err := extractTimeCodes(ctx, e, g.sheets)
	if err != nil {
		return err
	}
	if err := fragment.CheckUnique(tcs, ext); err != nil {
		return err
	}

	if format == export.FormatEDL {
		_, err := fmt.Fprint(e.out, export.GenerateEDL(tcs, meta.Name, ext))
		return err
	}
	fmt.Fprintf(e.out, "Source video: %s\n", meta.MetaString())
	fmt.Fprintf(e.out, "Extracted %d time code(s)\n\n", len(tcs))
	return export.WriteText(e.out, tcs, ext)
}
