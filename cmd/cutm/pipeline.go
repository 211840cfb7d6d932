package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cutmassively/cutm/internal/api"
	"github.com/cutmassively/cutm/internal/cloud"
	"github.com/cutmassively/cutm/internal/config"
	"github.com/cutmassively/cutm/internal/db"
	"github.com/cutmassively/cutm/internal/fragment"
	"github.com/cutmassively/cutm/internal/ledger"
	"github.com/cutmassively/cutm/internal/logging"
	"github.com/cutmassively/cutm/internal/pipeline"
	"github.com/cutmassively/cutm/internal/stats"
	"github.com/cutmassively/cutm/internal/timecode"
)

// google holds the API clients of one process, sharing a token source.
type google struct {
	drive  *cloud.Drive
	sheets *cloud.Sheets
}

func newGoogle(cfg *config.Config, e *env) (*google, error) {
	credentials, err := config.CheckedPath(cfg.AuthToken)
	if err != nil {
		return nil, fmt.Errorf("credentials: %w", err)
	}
	tokens, err := cloud.NewServiceAccount(credentials, nil)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("service account loaded", "email", tokens.Email())

	logger := logging.WithComponent(e.logger, "cloud")
	return &google{
		drive:  cloud.NewDrive(cloud.DriveConfig{Tokens: tokens, Logger: logger}),
		sheets: cloud.NewSheets(cloud.SheetsConfig{Tokens: tokens, Logger: logger}),
	}, nil
}

// extractTimeCodes reads the worksheet and returns its validated cut
// instructions.
func extractTimeCodes(ctx context.Context, e *env, sheets *cloud.Sheets) ([]timecode.TimeCode, error) {
	values, err := sheets.Values(ctx, e.cfg.WorksheetURL)
	if err != nil {
		return nil, err
	}
	extractor := timecode.NewExtractor(e.cfg.Columns, logging.WithComponent(e.logger, "timecode"))
	tcs, err := extractor.ExtractTable(values, e.cfg.HeadRow, e.cfg.NHeadRows)
	if err != nil {
		return nil, err
	}
	e.logger.Info("time codes extracted", "count", len(tcs), "sheet_rows", len(values))
	return tcs, nil
}

func runPipeline(ctx context.Context, e *env) error {
	cfg := e.cfg
	run := ledger.NewRun("")
	e = &env{cfg: cfg, logger: logging.WithRunID(e.logger, run.ID), out: e.out}

	cutter, err := pipeline.NewFFmpeg(pipeline.Config{
		Tool:    cfg.FFmpeg,
		Timeout: cfg.CutTimeout(),
		Logger:  logging.WithComponent(e.logger, "cutter"),
	})
	if err != nil {
		return err
	}

	g, err := newGoogle(cfg, e)
	if err != nil {
		return err
	}

	videoID, err := cloud.AsID(cfg.VideoURL)
	if err != nil {
		return fmt.Errorf("video_url: %w", err)
	}
	outputID, err := cloud.AsID(cfg.OutputDirURL)
	if err != nil {
		return fmt.Errorf("output_dir_url: %w", err)
	}
	folder, err := g.drive.Folder(ctx, outputID)
	if err != nil {
		return fmt.Errorf("output_dir_url: %w", err)
	}
	e.logger.Debug("output folder", "id", folder.ID, "name", folder.Name)

	e.logger.Debug("create temporary dir", "path", cfg.TemporaryDir)
	if err := os.MkdirAll(cfg.TemporaryDir, 0o755); err != nil {
		return fmt.Errorf("create temporary dir: %w", err)
	}

	video, meta, err := g.drive.DownloadVideo(ctx, videoID, cfg.TemporaryDir, e.out)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "Source video: %s\n", meta.MetaString())

	tcs, err := extractTimeCodes(ctx, e, g.sheets)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "Extracted %d time code(s)\n", len(tcs))

	remote, err := g.drive.ListVideos(ctx, outputID)
	if err != nil {
		return err
	}

	st := stats.New()
	rec := openLedger(ctx, e, run, filepath.Base(video))
	defer rec.close()

	if cfg.StatusAddr != "" {
		srv := api.NewServer(api.ServerConfig{
			Addr:        cfg.StatusAddr,
			Stats:       st,
			Runs:        rec.reader(),
			RunID:       run.ID,
			SourceVideo: filepath.Base(video),
			Version:     config.Version,
			Logger:      logging.WithComponent(e.logger, "api"),
			StartTime:   time.Now(),
		})
		if _, err := srv.Start(); err != nil {
			e.logger.Warn("status server unavailable", "addr", cfg.StatusAddr, "error", err)
		} else {
			fmt.Fprintf(e.out, "Status: http://%s/status\n", srv.Addr())
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					e.logger.Error("failed to shutdown status server", "error", err)
				}
			}()
		}
	}

	deps := fragment.Deps{
		Cutter:   cutter,
		Uploader: g.drive,
		Stats:    st,
		Recorder: rec.recorder(),
		Logger:   logging.WithComponent(e.logger, "fragment"),
		Out:      e.out,
	}

	runner := fragment.NewRunner(fragment.Config{
		Dir:          cfg.FragmentsDir(),
		Source:       video,
		ParentID:     outputID,
		CorrectStart: cfg.Correct.StartTime,
		CorrectEnd:   cfg.Correct.EndTime,
		DoUpload:     cfg.DoUpload,
	}, deps)

	runErr := runner.Run(ctx, tcs, remote)
	rec.finish(st.Snapshot(), runErr)

	st.Report(e.out, cfg.LogPath())
	return runErr
}

// runLedger wraps the optional ledger of one run. Every method is a no-op
// when the ledger is disabled or could not be opened.
type runLedger struct {
	e    *env
	db   *db.DB
	repo *ledger.SQLiteRepository
	run  *ledger.Run
}

// openLedger records run, which carries the id already used in the logs.
func openLedger(ctx context.Context, e *env, run *ledger.Run, source string) *runLedger {
	rl := &runLedger{e: e}
	path := e.cfg.LedgerPath()
	if path == "" {
		return rl
	}

	database, err := db.New(path, logging.WithComponent(e.logger, "db"))
	if err != nil {
		e.logger.Warn("run ledger unavailable", "path", path, "error", err)
		return rl
	}
	repo := ledger.NewRepository(database.Conn())
	run.SourceVideo = source
	if err := repo.CreateRun(ctx, run); err != nil {
		e.logger.Warn("failed to record run", "error", err)
		database.Close()
		return rl
	}

	e.logger.Info("run started", "source_video", source)
	rl.db, rl.repo, rl.run = database, repo, run
	return rl
}

func (rl *runLedger) reader() api.RunReader {
	if rl.repo == nil {
		return nil
	}
	return rl.repo
}

func (rl *runLedger) recorder() fragment.Recorder {
	if rl.repo == nil {
		return nil
	}
	return ledger.NewRunRecorder(rl.repo, rl.run.ID)
}

func (rl *runLedger) finish(snap stats.Snapshot, runErr error) {
	if rl.repo == nil {
		return
	}
	status, msg := ledger.StatusFor(snap), ""
	switch {
	case errors.Is(runErr, context.Canceled):
		status, msg = ledger.StatusInterrupted, runErr.Error()
	case runErr != nil:
		status, msg = ledger.StatusAborted, runErr.Error()
	}
	// The run context may already be cancelled here.
	if err := rl.repo.FinishRun(context.Background(), rl.run.ID, snap, status, msg); err != nil {
		rl.e.logger.Warn("failed to finish run record", "error", err)
	}
}

func (rl *runLedger) close() {
	if rl.db != nil {
		rl.db.Close()
	}
}
