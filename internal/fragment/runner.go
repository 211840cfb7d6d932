package fragment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/cutmassively/cutm/internal/cloud"
	"github.com/cutmassively/cutm/internal/pipeline"
	"github.com/cutmassively/cutm/internal/stats"
	"github.com/cutmassively/cutm/internal/timecode"
	"github.com/cutmassively/cutm/internal/timing"
)

// Outcome is what finally happened to one time code.
type Outcome string

const (
	OutcomeReady    Outcome = "ready"
	OutcomeUploaded Outcome = "uploaded"
	OutcomeKept     Outcome = "kept" // cut or reused, upload disabled
	OutcomeFailed   Outcome = "failed"
)

// Uploader stores a local file under a remote folder.
type Uploader interface {
	Upload(ctx context.Context, parentID, path, name string) (*cloud.File, error)
}

// Record is one fragment outcome handed to a Recorder.
type Record struct {
	Row     int
	Name    string
	Action  Action
	Outcome Outcome
	Error   string
}

// Recorder persists fragment outcomes. Errors are logged and otherwise
// ignored by the runner.
type Recorder interface {
	RecordFragment(ctx context.Context, rec Record) error
}

type Config struct {
	Dir          string // fragments directory
	Source       string // local source video
	ParentID     string // remote output folder
	CorrectStart int    // seconds added to every start
	CorrectEnd   int    // seconds added to every end
	DoUpload     bool
}

type Deps struct {
	Cutter   pipeline.Cutter
	Uploader Uploader
	Stats    *stats.Statistics
	Recorder Recorder  // optional
	Logger   *slog.Logger
	Out      io.Writer // operator progress lines
}

// Runner is the sequential reconciliation loop.
type Runner struct {
	cfg      Config
	cutter   pipeline.Cutter
	uploader Uploader
	stats    *stats.Statistics
	recorder Recorder
	logger   *slog.Logger
	out      io.Writer
}

func NewRunner(cfg Config, deps Deps) *Runner {
	if deps.Stats == nil {
		deps.Stats = stats.New()
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if deps.Out == nil {
		deps.Out = io.Discard
	}
	return &Runner{
		cfg:      cfg,
		cutter:   deps.Cutter,
		uploader: deps.Uploader,
		stats:    deps.Stats,
		recorder: deps.Recorder,
		logger:   deps.Logger,
		out:      deps.Out,
	}
}

// Stats returns the counters the runner updates.
func (r *Runner) Stats() *stats.Statistics {
	return r.stats
}

// Run processes tcs in order. A failed cut is counted and skipped; upload
// errors, an unusable tool and context cancellation abort the run.
func (r *Runner) Run(ctx context.Context, tcs []timecode.TimeCode, remote map[string]cloud.File) error {
	ext := filepath.Ext(r.cfg.Source)
	if err := CheckUnique(tcs, ext); err != nil {
		return err
	}
	if err := os.MkdirAll(r.cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("create fragments dir: %w", err)
	}

	width := len(strconv.Itoa(len(tcs)))
	for i, tc := range tcs {
		if err := ctx.Err(); err != nil {
			return err
		}
		prefix := fmt.Sprintf("%0*d/%d", width, i+1, len(tcs))
		if err := r.process(ctx, prefix, tc, ext, remote); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) process(ctx context.Context, prefix string, tc timecode.TimeCode, ext string, remote map[string]cloud.File) error {
	step := Plan(tc, ext, r.cfg.Dir, remote)
	r.stats.AddTotal(step.Name)
	log := r.logger.With("row", tc.Row, "fragment", step.Name, "action", string(step.Action))

	if step.Action == ActionReady {
		r.stats.AddReady()
		fmt.Fprintf(r.out, "%s = %s\n", prefix, step.Remote.MetaString())
		log.Debug("fragment already uploaded")
		r.record(ctx, step, OutcomeReady, nil)
		return nil
	}

	if step.Action == ActionCut {
		if err := r.cut(ctx, step); err != nil {
			if ctx.Err() != nil || isFatalCutError(err) {
				return err
			}
			r.stats.AddFailed()
			fmt.Fprintf(r.out, "%s > [FAILED] failed to cut %s\n", prefix, step.Name)
			log.Error("fragment cut failed", "error", err)
			r.record(ctx, step, OutcomeFailed, err)
			return nil
		}
	}

	if !r.cfg.DoUpload {
		fmt.Fprintf(r.out, "%s > %s\n", prefix, tc.Name)
		log.Info("fragment ready locally, upload disabled")
		r.record(ctx, step, OutcomeKept, nil)
		return nil
	}

	f, err := r.uploader.Upload(ctx, r.cfg.ParentID, step.Path, step.Name)
	if err != nil {
		r.record(ctx, step, OutcomeFailed, err)
		return fmt.Errorf("upload %s: %w", step.Name, err)
	}
	r.stats.AddUploaded()
	fmt.Fprintf(r.out, "%s > %s\n", prefix, f.MetaString())
	log.Info("fragment uploaded", "file_id", f.ID)
	r.record(ctx, step, OutcomeUploaded, nil)
	return nil
}

// cut applies the corrections and writes the fragment through a temp file
// so that step.Path only ever holds a complete cut.
func (r *Runner) cut(ctx context.Context, step Step) error {
	start, err := timing.CorrectTimeBy(step.TimeCode.Start, r.cfg.CorrectStart)
	if err != nil {
		return fmt.Errorf("correct start: %w", err)
	}
	end, err := timing.CorrectTimeBy(step.TimeCode.End, r.cfg.CorrectEnd)
	if err != nil {
		return fmt.Errorf("correct end: %w", err)
	}

	tmp := tempPath(step.Path)
	res, err := r.cutter.Cut(ctx, pipeline.CutRequest{
		Source: r.cfg.Source,
		Start:  start,
		End:    end,
		Output: tmp,
	})
	if err != nil {
		return &fatalCutError{err: err}
	}
	if err := res.Err(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, step.Path); err != nil {
		return fmt.Errorf("finalize fragment: %w", err)
	}
	return nil
}

func (r *Runner) record(ctx context.Context, step Step, outcome Outcome, cause error) {
	if r.recorder == nil {
		return
	}
	rec := Record{
		Row:     step.TimeCode.Row,
		Name:    step.Name,
		Action:  step.Action,
		Outcome: outcome,
	}
	if cause != nil {
		rec.Error = cause.Error()
	}
	if err := r.recorder.RecordFragment(ctx, rec); err != nil {
		r.logger.Warn("failed to record fragment outcome", "fragment", step.Name, "error", err)
	}
}

// fatalCutError marks a cutter that could not be invoked at all.
type fatalCutError struct{ err error }

func (e *fatalCutError) Error() string { return e.err.Error() }
func (e *fatalCutError) Unwrap() error { return e.err }

func isFatalCutError(err error) bool {
	var fe *fatalCutError
	return errors.As(err, &fe)
}
