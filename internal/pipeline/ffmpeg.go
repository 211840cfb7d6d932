package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const (
	maxStderrBytes = 8 * 1024 // 8 KB tail of stderr kept for diagnostics

	DefaultTool       = "ffmpeg"
	DefaultCutTimeout = 10 * time.Minute
	probeTimeout      = 15 * time.Second
)

// Cutter produces one fragment file from the source video.
type Cutter interface {
	// Cut returns an error only when the tool could not be invoked at all;
	// a tool failure or timeout is reported through RunResult.
	Cut(ctx context.Context, req CutRequest) (RunResult, error)
}

// Config holds the cutter's configuration.
type Config struct {
	Tool    string        // command name or path; empty = "ffmpeg"
	Timeout time.Duration // per-cut limit; zero = no limit
	Logger  *slog.Logger
}

// FFmpeg is the production Cutter.
type FFmpeg struct {
	cfg  Config
	tool string // resolved tool path
}

// NewFFmpeg resolves the tool path and fails with ErrToolNotFound when it
// is neither on PATH nor beside the executable.
func NewFFmpeg(cfg Config) (*FFmpeg, error) {
	if cfg.Tool == "" {
		cfg.Tool = DefaultTool
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	tool, err := ResolveTool(cfg.Tool)
	if err != nil {
		return nil, err
	}

	cfg.Logger.Info("cutter initialised", "tool", tool, "timeout", cfg.Timeout)
	return &FFmpeg{cfg: cfg, tool: tool}, nil
}

// Path returns the resolved tool path.
func (f *FFmpeg) Path() string {
	return f.tool
}

// Cut stream-copies video and audio between req.Start and req.End into
// req.Output, overwriting it.
func (f *FFmpeg) Cut(ctx context.Context, req CutRequest) (RunResult, error) {
	if err := os.MkdirAll(filepath.Dir(req.Output), 0755); err != nil {
		return RunResult{ExitCode: -1, StderrTail: err.Error()}, nil
	}

	f.cfg.Logger.Debug("cutting fragment", "output", req.Output, "start", req.Start, "end", req.End)
	return f.exec(ctx, f.cfg.Timeout,
		"-hide_banner",
		"-ss", req.Start, "-to", req.End,
		"-i", req.Source,
		"-c:v", "copy", "-c:a", "copy",
		"-y", req.Output,
	)
}

// Probe runs "<tool> -version" and returns the first output line.
func (f *FFmpeg) Probe(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, f.tool, "-version").Output()
	if err != nil {
		return "", fmt.Errorf("probe %s: %w", f.tool, err)
	}
	return firstLine(string(out)), nil
}

// exec is the core subprocess execution helper.
func (f *FFmpeg) exec(ctx context.Context, timeout time.Duration, args ...string) (RunResult, error) {
	start := time.Now()

	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, f.tool, args...)
	cmd.WaitDelay = 5 * time.Second

	// Capture stderr with bounded buffer
	var stderrBuf bytes.Buffer
	cmd.Stderr = &limitedWriter{w: &stderrBuf, limit: maxStderrBytes}
	cmd.Stdout = io.Discard

	err := cmd.Run()
	elapsed := time.Since(start)

	result := RunResult{StderrTail: stderrBuf.String(), Duration: elapsed}
	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case ctx.Err() != nil:
			return result, ctx.Err()
		case runCtx.Err() == context.DeadlineExceeded:
			result.ExitCode = -1
			result.TimedOut = true
		case errors.As(err, &exitErr):
			result.ExitCode = exitErr.ExitCode()
		default:
			return result, fmt.Errorf("%w: %s: %v", ErrToolNotFound, f.tool, err)
		}
	}

	if !result.IsSuccess() {
		f.cfg.Logger.Error("cutting tool failed",
			"exit_code", result.ExitCode,
			"timed_out", result.TimedOut,
			"duration_ms", elapsed.Milliseconds(),
			"stderr_tail", truncate(result.StderrTail, 2048),
		)
	} else {
		f.cfg.Logger.Debug("cutting tool succeeded", "duration_ms", elapsed.Milliseconds())
	}
	return result, nil
}

// ResolveTool finds name on PATH, then beside the running executable.
func ResolveTool(name string) (string, error) {
	if p, err := exec.LookPath(name); err == nil {
		return p, nil
	}
	if !filepath.IsAbs(name) {
		if exe, err := os.Executable(); err == nil {
			if p, err := exec.LookPath(filepath.Join(filepath.Dir(exe), name)); err == nil {
				return p, nil
			}
		}
	}
	return "", fmt.Errorf("%w: %q is not on PATH or beside the application", ErrToolNotFound, name)
}

func firstLine(s string) string {
	sc := bufio.NewScanner(strings.NewReader(s))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			return line
		}
	}
	return ""
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}

// limitedWriter is an io.Writer that keeps only the last `limit` bytes.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		// Keep only the tail
		b := lw.w.Bytes()
		tail := append([]byte(nil), b[len(b)-lw.limit:]...)
		lw.w.Reset()
		lw.w.Write(tail)
	}
	return n, nil
}
