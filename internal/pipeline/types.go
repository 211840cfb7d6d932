// Package pipeline runs the external media tool that cuts fragments out of
// the source video by stream copy.
package pipeline

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrToolNotFound = errors.New("cutting tool not found")
	ErrToolTimeout  = errors.New("cutting tool timed out")
)

// CutRequest describes one stream-copy cut. Start and End are HH:MM:SS
// strings already shifted by the configured corrections.
type CutRequest struct {
	Source string
	Start  string
	End    string
	Output string
}

// RunResult is the outcome of one tool invocation.
type RunResult struct {
	ExitCode   int           `json:"exit_code"`
	StderrTail string        `json:"stderr_tail,omitempty"` // last N bytes of stderr
	Duration   time.Duration `json:"duration"`
	TimedOut   bool          `json:"timed_out,omitempty"`
}

// IsSuccess returns true when the tool exited cleanly.
func (r RunResult) IsSuccess() bool { return r.ExitCode == 0 && !r.TimedOut }

// Err describes a failed run, or returns nil for a successful one.
func (r RunResult) Err() error {
	switch {
	case r.TimedOut:
		return fmt.Errorf("%w after %s", ErrToolTimeout, r.Duration.Round(time.Millisecond))
	case r.ExitCode != 0:
		return fmt.Errorf("exited %d: %s", r.ExitCode, truncate(r.StderrTail, 512))
	default:
		return nil
	}
}
