// Package ledger records every run and each fragment outcome in SQLite so
// operators can audit past batches with "cutm history".
package ledger

import (
	"time"

	"github.com/cutmassively/cutm/internal/stats"
	"github.com/google/uuid"
)

const (
	StatusRunning     = "running"
	StatusDone        = "done"
	StatusUploaded    = "uploaded"
	StatusFailed      = "failed"
	StatusAborted     = "aborted"
	StatusInterrupted = "interrupted"
)

// timeLayout sorts lexically in chronological order.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

type Run struct {
	ID          string     `json:"id"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	SourceVideo string     `json:"source_video"`
	Total       int        `json:"total"`
	Ready       int        `json:"ready"`
	Uploaded    int        `json:"uploaded"`
	Failed      int        `json:"failed"`
	Status      string     `json:"status"`
	Error       string     `json:"error,omitempty"`
}

type Fragment struct {
	ID         int64     `json:"id"`
	RunID      string    `json:"run_id"`
	Row        int       `json:"row"`
	Name       string    `json:"name"`
	Action     string    `json:"action"`
	Outcome    string    `json:"outcome"`
	Error      string    `json:"error,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// NewRun starts a run record with a fresh id.
func NewRun(sourceVideo string) *Run {
	return &Run{
		ID:          uuid.NewString(),
		StartedAt:   time.Now().UTC(),
		SourceVideo: sourceVideo,
		Status:      StatusRunning,
	}
}

// StatusFor maps a finished run's counters to a ledger status.
func StatusFor(snap stats.Snapshot) string {
	switch snap.Outcome() {
	case stats.OutcomeUploaded:
		return StatusUploaded
	case stats.OutcomeDone:
		return StatusDone
	default:
		return StatusFailed
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}
