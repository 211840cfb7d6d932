// Package stats counts fragment outcomes over one run and renders the final
// bilingual summary.
package stats

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	okStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00FF00"))
	failedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF0000"))
	ruleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#666666"))
)

// Outcome classifies a finished run for the summary headline.
type Outcome string

const (
	OutcomeUploaded Outcome = "uploaded"
	OutcomeDone     Outcome = "done"
	OutcomeFailed   Outcome = "failed"
)

// Statistics holds counters that only ever grow. It is safe for concurrent
// readers such as the status endpoint.
type Statistics struct {
	mu       sync.Mutex
	total    int
	ready    int
	failed   int
	uploaded int
	current  string
	started  time.Time
	now      func() time.Time
}

// Snapshot is a consistent copy of the counters.
type Snapshot struct {
	Total     int           `json:"total"`
	Ready     int           `json:"ready"`
	Failed    int           `json:"failed"`
	Uploaded  int           `json:"uploaded"`
	Current   string        `json:"current,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Elapsed   time.Duration `json:"elapsed"`
}

func New() *Statistics {
	return newWithClock(time.Now)
}

func newWithClock(now func() time.Time) *Statistics {
	return &Statistics{started: now(), now: now}
}

// AddTotal counts one more time code entering the loop and records its
// fragment name as the one in progress.
func (s *Statistics) AddTotal(current string) {
	s.mu.Lock()
	s.total++
	s.current = current
	s.mu.Unlock()
}

func (s *Statistics) AddReady() {
	s.mu.Lock()
	s.ready++
	s.mu.Unlock()
}

func (s *Statistics) AddFailed() {
	s.mu.Lock()
	s.failed++
	s.mu.Unlock()
}

func (s *Statistics) AddUploaded() {
	s.mu.Lock()
	s.uploaded++
	s.mu.Unlock()
}

func (s *Statistics) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Total:     s.total,
		Ready:     s.ready,
		Failed:    s.failed,
		Uploaded:  s.uploaded,
		Current:   s.current,
		StartedAt: s.started,
		Elapsed:   s.now().Sub(s.started),
	}
}

// Outcome picks the summary headline.
func (s Snapshot) Outcome() Outcome {
	switch {
	case s.Total == s.Ready+s.Uploaded:
		return OutcomeUploaded
	case s.Failed == 0:
		return OutcomeDone
	default:
		return OutcomeFailed
	}
}

// Report writes the human-readable summary. logName is the file operators
// are pointed to when there were failures.
func (s *Statistics) Report(w io.Writer, logName string) {
	snap := s.Snapshot()
	rule := ruleStyle.Render(strings.Repeat("=", 64))

	var headline string
	switch snap.Outcome() {
	case OutcomeUploaded:
		headline = okStyle.Render("[OK] All done! Uploaded!/Готово! Загружено!")
	case OutcomeDone:
		headline = okStyle.Render("[OK] All done!/Готово!")
	default:
		headline = failedStyle.Render(fmt.Sprintf(
			"[FAILED] There were errors! See %s for details.../Произошли ошибки! Смотри детали в файле %s...",
			logName, logName))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w)
	fmt.Fprintln(w, headline)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Wall clock time/Время работы: %s\n", snap.Elapsed.Round(time.Second))
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Total/Всего: %d files/файлов\n", snap.Total)
	fmt.Fprintf(w, "  - Ready on Google Drive: %d files/загружено ранее\n", snap.Ready)
	fmt.Fprintf(w, "  - Newly uploaded: %d files/загружено сейчас\n", snap.Uploaded)
	fmt.Fprintf(w, "  - Failed: %d files/не удалось обработать\n", snap.Failed)
	fmt.Fprintln(w)
}
