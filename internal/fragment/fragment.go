// Package fragment decides, per time code, whether a fragment is already on
// the drive, already cut locally, or still has to be cut, and runs that
// reconciliation sequentially.
package fragment

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cutmassively/cutm/internal/cloud"
	"github.com/cutmassively/cutm/internal/timecode"
	"github.com/cutmassively/cutm/internal/timing"
)

var ErrDuplicateFragmentName = errors.New("duplicate fragment name")

// Action is the planned step for one time code.
type Action string

const (
	ActionReady      Action = "ready"       // already uploaded
	ActionReuseLocal Action = "reuse-local" // cut by an earlier run
	ActionCut        Action = "cut"
)

// Step is a classified time code.
type Step struct {
	TimeCode timecode.TimeCode
	Name     string
	Path     string
	Action   Action
	Remote   *cloud.File // set for ActionReady
}

// Filename derives the fragment file name: zero-padded row, time suffix,
// clip name, source extension.
func Filename(tc timecode.TimeCode, ext string) string {
	return fmt.Sprintf("%03d%s_%s%s", tc.Row, timing.Suffix(tc.Start, tc.End), tc.Name, ext)
}

// CheckUnique fails when two time codes would write the same fragment file.
func CheckUnique(tcs []timecode.TimeCode, ext string) error {
	seen := make(map[string]int, len(tcs))
	for _, tc := range tcs {
		name := Filename(tc, ext)
		if prev, ok := seen[name]; ok {
			return fmt.Errorf("%w: %q from rows %d and %d", ErrDuplicateFragmentName, name, prev, tc.Row)
		}
		seen[name] = tc.Row
	}
	return nil
}

// Plan classifies tc against the remote index and the fragments directory.
func Plan(tc timecode.TimeCode, ext, dir string, remote map[string]cloud.File) Step {
	name := Filename(tc, ext)
	step := Step{
		TimeCode: tc,
		Name:     name,
		Path:     filepath.Join(dir, name),
		Action:   ActionCut,
	}

	if f, ok := remote[name]; ok {
		step.Action = ActionReady
		step.Remote = &f
		return step
	}
	if info, err := os.Stat(step.Path); err == nil && info.Mode().IsRegular() {
		step.Action = ActionReuseLocal
	}
	return step
}

// tempPath is the hidden sibling a cut is written to before being renamed
// onto the fragment name. It keeps the extension so the tool picks the
// right container.
func tempPath(path string) string {
	return filepath.Join(filepath.Dir(path), ".partial-"+filepath.Base(path))
}
