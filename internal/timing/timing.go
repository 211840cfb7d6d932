// Package timing converts the loose clock strings operators type into
// spreadsheets to seconds and back.
//
// Accepted input is up to three numeric groups separated by any of
// ':', ',', '.', '\'' or ' ', read right to left as seconds, minutes and
// hours. Empty groups count as zero. Output is always HH:MM:SS.
package timing

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

const delimiters = ":,.' "

var (
	ErrInvalidTimeFormat = errors.New("invalid time format")
	ErrInvalidCorrection = errors.New("invalid time correction")
)

// validPattern is the structural grammar checked before parsing: leading
// digits, then at most two groups of a delimiter and up to two digits whose
// first digit (when two are given) is 0-5.
var validPattern = regexp.MustCompile(`^\d*(?:[:,.' ][0-5]?\d?){0,2}$`)

// IsValidTimeFormat reports whether s is structurally a plausible clock value.
func IsValidTimeFormat(s string) bool {
	return validPattern.MatchString(s)
}

// ParseTime returns the number of seconds s denotes. Range checks on the
// minutes and seconds groups are left to IsValidTimeFormat.
func ParseTime(s string) (int, error) {
	groups := splitGroups(s)
	if len(groups) > 3 {
		return 0, fmt.Errorf("%w: %q has %d groups", ErrInvalidTimeFormat, s, len(groups))
	}

	total := 0
	scale := 1
	for i := len(groups) - 1; i >= 0; i-- {
		g := groups[i]
		if g != "" {
			if !isDigits(g) {
				return 0, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, s)
			}
			n, err := strconv.Atoi(g)
			if err != nil {
				return 0, fmt.Errorf("%w: %q: %v", ErrInvalidTimeFormat, s, err)
			}
			if n > (math.MaxInt-total)/scale {
				return 0, fmt.Errorf("%w: %q is out of range", ErrInvalidTimeFormat, s)
			}
			total += n * scale
		}
		scale *= 60
	}
	return total, nil
}

// FormatTime renders seconds as zero-padded HH:MM:SS. Hours grow past two
// digits when needed.
func FormatTime(seconds int) string {
	return FormatTimeDelim(seconds, ":")
}

// FormatTimeDelim is FormatTime with a custom group delimiter.
func FormatTimeDelim(seconds int, delim string) string {
	sign := ""
	if seconds < 0 {
		sign = "-"
		seconds = -seconds
	}
	minutes := seconds / 60
	hours := minutes / 60
	return fmt.Sprintf("%s%02d%s%02d%s%02d", sign, hours, delim, minutes-60*hours, delim, seconds-60*minutes)
}

// CorrectTimeBy shifts a time string by delta seconds. A result before zero
// is rejected with ErrInvalidCorrection rather than clamped.
func CorrectTimeBy(s string, delta int) (string, error) {
	t, err := ParseTime(s)
	if err != nil {
		return "", err
	}
	t += delta
	if t < 0 {
		return "", fmt.Errorf("%w: %s%+ds is before 00:00:00", ErrInvalidCorrection, s, delta)
	}
	return FormatTime(t), nil
}

// Suffix returns "_<start>-<end>" with ':' replaced by '.', for file names.
func Suffix(start, end string) string {
	return "_" + strings.ReplaceAll(start, ":", ".") + "-" + strings.ReplaceAll(end, ":", ".")
}

func splitGroups(s string) []string {
	var groups []string
	start := 0
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(delimiters, s[i]) >= 0 {
			groups = append(groups, s[start:i])
			start = i + 1
		}
	}
	return append(groups, s[start:])
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
