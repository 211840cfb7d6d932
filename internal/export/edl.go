// Package export renders an extracted time-code set for operator review:
// a plain listing or a CMX3600-style edit decision list.
package export

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/cutmassively/cutm/internal/fragment"
	"github.com/cutmassively/cutm/internal/timecode"
	"github.com/cutmassively/cutm/internal/timing"
)

const (
	FormatText = "text"
	FormatEDL  = "edl"
)

// GenerateEDL lays the clips end to end on the record side. Source
// timecodes are the clip's own start and end in the recording; cuts fall on
// whole seconds so the frame field is always 00.
func GenerateEDL(tcs []timecode.TimeCode, title, ext string) string {
	lines := []string{
		fmt.Sprintf("TITLE: %s", title),
		"FCM: NON-DROP FRAME",
		"",
	}

	recordOffset := 0
	for i, tc := range tcs {
		start, end := tc.Bounds()
		duration := end - start

		lines = append(lines,
			fmt.Sprintf("%03d  %-8s %-5s C        %s %s %s %s", i+1, "AX", "V",
				secondsToTimecode(start), secondsToTimecode(end),
				secondsToTimecode(recordOffset), secondsToTimecode(recordOffset+duration)),
			fmt.Sprintf("* FROM CLIP NAME:  %s", tc.Name),
			fmt.Sprintf("* FRAGMENT:  %s", fragment.Filename(tc, ext)),
		)

		recordOffset += duration
	}

	lines = append(lines, "")
	return strings.Join(lines, "\n")
}

// WriteText prints one aligned line per time code with its fragment name.
func WriteText(w io.Writer, tcs []timecode.TimeCode, ext string) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ROW\tSTART\tEND\tLENGTH\tFRAGMENT")
	for _, tc := range tcs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
			tc.Row, tc.Start, tc.End, timing.FormatTime(tc.Duration()), fragment.Filename(tc, ext))
	}
	return tw.Flush()
}

func secondsToTimecode(seconds int) string {
	return fmt.Sprintf("%02d:%02d:%02d:00", seconds/3600, seconds/60%60, seconds%60)
}
