package export

import (
	"strings"
	"testing"

	"github.com/cutmassively/cutm/internal/timecode"
)

func sampleCodes() []timecode.TimeCode {
	return []timecode.TimeCode{
		{Row: 3, Start: "00:00:10", End: "00:00:20", Name: "Intro"},
		{Row: 5, Start: "01:00:00", End: "01:02:30", Name: "Main part"},
	}
}

func TestGenerateEDL(t *testing.T) {
	edl := GenerateEDL(sampleCodes(), "lecture.mp4", ".mp4")

	if !strings.Contains(edl, "TITLE: lecture.mp4") {
		t.Fatalf("missing title in EDL: %q", edl)
	}
	if !strings.Contains(edl, "FCM: NON-DROP FRAME") {
		t.Fatalf("missing FCM: %q", edl)
	}
	if !strings.Contains(edl, "001  AX       V     C        00:00:10:00 00:00:20:00 00:00:00:00 00:00:10:00") {
		t.Fatalf("first event line mismatch: %q", edl)
	}
	if !strings.Contains(edl, "002  AX       V     C        01:00:00:00 01:02:30:00 00:00:10:00 00:02:40:00") {
		t.Fatalf("second event line mismatch or bad record offset: %q", edl)
	}
	if !strings.Contains(edl, "* FROM CLIP NAME:  Main part") {
		t.Fatalf("missing clip name comment: %q", edl)
	}
	if !strings.Contains(edl, "* FRAGMENT:  003_00.00.10-00.00.20_Intro.mp4") {
		t.Fatalf("missing fragment comment: %q", edl)
	}
}

func TestGenerateEDL_Empty(t *testing.T) {
	edl := GenerateEDL(nil, "empty", ".mp4")
	if strings.Contains(edl, "001") {
		t.Fatalf("unexpected event in empty EDL: %q", edl)
	}
}

func TestSecondsToTimecode(t *testing.T) {
	tests := []struct {
		seconds int
		want    string
	}{
		{0, "00:00:00:00"},
		{59, "00:00:59:00"},
		{61, "00:01:01:00"},
		{3661, "01:01:01:00"},
		{360000, "100:00:00:00"},
	}
	for _, tt := range tests {
		if got := secondsToTimecode(tt.seconds); got != tt.want {
			t.Errorf("secondsToTimecode(%d) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}

func TestWriteText(t *testing.T) {
	var b strings.Builder
	if err := WriteText(&b, sampleCodes(), ".mkv"); err != nil {
		t.Fatalf("WriteText: %v", err)
	}
	out := b.String()
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want 3: %q", len(lines), out)
	}
	if !strings.HasPrefix(lines[0], "ROW") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.Contains(lines[2], "00:02:30") || !strings.Contains(lines[2], "005_01.00.00-01.02.30_Main part.mkv") {
		t.Errorf("line 2 = %q", lines[2])
	}
}
