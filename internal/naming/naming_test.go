package naming

import (
	"math/rand"
	"strings"
	"testing"
)

func TestAsVideoName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "Intro", want: "Intro"},
		{name: "secondary note", in: "Clip/extra notes", want: "Clip"},
		{name: "blank", in: "   ", want: "fragment"},
		{name: "empty", in: "", want: "fragment"},
		{name: "only note", in: "/note", want: "fragment"},
		{name: "trailing comma", in: "a.b,", want: "a.b"},
		{name: "trailing dot comma", in: "a.,", want: "a"},
		{name: "inner dot kept", in: "v1.2 final", want: "v1.2 final"},
		{name: "forbidden chars", in: `what? "now" <here>|*`, want: "what now here"},
		{name: "control chars", in: "A\tB\nC", want: "ABC"},
		{name: "surrounding space", in: "  Talk  ", want: "Talk"},
		{name: "reserved", in: "con", want: "con_"},
		{name: "reserved with comma", in: "CON,", want: "CON_"},
		{name: "cyrillic", in: "Вступление", want: "Вступление"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AsVideoName(tt.in); got != tt.want {
				t.Fatalf("AsVideoName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestAsVideoName_Idempotent(t *testing.T) {
	inputs := []string{
		"Clip/extra", "a.,", " x . , ", "CON,", "lpt1.mp4", "???", "name .",
		strings.Repeat("ж", 300), "éte", "a\x00b", "trailing, . ,",
		"N\\\u0301", "-a\t\t\u0301,", "e*\u0301t\u0301", "o\x00\u0308\u0301",
	}
	for _, in := range inputs {
		once := AsVideoName(in)
		if twice := AsVideoName(once); twice != once {
			t.Errorf("AsVideoName not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestAsVideoName_IdempotentRandom(t *testing.T) {
	alphabet := []rune{'a', 'N', 'e', ' ', '.', ',', '\\', '*', '/', '\x00', '\t', '\u0301', '\u0308', 'ж'}
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 20000; i++ {
		rs := make([]rune, 1+rng.Intn(8))
		for j := range rs {
			rs[j] = alphabet[rng.Intn(len(alphabet))]
		}
		in := string(rs)
		once := AsVideoName(in)
		if twice := AsVideoName(once); twice != once {
			t.Fatalf("AsVideoName not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestAsVideoName_ComposesAfterStripping(t *testing.T) {
	if got, want := AsVideoName("N\\\u0301"), "\u0143"; got != want {
		t.Fatalf("AsVideoName(N\\+U+0301) = %q, want %q", got, want)
	}
}

func TestAsVideoName_Length(t *testing.T) {
	got := AsVideoName(strings.Repeat("ж", 300))
	if len(got) > maxNameBytes {
		t.Fatalf("len(AsVideoName) = %d, want <= %d", len(got), maxNameBytes)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Lecture 1.mp4", "Lecture 1.mp4"},
		{"a/b:c.mov", "abc.mov"},
		{"trailing. ", "trailing"},
		{"nul.mkv", "nul_.mkv"},
		{"", "fragment"},
	}
	for _, tt := range tests {
		if got := SanitizeFilename(tt.in); got != tt.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCleanWhitespace(t *testing.T) {
	got := CleanWhitespace([]string{"  Start  time ", "End\t\ttime", "Name"})
	want := []string{"Start time", "End time", "Name"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("CleanWhitespace()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
