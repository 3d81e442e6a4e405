package postgres

import (
	"strings"
	"testing"
)

func TestQuoteLiteral(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"דוד", "'דוד'"},
		{"o'brien", "'o''brien'"},
		{"it''s", "'it''''s'"},
		{"", "''"},
	}
	for _, tt := range tests {
		got, err := QuoteLiteral(tt.in)
		if err != nil {
			t.Errorf("QuoteLiteral(%q) error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("QuoteLiteral(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestQuoteLiteral_RejectsControlCharacters(t *testing.T) {
	for _, in := range []string{"a\nb", "a\x00b", "tab\there", "\x7f"} {
		if _, err := QuoteLiteral(in); err == nil {
			t.Errorf("QuoteLiteral(%q) accepted a control character", in)
		}
	}
}

func TestEscapeLike(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"50%", `50\%`},
		{"a_b", `a\_b`},
		{`back\slash`, `back\\slash`},
		{`%_\`, `\%\_\\`},
	}
	for _, tt := range tests {
		if got := EscapeLike(tt.in); got != tt.want {
			t.Errorf("EscapeLike(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLikePattern(t *testing.T) {
	got, err := likePattern("100% דוד")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `'%100\% דוד%'`
	if got != want {
		t.Fatalf("likePattern = %q, want %q", got, want)
	}
	if !strings.HasPrefix(got, "'%") || !strings.HasSuffix(got, "%'") {
		t.Fatalf("pattern %q is not a quoted contains pattern", got)
	}
}
