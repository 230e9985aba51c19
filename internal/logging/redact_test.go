package logging

import "testing"

func TestRedact(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain text", "waiting at gate 3", "waiting at gate 3"},
		{"phone number", "call me at 555-867-5309 ok", "call me at [REDACTED] ok"},
		{"international phone", "rider is +1 (415) 555-0199", "rider is [REDACTED]"},
		{"email", "receipt to ana.reyes@example.com please", "receipt to [REDACTED] please"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Redact(tt.input); got != tt.want {
				t.Fatalf("Redact(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSnippetBoundsLength(t *testing.T) {
	long := "rider says the dropoff moved to the far side of the terminal past the taxi rank"
	got := Snippet(long, 24)
	if len(got) != 24+len("...") {
		t.Fatalf("Snippet length = %d, want %d", len(got), 24+len("..."))
	}

	if got := Snippet("  short  ", 24); got != "short" {
		t.Fatalf("Snippet = %q, want %q", got, "short")
	}
}

func TestSnippetRedactsBeforeTruncating(t *testing.T) {
	got := Snippet("call 555-867-5309", 64)
	if got != "call [REDACTED]" {
		t.Fatalf("Snippet = %q", got)
	}
}
