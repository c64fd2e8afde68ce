package tts

import (
	"slices"
	"strings"
	"testing"
)

func TestSplitText(t *testing.T) {
	if got := SplitText("short", 10); len(got) != 1 || got[0] != "short" {
		t.Fatalf("unexpected %v", got)
	}
	if got, want := SplitText("aaaa. bbbb. cccc", 8), []string{"aaaa.", "bbbb.", "cccc"}; !slices.Equal(got, want) {
		t.Fatalf("got %q want %q", got, want)
	}
	for _, part := range SplitText(strings.Repeat("x", 25), 10) {
		if len(part) > 10 {
			t.Fatalf("part exceeds limit: %q", part)
		}
	}
	for _, part := range SplitText(strings.Repeat("é", 20), 9) {
		if !strings.HasPrefix(part, "é") || len(part)%2 != 0 {
			t.Fatalf("multi-byte rune split: %q", part)
		}
	}
}

func TestSplitTextDefaultLimit(t *testing.T) {
	long := strings.Repeat("Sentence number one is here. ", 150)
	parts := SplitText(long, MaxTextChars)
	if len(parts) < 2 {
		t.Fatalf("expected several parts, got %d", len(parts))
	}
	for _, p := range parts {
		if len(p) > MaxTextChars || !strings.HasSuffix(p, ".") {
			t.Fatalf("unexpected part of %d bytes", len(p))
		}
	}
}
