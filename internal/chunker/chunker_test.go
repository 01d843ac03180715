package chunker

import (
	"strings"
	"testing"

	"concierge/internal/corpus"
)

func TestSplitShortDocumentIsSingleChunk(t *testing.T) {
	s := New(900, 150)
	docs := []corpus.Document{{
		BaseID: "skills-go",
		Source: "skills.json",
		Topic:  "Go",
		Text:   "  Source: skills\nTopic: Go\n\nConcurrency, networking.  ",
	}}

	chunks := s.Split(docs)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	c := chunks[0]
	if c.ID != "skills-go:1" {
		t.Fatalf("unexpected id %q", c.ID)
	}
	if strings.HasPrefix(c.Body, " ") || strings.HasSuffix(c.Body, " ") {
		t.Fatalf("body not trimmed: %q", c.Body)
	}
	if c.Tokens != EstimateTokens(c.Body) {
		t.Fatalf("token estimate mismatch")
	}
}

func TestSplitWindowsOverlap(t *testing.T) {
	s := New(100, 20)
	text := strings.Repeat("abcdefghij", 25) // 250 runes
	docs := []corpus.Document{{BaseID: "d", Source: "d.json", Topic: "d", Text: text}}

	chunks := s.Split(docs)
	if len(chunks) < 3 {
		t.Fatalf("expected at least 3 windows, got %d", len(chunks))
	}
	// Consecutive windows share their boundary region.
	first := chunks[0].Body
	second := chunks[1].Body
	tail := first[len(first)-20:]
	if !strings.HasPrefix(second, tail) {
		t.Fatalf("second window does not start with the overlap of the first")
	}
	for i, c := range chunks {
		want := docs[0].BaseID + ":" + string(rune('1'+i))
		if c.ID != want {
			t.Fatalf("chunk %d id = %q, want %q", i, c.ID, want)
		}
	}
}

func TestSplitIsDeterministic(t *testing.T) {
	s := New(50, 10)
	docs := []corpus.Document{{
		BaseID: "projects-terminal",
		Source: "projects.json",
		Topic:  "terminal",
		Text:   strings.Repeat("résumé content with non-ascii runes ", 10),
	}}

	a := s.Split(docs)
	b := s.Split(docs)
	if len(a) != len(b) {
		t.Fatalf("chunk counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("chunk %d differs between identical runs", i)
		}
	}
}

func TestSplitSkipsWhitespaceOnlyDocuments(t *testing.T) {
	s := New(900, 150)
	docs := []corpus.Document{{BaseID: "empty", Source: "e.json", Topic: "e", Text: "   \n\t  "}}

	if chunks := s.Split(docs); len(chunks) != 0 {
		t.Fatalf("expected no chunks, got %d", len(chunks))
	}
}

func TestEstimateTokens(t *testing.T) {
	cases := []struct {
		text string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
		{strings.Repeat("x", 800), 200},
		{"héllo wörld!", 3}, // 12 runes
	}
	for _, tc := range cases {
		if got := EstimateTokens(tc.text); got != tc.want {
			t.Fatalf("EstimateTokens(%q) = %d, want %d", tc.text, got, tc.want)
		}
	}
}
