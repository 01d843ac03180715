package relay

import (
	"strings"
	"testing"

	"concierge/internal/store"
)

func TestSystemPromptCarriesProfile(t *testing.T) {
	p := SystemPrompt(testProfile())

	for _, want := range []string{"Jordan Doe", "Backend engineer", "Lisbon", "Distributed systems."} {
		if !strings.Contains(p, want) {
			t.Fatalf("system prompt missing %q:\n%s", want, p)
		}
	}
	if !strings.Contains(p, "ONLY the context blocks") {
		t.Fatalf("system prompt missing grounding instruction:\n%s", p)
	}
}

func TestUserPromptTagsChunksInOrder(t *testing.T) {
	chunks := []store.SearchResult{
		chunkResult("a:1", "first body", 0.9),
		chunkResult("b:1", "second body", 0.8),
	}

	p := UserPrompt("What stack?", chunks)
	first := strings.Index(p, "[chunk-1")
	second := strings.Index(p, "[chunk-2")
	if first < 0 || second < 0 || second < first {
		t.Fatalf("chunk tags missing or out of order:\n%s", p)
	}
	if !strings.Contains(p, "first body") || !strings.Contains(p, "second body") {
		t.Fatalf("chunk bodies missing:\n%s", p)
	}
	if !strings.HasSuffix(p, "Question: What stack?") {
		t.Fatalf("question not last:\n%s", p)
	}
}

func TestUserPromptWithoutContext(t *testing.T) {
	p := UserPrompt("What stack?", nil)
	if !strings.Contains(p, "No résumé context") {
		t.Fatalf("missing empty-context notice:\n%s", p)
	}
	if !strings.HasSuffix(p, "Question: What stack?") {
		t.Fatalf("question not last:\n%s", p)
	}
}
