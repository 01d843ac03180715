package relay

import (
	"fmt"
	"strings"

	"concierge/internal/corpus"
	"concierge/internal/store"
)

// SystemPrompt renders the concierge persona from the profile document. The
// model is told to answer only from supplied context so retrieval misses
// degrade to an honest "I don't know" instead of invention.
func SystemPrompt(p corpus.Profile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are the AI concierge for %s (%s, %s).\n", p.Name, p.Headline, p.Location)
	fmt.Fprintf(&b, "%s\n\n", p.Summary)
	b.WriteString("Answer visitor questions about the candidate using ONLY the context blocks provided in the user message. ")
	b.WriteString("If the context does not cover the question, say so plainly and suggest what to ask instead. ")
	b.WriteString("Keep answers short, factual and in the language of the question. ")
	b.WriteString("Never invent employers, dates or technologies.")
	return b.String()
}

// UserPrompt assembles the question with its retrieved context. Each chunk is
// wrapped in a numbered tag so answers can cite blocks; with no chunks the
// question is sent bare and the system prompt handles the miss.
func UserPrompt(question string, chunks []store.SearchResult) string {
	if len(chunks) == 0 {
		return fmt.Sprintf("No résumé context was retrieved for this question.\n\nQuestion: %s", question)
	}

	var b strings.Builder
	b.WriteString("Context:\n")
	for i, c := range chunks {
		fmt.Fprintf(&b, "[chunk-%d source=%s topic=%s]\n%s\n[/chunk-%d]\n", i+1, c.Chunk.Source, c.Chunk.Topic, c.Chunk.Body, i+1)
	}
	fmt.Fprintf(&b, "\nQuestion: %s", question)
	return b.String()
}
