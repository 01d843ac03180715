package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"concierge/internal/corpus"
)

// Chunk is one retrievable unit of corpus text, before embedding.
type Chunk struct {
	// ID is stable across rebuilds of identical input: "<base>:<n>".
	ID       string
	Source   string
	Topic    string
	Body     string
	Checksum string
	// Tokens is the chars/4 estimate used by the cost model.
	Tokens int
}

// Splitter partitions documents into fixed-size character windows with a
// bounded overlap. The same input always yields byte-identical chunks, so
// rebuilding an unchanged corpus is idempotent.
type Splitter struct {
	size    int
	overlap int
}

// New returns a Splitter. Size must be positive and overlap must leave the
// window moving forward; callers validate via config.
func New(size, overlap int) *Splitter {
	return &Splitter{size: size, overlap: overlap}
}

// Split chunks a batch of documents, preserving document order. Chunk indexes
// are 1-based within each document.
func (s *Splitter) Split(docs []corpus.Document) []Chunk {
	var chunks []Chunk
	for _, doc := range docs {
		for i, body := range s.split(doc.Text) {
			sum := sha256.Sum256([]byte(body))
			chunks = append(chunks, Chunk{
				ID:       fmt.Sprintf("%s:%d", doc.BaseID, i+1),
				Source:   doc.Source,
				Topic:    doc.Topic,
				Body:     body,
				Checksum: hex.EncodeToString(sum[:]),
				Tokens:   EstimateTokens(body),
			})
		}
	}
	return chunks
}

func (s *Splitter) split(text string) []string {
	runes := []rune(text)
	if len(runes) <= s.size {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			return nil
		}
		return []string{trimmed}
	}

	var out []string
	start := 0
	end := s.size
	for start < len(runes) {
		piece := strings.TrimSpace(string(runes[start:end]))
		if piece != "" {
			out = append(out, piece)
		}
		if end >= len(runes) {
			break
		}
		start = end - s.overlap
		if start < 0 {
			start = 0
		}
		end = start + s.size
		if end > len(runes) {
			end = len(runes)
		}
	}
	return out
}

// EstimateTokens approximates the upstream tokenizer at roughly four
// characters per token, rounded up.
func EstimateTokens(text string) int {
	n := len([]rune(text))
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}
