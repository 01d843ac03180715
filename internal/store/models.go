package store

import "time"

// ChunkRecord is a chunk row together with its embedding, as persisted in the
// local cache. Records are immutable once written; a rebuild supersedes the
// whole generation.
type ChunkRecord struct {
	ID        string
	Source    string
	Topic     string
	Body      string
	Checksum  string
	Tokens    int
	Embedding []float32
	UpdatedAt time.Time
}

// SearchResult is a chunk with its cosine similarity to the query.
type SearchResult struct {
	Chunk ChunkRecord
	Score float64
}

// SourceCount is a per-source chunk tally for the inspect command.
type SourceCount struct {
	Source string
	Count  int
}

// Stats summarizes the cache for operational verification.
type Stats struct {
	Rows       int
	Dimension  int
	Generation int64
	Model      string
	BySource   []SourceCount
}
