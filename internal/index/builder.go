package index

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"concierge/internal/chunker"
	"concierge/internal/corpus"
	"concierge/internal/embedder"
	"concierge/internal/pinecone"
	"concierge/internal/store"
)

// Mirror is the remote-index surface the builder uses to keep the hosted
// copy in sync. nil means no remote is configured.
type Mirror interface {
	Upsert(ctx context.Context, vectors []pinecone.Vector) error
	Delete(ctx context.Context, ids []string) error
}

// Options controls one build run.
type Options struct {
	// SkipRemote leaves the remote index untouched; the local cache remains
	// authoritative and complete.
	SkipRemote bool
}

// Stats reports what a build did.
type Stats struct {
	Documents int
	Chunks    int
	Upserted  int
	Deleted   int
	Mirrored  bool
}

// Builder turns the corpus into a fresh cache generation and mirrors the
// changed chunks to the remote index. Any corpus or embedding failure aborts
// before the cache is touched, so the last good generation keeps serving.
type Builder struct {
	splitter *chunker.Splitter
	embedder embedder.Embedder
	store    store.Store
	remote   Mirror
	logger   *zap.Logger
}

// NewBuilder wires a builder. remote may be nil.
func NewBuilder(splitter *chunker.Splitter, emb embedder.Embedder, st store.Store, remote Mirror, logger *zap.Logger) *Builder {
	return &Builder{
		splitter: splitter,
		embedder: emb,
		store:    st,
		remote:   remote,
		logger:   logger,
	}
}

// Build reads every corpus document, chunks and embeds them, and swaps the
// new generation into the cache in one step. The local write must succeed or
// the whole build fails; remote mirroring is best-effort.
func (b *Builder) Build(ctx context.Context, dataDir string, opts Options) (*Stats, error) {
	docs, err := corpus.Load(dataDir)
	if err != nil {
		return nil, fmt.Errorf("load corpus: %w", err)
	}

	chunks := b.splitter.Split(docs)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("corpus %s produced no chunks", dataDir)
	}
	b.logger.Info("corpus chunked",
		zap.Int("documents", len(docs)),
		zap.Int("chunks", len(chunks)),
	)

	// Snapshot the previous generation's checksums before the swap so the
	// remote delta can be computed afterwards.
	previous, err := b.store.Checksums()
	if err != nil {
		return nil, fmt.Errorf("read previous generation: %w", err)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Body
	}
	embeddings, err := b.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}

	records := make([]store.ChunkRecord, len(chunks))
	for i, c := range chunks {
		records[i] = store.ChunkRecord{
			ID:        c.ID,
			Source:    c.Source,
			Topic:     c.Topic,
			Body:      c.Body,
			Checksum:  c.Checksum,
			Tokens:    c.Tokens,
			Embedding: embeddings[i],
		}
	}

	if err := b.store.ReplaceAll(records, b.embedder.Model()); err != nil {
		return nil, fmt.Errorf("replace cache generation: %w", err)
	}

	stats := &Stats{Documents: len(docs), Chunks: len(chunks)}
	if b.remote == nil || opts.SkipRemote {
		return stats, nil
	}

	b.mirrorDelta(ctx, records, previous, stats)
	return stats, nil
}

// mirrorDelta upserts chunks whose checksum changed and deletes ids that are
// gone. Remote errors are logged, never fatal: the local cache already holds
// the complete new generation.
func (b *Builder) mirrorDelta(ctx context.Context, records []store.ChunkRecord, previous map[string]string, stats *Stats) {
	var changed []pinecone.Vector
	current := make(map[string]struct{}, len(records))
	for _, r := range records {
		current[r.ID] = struct{}{}
		if previous[r.ID] == r.Checksum {
			continue
		}
		changed = append(changed, pinecone.Vector{
			ID:     r.ID,
			Values: r.Embedding,
			Metadata: map[string]string{
				"source":   r.Source,
				"topic":    r.Topic,
				"checksum": r.Checksum,
			},
		})
	}

	var stale []string
	for id := range previous {
		if _, ok := current[id]; !ok {
			stale = append(stale, id)
		}
	}

	if len(changed) > 0 {
		if err := b.remote.Upsert(ctx, changed); err != nil {
			b.logger.Warn("remote upsert failed, local cache remains authoritative", zap.Error(err))
			return
		}
		stats.Upserted = len(changed)
	}
	if len(stale) > 0 {
		if err := b.remote.Delete(ctx, stale); err != nil {
			b.logger.Warn("remote delete failed, stale vectors remain", zap.Error(err))
			return
		}
		stats.Deleted = len(stale)
	}
	stats.Mirrored = true
}
