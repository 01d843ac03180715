package retrieval

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"concierge/internal/pinecone"
	"concierge/internal/store"
)

// Searcher is the similarity-search capability. Two variants exist: the
// remote hosted index and the local cache scan. The engine picks between
// them by reachability, never by result content.
type Searcher interface {
	Search(ctx context.Context, embedding []float32, k int) ([]store.SearchResult, error)
}

// LocalSearcher scans the embedded cache.
type LocalSearcher struct {
	Store store.Store
}

func (s *LocalSearcher) Search(_ context.Context, embedding []float32, k int) ([]store.SearchResult, error) {
	return s.Store.Search(embedding, k)
}

// remoteQuerier is the slice of the Pinecone client the searcher needs.
type remoteQuerier interface {
	Query(ctx context.Context, vector []float32, topK int) ([]pinecone.Match, error)
}

// chunkFetcher resolves chunk bodies for remote hits. The remote index only
// stores ids and vectors; content stays local.
type chunkFetcher interface {
	FetchByIDs(ids []string) ([]store.ChunkRecord, error)
}

// RemoteSearcher queries the hosted index for ids, then hydrates the chunk
// bodies from the local cache.
type RemoteSearcher struct {
	Index remoteQuerier
	Store chunkFetcher
}

func (s *RemoteSearcher) Search(ctx context.Context, embedding []float32, k int) ([]store.SearchResult, error) {
	matches, err := s.Index.Query(ctx, embedding, k)
	if err != nil {
		return nil, fmt.Errorf("remote query: %w", err)
	}
	if len(matches) == 0 {
		return nil, nil
	}

	ids := make([]string, len(matches))
	scores := make(map[string]float64, len(matches))
	for i, m := range matches {
		ids[i] = m.ID
		scores[m.ID] = m.Score
	}

	records, err := s.Store.FetchByIDs(ids)
	if err != nil {
		return nil, fmt.Errorf("hydrate remote hits: %w", err)
	}

	results := make([]store.SearchResult, 0, len(records))
	for _, r := range records {
		results = append(results, store.SearchResult{Chunk: r, Score: scores[r.ID]})
	}
	return results, nil
}

// Engine answers top-k queries, preferring the remote index and falling back
// to the local cache on any remote error. Retrieval only comes back empty
// when the cache itself is empty (no build has ever run) or nothing clears
// the relevance floor.
type Engine struct {
	remote   Searcher
	local    Searcher
	minScore float64
	logger   *zap.Logger
}

// NewEngine builds the engine. remote may be nil when no hosted index is
// configured; the local cache then serves alone.
func NewEngine(remote, local Searcher, minScore float64, logger *zap.Logger) *Engine {
	return &Engine{
		remote:   remote,
		local:    local,
		minScore: minScore,
		logger:   logger,
	}
}

// Retrieve returns up to k chunks sorted by descending similarity, dropping
// anything under the relevance floor.
func (e *Engine) Retrieve(ctx context.Context, embedding []float32, k int) ([]store.SearchResult, error) {
	results, err := e.search(ctx, embedding, k)
	if err != nil {
		return nil, err
	}

	filtered := results[:0]
	for _, r := range results {
		if r.Score >= e.minScore {
			filtered = append(filtered, r)
		}
	}

	// Both searchers return ordered results; the stable sort is a guard for
	// remote backends that do not guarantee it.
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Score > filtered[j].Score
	})
	if len(filtered) > k {
		filtered = filtered[:k]
	}
	return filtered, nil
}

func (e *Engine) search(ctx context.Context, embedding []float32, k int) ([]store.SearchResult, error) {
	if e.remote != nil {
		results, err := e.remote.Search(ctx, embedding, k)
		if err == nil {
			return results, nil
		}
		e.logger.Warn("remote index unavailable, falling back to local cache", zap.Error(err))
	}
	return e.local.Search(ctx, embedding, k)
}
