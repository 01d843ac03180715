package index

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"go.uber.org/zap"

	"concierge/internal/chunker"
	"concierge/internal/pinecone"
	"concierge/internal/store"
)

type fakeEmbedder struct {
	err   error
	calls int
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i), 1, 0}
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedSingle(_ context.Context, _ string) ([]float32, error) {
	return []float32{0, 1, 0}, nil
}

func (f *fakeEmbedder) Model() string { return "fake-model" }

type fakeStore struct {
	checksums  map[string]string
	replaced   []store.ChunkRecord
	replaceErr error
}

func (f *fakeStore) ReplaceAll(records []store.ChunkRecord, model string) error {
	if f.replaceErr != nil {
		return f.replaceErr
	}
	f.replaced = records
	return nil
}

func (f *fakeStore) Search(_ []float32, _ int) ([]store.SearchResult, error) { return nil, nil }

func (f *fakeStore) FetchByIDs(_ []string) ([]store.ChunkRecord, error) { return nil, nil }

func (f *fakeStore) Checksums() (map[string]string, error) {
	if f.checksums == nil {
		return map[string]string{}, nil
	}
	return f.checksums, nil
}

func (f *fakeStore) Stats() (*store.Stats, error) { return &store.Stats{}, nil }

func (f *fakeStore) Samples(_ int) ([]store.ChunkRecord, error) { return nil, nil }

func (f *fakeStore) Close() error { return nil }

type fakeMirror struct {
	upserted  []pinecone.Vector
	deleted   []string
	upsertErr error
}

func (f *fakeMirror) Upsert(_ context.Context, vectors []pinecone.Vector) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserted = append(f.upserted, vectors...)
	return nil
}

func (f *fakeMirror) Delete(_ context.Context, ids []string) error {
	f.deleted = append(f.deleted, ids...)
	return nil
}

func corpusDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	err := os.WriteFile(filepath.Join(dir, "skills.json"), []byte(`{"go": "Concurrency, networking."}`), 0o644)
	if err != nil {
		t.Fatal(err)
	}
	return dir
}

func newTestBuilder(st store.Store, remote Mirror) *Builder {
	return NewBuilder(chunker.New(900, 150), &fakeEmbedder{}, st, remote, zap.NewNop())
}

func TestBuildReplacesCacheAndMirrors(t *testing.T) {
	st := &fakeStore{}
	remote := &fakeMirror{}
	b := newTestBuilder(st, remote)

	stats, err := b.Build(context.Background(), corpusDir(t), Options{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if stats.Documents != 1 || stats.Chunks != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if len(st.replaced) != 1 {
		t.Fatalf("cache not replaced, got %d records", len(st.replaced))
	}
	if st.replaced[0].ID != "skills-go:1" {
		t.Fatalf("unexpected chunk id %q", st.replaced[0].ID)
	}
	if !stats.Mirrored || stats.Upserted != 1 {
		t.Fatalf("expected remote mirror of 1 vector, got %+v", stats)
	}
}

func TestBuildSkipRemoteLeavesMirrorUntouched(t *testing.T) {
	remote := &fakeMirror{}
	b := newTestBuilder(&fakeStore{}, remote)

	stats, err := b.Build(context.Background(), corpusDir(t), Options{SkipRemote: true})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if stats.Mirrored || len(remote.upserted) != 0 {
		t.Fatal("remote touched although --skip-remote was set")
	}
}

func TestBuildMirrorsOnlyChangedAndDeletesStale(t *testing.T) {
	// Learn the chunk's checksum with a throwaway build, then present it as
	// the previous generation plus one chunk that no longer exists.
	prime := &fakeStore{}
	if _, err := newTestBuilder(prime, nil).Build(context.Background(), corpusDir(t), Options{}); err != nil {
		t.Fatalf("prime build: %v", err)
	}
	st := &fakeStore{checksums: map[string]string{
		prime.replaced[0].ID: prime.replaced[0].Checksum,
		"stale:1":            "gone",
	}}

	remote := &fakeMirror{}
	stats, err := newTestBuilder(st, remote).Build(context.Background(), corpusDir(t), Options{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if stats.Upserted != 0 {
		t.Fatalf("unchanged chunk re-upserted: %+v", stats)
	}
	if stats.Deleted != 1 {
		t.Fatalf("stale chunk not deleted: %+v", stats)
	}
	sort.Strings(remote.deleted)
	if len(remote.deleted) != 1 || remote.deleted[0] != "stale:1" {
		t.Fatalf("unexpected deletions %v", remote.deleted)
	}
}

func TestBuildAbortsOnEmbeddingFailure(t *testing.T) {
	st := &fakeStore{}
	b := NewBuilder(chunker.New(900, 150), &fakeEmbedder{err: errors.New("quota")}, st, nil, zap.NewNop())

	if _, err := b.Build(context.Background(), corpusDir(t), Options{}); err == nil {
		t.Fatal("expected build to abort")
	}
	if st.replaced != nil {
		t.Fatal("cache must stay untouched when embedding fails")
	}
}

func TestBuildAbortsOnMalformedCorpus(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{oops"), 0o644); err != nil {
		t.Fatal(err)
	}
	st := &fakeStore{}
	b := newTestBuilder(st, nil)

	if _, err := b.Build(context.Background(), dir, Options{}); err == nil {
		t.Fatal("expected build to abort on malformed corpus")
	}
	if st.replaced != nil {
		t.Fatal("cache must stay untouched on corpus failure")
	}
}

func TestBuildRemoteFailureIsNonFatal(t *testing.T) {
	st := &fakeStore{}
	remote := &fakeMirror{upsertErr: errors.New("pinecone down")}
	b := newTestBuilder(st, remote)

	stats, err := b.Build(context.Background(), corpusDir(t), Options{})
	if err != nil {
		t.Fatalf("build must succeed despite remote failure: %v", err)
	}
	if stats.Mirrored {
		t.Fatal("mirrored flag set despite remote failure")
	}
	if len(st.replaced) != 1 {
		t.Fatal("local cache must hold the new generation")
	}
}
