package store

import (
	"database/sql"
	"fmt"
	"strconv"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

const (
	metaDimension = "embedding_dimension"
	metaModel     = "embedding_model"
	metaGen       = "generation"
)

// Store is the durable local vector cache. It is the authoritative source of
// chunk content and the retrieval fallback when the remote index is absent.
type Store interface {
	// ReplaceAll swaps in a complete new generation of chunks in a single
	// transaction. Readers see either the previous generation or the new one,
	// never a mix.
	ReplaceAll(records []ChunkRecord, model string) error
	// Search returns up to k chunks ordered by descending cosine similarity,
	// ties broken by insertion order. An empty cache yields an empty slice.
	Search(queryEmbedding []float32, k int) ([]SearchResult, error)
	// FetchByIDs resolves chunk bodies for ids returned by the remote index,
	// preserving the input order and skipping unknown ids.
	FetchByIDs(ids []string) ([]ChunkRecord, error)
	// Checksums returns chunk_id -> checksum for the current generation.
	Checksums() (map[string]string, error)
	// Stats reports row counts, per-source tallies, and embedding metadata.
	Stats() (*Stats, error)
	// Samples returns up to n random rows for the inspect command.
	Samples(n int) ([]ChunkRecord, error)
	Close() error
}

// SQLiteStore implements Store backed by SQLite + sqlite-vec.
type SQLiteStore struct {
	db *sql.DB
}

// Open creates or opens the cache file and initializes the schema.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	if err := Init(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) ReplaceAll(records []ChunkRecord, model string) error {
	dimension := 0
	for _, r := range records {
		if dimension == 0 {
			dimension = len(r.Embedding)
		}
		if len(r.Embedding) != dimension {
			return fmt.Errorf("chunk %s: embedding dimension %d, want %d", r.ID, len(r.Embedding), dimension)
		}
	}
	if dimension == 0 {
		return fmt.Errorf("refusing to replace cache with zero chunks")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Recreate the vec table when the dimension changes (model swap).
	prev, err := getMetaTx(tx, metaDimension)
	if err != nil {
		return err
	}
	if prev != strconv.Itoa(dimension) {
		if _, err := tx.Exec("DROP TABLE IF EXISTS vec_chunks"); err != nil {
			return err
		}
		if _, err := tx.Exec(vecDDL(dimension)); err != nil {
			return fmt.Errorf("create vec table: %w", err)
		}
	} else {
		if _, err := tx.Exec("DELETE FROM vec_chunks"); err != nil {
			return err
		}
	}
	if _, err := tx.Exec("DELETE FROM chunks"); err != nil {
		return err
	}

	chunkStmt, err := tx.Prepare(
		"INSERT INTO chunks (chunk_id, source, topic, body, checksum, tokens) VALUES (?, ?, ?, ?, ?, ?)",
	)
	if err != nil {
		return err
	}
	defer chunkStmt.Close()

	vecStmt, err := tx.Prepare("INSERT INTO vec_chunks (chunk_id, embedding) VALUES (?, ?)")
	if err != nil {
		return err
	}
	defer vecStmt.Close()

	for _, r := range records {
		res, err := chunkStmt.Exec(r.ID, r.Source, r.Topic, r.Body, r.Checksum, r.Tokens)
		if err != nil {
			return fmt.Errorf("insert chunk %s: %w", r.ID, err)
		}
		rowID, err := res.LastInsertId()
		if err != nil {
			return err
		}
		blob, err := sqlite_vec.SerializeFloat32(r.Embedding)
		if err != nil {
			return fmt.Errorf("serialize embedding %s: %w", r.ID, err)
		}
		if _, err := vecStmt.Exec(rowID, blob); err != nil {
			return fmt.Errorf("insert embedding %s: %w", r.ID, err)
		}
	}

	if err := setMetaTx(tx, metaDimension, strconv.Itoa(dimension)); err != nil {
		return err
	}
	if err := setMetaTx(tx, metaModel, model); err != nil {
		return err
	}
	rawGen, err := getMetaTx(tx, metaGen)
	if err != nil {
		return err
	}
	gen, _ := strconv.ParseInt(rawGen, 10, 64)
	if err := setMetaTx(tx, metaGen, strconv.FormatInt(gen+1, 10)); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *SQLiteStore) Search(queryEmbedding []float32, k int) ([]SearchResult, error) {
	empty, err := s.isEmpty()
	if err != nil {
		return nil, err
	}
	if empty {
		return nil, nil
	}

	blob, err := sqlite_vec.SerializeFloat32(queryEmbedding)
	if err != nil {
		return nil, fmt.Errorf("serialize query embedding: %w", err)
	}
	rows, err := s.db.Query(`
		WITH v AS MATERIALIZED (
			SELECT chunk_id, distance
			FROM vec_chunks
			WHERE embedding MATCH ? AND k = ?
		)
		SELECT c.chunk_id, c.source, c.topic, c.body, c.checksum, c.tokens, v.distance
		FROM v
		JOIN chunks c ON c.id = v.chunk_id
		ORDER BY v.distance, v.chunk_id
		LIMIT ?
	`, blob, k, k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		var distance float64
		err := rows.Scan(
			&r.Chunk.ID, &r.Chunk.Source, &r.Chunk.Topic,
			&r.Chunk.Body, &r.Chunk.Checksum, &r.Chunk.Tokens,
			&distance,
		)
		if err != nil {
			return nil, err
		}
		// Cosine distance is 1 - similarity.
		r.Score = 1 - distance
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *SQLiteStore) FetchByIDs(ids []string) ([]ChunkRecord, error) {
	stmt, err := s.db.Prepare(
		"SELECT chunk_id, source, topic, body, checksum, tokens FROM chunks WHERE chunk_id = ? LIMIT 1",
	)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	records := make([]ChunkRecord, 0, len(ids))
	for _, id := range ids {
		var r ChunkRecord
		err := stmt.QueryRow(id).Scan(&r.ID, &r.Source, &r.Topic, &r.Body, &r.Checksum, &r.Tokens)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}

func (s *SQLiteStore) Checksums() (map[string]string, error) {
	rows, err := s.db.Query("SELECT chunk_id, checksum FROM chunks")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var id, sum string
		if err := rows.Scan(&id, &sum); err != nil {
			return nil, err
		}
		out[id] = sum
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Stats() (*Stats, error) {
	stats := &Stats{}
	if err := s.db.QueryRow("SELECT COUNT(*) FROM chunks").Scan(&stats.Rows); err != nil {
		return nil, err
	}

	rows, err := s.db.Query("SELECT source, COUNT(*) FROM chunks GROUP BY source ORDER BY source")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var sc SourceCount
		if err := rows.Scan(&sc.Source, &sc.Count); err != nil {
			return nil, err
		}
		stats.BySource = append(stats.BySource, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if dim, err := s.getMeta(metaDimension); err == nil && dim != "" {
		stats.Dimension, _ = strconv.Atoi(dim)
	}
	if model, err := s.getMeta(metaModel); err == nil {
		stats.Model = model
	}
	gen, err := s.generation()
	if err != nil {
		return nil, err
	}
	stats.Generation = gen
	return stats, nil
}

func (s *SQLiteStore) Samples(n int) ([]ChunkRecord, error) {
	rows, err := s.db.Query(
		"SELECT chunk_id, source, topic, body, checksum, tokens FROM chunks ORDER BY RANDOM() LIMIT ?", n,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ChunkRecord
	for rows.Next() {
		var r ChunkRecord
		if err := rows.Scan(&r.ID, &r.Source, &r.Topic, &r.Body, &r.Checksum, &r.Tokens); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// VerifyDimensions checks every stored embedding against the recorded
// dimension. Diagnostic only; the hot path never calls this.
func (s *SQLiteStore) VerifyDimensions() (mismatched int, err error) {
	dim, err := s.getMeta(metaDimension)
	if err != nil || dim == "" {
		return 0, err
	}
	want, err := strconv.Atoi(dim)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", metaDimension, err)
	}
	// Each float32 is 4 bytes in the serialized blob.
	err = s.db.QueryRow(
		"SELECT COUNT(*) FROM vec_chunks WHERE length(embedding) != ?", want*4,
	).Scan(&mismatched)
	return mismatched, err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) isEmpty() (bool, error) {
	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM chunks").Scan(&count); err != nil {
		return false, err
	}
	return count == 0, nil
}

func (s *SQLiteStore) generation() (int64, error) {
	raw, err := s.getMeta(metaGen)
	if err != nil {
		return 0, err
	}
	if raw == "" {
		return 0, nil
	}
	gen, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", metaGen, err)
	}
	return gen, nil
}

func (s *SQLiteStore) getMeta(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func getMetaTx(tx *sql.Tx, key string) (string, error) {
	var value string
	err := tx.QueryRow("SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func setMetaTx(tx *sql.Tx, key, value string) error {
	_, err := tx.Exec(
		"INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	return err
}
