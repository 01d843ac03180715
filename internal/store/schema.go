package store

import (
	"database/sql"
	"fmt"
)

const ddl = `
PRAGMA journal_mode=WAL;
PRAGMA foreign_keys=ON;

CREATE TABLE IF NOT EXISTS chunks (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    chunk_id   TEXT NOT NULL UNIQUE,
    source     TEXT NOT NULL,
    topic      TEXT NOT NULL DEFAULT '',
    body       TEXT NOT NULL,
    checksum   TEXT NOT NULL,
    tokens     INTEGER NOT NULL DEFAULT 0,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

// Init creates the fixed tables. The vec0 virtual table is created lazily by
// ReplaceAll once the embedding dimension is known.
func Init(db *sql.DB) error {
	_, err := db.Exec(ddl)
	return err
}

// vecDDL builds the similarity table for a given embedding dimension. Cosine
// distance keeps retrieval scores in [0, 2] with 0 meaning identical.
func vecDDL(dimension int) string {
	return fmt.Sprintf(
		"CREATE VIRTUAL TABLE vec_chunks USING vec0(chunk_id INTEGER PRIMARY KEY, embedding float[%d] distance_metric=cosine)",
		dimension,
	)
}
