package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS document (
	id TEXT PRIMARY KEY,
	key TEXT UNIQUE,
	content TEXT NOT NULL,
	title TEXT,
	tags TEXT NOT NULL DEFAULT '[]',
	metadata TEXT NOT NULL DEFAULT '{}',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS chunk (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES document(id) ON DELETE CASCADE,
	content TEXT NOT NULL,
	chunk_index INTEGER NOT NULL,
	metadata TEXT NOT NULL DEFAULT '{}',
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunk_document_id ON chunk(document_id);

CREATE TABLE IF NOT EXISTS entity (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	entity_type TEXT NOT NULL,
	observations TEXT NOT NULL DEFAULT '[]',
	metadata TEXT NOT NULL DEFAULT '{}',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	UNIQUE(name, entity_type)
);

CREATE TABLE IF NOT EXISTS relation (
	id TEXT PRIMARY KEY,
	from_entity_id TEXT NOT NULL REFERENCES entity(id) ON DELETE CASCADE,
	to_entity_id TEXT NOT NULL REFERENCES entity(id) ON DELETE CASCADE,
	relation_type TEXT NOT NULL,
	weight REAL NOT NULL DEFAULT 1.0,
	metadata TEXT NOT NULL DEFAULT '{}',
	created_at TEXT NOT NULL,
	UNIQUE(from_entity_id, to_entity_id, relation_type)
);
CREATE INDEX IF NOT EXISTS idx_relation_from ON relation(from_entity_id);
CREATE INDEX IF NOT EXISTS idx_relation_to ON relation(to_entity_id);
`

// SQLiteStore is the SQLite-backed implementation of Store, pairing the
// four relational tables with an in-process HNSW vector index over
// Chunk.Embedding.
type SQLiteStore struct {
	db     *sql.DB
	vector *hnswIndex
	cfg    Config
}

// Open registers the schema (creating tables if absent) and returns a
// ready-to-use Store. cfg.Path == "" or ":memory:" opens an in-memory,
// non-persistent database — used for tests.
func Open(ctx context.Context, cfg Config) (*SQLiteStore, error) {
	dsn := cfg.Path
	if dsn == "" {
		dsn = ":memory:"
	}
	// SQLite enforces FK cascade only when explicitly enabled per connection.
	dsn += "?_pragma=foreign_keys(1)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// modernc.org/sqlite serializes writes; a single connection avoids
	// "database is locked" errors under concurrent writers.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("register schema: %w", err)
	}

	vecCfg := cfg.HNSWConfig
	vecCfg.Dimensions = cfg.Dimension
	if vecCfg.Metric == "" {
		vecCfg.Metric = cfg.DistanceMetric
	}
	vector, err := newHNSWIndex(vecCfg)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init vector index: %w", err)
	}

	return &SQLiteStore{db: db, vector: vector, cfg: cfg}, nil
}

// Close releases the database handle and vector index.
func (s *SQLiteStore) Close() error {
	verr := s.vector.close()
	derr := s.db.Close()
	if derr != nil {
		return derr
	}
	return verr
}

var _ Store = (*SQLiteStore)(nil)
