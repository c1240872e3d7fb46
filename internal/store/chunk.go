package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	cerrors "github.com/whytcard/cortex/internal/errors"
)

// CreateChunk inserts a Chunk and its embedding into the vector index.
// Rejects embeddings whose length doesn't match the store's fixed dimension.
func (s *SQLiteStore) CreateChunk(ctx context.Context, chunk *Chunk) (*Chunk, error) {
	if len(chunk.Embedding) != s.cfg.Dimension {
		return nil, cerrors.DimensionMismatchError(
			fmt.Sprintf("chunk embedding has dimension %d, store expects %d", len(chunk.Embedding), s.cfg.Dimension), nil)
	}

	c := *chunk
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = time.Now().UTC()

	meta, err := json.Marshal(nonNilMeta(c.Metadata))
	if err != nil {
		return nil, cerrors.InternalError("marshal chunk metadata", err)
	}

	if err := s.ensureDocument(ctx, c.DocumentID); err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO chunk (id, document_id, content, chunk_index, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.DocumentID, c.Content, c.ChunkIndex, string(meta), c.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return nil, cerrors.IOError("insert chunk", err)
	}

	if err := s.vector.add(ctx, []string{c.ID}, [][]float32{c.Embedding}); err != nil {
		// Undo the row insert so the relational and vector stores stay coherent.
		_, _ = s.db.ExecContext(ctx, `DELETE FROM chunk WHERE id = ?`, c.ID)
		return nil, err
	}

	return &c, nil
}

// GetChunk fetches a Chunk by ID. Its Embedding field is left empty — the
// vector index doesn't round-trip raw vectors back out of the graph.
func (s *SQLiteStore) GetChunk(ctx context.Context, id string) (*Chunk, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, document_id, content, chunk_index, metadata, created_at
		FROM chunk WHERE id = ?`, id)
	return scanChunk(row)
}

// GetChunksByDocument returns all Chunks belonging to a Document, ordered by
// ChunkIndex.
func (s *SQLiteStore) GetChunksByDocument(ctx context.Context, documentID string) ([]*Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, content, chunk_index, metadata, created_at
		FROM chunk WHERE document_id = ? ORDER BY chunk_index ASC`, documentID)
	if err != nil {
		return nil, cerrors.IOError("list chunks by document", err)
	}
	defer rows.Close()

	var chunks []*Chunk
	for rows.Next() {
		c, err := scanChunkRow(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// DeleteChunksByDocument removes all Chunks for a Document from both the
// relational table and the vector index.
func (s *SQLiteStore) DeleteChunksByDocument(ctx context.Context, documentID string) error {
	ids, err := s.chunkIDsForDocument(ctx, documentID)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunk WHERE document_id = ?`, documentID); err != nil {
		return cerrors.IOError("delete chunks by document", err)
	}
	if err := s.vector.delete(ctx, ids); err != nil {
		return cerrors.InternalError("remove chunks from vector index", err)
	}
	return nil
}

// SearchVectors runs a k-nearest-neighbor search and joins hits back to
// their Chunk/Document rows, optionally dropping results below minScore
// (similarity, not distance).
func (s *SQLiteStore) SearchVectors(ctx context.Context, queryVec []float32, k int, minScore *float32) ([]*SearchHit, error) {
	results, err := s.vector.search(ctx, queryVec, k)
	if err != nil {
		return nil, err
	}

	hits := make([]*SearchHit, 0, len(results))
	for _, r := range results {
		if minScore != nil && r.Score < *minScore {
			continue
		}
		c, err := s.GetChunk(ctx, r.ChunkID)
		if err != nil {
			if cerrors.IsNotFound(err) {
				continue // vector index and relational table briefly out of sync
			}
			return nil, err
		}
		hits = append(hits, &SearchHit{
			ChunkID:    c.ID,
			DocumentID: c.DocumentID,
			Content:    c.Content,
			ChunkIndex: c.ChunkIndex,
			Metadata:   c.Metadata,
			Distance:   r.Distance,
			Score:      r.Score,
		})
	}
	return hits, nil
}

// CountChunks returns the total number of indexed chunks.
func (s *SQLiteStore) CountChunks(ctx context.Context) (int, error) {
	var n int
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunk`)
	if err := row.Scan(&n); err != nil {
		return 0, cerrors.IOError("count chunks", err)
	}
	return n, nil
}

func (s *SQLiteStore) chunkIDsForDocument(ctx context.Context, documentID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM chunk WHERE document_id = ?`, documentID)
	if err != nil {
		return nil, cerrors.IOError("list chunk ids by document", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, cerrors.IOError("scan chunk id", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanChunk(row *sql.Row) (*Chunk, error) {
	return scanChunkRow(row)
}

func scanChunkRow(row rowScanner) (*Chunk, error) {
	var (
		c                  Chunk
		metaJSON, created  string
	)
	err := row.Scan(&c.ID, &c.DocumentID, &c.Content, &c.ChunkIndex, &metaJSON, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cerrors.NotFoundError("chunk not found", err)
	}
	if err != nil {
		return nil, cerrors.IOError("scan chunk row", err)
	}

	c.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	if err := json.Unmarshal([]byte(metaJSON), &c.Metadata); err != nil {
		return nil, cerrors.ParseError("unmarshal chunk metadata", err)
	}
	return &c, nil
}
