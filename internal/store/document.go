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

// CreateDocument inserts a new Document, generating an ID if absent.
func (s *SQLiteStore) CreateDocument(ctx context.Context, doc *Document) (*Document, error) {
	now := time.Now().UTC()
	d := *doc
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	d.CreatedAt = now
	d.UpdatedAt = now

	tags, err := json.Marshal(nonNilTags(d.Tags))
	if err != nil {
		return nil, cerrors.InternalError("marshal document tags", err)
	}
	meta, err := json.Marshal(nonNilMeta(d.Metadata))
	if err != nil {
		return nil, cerrors.InternalError("marshal document metadata", err)
	}

	var key any
	if d.Key != "" {
		key = d.Key
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO document (id, key, content, title, tags, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, key, d.Content, d.Title, string(tags), string(meta), d.CreatedAt.Format(time.RFC3339Nano), d.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return nil, cerrors.IOError("insert document", err)
	}

	return &d, nil
}

// GetDocument fetches a Document by ID.
func (s *SQLiteStore) GetDocument(ctx context.Context, id string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, key, content, title, tags, metadata, created_at, updated_at
		FROM document WHERE id = ?`, id)
	return scanDocument(row)
}

// GetDocumentByKey fetches a Document by its unique external key.
func (s *SQLiteStore) GetDocumentByKey(ctx context.Context, key string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, key, content, title, tags, metadata, created_at, updated_at
		FROM document WHERE key = ?`, key)
	return scanDocument(row)
}

// UpdateDocument merges non-zero fields of patch into the stored Document.
func (s *SQLiteStore) UpdateDocument(ctx context.Context, id string, patch *Document) (*Document, error) {
	existing, err := s.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Content != "" {
		existing.Content = patch.Content
	}
	if patch.Title != "" {
		existing.Title = patch.Title
	}
	if patch.Tags != nil {
		existing.Tags = patch.Tags
	}
	if patch.Metadata != nil {
		existing.Metadata = patch.Metadata
	}
	existing.UpdatedAt = time.Now().UTC()

	tags, err := json.Marshal(nonNilTags(existing.Tags))
	if err != nil {
		return nil, cerrors.InternalError("marshal document tags", err)
	}
	meta, err := json.Marshal(nonNilMeta(existing.Metadata))
	if err != nil {
		return nil, cerrors.InternalError("marshal document metadata", err)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE document SET content = ?, title = ?, tags = ?, metadata = ?, updated_at = ?
		WHERE id = ?`,
		existing.Content, existing.Title, string(tags), string(meta), existing.UpdatedAt.Format(time.RFC3339Nano), id)
	if err != nil {
		return nil, cerrors.IOError("update document", err)
	}

	return existing, nil
}

// DeleteDocument removes a Document. Chunks cascade via foreign key.
func (s *SQLiteStore) DeleteDocument(ctx context.Context, id string) error {
	chunkIDs, err := s.chunkIDsForDocument(ctx, id)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM document WHERE id = ?`, id)
	if err != nil {
		return cerrors.IOError("delete document", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return cerrors.NotFoundError(fmt.Sprintf("document %q not found", id), nil)
	}

	if len(chunkIDs) > 0 {
		if err := s.vector.delete(ctx, chunkIDs); err != nil {
			return cerrors.InternalError("remove document chunks from vector index", err)
		}
	}
	return nil
}

// ListDocuments returns Documents ordered newest-first, optionally filtered
// by any-of tag match and paginated.
func (s *SQLiteStore) ListDocuments(ctx context.Context, filter DocumentFilter) ([]*Document, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, key, content, title, tags, metadata, created_at, updated_at
		FROM document ORDER BY created_at DESC`
	var args []any
	if len(filter.Tags) == 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, filter.Offset)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, cerrors.IOError("list documents", err)
	}
	defer rows.Close()

	var docs []*Document
	skipped := 0
	for rows.Next() {
		doc, err := scanDocumentRow(rows)
		if err != nil {
			return nil, err
		}
		if len(filter.Tags) > 0 {
			if !anyTagMatches(doc.Tags, filter.Tags) {
				continue
			}
			if skipped < filter.Offset {
				skipped++
				continue
			}
			if len(docs) >= limit {
				break
			}
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// CountDocuments returns the total number of stored documents.
func (s *SQLiteStore) CountDocuments(ctx context.Context) (int, error) {
	var n int
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM document`)
	if err := row.Scan(&n); err != nil {
		return 0, cerrors.IOError("count documents", err)
	}
	return n, nil
}

func anyTagMatches(docTags, want []string) bool {
	set := make(map[string]struct{}, len(docTags))
	for _, t := range docTags {
		set[t] = struct{}{}
	}
	for _, w := range want {
		if _, ok := set[w]; ok {
			return true
		}
	}
	return false
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row *sql.Row) (*Document, error) {
	return scanDocumentRow(row)
}

func scanDocumentRow(row rowScanner) (*Document, error) {
	var (
		d                    Document
		key, title           sql.NullString
		tagsJSON, metaJSON   string
		createdAt, updatedAt string
	)

	err := row.Scan(&d.ID, &key, &d.Content, &title, &tagsJSON, &metaJSON, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cerrors.NotFoundError("document not found", err)
	}
	if err != nil {
		return nil, cerrors.IOError("scan document row", err)
	}

	d.Key = key.String
	d.Title = title.String
	d.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	d.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)

	if err := json.Unmarshal([]byte(tagsJSON), &d.Tags); err != nil {
		return nil, cerrors.ParseError("unmarshal document tags", err)
	}
	if err := json.Unmarshal([]byte(metaJSON), &d.Metadata); err != nil {
		return nil, cerrors.ParseError("unmarshal document metadata", err)
	}

	return &d, nil
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func nonNilMeta(meta map[string]string) map[string]string {
	if meta == nil {
		return map[string]string{}
	}
	return meta
}

// ensureDocument lazily creates a placeholder Document for documentID if one
// doesn't already exist — used by CreateChunk when indexing chunks whose
// parent document hasn't been persisted yet.
func (s *SQLiteStore) ensureDocument(ctx context.Context, documentID string) error {
	_, err := s.GetDocument(ctx, documentID)
	if err == nil {
		return nil
	}
	if !cerrors.IsNotFound(err) {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO document (id, content, tags, metadata, created_at, updated_at)
		VALUES (?, '', '[]', '{}', ?, ?)`,
		documentID, time.Now().UTC().Format(time.RFC3339Nano), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return cerrors.IOError("create placeholder document", err)
	}
	return nil
}
