package store

import (
	"context"
	"testing"

	cerrors "github.com/whytcard/cortex/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, dimensions int) *SQLiteStore {
	t.Helper()
	s, err := Open(context.Background(), Config{
		Path:           "",
		Dimension:      dimensions,
		DistanceMetric: "cosine",
		HNSWConfig:     DefaultVectorStoreConfig(dimensions),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateAndGetDocument(t *testing.T) {
	s := newTestStore(t, 4)
	ctx := context.Background()

	doc, err := s.CreateDocument(ctx, &Document{
		Key:     "readme",
		Content: "hello world",
		Title:   "Readme",
		Tags:    []string{"docs", "intro"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, doc.ID)
	assert.False(t, doc.CreatedAt.IsZero())

	fetched, err := s.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello world", fetched.Content)
	assert.ElementsMatch(t, []string{"docs", "intro"}, fetched.Tags)

	byKey, err := s.GetDocumentByKey(ctx, "readme")
	require.NoError(t, err)
	assert.Equal(t, doc.ID, byKey.ID)
}

func TestGetDocument_NotFound(t *testing.T) {
	s := newTestStore(t, 4)
	_, err := s.GetDocument(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, cerrors.CategoryNotFound, cerrors.GetCategory(err))
}

func TestCreateDocument_DuplicateKeyRejected(t *testing.T) {
	s := newTestStore(t, 4)
	ctx := context.Background()

	_, err := s.CreateDocument(ctx, &Document{Key: "dup", Content: "a"})
	require.NoError(t, err)

	_, err = s.CreateDocument(ctx, &Document{Key: "dup", Content: "b"})
	require.Error(t, err)
}

func TestUpdateDocument_MergesNonZeroFields(t *testing.T) {
	s := newTestStore(t, 4)
	ctx := context.Background()

	doc, err := s.CreateDocument(ctx, &Document{Content: "original", Title: "T1", Tags: []string{"a"}})
	require.NoError(t, err)

	updated, err := s.UpdateDocument(ctx, doc.ID, &Document{Content: "updated"})
	require.NoError(t, err)
	assert.Equal(t, "updated", updated.Content)
	assert.Equal(t, "T1", updated.Title)
	assert.ElementsMatch(t, []string{"a"}, updated.Tags)
	assert.True(t, updated.UpdatedAt.After(doc.UpdatedAt) || updated.UpdatedAt.Equal(doc.UpdatedAt))
}

func TestDeleteDocument_CascadesChunksAndVectorIndex(t *testing.T) {
	s := newTestStore(t, 4)
	ctx := context.Background()

	doc, err := s.CreateDocument(ctx, &Document{Content: "doc"})
	require.NoError(t, err)

	chunk, err := s.CreateChunk(ctx, &Chunk{
		DocumentID: doc.ID,
		Content:    "chunk 1",
		Embedding:  []float32{1, 0, 0, 0},
		ChunkIndex: 0,
	})
	require.NoError(t, err)
	assert.True(t, s.vector.contains(chunk.ID))

	require.NoError(t, s.DeleteDocument(ctx, doc.ID))

	_, err = s.GetDocument(ctx, doc.ID)
	require.Error(t, err)

	chunks, err := s.GetChunksByDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, chunks)
	assert.False(t, s.vector.contains(chunk.ID))
}

func TestDeleteDocument_NotFound(t *testing.T) {
	s := newTestStore(t, 4)
	err := s.DeleteDocument(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, cerrors.CategoryNotFound, cerrors.GetCategory(err))
}

func TestListDocuments_TagFilterAndPagination(t *testing.T) {
	s := newTestStore(t, 4)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		tags := []string{"even"}
		if i%2 != 0 {
			tags = []string{"odd"}
		}
		_, err := s.CreateDocument(ctx, &Document{Content: "doc", Tags: tags})
		require.NoError(t, err)
	}

	evens, err := s.ListDocuments(ctx, DocumentFilter{Tags: []string{"even"}})
	require.NoError(t, err)
	assert.Len(t, evens, 2)

	paged, err := s.ListDocuments(ctx, DocumentFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Len(t, paged, 1)
}

func TestEnsureDocument_CreatesPlaceholderOnce(t *testing.T) {
	s := newTestStore(t, 4)
	ctx := context.Background()

	require.NoError(t, s.ensureDocument(ctx, "doc-1"))
	require.NoError(t, s.ensureDocument(ctx, "doc-1")) // idempotent

	doc, err := s.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "", doc.Content)
}
