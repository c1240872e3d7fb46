package store

import (
	"context"
	"testing"

	cerrors "github.com/whytcard/cortex/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateChunk_LazilyCreatesDocument(t *testing.T) {
	s := newTestStore(t, 4)
	ctx := context.Background()

	chunk, err := s.CreateChunk(ctx, &Chunk{
		DocumentID: "unseen-doc",
		Content:    "some text",
		Embedding:  []float32{1, 0, 0, 0},
		ChunkIndex: 0,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, chunk.ID)

	doc, err := s.GetDocument(ctx, "unseen-doc")
	require.NoError(t, err)
	assert.Equal(t, "unseen-doc", doc.ID)
}

func TestCreateChunk_DimensionMismatchRejected(t *testing.T) {
	s := newTestStore(t, 4)
	ctx := context.Background()

	_, err := s.CreateChunk(ctx, &Chunk{
		DocumentID: "doc-1",
		Content:    "text",
		Embedding:  []float32{1, 0}, // wrong dimension
	})
	require.Error(t, err)
	assert.Equal(t, cerrors.CategoryDimensionMismatch, cerrors.GetCategory(err))

	// The rejected chunk must not have created the placeholder document.
	_, err = s.GetDocument(ctx, "doc-1")
	require.Error(t, err)
}

func TestGetChunksByDocument_OrderedByIndex(t *testing.T) {
	s := newTestStore(t, 4)
	ctx := context.Background()

	doc, err := s.CreateDocument(ctx, &Document{Content: "doc"})
	require.NoError(t, err)

	for i := 2; i >= 0; i-- {
		_, err := s.CreateChunk(ctx, &Chunk{
			DocumentID: doc.ID,
			Content:    "part",
			Embedding:  []float32{float32(i), 0, 0, 0},
			ChunkIndex: i,
		})
		require.NoError(t, err)
	}

	chunks, err := s.GetChunksByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, 0, chunks[0].ChunkIndex)
	assert.Equal(t, 1, chunks[1].ChunkIndex)
	assert.Equal(t, 2, chunks[2].ChunkIndex)
}

func TestDeleteChunksByDocument(t *testing.T) {
	s := newTestStore(t, 4)
	ctx := context.Background()

	doc, err := s.CreateDocument(ctx, &Document{Content: "doc"})
	require.NoError(t, err)

	c1, err := s.CreateChunk(ctx, &Chunk{DocumentID: doc.ID, Content: "a", Embedding: []float32{1, 0, 0, 0}})
	require.NoError(t, err)

	require.NoError(t, s.DeleteChunksByDocument(ctx, doc.ID))

	chunks, err := s.GetChunksByDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, chunks)
	assert.False(t, s.vector.contains(c1.ID))
}

func TestSearchVectors_ReturnsHitsWithMinScoreFilter(t *testing.T) {
	s := newTestStore(t, 4)
	ctx := context.Background()

	doc, err := s.CreateDocument(ctx, &Document{Content: "doc"})
	require.NoError(t, err)

	_, err = s.CreateChunk(ctx, &Chunk{DocumentID: doc.ID, Content: "near", Embedding: []float32{1, 0, 0, 0}, ChunkIndex: 0})
	require.NoError(t, err)
	_, err = s.CreateChunk(ctx, &Chunk{DocumentID: doc.ID, Content: "far", Embedding: []float32{0, 1, 0, 0}, ChunkIndex: 1})
	require.NoError(t, err)

	hits, err := s.SearchVectors(ctx, []float32{1, 0, 0, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "near", hits[0].Content)

	highMin := float32(0.99)
	filtered, err := s.SearchVectors(ctx, []float32{1, 0, 0, 0}, 2, &highMin)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "near", filtered[0].Content)
}

func TestSearchVectors_EmptyIndex(t *testing.T) {
	s := newTestStore(t, 4)
	hits, err := s.SearchVectors(context.Background(), []float32{1, 0, 0, 0}, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, hits)
}
