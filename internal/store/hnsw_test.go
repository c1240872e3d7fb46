package store

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	cerrors "github.com/whytcard/cortex/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHNSWIndex_AddAndSearch(t *testing.T) {
	cfg := DefaultVectorStoreConfig(4)
	idx, err := newHNSWIndex(cfg)
	require.NoError(t, err)
	defer func() { _ = idx.close() }()

	ids := []string{"a", "b", "c"}
	vectors := [][]float32{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0.9, 0.1, 0, 0},
	}
	require.NoError(t, idx.add(context.Background(), ids, vectors))

	results, err := idx.search(context.Background(), []float32{1, 0, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ChunkID)
	assert.Equal(t, "c", results[1].ChunkID)
	assert.Greater(t, results[0].Score, float32(0.99))
}

func TestHNSWIndex_Delete(t *testing.T) {
	cfg := DefaultVectorStoreConfig(4)
	idx, err := newHNSWIndex(cfg)
	require.NoError(t, err)
	defer func() { _ = idx.close() }()

	ids := []string{"a", "b"}
	vectors := [][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}}
	require.NoError(t, idx.add(context.Background(), ids, vectors))

	require.NoError(t, idx.delete(context.Background(), []string{"a"}))
	assert.False(t, idx.contains("a"))
	assert.Equal(t, 1, idx.count())
	assert.True(t, idx.contains("b"))
}

func TestHNSWIndex_UpdateReplacesPreviousVector(t *testing.T) {
	cfg := DefaultVectorStoreConfig(4)
	idx, err := newHNSWIndex(cfg)
	require.NoError(t, err)
	defer func() { _ = idx.close() }()

	require.NoError(t, idx.add(context.Background(), []string{"a"}, [][]float32{{1, 0, 0, 0}}))
	require.NoError(t, idx.add(context.Background(), []string{"a"}, [][]float32{{0, 1, 0, 0}}))

	assert.Equal(t, 1, idx.count())

	results, err := idx.search(context.Background(), []float32{0, 1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ChunkID)
}

func TestHNSWIndex_Persistence(t *testing.T) {
	tmpDir := t.TempDir()
	indexPath := filepath.Join(tmpDir, "vectors.hnsw")

	cfg := DefaultVectorStoreConfig(4)
	idx1, err := newHNSWIndex(cfg)
	require.NoError(t, err)

	ids := []string{"a", "b"}
	vectors := [][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}}
	require.NoError(t, idx1.add(context.Background(), ids, vectors))
	require.NoError(t, idx1.save(indexPath))
	require.NoError(t, idx1.close())

	idx2, err := newHNSWIndex(cfg)
	require.NoError(t, err)
	defer func() { _ = idx2.close() }()

	require.NoError(t, idx2.load(indexPath))
	assert.Equal(t, 2, idx2.count())
	assert.True(t, idx2.contains("a"))

	results, err := idx2.search(context.Background(), []float32{1, 0, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ChunkID)
}

func TestHNSWIndex_EmptySearch(t *testing.T) {
	cfg := DefaultVectorStoreConfig(4)
	idx, err := newHNSWIndex(cfg)
	require.NoError(t, err)
	defer func() { _ = idx.close() }()

	results, err := idx.search(context.Background(), []float32{1, 0, 0, 0}, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestHNSWIndex_DimensionMismatchOnAdd(t *testing.T) {
	cfg := DefaultVectorStoreConfig(768)
	idx, err := newHNSWIndex(cfg)
	require.NoError(t, err)
	defer func() { _ = idx.close() }()

	err = idx.add(context.Background(), []string{"test"}, [][]float32{make([]float32, 256)})
	require.Error(t, err)
	assert.Equal(t, cerrors.CategoryDimensionMismatch, cerrors.GetCategory(err))
}

func TestHNSWIndex_DimensionMismatchOnSearch(t *testing.T) {
	cfg := DefaultVectorStoreConfig(4)
	idx, err := newHNSWIndex(cfg)
	require.NoError(t, err)
	defer func() { _ = idx.close() }()

	require.NoError(t, idx.add(context.Background(), []string{"a"}, [][]float32{{1, 0, 0, 0}}))
	_, err = idx.search(context.Background(), []float32{1, 0}, 10)
	require.Error(t, err)
}

func TestHNSWIndex_MismatchedIDsAndVectors(t *testing.T) {
	cfg := DefaultVectorStoreConfig(4)
	idx, err := newHNSWIndex(cfg)
	require.NoError(t, err)
	defer func() { _ = idx.close() }()

	err = idx.add(context.Background(), []string{"a", "b"}, [][]float32{{1, 0, 0, 0}})
	require.Error(t, err)
}

func TestHNSWIndex_UnknownMetric(t *testing.T) {
	cfg := VectorStoreConfig{Dimensions: 4, Metric: "jaccard"}
	_, err := newHNSWIndex(cfg)
	require.Error(t, err)
}

func TestHNSWIndex_ManhattanMetric(t *testing.T) {
	cfg := VectorStoreConfig{Dimensions: 3, Metric: "manhattan", M: 16, EfSearch: 64}
	idx, err := newHNSWIndex(cfg)
	require.NoError(t, err)
	defer func() { _ = idx.close() }()

	require.NoError(t, idx.add(context.Background(), []string{"a", "b"}, [][]float32{{0, 0, 0}, {5, 5, 5}}))
	results, err := idx.search(context.Background(), []float32{0, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ChunkID)
}

func TestHNSWIndex_EuclideanMetric(t *testing.T) {
	cfg := VectorStoreConfig{Dimensions: 3, Metric: "euclidean", M: 16, EfSearch: 64}
	idx, err := newHNSWIndex(cfg)
	require.NoError(t, err)
	defer func() { _ = idx.close() }()

	require.NoError(t, idx.add(context.Background(), []string{"a", "b"}, [][]float32{{0, 0, 0}, {10, 10, 10}}))
	results, err := idx.search(context.Background(), []float32{1, 1, 1}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ChunkID)
}

func TestHNSWIndex_DeleteNonExistent(t *testing.T) {
	cfg := DefaultVectorStoreConfig(4)
	idx, err := newHNSWIndex(cfg)
	require.NoError(t, err)
	defer func() { _ = idx.close() }()

	require.NoError(t, idx.delete(context.Background(), []string{"nonexistent"}))
}

func TestHNSWIndex_CloseIdempotent(t *testing.T) {
	cfg := DefaultVectorStoreConfig(4)
	idx, err := newHNSWIndex(cfg)
	require.NoError(t, err)

	require.NoError(t, idx.close())
	require.NoError(t, idx.close())
}

func TestHNSWIndex_SearchAfterClose(t *testing.T) {
	cfg := DefaultVectorStoreConfig(4)
	idx, err := newHNSWIndex(cfg)
	require.NoError(t, err)
	require.NoError(t, idx.close())

	_, err = idx.search(context.Background(), []float32{1, 0, 0, 0}, 10)
	require.Error(t, err)
}

func TestDistanceToScore_Cosine(t *testing.T) {
	tests := []struct {
		distance float32
		expected float32
	}{
		{0.0, 1.0},
		{1.0, 0.5},
		{2.0, 0.0},
	}
	for _, tc := range tests {
		result := distanceToScore(tc.distance, "cosine")
		assert.InDelta(t, tc.expected, result, 0.001)
	}
}

func TestDistanceToScore_Euclidean(t *testing.T) {
	tests := []struct {
		distance float32
		expected float32
	}{
		{0.0, 1.0},
		{1.0, 0.5},
		{3.0, 0.25},
	}
	for _, tc := range tests {
		result := distanceToScore(tc.distance, "euclidean")
		assert.InDelta(t, tc.expected, result, 0.001)
	}
}

func TestManhattanDistance(t *testing.T) {
	a := []float32{0, 0, 0}
	b := []float32{1, 2, 3}
	assert.Equal(t, float32(6), manhattanDistance(a, b))
}

func TestNormalizeVectorInPlace_ZeroVector(t *testing.T) {
	v := []float32{0, 0, 0, 0}
	normalizeVectorInPlace(v)
	for _, val := range v {
		assert.False(t, math.IsNaN(float64(val)))
		assert.Equal(t, float32(0), val)
	}
}

func TestNormalizeVectorInPlace_NormalVector(t *testing.T) {
	v := []float32{3, 4, 0, 0}
	normalizeVectorInPlace(v)
	var length float64
	for _, val := range v {
		length += float64(val) * float64(val)
	}
	assert.InDelta(t, 1.0, math.Sqrt(length), 0.0001)
}
