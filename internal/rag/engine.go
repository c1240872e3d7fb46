package rag

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/whytcard/cortex/internal/chunk"
	cerrors "github.com/whytcard/cortex/internal/errors"
	"github.com/whytcard/cortex/internal/store"

	embedpkg "github.com/whytcard/cortex/internal/embed"
)

// Engine combines a Chunker, an Embedder, and a Store into the complete
// index/search/reindex pipeline.
type Engine struct {
	chunker  chunk.Chunker
	embedder embedpkg.Embedder
	store    store.Store
	cfg      Config
}

// New builds an Engine from its three components.
func New(st store.Store, embedder embedpkg.Embedder, chunker chunk.Chunker, cfg Config) *Engine {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = DefaultConfig().DefaultLimit
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = DefaultConfig().MaxLimit
	}
	return &Engine{chunker: chunker, embedder: embedder, store: st, cfg: cfg}
}

// IndexDocument persists doc, chunks its content, embeds every chunk, and
// stores the embeddings in the vector index. Returns the number of chunks
// created. A document with no content yields zero chunks without error.
func (e *Engine) IndexDocument(ctx context.Context, doc *store.Document) (int, error) {
	persisted, err := e.store.CreateDocument(ctx, doc)
	if err != nil {
		return 0, err
	}
	return e.indexChunks(ctx, persisted)
}

func (e *Engine) indexChunks(ctx context.Context, doc *store.Document) (int, error) {
	pieces, err := e.chunker.Chunk(ctx, doc.Content)
	if err != nil {
		return 0, fmt.Errorf("chunk document %s: %w", doc.ID, err)
	}
	if len(pieces) == 0 {
		return 0, nil
	}

	embeddings, err := e.embedConcurrently(ctx, pieces)
	if err != nil {
		return 0, err
	}

	for i, p := range pieces {
		c := &store.Chunk{
			DocumentID: doc.ID,
			Content:    p.Content,
			Embedding:  embeddings[i],
			ChunkIndex: p.Index,
			Metadata: map[string]string{
				"start_offset": strconv.Itoa(p.StartOffset),
				"end_offset":   strconv.Itoa(p.EndOffset),
			},
		}
		if _, err := e.store.CreateChunk(ctx, c); err != nil {
			return 0, fmt.Errorf("store chunk %d of document %s: %w", p.Index, doc.ID, err)
		}
	}

	return len(pieces), nil
}

// embedConcurrently splits pieces across up to cfg.MaxConcurrentEmbeds
// goroutines, each calling EmbedBatch on its slice, to keep the embedder's
// CPU-bound work off a single goroutine without unbounded fan-out.
func (e *Engine) embedConcurrently(ctx context.Context, pieces []*chunk.Chunk) ([][]float32, error) {
	workers := e.cfg.MaxConcurrentEmbeds
	if workers <= 0 {
		workers = 1
	}
	if workers > len(pieces) {
		workers = len(pieces)
	}
	if workers <= 1 {
		texts := make([]string, len(pieces))
		for i, p := range pieces {
			texts[i] = p.Content
		}
		return e.embedder.EmbedBatch(ctx, texts)
	}

	batches := splitIntoBatches(len(pieces), workers)
	results := make([][]float32, len(pieces))

	g, gctx := errgroup.WithContext(ctx)
	for _, b := range batches {
		b := b
		g.Go(func() error {
			texts := make([]string, b.end-b.start)
			for i := b.start; i < b.end; i++ {
				texts[i-b.start] = pieces[i].Content
			}
			vecs, err := e.embedder.EmbedBatch(gctx, texts)
			if err != nil {
				return fmt.Errorf("embed batch [%d:%d): %w", b.start, b.end, err)
			}
			copy(results[b.start:b.end], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

type batchRange struct{ start, end int }

func splitIntoBatches(total, workers int) []batchRange {
	size := (total + workers - 1) / workers
	var batches []batchRange
	for start := 0; start < total; start += size {
		end := start + size
		if end > total {
			end = total
		}
		batches = append(batches, batchRange{start, end})
	}
	return batches
}

// Search embeds query and returns the top matching chunks, bounded by
// cfg.MaxLimit and filtered by cfg.MinScore. limit <= 0 uses DefaultLimit.
func (e *Engine) Search(ctx context.Context, query string, limit int) ([]*SearchResult, error) {
	if limit <= 0 {
		limit = e.cfg.DefaultLimit
	}
	if limit > e.cfg.MaxLimit {
		limit = e.cfg.MaxLimit
	}

	queryVec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	var minScore *float32
	if e.cfg.MinScore > 0 {
		ms := e.cfg.MinScore
		minScore = &ms
	}

	hits, err := e.store.SearchVectors(ctx, queryVec, limit, minScore)
	if err != nil {
		return nil, err
	}

	results := make([]*SearchResult, len(hits))
	for i, h := range hits {
		results[i] = &SearchResult{
			ChunkID:    h.ChunkID,
			DocumentID: h.DocumentID,
			Content:    h.Content,
			ChunkIndex: h.ChunkIndex,
			Metadata:   h.Metadata,
			Score:      h.Score,
			Distance:   h.Distance,
		}
	}
	return results, nil
}

// SearchText is Search, returning only the matched chunk text.
func (e *Engine) SearchText(ctx context.Context, query string, limit int) ([]string, error) {
	results, err := e.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.Content
	}
	return texts, nil
}

// SearchContext is Search, formatted as a single prompt-ready context block.
func (e *Engine) SearchContext(ctx context.Context, query string, limit int) (string, error) {
	results, err := e.Search(ctx, query, limit)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n---\n")
		}
		fmt.Fprintf(&b, "[%d] (score: %.3f)\n%s\n", i, r.Score, strings.TrimSpace(r.Content))
	}
	return b.String(), nil
}

// DeleteDocument removes a document and all of its chunks (the store
// cascades the chunk rows and cleans the vector index in one call).
func (e *Engine) DeleteDocument(ctx context.Context, documentID string) error {
	err := e.store.DeleteDocument(ctx, documentID)
	if cerrors.IsNotFound(err) {
		return nil
	}
	return err
}

// Count returns the number of indexed chunks.
func (e *Engine) Count(ctx context.Context) (int, error) {
	return e.store.CountChunks(ctx)
}

// Reindex deletes a document's existing chunks and re-chunks/re-embeds its
// current content, without changing the document's ID or metadata.
func (e *Engine) Reindex(ctx context.Context, documentID string) (int, error) {
	doc, err := e.store.GetDocument(ctx, documentID)
	if err != nil {
		return 0, err
	}
	if err := e.store.DeleteChunksByDocument(ctx, documentID); err != nil {
		return 0, err
	}
	return e.indexChunks(ctx, doc)
}
