// Package rag wires the chunker, embedder, and storage engine into a single
// index/search/reindex pipeline.
package rag

// Config controls search-result bounds and embedding concurrency. Chunking
// strategy/size belongs to chunk.Config; Config only holds what the engine
// itself enforces at index/search time.
type Config struct {
	DefaultLimit int
	MaxLimit     int
	MinScore     float32

	// MaxConcurrentEmbeds bounds how many EmbedBatch-sized batches of chunk
	// text are embedded concurrently during IndexDocument. 0 means
	// unbounded (single call to EmbedBatch).
	MaxConcurrentEmbeds int
}

// DefaultConfig mirrors the RAG pipeline's configured defaults.
func DefaultConfig() Config {
	return Config{
		DefaultLimit:        5,
		MaxLimit:            50,
		MinScore:            0,
		MaxConcurrentEmbeds: 4,
	}
}

// SearchResult is one retrieved chunk, joined with its similarity score.
type SearchResult struct {
	ChunkID    string
	DocumentID string
	Content    string
	ChunkIndex int
	Metadata   map[string]string
	Score      float32
	Distance   float32
}
