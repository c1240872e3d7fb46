// Package chunk splits Document content into overlapping, retrievable
// Chunk pieces ahead of embedding.
package chunk

import "context"

// Strategy selects how a Document's content is split into chunks.
type Strategy string

const (
	// StrategySemantic splits on paragraph boundaries, falling back to
	// sentence boundaries when a paragraph exceeds ChunkSize. The default.
	StrategySemantic Strategy = "semantic"

	// StrategyFixedSize splits into fixed-width, overlapping windows with
	// no regard for content structure.
	StrategyFixedSize Strategy = "fixed"

	// StrategyCode splits on common function/class/struct boundaries
	// across several languages.
	StrategyCode Strategy = "code"
)

// Config controls chunk sizing. Sizes are measured in runes, not bytes, so
// multi-byte UTF-8 text is never split mid-character.
type Config struct {
	ChunkSize    int
	ChunkOverlap int
	MinChunkSize int
}

// DefaultConfig mirrors the RAG pipeline's configured defaults.
func DefaultConfig() Config {
	return Config{ChunkSize: 1500, ChunkOverlap: 200, MinChunkSize: 10}
}

// Chunk is one piece of a Document's content prior to embedding.
type Chunk struct {
	Content     string
	Index       int
	StartOffset int // rune offset into the source content, inclusive
	EndOffset   int // rune offset into the source content, exclusive
}

// Chunker splits content into Chunks under a Strategy.
type Chunker interface {
	Chunk(ctx context.Context, content string) ([]*Chunk, error)
}

// New constructs a Chunker for the given strategy and config. Unknown
// strategies fall back to StrategySemantic.
func New(strategy Strategy, cfg Config) Chunker {
	switch strategy {
	case StrategyFixedSize:
		return &fixedSizeChunker{cfg: cfg}
	case StrategyCode:
		return &codeChunker{cfg: cfg}
	default:
		return &semanticChunker{cfg: cfg}
	}
}
