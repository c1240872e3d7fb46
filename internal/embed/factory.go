package embed

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// ProviderType selects which embedder backend to construct.
type ProviderType string

const (
	// ProviderStatic uses the compact 256-dim hash-based embedder.
	ProviderStatic ProviderType = "static"

	// ProviderStaticWide uses the 768-dim hash-based embedder, dimension
	// compatible with common sentence-encoder backends.
	ProviderStaticWide ProviderType = "static-wide"
)

// envEmbedderOverride is the environment variable used to override the
// configured provider.
const envEmbedderOverride = "WHYTCARD_EMBEDDER"

// envCacheDisabled disables the LRU query-embedding cache when set.
const envCacheDisabled = "WHYTCARD_EMBED_CACHE_DISABLED"

// NewEmbedder constructs an Embedder for the given provider, wrapping it
// with an LRU cache unless disabled via WHYTCARD_EMBED_CACHE_DISABLED.
//
// Only deterministic, in-process backends are offered: the core has no
// network or child-process collaborators to reach a live model-serving
// backend. The Factory keeps the backend switch so a future
// implementation can add one without touching callers.
func NewEmbedder(_ context.Context, provider ProviderType) (Embedder, error) {
	if override := os.Getenv(envEmbedderOverride); override != "" {
		provider = ProviderType(strings.ToLower(override))
	}

	var embedder Embedder
	switch provider {
	case ProviderStaticWide:
		embedder = NewStaticEmbedder768()
	case ProviderStatic, "":
		embedder = NewStaticEmbedder()
	default:
		return nil, fmt.Errorf("embed: unknown provider %q", provider)
	}

	if isCacheDisabled() {
		return embedder, nil
	}
	return NewCachedEmbedderWithDefaults(embedder), nil
}

func isCacheDisabled() bool {
	v := strings.ToLower(os.Getenv(envCacheDisabled))
	return v == "true" || v == "1" || v == "on"
}
