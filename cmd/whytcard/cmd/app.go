package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/whytcard/cortex/internal/chunk"
	"github.com/whytcard/cortex/internal/config"
	"github.com/whytcard/cortex/internal/cortex"
	"github.com/whytcard/cortex/internal/embed"
	"github.com/whytcard/cortex/internal/memory"
	"github.com/whytcard/cortex/internal/rag"
	"github.com/whytcard/cortex/internal/store"
	"github.com/whytcard/cortex/internal/toolserver"
)

// runtime bundles every layer NewRootCmd's subcommands need: the storage
// engine, the triple memory, the cognitive engine, and the tool facade
// wired over both. Building it is the one place construction order
// matters (engine before server, server wires its own invoker back in).
type runtime struct {
	cfg     *config.Config
	store   store.Store
	memory  *memory.TripleMemory
	engine  *cortex.Engine
	server  *toolserver.Server
}

// buildRuntime loads configuration for workspace and constructs every
// layer on top of it. Callers must call Close when done.
func buildRuntime(ctx context.Context, workspace string, log *slog.Logger) (*runtime, error) {
	cfg, err := config.Load(workspace)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	embedder, err := embed.NewEmbedder(ctx, embed.ProviderType(cfg.Embeddings.Provider))
	if err != nil {
		return nil, fmt.Errorf("construct embedder: %w", err)
	}

	dimension := cfg.Embeddings.Dimensions
	if dimension <= 0 {
		dimension = embedder.Dimensions()
	}

	st, err := store.Open(ctx, store.Config{
		Path:           filepath.Join(cfg.DataRoot, "cortex.db"),
		Dimension:      dimension,
		DistanceMetric: cfg.Storage.DistanceMetric,
		HNSWConfig: store.VectorStoreConfig{
			M:              cfg.Storage.HNSW.M,
			EfConstruction: cfg.Storage.HNSW.EfConstruction,
			EfSearch:       cfg.Storage.HNSW.EfSearch,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open storage engine: %w", err)
	}

	chunker := chunk.New(chunk.Strategy(cfg.Chunking.Strategy), chunk.Config{
		ChunkSize:    cfg.Chunking.ChunkSize,
		ChunkOverlap: cfg.Chunking.ChunkOverlap,
		MinChunkSize: cfg.Chunking.MinChunkSize,
	})
	ragEngine := rag.New(st, embedder, chunker, rag.DefaultConfig())

	procedural, err := memory.NewProceduralMemory(filepath.Join(cfg.DataRoot, "procedural"))
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("open procedural memory: %w", err)
	}

	tm := memory.New(memory.NewSemanticMemory(st, ragEngine), memory.NewEpisodicMemory(st), procedural)

	engineCfg := cortex.Config{
		MaxExecutionSteps:        10,
		MaxRetries:               cfg.Cortex.MaxRetries,
		NeedsResearchMinQueryLen: cfg.Cortex.NeedsResearchMinQueryLen,
		AutoLearn:                cfg.Cortex.AutoLearn,
	}
	engine := cortex.New(tm, nil, engineCfg, log)
	if n, err := engine.ReloadInstructions(workspace); err != nil {
		log.Warn("failed to load workspace instructions", slog.String("error", err.Error()))
	} else {
		log.Debug("loaded workspace instructions", slog.Int("count", n))
	}

	srv, err := toolserver.NewServer(tm, st, engine, log)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("construct tool server: %w", err)
	}

	return &runtime{cfg: cfg, store: st, memory: tm, engine: engine, server: srv}, nil
}

// Close releases the storage engine. The tool server and engine hold no
// separate resources of their own.
func (r *runtime) Close() error {
	return r.store.Close()
}
