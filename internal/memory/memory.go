package memory

import "context"

// MemoryStats combines stats from all three memory stores.
type MemoryStats struct {
	Semantic   SemanticStats
	Episodic   EpisodicStats
	Procedural ProceduralStats
}

// TripleMemory aggregates the semantic, episodic, and procedural stores
// behind a single handle, the unit the tool facade and cognitive engine
// depend on.
type TripleMemory struct {
	Semantic   *SemanticMemory
	Episodic   *EpisodicMemory
	Procedural *ProceduralMemory
}

// New wires a TripleMemory from its three already-constructed stores.
func New(semantic *SemanticMemory, episodic *EpisodicMemory, procedural *ProceduralMemory) *TripleMemory {
	return &TripleMemory{Semantic: semantic, Episodic: episodic, Procedural: procedural}
}

// Stats gathers statistics across all three stores.
func (t *TripleMemory) Stats(ctx context.Context) (*MemoryStats, error) {
	semantic, err := t.Semantic.Stats(ctx)
	if err != nil {
		return nil, err
	}
	episodic, err := t.Episodic.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return &MemoryStats{
		Semantic:   *semantic,
		Episodic:   *episodic,
		Procedural: *t.Procedural.Stats(),
	}, nil
}
