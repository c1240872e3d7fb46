// Package memory implements the triple memory architecture: semantic
// (vector-searchable facts), episodic (chronological events and sessions),
// and procedural (rules, patterns, and routing that improve with feedback).
package memory

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	cerrors "github.com/whytcard/cortex/internal/errors"
	"github.com/whytcard/cortex/internal/rag"
	"github.com/whytcard/cortex/internal/store"
)

// SemanticFact is a piece of knowledge to store for later vector retrieval.
type SemanticFact struct {
	ID             string // generated if empty
	Content        string
	Source         string
	Category       string
	Tags           []string
	RelevanceScore float32
}

// SemanticSearchResult is one fact matched by a semantic search.
type SemanticSearchResult struct {
	ID       string
	Content  string
	Score    float32
	Source   string
	Category string
}

// SemanticStats summarizes the semantic memory's contents.
type SemanticStats struct {
	TotalFacts int
}

const (
	metaSource         = "source"
	metaCategory       = "category"
	metaRelevanceScore = "relevance_score"
)

// SemanticMemory stores facts as Documents and indexes them through the RAG
// pipeline for embedding-based retrieval. Unlike a separate metadata store
// plus a separate vector store, one store.Store backs both: the fact's own
// ID becomes the Document ID so Get/Delete never need a secondary lookup.
type SemanticMemory struct {
	store store.Store
	rag   *rag.Engine
}

// NewSemanticMemory wires a SemanticMemory over an already-open store and
// RAG engine (both shared with the rest of the runtime).
func NewSemanticMemory(st store.Store, engine *rag.Engine) *SemanticMemory {
	return &SemanticMemory{store: st, rag: engine}
}

// Store indexes fact and returns its ID (generated if fact.ID was empty).
func (m *SemanticMemory) Store(ctx context.Context, fact SemanticFact) (string, error) {
	id := fact.ID
	if id == "" {
		id = uuid.NewString()
	}

	doc := &store.Document{
		ID:      id,
		Content: fact.Content,
		Tags:    fact.Tags,
		Metadata: map[string]string{
			metaSource:         fact.Source,
			metaCategory:       fact.Category,
			metaRelevanceScore: fmt.Sprintf("%g", nonZeroRelevance(fact.RelevanceScore)),
		},
	}

	if _, err := m.rag.IndexDocument(ctx, doc); err != nil {
		return "", fmt.Errorf("index semantic fact: %w", err)
	}
	return id, nil
}

func nonZeroRelevance(score float32) float32 {
	if score == 0 {
		return 1.0
	}
	return score
}

// Search embeds query and returns facts scoring at or above minScore,
// limited to topK results.
func (m *SemanticMemory) Search(ctx context.Context, query string, topK int, minScore float32) ([]*SemanticSearchResult, error) {
	hits, err := m.rag.Search(ctx, query, topK)
	if err != nil {
		return nil, err
	}

	results := make([]*SemanticSearchResult, 0, len(hits))
	for _, h := range hits {
		if h.Score < minScore {
			continue
		}
		doc, err := m.store.GetDocument(ctx, h.DocumentID)
		var source, category string
		if err == nil {
			source = doc.Metadata[metaSource]
			category = doc.Metadata[metaCategory]
		}
		results = append(results, &SemanticSearchResult{
			ID:       h.DocumentID,
			Content:  h.Content,
			Score:    h.Score,
			Source:   source,
			Category: category,
		})
	}
	return results, nil
}

// Get fetches a fact by ID.
func (m *SemanticMemory) Get(ctx context.Context, id string) (*SemanticFact, error) {
	doc, err := m.store.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	return factFromDocument(doc), nil
}

func factFromDocument(doc *store.Document) *SemanticFact {
	relevance := float32(1.0)
	if v, ok := doc.Metadata[metaRelevanceScore]; ok {
		fmt.Sscanf(v, "%g", &relevance)
	}
	return &SemanticFact{
		ID:             doc.ID,
		Content:        doc.Content,
		Source:         doc.Metadata[metaSource],
		Category:       doc.Metadata[metaCategory],
		Tags:           doc.Tags,
		RelevanceScore: relevance,
	}
}

// Delete removes a fact. Returns false (not an error) if it didn't exist.
func (m *SemanticMemory) Delete(ctx context.Context, id string) (bool, error) {
	if _, err := m.store.GetDocument(ctx, id); err != nil {
		if cerrors.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	if err := m.rag.DeleteDocument(ctx, id); err != nil {
		return false, err
	}
	return true, nil
}

// Stats reports the number of stored facts.
func (m *SemanticMemory) Stats(ctx context.Context) (*SemanticStats, error) {
	n, err := m.store.CountDocuments(ctx)
	if err != nil {
		return nil, err
	}
	return &SemanticStats{TotalFacts: n}, nil
}
