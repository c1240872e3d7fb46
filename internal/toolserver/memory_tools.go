package toolserver

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/whytcard/cortex/internal/memory"
	"github.com/whytcard/cortex/internal/store"
)

// MemoryStoreInput stores one fact in semantic memory.
type MemoryStoreInput struct {
	Content        string   `json:"content" jsonschema:"the text to remember"`
	Title          string   `json:"title,omitempty" jsonschema:"optional title or summary"`
	Tags           []string `json:"tags,omitempty" jsonschema:"tags for categorization and filtering"`
	Source         string   `json:"source,omitempty" jsonschema:"where this fact came from"`
	Category       string   `json:"category,omitempty" jsonschema:"e.g. decision, pattern, warning"`
	RelevanceScore float64  `json:"relevance_score,omitempty" jsonschema:"0-1, defaults to 1.0 when unset"`
}

// MemoryStoreOutput is the id of the newly stored fact.
type MemoryStoreOutput struct {
	ID    string     `json:"id"`
	Error *ToolError `json:"error,omitempty"`
}

// MemorySearchInput searches semantic memory by vector similarity.
type MemorySearchInput struct {
	Query    string  `json:"query" jsonschema:"the search query"`
	Limit    int     `json:"limit,omitempty" jsonschema:"max results, default 5"`
	MinScore float64 `json:"min_score,omitempty" jsonschema:"minimum similarity score, default 0.5"`
}

// MemoryResultItem is one semantic memory search hit.
type MemoryResultItem struct {
	ID       string  `json:"id"`
	Content  string  `json:"content"`
	Score    float64 `json:"score"`
	Source   string  `json:"source,omitempty"`
	Category string  `json:"category,omitempty"`
}

// MemorySearchOutput wraps a set of semantic search results.
type MemorySearchOutput struct {
	Results []MemoryResultItem `json:"results"`
	Error   *ToolError          `json:"error,omitempty"`
}

// MemoryGetInput fetches one fact by id.
type MemoryGetInput struct {
	ID string `json:"id" jsonschema:"fact id"`
}

// MemoryGetOutput is the fetched fact, or an error if not found.
type MemoryGetOutput struct {
	ID             string     `json:"id,omitempty"`
	Content        string     `json:"content,omitempty"`
	Source         string     `json:"source,omitempty"`
	Category       string     `json:"category,omitempty"`
	Tags           []string   `json:"tags,omitempty"`
	RelevanceScore float64    `json:"relevance_score,omitempty"`
	Error          *ToolError `json:"error,omitempty"`
}

// MemoryDeleteInput deletes one fact by id.
type MemoryDeleteInput struct {
	ID string `json:"id" jsonschema:"fact id"`
}

// MemoryDeleteOutput reports whether the fact existed.
type MemoryDeleteOutput struct {
	Deleted bool       `json:"deleted"`
	Error   *ToolError `json:"error,omitempty"`
}

// MemoryListInput lists documents, optionally filtered by tag.
type MemoryListInput struct {
	Tags   []string `json:"tags,omitempty" jsonschema:"any-of tag filter"`
	Limit  int      `json:"limit,omitempty" jsonschema:"default 50"`
	Offset int      `json:"offset,omitempty"`
}

// MemoryListItem summarizes one listed document.
type MemoryListItem struct {
	ID        string   `json:"id"`
	Key       string   `json:"key,omitempty"`
	Title     string   `json:"title,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	CreatedAt string   `json:"created_at"`
}

// MemoryListOutput is a page of listed documents.
type MemoryListOutput struct {
	Documents []MemoryListItem `json:"documents"`
	Error     *ToolError       `json:"error,omitempty"`
}

// BatchStoreInput stores several facts in one call.
type BatchStoreInput struct {
	Items []MemoryStoreInput `json:"items" jsonschema:"facts to store"`
}

// BatchStoreOutput reports per-item results; a failed item does not abort
// the rest of the batch.
type BatchStoreOutput struct {
	IDs    []string `json:"ids"`
	Errors []string `json:"errors,omitempty"`
}

// HybridSearchInput combines vector similarity with a tag/keyword filter.
type HybridSearchInput struct {
	Query    string   `json:"query" jsonschema:"the search query"`
	Tags     []string `json:"tags,omitempty" jsonschema:"any-of tag filter applied to the keyword pass"`
	Limit    int      `json:"limit,omitempty" jsonschema:"default 5"`
	MinScore float64  `json:"min_score,omitempty" jsonschema:"minimum similarity score for the vector pass, default 0.5"`
}

// HybridSearchOutput merges vector and keyword hits, deduplicated by id.
type HybridSearchOutput struct {
	Results []MemoryResultItem `json:"results"`
	Error   *ToolError         `json:"error,omitempty"`
}

// GetContextInput asks for the engine's active session context.
type GetContextInput struct {
	FilePath string `json:"file_path,omitempty" jsonschema:"scope instructions to this file's glob matches"`
	Limit    int    `json:"limit,omitempty" jsonschema:"max recent episodes to include, default 10"`
}

// GetContextOutput is a snapshot of session state, recent activity, and the
// instructions that currently apply.
type GetContextOutput struct {
	SessionID          string           `json:"session_id,omitempty"`
	Workspace          string           `json:"workspace,omitempty"`
	RecentQueries      []RecentQuery    `json:"recent_queries,omitempty"`
	RecentEpisodes     []RecentEpisode  `json:"recent_episodes,omitempty"`
	InstructionsPrompt string           `json:"instructions_prompt,omitempty"`
	Error              *ToolError       `json:"error,omitempty"`
}

// RecentQuery mirrors one cortex.QueryRecord.
type RecentQuery struct {
	Query   string `json:"query"`
	Intent  string `json:"intent"`
	Success bool   `json:"success"`
}

// RecentEpisode mirrors one memory.Episode, trimmed for tool output.
type RecentEpisode struct {
	Type      string `json:"type"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// ManageTagsInput adds and/or removes tags on a document.
type ManageTagsInput struct {
	ID     string   `json:"id" jsonschema:"document or fact id"`
	Add    []string `json:"add,omitempty"`
	Remove []string `json:"remove,omitempty"`
}

// ManageTagsOutput is the document's tag set after the change.
type ManageTagsOutput struct {
	Tags  []string   `json:"tags"`
	Error *ToolError `json:"error,omitempty"`
}

func (s *Server) registerMemoryTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "memory_store",
		Description: "Store a fact in semantic memory for later vector-similarity recall.",
	}, s.handleMemoryStore)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "memory_search",
		Description: "Search semantic memory by meaning, not just keywords.",
	}, s.handleMemorySearch)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "memory_get",
		Description: "Fetch one semantic memory fact by id.",
	}, s.handleMemoryGet)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "memory_delete",
		Description: "Delete one semantic memory fact by id.",
	}, s.handleMemoryDelete)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "memory_list",
		Description: "List stored documents, optionally filtered by tag.",
	}, s.handleMemoryList)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "batch_store",
		Description: "Store several facts in one call.",
	}, s.handleBatchStore)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "hybrid_search",
		Description: "Search combining vector similarity with a tag/keyword pass.",
	}, s.handleHybridSearch)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_context",
		Description: "Get the active session's context: recent queries, recent episodes, and applicable instructions.",
	}, s.handleGetContext)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "manage_tags",
		Description: "Add or remove tags on a stored document.",
	}, s.handleManageTags)
}

func (s *Server) handleMemoryStore(ctx context.Context, _ *mcp.CallToolRequest, input MemoryStoreInput) (*mcp.CallToolResult, MemoryStoreOutput, error) {
	id, err := s.memory.Semantic.Store(ctx, memory.SemanticFact{
		Content:        input.Content,
		Source:         input.Source,
		Category:       input.Category,
		Tags:           input.Tags,
		RelevanceScore: float32(input.RelevanceScore),
	})
	if err != nil {
		s.logger.Error("memory_store failed", slog.String("error", err.Error()))
		return nil, MemoryStoreOutput{Error: toToolError(err)}, nil
	}
	return nil, MemoryStoreOutput{ID: id}, nil
}

func (s *Server) handleMemorySearch(ctx context.Context, _ *mcp.CallToolRequest, input MemorySearchInput) (*mcp.CallToolResult, MemorySearchOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = 5
	}
	minScore := float32(input.MinScore)
	if input.MinScore == 0 {
		minScore = 0.5
	}

	results, err := s.memory.Semantic.Search(ctx, input.Query, limit, minScore)
	if err != nil {
		return nil, MemorySearchOutput{Error: toToolError(err)}, nil
	}
	return nil, MemorySearchOutput{Results: toMemoryResultItems(results)}, nil
}

func (s *Server) handleMemoryGet(ctx context.Context, _ *mcp.CallToolRequest, input MemoryGetInput) (*mcp.CallToolResult, MemoryGetOutput, error) {
	fact, err := s.memory.Semantic.Get(ctx, input.ID)
	if err != nil {
		return nil, MemoryGetOutput{Error: toToolError(err)}, nil
	}
	return nil, MemoryGetOutput{
		ID:             fact.ID,
		Content:        fact.Content,
		Source:         fact.Source,
		Category:       fact.Category,
		Tags:           fact.Tags,
		RelevanceScore: float64(fact.RelevanceScore),
	}, nil
}

func (s *Server) handleMemoryDelete(ctx context.Context, _ *mcp.CallToolRequest, input MemoryDeleteInput) (*mcp.CallToolResult, MemoryDeleteOutput, error) {
	deleted, err := s.memory.Semantic.Delete(ctx, input.ID)
	if err != nil {
		return nil, MemoryDeleteOutput{Error: toToolError(err)}, nil
	}
	return nil, MemoryDeleteOutput{Deleted: deleted}, nil
}

func (s *Server) handleMemoryList(ctx context.Context, _ *mcp.CallToolRequest, input MemoryListInput) (*mcp.CallToolResult, MemoryListOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = 50
	}
	docs, err := s.store.ListDocuments(ctx, store.DocumentFilter{
		Tags:   input.Tags,
		Limit:  limit,
		Offset: input.Offset,
	})
	if err != nil {
		return nil, MemoryListOutput{Error: toToolError(err)}, nil
	}

	out := make([]MemoryListItem, 0, len(docs))
	for _, d := range docs {
		out = append(out, MemoryListItem{
			ID:        d.ID,
			Key:       d.Key,
			Title:     d.Title,
			Tags:      d.Tags,
			CreatedAt: d.CreatedAt.Format(time.RFC3339),
		})
	}
	return nil, MemoryListOutput{Documents: out}, nil
}

func (s *Server) handleBatchStore(ctx context.Context, _ *mcp.CallToolRequest, input BatchStoreInput) (*mcp.CallToolResult, BatchStoreOutput, error) {
	out := BatchStoreOutput{}
	for _, item := range input.Items {
		id, err := s.memory.Semantic.Store(ctx, memory.SemanticFact{
			Content:        item.Content,
			Source:         item.Source,
			Category:       item.Category,
			Tags:           item.Tags,
			RelevanceScore: float32(item.RelevanceScore),
		})
		if err != nil {
			out.Errors = append(out.Errors, err.Error())
			continue
		}
		out.IDs = append(out.IDs, id)
	}
	return nil, out, nil
}

func (s *Server) handleHybridSearch(ctx context.Context, _ *mcp.CallToolRequest, input HybridSearchInput) (*mcp.CallToolResult, HybridSearchOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = 5
	}
	minScore := float32(input.MinScore)
	if input.MinScore == 0 {
		minScore = 0.5
	}

	vectorHits, err := s.memory.Semantic.Search(ctx, input.Query, limit, minScore)
	if err != nil {
		return nil, HybridSearchOutput{Error: toToolError(err)}, nil
	}

	seen := make(map[string]bool, len(vectorHits))
	merged := toMemoryResultItems(vectorHits)
	for _, r := range merged {
		seen[r.ID] = true
	}

	if len(merged) < limit {
		docs, err := s.store.ListDocuments(ctx, store.DocumentFilter{Tags: input.Tags, Limit: 200})
		if err == nil {
			needle := strings.ToLower(input.Query)
			for _, d := range docs {
				if seen[d.ID] || len(merged) >= limit {
					continue
				}
				if !strings.Contains(strings.ToLower(d.Content), needle) {
					continue
				}
				merged = append(merged, MemoryResultItem{
					ID:       d.ID,
					Content:  d.Content,
					Score:    float64(minScore),
					Source:   d.Metadata["source"],
					Category: d.Metadata["category"],
				})
				seen[d.ID] = true
			}
		}
	}

	return nil, HybridSearchOutput{Results: merged}, nil
}

func (s *Server) handleGetContext(ctx context.Context, _ *mcp.CallToolRequest, input GetContextInput) (*mcp.CallToolResult, GetContextOutput, error) {
	active := s.engine.GetContext()

	limit := input.Limit
	if limit <= 0 {
		limit = 10
	}

	out := GetContextOutput{
		SessionID:          active.SessionID,
		Workspace:          active.Workspace,
		InstructionsPrompt: s.engine.GetInstructionsPrompt(input.FilePath),
	}
	for _, q := range active.RecentQueries {
		out.RecentQueries = append(out.RecentQueries, RecentQuery{Query: q.Query, Intent: q.Intent, Success: q.Success})
	}

	if active.SessionID != "" {
		episodes, err := s.memory.Episodic.GetRecent(ctx, limit, "", active.SessionID)
		if err != nil {
			out.Error = toToolError(err)
		} else {
			for _, e := range episodes {
				out.RecentEpisodes = append(out.RecentEpisodes, RecentEpisode{
					Type:      e.Type,
					Content:   e.Content,
					Timestamp: e.Timestamp.Format(time.RFC3339),
				})
			}
		}
	}

	return nil, out, nil
}

func (s *Server) handleManageTags(ctx context.Context, _ *mcp.CallToolRequest, input ManageTagsInput) (*mcp.CallToolResult, ManageTagsOutput, error) {
	doc, err := s.store.GetDocument(ctx, input.ID)
	if err != nil {
		return nil, ManageTagsOutput{Error: toToolError(err)}, nil
	}

	tags := applyTagChanges(doc.Tags, input.Add, input.Remove)

	updated, err := s.store.UpdateDocument(ctx, input.ID, &store.Document{Tags: tags})
	if err != nil {
		return nil, ManageTagsOutput{Error: toToolError(err)}, nil
	}
	return nil, ManageTagsOutput{Tags: updated.Tags}, nil
}

func applyTagChanges(current, add, remove []string) []string {
	set := make(map[string]bool, len(current)+len(add))
	for _, t := range current {
		set[t] = true
	}
	for _, t := range add {
		set[t] = true
	}
	for _, t := range remove {
		delete(set, t)
	}

	out := make([]string, 0, len(set))
	seen := make(map[string]bool, len(set))
	for _, t := range current {
		if set[t] && !seen[t] {
			out = append(out, t)
			seen[t] = true
		}
	}
	for _, t := range add {
		if set[t] && !seen[t] {
			out = append(out, t)
			seen[t] = true
		}
	}
	return out
}

func toMemoryResultItems(results []*memory.SemanticSearchResult) []MemoryResultItem {
	out := make([]MemoryResultItem, 0, len(results))
	for _, r := range results {
		out = append(out, MemoryResultItem{
			ID:       r.ID,
			Content:  r.Content,
			Score:    float64(r.Score),
			Source:   r.Source,
			Category: r.Category,
		})
	}
	return out
}
