package toolserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/whytcard/cortex/internal/cortex"
)

// Invoker is the real cortex.StepInvoker the tool facade wires into the
// engine: ActionTool steps dispatch by step.Tool name to the matching
// registered tool handler, ActionSearch steps run a semantic search, and
// every other action (analyze/generate/validate/transform/checkpoint) is
// acknowledged without a side effect — those are informational steps in
// the default plan, not tool calls.
type Invoker struct {
	srv *Server
}

// NewInvoker builds an Invoker bound to srv's tool handlers.
func NewInvoker(srv *Server) *Invoker {
	return &Invoker{srv: srv}
}

func decodeInto[T any](params map[string]any) (T, error) {
	var out T
	body, err := json.Marshal(params)
	if err != nil {
		return out, fmt.Errorf("encode step params: %w", err)
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, fmt.Errorf("decode step params: %w", err)
	}
	return out, nil
}

// InvokeStep dispatches step to the registered tool named by step.Tool
// (for ActionTool steps) or to a semantic search (for ActionSearch
// steps). Every other action is acknowledged without a side effect.
func (inv *Invoker) InvokeStep(ctx context.Context, step *cortex.ExecutionStep) (any, error) {
	switch step.Action {
	case cortex.ActionTool:
		return inv.invokeTool(ctx, step.Tool, step.Params)

	case cortex.ActionSearch:
		query, _ := step.Params["query"].(string)
		if query == "" {
			if labels, ok := step.Params["labels"].([]any); ok {
				for _, l := range labels {
					if str, ok := l.(string); ok {
						query += str + " "
					}
				}
			}
		}
		return inv.invokeTool(ctx, "memory_search", map[string]any{"query": query})

	default:
		return map[string]any{"step": step.Name, "action": string(step.Action), "status": "acknowledged"}, nil
	}
}

// invokeTool decodes params into the tool's typed input and calls its
// handler directly, bypassing the MCP transport (the handlers never
// touch *mcp.CallToolRequest, so nil is safe here).
func (inv *Invoker) invokeTool(ctx context.Context, tool string, params map[string]any) (any, error) {
	s := inv.srv

	switch tool {
	case "memory_store":
		in, err := decodeInto[MemoryStoreInput](params)
		if err != nil {
			return nil, err
		}
		_, out, err := s.handleMemoryStore(ctx, nil, in)
		return out, err
	case "memory_search":
		in, err := decodeInto[MemorySearchInput](params)
		if err != nil {
			return nil, err
		}
		_, out, err := s.handleMemorySearch(ctx, nil, in)
		return out, err
	case "memory_get":
		in, err := decodeInto[MemoryGetInput](params)
		if err != nil {
			return nil, err
		}
		_, out, err := s.handleMemoryGet(ctx, nil, in)
		return out, err
	case "memory_delete":
		in, err := decodeInto[MemoryDeleteInput](params)
		if err != nil {
			return nil, err
		}
		_, out, err := s.handleMemoryDelete(ctx, nil, in)
		return out, err
	case "memory_list":
		in, err := decodeInto[MemoryListInput](params)
		if err != nil {
			return nil, err
		}
		_, out, err := s.handleMemoryList(ctx, nil, in)
		return out, err
	case "batch_store":
		in, err := decodeInto[BatchStoreInput](params)
		if err != nil {
			return nil, err
		}
		_, out, err := s.handleBatchStore(ctx, nil, in)
		return out, err
	case "hybrid_search":
		in, err := decodeInto[HybridSearchInput](params)
		if err != nil {
			return nil, err
		}
		_, out, err := s.handleHybridSearch(ctx, nil, in)
		return out, err
	case "get_context":
		in, err := decodeInto[GetContextInput](params)
		if err != nil {
			return nil, err
		}
		_, out, err := s.handleGetContext(ctx, nil, in)
		return out, err
	case "manage_tags":
		in, err := decodeInto[ManageTagsInput](params)
		if err != nil {
			return nil, err
		}
		_, out, err := s.handleManageTags(ctx, nil, in)
		return out, err

	case "knowledge_add_entity":
		in, err := decodeInto[KnowledgeAddEntityInput](params)
		if err != nil {
			return nil, err
		}
		_, out, err := s.handleKnowledgeAddEntity(ctx, nil, in)
		return out, err
	case "knowledge_add_observation":
		in, err := decodeInto[KnowledgeAddObservationInput](params)
		if err != nil {
			return nil, err
		}
		_, out, err := s.handleKnowledgeAddObservation(ctx, nil, in)
		return out, err
	case "knowledge_delete_observation":
		in, err := decodeInto[KnowledgeDeleteObservationInput](params)
		if err != nil {
			return nil, err
		}
		_, out, err := s.handleKnowledgeDeleteObservation(ctx, nil, in)
		return out, err
	case "knowledge_add_relation":
		in, err := decodeInto[KnowledgeAddRelationInput](params)
		if err != nil {
			return nil, err
		}
		_, out, err := s.handleKnowledgeAddRelation(ctx, nil, in)
		return out, err
	case "knowledge_delete_relation":
		in, err := decodeInto[KnowledgeDeleteRelationInput](params)
		if err != nil {
			return nil, err
		}
		_, out, err := s.handleKnowledgeDeleteRelation(ctx, nil, in)
		return out, err
	case "knowledge_search":
		in, err := decodeInto[KnowledgeSearchInput](params)
		if err != nil {
			return nil, err
		}
		_, out, err := s.handleKnowledgeSearch(ctx, nil, in)
		return out, err
	case "knowledge_get_entity":
		in, err := decodeInto[KnowledgeGetEntityInput](params)
		if err != nil {
			return nil, err
		}
		_, out, err := s.handleKnowledgeGetEntity(ctx, nil, in)
		return out, err
	case "knowledge_delete_entity":
		in, err := decodeInto[KnowledgeDeleteEntityInput](params)
		if err != nil {
			return nil, err
		}
		_, out, err := s.handleKnowledgeDeleteEntity(ctx, nil, in)
		return out, err
	case "knowledge_read_graph":
		in, err := decodeInto[KnowledgeReadGraphInput](params)
		if err != nil {
			return nil, err
		}
		_, out, err := s.handleKnowledgeReadGraph(ctx, nil, in)
		return out, err
	case "knowledge_get_neighbors":
		in, err := decodeInto[KnowledgeGetNeighborsInput](params)
		if err != nil {
			return nil, err
		}
		_, out, err := s.handleKnowledgeGetNeighbors(ctx, nil, in)
		return out, err
	case "knowledge_find_path":
		in, err := decodeInto[KnowledgeFindPathInput](params)
		if err != nil {
			return nil, err
		}
		_, out, err := s.handleKnowledgeFindPath(ctx, nil, in)
		return out, err
	case "export_graph":
		in, err := decodeInto[ExportGraphInput](params)
		if err != nil {
			return nil, err
		}
		_, out, err := s.handleExportGraph(ctx, nil, in)
		return out, err

	case "cortex_feedback":
		in, err := decodeInto[CortexFeedbackInput](params)
		if err != nil {
			return nil, err
		}
		_, out, err := s.handleCortexFeedback(ctx, nil, in)
		return out, err
	case "cortex_cleanup":
		in, err := decodeInto[CortexCleanupInput](params)
		if err != nil {
			return nil, err
		}
		_, out, err := s.handleCortexCleanup(ctx, nil, in)
		return out, err
	case "cortex_instructions":
		in, err := decodeInto[CortexInstructionsInput](params)
		if err != nil {
			return nil, err
		}
		_, out, err := s.handleCortexInstructions(ctx, nil, in)
		return out, err

	default:
		return nil, fmt.Errorf("no tool registered for step tool %q", tool)
	}
}
