package toolserver

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// CortexProcessInput runs a query through the full cognitive loop.
type CortexProcessInput struct {
	Query string `json:"query" jsonschema:"free-text task or question"`
}

// CortexProcessOutput is the cognitive loop's outcome.
type CortexProcessOutput struct {
	Success     bool     `json:"success"`
	Output      any      `json:"output,omitempty"`
	Intent      string   `json:"intent,omitempty"`
	Insights    []string `json:"insights,omitempty"`
	Confidence  float64  `json:"confidence"`
	NextActions []string `json:"next_actions,omitempty"`
	Error       *ToolError `json:"error,omitempty"`
}

// CortexFeedbackInput reports whether a routed rule's recommendation worked out.
type CortexFeedbackInput struct {
	RuleID  string `json:"rule_id"`
	Success bool   `json:"success"`
}

// CortexFeedbackOutput is the rule's confidence after the update.
type CortexFeedbackOutput struct {
	Confidence float64    `json:"confidence"`
	Error      *ToolError `json:"error,omitempty"`
}

// CortexStatsInput takes no parameters.
type CortexStatsInput struct{}

// CortexStatsOutput summarizes the triple memory.
type CortexStatsOutput struct {
	TotalFacts    int        `json:"total_facts"`
	TotalEpisodes int        `json:"total_episodes"`
	TotalRules    int        `json:"total_rules"`
	Error         *ToolError `json:"error,omitempty"`
}

// CortexInstructionsInput requests the combined instructions prompt,
// optionally scoped to one file.
type CortexInstructionsInput struct {
	FilePath string `json:"file_path,omitempty"`
}

// CortexInstructionsOutput is the rendered instructions prompt plus counts.
type CortexInstructionsOutput struct {
	Prompt    string `json:"prompt"`
	Total     int    `json:"total"`
	FromFiles int    `json:"from_files"`
	FromUser  int    `json:"from_user"`
}

// CortexCleanupInput prunes episodic memory older than RetentionDays.
type CortexCleanupInput struct {
	RetentionDays int `json:"retention_days" jsonschema:"episodes older than this are deleted"`
}

// CortexCleanupOutput reports how many episodes were removed.
type CortexCleanupOutput struct {
	Deleted int        `json:"deleted"`
	Error   *ToolError `json:"error,omitempty"`
}

// CortexExecuteInput runs one named tool step directly, bypassing the full
// perceive/cognize/reflect loop.
type CortexExecuteInput struct {
	Tool   string         `json:"tool" jsonschema:"name of the tool to invoke"`
	Params map[string]any `json:"params,omitempty"`
}

// CortexExecuteOutput is the raw step output.
type CortexExecuteOutput struct {
	Output any        `json:"output,omitempty"`
	Error  *ToolError `json:"error,omitempty"`
}

func (s *Server) registerCortexTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "cortex_process",
		Description: "Run a query through the full perceive-cognize-act-reflect cognitive loop.",
	}, s.handleCortexProcess)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "cortex_feedback",
		Description: "Report whether a rule's recommendation worked out, updating its confidence.",
	}, s.handleCortexFeedback)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "cortex_stats",
		Description: "Get combined statistics across semantic, episodic, and procedural memory.",
	}, s.handleCortexStats)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "cortex_instructions",
		Description: "Get the combined instructions prompt, optionally scoped to a file.",
	}, s.handleCortexInstructions)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "cortex_cleanup",
		Description: "Prune episodic memory older than a retention window.",
	}, s.handleCortexCleanup)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "cortex_execute",
		Description: "Invoke one named tool step directly, bypassing the full cognitive loop.",
	}, s.handleCortexExecute)
}

func (s *Server) handleCortexProcess(ctx context.Context, _ *mcp.CallToolRequest, input CortexProcessInput) (*mcp.CallToolResult, CortexProcessOutput, error) {
	result, err := s.engine.Process(ctx, input.Query)
	if err != nil {
		return nil, CortexProcessOutput{Error: toToolError(err)}, nil
	}
	return nil, CortexProcessOutput{
		Success:     result.Success,
		Output:      result.Output,
		Intent:      string(result.Perception.Intent),
		Insights:    result.Insights,
		Confidence:  float64(result.Confidence),
		NextActions: result.NextActions,
	}, nil
}

func (s *Server) handleCortexFeedback(_ context.Context, _ *mcp.CallToolRequest, input CortexFeedbackInput) (*mcp.CallToolResult, CortexFeedbackOutput, error) {
	conf, err := s.engine.ProvideFeedback(input.RuleID, input.Success)
	if err != nil {
		return nil, CortexFeedbackOutput{Error: toToolError(err)}, nil
	}
	return nil, CortexFeedbackOutput{Confidence: float64(conf)}, nil
}

func (s *Server) handleCortexStats(ctx context.Context, _ *mcp.CallToolRequest, _ CortexStatsInput) (*mcp.CallToolResult, CortexStatsOutput, error) {
	stats, err := s.engine.Stats(ctx)
	if err != nil {
		return nil, CortexStatsOutput{Error: toToolError(err)}, nil
	}
	return nil, CortexStatsOutput{
		TotalFacts:    stats.Semantic.TotalFacts,
		TotalEpisodes: stats.Episodic.TotalEpisodes,
		TotalRules:    stats.Procedural.TotalRules,
	}, nil
}

func (s *Server) handleCortexInstructions(_ context.Context, _ *mcp.CallToolRequest, input CortexInstructionsInput) (*mcp.CallToolResult, CortexInstructionsOutput, error) {
	prompt := s.engine.GetInstructionsPrompt(input.FilePath)
	stats := s.engine.Instructions().Stats()
	return nil, CortexInstructionsOutput{
		Prompt:    prompt,
		Total:     stats.Total,
		FromFiles: stats.FromFiles,
		FromUser:  stats.FromUser,
	}, nil
}

func (s *Server) handleCortexCleanup(ctx context.Context, _ *mcp.CallToolRequest, input CortexCleanupInput) (*mcp.CallToolResult, CortexCleanupOutput, error) {
	n, err := s.engine.Cleanup(ctx, input.RetentionDays)
	if err != nil {
		return nil, CortexCleanupOutput{Error: toToolError(err)}, nil
	}
	return nil, CortexCleanupOutput{Deleted: n}, nil
}

func (s *Server) handleCortexExecute(ctx context.Context, _ *mcp.CallToolRequest, input CortexExecuteInput) (*mcp.CallToolResult, CortexExecuteOutput, error) {
	output, err := s.engine.Execute(ctx, input.Tool, input.Params)
	if err != nil {
		return nil, CortexExecuteOutput{Error: toToolError(err)}, nil
	}
	return nil, CortexExecuteOutput{Output: output}, nil
}
