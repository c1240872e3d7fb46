// Package cortex implements the cognitive engine: a perceive → cognize →
// act → reflect loop over the triple memory system, with an OODA-driven
// executor and a workspace instructions manager layered on top.
package cortex

import (
	"context"
	"log/slog"
	"time"

	"github.com/whytcard/cortex/internal/memory"
)

// Config tunes the cognitive loop.
type Config struct {
	MaxExecutionSteps        int
	MaxRetries               int
	NeedsResearchMinQueryLen int
	AutoLearn                bool
}

// DefaultConfig mirrors the defaults used elsewhere in the runtime.
func DefaultConfig() Config {
	return Config{
		MaxExecutionSteps:        10,
		MaxRetries:               2,
		NeedsResearchMinQueryLen: 20,
		AutoLearn:                true,
	}
}

// ExecutionMetrics summarizes one Process call's execution phase.
type ExecutionMetrics struct {
	DurationMs        int64
	StepsExecuted     int
	SuccessRate       float32
	ResearchPerformed bool
	Adjustments       int
}

// Result is the outcome of one full Process call through the cognitive
// loop.
type Result struct {
	Success     bool
	Output      any
	Perception  *PerceptionResult
	Execution   ExecutionMetrics
	Insights    []string
	Confidence  float32
	NextActions []string
}

// Engine orchestrates perception, cognition, action and reflection over
// a shared TripleMemory, with an optional StepInvoker to dispatch actual
// tool calls (the tool facade wires itself in here; with none provided,
// steps no-op).
type Engine struct {
	cfg    Config
	memory *memory.TripleMemory

	perceiver    *Perceiver
	executor     *Executor
	learner      *Learner
	context      *ContextManager
	instructions *InstructionsManager

	log *slog.Logger
}

// New builds an Engine over an already-constructed TripleMemory.
func New(tripleMemory *memory.TripleMemory, invoker StepInvoker, cfg Config, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		cfg:          cfg,
		memory:       tripleMemory,
		perceiver:    NewPerceiver(tripleMemory.Procedural, cfg.NeedsResearchMinQueryLen),
		executor:     NewExecutor(invoker, cfg.MaxExecutionSteps, cfg.MaxRetries),
		learner:      NewLearner(cfg.AutoLearn, tripleMemory),
		context:      NewContextManager(),
		instructions: NewInstructionsManager(),
		log:          log,
	}
}

// Process runs query through perceive → cognize → act → reflect and
// returns the combined Result.
func (e *Engine) Process(ctx context.Context, query string) (*Result, error) {
	start := time.Now()
	e.log.Debug("cortex processing", "query", query)

	perception := e.perceiver.Analyze(query)

	plan, err := e.cognize(ctx, perception)
	if err != nil {
		return nil, err
	}

	execution := e.executor.Execute(ctx, plan)

	learning, err := e.learner.Reflect(ctx, execution, perception)
	if err != nil {
		return nil, err
	}

	e.context.RecordQuery(query, string(perception.Intent), execution.Success)

	var insights []string
	for _, ins := range learning.Insights {
		insights = append(insights, ins.Description)
	}

	output := execution.Output
	if output == nil {
		message := "Task encountered issues"
		if execution.Success {
			message = "Task completed successfully"
		}
		output = map[string]any{"message": message, "steps_completed": execution.SuccessfulSteps}
	}

	return &Result{
		Success:    execution.Success,
		Output:     output,
		Perception: perception,
		Execution: ExecutionMetrics{
			DurationMs:        time.Since(start).Milliseconds(),
			StepsExecuted:     execution.SuccessfulSteps + execution.FailedSteps,
			SuccessRate:       execution.SuccessRate(),
			ResearchPerformed: perception.NeedsResearch,
			Adjustments:       len(execution.Adjustments),
		},
		Insights:    insights,
		Confidence:  learning.SuccessRate,
		NextActions: learning.Recommendations,
	}, nil
}

// cognize retrieves relevant memory and builds the ExecutionPlan for
// perception, annotating it with how much memory context informed it.
func (e *Engine) cognize(ctx context.Context, perception *PerceptionResult) (*ExecutionPlan, error) {
	relevant, err := e.memory.Semantic.Search(ctx, perception.Query, 5, 0.5)
	if err != nil {
		return nil, err
	}

	contextStr := perception.Query
	for _, label := range perception.Labels {
		contextStr += " " + label
	}
	rules := e.memory.Procedural.GetApplicableRules(contextStr)
	routing := e.memory.Procedural.GetRouting(perception.Query)

	plan := CreatePlanFromPerception(perception)
	plan.WithMetadata("relevant_facts", len(relevant))
	plan.WithMetadata("rules_applied", len(rules))
	if routing != nil {
		plan.WithMetadata("routing_id", routing.RoutingID)
		plan.WithMetadata("routing_target", routing.TargetAgent)
	}

	return plan, nil
}

// GetContext returns a snapshot of the engine's short-term context.
func (e *Engine) GetContext() ActiveContext {
	return e.context.GetContext()
}

// StartSession begins a new engine session and its paired episodic
// memory session, returning the shared session id.
func (e *Engine) StartSession(ctx context.Context, workspace string) (string, error) {
	sessionID, err := e.memory.Episodic.StartSession(ctx, workspace)
	if err != nil {
		return "", err
	}

	e.context.StartSessionWithID(sessionID)
	if workspace != "" {
		e.context.SetWorkspace(workspace)
	}
	return sessionID, nil
}

// EndSession ends the active engine session and its episodic counterpart.
func (e *Engine) EndSession(ctx context.Context, sessionID string) error {
	e.context.EndSession()
	return e.memory.Episodic.EndSession(ctx, sessionID)
}

// Stats reports combined statistics across triple memory.
func (e *Engine) Stats(ctx context.Context) (*memory.MemoryStats, error) {
	return e.memory.Stats(ctx)
}

// ProvideFeedback reports whether a routed rule's recommendation worked
// out, updating its confidence in procedural memory.
func (e *Engine) ProvideFeedback(ruleID string, success bool) (float32, error) {
	return e.learner.ProvideFeedback(ruleID, success)
}

// Instructions exposes the engine's InstructionsManager for callers that
// need direct access (loading a workspace, registering user preferences).
func (e *Engine) Instructions() *InstructionsManager {
	return e.instructions
}

// SearchEpisodic is a pass-through to episodic memory's substring search.
func (e *Engine) SearchEpisodic(ctx context.Context, query string, limit int) ([]*memory.Episode, error) {
	return e.memory.Episodic.Search(ctx, query, "", limit)
}

// SearchProcedural is a pass-through to procedural memory's pattern matcher,
// used to surface rules/patterns relevant to a free-text query.
func (e *Engine) SearchProcedural(query string, limit int) []memory.PatternMatch {
	matches := e.memory.Procedural.MatchPatterns(query, "")
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// Cleanup removes episodic memory older than retentionDays and returns how
// many episodes were deleted.
func (e *Engine) Cleanup(ctx context.Context, retentionDays int) (int, error) {
	return e.memory.Episodic.CleanupOld(ctx, retentionDays)
}

// GetInstructionsPrompt renders the combined instructions prompt, optionally
// scoped to filePath.
func (e *Engine) GetInstructionsPrompt(filePath string) string {
	return e.instructions.ToPromptContext(filePath)
}

// AddUserInstruction registers a user-sourced instruction and rebuilds the
// combined instructions list.
func (e *Engine) AddUserInstruction(instruction UserInstruction) {
	e.instructions.AddUserInstruction(instruction)
}

// ReloadInstructions reloads file-sourced instructions from workspace.
func (e *Engine) ReloadInstructions(workspace string) (int, error) {
	return e.instructions.LoadFromWorkspace(workspace)
}

// SetInvoker replaces the engine's step invoker. The tool facade calls
// this once after constructing itself over an already-built Engine, so
// cortex_execute and ActionTool plan steps dispatch to real tools instead
// of the no-op default.
func (e *Engine) SetInvoker(invoker StepInvoker) {
	e.executor.SetInvoker(invoker)
}

// Execute runs a single named tool step directly through the executor's
// invoker, bypassing perceive/cognize/reflect — used for one-shot tool
// calls that don't need the full cognitive loop.
func (e *Engine) Execute(ctx context.Context, tool string, params map[string]any) (any, error) {
	step := NewExecutionStep(tool, ActionTool)
	step.Tool = tool
	if params != nil {
		step.Params = params
	}
	return e.executor.InvokeStep(ctx, step)
}
