package cortex

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// StepAction names the kind of work an ExecutionStep performs.
type StepAction string

const (
	ActionAnalyze    StepAction = "analyze"
	ActionGenerate   StepAction = "generate"
	ActionTool       StepAction = "tool"
	ActionSearch     StepAction = "search"
	ActionValidate   StepAction = "validate"
	ActionTransform  StepAction = "transform"
	ActionCheckpoint StepAction = "checkpoint"
)

// ExecutionStep is one unit of work in an ExecutionPlan.
type ExecutionStep struct {
	ID              string
	Name            string
	Action          StepAction
	Tool            string
	Params          map[string]any
	ExpectedOutcome string
	Critical        bool // stop the plan if this step fails
	RetryCount      int
}

// NewExecutionStep creates a step, critical by default.
func NewExecutionStep(name string, action StepAction) *ExecutionStep {
	return &ExecutionStep{ID: uuid.NewString(), Name: name, Action: action, Params: map[string]any{}, Critical: true}
}

func (s *ExecutionStep) WithParam(key string, value any) *ExecutionStep {
	s.Params[key] = value
	return s
}

func (s *ExecutionStep) NonCritical() *ExecutionStep {
	s.Critical = false
	return s
}

func (s *ExecutionStep) WithRetries(n int) *ExecutionStep {
	s.RetryCount = n
	return s
}

// ExecutionPlan is an ordered sequence of steps produced by cognition.
type ExecutionPlan struct {
	ID        string
	Name      string
	Steps     []*ExecutionStep
	Metadata  map[string]any
	CreatedAt time.Time
}

// NewExecutionPlan creates an empty plan.
func NewExecutionPlan(name string) *ExecutionPlan {
	return &ExecutionPlan{ID: uuid.NewString(), Name: name, Metadata: map[string]any{}, CreatedAt: time.Now().UTC()}
}

func (p *ExecutionPlan) AddStep(step *ExecutionStep) {
	p.Steps = append(p.Steps, step)
}

func (p *ExecutionPlan) WithMetadata(key string, value any) *ExecutionPlan {
	p.Metadata[key] = value
	return p
}

// StepResult is the outcome of running one ExecutionStep.
type StepResult struct {
	StepID      string
	Success     bool
	Output      any
	Err         string
	DurationMs  int64
	RetriesUsed int
}

// ExecutionResult is the outcome of running an entire ExecutionPlan.
type ExecutionResult struct {
	PlanID          string
	Success         bool
	StepResults     []*StepResult
	Output          any
	TotalDurationMs int64
	SuccessfulSteps int
	FailedSteps     int
	Adjustments     []string
	PlanMetadata    map[string]any // copied from the originating ExecutionPlan
}

func newExecutionResult(plan *ExecutionPlan) *ExecutionResult {
	return &ExecutionResult{PlanID: plan.ID, PlanMetadata: plan.Metadata}
}

func (r *ExecutionResult) addStepResult(sr *StepResult) {
	r.TotalDurationMs += sr.DurationMs
	if sr.Success {
		r.SuccessfulSteps++
	} else {
		r.FailedSteps++
	}
	r.StepResults = append(r.StepResults, sr)
}

func (r *ExecutionResult) addAdjustment(msg string) {
	r.Adjustments = append(r.Adjustments, msg)
}

func (r *ExecutionResult) finalize(output any) {
	r.Success = r.FailedSteps == 0
	r.Output = output
}

// SuccessRate returns the fraction of executed steps that succeeded.
func (r *ExecutionResult) SuccessRate() float32 {
	total := r.SuccessfulSteps + r.FailedSteps
	if total == 0 {
		return 0
	}
	return float32(r.SuccessfulSteps) / float32(total)
}

// oodaDecision is the Orient phase's verdict on what to do after a step.
type oodaDecision int

const (
	oodaContinue oodaDecision = iota
	oodaStop
)

// StepInvoker dispatches a single ExecutionStep to whatever backs tool
// calls, returning arbitrary JSON-able output. This is the seam between
// the OODA loop and the tool facade: the executor never depends on
// concrete tool implementations, only this interface.
type StepInvoker interface {
	InvokeStep(ctx context.Context, step *ExecutionStep) (any, error)
}

// NoopInvoker satisfies StepInvoker by reporting every step as completed
// without doing anything — the executor's behavior with no tool facade
// wired in yet, and useful for tests that only care about OODA control
// flow.
type NoopInvoker struct{}

func (NoopInvoker) InvokeStep(_ context.Context, step *ExecutionStep) (any, error) {
	return map[string]any{"step": step.Name, "action": string(step.Action), "status": "completed"}, nil
}

// Executor runs an ExecutionPlan step by step with an OODA loop per step:
// observe (invoke), orient (interpret the outcome), decide (continue or
// stop), act (record and proceed). Each step retries up to its own
// RetryCount, capped by maxRetries.
type Executor struct {
	invoker    StepInvoker
	maxSteps   int
	maxRetries int
}

// NewExecutor builds an Executor bounded to maxSteps per plan and
// maxRetries per step.
func NewExecutor(invoker StepInvoker, maxSteps, maxRetries int) *Executor {
	if invoker == nil {
		invoker = NoopInvoker{}
	}
	return &Executor{invoker: invoker, maxSteps: maxSteps, maxRetries: maxRetries}
}

// Execute runs every step of plan in order, stopping early if a critical
// step fails or maxSteps is reached.
func (e *Executor) Execute(ctx context.Context, plan *ExecutionPlan) *ExecutionResult {
	result := newExecutionResult(plan)
	start := time.Now()

	for idx, step := range plan.Steps {
		if idx >= e.maxSteps {
			result.addAdjustment("stopped: max steps reached")
			break
		}

		stepResult := e.executeStepWithOODA(ctx, step)
		result.addStepResult(stepResult)

		switch e.orient(stepResult, step) {
		case oodaStop:
			result.addAdjustment("stopped at step: " + step.Name)
			result.TotalDurationMs = time.Since(start).Milliseconds()
			result.finalize(nil)
			return result
		case oodaContinue:
		}
	}

	result.TotalDurationMs = time.Since(start).Milliseconds()
	result.finalize(nil)
	return result
}

func (e *Executor) executeStepWithOODA(ctx context.Context, step *ExecutionStep) *StepResult {
	retries := 0
	for {
		start := time.Now()
		output, err := e.invoker.InvokeStep(ctx, step)
		duration := time.Since(start).Milliseconds()

		if err == nil {
			return &StepResult{StepID: step.ID, Success: true, Output: output, DurationMs: duration, RetriesUsed: retries}
		}

		if retries < step.RetryCount && retries < e.maxRetries {
			retries++
			continue
		}
		return &StepResult{StepID: step.ID, Success: false, Err: err.Error(), DurationMs: duration, RetriesUsed: retries}
	}
}

// SetInvoker replaces the executor's step invoker. Used to wire in the
// real tool-dispatching invoker once both the engine and the tool facade
// backing it have been constructed, breaking what would otherwise be a
// construction-order cycle between the two.
func (e *Executor) SetInvoker(invoker StepInvoker) {
	if invoker == nil {
		invoker = NoopInvoker{}
	}
	e.invoker = invoker
}

// InvokeStep runs a single step directly through the configured invoker,
// without the surrounding OODA retry loop — the seam cortex_execute uses
// for a one-shot tool call outside the full Process pipeline.
func (e *Executor) InvokeStep(ctx context.Context, step *ExecutionStep) (any, error) {
	return e.invoker.InvokeStep(ctx, step)
}

func (e *Executor) orient(result *StepResult, step *ExecutionStep) oodaDecision {
	if result.Success || !step.Critical {
		return oodaContinue
	}
	return oodaStop
}

// CreatePlanFromPerception builds a default ExecutionPlan shaped by the
// given PerceptionResult: an analysis step, an optional research step,
// an intent-specific main step, and a trailing non-critical validation
// step.
func CreatePlanFromPerception(perception *PerceptionResult) *ExecutionPlan {
	plan := NewExecutionPlan(string(perception.Intent) + " task")

	plan.AddStep(NewExecutionStep("Analyze requirements", ActionAnalyze).WithParam("query", perception.Query))

	if perception.NeedsResearch {
		plan.AddStep(NewExecutionStep("Research documentation", ActionSearch).
			WithParam("labels", perception.Labels).NonCritical())
	}

	switch perception.Intent {
	case IntentCreate:
		plan.AddStep(NewExecutionStep("Generate content", ActionGenerate).WithParam("type", "create"))
	case IntentSearch:
		plan.AddStep(NewExecutionStep("Search knowledge", ActionSearch).WithParam("type", "search"))
	case IntentDebug:
		plan.AddStep(NewExecutionStep("Analyze issue", ActionAnalyze).WithParam("type", "debug"))
		plan.AddStep(NewExecutionStep("Apply fix", ActionGenerate).WithParam("type", "fix"))
	default:
		plan.AddStep(NewExecutionStep("Execute task", ActionTool).WithParam("intent", string(perception.Intent)))
	}

	plan.AddStep(NewExecutionStep("Validate result", ActionValidate).NonCritical())

	return plan
}
