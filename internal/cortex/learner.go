package cortex

import (
	"context"
	"fmt"

	"github.com/whytcard/cortex/internal/memory"
)

// Insight is one observation the Learner drew from an execution.
type Insight struct {
	Description string
	Positive    bool
}

// LearningResult is the Reflection phase's output: insights drawn from an
// execution, an overall success rate, and recommended next actions.
type LearningResult struct {
	Insights        []Insight
	SuccessRate     float32
	Recommendations []string
	MemoryUpdates   int
}

// Learner implements Reflection: it inspects an ExecutionResult against
// the PerceptionResult that produced it, derives insights, and — when
// autoLearn is enabled — feeds routing outcomes back into procedural
// memory's confidence scores.
type Learner struct {
	autoLearn bool
	memory    *memory.TripleMemory
}

// NewLearner builds a Learner. memory may be nil; auto-learning is then
// skipped.
func NewLearner(autoLearn bool, tripleMemory *memory.TripleMemory) *Learner {
	return &Learner{autoLearn: autoLearn, memory: tripleMemory}
}

// Reflect derives a LearningResult from how execution went, and — when
// autoLearn is on and a routing recommendation was used — updates that
// rule's confidence in procedural memory.
func (l *Learner) Reflect(ctx context.Context, execution *ExecutionResult, perception *PerceptionResult) (*LearningResult, error) {
	result := &LearningResult{SuccessRate: execution.SuccessRate()}

	if execution.Success {
		result.Insights = append(result.Insights, Insight{
			Description: fmt.Sprintf("Completed %d steps successfully for a %s query", execution.SuccessfulSteps, perception.Intent),
			Positive:    true,
		})
	} else {
		result.Insights = append(result.Insights, Insight{
			Description: fmt.Sprintf("%d of %d steps failed for a %s query", execution.FailedSteps, execution.SuccessfulSteps+execution.FailedSteps, perception.Intent),
			Positive:    false,
		})
	}

	if len(execution.Adjustments) > 0 {
		result.Insights = append(result.Insights, Insight{
			Description: fmt.Sprintf("Plan required %d adjustment(s) during execution", len(execution.Adjustments)),
			Positive:    false,
		})
	}

	if perception.NeedsResearch {
		result.Recommendations = append(result.Recommendations, "Consider caching research results for similar future queries")
	}
	if !execution.Success {
		result.Recommendations = append(result.Recommendations, "Review the failed step's tool output before retrying")
	}

	if l.autoLearn && l.memory != nil {
		if routingID, ok := routingIDFromMetadata(execution.PlanMetadata); ok {
			if _, err := l.memory.Procedural.UpdateConfidence(routingID, execution.Success); err == nil {
				result.MemoryUpdates++
			}
		}
	}

	return result, nil
}

// ProvideFeedback lets a caller explicitly report whether a routed rule's
// recommendation worked out, independent of autoLearn.
func (l *Learner) ProvideFeedback(ruleID string, success bool) (float32, error) {
	if l.memory == nil {
		return 0, fmt.Errorf("learner has no memory attached")
	}
	return l.memory.Procedural.UpdateConfidence(ruleID, success)
}

// routingIDFromMetadata extracts the routing rule id cognition annotated
// the plan with (via ExecutionPlan.WithMetadata("routing_id", ...)), if any.
func routingIDFromMetadata(metadata map[string]any) (string, bool) {
	v, ok := metadata["routing_id"]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
