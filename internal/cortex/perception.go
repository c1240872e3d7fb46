package cortex

import "github.com/whytcard/cortex/internal/memory"

// Intent classifies what a query is asking for.
type Intent string

const (
	IntentCreate  Intent = "create"
	IntentSearch  Intent = "search"
	IntentDebug   Intent = "debug"
	IntentExplain Intent = "explain"
	IntentTest    Intent = "test"
	IntentOther   Intent = "other"
)

// patternIntents maps the name of a seeded query_type procedural pattern to
// the Intent it signals.
var patternIntents = map[string]Intent{
	"code_generation": IntentCreate,
	"file_search":     IntentSearch,
	"debugging":       IntentDebug,
	"explanation":     IntentExplain,
}

// PerceptionResult is the outcome of analyzing a query: its classified
// intent, labels pulled from the matched procedural patterns, and a
// confidence score.
type PerceptionResult struct {
	Query         string
	Intent        Intent
	Labels        []string
	Confidence    float32
	NeedsResearch bool
}

// Perceiver classifies incoming queries against the procedural memory's
// query_type patterns, the cognition-independent first stage of the
// perceive→cognize→act→reflect loop.
type Perceiver struct {
	procedural     *memory.ProceduralMemory
	minResearchLen int
}

// NewPerceiver builds a Perceiver over procedural, the store of seeded
// query_type patterns to classify against. minResearchLen is the query
// length above which a Create/Debug/Explain intent also flags
// needs_research.
func NewPerceiver(procedural *memory.ProceduralMemory, minResearchLen int) *Perceiver {
	return &Perceiver{procedural: procedural, minResearchLen: minResearchLen}
}

// Analyze classifies query into an Intent by matching it against the
// procedural memory's query_type patterns, with labels and confidence
// derived from the number and priority of patterns matched, and decides
// whether it needs research.
func (p *Perceiver) Analyze(query string) *PerceptionResult {
	matches := p.procedural.MatchPatterns(query, "query_type")

	intent := IntentOther
	var labels []string
	confidence := float32(0.3)

	if len(matches) > 0 {
		// MatchPatterns sorts ascending by priority, so matches[0] is the
		// highest-priority (most specific) pattern that fired.
		best := matches[0]
		if mapped, ok := patternIntents[best.PatternName]; ok {
			intent = mapped
		}
		for _, m := range matches {
			labels = append(labels, m.PatternName)
		}
		priorityFactor := 1.0 / float32(best.Priority)
		confidence = minFloat32(0.4+0.3*priorityFactor+0.05*float32(len(matches)-1), 1.0)
	}

	needsResearch := (intent == IntentCreate || intent == IntentDebug || intent == IntentExplain) &&
		len(query) > p.minResearchLen

	return &PerceptionResult{
		Query:         query,
		Intent:        intent,
		Labels:        labels,
		Confidence:    confidence,
		NeedsResearch: needsResearch,
	}
}

func minFloat32(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}
