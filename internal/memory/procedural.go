package memory

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	cerrors "github.com/whytcard/cortex/internal/errors"
)

const (
	rulesFile    = "rules.yaml"
	patternsFile = "patterns.yaml"
	routingFile  = "routing.yaml"

	minConfidence       = 0.5
	confidenceIncrement = 0.1
	confidenceDecrement = 0.15
)

// Rule is a learned condition-action pair whose confidence adjusts with
// feedback from UpdateConfidence.
type Rule struct {
	ID           string    `yaml:"id"`
	Name         string    `yaml:"name"`
	Condition    string    `yaml:"condition"` // regex tested against a lowercased context string
	Action       string    `yaml:"action"`
	Confidence   float32   `yaml:"confidence"`
	SuccessCount int       `yaml:"success_count"`
	FailureCount int       `yaml:"failure_count"`
	CreatedAt    time.Time `yaml:"created_at"`
	UpdatedAt    time.Time `yaml:"updated_at"`
}

// Pattern is a named regex used for query classification.
type Pattern struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Regex    string `yaml:"regex"`
	Category string `yaml:"category"`
	Priority int    `yaml:"priority"` // lower sorts first
}

// RoutingRule maps a Pattern to a target agent/handler with its own
// confidence and usage tracking.
type RoutingRule struct {
	ID          string  `yaml:"id"`
	PatternID   string  `yaml:"pattern_id"`
	TargetAgent string  `yaml:"target_agent"`
	Confidence  float32 `yaml:"confidence"`
	UsageCount  int     `yaml:"usage_count"`
}

// PatternMatch is one Pattern that matched a piece of text.
type PatternMatch struct {
	PatternID   string
	PatternName string
	Category    string
	Priority    int
}

// RoutingRecommendation is the best RoutingRule applicable to a query.
type RoutingRecommendation struct {
	TargetAgent string
	Confidence  float32
	PatternName string
	RoutingID   string
}

// ProceduralStats summarizes procedural memory contents.
type ProceduralStats struct {
	TotalRules        int
	TotalPatterns     int
	TotalRouting      int
	AverageConfidence float32
	Categories        []string
}

type rulesFileBody struct {
	Rules []Rule `yaml:"rules"`
}

type patternsFileBody struct {
	Patterns []Pattern `yaml:"patterns"`
}

type routingFileBody struct {
	Routing []RoutingRule `yaml:"routing"`
}

// ProceduralMemory holds rules, patterns, and routing as YAML files under a
// base directory, cached in memory and protected against concurrent writers
// from other processes by a gofrs/flock file lock (the same mechanism the
// embedding downloader uses to guard its cache directory).
type ProceduralMemory struct {
	basePath string
	inMemory bool

	rules    map[string]Rule
	patterns map[string]Pattern
	routing  map[string]RoutingRule
}

// NewProceduralMemory loads (or seeds, on first run) rules/patterns/routing
// from YAML files under basePath.
func NewProceduralMemory(basePath string) (*ProceduralMemory, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, cerrors.IOError("create procedural memory directory", err)
	}

	m := &ProceduralMemory{
		basePath: basePath,
		rules:    make(map[string]Rule),
		patterns: make(map[string]Pattern),
		routing:  make(map[string]RoutingRule),
	}
	if err := m.loadAll(); err != nil {
		return nil, err
	}
	return m, nil
}

// NewInMemoryProceduralMemory seeds default rules/patterns/routing without
// touching disk, for tests and ephemeral sessions.
func NewInMemoryProceduralMemory() *ProceduralMemory {
	m := &ProceduralMemory{
		inMemory: true,
		rules:    make(map[string]Rule),
		patterns: make(map[string]Pattern),
		routing:  make(map[string]RoutingRule),
	}
	m.seedDefaults()
	return m
}

func (m *ProceduralMemory) loadAll() error {
	if err := m.loadOrSeed(rulesFile, m.seedDefaultRules, m.saveRules); err != nil {
		return err
	}
	if err := m.loadOrSeed(patternsFile, m.seedDefaultPatterns, m.savePatterns); err != nil {
		return err
	}
	if err := m.loadOrSeed(routingFile, m.seedDefaultRouting, m.saveRouting); err != nil {
		return err
	}
	return nil
}

// loadOrSeed is shared by the three YAML stores: load the file if present,
// otherwise populate defaults and persist them.
func (m *ProceduralMemory) loadOrSeed(name string, seed func(), save func() error) error {
	path := filepath.Join(m.basePath, name)
	if _, err := os.Stat(path); err == nil {
		return m.loadFile(name)
	}
	seed()
	return save()
}

func (m *ProceduralMemory) loadFile(name string) error {
	path := filepath.Join(m.basePath, name)
	data, err := os.ReadFile(path)
	if err != nil {
		return cerrors.IOError(fmt.Sprintf("read %s", name), err)
	}

	switch name {
	case rulesFile:
		var body rulesFileBody
		if err := yaml.Unmarshal(data, &body); err != nil {
			return cerrors.ConfigError(fmt.Sprintf("parse %s", name), err)
		}
		for _, r := range body.Rules {
			m.rules[r.ID] = r
		}
	case patternsFile:
		var body patternsFileBody
		if err := yaml.Unmarshal(data, &body); err != nil {
			return cerrors.ConfigError(fmt.Sprintf("parse %s", name), err)
		}
		for _, p := range body.Patterns {
			m.patterns[p.ID] = p
		}
	case routingFile:
		var body routingFileBody
		if err := yaml.Unmarshal(data, &body); err != nil {
			return cerrors.ConfigError(fmt.Sprintf("parse %s", name), err)
		}
		for _, r := range body.Routing {
			m.routing[r.ID] = r
		}
	}
	return nil
}

// withFileLock runs fn while holding an exclusive cross-process lock on the
// base directory, so concurrent whytcard processes never interleave writes
// to the same YAML file.
func (m *ProceduralMemory) withFileLock(fn func() error) error {
	if m.inMemory {
		return fn()
	}

	lockPath := filepath.Join(m.basePath, ".procedural.lock")
	fl := flock.New(lockPath)
	if err := fl.Lock(); err != nil {
		return cerrors.IOError("acquire procedural memory lock", err)
	}
	defer fl.Unlock()

	return fn()
}

func (m *ProceduralMemory) saveRules() error {
	if m.inMemory {
		return nil
	}
	return m.withFileLock(func() error {
		body := rulesFileBody{Rules: make([]Rule, 0, len(m.rules))}
		for _, r := range m.rules {
			body.Rules = append(body.Rules, r)
		}
		return writeYAML(filepath.Join(m.basePath, rulesFile), body)
	})
}

func (m *ProceduralMemory) savePatterns() error {
	if m.inMemory {
		return nil
	}
	return m.withFileLock(func() error {
		body := patternsFileBody{Patterns: make([]Pattern, 0, len(m.patterns))}
		for _, p := range m.patterns {
			body.Patterns = append(body.Patterns, p)
		}
		return writeYAML(filepath.Join(m.basePath, patternsFile), body)
	})
}

func (m *ProceduralMemory) saveRouting() error {
	if m.inMemory {
		return nil
	}
	return m.withFileLock(func() error {
		body := routingFileBody{Routing: make([]RoutingRule, 0, len(m.routing))}
		for _, r := range m.routing {
			body.Routing = append(body.Routing, r)
		}
		return writeYAML(filepath.Join(m.basePath, routingFile), body)
	})
}

func writeYAML(path string, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return cerrors.InternalError(fmt.Sprintf("marshal %s", filepath.Base(path)), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return cerrors.IOError(fmt.Sprintf("write %s", filepath.Base(path)), err)
	}
	return nil
}

func (m *ProceduralMemory) seedDefaults() {
	m.seedDefaultRules()
	m.seedDefaultPatterns()
	m.seedDefaultRouting()
}

func (m *ProceduralMemory) seedDefaultRules() {
	now := time.Now().UTC()
	m.rules["rule-001"] = Rule{
		ID: "rule-001", Name: "code_request",
		Condition: "generate|create|write|implement", Action: "route_to_code_agent",
		Confidence: 0.9, CreatedAt: now, UpdatedAt: now,
	}
	m.rules["rule-002"] = Rule{
		ID: "rule-002", Name: "search_request",
		Condition: "find|search|where|locate", Action: "route_to_search_agent",
		Confidence: 0.9, CreatedAt: now, UpdatedAt: now,
	}
}

func (m *ProceduralMemory) seedDefaultPatterns() {
	m.patterns["pat-001"] = Pattern{
		ID: "pat-001", Name: "code_generation",
		Regex: `(?i)(generate|create|write|implement|add)\s+.*(code|function|class|method)`,
		Category: "query_type", Priority: 1,
	}
	m.patterns["pat-002"] = Pattern{
		ID: "pat-002", Name: "file_search",
		Regex: `(?i)(find|search|locate|where)\s+.*(file|in|is)`,
		Category: "query_type", Priority: 2,
	}
	m.patterns["pat-003"] = Pattern{
		ID: "pat-003", Name: "explanation",
		Regex: `(?i)(explain|what\s+is|how\s+does|why)`,
		Category: "query_type", Priority: 3,
	}
	m.patterns["pat-004"] = Pattern{
		ID: "pat-004", Name: "debugging",
		Regex: `(?i)(fix|debug|broken|fails?)\s+.*(error|bug|issue|test)|(?i)(error|bug)\s+.*(fix|debug)`,
		Category: "query_type", Priority: 1,
	}
}

func (m *ProceduralMemory) seedDefaultRouting() {
	m.routing["route-001"] = RoutingRule{ID: "route-001", PatternID: "pat-001", TargetAgent: "code", Confidence: 0.9}
	m.routing["route-002"] = RoutingRule{ID: "route-002", PatternID: "pat-002", TargetAgent: "search", Confidence: 0.9}
}

// MatchPatterns returns every Pattern matching text, optionally restricted
// to category, sorted by ascending Priority.
func (m *ProceduralMemory) MatchPatterns(text string, category string) []PatternMatch {
	var matches []PatternMatch
	for _, p := range m.patterns {
		if category != "" && p.Category != category {
			continue
		}
		re, err := regexp.Compile(p.Regex)
		if err != nil || !re.MatchString(text) {
			continue
		}
		matches = append(matches, PatternMatch{
			PatternID: p.ID, PatternName: p.Name, Category: p.Category, Priority: p.Priority,
		})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Priority < matches[j].Priority })
	return matches
}

// GetRouting returns the best RoutingRecommendation for query, preferring
// higher confidence then higher usage count, or nil if nothing matches
// above minConfidence.
func (m *ProceduralMemory) GetRouting(query string) *RoutingRecommendation {
	type candidate struct {
		rule    RoutingRule
		pattern Pattern
	}
	var candidates []candidate

	for _, rule := range m.routing {
		pattern, ok := m.patterns[rule.PatternID]
		if !ok {
			continue
		}
		re, err := regexp.Compile(pattern.Regex)
		if err != nil || !re.MatchString(query) {
			continue
		}
		if rule.Confidence < minConfidence {
			continue
		}
		candidates = append(candidates, candidate{rule, pattern})
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].rule.Confidence != candidates[j].rule.Confidence {
			return candidates[i].rule.Confidence > candidates[j].rule.Confidence
		}
		return candidates[i].rule.UsageCount > candidates[j].rule.UsageCount
	})

	best := candidates[0]
	return &RoutingRecommendation{
		TargetAgent: best.rule.TargetAgent,
		Confidence:  best.rule.Confidence,
		PatternName: best.pattern.Name,
		RoutingID:   best.rule.ID,
	}
}

// GetApplicableRules returns every Rule whose Condition regex matches the
// lowercased context string and whose confidence is at least minConfidence.
func (m *ProceduralMemory) GetApplicableRules(context string) []Rule {
	lower := strings.ToLower(context)
	var rules []Rule
	for _, r := range m.rules {
		re, err := regexp.Compile(r.Condition)
		if err != nil || !re.MatchString(lower) {
			continue
		}
		if r.Confidence < minConfidence {
			continue
		}
		rules = append(rules, r)
	}
	return rules
}

// AddRule registers a new rule and persists it.
func (m *ProceduralMemory) AddRule(name, condition, action string, confidence float32) (string, error) {
	id := fmt.Sprintf("rule-%s", shortUUID())
	now := time.Now().UTC()
	m.rules[id] = Rule{
		ID: id, Name: name, Condition: condition, Action: action,
		Confidence: confidence, CreatedAt: now, UpdatedAt: now,
	}
	if err := m.saveRules(); err != nil {
		return "", err
	}
	return id, nil
}

// AddPattern registers a new pattern after validating its regex, and
// persists it.
func (m *ProceduralMemory) AddPattern(name, regex, category string, priority int) (string, error) {
	if _, err := regexp.Compile(regex); err != nil {
		return "", cerrors.SchemaError(fmt.Sprintf("invalid regex %q", regex), err)
	}
	id := fmt.Sprintf("pat-%s", shortUUID())
	m.patterns[id] = Pattern{ID: id, Name: name, Regex: regex, Category: category, Priority: priority}
	if err := m.savePatterns(); err != nil {
		return "", err
	}
	return id, nil
}

// UpdateConfidence adjusts ruleID's confidence after an observed success or
// failure and returns the new value. ruleID names a Rule or, failing that,
// a RoutingRule. Confidence moves by confidenceIncrement on success,
// confidenceDecrement on failure, clamped to [0, 1].
func (m *ProceduralMemory) UpdateConfidence(ruleID string, success bool) (float32, error) {
	rule, ok := m.rules[ruleID]
	if !ok {
		route, found := m.routing[ruleID]
		if !found {
			return 0, cerrors.NotFoundError(fmt.Sprintf("rule %q not found", ruleID), nil)
		}
		if success {
			route.Confidence = minFloat32(route.Confidence+confidenceIncrement, 1.0)
		} else {
			route.Confidence = maxFloat32(route.Confidence-confidenceDecrement, 0.0)
		}
		m.routing[ruleID] = route
		if err := m.saveRouting(); err != nil {
			return 0, err
		}
		return route.Confidence, nil
	}

	if success {
		rule.SuccessCount++
		rule.Confidence = minFloat32(rule.Confidence+confidenceIncrement, 1.0)
	} else {
		rule.FailureCount++
		rule.Confidence = maxFloat32(rule.Confidence-confidenceDecrement, 0.0)
	}
	rule.UpdatedAt = time.Now().UTC()
	m.rules[ruleID] = rule

	if err := m.saveRules(); err != nil {
		return 0, err
	}
	return rule.Confidence, nil
}

// IncrementRoutingUsage bumps a routing rule's usage counter.
func (m *ProceduralMemory) IncrementRoutingUsage(routingID string) error {
	rule, ok := m.routing[routingID]
	if !ok {
		return nil
	}
	rule.UsageCount++
	m.routing[routingID] = rule
	return m.saveRouting()
}

// Stats reports counts and the average rule confidence.
func (m *ProceduralMemory) Stats() *ProceduralStats {
	var sum float32
	for _, r := range m.rules {
		sum += r.Confidence
	}
	avg := float32(0)
	if len(m.rules) > 0 {
		avg = sum / float32(len(m.rules))
	}

	seen := make(map[string]struct{})
	var categories []string
	for _, p := range m.patterns {
		if _, ok := seen[p.Category]; ok {
			continue
		}
		seen[p.Category] = struct{}{}
		categories = append(categories, p.Category)
	}

	return &ProceduralStats{
		TotalRules:        len(m.rules),
		TotalPatterns:     len(m.patterns),
		TotalRouting:      len(m.routing),
		AverageConfidence: avg,
		Categories:        categories,
	}
}

func shortUUID() string {
	full := uuid.NewString()
	if i := strings.IndexByte(full, '-'); i > 0 {
		return full[:i]
	}
	return full
}

func minFloat32(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func maxFloat32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
