package toolserver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/whytcard/cortex/internal/cortex"
	cerrors "github.com/whytcard/cortex/internal/errors"
	"github.com/whytcard/cortex/internal/memory"
	"github.com/whytcard/cortex/internal/store"
)

// AnalyzePipelineInput searches memory and knowledge before acting.
// External documentation and web sources are out of scope for this
// runtime; only the local memory and knowledge graph are searched.
type AnalyzePipelineInput struct {
	Query        string   `json:"query"`
	Sources      []string `json:"sources,omitempty" jsonschema:"any of: memory, knowledge; defaults to both"`
	MaxPerSource int      `json:"max_per_source,omitempty" jsonschema:"default 5"`
	MinScore     float64  `json:"min_score,omitempty" jsonschema:"default 0.5"`
	Tags         []string `json:"tags,omitempty"`
}

// AnalyzeResult is the pipeline's synthesized findings.
type AnalyzeResult struct {
	Query             string              `json:"query"`
	MemoryResults     []MemoryResultItem  `json:"memory_results,omitempty"`
	KnowledgeResults  []EntityView        `json:"knowledge_results,omitempty"`
	SourcesSearched   []string            `json:"sources_searched"`
	Confidence        float64             `json:"confidence"`
	NeedsMoreResearch bool                `json:"needs_more_research"`
}

// PreparePipelineInput documents decisions before coding: batch-stores
// facts, creates/extends knowledge graph entities and relations, and
// persists user instructions, in one ACID-style call.
type PreparePipelineInput struct {
	Remember         []MemoryStoreInput              `json:"remember,omitempty"`
	Entities         []KnowledgeAddEntityInput        `json:"entities,omitempty"`
	Relations        []KnowledgeAddRelationByNameInput `json:"relations,omitempty"`
	Observations     []KnowledgeAddObservationByNameInput `json:"observations,omitempty"`
	UserInstructions []UserInstructionInput           `json:"user_instructions,omitempty"`
	UserID           string                           `json:"user_id,omitempty" jsonschema:"default 'default'"`
}

// KnowledgeAddRelationByNameInput names entities by their Name rather
// than ID, since prepare composes fresh entities that don't have IDs yet.
type KnowledgeAddRelationByNameInput struct {
	From         string `json:"from"`
	To           string `json:"to"`
	RelationType string `json:"relation_type"`
}

// KnowledgeAddObservationByNameInput names the target entity by Name.
type KnowledgeAddObservationByNameInput struct {
	EntityName   string   `json:"entity_name"`
	Observations []string `json:"observations"`
}

// UserInstructionInput is a user preference to persist for future sessions.
type UserInstructionInput struct {
	Key      string `json:"key"`
	Value    string `json:"value"`
	Category string `json:"category,omitempty" jsonschema:"communication, workflow, domain, or coding; default communication"`
	Priority int    `json:"priority,omitempty"`
}

// PrepareResult reports what the prepare pipeline actually did.
type PrepareResult struct {
	StoredIDs          []string `json:"stored_ids,omitempty"`
	EntitiesCreated    []string `json:"entities_created,omitempty"`
	RelationsCreated   int      `json:"relations_created"`
	ObservationsAdded  int      `json:"observations_added"`
	InstructionsSaved  int      `json:"instructions_saved"`
}

// CodePipelineInput runs a tool step and records the outcome as an episode,
// composing cortex_execute the way the originating workflow's code phase
// does ("cortex_execute + cortex_feedback" without literal shell execution).
type CodePipelineInput struct {
	Tool    string         `json:"tool"`
	Params  map[string]any `json:"params,omitempty"`
	Task    string         `json:"task,omitempty" jsonschema:"short description recorded alongside the episode"`
}

// CodePipelineResult is the tool's output plus the episode it was logged under.
type CodePipelineResult struct {
	Output    any    `json:"output,omitempty"`
	EpisodeID string `json:"episode_id,omitempty"`
}

// VerifyPipelineInput reports a rule's outcome and records a verification episode.
type VerifyPipelineInput struct {
	RuleID  string `json:"rule_id"`
	Success bool   `json:"success"`
	Notes   string `json:"notes,omitempty"`
}

// VerifyPipelineResult is the rule's updated confidence plus the episode logged.
type VerifyPipelineResult struct {
	Confidence float64 `json:"confidence"`
	EpisodeID  string  `json:"episode_id,omitempty"`
}

// DocumentTaskLog is one completed task's outcome, grounded on the
// distilled workflow's task-log entry shape.
type DocumentTaskLog struct {
	Task            string   `json:"task"`
	Outcome         string   `json:"outcome"`
	Actions         []string `json:"actions,omitempty"`
	FilesModified   []string `json:"files_modified,omitempty"`
	DurationMinutes int      `json:"duration_minutes,omitempty"`
	Notes           string   `json:"notes,omitempty"`
}

// DocumentDecision records a decision with its rationale and alternatives.
type DocumentDecision struct {
	Decision        string   `json:"decision"`
	Rationale       string   `json:"rationale"`
	Alternatives    []string `json:"alternatives,omitempty"`
	Impact          string   `json:"impact,omitempty"`
	RelatedEntities []string `json:"related_entities,omitempty"`
}

// DocumentPattern records a reusable pattern for future recall.
type DocumentPattern struct {
	Name           string `json:"name"`
	WhenToUse      string `json:"when_to_use"`
	Implementation string `json:"implementation"`
}

// DocumentPipelineInput persists any combination of a task log, a decision,
// and a pattern to semantic memory, extending related entities when named.
type DocumentPipelineInput struct {
	TaskLog  *DocumentTaskLog  `json:"task_log,omitempty"`
	Decision *DocumentDecision `json:"decision,omitempty"`
	Pattern  *DocumentPattern  `json:"pattern,omitempty"`
}

// DocumentPipelineResult is the ids of whatever was stored.
type DocumentPipelineResult struct {
	TaskLogID  string `json:"task_log_id,omitempty"`
	DecisionID string `json:"decision_id,omitempty"`
	PatternID  string `json:"pattern_id,omitempty"`
}

// ManagePipelineInput administers the cognitive engine itself. MCP-server
// connection management (install/uninstall/connect to other tool servers)
// is out of scope; only CORTEX's own stats, cleanup, and instructions are
// exposed here.
type ManagePipelineInput struct {
	Action        string `json:"action" jsonschema:"one of: stats, cleanup, instructions, instructions_list, instructions_reload"`
	RetentionDays int    `json:"retention_days,omitempty" jsonschema:"used by the cleanup action, default 30"`
	FilePath      string `json:"file_path,omitempty" jsonschema:"used by the instructions action"`
	Workspace     string `json:"workspace,omitempty" jsonschema:"used by the instructions_reload action"`
}

func (s *Server) registerPipelineTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "analyze",
		Description: "Search memory and the knowledge graph before acting; phase A of the plan-act-verify-document workflow.",
	}, s.handleAnalyze)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "prepare",
		Description: "Batch-store facts, knowledge graph entities/relations, and user instructions; phase B.",
	}, s.handlePrepare)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "code",
		Description: "Invoke a tool step and log the outcome as an episode; phase C.",
	}, s.handleCode)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "verify",
		Description: "Report a rule's outcome and log a verification episode; phase D.",
	}, s.handleVerify)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "document",
		Description: "Persist a task log, decision, and/or pattern to memory; phase E.",
	}, s.handleDocument)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "manage",
		Description: "Administer the cognitive engine: stats, cleanup, and instructions.",
	}, s.handleManage)
}

func wantsSource(sources []string, name string) bool {
	if len(sources) == 0 {
		return true
	}
	for _, src := range sources {
		if strings.EqualFold(src, name) {
			return true
		}
	}
	return false
}

func (s *Server) handleAnalyze(ctx context.Context, _ *mcp.CallToolRequest, input AnalyzePipelineInput) (*mcp.CallToolResult, Envelope, error) {
	start := time.Now()

	maxPerSource := input.MaxPerSource
	if maxPerSource <= 0 {
		maxPerSource = 5
	}
	minScore := float32(input.MinScore)
	if input.MinScore == 0 {
		minScore = 0.5
	}

	var warnings []string
	result := AnalyzeResult{Query: input.Query}

	if wantsSource(input.Sources, "memory") {
		hits, err := s.memory.Semantic.Search(ctx, input.Query, maxPerSource, minScore)
		if err != nil {
			warnings = append(warnings, "memory search failed: "+err.Error())
		} else {
			result.MemoryResults = toMemoryResultItems(hits)
			result.SourcesSearched = append(result.SourcesSearched, "memory")
		}
	}

	if wantsSource(input.Sources, "knowledge") {
		e, err := s.store.FindEntityByName(ctx, input.Query)
		if err != nil {
			if !cerrors.IsNotFound(err) {
				warnings = append(warnings, "knowledge search failed: "+err.Error())
			}
		} else {
			result.KnowledgeResults = append(result.KnowledgeResults, entityView(e))
		}
		result.SourcesSearched = append(result.SourcesSearched, "knowledge")
	}

	total := len(result.MemoryResults) + len(result.KnowledgeResults)
	result.Confidence = confidenceFromHitCount(total)
	result.NeedsMoreResearch = total == 0

	next := "prepare"
	if result.NeedsMoreResearch {
		next = ""
	}
	return nil, newEnvelope(start, result, warnings, next), nil
}

func confidenceFromHitCount(n int) float64 {
	switch {
	case n == 0:
		return 0
	case n >= 3:
		return 0.9
	default:
		return 0.5 + 0.15*float64(n)
	}
}

func (s *Server) handlePrepare(ctx context.Context, _ *mcp.CallToolRequest, input PreparePipelineInput) (*mcp.CallToolResult, Envelope, error) {
	start := time.Now()
	var warnings []string
	result := PrepareResult{}

	for _, item := range input.Remember {
		id, err := s.memory.Semantic.Store(ctx, memory.SemanticFact{
			Content:        item.Content,
			Source:         item.Source,
			Category:       item.Category,
			Tags:           item.Tags,
			RelevanceScore: float32(item.RelevanceScore),
		})
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("remember %q failed: %s", item.Content, err))
			continue
		}
		result.StoredIDs = append(result.StoredIDs, id)
	}

	for _, e := range input.Entities {
		_, err := s.store.CreateEntity(ctx, &store.Entity{
			Name:         e.Name,
			EntityType:   e.EntityType,
			Observations: e.Observations,
			Metadata:     e.Metadata,
		})
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("entity %q failed: %s", e.Name, err))
			continue
		}
		result.EntitiesCreated = append(result.EntitiesCreated, e.Name)
	}

	for _, r := range input.Relations {
		from, err := s.store.FindEntityByName(ctx, r.From)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("relation %s->%s failed: entity %q not found", r.From, r.To, r.From))
			continue
		}
		to, err := s.store.FindEntityByName(ctx, r.To)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("relation %s->%s failed: entity %q not found", r.From, r.To, r.To))
			continue
		}
		if _, err := s.store.CreateRelation(ctx, &store.Relation{
			FromEntityID: from.ID,
			ToEntityID:   to.ID,
			RelationType: r.RelationType,
		}); err != nil {
			warnings = append(warnings, fmt.Sprintf("relation %s->%s failed: %s", r.From, r.To, err))
			continue
		}
		result.RelationsCreated++
	}

	for _, o := range input.Observations {
		entity, err := s.store.FindEntityByName(ctx, o.EntityName)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("observations for %q failed: entity not found", o.EntityName))
			continue
		}
		for _, obs := range o.Observations {
			if _, err := s.store.AddObservation(ctx, entity.ID, obs); err != nil {
				warnings = append(warnings, fmt.Sprintf("observation %q failed: %s", obs, err))
				continue
			}
			result.ObservationsAdded++
		}
	}

	userID := input.UserID
	if userID == "" {
		userID = "default"
	}
	for _, ui := range input.UserInstructions {
		category := cortex.CategoryCommunication
		switch strings.ToLower(ui.Category) {
		case "workflow":
			category = cortex.CategoryWorkflow
		case "domain":
			category = cortex.CategoryDomain
		case "coding":
			category = cortex.CategoryCoding
		}
		instr := cortex.NewUserInstruction(userID, ui.Key, ui.Value)
		instr.Category = category
		instr.Priority = ui.Priority
		s.engine.AddUserInstruction(instr)
		result.InstructionsSaved++
	}

	return nil, newEnvelope(start, result, warnings, "code"), nil
}

func (s *Server) handleCode(ctx context.Context, _ *mcp.CallToolRequest, input CodePipelineInput) (*mcp.CallToolResult, Envelope, error) {
	start := time.Now()

	output, err := s.engine.Execute(ctx, input.Tool, input.Params)
	if err != nil {
		return nil, failEnvelope(start, err), nil
	}

	result := CodePipelineResult{Output: output}
	if active := s.engine.GetContext(); active.SessionID != "" {
		content := input.Task
		if content == "" {
			content = fmt.Sprintf("invoked %s", input.Tool)
		}
		id, recErr := s.memory.Episodic.RecordEpisode(ctx, active.SessionID, "tool_call", content, map[string]string{"tool": input.Tool})
		if recErr == nil {
			result.EpisodeID = id
		}
	}

	return nil, newEnvelope(start, result, nil, "verify"), nil
}

func (s *Server) handleVerify(ctx context.Context, _ *mcp.CallToolRequest, input VerifyPipelineInput) (*mcp.CallToolResult, Envelope, error) {
	start := time.Now()

	conf, err := s.engine.ProvideFeedback(input.RuleID, input.Success)
	if err != nil {
		return nil, failEnvelope(start, err), nil
	}

	result := VerifyPipelineResult{Confidence: float64(conf)}
	if active := s.engine.GetContext(); active.SessionID != "" {
		outcome := "failed"
		if input.Success {
			outcome = "passed"
		}
		content := fmt.Sprintf("verification %s for rule %s", outcome, input.RuleID)
		if input.Notes != "" {
			content += ": " + input.Notes
		}
		id, recErr := s.memory.Episodic.RecordEpisode(ctx, active.SessionID, "observation", content, nil)
		if recErr == nil {
			result.EpisodeID = id
		}
	}

	next := "document"
	if !input.Success {
		next = "code"
	}
	return nil, newEnvelope(start, result, nil, next), nil
}

func (s *Server) handleDocument(ctx context.Context, _ *mcp.CallToolRequest, input DocumentPipelineInput) (*mcp.CallToolResult, Envelope, error) {
	start := time.Now()
	var warnings []string
	result := DocumentPipelineResult{}

	if input.TaskLog != nil {
		content := fmt.Sprintf("Task: %s\nOutcome: %s\nActions: %s\nFiles: %s\nNotes: %s",
			input.TaskLog.Task, input.TaskLog.Outcome,
			strings.Join(input.TaskLog.Actions, ", "),
			strings.Join(input.TaskLog.FilesModified, ", "),
			input.TaskLog.Notes)
		id, err := s.memory.Semantic.Store(ctx, memory.SemanticFact{
			Content:  content,
			Category: "task_log",
			Tags:     []string{"task_log"},
		})
		if err != nil {
			warnings = append(warnings, "task log store failed: "+err.Error())
		} else {
			result.TaskLogID = id
		}
	}

	if input.Decision != nil {
		content := fmt.Sprintf("Decision: %s\nRationale: %s\nAlternatives: %s\nImpact: %s",
			input.Decision.Decision, input.Decision.Rationale,
			strings.Join(input.Decision.Alternatives, ", "), input.Decision.Impact)
		id, err := s.memory.Semantic.Store(ctx, memory.SemanticFact{
			Content:  content,
			Category: "decision",
			Tags:     []string{"decision"},
		})
		if err != nil {
			warnings = append(warnings, "decision store failed: "+err.Error())
		} else {
			result.DecisionID = id
		}

		for _, name := range input.Decision.RelatedEntities {
			entity, err := s.store.FindEntityByName(ctx, name)
			if err != nil {
				continue
			}
			if _, err := s.store.AddObservation(ctx, entity.ID, "decision: "+input.Decision.Decision); err != nil {
				warnings = append(warnings, fmt.Sprintf("linking decision to %q failed: %s", name, err))
			}
		}
	}

	if input.Pattern != nil {
		content := fmt.Sprintf("Pattern: %s\nWhen to use: %s\nImplementation: %s",
			input.Pattern.Name, input.Pattern.WhenToUse, input.Pattern.Implementation)
		id, err := s.memory.Semantic.Store(ctx, memory.SemanticFact{
			Content:  content,
			Category: "pattern",
			Tags:     []string{"pattern"},
		})
		if err != nil {
			warnings = append(warnings, "pattern store failed: "+err.Error())
		} else {
			result.PatternID = id
		}
	}

	return nil, newEnvelope(start, result, warnings, ""), nil
}

func (s *Server) handleManage(ctx context.Context, _ *mcp.CallToolRequest, input ManagePipelineInput) (*mcp.CallToolResult, Envelope, error) {
	start := time.Now()

	switch strings.ToLower(input.Action) {
	case "stats":
		stats, err := s.engine.Stats(ctx)
		if err != nil {
			return nil, failEnvelope(start, err), nil
		}
		return nil, newEnvelope(start, CortexStatsOutput{
			TotalFacts:    stats.Semantic.TotalFacts,
			TotalEpisodes: stats.Episodic.TotalEpisodes,
			TotalRules:    stats.Procedural.TotalRules,
		}, nil, ""), nil

	case "cleanup":
		retentionDays := input.RetentionDays
		if retentionDays <= 0 {
			retentionDays = 30
		}
		n, err := s.engine.Cleanup(ctx, retentionDays)
		if err != nil {
			return nil, failEnvelope(start, err), nil
		}
		return nil, newEnvelope(start, CortexCleanupOutput{Deleted: n}, nil, ""), nil

	case "instructions":
		prompt := s.engine.GetInstructionsPrompt(input.FilePath)
		stats := s.engine.Instructions().Stats()
		return nil, newEnvelope(start, CortexInstructionsOutput{
			Prompt:    prompt,
			Total:     stats.Total,
			FromFiles: stats.FromFiles,
			FromUser:  stats.FromUser,
		}, nil, ""), nil

	case "instructions_list":
		instructions := s.engine.Instructions().All()
		names := make([]string, 0, len(instructions))
		for _, instr := range instructions {
			names = append(names, instr.Name)
		}
		return nil, newEnvelope(start, map[string]any{"instructions": names}, nil, ""), nil

	case "instructions_reload":
		n, err := s.engine.ReloadInstructions(input.Workspace)
		if err != nil {
			return nil, failEnvelope(start, err), nil
		}
		return nil, newEnvelope(start, map[string]any{"reloaded": n}, nil, ""), nil

	default:
		return nil, failEnvelope(start, fmt.Errorf("unknown manage action %q", input.Action)), nil
	}
}
