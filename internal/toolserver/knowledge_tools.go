package toolserver

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	cerrors "github.com/whytcard/cortex/internal/errors"
	"github.com/whytcard/cortex/internal/store"
)

// EntityView is the tool-facing shape of a knowledge graph entity.
type EntityView struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	EntityType   string            `json:"entity_type"`
	Observations []string          `json:"observations,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

func entityView(e *store.Entity) EntityView {
	return EntityView{
		ID:           e.ID,
		Name:         e.Name,
		EntityType:   e.EntityType,
		Observations: e.Observations,
		Metadata:     e.Metadata,
	}
}

// RelationView is the tool-facing shape of a knowledge graph relation.
type RelationView struct {
	ID           string  `json:"id"`
	FromEntityID string  `json:"from_entity_id"`
	ToEntityID   string  `json:"to_entity_id"`
	RelationType string  `json:"relation_type"`
	Weight       float64 `json:"weight,omitempty"`
}

func relationView(r *store.Relation) RelationView {
	return RelationView{
		ID:           r.ID,
		FromEntityID: r.FromEntityID,
		ToEntityID:   r.ToEntityID,
		RelationType: r.RelationType,
		Weight:       float64(r.Weight),
	}
}

// KnowledgeAddEntityInput creates a new entity node.
type KnowledgeAddEntityInput struct {
	Name         string            `json:"name" jsonschema:"unique within entity_type"`
	EntityType   string            `json:"entity_type" jsonschema:"e.g. function, module, concept, person"`
	Observations []string          `json:"observations,omitempty" jsonschema:"initial facts about this entity"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// KnowledgeAddEntityOutput is the created entity, or an error if it already exists.
type KnowledgeAddEntityOutput struct {
	Entity *EntityView `json:"entity,omitempty"`
	Error  *ToolError  `json:"error,omitempty"`
}

// KnowledgeAddObservationInput appends an observation to an existing entity.
type KnowledgeAddObservationInput struct {
	EntityID    string `json:"entity_id"`
	Observation string `json:"observation"`
}

// KnowledgeAddObservationOutput is the entity after the observation was appended.
type KnowledgeAddObservationOutput struct {
	Entity *EntityView `json:"entity,omitempty"`
	Error  *ToolError  `json:"error,omitempty"`
}

// KnowledgeDeleteObservationInput removes one observation from an entity.
type KnowledgeDeleteObservationInput struct {
	EntityID    string `json:"entity_id"`
	Observation string `json:"observation"`
}

// KnowledgeDeleteObservationOutput is the entity after the observation was removed.
type KnowledgeDeleteObservationOutput struct {
	Entity *EntityView `json:"entity,omitempty"`
	Error  *ToolError  `json:"error,omitempty"`
}

// KnowledgeAddRelationInput creates a directed edge between two entities.
type KnowledgeAddRelationInput struct {
	FromEntityID string  `json:"from_entity_id"`
	ToEntityID   string  `json:"to_entity_id"`
	RelationType string  `json:"relation_type"`
	Weight       float64 `json:"weight,omitempty"`
}

// KnowledgeAddRelationOutput is the created relation.
type KnowledgeAddRelationOutput struct {
	Relation *RelationView `json:"relation,omitempty"`
	Error    *ToolError    `json:"error,omitempty"`
}

// KnowledgeDeleteRelationInput removes relations between two entities,
// optionally scoped to one relation type.
type KnowledgeDeleteRelationInput struct {
	FromEntityID string `json:"from_entity_id"`
	ToEntityID   string `json:"to_entity_id"`
	RelationType string `json:"relation_type,omitempty" jsonschema:"empty removes all relation types between the pair"`
}

// KnowledgeDeleteRelationOutput reports how many relations were removed.
type KnowledgeDeleteRelationOutput struct {
	Deleted int        `json:"deleted"`
	Error   *ToolError `json:"error,omitempty"`
}

// KnowledgeSearchInput looks up an entity by name and type.
type KnowledgeSearchInput struct {
	Name       string `json:"name"`
	EntityType string `json:"entity_type,omitempty"`
}

// KnowledgeSearchOutput is the matched entity, if any.
type KnowledgeSearchOutput struct {
	Entity *EntityView `json:"entity,omitempty"`
	Error  *ToolError  `json:"error,omitempty"`
}

// KnowledgeGetEntityInput fetches an entity by id.
type KnowledgeGetEntityInput struct {
	ID string `json:"id"`
}

// KnowledgeGetEntityOutput is the fetched entity.
type KnowledgeGetEntityOutput struct {
	Entity *EntityView `json:"entity,omitempty"`
	Error  *ToolError  `json:"error,omitempty"`
}

// KnowledgeDeleteEntityInput removes an entity node (and, by cascade, its relations).
type KnowledgeDeleteEntityInput struct {
	ID string `json:"id"`
}

// KnowledgeDeleteEntityOutput reports success.
type KnowledgeDeleteEntityOutput struct {
	Deleted bool       `json:"deleted"`
	Error   *ToolError `json:"error,omitempty"`
}

// KnowledgeReadGraphInput reads the full neighborhood around an entity.
type KnowledgeReadGraphInput struct {
	EntityID string `json:"entity_id"`
}

// KnowledgeReadGraphOutput is an entity plus its immediate relations.
type KnowledgeReadGraphOutput struct {
	Entity    *EntityView    `json:"entity,omitempty"`
	Outgoing  []RelationView `json:"outgoing,omitempty"`
	Incoming  []RelationView `json:"incoming,omitempty"`
	Error     *ToolError     `json:"error,omitempty"`
}

// KnowledgeGetNeighborsInput lists the entities directly connected to one entity.
type KnowledgeGetNeighborsInput struct {
	EntityID string `json:"entity_id"`
}

// KnowledgeGetNeighborsOutput is the relations touching the entity, in
// either direction.
type KnowledgeGetNeighborsOutput struct {
	Outgoing []RelationView `json:"outgoing,omitempty"`
	Incoming []RelationView `json:"incoming,omitempty"`
	Error    *ToolError     `json:"error,omitempty"`
}

// KnowledgeFindPathInput searches for a path between two entities.
type KnowledgeFindPathInput struct {
	FromEntityID string `json:"from_entity_id"`
	ToEntityID   string `json:"to_entity_id"`
	MaxDepth     int    `json:"max_depth,omitempty" jsonschema:"default 5"`
}

// KnowledgeFindPathOutput is the sequence of entities forming the path, if found.
type KnowledgeFindPathOutput struct {
	Path  []EntityView `json:"path,omitempty"`
	Found bool         `json:"found"`
	Error *ToolError   `json:"error,omitempty"`
}

// ExportGraphInput requests a full graph dump scoped to a set of entities.
type ExportGraphInput struct {
	EntityIDs []string `json:"entity_ids,omitempty" jsonschema:"entities to export, with every relation touching any of them; empty or omitted exports nothing"`
}

// ExportGraphOutput is a flat entity/relation dump suitable for
// serialization to a client-side graph viewer.
type ExportGraphOutput struct {
	Entities  []EntityView   `json:"entities"`
	Relations []RelationView `json:"relations"`
	Error     *ToolError     `json:"error,omitempty"`
}

func (s *Server) registerKnowledgeTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{Name: "knowledge_add_entity", Description: "Create a new knowledge graph entity."}, s.handleKnowledgeAddEntity)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: "knowledge_add_observation", Description: "Append an observation to an existing entity."}, s.handleKnowledgeAddObservation)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: "knowledge_delete_observation", Description: "Remove one observation from an entity."}, s.handleKnowledgeDeleteObservation)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: "knowledge_add_relation", Description: "Create a directed relation between two entities."}, s.handleKnowledgeAddRelation)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: "knowledge_delete_relation", Description: "Remove relations between two entities."}, s.handleKnowledgeDeleteRelation)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: "knowledge_search", Description: "Look up an entity by name and type."}, s.handleKnowledgeSearch)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: "knowledge_get_entity", Description: "Fetch an entity by id."}, s.handleKnowledgeGetEntity)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: "knowledge_delete_entity", Description: "Delete an entity node."}, s.handleKnowledgeDeleteEntity)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: "knowledge_read_graph", Description: "Read an entity and its immediate relations."}, s.handleKnowledgeReadGraph)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: "knowledge_get_neighbors", Description: "List the entities directly connected to one entity."}, s.handleKnowledgeGetNeighbors)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: "knowledge_find_path", Description: "Find a path between two entities through the relation graph."}, s.handleKnowledgeFindPath)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: "export_graph", Description: "Export entities and relations for external visualization."}, s.handleExportGraph)
}

func (s *Server) handleKnowledgeAddEntity(ctx context.Context, _ *mcp.CallToolRequest, input KnowledgeAddEntityInput) (*mcp.CallToolResult, KnowledgeAddEntityOutput, error) {
	e, err := s.store.CreateEntity(ctx, &store.Entity{
		Name:         input.Name,
		EntityType:   input.EntityType,
		Observations: input.Observations,
		Metadata:     input.Metadata,
	})
	if err != nil {
		return nil, KnowledgeAddEntityOutput{Error: toToolError(err)}, nil
	}
	ev := entityView(e)
	return nil, KnowledgeAddEntityOutput{Entity: &ev}, nil
}

func (s *Server) handleKnowledgeAddObservation(ctx context.Context, _ *mcp.CallToolRequest, input KnowledgeAddObservationInput) (*mcp.CallToolResult, KnowledgeAddObservationOutput, error) {
	e, err := s.store.AddObservation(ctx, input.EntityID, input.Observation)
	if err != nil {
		return nil, KnowledgeAddObservationOutput{Error: toToolError(err)}, nil
	}
	ev := entityView(e)
	return nil, KnowledgeAddObservationOutput{Entity: &ev}, nil
}

func (s *Server) handleKnowledgeDeleteObservation(ctx context.Context, _ *mcp.CallToolRequest, input KnowledgeDeleteObservationInput) (*mcp.CallToolResult, KnowledgeDeleteObservationOutput, error) {
	e, err := s.store.DeleteObservation(ctx, input.EntityID, input.Observation)
	if err != nil {
		return nil, KnowledgeDeleteObservationOutput{Error: toToolError(err)}, nil
	}
	ev := entityView(e)
	return nil, KnowledgeDeleteObservationOutput{Entity: &ev}, nil
}

func (s *Server) handleKnowledgeAddRelation(ctx context.Context, _ *mcp.CallToolRequest, input KnowledgeAddRelationInput) (*mcp.CallToolResult, KnowledgeAddRelationOutput, error) {
	r, err := s.store.CreateRelation(ctx, &store.Relation{
		FromEntityID: input.FromEntityID,
		ToEntityID:   input.ToEntityID,
		RelationType: input.RelationType,
		Weight:       float32(input.Weight),
	})
	if err != nil {
		return nil, KnowledgeAddRelationOutput{Error: toToolError(err)}, nil
	}
	rv := relationView(r)
	return nil, KnowledgeAddRelationOutput{Relation: &rv}, nil
}

func (s *Server) handleKnowledgeDeleteRelation(ctx context.Context, _ *mcp.CallToolRequest, input KnowledgeDeleteRelationInput) (*mcp.CallToolResult, KnowledgeDeleteRelationOutput, error) {
	n, err := s.store.DeleteRelationsBetween(ctx, input.FromEntityID, input.ToEntityID, input.RelationType)
	if err != nil {
		return nil, KnowledgeDeleteRelationOutput{Error: toToolError(err)}, nil
	}
	return nil, KnowledgeDeleteRelationOutput{Deleted: n}, nil
}

func (s *Server) handleKnowledgeSearch(ctx context.Context, _ *mcp.CallToolRequest, input KnowledgeSearchInput) (*mcp.CallToolResult, KnowledgeSearchOutput, error) {
	e, err := s.store.GetEntityByName(ctx, input.Name, input.EntityType)
	if err != nil {
		return nil, KnowledgeSearchOutput{Error: toToolError(err)}, nil
	}
	ev := entityView(e)
	return nil, KnowledgeSearchOutput{Entity: &ev}, nil
}

func (s *Server) handleKnowledgeGetEntity(ctx context.Context, _ *mcp.CallToolRequest, input KnowledgeGetEntityInput) (*mcp.CallToolResult, KnowledgeGetEntityOutput, error) {
	e, err := s.store.GetEntity(ctx, input.ID)
	if err != nil {
		return nil, KnowledgeGetEntityOutput{Error: toToolError(err)}, nil
	}
	ev := entityView(e)
	return nil, KnowledgeGetEntityOutput{Entity: &ev}, nil
}

func (s *Server) handleKnowledgeDeleteEntity(ctx context.Context, _ *mcp.CallToolRequest, input KnowledgeDeleteEntityInput) (*mcp.CallToolResult, KnowledgeDeleteEntityOutput, error) {
	if err := s.store.DeleteEntity(ctx, input.ID); err != nil {
		return nil, KnowledgeDeleteEntityOutput{Error: toToolError(err)}, nil
	}
	return nil, KnowledgeDeleteEntityOutput{Deleted: true}, nil
}

func (s *Server) handleKnowledgeReadGraph(ctx context.Context, _ *mcp.CallToolRequest, input KnowledgeReadGraphInput) (*mcp.CallToolResult, KnowledgeReadGraphOutput, error) {
	e, err := s.store.GetEntity(ctx, input.EntityID)
	if err != nil {
		return nil, KnowledgeReadGraphOutput{Error: toToolError(err)}, nil
	}
	out, in, err := s.neighborRelations(ctx, input.EntityID)
	if err != nil {
		return nil, KnowledgeReadGraphOutput{Error: toToolError(err)}, nil
	}
	ev := entityView(e)
	return nil, KnowledgeReadGraphOutput{Entity: &ev, Outgoing: out, Incoming: in}, nil
}

func (s *Server) handleKnowledgeGetNeighbors(ctx context.Context, _ *mcp.CallToolRequest, input KnowledgeGetNeighborsInput) (*mcp.CallToolResult, KnowledgeGetNeighborsOutput, error) {
	out, in, err := s.neighborRelations(ctx, input.EntityID)
	if err != nil {
		return nil, KnowledgeGetNeighborsOutput{Error: toToolError(err)}, nil
	}
	return nil, KnowledgeGetNeighborsOutput{Outgoing: out, Incoming: in}, nil
}

func (s *Server) neighborRelations(ctx context.Context, entityID string) ([]RelationView, []RelationView, error) {
	outgoing, err := s.store.GetOutgoingRelations(ctx, entityID)
	if err != nil {
		return nil, nil, err
	}
	incoming, err := s.store.GetIncomingRelations(ctx, entityID)
	if err != nil {
		return nil, nil, err
	}

	out := make([]RelationView, 0, len(outgoing))
	for _, r := range outgoing {
		out = append(out, relationView(r))
	}
	in := make([]RelationView, 0, len(incoming))
	for _, r := range incoming {
		in = append(in, relationView(r))
	}
	return out, in, nil
}

func (s *Server) handleKnowledgeFindPath(ctx context.Context, _ *mcp.CallToolRequest, input KnowledgeFindPathInput) (*mcp.CallToolResult, KnowledgeFindPathOutput, error) {
	maxDepth := input.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 5
	}

	path, err := s.store.FindPath(ctx, input.FromEntityID, input.ToEntityID, maxDepth)
	if err != nil {
		if cerrors.IsNotFound(err) {
			return nil, KnowledgeFindPathOutput{Found: false}, nil
		}
		return nil, KnowledgeFindPathOutput{Error: toToolError(err)}, nil
	}

	views := make([]EntityView, 0, len(path))
	for _, e := range path {
		views = append(views, entityView(e))
	}
	return nil, KnowledgeFindPathOutput{Path: views, Found: true}, nil
}

func (s *Server) handleExportGraph(ctx context.Context, _ *mcp.CallToolRequest, input ExportGraphInput) (*mcp.CallToolResult, ExportGraphOutput, error) {
	entities := make([]EntityView, 0, len(input.EntityIDs))
	relSeen := make(map[string]bool)
	relations := make([]RelationView, 0)

	for _, id := range input.EntityIDs {
		e, err := s.store.GetEntity(ctx, id)
		if err != nil {
			return nil, ExportGraphOutput{Error: toToolError(err)}, nil
		}
		entities = append(entities, entityView(e))

		out, in, err := s.neighborRelations(ctx, id)
		if err != nil {
			return nil, ExportGraphOutput{Error: toToolError(err)}, nil
		}
		for _, r := range append(out, in...) {
			if relSeen[r.ID] {
				continue
			}
			relSeen[r.ID] = true
			relations = append(relations, r)
		}
	}

	return nil, ExportGraphOutput{Entities: entities, Relations: relations}, nil
}
