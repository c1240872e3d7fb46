package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	cerrors "github.com/whytcard/cortex/internal/errors"
)

// CreateEntity inserts a new Entity. (name, entity_type) must be unique.
func (s *SQLiteStore) CreateEntity(ctx context.Context, entity *Entity) (*Entity, error) {
	now := time.Now().UTC()
	e := *entity
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.CreatedAt = now
	e.UpdatedAt = now

	obs, err := json.Marshal(nonNilObservations(e.Observations))
	if err != nil {
		return nil, cerrors.InternalError("marshal entity observations", err)
	}
	meta, err := json.Marshal(nonNilMeta(e.Metadata))
	if err != nil {
		return nil, cerrors.InternalError("marshal entity metadata", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO entity (id, name, entity_type, observations, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Name, e.EntityType, string(obs), string(meta), e.CreatedAt.Format(time.RFC3339Nano), e.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return nil, cerrors.SchemaError(fmt.Sprintf("entity (%q, %q) already exists or violates schema", e.Name, e.EntityType), err)
	}

	return &e, nil
}

// GetEntity fetches an Entity by ID.
func (s *SQLiteStore) GetEntity(ctx context.Context, id string) (*Entity, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, entity_type, observations, metadata, created_at, updated_at
		FROM entity WHERE id = ?`, id)
	return scanEntity(row)
}

// GetEntityByName fetches an Entity by its (name, entity_type) key.
func (s *SQLiteStore) GetEntityByName(ctx context.Context, name, entityType string) (*Entity, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, entity_type, observations, metadata, created_at, updated_at
		FROM entity WHERE name = ? AND entity_type = ?`, name, entityType)
	return scanEntity(row)
}

// FindEntityByName fetches an Entity by name alone, for callers that
// compose entities without tracking their entity_type (e.g. the ACID
// pipeline tools, which name entities only). Returns an arbitrary match
// if more than one entity_type shares the name.
func (s *SQLiteStore) FindEntityByName(ctx context.Context, name string) (*Entity, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, entity_type, observations, metadata, created_at, updated_at
		FROM entity WHERE name = ? LIMIT 1`, name)
	return scanEntity(row)
}

// AddObservation appends an observation to an Entity. Appending a duplicate
// (already-present) observation is a no-op — idempotent, not an error.
func (s *SQLiteStore) AddObservation(ctx context.Context, id, observation string) (*Entity, error) {
	e, err := s.GetEntity(ctx, id)
	if err != nil {
		return nil, err
	}

	for _, existing := range e.Observations {
		if existing == observation {
			return e, nil
		}
	}

	e.Observations = append(e.Observations, observation)
	e.UpdatedAt = time.Now().UTC()

	obs, err := json.Marshal(e.Observations)
	if err != nil {
		return nil, cerrors.InternalError("marshal entity observations", err)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE entity SET observations = ?, updated_at = ? WHERE id = ?`,
		string(obs), e.UpdatedAt.Format(time.RFC3339Nano), id)
	if err != nil {
		return nil, cerrors.IOError("update entity observations", err)
	}

	return e, nil
}

// DeleteObservation removes one observation from an Entity by exact string
// match, preserving the order of the remaining entries. A read-modify-write
// over the same row AddObservation touches, not a no-op.
func (s *SQLiteStore) DeleteObservation(ctx context.Context, id, observation string) (*Entity, error) {
	e, err := s.GetEntity(ctx, id)
	if err != nil {
		return nil, err
	}

	kept := make([]string, 0, len(e.Observations))
	for _, existing := range e.Observations {
		if existing != observation {
			kept = append(kept, existing)
		}
	}
	e.Observations = kept
	e.UpdatedAt = time.Now().UTC()

	obs, err := json.Marshal(nonNilObservations(e.Observations))
	if err != nil {
		return nil, cerrors.InternalError("marshal entity observations", err)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE entity SET observations = ?, updated_at = ? WHERE id = ?`,
		string(obs), e.UpdatedAt.Format(time.RFC3339Nano), id)
	if err != nil {
		return nil, cerrors.IOError("update entity observations", err)
	}

	return e, nil
}

// DeleteEntity removes an Entity. Its relation edges (both directions)
// cascade via the relation table's foreign keys.
func (s *SQLiteStore) DeleteEntity(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM entity WHERE id = ?`, id)
	if err != nil {
		return cerrors.IOError("delete entity", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return cerrors.NotFoundError(fmt.Sprintf("entity %q not found", id), nil)
	}
	return nil
}

// CreateRelation inserts a directed edge between two entities. Multiple
// edges between the same pair are allowed only when relation_type differs.
func (s *SQLiteStore) CreateRelation(ctx context.Context, rel *Relation) (*Relation, error) {
	r := *rel
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Weight == 0 {
		r.Weight = 1.0
	}
	r.CreatedAt = time.Now().UTC()

	meta, err := json.Marshal(nonNilMeta(r.Metadata))
	if err != nil {
		return nil, cerrors.InternalError("marshal relation metadata", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO relation (id, from_entity_id, to_entity_id, relation_type, weight, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.FromEntityID, r.ToEntityID, r.RelationType, r.Weight, string(meta), r.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return nil, cerrors.RelationError(
			fmt.Sprintf("relation %s -[%s]-> %s already exists or references a missing entity", r.FromEntityID, r.RelationType, r.ToEntityID), err)
	}

	return &r, nil
}

// GetOutgoingRelations returns edges where entityID is the source.
func (s *SQLiteStore) GetOutgoingRelations(ctx context.Context, entityID string) ([]*Relation, error) {
	return s.queryRelations(ctx, `
		SELECT id, from_entity_id, to_entity_id, relation_type, weight, metadata, created_at
		FROM relation WHERE from_entity_id = ?`, entityID)
}

// GetIncomingRelations returns edges where entityID is the destination.
func (s *SQLiteStore) GetIncomingRelations(ctx context.Context, entityID string) ([]*Relation, error) {
	return s.queryRelations(ctx, `
		SELECT id, from_entity_id, to_entity_id, relation_type, weight, metadata, created_at
		FROM relation WHERE to_entity_id = ?`, entityID)
}

// DeleteRelationsBetween removes edges between fromID and toID. An empty
// relationType matches any relation type.
func (s *SQLiteStore) DeleteRelationsBetween(ctx context.Context, fromID, toID string, relationType string) (int, error) {
	var (
		res sql.Result
		err error
	)
	if relationType == "" {
		res, err = s.db.ExecContext(ctx, `
			DELETE FROM relation WHERE from_entity_id = ? AND to_entity_id = ?`, fromID, toID)
	} else {
		res, err = s.db.ExecContext(ctx, `
			DELETE FROM relation WHERE from_entity_id = ? AND to_entity_id = ? AND relation_type = ?`, fromID, toID, relationType)
	}
	if err != nil {
		return 0, cerrors.IOError("delete relations between entities", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// FindPath performs a bounded breadth-first search for a directed path from
// fromID to toID, following outgoing edges, within maxDepth hops. Returns
// a NotFound error if no path exists within the bound.
func (s *SQLiteStore) FindPath(ctx context.Context, fromID, toID string, maxDepth int) ([]*Entity, error) {
	if fromID == toID {
		e, err := s.GetEntity(ctx, fromID)
		if err != nil {
			return nil, err
		}
		return []*Entity{e}, nil
	}
	if maxDepth <= 0 {
		maxDepth = 6
	}

	type frame struct {
		id   string
		path []string
	}

	visited := map[string]bool{fromID: true}
	queue := []frame{{id: fromID, path: []string{fromID}}}

	for depth := 0; depth < maxDepth && len(queue) > 0; depth++ {
		var next []frame
		for _, f := range queue {
			rels, err := s.GetOutgoingRelations(ctx, f.id)
			if err != nil {
				return nil, err
			}
			for _, rel := range rels {
				if visited[rel.ToEntityID] {
					continue
				}
				path := append(append([]string{}, f.path...), rel.ToEntityID)
				if rel.ToEntityID == toID {
					return s.entitiesForIDs(ctx, path)
				}
				visited[rel.ToEntityID] = true
				next = append(next, frame{id: rel.ToEntityID, path: path})
			}
		}
		queue = next
	}

	return nil, cerrors.NotFoundError(fmt.Sprintf("no path from %q to %q within %d hops", fromID, toID, maxDepth), nil)
}

func (s *SQLiteStore) entitiesForIDs(ctx context.Context, ids []string) ([]*Entity, error) {
	entities := make([]*Entity, 0, len(ids))
	for _, id := range ids {
		e, err := s.GetEntity(ctx, id)
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, nil
}

func (s *SQLiteStore) queryRelations(ctx context.Context, query string, arg string) ([]*Relation, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, cerrors.IOError("query relations", err)
	}
	defer rows.Close()

	var rels []*Relation
	for rows.Next() {
		r, err := scanRelationRow(rows)
		if err != nil {
			return nil, err
		}
		rels = append(rels, r)
	}
	return rels, rows.Err()
}

func scanEntity(row *sql.Row) (*Entity, error) {
	return scanEntityRow(row)
}

func scanEntityRow(row rowScanner) (*Entity, error) {
	var (
		e                       Entity
		obsJSON, metaJSON       string
		createdAt, updatedAt    string
	)
	err := row.Scan(&e.ID, &e.Name, &e.EntityType, &obsJSON, &metaJSON, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cerrors.NotFoundError("entity not found", err)
	}
	if err != nil {
		return nil, cerrors.IOError("scan entity row", err)
	}

	e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	e.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)

	if err := json.Unmarshal([]byte(obsJSON), &e.Observations); err != nil {
		return nil, cerrors.ParseError("unmarshal entity observations", err)
	}
	if err := json.Unmarshal([]byte(metaJSON), &e.Metadata); err != nil {
		return nil, cerrors.ParseError("unmarshal entity metadata", err)
	}

	return &e, nil
}

func scanRelationRow(row rowScanner) (*Relation, error) {
	var (
		r         Relation
		metaJSON  string
		createdAt string
	)
	err := row.Scan(&r.ID, &r.FromEntityID, &r.ToEntityID, &r.RelationType, &r.Weight, &metaJSON, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cerrors.NotFoundError("relation not found", err)
	}
	if err != nil {
		return nil, cerrors.IOError("scan relation row", err)
	}

	r.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	if err := json.Unmarshal([]byte(metaJSON), &r.Metadata); err != nil {
		return nil, cerrors.ParseError("unmarshal relation metadata", err)
	}

	return &r, nil
}

func nonNilObservations(obs []string) []string {
	if obs == nil {
		return []string{}
	}
	return obs
}
