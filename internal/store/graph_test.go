package store

import (
	"context"
	"testing"

	cerrors "github.com/whytcard/cortex/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndGetEntity(t *testing.T) {
	s := newTestStore(t, 4)
	ctx := context.Background()

	e, err := s.CreateEntity(ctx, &Entity{Name: "Alice", EntityType: "person"})
	require.NoError(t, err)
	assert.NotEmpty(t, e.ID)

	fetched, err := s.GetEntityByName(ctx, "Alice", "person")
	require.NoError(t, err)
	assert.Equal(t, e.ID, fetched.ID)
}

func TestCreateEntity_DuplicateNameTypeRejected(t *testing.T) {
	s := newTestStore(t, 4)
	ctx := context.Background()

	_, err := s.CreateEntity(ctx, &Entity{Name: "Alice", EntityType: "person"})
	require.NoError(t, err)

	_, err = s.CreateEntity(ctx, &Entity{Name: "Alice", EntityType: "person"})
	require.Error(t, err)
}

func TestCreateEntity_SameNameDifferentTypeAllowed(t *testing.T) {
	s := newTestStore(t, 4)
	ctx := context.Background()

	_, err := s.CreateEntity(ctx, &Entity{Name: "Acme", EntityType: "company"})
	require.NoError(t, err)
	_, err = s.CreateEntity(ctx, &Entity{Name: "Acme", EntityType: "project"})
	require.NoError(t, err)
}

func TestAddObservation_AppendsAndIsIdempotent(t *testing.T) {
	s := newTestStore(t, 4)
	ctx := context.Background()

	e, err := s.CreateEntity(ctx, &Entity{Name: "Bob", EntityType: "person"})
	require.NoError(t, err)

	updated, err := s.AddObservation(ctx, e.ID, "likes coffee")
	require.NoError(t, err)
	assert.Equal(t, []string{"likes coffee"}, updated.Observations)

	again, err := s.AddObservation(ctx, e.ID, "likes coffee")
	require.NoError(t, err)
	assert.Equal(t, []string{"likes coffee"}, again.Observations)

	third, err := s.AddObservation(ctx, e.ID, "works remotely")
	require.NoError(t, err)
	assert.Equal(t, []string{"likes coffee", "works remotely"}, third.Observations)
}

func TestDeleteObservation_RemovesExactMatchPreservingOrder(t *testing.T) {
	s := newTestStore(t, 4)
	ctx := context.Background()

	e, err := s.CreateEntity(ctx, &Entity{Name: "Carol", EntityType: "person"})
	require.NoError(t, err)

	_, err = s.AddObservation(ctx, e.ID, "likes coffee")
	require.NoError(t, err)
	_, err = s.AddObservation(ctx, e.ID, "works remotely")
	require.NoError(t, err)
	_, err = s.AddObservation(ctx, e.ID, "owns a cat")
	require.NoError(t, err)

	updated, err := s.DeleteObservation(ctx, e.ID, "works remotely")
	require.NoError(t, err)
	assert.Equal(t, []string{"likes coffee", "owns a cat"}, updated.Observations)
}

func TestDeleteObservation_NoMatchIsNoop(t *testing.T) {
	s := newTestStore(t, 4)
	ctx := context.Background()

	e, err := s.CreateEntity(ctx, &Entity{Name: "Dave", EntityType: "person"})
	require.NoError(t, err)
	_, err = s.AddObservation(ctx, e.ID, "likes coffee")
	require.NoError(t, err)

	updated, err := s.DeleteObservation(ctx, e.ID, "never said this")
	require.NoError(t, err)
	assert.Equal(t, []string{"likes coffee"}, updated.Observations)
}

func TestDeleteEntity_CascadesRelations(t *testing.T) {
	s := newTestStore(t, 4)
	ctx := context.Background()

	alice, err := s.CreateEntity(ctx, &Entity{Name: "Alice", EntityType: "person"})
	require.NoError(t, err)
	bob, err := s.CreateEntity(ctx, &Entity{Name: "Bob", EntityType: "person"})
	require.NoError(t, err)

	_, err = s.CreateRelation(ctx, &Relation{FromEntityID: alice.ID, ToEntityID: bob.ID, RelationType: "knows"})
	require.NoError(t, err)

	require.NoError(t, s.DeleteEntity(ctx, alice.ID))

	rels, err := s.GetIncomingRelations(ctx, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, rels)
}

func TestDeleteEntity_NotFound(t *testing.T) {
	s := newTestStore(t, 4)
	err := s.DeleteEntity(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, cerrors.CategoryNotFound, cerrors.GetCategory(err))
}

func TestCreateRelation_MultipleTypesBetweenSamePairAllowed(t *testing.T) {
	s := newTestStore(t, 4)
	ctx := context.Background()

	alice, _ := s.CreateEntity(ctx, &Entity{Name: "Alice", EntityType: "person"})
	bob, _ := s.CreateEntity(ctx, &Entity{Name: "Bob", EntityType: "person"})

	_, err := s.CreateRelation(ctx, &Relation{FromEntityID: alice.ID, ToEntityID: bob.ID, RelationType: "knows"})
	require.NoError(t, err)
	_, err = s.CreateRelation(ctx, &Relation{FromEntityID: alice.ID, ToEntityID: bob.ID, RelationType: "manages"})
	require.NoError(t, err)

	out, err := s.GetOutgoingRelations(ctx, alice.ID)
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestCreateRelation_DuplicateSameTypeRejected(t *testing.T) {
	s := newTestStore(t, 4)
	ctx := context.Background()

	alice, _ := s.CreateEntity(ctx, &Entity{Name: "Alice", EntityType: "person"})
	bob, _ := s.CreateEntity(ctx, &Entity{Name: "Bob", EntityType: "person"})

	_, err := s.CreateRelation(ctx, &Relation{FromEntityID: alice.ID, ToEntityID: bob.ID, RelationType: "knows"})
	require.NoError(t, err)
	_, err = s.CreateRelation(ctx, &Relation{FromEntityID: alice.ID, ToEntityID: bob.ID, RelationType: "knows"})
	require.Error(t, err)
}

func TestDeleteRelationsBetween_WithAndWithoutType(t *testing.T) {
	s := newTestStore(t, 4)
	ctx := context.Background()

	alice, _ := s.CreateEntity(ctx, &Entity{Name: "Alice", EntityType: "person"})
	bob, _ := s.CreateEntity(ctx, &Entity{Name: "Bob", EntityType: "person"})

	_, err := s.CreateRelation(ctx, &Relation{FromEntityID: alice.ID, ToEntityID: bob.ID, RelationType: "knows"})
	require.NoError(t, err)
	_, err = s.CreateRelation(ctx, &Relation{FromEntityID: alice.ID, ToEntityID: bob.ID, RelationType: "manages"})
	require.NoError(t, err)

	n, err := s.DeleteRelationsBetween(ctx, alice.ID, bob.ID, "knows")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	remaining, err := s.GetOutgoingRelations(ctx, alice.ID)
	require.NoError(t, err)
	assert.Len(t, remaining, 1)

	n, err = s.DeleteRelationsBetween(ctx, alice.ID, bob.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestFindPath_DirectEdge(t *testing.T) {
	s := newTestStore(t, 4)
	ctx := context.Background()

	alice, _ := s.CreateEntity(ctx, &Entity{Name: "Alice", EntityType: "person"})
	bob, _ := s.CreateEntity(ctx, &Entity{Name: "Bob", EntityType: "person"})
	_, err := s.CreateRelation(ctx, &Relation{FromEntityID: alice.ID, ToEntityID: bob.ID, RelationType: "knows"})
	require.NoError(t, err)

	path, err := s.FindPath(ctx, alice.ID, bob.ID, 4)
	require.NoError(t, err)
	require.Len(t, path, 2)
	assert.Equal(t, alice.ID, path[0].ID)
	assert.Equal(t, bob.ID, path[1].ID)
}

func TestFindPath_MultiHop(t *testing.T) {
	s := newTestStore(t, 4)
	ctx := context.Background()

	a, _ := s.CreateEntity(ctx, &Entity{Name: "A", EntityType: "node"})
	b, _ := s.CreateEntity(ctx, &Entity{Name: "B", EntityType: "node"})
	c, _ := s.CreateEntity(ctx, &Entity{Name: "C", EntityType: "node"})

	_, err := s.CreateRelation(ctx, &Relation{FromEntityID: a.ID, ToEntityID: b.ID, RelationType: "next"})
	require.NoError(t, err)
	_, err = s.CreateRelation(ctx, &Relation{FromEntityID: b.ID, ToEntityID: c.ID, RelationType: "next"})
	require.NoError(t, err)

	path, err := s.FindPath(ctx, a.ID, c.ID, 4)
	require.NoError(t, err)
	require.Len(t, path, 3)
	assert.Equal(t, []string{a.ID, b.ID, c.ID}, []string{path[0].ID, path[1].ID, path[2].ID})
}

func TestFindPath_NoPath(t *testing.T) {
	s := newTestStore(t, 4)
	ctx := context.Background()

	a, _ := s.CreateEntity(ctx, &Entity{Name: "A", EntityType: "node"})
	b, _ := s.CreateEntity(ctx, &Entity{Name: "B", EntityType: "node"})

	_, err := s.FindPath(ctx, a.ID, b.ID, 4)
	require.Error(t, err)
	assert.Equal(t, cerrors.CategoryNotFound, cerrors.GetCategory(err))
}

func TestFindPath_MaxDepthExceeded(t *testing.T) {
	s := newTestStore(t, 4)
	ctx := context.Background()

	a, _ := s.CreateEntity(ctx, &Entity{Name: "A", EntityType: "node"})
	b, _ := s.CreateEntity(ctx, &Entity{Name: "B", EntityType: "node"})
	c, _ := s.CreateEntity(ctx, &Entity{Name: "C", EntityType: "node"})

	_, err := s.CreateRelation(ctx, &Relation{FromEntityID: a.ID, ToEntityID: b.ID, RelationType: "next"})
	require.NoError(t, err)
	_, err = s.CreateRelation(ctx, &Relation{FromEntityID: b.ID, ToEntityID: c.ID, RelationType: "next"})
	require.NoError(t, err)

	_, err = s.FindPath(ctx, a.ID, c.ID, 1)
	require.Error(t, err)
}
