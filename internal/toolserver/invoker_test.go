package toolserver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whytcard/cortex/internal/cortex"
)

func TestInvokerDispatchesActionToolByName(t *testing.T) {
	srv := newTestServer(t)
	inv := NewInvoker(srv)

	step := cortex.NewExecutionStep("store a fact", cortex.ActionTool)
	step.Tool = "memory_store"
	step.Params = map[string]any{"content": "dispatched through the invoker"}

	out, err := inv.InvokeStep(context.Background(), step)
	require.NoError(t, err)

	stored, ok := out.(MemoryStoreOutput)
	require.True(t, ok)
	assert.Empty(t, stored.Error)
	assert.NotEmpty(t, stored.ID)
}

func TestInvokerActionToolUnknownNameFails(t *testing.T) {
	srv := newTestServer(t)
	inv := NewInvoker(srv)

	step := cortex.NewExecutionStep("do something", cortex.ActionTool)
	step.Tool = "does_not_exist"

	_, err := inv.InvokeStep(context.Background(), step)
	require.Error(t, err)
}

func TestInvokerActionSearchRoutesToMemorySearch(t *testing.T) {
	srv := newTestServer(t)
	inv := NewInvoker(srv)

	_, _, err := srv.handleMemoryStore(context.Background(), nil, MemoryStoreInput{Content: "token bucket rate limiting"})
	require.NoError(t, err)

	step := cortex.NewExecutionStep("search knowledge", cortex.ActionSearch).WithParam("query", "token bucket rate limiting")

	out, err := inv.InvokeStep(context.Background(), step)
	require.NoError(t, err)

	results, ok := out.(MemorySearchOutput)
	require.True(t, ok)
	assert.NotEmpty(t, results.Results)
}

func TestInvokerActionSearchFallsBackToLabels(t *testing.T) {
	srv := newTestServer(t)
	inv := NewInvoker(srv)

	step := cortex.NewExecutionStep("search knowledge", cortex.ActionSearch)
	step.Params = map[string]any{"labels": []any{"auth", "token"}}

	out, err := inv.InvokeStep(context.Background(), step)
	require.NoError(t, err)

	_, ok := out.(MemorySearchOutput)
	require.True(t, ok)
}

func TestInvokerOtherActionsAreAcknowledged(t *testing.T) {
	srv := newTestServer(t)
	inv := NewInvoker(srv)

	step := cortex.NewExecutionStep("validate result", cortex.ActionValidate)

	out, err := inv.InvokeStep(context.Background(), step)
	require.NoError(t, err)

	ack, ok := out.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "validate result", ack["step"])
	assert.Equal(t, "validate", ack["action"])
	assert.Equal(t, "acknowledged", ack["status"])
}
