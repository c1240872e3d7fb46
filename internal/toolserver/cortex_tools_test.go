package toolserver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whytcard/cortex/internal/cortex"
)

func TestCortexProcess(t *testing.T) {
	srv := newTestServer(t)

	_, out, err := srv.handleCortexProcess(context.Background(), nil, CortexProcessInput{Query: "generate a sort function"})
	require.NoError(t, err)
	require.Nil(t, out.Error)
	assert.Equal(t, "create", out.Intent)
}

func TestCortexFeedback(t *testing.T) {
	srv := newTestServer(t)

	_, out, err := srv.handleCortexFeedback(context.Background(), nil, CortexFeedbackInput{RuleID: "rule-001", Success: true})
	require.NoError(t, err)
	require.Nil(t, out.Error)
	assert.InDelta(t, 1.0, out.Confidence, 0.001)
}

func TestCortexStats(t *testing.T) {
	srv := newTestServer(t)

	_, out, err := srv.handleCortexStats(context.Background(), nil, CortexStatsInput{})
	require.NoError(t, err)
	require.Nil(t, out.Error)
	assert.Equal(t, 2, out.TotalRules)
}

func TestCortexCleanup(t *testing.T) {
	srv := newTestServer(t)

	_, out, err := srv.handleCortexCleanup(context.Background(), nil, CortexCleanupInput{RetentionDays: 30})
	require.NoError(t, err)
	require.Nil(t, out.Error)
	assert.Equal(t, 0, out.Deleted)
}

func TestCortexInstructions(t *testing.T) {
	srv := newTestServer(t)

	srv.engine.AddUserInstruction(cortex.NewUserInstruction("default", "language", "respond in concise bullet points"))

	_, out, err := srv.handleCortexInstructions(context.Background(), nil, CortexInstructionsInput{})
	require.NoError(t, err)
	assert.Equal(t, 1, out.FromUser)
	assert.Contains(t, out.Prompt, "respond in concise bullet points")
}

func TestCortexExecuteDispatchesToRegisteredTool(t *testing.T) {
	srv := newTestServer(t)

	_, out, err := srv.handleCortexExecute(context.Background(), nil, CortexExecuteInput{
		Tool:   "memory_store",
		Params: map[string]any{"content": "executed directly"},
	})
	require.NoError(t, err)
	require.Nil(t, out.Error)
	require.NotNil(t, out.Output)
}

func TestCortexExecuteUnknownToolFails(t *testing.T) {
	srv := newTestServer(t)

	_, out, err := srv.handleCortexExecute(context.Background(), nil, CortexExecuteInput{Tool: "nonexistent_tool"})
	require.NoError(t, err)
	require.NotNil(t, out.Error)
}
