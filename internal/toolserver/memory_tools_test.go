package toolserver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreAndSearch(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	_, storeOut, err := srv.handleMemoryStore(ctx, nil, MemoryStoreInput{
		Content:  "the deploy pipeline retries three times before paging",
		Tags:     []string{"ops"},
		Category: "fact",
	})
	require.NoError(t, err)
	require.Nil(t, storeOut.Error)
	require.NotEmpty(t, storeOut.ID)

	_, searchOut, err := srv.handleMemorySearch(ctx, nil, MemorySearchInput{Query: "deploy pipeline retries", Limit: 5})
	require.NoError(t, err)
	require.Nil(t, searchOut.Error)
	require.NotEmpty(t, searchOut.Results)
}

func TestMemoryGetAndDelete(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	_, storeOut, err := srv.handleMemoryStore(ctx, nil, MemoryStoreInput{Content: "fact to delete"})
	require.NoError(t, err)

	_, getOut, err := srv.handleMemoryGet(ctx, nil, MemoryGetInput{ID: storeOut.ID})
	require.NoError(t, err)
	assert.Equal(t, "fact to delete", getOut.Content)

	_, delOut, err := srv.handleMemoryDelete(ctx, nil, MemoryDeleteInput{ID: storeOut.ID})
	require.NoError(t, err)
	assert.True(t, delOut.Deleted)
}

func TestMemoryList(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	_, _, err := srv.handleMemoryStore(ctx, nil, MemoryStoreInput{Content: "listed fact one", Tags: []string{"alpha"}})
	require.NoError(t, err)
	_, _, err = srv.handleMemoryStore(ctx, nil, MemoryStoreInput{Content: "listed fact two", Tags: []string{"beta"}})
	require.NoError(t, err)

	_, listOut, err := srv.handleMemoryList(ctx, nil, MemoryListInput{})
	require.NoError(t, err)
	assert.Len(t, listOut.Documents, 2)
}

func TestBatchStoreReportsPerItemErrors(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	_, out, err := srv.handleBatchStore(ctx, nil, BatchStoreInput{Items: []MemoryStoreInput{
		{Content: "batch item one"},
		{Content: "batch item two"},
	}})
	require.NoError(t, err)
	assert.Len(t, out.IDs, 2)
	assert.Empty(t, out.Errors)
}

func TestHybridSearchMergesVectorAndKeywordHits(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	_, _, err := srv.handleMemoryStore(ctx, nil, MemoryStoreInput{Content: "hybrid search combines vector and keyword passes"})
	require.NoError(t, err)

	_, out, err := srv.handleHybridSearch(ctx, nil, HybridSearchInput{Query: "hybrid search", Limit: 5})
	require.NoError(t, err)
	require.Nil(t, out.Error)
	assert.NotEmpty(t, out.Results)
}

func TestGetContextReturnsSessionAndEpisodes(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	sessionID, err := srv.engine.StartSession(ctx, "/workspace")
	require.NoError(t, err)

	_, err = srv.memory.Episodic.RecordEpisode(ctx, sessionID, "observation", "noted something", nil)
	require.NoError(t, err)

	_, out, err := srv.handleGetContext(ctx, nil, GetContextInput{})
	require.NoError(t, err)
	assert.Equal(t, sessionID, out.SessionID)
	assert.Equal(t, "/workspace", out.Workspace)
	assert.Len(t, out.RecentEpisodes, 1)
}

func TestManageTagsAddsAndRemoves(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	_, storeOut, err := srv.handleMemoryStore(ctx, nil, MemoryStoreInput{Content: "tag target", Tags: []string{"keep"}})
	require.NoError(t, err)

	_, out, err := srv.handleManageTags(ctx, nil, ManageTagsInput{ID: storeOut.ID, Add: []string{"new"}, Remove: []string{"keep"}})
	require.NoError(t, err)
	require.Nil(t, out.Error)
	assert.Equal(t, []string{"new"}, out.Tags)
}
