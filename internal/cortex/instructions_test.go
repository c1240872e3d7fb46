package cortex

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeInstructionFile(t *testing.T, dir, name, applyTo, content string) {
	t.Helper()
	body := "---\ndescription: \"Test instruction for " + name + "\"\napplyTo: \"" + applyTo + "\"\n---\n\n" + content + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".instructions.md"), []byte(body), 0o644))
}

func TestInstructionsManager_LoadFromDirectory(t *testing.T) {
	dir := t.TempDir()
	writeInstructionFile(t, dir, "global", "**", "Global content")
	writeInstructionFile(t, dir, "rust", "**/*.go", "Go rules")

	m := NewInstructionsManager()
	count, err := m.LoadFromDirectory(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, 2, m.Count())
}

func TestInstructionsManager_ForFileMatchesGlob(t *testing.T) {
	dir := t.TempDir()
	writeInstructionFile(t, dir, "global", "**", "Global")
	writeInstructionFile(t, dir, "gofiles", "**/*.go", "Go rules")

	m := NewInstructionsManager()
	_, err := m.LoadFromDirectory(dir)
	require.NoError(t, err)

	matches := m.ForFile("internal/cortex/engine.go")
	names := map[string]bool{}
	for _, instr := range matches {
		names[instr.Name] = true
	}
	assert.True(t, names["global"])
	assert.True(t, names["gofiles"])
}

func TestInstructionsManager_ToPromptContext(t *testing.T) {
	dir := t.TempDir()
	writeInstructionFile(t, dir, "workflow", "**", "Follow the ACID workflow")

	m := NewInstructionsManager()
	_, err := m.LoadFromDirectory(dir)
	require.NoError(t, err)

	ctx := m.ToPromptContext("")
	assert.Contains(t, ctx, "Instructions")
	assert.Contains(t, ctx, "workflow")
	assert.Contains(t, ctx, "Follow the ACID workflow")
}

func TestInstructionsManager_UserInstructionsTakePriority(t *testing.T) {
	dir := t.TempDir()
	writeInstructionFile(t, dir, "workflow", "**", "File-based guidance")

	m := NewInstructionsManager()
	_, err := m.LoadFromDirectory(dir)
	require.NoError(t, err)

	m.AddUserInstruction(NewUserInstruction("u1", "language", "Always reply in French"))

	ctx := m.ToPromptContext("")
	assert.Contains(t, ctx, "User Preferences")
	assert.Contains(t, ctx, "Always reply in French")

	userIdx := indexOf(ctx, "User Preferences")
	fileIdx := indexOf(ctx, "## Instructions")
	assert.Less(t, userIdx, fileIdx)
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

func TestInstructionsManager_AddUserInstructionsFiltersInactive(t *testing.T) {
	m := NewInstructionsManager()
	inactive := NewUserInstruction("u1", "k", "v")
	inactive.Active = false
	m.AddUserInstructions([]UserInstruction{inactive})

	assert.Equal(t, 0, m.Count())
}

func TestInstructionsManager_ParseFrontmatter(t *testing.T) {
	content := "---\ndescription: \"Test\"\napplyTo: \"**/*.go\"\n---\n\n# Content here\n"
	fm, body := parseFrontmatter(content)
	assert.Equal(t, "Test", fm["description"])
	assert.Equal(t, "**/*.go", fm["applyTo"])
	assert.Contains(t, body, "Content here")
}

func TestInstructionsManager_ReloadPreservesUserInstructions(t *testing.T) {
	dir := t.TempDir()
	writeInstructionFile(t, dir, "a", "**", "A")

	m := NewInstructionsManager()
	_, err := m.LoadFromDirectory(dir)
	require.NoError(t, err)
	m.AddUserInstruction(NewUserInstruction("u1", "pref", "value"))

	writeInstructionFile(t, dir, "b", "**", "B")
	_, err = m.Reload()
	require.NoError(t, err)

	assert.Equal(t, 1, m.Stats().FromUser)
	assert.Equal(t, 2, m.Stats().FromFiles)
}
