package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Helper functions for JSON marshaling tests
func jsonMarshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func jsonUnmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// Edge Case Tests - These test scenarios that could cause silent failures
// or unexpected behavior.

// =============================================================================
// FindProjectRoot Edge Cases
// =============================================================================

func TestFindProjectRoot_NonExistentDir_ReturnsRootOrError(t *testing.T) {
	nonExistent := "/nonexistent/path/that/does/not/exist"

	root, err := FindProjectRoot(nonExistent)

	// filepath.Abs succeeds even for non-existent paths, so this always
	// returns the absolute path rather than erroring.
	if err != nil {
		assert.Error(t, err)
	} else {
		assert.NotEmpty(t, root)
	}
}

func TestFindProjectRoot_DeepNesting_FindsGitRoot(t *testing.T) {
	tmpDir := t.TempDir()
	gitDir := filepath.Join(tmpDir, ".git")
	deepNested := filepath.Join(tmpDir, "a", "b", "c", "d", "e", "f", "g", "h")
	require.NoError(t, os.Mkdir(gitDir, 0o755))
	require.NoError(t, os.MkdirAll(deepNested, 0o755))

	root, err := FindProjectRoot(deepNested)

	require.NoError(t, err)
	assert.Equal(t, tmpDir, root)
}

func TestFindProjectRoot_RelativePath_ResolvesToAbsolute(t *testing.T) {
	tmpDir := t.TempDir()
	gitDir := filepath.Join(tmpDir, ".git")
	require.NoError(t, os.Mkdir(gitDir, 0o755))

	oldWd, _ := os.Getwd()
	defer func() { _ = os.Chdir(oldWd) }()
	require.NoError(t, os.Chdir(tmpDir))

	root, err := FindProjectRoot(".")

	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(root), "Root should be absolute path")
	expectedRoot, _ := filepath.EvalSymlinks(tmpDir)
	actualRoot, _ := filepath.EvalSymlinks(root)
	assert.Equal(t, expectedRoot, actualRoot)
}

func TestFindProjectRoot_EmptyString_UsesCurrentDir(t *testing.T) {
	tmpDir := t.TempDir()
	gitDir := filepath.Join(tmpDir, ".git")
	require.NoError(t, os.Mkdir(gitDir, 0o755))

	oldWd, _ := os.Getwd()
	defer func() { _ = os.Chdir(oldWd) }()
	require.NoError(t, os.Chdir(tmpDir))

	root, err := FindProjectRoot("")

	require.NoError(t, err)
	expectedRoot, _ := filepath.EvalSymlinks(tmpDir)
	actualRoot, _ := filepath.EvalSymlinks(root)
	assert.Equal(t, expectedRoot, actualRoot)
}

// =============================================================================
// Config Merge Edge Cases
// =============================================================================

// TestLoad_ZeroValuesNotMerged tests that explicit zero values in a project
// config don't override defaults (a field can't be reset to zero via YAML).
func TestLoad_ZeroValuesNotMerged(t *testing.T) {
	tmpDir := t.TempDir()
	configContent := `
version: 1
chunking:
  min_chunk_size: 0
storage:
  hnsw:
    m: 0
embeddings:
  provider: static
`
	err := os.WriteFile(filepath.Join(tmpDir, ".whytcard.yaml"), []byte(configContent), 0o644)
	require.NoError(t, err)

	cfg, err := Load(tmpDir)

	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Chunking.MinChunkSize, "Zero should not override default min_chunk_size")
	assert.Equal(t, 16, cfg.Storage.HNSW.M, "Zero should not override default hnsw.m")
}

// TestLoad_NegativeChunkSize_Validated tests that a non-positive chunk size
// is rejected by validation.
func TestLoad_NegativeChunkSize_Validated(t *testing.T) {
	tmpDir := t.TempDir()
	configContent := `
version: 1
chunking:
  chunk_size: -10
`
	err := os.WriteFile(filepath.Join(tmpDir, ".whytcard.yaml"), []byte(configContent), 0o644)
	require.NoError(t, err)

	cfg, err := Load(tmpDir)

	require.Error(t, err)
	require.Nil(t, cfg)
}

// TestValidate_OverlapEqualsSize_Rejected documents that chunk_overlap must
// stay strictly below chunk_size (equal would make the fixed-size stepper
// loop forever, per the chunker's invariant).
func TestValidate_OverlapEqualsSize_Rejected(t *testing.T) {
	cfg := NewConfig()
	cfg.Chunking.ChunkSize = 100
	cfg.Chunking.ChunkOverlap = 100

	err := cfg.Validate()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunk_overlap must be less than chunk_size")
}

// =============================================================================
// Config File Permission Edge Cases
// =============================================================================

func TestLoad_UnreadableConfigFile_ReturnsError(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("Test requires non-root user")
	}

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, ".whytcard.yaml")
	err := os.WriteFile(configPath, []byte("version: 1"), 0o000)
	require.NoError(t, err)
	defer func() { _ = os.Chmod(configPath, 0o644) }()

	cfg, err := Load(tmpDir)

	require.Error(t, err, "Load should fail for unreadable config file")
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "read", "Error should mention read failure")
}

// =============================================================================
// Config JSON Marshaling Edge Cases
// =============================================================================

// TestConfig_JSON_RoundTrip tests that config can be marshaled to JSON
// and back without data loss.
func TestConfig_JSON_RoundTrip(t *testing.T) {
	cfg := NewConfig()
	cfg.Chunking.ChunkSize = 2000
	cfg.Chunking.ChunkOverlap = 100
	cfg.Storage.DistanceMetric = "euclidean"
	cfg.Embeddings.Provider = "static"

	data, err := jsonMarshal(cfg)
	require.NoError(t, err)

	var parsed Config
	err = jsonUnmarshal(data, &parsed)
	require.NoError(t, err)

	assert.Equal(t, 2000, parsed.Chunking.ChunkSize)
	assert.Equal(t, 100, parsed.Chunking.ChunkOverlap)
	assert.Equal(t, "euclidean", parsed.Storage.DistanceMetric)
	assert.Equal(t, "static", parsed.Embeddings.Provider)
}

func TestConfig_UnmarshalJSON_InvalidJSON_ReturnsError(t *testing.T) {
	invalidJSON := []byte("{invalid json")

	var cfg Config
	err := jsonUnmarshal(invalidJSON, &cfg)

	require.Error(t, err, "Unmarshal should fail for invalid JSON")
}

// =============================================================================
// DataRoot Edge Cases
// =============================================================================

// TestNewConfig_DataRoot_UsesHomeDir tests that the data root defaults to a
// path under the home directory.
func TestNewConfig_DataRoot_UsesHomeDir(t *testing.T) {
	cfg := NewConfig()

	assert.NotEmpty(t, cfg.DataRoot)
	assert.Contains(t, cfg.DataRoot, ".whytcard")
}
