package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the complete cortex runtime configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	DataRoot   string           `yaml:"data_root" json:"data_root"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Storage    StorageConfig    `yaml:"storage" json:"storage"`
	Chunking   ChunkingConfig   `yaml:"chunking" json:"chunking"`
	Cortex     CortexConfig     `yaml:"cortex" json:"cortex"`
	Server     ServerConfig     `yaml:"server" json:"server"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider selects the embedder backend ("static", "static-wide", or
	// empty for the provider's own default).
	Provider string `yaml:"provider" json:"provider"`
	// Dimensions is the engine-wide embedding width D. 0 lets the chosen
	// provider report its own dimension.
	Dimensions int `yaml:"dimensions" json:"dimensions"`
	// BatchSize bounds how many texts EmbedBatch processes per call.
	BatchSize int `yaml:"batch_size" json:"batch_size"`
	// CacheDisabled turns off the LRU query-embedding cache.
	CacheDisabled bool `yaml:"cache_disabled" json:"cache_disabled"`
}

// StorageConfig configures the storage engine's vector index.
type StorageConfig struct {
	// DistanceMetric is one of "cosine", "euclidean", "manhattan". Fixed at
	// store open; mismatched inserts/queries are rejected.
	DistanceMetric string `yaml:"distance_metric" json:"distance_metric"`
	// HNSW tunes the approximate nearest-neighbor index.
	HNSW HNSWConfig `yaml:"hnsw" json:"hnsw"`
}

// HNSWConfig tunes the coder/hnsw index parameters.
type HNSWConfig struct {
	// M is the max number of connections per node.
	M int `yaml:"m" json:"m"`
	// EfConstruction is passed to the vector index config; the HNSW index
	// does not apply it when building the graph.
	EfConstruction int `yaml:"ef_construction" json:"ef_construction"`
	// EfSearch controls query-time recall/speed tradeoff.
	EfSearch int `yaml:"ef_search" json:"ef_search"`
}

// ChunkingConfig configures the RAG pipeline's chunker.
type ChunkingConfig struct {
	// Strategy is one of "semantic", "fixed", "code".
	Strategy     string `yaml:"strategy" json:"strategy"`
	ChunkSize    int    `yaml:"chunk_size" json:"chunk_size"`
	ChunkOverlap int    `yaml:"chunk_overlap" json:"chunk_overlap"`
	MinChunkSize int    `yaml:"min_chunk_size" json:"min_chunk_size"`
}

// CortexConfig configures the cognitive engine's execution limits.
type CortexConfig struct {
	// MaxRetries bounds per-step OODA retries.
	MaxRetries int `yaml:"max_retries" json:"max_retries"`
	// RoutingConfidenceThreshold is loaded, merged and validated with the
	// other settings (default 0.5). Procedural routing and rule lookup do
	// not read it; they apply their own fixed 0.5 minimum.
	RoutingConfidenceThreshold float64 `yaml:"routing_confidence_threshold" json:"routing_confidence_threshold"`
	// NeedsResearchMinQueryLen is the query-length threshold above which
	// Create/Debug/Explain intents set needs_research.
	NeedsResearchMinQueryLen int `yaml:"needs_research_min_query_len" json:"needs_research_min_query_len"`
	// AutoLearn lets reflection invoke update_confidence without an
	// explicit caller-provided feedback call.
	AutoLearn bool `yaml:"auto_learn" json:"auto_learn"`
}

// ServerConfig configures the tool-dispatch server.
type ServerConfig struct {
	Transport string `yaml:"transport" json:"transport"`
	LogLevel  string `yaml:"log_level" json:"log_level"`
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version:  1,
		DataRoot: defaultDataRoot(),
		Embeddings: EmbeddingsConfig{
			Provider:      "",
			Dimensions:    0,
			BatchSize:     32,
			CacheDisabled: false,
		},
		Storage: StorageConfig{
			DistanceMetric: "cosine",
			HNSW: HNSWConfig{
				M:              16,
				EfConstruction: 200,
				EfSearch:       64,
			},
		},
		Chunking: ChunkingConfig{
			Strategy:     "semantic",
			ChunkSize:    1500,
			ChunkOverlap: 200,
			MinChunkSize: 10,
		},
		Cortex: CortexConfig{
			MaxRetries:                 2,
			RoutingConfidenceThreshold: 0.5,
			NeedsResearchMinQueryLen:   20,
			AutoLearn:                  true,
		},
		Server: ServerConfig{
			Transport: "stdio",
			LogLevel:  "info",
		},
	}
}

// defaultDataRoot returns the default directory for the sqlite database,
// procedural memory files, and logs.
func defaultDataRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".whytcard")
	}
	return filepath.Join(home, ".whytcard")
}

// GetUserConfigPath returns the path to the user/global configuration file.
// It follows XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/whytcard/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/whytcard/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "whytcard", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "whytcard", "config.yaml")
	}
	return filepath.Join(home, ".config", "whytcard", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// loadUserConfig loads the user/global configuration file if it exists.
// Returns nil config and nil error if the file doesn't exist (that's OK).
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()

	if !fileExists(configPath) {
		return nil, nil
	}

	cfg := NewConfig()
	if err := cfg.loadYAML(configPath); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}

	return cfg, nil
}

// Load loads configuration from the specified directory.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/whytcard/config.yaml)
//  3. Project config (.whytcard.yaml in dir)
//  4. Environment variables (WHYTCARD_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile attempts to load configuration from .whytcard.yaml or .whytcard.yml.
func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ".whytcard.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return c.loadYAML(yamlPath)
	}

	ymlPath := filepath.Join(dir, ".whytcard.yml")
	if _, err := os.Stat(ymlPath); err == nil {
		return c.loadYAML(ymlPath)
	}

	return nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}
	if other.DataRoot != "" {
		c.DataRoot = other.DataRoot
	}

	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = other.Embeddings.BatchSize
	}
	if other.Embeddings.CacheDisabled {
		c.Embeddings.CacheDisabled = other.Embeddings.CacheDisabled
	}

	if other.Storage.DistanceMetric != "" {
		c.Storage.DistanceMetric = other.Storage.DistanceMetric
	}
	if other.Storage.HNSW.M != 0 {
		c.Storage.HNSW.M = other.Storage.HNSW.M
	}
	if other.Storage.HNSW.EfConstruction != 0 {
		c.Storage.HNSW.EfConstruction = other.Storage.HNSW.EfConstruction
	}
	if other.Storage.HNSW.EfSearch != 0 {
		c.Storage.HNSW.EfSearch = other.Storage.HNSW.EfSearch
	}

	if other.Chunking.Strategy != "" {
		c.Chunking.Strategy = other.Chunking.Strategy
	}
	if other.Chunking.ChunkSize != 0 {
		c.Chunking.ChunkSize = other.Chunking.ChunkSize
	}
	if other.Chunking.ChunkOverlap != 0 {
		c.Chunking.ChunkOverlap = other.Chunking.ChunkOverlap
	}
	if other.Chunking.MinChunkSize != 0 {
		c.Chunking.MinChunkSize = other.Chunking.MinChunkSize
	}

	if other.Cortex.MaxRetries != 0 {
		c.Cortex.MaxRetries = other.Cortex.MaxRetries
	}
	if other.Cortex.RoutingConfidenceThreshold != 0 {
		c.Cortex.RoutingConfidenceThreshold = other.Cortex.RoutingConfidenceThreshold
	}
	if other.Cortex.NeedsResearchMinQueryLen != 0 {
		c.Cortex.NeedsResearchMinQueryLen = other.Cortex.NeedsResearchMinQueryLen
	}
	if other.Server.Transport != "" {
		c.Server.Transport = other.Server.Transport
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
}

// applyEnvOverrides applies WHYTCARD_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("WHYTCARD_DATA_ROOT"); v != "" {
		c.DataRoot = v
	}
	if v := os.Getenv("WHYTCARD_EMBEDDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("WHYTCARD_EMBED_DIMENSIONS"); v != "" {
		if d, err := strconv.Atoi(v); err == nil && d > 0 {
			c.Embeddings.Dimensions = d
		}
	}
	if v := os.Getenv("WHYTCARD_EMBED_CACHE_DISABLED"); v != "" {
		lv := strings.ToLower(v)
		c.Embeddings.CacheDisabled = lv == "true" || lv == "1" || lv == "on"
	}
	if v := os.Getenv("WHYTCARD_DISTANCE_METRIC"); v != "" {
		c.Storage.DistanceMetric = v
	}
	if v := os.Getenv("WHYTCARD_CHUNK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Chunking.ChunkSize = n
		}
	}
	if v := os.Getenv("WHYTCARD_CHUNK_OVERLAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Chunking.ChunkOverlap = n
		}
	}
	if v := os.Getenv("WHYTCARD_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Cortex.MaxRetries = n
		}
	}
	if v := os.Getenv("WHYTCARD_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("WHYTCARD_TRANSPORT"); v != "" {
		c.Server.Transport = v
	}
}

// FindProjectRoot finds the workspace root by walking up from startDir
// looking for .git or a .whytcard.yaml/.yml file.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	currentDir := absDir
	for {
		if dirExists(filepath.Join(currentDir, ".git")) {
			return currentDir, nil
		}
		if fileExists(filepath.Join(currentDir, ".whytcard.yaml")) ||
			fileExists(filepath.Join(currentDir, ".whytcard.yml")) {
			return currentDir, nil
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			return absDir, nil
		}
		currentDir = parentDir
	}
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// dirExists checks if a directory exists.
func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Chunking.ChunkSize <= 0 {
		return fmt.Errorf("chunking.chunk_size must be positive, got %d", c.Chunking.ChunkSize)
	}
	if c.Chunking.ChunkOverlap < 0 {
		return fmt.Errorf("chunking.chunk_overlap must be non-negative, got %d", c.Chunking.ChunkOverlap)
	}
	if c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize {
		return fmt.Errorf("chunking.chunk_overlap must be less than chunk_size, got overlap=%d size=%d",
			c.Chunking.ChunkOverlap, c.Chunking.ChunkSize)
	}

	validStrategies := map[string]bool{"semantic": true, "fixed": true, "code": true}
	if !validStrategies[strings.ToLower(c.Chunking.Strategy)] {
		return fmt.Errorf("chunking.strategy must be 'semantic', 'fixed', or 'code', got %s", c.Chunking.Strategy)
	}

	validMetrics := map[string]bool{"cosine": true, "euclidean": true, "manhattan": true}
	if !validMetrics[strings.ToLower(c.Storage.DistanceMetric)] {
		return fmt.Errorf("storage.distance_metric must be 'cosine', 'euclidean', or 'manhattan', got %s", c.Storage.DistanceMetric)
	}

	if c.Cortex.RoutingConfidenceThreshold < 0 || c.Cortex.RoutingConfidenceThreshold > 1 {
		return fmt.Errorf("cortex.routing_confidence_threshold must be between 0 and 1, got %f", c.Cortex.RoutingConfidenceThreshold)
	}
	if c.Cortex.MaxRetries < 0 {
		return fmt.Errorf("cortex.max_retries must be non-negative, got %d", c.Cortex.MaxRetries)
	}

	validTransports := map[string]bool{"stdio": true}
	if !validTransports[strings.ToLower(c.Server.Transport)] {
		return fmt.Errorf("server.transport must be 'stdio', got %s", c.Server.Transport)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadUserConfig loads the user configuration file.
// Returns nil config and nil error if the file doesn't exist.
func LoadUserConfig() (*Config, error) {
	return loadUserConfig()
}

// MergeNewDefaults adds new default fields while preserving existing values.
// Returns a list of field names that were added with their default values.
func (c *Config) MergeNewDefaults() []string {
	defaults := NewConfig()
	var added []string

	if c.Storage.HNSW.M == 0 {
		c.Storage.HNSW.M = defaults.Storage.HNSW.M
		added = append(added, "storage.hnsw.m")
	}
	if c.Storage.HNSW.EfConstruction == 0 {
		c.Storage.HNSW.EfConstruction = defaults.Storage.HNSW.EfConstruction
		added = append(added, "storage.hnsw.ef_construction")
	}
	if c.Storage.HNSW.EfSearch == 0 {
		c.Storage.HNSW.EfSearch = defaults.Storage.HNSW.EfSearch
		added = append(added, "storage.hnsw.ef_search")
	}
	if c.Cortex.RoutingConfidenceThreshold == 0 {
		c.Cortex.RoutingConfidenceThreshold = defaults.Cortex.RoutingConfidenceThreshold
		added = append(added, "cortex.routing_confidence_threshold")
	}
	if c.Embeddings.BatchSize == 0 {
		c.Embeddings.BatchSize = defaults.Embeddings.BatchSize
		added = append(added, "embeddings.batch_size")
	}

	return added
}
