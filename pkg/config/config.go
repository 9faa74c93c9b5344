// Package config loads the closed configuration surface for the core:
// service connection, embedding, batching, retry, rate-limiting, and
// traversal options. It follows the reference implementation's pattern of a
// nested YAML-tagged struct tree loaded from a file and then overridden by
// environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration tree.
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Indexing  IndexingConfig  `yaml:"indexing"`
	Search    SearchConfig    `yaml:"search"`
	Filter    FilterConfig    `yaml:"filter"`
	Cache     CacheConfig     `yaml:"cache"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServiceConfig names the managed search service connection, per spec.md §6.
type ServiceConfig struct {
	Endpoint               string  `yaml:"endpoint"`
	APIKey                 string  `yaml:"api_key"`
	APIVersion             string  `yaml:"api_version"`
	IndexName              string  `yaml:"index_name"`
	RequestTimeoutSeconds  int     `yaml:"request_timeout_seconds"`
	RetryAttempts          int     `yaml:"retry_attempts"`
	RetryDelaySeconds       float64 `yaml:"retry_delay_seconds"`
	RateLimitDelaySeconds  float64 `yaml:"rate_limit_delay_seconds"`
	MaxConcurrentRequests  int     `yaml:"max_concurrent_requests"`
}

type EmbeddingConfig struct {
	Provider      string  `yaml:"provider"` // "azure_openai" | "null"
	Dimensions    int     `yaml:"dimensions"`
	Endpoint      string  `yaml:"endpoint"`
	APIKey        string  `yaml:"api_key"`
	Deployment    string  `yaml:"deployment"`
	CacheTTLSeconds int   `yaml:"cache_ttl_seconds"`
	CacheSize     int     `yaml:"cache_size"`
	CodeMaxChars  int     `yaml:"code_max_chars"`
}

type IndexingConfig struct {
	BatchSize                  int `yaml:"batch_size"`
	ParallelWorkers            int `yaml:"parallel_workers"`
	MaxFileSizeMB              int `yaml:"max_file_size_mb"`
	MaxChunkSizeBytes          int `yaml:"max_chunk_size_bytes"`
	EnableHierarchicalChunking bool `yaml:"enable_hierarchical_chunking"`
}

type SearchConfig struct {
	SemanticWeight    float64 `yaml:"semantic_weight"`
	KeywordWeight     float64 `yaml:"keyword_weight"`
	VectorWeight      float64 `yaml:"vector_weight"`
	ExactBoost        float64 `yaml:"exact_boost"`
	DeadlineMS        int     `yaml:"deadline_ms"`
	SemanticConfigName string  `yaml:"semantic_configuration_name"`
}

// FilterConfig carries the general path-exclusion rule that replaces the
// reference implementation's hard-coded per-repository carve-out.
type FilterConfig struct {
	RespectGitignore   bool     `yaml:"respect_gitignore"`
	DefaultExcludes    []string `yaml:"default_excludes"`
	PathExclusions     []string `yaml:"path_exclusions"`
	AllowExternalRoots bool     `yaml:"allow_external_roots"`
}

type CacheConfig struct {
	Directory  string `yaml:"directory"`
	HashesFile string `yaml:"hashes_file"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	Enabled    bool   `yaml:"enabled"`
	Directory  string `yaml:"directory"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Load reads configuration from a file (if present) and applies environment
// overrides, mirroring the reference implementation's Load().
func Load() (*Config, error) {
	cfg := DefaultConfig()

	if path := getConfigPath(); path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	cfg.Cache.Directory = expandPath(cfg.Cache.Directory)

	return cfg, nil
}

// DefaultConfig returns the default configuration, matching the defaults
// named in original_source/enhanced_rag/azure_integration/config.py's
// AutomationConfig.from_env.
func DefaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			APIVersion:            "2025-05-01-preview",
			RequestTimeoutSeconds: 30,
			RetryAttempts:         3,
			RetryDelaySeconds:     1.0,
			RateLimitDelaySeconds: 0.5,
			MaxConcurrentRequests: 10,
		},
		Embedding: EmbeddingConfig{
			Provider:        "null",
			Dimensions:      1536,
			CacheTTLSeconds: 3600,
			CacheSize:       4096,
			CodeMaxChars:    6000,
		},
		Indexing: IndexingConfig{
			BatchSize:                  1000,
			ParallelWorkers:            runtime.NumCPU(),
			MaxFileSizeMB:              1,
			MaxChunkSizeBytes:          8000,
			EnableHierarchicalChunking: true,
		},
		Search: SearchConfig{
			SemanticWeight:     0.4,
			KeywordWeight:      0.2,
			VectorWeight:       0.4,
			ExactBoost:         0.35,
			DeadlineMS:         3000,
			SemanticConfigName: "semantic-config",
		},
		Filter: FilterConfig{
			RespectGitignore:   true,
			DefaultExcludes:    []string{".git", "node_modules", "__pycache__", "venv", ".venv", "dist", "build"},
			PathExclusions:     nil,
			AllowExternalRoots: false,
		},
		Cache: CacheConfig{
			Directory:  "~/.mcprag-sub001/cache",
			HashesFile: "file-hashes.json",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Enabled:    false,
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 14,
		},
	}
}

func getConfigPath() string {
	if path := os.Getenv("MCPRAG_CONFIG"); path != "" {
		return path
	}
	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml"
	}
	home, err := os.UserHomeDir()
	if err == nil {
		path := filepath.Join(home, ".mcprag-sub001", "config.yaml")
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides mirrors AzureSearchConfig.from_env / AutomationConfig.from_env
// in original_source/enhanced_rag/azure_integration/config.py: the real
// ACS_* variable names, not invented ones.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ACS_ENDPOINT"); v != "" {
		cfg.Service.Endpoint = v
	}
	if v := os.Getenv("ACS_ADMIN_KEY"); v != "" {
		cfg.Service.APIKey = v
	}
	if v := os.Getenv("ACS_API_VERSION"); v != "" {
		cfg.Service.APIVersion = v
	}
	if v := os.Getenv("ACS_INDEX_NAME"); v != "" {
		cfg.Service.IndexName = v
	}
	if v := os.Getenv("ACS_BATCH_SIZE"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Indexing.BatchSize)
	}
	if v := os.Getenv("ACS_RETRY_ATTEMPTS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Service.RetryAttempts)
	}
	if v := os.Getenv("ACS_RETRY_DELAY"); v != "" {
		fmt.Sscanf(v, "%f", &cfg.Service.RetryDelaySeconds)
	}
	if v := os.Getenv("ACS_RATE_LIMIT_DELAY"); v != "" {
		fmt.Sscanf(v, "%f", &cfg.Service.RateLimitDelaySeconds)
	}
}

func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
