// Package config provides configuration loading and structs for the Sensei server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug        bool               `yaml:"debug"`
	Server       ServerConfig       `yaml:"server"`
	Storage      StorageConfig      `yaml:"storage"`
	Conversation ConversationConfig `yaml:"conversation"`
	Knowledge    KnowledgeConfig    `yaml:"knowledge"`
	Backend      BackendConfig      `yaml:"backend"`
	Doubts       DoubtsConfig       `yaml:"doubts"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// StorageConfig selects where conversations and doubt uploads are kept.
type StorageConfig struct {
	Driver       string      `yaml:"driver"` // memory, sqlite or redis
	DatabasePath string      `yaml:"database_path"`
	Redis        RedisConfig `yaml:"redis"`
}

// RedisConfig holds the connection settings for the redis storage driver.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// ConversationConfig controls conversation lifetime.
type ConversationConfig struct {
	TTL             time.Duration `yaml:"ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
	Persist         bool          `yaml:"persist"`
	MaxHistory      int           `yaml:"max_history"` // 0 keeps every message
}

// KnowledgeConfig holds knowledge base location and retrieval tuning.
type KnowledgeConfig struct {
	Path           string  `yaml:"path"`
	TopK           int     `yaml:"top_k"`
	MinScore       float64 `yaml:"min_score"`
	KeywordWeight  float64 `yaml:"keyword_weight"`
	SemanticWeight float64 `yaml:"semantic_weight"`
	EmbeddingDims  int     `yaml:"embedding_dims"`
	CacheSize      int     `yaml:"cache_size"`
	Watch          bool    `yaml:"watch"`
}

// BackendConfig holds LLM backend selection and per-variant settings.
type BackendConfig struct {
	Active        string          `yaml:"active"` // direct_api, framework or native_light
	Timeout       time.Duration   `yaml:"timeout"`
	RetryBackoff  time.Duration   `yaml:"retry_backoff"`
	ContextTokens int             `yaml:"context_tokens"`
	RateLimit     RateLimitConfig `yaml:"rate_limit"`
	OpenAI        OpenAIConfig    `yaml:"openai"`
	Ollama        OllamaConfig    `yaml:"ollama"`
	Framework     FrameworkConfig `yaml:"framework"`
}

// RateLimitConfig bounds outbound backend calls. Zero RequestsPerSecond disables limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// OpenAIConfig configures the OpenAI-compatible direct API backend.
type OpenAIConfig struct {
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// OllamaConfig configures the native light backend.
type OllamaConfig struct {
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// FrameworkConfig configures the tool-using backend.
type FrameworkConfig struct {
	Inner         string `yaml:"inner"`
	MaxToolRounds int    `yaml:"max_tool_rounds"`
}

// DoubtsConfig tunes doubt clustering and summaries.
type DoubtsConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	MaxExamples         int     `yaml:"max_examples"`
	UseEmbeddings       bool    `yaml:"use_embeddings"`
	LLMSummary          bool    `yaml:"llm_summary"`
}

// Load reads and parses the config file at path, expands paths and secrets, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	if cfg.Knowledge.Path != "" {
		cfg.Knowledge.Path = expandPath(cfg.Knowledge.Path, configDir)
	}
	cfg.Backend.OpenAI.APIKey = os.ExpandEnv(cfg.Backend.OpenAI.APIKey)
	cfg.Storage.Redis.Password = os.ExpandEnv(cfg.Storage.Redis.Password)

	return &cfg, nil
}

// Default returns a config with every default applied, for running without a config file.
func Default() *Config {
	var cfg Config
	ApplyDefaults(&cfg)
	return &cfg
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir,
// "~/" is the home directory, and other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	path = strings.TrimPrefix(path, "~/")
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
