package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  driver: sqlite
  database_path: "test.db"
conversation:
  ttl: 5m
backend:
  active: native_light
  timeout: 15s
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Storage.DatabasePath == "" {
		t.Errorf("unexpected storage config: %+v", cfg.Storage)
	}
	if cfg.Conversation.TTL != 5*time.Minute {
		t.Errorf("ttl = %v, want 5m", cfg.Conversation.TTL)
	}
	if cfg.Backend.Active != "native_light" || cfg.Backend.Timeout != 15*time.Second {
		t.Errorf("unexpected backend config: active=%s timeout=%v", cfg.Backend.Active, cfg.Backend.Timeout)
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
}

func TestLoad_debugTrue(t *testing.T) {
	cfg, err := Load(writeConfig(t, "debug: true\n"))
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug {
		t.Error("debug should be true when set in config")
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	path := writeConfig(t, `
storage:
  database_path: "./data/sensei.db"
knowledge:
  path: "./kb"
`)
	dir := filepath.Dir(path)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "data", "sensei.db"); cfg.Storage.DatabasePath != want {
		t.Errorf("database_path = %s, want %s", cfg.Storage.DatabasePath, want)
	}
	if want := filepath.Join(dir, "kb"); cfg.Knowledge.Path != want {
		t.Errorf("knowledge path = %s, want %s", cfg.Knowledge.Path, want)
	}
}

func TestLoad_expandsAPIKeyFromEnv(t *testing.T) {
	t.Setenv("SENSEI_TEST_KEY", "sk-test")
	cfg, err := Load(writeConfig(t, `
backend:
  openai:
    api_key: "${SENSEI_TEST_KEY}"
`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Backend.OpenAI.APIKey != "sk-test" {
		t.Errorf("api_key = %q, want sk-test", cfg.Backend.OpenAI.APIKey)
	}
}

func TestLoad_missingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Host != "localhost" || cfg.Server.Port != 8080 {
		t.Errorf("default server: got %+v", cfg.Server)
	}
	if cfg.Storage.Driver != "memory" {
		t.Errorf("default storage driver: got %s", cfg.Storage.Driver)
	}
	if cfg.Conversation.TTL != 30*time.Minute || cfg.Conversation.CleanupInterval != 10*time.Minute {
		t.Errorf("default conversation lifetime: got %+v", cfg.Conversation)
	}
	if cfg.Conversation.MaxHistory != 0 {
		t.Errorf("history should be unbounded by default: got max_history %d", cfg.Conversation.MaxHistory)
	}
	if cfg.Knowledge.TopK != 3 {
		t.Errorf("default top_k: got %d", cfg.Knowledge.TopK)
	}
	if cfg.Knowledge.KeywordWeight+cfg.Knowledge.SemanticWeight != 1.0 {
		t.Errorf("default weights should sum to 1: got %f + %f", cfg.Knowledge.KeywordWeight, cfg.Knowledge.SemanticWeight)
	}
	if cfg.Backend.Active != "direct_api" {
		t.Errorf("default backend: got %s", cfg.Backend.Active)
	}
	if cfg.Backend.Framework.MaxToolRounds != 3 {
		t.Errorf("default max_tool_rounds: got %d", cfg.Backend.Framework.MaxToolRounds)
	}
	if cfg.Backend.RateLimit.Burst != 0 {
		t.Errorf("burst should stay 0 when rate limiting is off: got %d", cfg.Backend.RateLimit.Burst)
	}
	if cfg.Doubts.SimilarityThreshold <= 0 || cfg.Doubts.SimilarityThreshold > 1 {
		t.Errorf("similarity threshold out of range: %f", cfg.Doubts.SimilarityThreshold)
	}
}

func TestApplyDefaults_keepsExplicitWeights(t *testing.T) {
	cfg := &Config{Knowledge: KnowledgeConfig{KeywordWeight: 1}}
	ApplyDefaults(cfg)
	if cfg.Knowledge.KeywordWeight != 1 || cfg.Knowledge.SemanticWeight != 0 {
		t.Errorf("explicit weights overwritten: %+v", cfg.Knowledge)
	}
}

func TestApplyDefaults_rateLimitBurst(t *testing.T) {
	cfg := &Config{Backend: BackendConfig{RateLimit: RateLimitConfig{RequestsPerSecond: 2}}}
	ApplyDefaults(cfg)
	if cfg.Backend.RateLimit.Burst != 1 {
		t.Errorf("burst = %d, want 1", cfg.Backend.RateLimit.Burst)
	}
}

func TestSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saved.yaml")
	cfg := Default()
	cfg.Server.Port = 9090
	cfg.Storage.DatabasePath = "/tmp/sensei.db"
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9090 {
		t.Errorf("loaded port: got %d", loaded.Server.Port)
	}
	if loaded.Conversation.TTL != cfg.Conversation.TTL {
		t.Errorf("loaded ttl: got %v, want %v", loaded.Conversation.TTL, cfg.Conversation.TTL)
	}
}
