package config

import "time"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 90 * time.Second
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "memory"
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/sensei/data/sensei.db"
	}
	if cfg.Storage.Redis.Addr == "" {
		cfg.Storage.Redis.Addr = "localhost:6379"
	}
	if cfg.Storage.Redis.Prefix == "" {
		cfg.Storage.Redis.Prefix = "sensei:"
	}
	if cfg.Conversation.TTL == 0 {
		cfg.Conversation.TTL = 30 * time.Minute
	}
	if cfg.Conversation.CleanupInterval == 0 {
		cfg.Conversation.CleanupInterval = 10 * time.Minute
	}
	if cfg.Knowledge.TopK == 0 {
		cfg.Knowledge.TopK = 3
	}
	if cfg.Knowledge.MinScore == 0 {
		cfg.Knowledge.MinScore = 0.2
	}
	if cfg.Knowledge.KeywordWeight == 0 && cfg.Knowledge.SemanticWeight == 0 {
		cfg.Knowledge.KeywordWeight = 0.6
		cfg.Knowledge.SemanticWeight = 0.4
	}
	if cfg.Knowledge.EmbeddingDims == 0 {
		cfg.Knowledge.EmbeddingDims = 256
	}
	if cfg.Knowledge.CacheSize == 0 {
		cfg.Knowledge.CacheSize = 1000
	}
	if cfg.Backend.Active == "" {
		cfg.Backend.Active = "direct_api"
	}
	if cfg.Backend.Timeout == 0 {
		cfg.Backend.Timeout = 60 * time.Second
	}
	if cfg.Backend.RetryBackoff == 0 {
		cfg.Backend.RetryBackoff = 500 * time.Millisecond
	}
	if cfg.Backend.ContextTokens == 0 {
		cfg.Backend.ContextTokens = 4096
	}
	if cfg.Backend.RateLimit.RequestsPerSecond > 0 && cfg.Backend.RateLimit.Burst == 0 {
		cfg.Backend.RateLimit.Burst = 1
	}
	if cfg.Backend.OpenAI.BaseURL == "" {
		cfg.Backend.OpenAI.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Backend.OpenAI.Model == "" {
		cfg.Backend.OpenAI.Model = "gpt-4o-mini"
	}
	if cfg.Backend.OpenAI.Temperature == 0 {
		cfg.Backend.OpenAI.Temperature = 0.7
	}
	if cfg.Backend.OpenAI.MaxTokens == 0 {
		cfg.Backend.OpenAI.MaxTokens = 1024
	}
	if cfg.Backend.Ollama.BaseURL == "" {
		cfg.Backend.Ollama.BaseURL = "http://localhost:11434"
	}
	if cfg.Backend.Ollama.Model == "" {
		cfg.Backend.Ollama.Model = "llama3.2"
	}
	if cfg.Backend.Framework.Inner == "" {
		cfg.Backend.Framework.Inner = "direct_api"
	}
	if cfg.Backend.Framework.MaxToolRounds == 0 {
		cfg.Backend.Framework.MaxToolRounds = 3
	}
	if cfg.Doubts.SimilarityThreshold == 0 {
		cfg.Doubts.SimilarityThreshold = 0.25
	}
	if cfg.Doubts.MaxExamples == 0 {
		cfg.Doubts.MaxExamples = 3
	}
}
