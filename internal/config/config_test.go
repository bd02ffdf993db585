package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "book-review-full", cfg.Retrieval.Namespace)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.InDelta(t, 0.7, cfg.Retrieval.MinScore, 1e-9)
	assert.Equal(t, 10*time.Second, cfg.Retrieval.CallTimeout)
	assert.Equal(t, 30*time.Minute, cfg.Cache.TTL)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_YAMLAndRelativeSeed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
cache:
  ttl: 5m
  max_entries: 50
vector:
  seed_file: fixtures/reviews.yaml
retrieval:
  top_k: 8
  min_score: 0.5
classifier:
  strategy: model
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 50, cfg.Cache.MaxEntries)
	assert.Equal(t, filepath.Join(dir, "fixtures/reviews.yaml"), cfg.Vector.SeedFile)
	assert.Equal(t, 8, cfg.Retrieval.TopK)
	assert.Equal(t, "model", cfg.Classifier.Strategy)
	assert.Equal(t, "book-review-full", cfg.Retrieval.Namespace, "unset keys keep defaults")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "7001")
	t.Setenv("REDIS_URL", "redis://cache:6379/2")
	t.Setenv("QDRANT_HOST", "qdrant.internal")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("CHAT_MODEL", "mistral")
	t.Setenv("CLASSIFIER_STRATEGY", "MODEL")
	t.Setenv("AUDIT_DATABASE_URL", "sqlite:/tmp/audit.db")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7001, cfg.Server.Port)
	assert.Equal(t, "redis", cfg.Cache.Driver)
	assert.Equal(t, "redis://cache:6379/2", cfg.Cache.Redis.URL)
	assert.Equal(t, "qdrant", cfg.Vector.Driver)
	assert.Equal(t, "qdrant.internal", cfg.Vector.Qdrant.Host)
	assert.Equal(t, "openai", cfg.Embedding.Provider)
	assert.Equal(t, "sk-test", cfg.Embedding.APIKey)
	assert.Equal(t, "mistral", cfg.Chat.Model)
	assert.Equal(t, "model", cfg.Classifier.Strategy)
	assert.Equal(t, "sqlite", cfg.Audit.Driver)
	assert.Equal(t, "/tmp/audit.db", cfg.Audit.DSN)
	assert.Equal(t, "debug", cfg.Observability.LogLevel)
	assert.False(t, cfg.IsDevelopment())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"bad cache driver", func(c *Config) { c.Cache.Driver = "memcached" }},
		{"bad vector driver", func(c *Config) { c.Vector.Driver = "faiss" }},
		{"openai without key", func(c *Config) { c.Embedding.Provider = "openai" }},
		{"unknown provider", func(c *Config) { c.Embedding.Provider = "cohere" }},
		{"zero dimension", func(c *Config) { c.Embedding.Dimension = 0 }},
		{"top_k too large", func(c *Config) { c.Retrieval.TopK = 100 }},
		{"min_score above one", func(c *Config) { c.Retrieval.MinScore = 1.5 }},
		{"empty namespace", func(c *Config) { c.Retrieval.Namespace = "" }},
		{"bad strategy", func(c *Config) { c.Classifier.Strategy = "llm" }},
		{"zero cards", func(c *Config) { c.Cards.MaxCards = 0 }},
		{"more than five cards", func(c *Config) { c.Cards.MaxCards = 6 }},
		{"audit without dsn", func(c *Config) { c.Audit.Driver = "postgres" }},
		{"bad audit driver", func(c *Config) { c.Audit.Driver = "mysql" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestResolveRelativePath(t *testing.T) {
	assert.Equal(t, "/abs/seed.yaml", ResolveRelativePath("/etc/engine.yaml", "/abs/seed.yaml"))
	assert.Equal(t, filepath.Join("/etc", "seed.yaml"), ResolveRelativePath("/etc/engine.yaml", "seed.yaml"))
}
