// Package config provides unified configuration loading for the review engine.
// Supports YAML files, .env files, environment variables, and programmatic overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the review engine.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Cache         CacheConfig         `yaml:"cache"`
	Vector        VectorConfig        `yaml:"vector"`
	Embedding     EmbeddingConfig     `yaml:"embedding"`
	Chat          ChatConfig          `yaml:"chat"`
	Retrieval     RetrievalConfig     `yaml:"retrieval"`
	Classifier    ClassifierConfig    `yaml:"classifier"`
	Cards         CardsConfig         `yaml:"cards"`
	Audit         AuditConfig         `yaml:"audit"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
	AllowedOrigins   []string      `yaml:"allowed_origins"`
}

// CacheConfig holds conversation cache settings.
type CacheConfig struct {
	Driver     string        `yaml:"driver"` // memory or redis
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
	Redis      RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	URL      string `yaml:"url"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
	Prefix   string `yaml:"prefix"`
}

// VectorConfig holds vector index settings.
type VectorConfig struct {
	Driver           string       `yaml:"driver"` // memory or qdrant
	SeedFile         string       `yaml:"seed_file"`
	EnsureCollection bool         `yaml:"ensure_collection"`
	Qdrant           QdrantConfig `yaml:"qdrant"`
}

// QdrantConfig holds Qdrant-specific settings.
type QdrantConfig struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

// EmbeddingConfig holds embedding model settings.
type EmbeddingConfig struct {
	Provider   string        `yaml:"provider"` // openai, ollama or mock
	Model      string        `yaml:"model"`
	Dimension  int           `yaml:"dimension"`
	BaseURL    string        `yaml:"base_url"`
	APIKey     string        `yaml:"api_key"`
	Timeout    time.Duration `yaml:"timeout"`
	RatePerSec float64       `yaml:"rate_per_sec"` // 0 disables limiting
	Burst      int           `yaml:"burst"`
}

// ChatConfig holds chat model settings.
type ChatConfig struct {
	Host        string        `yaml:"host"`
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

// RetrievalConfig holds retrieval settings.
type RetrievalConfig struct {
	Namespace   string        `yaml:"namespace"`
	TopK        int           `yaml:"top_k"`
	MinScore    float64       `yaml:"min_score"`
	CallTimeout time.Duration `yaml:"call_timeout"`
}

// ClassifierConfig selects the query classifier.
type ClassifierConfig struct {
	Strategy string `yaml:"strategy"` // rules or model
}

// CardsConfig holds book card settings.
type CardsConfig struct {
	MaxCards int `yaml:"max_cards"`
}

// AuditConfig holds retrieval audit settings.
type AuditConfig struct {
	Driver string `yaml:"driver"` // none, sqlite or postgres
	DSN    string `yaml:"dsn"`
}

// ObservabilityConfig holds logging and metrics settings.
type ObservabilityConfig struct {
	LogLevel       string `yaml:"log_level"`
	LogFormat      string `yaml:"log_format"`
	ServiceName    string `yaml:"service_name"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`
}

// Load reads .env files, the YAML file at path (optional) and environment
// overrides, then validates the result.
func Load(path string) (*Config, error) {
	LoadDotEnv()
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
		if cfg.Vector.SeedFile != "" {
			cfg.Vector.SeedFile = ResolveRelativePath(path, cfg.Vector.SeedFile)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// LoadDotEnv loads .env.local then .env from the working directory.
// Existing environment variables are never overwritten.
func LoadDotEnv() {
	for _, name := range []string{".env.local", ".env"} {
		if _, err := os.Stat(name); err == nil {
			_ = godotenv.Load(name)
		}
	}
}

// DefaultConfig returns a configuration with sensible defaults for development.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8085,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     120 * time.Second,
			IdleTimeout:      120 * time.Second,
			RequestTimeout:   90 * time.Second,
			GracefulShutdown: 10 * time.Second,
			AllowedOrigins:   []string{"*"},
		},
		Cache: CacheConfig{
			Driver:     "memory",
			TTL:        30 * time.Minute,
			MaxEntries: 10000,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				PoolSize: 10,
				Prefix:   "re:",
			},
		},
		Vector: VectorConfig{
			Driver: "memory",
			Qdrant: QdrantConfig{
				Host: "localhost",
				Port: 6334,
			},
		},
		Embedding: EmbeddingConfig{
			Provider:  "mock",
			Model:     "text-embedding-3-small",
			Dimension: 1536,
			Timeout:   10 * time.Second,
			Burst:     5,
		},
		Chat: ChatConfig{
			Host:        "http://localhost:11434",
			Model:       "llama3.2",
			Temperature: 0.7,
			Timeout:     60 * time.Second,
		},
		Retrieval: RetrievalConfig{
			Namespace:   "book-review-full",
			TopK:        5,
			MinScore:    0.7,
			CallTimeout: 10 * time.Second,
		},
		Classifier: ClassifierConfig{
			Strategy: "rules",
		},
		Cards: CardsConfig{
			MaxCards: 5,
		},
		Audit: AuditConfig{
			Driver: "none",
		},
		Observability: ObservabilityConfig{
			LogLevel:       "info",
			LogFormat:      "json",
			ServiceName:    "review-engine",
			MetricsEnabled: true,
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Cache.Driver != "memory" && c.Cache.Driver != "redis" {
		return fmt.Errorf("invalid cache driver: %s", c.Cache.Driver)
	}

	if c.Vector.Driver != "memory" && c.Vector.Driver != "qdrant" {
		return fmt.Errorf("invalid vector driver: %s", c.Vector.Driver)
	}

	switch c.Embedding.Provider {
	case "openai":
		if c.Embedding.APIKey == "" {
			return fmt.Errorf("embedding provider openai requires an api key")
		}
	case "ollama", "mock":
	default:
		return fmt.Errorf("invalid embedding provider: %s", c.Embedding.Provider)
	}

	if c.Embedding.Dimension < 1 {
		return fmt.Errorf("embedding dimension must be positive")
	}

	if c.Retrieval.TopK < 1 || c.Retrieval.TopK > 50 {
		return fmt.Errorf("top_k must be between 1 and 50")
	}

	if c.Retrieval.MinScore < 0 || c.Retrieval.MinScore > 1 {
		return fmt.Errorf("min_score must be between 0 and 1")
	}

	if c.Retrieval.Namespace == "" {
		return fmt.Errorf("retrieval namespace is required")
	}

	if c.Classifier.Strategy != "rules" && c.Classifier.Strategy != "model" {
		return fmt.Errorf("invalid classifier strategy: %s", c.Classifier.Strategy)
	}

	if c.Cards.MaxCards < 1 || c.Cards.MaxCards > 5 {
		return fmt.Errorf("max_cards must be between 1 and 5")
	}

	switch c.Audit.Driver {
	case "none":
	case "sqlite", "postgres":
		if c.Audit.DSN == "" {
			return fmt.Errorf("audit driver %s requires a dsn", c.Audit.Driver)
		}
	default:
		return fmt.Errorf("invalid audit driver: %s", c.Audit.Driver)
	}

	return nil
}

// IsDevelopment returns true when no external services are configured.
func (c *Config) IsDevelopment() bool {
	return c.Vector.Driver == "memory" && c.Embedding.Provider == "mock"
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Cache.Driver = "redis"
		cfg.Cache.Redis.URL = v
	}

	if v := os.Getenv("CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.TTL = d
		}
	}

	if v := os.Getenv("QDRANT_HOST"); v != "" {
		cfg.Vector.Driver = "qdrant"
		cfg.Vector.Qdrant.Host = v
	}

	if v := os.Getenv("QDRANT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Vector.Qdrant.Port = port
		}
	}

	if v := os.Getenv("QDRANT_API_KEY"); v != "" {
		cfg.Vector.Qdrant.APIKey = v
	}

	if v := os.Getenv("VECTOR_SEED_FILE"); v != "" {
		cfg.Vector.SeedFile = v
	}

	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
		if cfg.Embedding.Provider == "mock" {
			cfg.Embedding.Provider = "openai"
		}
	}

	if v := os.Getenv("EMBEDDING_PROVIDER"); v != "" {
		cfg.Embedding.Provider = v
	}

	if v := os.Getenv("EMBEDDING_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}

	if v := os.Getenv("OLLAMA_HOST"); v != "" {
		cfg.Chat.Host = v
		if cfg.Embedding.Provider == "ollama" && cfg.Embedding.BaseURL == "" {
			cfg.Embedding.BaseURL = v
		}
	}

	if v := os.Getenv("CHAT_MODEL"); v != "" {
		cfg.Chat.Model = v
	}

	if v := os.Getenv("RETRIEVAL_NAMESPACE"); v != "" {
		cfg.Retrieval.Namespace = v
	}

	if v := os.Getenv("CLASSIFIER_STRATEGY"); v != "" {
		cfg.Classifier.Strategy = strings.ToLower(v)
	}

	if v := os.Getenv("AUDIT_DATABASE_URL"); v != "" {
		if strings.HasPrefix(v, "sqlite:") {
			cfg.Audit.Driver = "sqlite"
			cfg.Audit.DSN = strings.TrimPrefix(v, "sqlite:")
		} else if strings.HasPrefix(v, "postgres") {
			cfg.Audit.Driver = "postgres"
			cfg.Audit.DSN = v
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
}

// ResolveRelativePath resolves a path relative to the config file location.
func ResolveRelativePath(configPath, targetPath string) string {
	if filepath.IsAbs(targetPath) {
		return targetPath
	}
	configDir := filepath.Dir(configPath)
	return filepath.Join(configDir, targetPath)
}
