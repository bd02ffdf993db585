// Package app builds the review engine's components from configuration.
// The API server and the CLI both start from New.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/minerva-reviews/review-engine/internal/assistant"
	"github.com/minerva-reviews/review-engine/internal/cache"
	"github.com/minerva-reviews/review-engine/internal/cards"
	"github.com/minerva-reviews/review-engine/internal/chat"
	"github.com/minerva-reviews/review-engine/internal/config"
	"github.com/minerva-reviews/review-engine/internal/conversation"
	"github.com/minerva-reviews/review-engine/internal/embedding"
	"github.com/minerva-reviews/review-engine/internal/monitoring"
	"github.com/minerva-reviews/review-engine/internal/observability"
	"github.com/minerva-reviews/review-engine/internal/query"
	"github.com/minerva-reviews/review-engine/internal/retrieval"
	"github.com/minerva-reviews/review-engine/internal/storage"
	"github.com/minerva-reviews/review-engine/internal/vector"
)

// Options adjust how New builds the components.
type Options struct {
	// Registry receives the metrics. Nil uses a fresh registry.
	Registry *prometheus.Registry
	// LogOutput overrides the log destination.
	LogOutput io.Writer
	// Component names the process in logs, e.g. "api" or "cli".
	Component string
	// Chat replaces the configured chat service, mainly for tests.
	Chat chat.Service
	// Embedder replaces the configured embedder, mainly for tests.
	Embedder embedding.Embedder
	// Index replaces the configured vector index, mainly for tests.
	Index vector.Index
}

// App holds every wired component.
type App struct {
	Config     *config.Config
	Logger     *observability.Logger
	Registry   *prometheus.Registry
	Metrics    *observability.Metrics
	Embedder   embedding.Embedder
	Index      vector.Index
	Engine     *retrieval.Engine
	Classifier query.Classifier
	Cache      cache.Client
	Store      *conversation.Store
	Chat       chat.Service
	Audit      *storage.AuditRepository
	Assistant  *assistant.Service

	auditDB *sql.DB
	closers []io.Closer
}

// New builds the application. On error, everything already opened is closed.
func New(ctx context.Context, cfg *config.Config, opts Options) (a *App, err error) {
	registry := opts.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	service := cfg.Observability.ServiceName
	if opts.Component != "" {
		service += "-" + opts.Component
	}

	a = &App{
		Config:   cfg,
		Registry: registry,
		Logger: observability.NewLogger(observability.LogConfig{
			Level:       cfg.Observability.LogLevel,
			Format:      cfg.Observability.LogFormat,
			Output:      opts.LogOutput,
			ServiceName: service,
		}),
	}
	if cfg.Observability.MetricsEnabled {
		a.Metrics = observability.NewMetrics(registry)
	}
	defer func() {
		if err != nil {
			_ = a.Close()
			a = nil
		}
	}()

	if a.Embedder = opts.Embedder; a.Embedder == nil {
		if a.Embedder, err = NewEmbedder(cfg.Embedding); err != nil {
			return a, err
		}
	}

	if a.Index = opts.Index; a.Index == nil {
		if a.Index, err = a.newIndex(ctx); err != nil {
			return a, err
		}
		a.closers = append(a.closers, a.Index)
	}
	if err = a.seed(ctx); err != nil {
		return a, err
	}

	a.Engine = retrieval.NewEngine(a.Embedder, a.Index, retrieval.Config{
		TopK:        cfg.Retrieval.TopK,
		MinScore:    float32(cfg.Retrieval.MinScore),
		Namespace:   cfg.Retrieval.Namespace,
		CallTimeout: cfg.Retrieval.CallTimeout,
	}, a.Logger, a.Metrics)

	if a.Cache, err = a.newCache(ctx); err != nil {
		return a, err
	}
	a.closers = append(a.closers, a.Cache)
	a.Store = conversation.NewStore(a.Cache, cfg.Cache.TTL, a.Logger, a.Metrics)

	if a.Chat = opts.Chat; a.Chat == nil {
		if a.Chat, err = chat.NewOllamaService(chat.OllamaConfig{
			Host:        cfg.Chat.Host,
			Model:       cfg.Chat.Model,
			Temperature: cfg.Chat.Temperature,
			Timeout:     cfg.Chat.Timeout,
		}, a.Logger); err != nil {
			return a, fmt.Errorf("create chat service: %w", err)
		}
	}

	a.Classifier = NewClassifier(cfg.Classifier, a.Chat, a.Logger)

	if err = a.openAudit(ctx); err != nil {
		return a, err
	}
	var auditStore monitoring.AuditStore
	if a.Audit != nil {
		auditStore = a.Audit
	}

	mapper := cards.NewMapper(a.Logger, a.Metrics)
	a.Assistant = assistant.NewService(assistant.Deps{
		Classifier: a.Classifier,
		Retriever:  a.Engine,
		Assembler:  retrieval.NewAssembler(cfg.Retrieval.TopK),
		Store:      a.Store,
		Mapper:     mapper,
		Cards:      cards.NewRecommender(a.Engine, mapper, cfg.Cards.MaxCards, a.Logger),
		Chat:       a.Chat,
		Auditor:    monitoring.NewAuditLogger(a.Logger, auditStore),
		Logger:     a.Logger,
		Metrics:    a.Metrics,
	})

	a.Logger.Info().
		Str("cache", cfg.Cache.Driver).
		Str("vector", cfg.Vector.Driver).
		Str("embedding", cfg.Embedding.Provider).
		Str("classifier", cfg.Classifier.Strategy).
		Str("audit", cfg.Audit.Driver).
		Msg("Review engine initialised")
	return a, nil
}

// NewEmbedder creates the configured embedder, rate limited when requested.
func NewEmbedder(cfg config.EmbeddingConfig) (embedding.Embedder, error) {
	var (
		emb embedding.Embedder
		err error
	)
	switch cfg.Provider {
	case "openai":
		emb, err = embedding.NewClient(embedding.Config{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			BaseURL:   cfg.BaseURL,
			Dimension: cfg.Dimension,
			Timeout:   cfg.Timeout,
		})
	case "ollama":
		emb, err = embedding.NewOllamaClient(embedding.OllamaConfig{
			Host:      cfg.BaseURL,
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
			Timeout:   cfg.Timeout,
		})
	case "mock":
		emb = embedding.NewMockClient(cfg.Dimension)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("create embedding client: %w", err)
	}
	if cfg.RatePerSec > 0 {
		emb = embedding.NewRateLimited(emb, cfg.RatePerSec, cfg.Burst)
	}
	return emb, nil
}

// NewClassifier returns the rule classifier, or the model classifier with
// the rules as its fallback.
func NewClassifier(cfg config.ClassifierConfig, svc chat.Service, logger *observability.Logger) query.Classifier {
	rules := query.NewRuleClassifier(query.DefaultRuleConfig())
	if cfg.Strategy == "model" && svc != nil {
		return query.NewModelClassifier(svc, rules, logger)
	}
	return rules
}

func (a *App) newIndex(ctx context.Context) (vector.Index, error) {
	cfg := a.Config
	switch cfg.Vector.Driver {
	case "qdrant":
		idx, err := vector.NewQdrantIndex(vector.QdrantConfig{
			Host:   cfg.Vector.Qdrant.Host,
			Port:   cfg.Vector.Qdrant.Port,
			APIKey: cfg.Vector.Qdrant.APIKey,
		})
		if err != nil {
			return nil, fmt.Errorf("create qdrant index: %w", err)
		}
		if cfg.Vector.EnsureCollection {
			if err := idx.EnsureCollection(ctx, cfg.Retrieval.Namespace, a.Embedder.Dimension()); err != nil {
				_ = idx.Close()
				return nil, err
			}
		}
		return idx, nil
	default:
		return vector.NewMemoryIndex(), nil
	}
}

func (a *App) seed(ctx context.Context) error {
	path := a.Config.Vector.SeedFile
	if path == "" {
		return nil
	}
	f, err := vector.LoadSeedFile(path)
	if err != nil {
		return err
	}
	n, err := vector.Seed(ctx, a.Index, a.Embedder, a.Config.Retrieval.Namespace, f)
	if err != nil {
		return fmt.Errorf("seed index: %w", err)
	}
	a.Logger.Info().Str("seed_file", path).Int("records", n).Msg("Seeded vector index")
	return nil
}

func (a *App) newCache(ctx context.Context) (cache.Client, error) {
	cfg := a.Config.Cache
	if cfg.Driver == "redis" {
		c, err := cache.NewRedisClient(ctx, cache.RedisConfig{
			URL:        cfg.Redis.URL,
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			Prefix:     cfg.Redis.Prefix,
			DefaultTTL: cfg.TTL,
		})
		if err != nil {
			return nil, fmt.Errorf("create redis cache: %w", err)
		}
		return c, nil
	}
	return cache.NewMemoryClient(cfg.MaxEntries, cfg.TTL), nil
}

func (a *App) openAudit(ctx context.Context) error {
	cfg := a.Config.Audit
	if cfg.Driver == "" || cfg.Driver == "none" {
		return nil
	}
	db, err := storage.Open(ctx, cfg.Driver, cfg.DSN)
	if err != nil {
		return fmt.Errorf("open audit database: %w", err)
	}
	a.auditDB = db
	a.Audit = storage.NewAuditRepository(db)
	if err := a.Audit.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate audit database: %w", err)
	}
	return nil
}

// Ready checks the backing services that can be pinged.
func (a *App) Ready(ctx context.Context) error {
	if p, ok := a.Cache.(interface{ Ping(context.Context) error }); ok {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("cache: %w", err)
		}
	}
	if a.auditDB != nil {
		if err := a.auditDB.PingContext(ctx); err != nil {
			return fmt.Errorf("audit database: %w", err)
		}
	}
	if _, err := a.Index.Count(ctx, a.Config.Retrieval.Namespace); err != nil {
		return fmt.Errorf("vector index: %w", err)
	}
	return nil
}

// Close releases every opened resource.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if a.auditDB != nil {
		if err := a.auditDB.Close(); err != nil {
			errs = append(errs, err)
		}
		a.auditDB = nil
	}
	return errors.Join(errs...)
}
