// Package retrieval runs filtered similarity search over the review index
// and assembles the results into a bounded context bundle.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/minerva-reviews/review-engine/internal/catalog"
	"github.com/minerva-reviews/review-engine/internal/embedding"
	"github.com/minerva-reviews/review-engine/internal/filter"
	"github.com/minerva-reviews/review-engine/internal/observability"
	"github.com/minerva-reviews/review-engine/internal/query"
	"github.com/minerva-reviews/review-engine/internal/vector"
)

// Defaults used when Config fields are zero.
const (
	DefaultTopK        = 5
	DefaultMinScore    = 0.7
	DefaultNamespace   = "book-review-full"
	DefaultCallTimeout = 10 * time.Second
)

// Retrieval outcomes, as recorded in metrics.
const (
	OutcomeHit           = "hit"
	OutcomeRelaxed       = "relaxed"
	OutcomeFloorFallback = "floor_fallback"
	OutcomeEmpty         = "empty"
	OutcomeFailure       = "failure"
)

// Stage names the external call that failed.
type Stage string

const (
	StageEmbed  Stage = "embed"
	StageSearch Stage = "search"
)

// ErrRetrievalFailure matches every *Failure via errors.Is.
var ErrRetrievalFailure = errors.New("retrieval failure")

// Failure reports an embedding or index error, including timeouts.
type Failure struct {
	Stage Stage
	Err   error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("retrieval failure at %s: %v", f.Stage, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Is reports whether target is ErrRetrievalFailure.
func (f *Failure) Is(target error) bool { return target == ErrRetrievalFailure }

// Match is one index hit decoded into a catalog entity.
type Match struct {
	Key    string
	Score  float32
	Entity catalog.Entity
}

// Request is a single retrieval.
type Request struct {
	Query      string
	Filters    query.Filters
	Comparison bool
}

// Result holds the matches that survived relaxation and the score floor.
type Result struct {
	Matches        []Match
	Relaxed        bool   // the filtered search was empty and was retried unfiltered
	FloorFallback  bool   // every match was under MinScore; the top one was kept
	RawCount       int    // decodable matches before the floor
	EmbeddingInput string
	Filter         string
}

// Outcome classifies the result for metrics and audit.
func (r *Result) Outcome() string {
	switch {
	case len(r.Matches) == 0:
		return OutcomeEmpty
	case r.FloorFallback:
		return OutcomeFloorFallback
	case r.Relaxed:
		return OutcomeRelaxed
	default:
		return OutcomeHit
	}
}

// Keys returns the entity keys of the matches in order.
func (r *Result) Keys() []string {
	keys := make([]string, len(r.Matches))
	for i, m := range r.Matches {
		keys[i] = m.Key
	}
	return keys
}

// Config holds engine settings.
type Config struct {
	TopK        int
	MinScore    float32
	Namespace   string
	CallTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.TopK <= 0 {
		c.TopK = DefaultTopK
	}
	if c.MinScore <= 0 {
		c.MinScore = DefaultMinScore
	}
	if c.Namespace == "" {
		c.Namespace = DefaultNamespace
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = DefaultCallTimeout
	}
	return c
}

// Engine embeds queries and searches the index.
type Engine struct {
	embedder embedding.Embedder
	index    vector.Index
	config   Config
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// NewEngine creates an engine. metrics may be nil.
func NewEngine(
	embedder embedding.Embedder,
	index vector.Index,
	cfg Config,
	logger *observability.Logger,
	metrics *observability.Metrics,
) *Engine {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Engine{
		embedder: embedder,
		index:    index,
		config:   cfg.withDefaults(),
		logger:   logger.WithComponent("retrieval"),
		metrics:  metrics,
	}
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.config
}

// Retrieve embeds the request, runs the filtered search, relaxes the filter
// at most once when nothing matched, and applies the score floor.
func (e *Engine) Retrieve(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	expr := filter.Compile(req.Filters)
	res := &Result{
		EmbeddingInput: EmbeddingInput(req),
		Filter:         expr.String(),
	}
	log := e.logger.WithContext(ctx)

	vec, err := e.embed(ctx, res.EmbeddingInput)
	if err != nil {
		e.fail(log, err, start)
		return nil, err
	}

	matches, err := e.query(ctx, vec, expr, e.config.TopK)
	if err != nil {
		e.fail(log, err, start)
		return nil, err
	}

	if len(matches) == 0 && expr != nil {
		log.Debug().Str("filter", res.Filter).Msg("No matches under filter, retrying unfiltered")
		res.Relaxed = true
		matches, err = e.query(ctx, vec, nil, e.config.TopK)
		if err != nil {
			e.fail(log, err, start)
			return nil, err
		}
	}

	res.RawCount = len(matches)
	res.Matches = make([]Match, 0, len(matches))
	for _, m := range matches {
		if m.Score >= e.config.MinScore {
			res.Matches = append(res.Matches, m)
		}
	}
	if len(res.Matches) == 0 && len(matches) > 0 {
		res.Matches = append(res.Matches, matches[0])
		res.FloorFallback = true
	}

	elapsed := time.Since(start)
	e.metrics.RecordRetrieval(res.Outcome(), elapsed)
	log.Info().
		Str("embedding_input", res.EmbeddingInput).
		Str("filter", res.Filter).
		Bool("relaxed", res.Relaxed).
		Bool("floor_fallback", res.FloorFallback).
		Int("raw_matches", res.RawCount).
		Int("matches", len(res.Matches)).
		Dur("latency", elapsed).
		Msg("Retrieval complete")

	return res, nil
}

// Search runs one filtered search for text with no relaxation and no score
// floor. Used for card lookups requested by the chat model.
func (e *Engine) Search(ctx context.Context, text string, expr *filter.Expression, topK int) ([]Match, error) {
	vec, err := e.embed(ctx, flatten(text))
	if err != nil {
		return nil, err
	}
	return e.query(ctx, vec, expr, topK)
}

func (e *Engine) embed(ctx context.Context, text string) ([]float32, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.config.CallTimeout)
	defer cancel()

	vec, err := e.embedder.EmbedSingle(callCtx, text)
	if err != nil {
		return nil, &Failure{Stage: StageEmbed, Err: err}
	}
	if len(vec) == 0 {
		return nil, &Failure{Stage: StageEmbed, Err: embedding.ErrEmptyEmbedding}
	}
	return vec, nil
}

// query searches the index and decodes the hits, dropping any whose
// metadata has no title. Results are ordered by descending score.
func (e *Engine) query(ctx context.Context, vec []float32, expr *filter.Expression, topK int) ([]Match, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.config.CallTimeout)
	defer cancel()

	hits, err := e.index.Query(callCtx, e.config.Namespace, vec, expr, topK)
	if err != nil {
		return nil, &Failure{Stage: StageSearch, Err: err}
	}

	matches := make([]Match, 0, len(hits))
	for _, h := range hits {
		entity, err := catalog.FromMetadata(h.Metadata)
		if err != nil {
			e.logger.Debug().Str("id", h.ID).Err(err).Msg("Skipping undecodable match")
			continue
		}
		matches = append(matches, Match{Key: entity.Key(), Score: h.Score, Entity: entity})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	return matches, nil
}

func (e *Engine) fail(log *observability.Logger, err error, start time.Time) {
	e.metrics.RecordRetrieval(OutcomeFailure, time.Since(start))
	log.Warn().Err(err).Msg("Retrieval failed")
}

// EmbeddingInput picks the text to embed: "<title> by <author>" when both
// are known, the two titles for a comparison, else the query itself.
func EmbeddingInput(req Request) string {
	f := req.Filters
	if len(f.Titles) > 0 && (req.Comparison || f.Title == "") {
		return strings.Join(f.Titles, " compared to ")
	}
	if f.Title != "" && f.Author != "" {
		return f.Title + " by " + f.Author
	}
	return flatten(req.Query)
}

func flatten(s string) string {
	return strings.TrimSpace(strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(s))
}
