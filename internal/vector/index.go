// Package vector provides similarity search over review embeddings.
package vector

import (
	"context"
	"errors"

	"github.com/minerva-reviews/review-engine/internal/filter"
)

// ErrDimensionMismatch indicates a vector of the wrong size for its namespace.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Record is a vector with its metadata, as written to an index.
type Record struct {
	ID       string
	Vector   []float32
	Metadata map[string]any
}

// Match is one scored search hit. Higher scores are more similar.
type Match struct {
	ID       string
	Score    float32
	Metadata map[string]any
}

// Index is a namespaced nearest-neighbour index. A nil expression means
// unfiltered search. Results are ordered by descending score.
type Index interface {
	Query(ctx context.Context, namespace string, vector []float32, expr *filter.Expression, topK int) ([]Match, error)
	Upsert(ctx context.Context, namespace string, records []Record) error
	Count(ctx context.Context, namespace string) (int64, error)
	Close() error
}
