package vector

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/minerva-reviews/review-engine/internal/filter"
)

// MemoryIndex is an in-process cosine index. Search is exhaustive, which
// is fine for development catalogs and tests.
type MemoryIndex struct {
	mu         sync.RWMutex
	namespaces map[string]*namespace
}

type namespace struct {
	dimension int
	records   map[string]Record
}

// NewMemoryIndex creates an empty index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{namespaces: make(map[string]*namespace)}
}

// Upsert stores records, replacing any with the same ID. Vectors are
// normalised on write so queries reduce to a dot product.
func (m *MemoryIndex) Upsert(ctx context.Context, ns string, records []Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	space, ok := m.namespaces[ns]
	if !ok {
		space = &namespace{records: make(map[string]Record)}
		m.namespaces[ns] = space
	}

	for _, r := range records {
		if len(r.Vector) == 0 {
			return fmt.Errorf("record %s: empty vector", r.ID)
		}
		if space.dimension == 0 {
			space.dimension = len(r.Vector)
		}
		if len(r.Vector) != space.dimension {
			return fmt.Errorf("record %s: %w (got %d, want %d)", r.ID, ErrDimensionMismatch, len(r.Vector), space.dimension)
		}
		space.records[r.ID] = Record{
			ID:       r.ID,
			Vector:   normalizeVector(r.Vector),
			Metadata: r.Metadata,
		}
	}
	return nil
}

// Query returns the topK most similar records that satisfy expr. An unknown
// namespace yields no results; a query vector of a different dimension is
// ErrDimensionMismatch.
func (m *MemoryIndex) Query(ctx context.Context, ns string, vec []float32, expr *filter.Expression, topK int) ([]Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return []Match{}, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	space, ok := m.namespaces[ns]
	if !ok {
		return []Match{}, nil
	}
	if len(vec) != space.dimension {
		return nil, fmt.Errorf("query: %w (got %d, want %d)", ErrDimensionMismatch, len(vec), space.dimension)
	}

	q := normalizeVector(vec)
	results := make([]Match, 0, len(space.records))
	for _, r := range space.records {
		if !expr.Matches(r.Metadata) {
			continue
		}
		results = append(results, Match{
			ID:       r.ID,
			Score:    dot(q, r.Vector),
			Metadata: r.Metadata,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})

	if topK < len(results) {
		results = results[:topK]
	}
	return results, nil
}

// Count returns the number of records in a namespace.
func (m *MemoryIndex) Count(_ context.Context, ns string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if space, ok := m.namespaces[ns]; ok {
		return int64(len(space.records)), nil
	}
	return 0, nil
}

// Close is a no-op.
func (m *MemoryIndex) Close() error {
	return nil
}

func dot(a, b []float32) float32 {
	var s float32
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func normalizeVector(v []float32) []float32 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if norm == 0 {
		return out
	}
	inv := 1 / math.Sqrt(norm)
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out
}

var _ Index = (*MemoryIndex)(nil)
