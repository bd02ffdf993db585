package embedding

import (
	"context"
	"math"
	"strings"
)

// MockClient produces deterministic bag-of-words vectors, so texts sharing
// words land close together. Used for development and tests.
type MockClient struct {
	dimension int
}

// NewMockClient creates a mock client.
func NewMockClient(dimension int) *MockClient {
	if dimension <= 0 {
		dimension = 256
	}
	return &MockClient{dimension: dimension}
}

// Embed implements Embedder.
func (c *MockClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, c.dimension)
		for _, word := range strings.Fields(strings.ToLower(text)) {
			word = strings.Trim(word, `.,!?;:"'()`)
			if word == "" {
				continue
			}
			vec[fnv32(word)%uint32(c.dimension)] += 1
		}
		out[i] = Normalize(vec)
	}
	return out, nil
}

// EmbedSingle implements Embedder.
func (c *MockClient) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	return embedOne(ctx, c, text)
}

// Model returns the mock model name.
func (c *MockClient) Model() string {
	return "mock-embedding-model"
}

// Dimension returns the embedding dimension.
func (c *MockClient) Dimension() int {
	return c.dimension
}

func fnv32(s string) uint32 {
	h := uint32(2166136261)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}

// Normalize scales v to unit length in place. Zero vectors are returned as is.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
	return v
}
