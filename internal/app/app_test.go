package app

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minerva-reviews/review-engine/internal/chat"
	"github.com/minerva-reviews/review-engine/internal/config"
	"github.com/minerva-reviews/review-engine/internal/query"
	"github.com/minerva-reviews/review-engine/internal/storage"
)

type echoChat struct{}

func (echoChat) Stream(_ context.Context, req chat.Request, _ chat.TokenFunc) (*chat.Response, error) {
	return &chat.Response{Text: "ok"}, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Embedding.Dimension = 128
	cfg.Vector.SeedFile = filepath.Join("testdata", "reviews.yaml")
	cfg.Audit.Driver = "sqlite"
	cfg.Audit.DSN = ":memory:"
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestNew_WiresDevelopmentStack(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(t), Options{LogOutput: io.Discard, Component: "test", Chat: echoChat{}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	n, err := a.Index.Count(ctx, "book-review-full")
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)
	require.NoError(t, a.Ready(ctx))
	_, isRules := a.Classifier.(*query.RuleClassifier)
	assert.True(t, isRules)

	turn, err := a.Assistant.Prepare(ctx, "conv-1", []chat.Message{
		{Role: chat.RoleUser, Content: "Tell me about The Velvet Bond by Catherine Archer"},
	})
	require.NoError(t, err)
	assert.Equal(t, query.TypeBookInfo, turn.Analysis.Type)
	assert.Equal(t, storage.ContextSourceRetrieval, turn.ContextSource)
	assert.True(t, turn.Bundle.Contains("The Velvet Bond"))

	entry, err := a.Store.Get(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, "The Velvet Bond by Catherine Archer", entry.TopicLabel)

	rows, err := a.Audit.ListByConversation(ctx, "conv-1", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "book_info", rows[0].QueryType)
}

func TestNew_ModelClassifierStrategy(t *testing.T) {
	cfg := testConfig(t)
	cfg.Classifier.Strategy = "model"
	cfg.Audit.Driver = "none"

	a, err := New(context.Background(), cfg, Options{LogOutput: io.Discard, Chat: echoChat{}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	_, isModel := a.Classifier.(*query.ModelClassifier)
	assert.True(t, isModel)
}

func TestNew_BadSeedFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Vector.SeedFile = filepath.Join(t.TempDir(), "missing.yaml")

	a, err := New(context.Background(), cfg, Options{LogOutput: io.Discard, Chat: echoChat{}})
	assert.Error(t, err)
	assert.Nil(t, a)
}

func TestNewEmbedder(t *testing.T) {
	emb, err := NewEmbedder(config.EmbeddingConfig{Provider: "mock", Dimension: 32, RatePerSec: 10, Burst: 2})
	require.NoError(t, err)
	assert.Equal(t, 32, emb.Dimension())

	_, err = NewEmbedder(config.EmbeddingConfig{Provider: "cohere", Dimension: 32})
	assert.Error(t, err)
}
