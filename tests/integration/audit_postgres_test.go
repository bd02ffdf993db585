package integration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minerva-reviews/review-engine/internal/monitoring"
	"github.com/minerva-reviews/review-engine/internal/observability"
	"github.com/minerva-reviews/review-engine/internal/query"
	"github.com/minerva-reviews/review-engine/internal/storage"
)

func newAuditRepo(t *testing.T) *storage.AuditRepository {
	t.Helper()
	ctx := context.Background()

	db, err := storage.Open(ctx, storage.DriverPostgres, startPostgres(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo := storage.NewAuditRepository(db)
	require.NoError(t, repo.Migrate(ctx))
	// migrations are idempotent
	require.NoError(t, repo.Migrate(ctx))
	return repo
}

func TestPostgresAuditRepository(t *testing.T) {
	requireDocker(t)
	ctx := context.Background()
	repo := newAuditRepo(t)

	row := &storage.RetrievalAudit{
		ID:             uuid.New(),
		ConversationID: "conv-pg",
		Query:          "Tell me about Persuasion",
		QueryType:      string(query.TypeBookInfo),
		Filters:        `{"title":"Persuasion"}`,
		ContextSource:  storage.ContextSourceRetrieval,
		Outcome:        "success",
		Relaxed:        true,
		ResultKeys:     []string{"persuasion", "emma"},
		LatencyMs:      42,
		CreatedAt:      time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, repo.Create(ctx, row))

	got, err := repo.GetByID(ctx, row.ID)
	require.NoError(t, err)
	assert.Equal(t, row.Query, got.Query)
	assert.Equal(t, row.ResultKeys, got.ResultKeys)
	assert.True(t, got.Relaxed)
	assert.Equal(t, storage.ContextSourceRetrieval, got.ContextSource)

	_, err = repo.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPostgresAuditLogger_ListsNewestFirst(t *testing.T) {
	requireDocker(t)
	ctx := context.Background()
	repo := newAuditRepo(t)
	audit := monitoring.NewAuditLogger(observability.NopLogger(), repo)

	audit.RecordTurn(ctx, monitoring.TurnEvent{
		ConversationID: "conv-list",
		Query:          "Who is Jane Austen?",
		Analysis:       query.Analysis{Type: query.TypeAuthorInfo, Filters: query.Filters{Author: "Jane Austen"}},
		ContextSource:  storage.ContextSourceRetrieval,
		ResultKeys:     []string{"persuasion"},
	})
	time.Sleep(10 * time.Millisecond)
	audit.RecordTurn(ctx, monitoring.TurnEvent{
		ConversationID: "conv-list",
		Query:          "Is it sad?",
		Analysis:       query.Analysis{Type: query.TypeFollowUp},
		ContextSource:  storage.ContextSourceCache,
		Err:            errors.New("boom"),
	})

	rows, err := repo.ListByConversation(ctx, "conv-list", 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Is it sad?", rows[0].Query)
	assert.Equal(t, "boom", rows[0].Error)
	assert.Equal(t, string(query.TypeAuthorInfo), rows[1].QueryType)
	assert.JSONEq(t, `{"author":"Jane Austen"}`, rows[1].Filters)
}
