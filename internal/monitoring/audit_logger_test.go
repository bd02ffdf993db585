package monitoring

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minerva-reviews/review-engine/internal/observability"
	"github.com/minerva-reviews/review-engine/internal/query"
	"github.com/minerva-reviews/review-engine/internal/storage"
)

type memoryStore struct {
	rows []*storage.RetrievalAudit
	err  error
}

func (m *memoryStore) Create(_ context.Context, a *storage.RetrievalAudit) error {
	if m.err != nil {
		return m.err
	}
	m.rows = append(m.rows, a)
	return nil
}

func TestAuditLogger_RecordTurn(t *testing.T) {
	var buf bytes.Buffer
	logger := observability.NewLogger(observability.LogConfig{Level: "info", Format: "json", Output: &buf})
	store := &memoryStore{}
	a := NewAuditLogger(logger, store)

	ctx := observability.ContextWithRequestID(context.Background(), "req-7")
	a.RecordTurn(ctx, TurnEvent{
		ConversationID: "conv-1",
		Query:          "Compare Pride and Prejudice with Persuasion",
		Analysis: query.Analysis{
			Type:    query.TypeComparison,
			Filters: query.Filters{Titles: []string{"Pride and Prejudice", "Persuasion"}},
		},
		ContextSource: storage.ContextSourceRetrieval,
		Outcome:       "hit",
		ResultKeys:    []string{"Pride and Prejudice", "Persuasion"},
		Latency:       120 * time.Millisecond,
	})

	require.Len(t, store.rows, 1)
	row := store.rows[0]
	assert.Equal(t, "req-7", row.RequestID)
	assert.Equal(t, "comparison", row.QueryType)
	assert.JSONEq(t, `{"titles":["Pride and Prejudice","Persuasion"]}`, row.Filters)
	assert.Equal(t, int64(120), row.LatencyMs)
	assert.Empty(t, row.Error)

	assert.Contains(t, buf.String(), `"message":"Audit event"`)
	assert.Contains(t, buf.String(), `"conversation_id":"conv-1"`)
}

func TestAuditLogger_StoreFailureIsSwallowed(t *testing.T) {
	store := &memoryStore{err: errors.New("disk full")}
	a := NewAuditLogger(nil, store)

	assert.NotPanics(t, func() {
		a.RecordTurn(context.Background(), TurnEvent{
			Query:    "hello",
			Analysis: query.General(),
			Err:      errors.New("retrieval failure at embed: timeout"),
		})
	})
}

func TestAuditLogger_NoStore(t *testing.T) {
	a := NewAuditLogger(observability.NopLogger(), nil)
	a.RecordTurn(context.Background(), TurnEvent{Query: "x", Analysis: query.General()})
}
