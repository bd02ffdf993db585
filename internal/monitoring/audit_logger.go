// Package monitoring records an audit trail of prepared chat turns.
package monitoring

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/minerva-reviews/review-engine/internal/observability"
	"github.com/minerva-reviews/review-engine/internal/query"
	"github.com/minerva-reviews/review-engine/internal/storage"
)

// AuditStore persists audit rows. *storage.AuditRepository implements it.
type AuditStore interface {
	Create(ctx context.Context, a *storage.RetrievalAudit) error
}

// TurnEvent describes one prepared turn.
type TurnEvent struct {
	ConversationID string
	Query          string
	Analysis       query.Analysis
	ContextSource  storage.ContextSource
	Outcome        string
	Relaxed        bool
	ResultKeys     []string
	Err            error
	Latency        time.Duration
}

// AuditLogger writes turn events to the structured log and, when a store
// is configured, to the audit table.
type AuditLogger struct {
	logger *observability.Logger
	store  AuditStore
}

// NewAuditLogger creates an audit logger. store may be nil.
func NewAuditLogger(logger *observability.Logger, store AuditStore) *AuditLogger {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &AuditLogger{logger: logger.WithComponent("audit"), store: store}
}

// RecordTurn logs the event. Persistence errors are logged, not returned:
// a lost audit row never fails a chat turn.
func (a *AuditLogger) RecordTurn(ctx context.Context, ev TurnEvent) {
	filters, _ := json.Marshal(ev.Analysis.Filters)
	row := &storage.RetrievalAudit{
		ID:             uuid.New(),
		RequestID:      observability.RequestIDFromContext(ctx),
		ConversationID: ev.ConversationID,
		Query:          ev.Query,
		QueryType:      string(ev.Analysis.Type),
		Filters:        string(filters),
		ContextSource:  ev.ContextSource,
		Outcome:        ev.Outcome,
		Relaxed:        ev.Relaxed,
		ResultKeys:     ev.ResultKeys,
		LatencyMs:      ev.Latency.Milliseconds(),
		CreatedAt:      time.Now().UTC(),
	}
	if ev.Err != nil {
		row.Error = ev.Err.Error()
	}

	a.logger.WithContext(ctx).Info().
		Str("audit_id", row.ID.String()).
		Str("conversation_id", row.ConversationID).
		Str("query_type", row.QueryType).
		Str("filters", row.Filters).
		Str("context_source", string(row.ContextSource)).
		Str("outcome", row.Outcome).
		Bool("relaxed", row.Relaxed).
		Strs("result_keys", row.ResultKeys).
		Int("latency_ms", int(row.LatencyMs)).
		Msg("Audit event")

	if a.store == nil {
		return
	}
	if err := a.store.Create(ctx, row); err != nil {
		a.logger.Warn().Str("audit_id", row.ID.String()).Err(err).Msg("Failed to persist audit event")
	}
}
