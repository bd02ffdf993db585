package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Common errors
var (
	ErrNotFound = errors.New("record not found")
)

// DB represents a database connection interface.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// schema is portable between SQLite and Postgres.
const schema = `
CREATE TABLE IF NOT EXISTS retrieval_audit (
	id              TEXT PRIMARY KEY,
	request_id      TEXT NOT NULL DEFAULT '',
	conversation_id TEXT NOT NULL DEFAULT '',
	query           TEXT NOT NULL,
	query_type      TEXT NOT NULL,
	filters         TEXT NOT NULL DEFAULT '{}',
	context_source  TEXT NOT NULL,
	outcome         TEXT NOT NULL DEFAULT '',
	relaxed         BOOLEAN NOT NULL DEFAULT FALSE,
	result_keys     TEXT NOT NULL DEFAULT '[]',
	error           TEXT NOT NULL DEFAULT '',
	latency_ms      BIGINT NOT NULL DEFAULT 0,
	created_at      TIMESTAMP NOT NULL
)`

const conversationIndex = `
CREATE INDEX IF NOT EXISTS idx_retrieval_audit_conversation
	ON retrieval_audit (conversation_id, created_at)`

// AuditRepository handles retrieval audit rows.
type AuditRepository struct {
	db DB
}

// NewAuditRepository creates a new audit repository.
func NewAuditRepository(db DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Migrate creates the audit table and index if missing.
func (r *AuditRepository) Migrate(ctx context.Context) error {
	for _, stmt := range []string{schema, conversationIndex} {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate retrieval_audit: %w", err)
		}
	}
	return nil
}

// Create inserts an audit row.
func (r *AuditRepository) Create(ctx context.Context, a *RetrievalAudit) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if a.Filters == "" {
		a.Filters = "{}"
	}
	keys := a.ResultKeys
	if keys == nil {
		keys = []string{}
	}
	keysJSON, err := json.Marshal(keys)
	if err != nil {
		return fmt.Errorf("marshal result keys: %w", err)
	}

	query := `
		INSERT INTO retrieval_audit (id, request_id, conversation_id, query, query_type, filters,
			context_source, outcome, relaxed, result_keys, error, latency_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err = r.db.ExecContext(ctx, query,
		a.ID.String(), a.RequestID, a.ConversationID, a.Query, a.QueryType, a.Filters,
		string(a.ContextSource), a.Outcome, a.Relaxed, string(keysJSON), a.Error, a.LatencyMs,
		a.CreatedAt,
	)
	return err
}

// GetByID retrieves one audit row.
func (r *AuditRepository) GetByID(ctx context.Context, id uuid.UUID) (*RetrievalAudit, error) {
	query := selectAudit + ` WHERE id = $1`
	rows, err := r.db.QueryContext(ctx, query, id.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	return scanAudit(rows)
}

// ListByConversation returns the most recent rows for a conversation,
// newest first.
func (r *AuditRepository) ListByConversation(ctx context.Context, conversationID string, limit int) ([]*RetrievalAudit, error) {
	if limit <= 0 {
		limit = 50
	}
	query := selectAudit + ` WHERE conversation_id = $1 ORDER BY created_at DESC LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*RetrievalAudit
	for rows.Next() {
		a, err := scanAudit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

const selectAudit = `
	SELECT id, request_id, conversation_id, query, query_type, filters,
		context_source, outcome, relaxed, result_keys, error, latency_ms, created_at
	FROM retrieval_audit`

func scanAudit(rows *sql.Rows) (*RetrievalAudit, error) {
	var (
		a        RetrievalAudit
		id       string
		source   string
		keysJSON string
	)
	if err := rows.Scan(
		&id, &a.RequestID, &a.ConversationID, &a.Query, &a.QueryType, &a.Filters,
		&source, &a.Outcome, &a.Relaxed, &keysJSON, &a.Error, &a.LatencyMs, &a.CreatedAt,
	); err != nil {
		return nil, err
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse audit id: %w", err)
	}
	a.ID = parsed
	a.ContextSource = ContextSource(source)
	if err := json.Unmarshal([]byte(keysJSON), &a.ResultKeys); err != nil {
		return nil, fmt.Errorf("parse result keys: %w", err)
	}
	return &a, nil
}
