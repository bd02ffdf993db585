// Package storage persists the retrieval audit trail.
package storage

import (
	"time"

	"github.com/google/uuid"
)

// ContextSource says where a turn's context came from.
type ContextSource string

const (
	ContextSourceRetrieval ContextSource = "retrieval"
	ContextSourceCache     ContextSource = "cache"
	ContextSourceNone      ContextSource = "none"
)

// RetrievalAudit is one prepared chat turn.
type RetrievalAudit struct {
	ID             uuid.UUID     `json:"id"`
	RequestID      string        `json:"request_id,omitempty"`
	ConversationID string        `json:"conversation_id,omitempty"`
	Query          string        `json:"query"`
	QueryType      string        `json:"query_type"`
	Filters        string        `json:"filters"` // JSON object
	ContextSource  ContextSource `json:"context_source"`
	Outcome        string        `json:"outcome,omitempty"`
	Relaxed        bool          `json:"relaxed"`
	ResultKeys     []string      `json:"result_keys"`
	Error          string        `json:"error,omitempty"`
	LatencyMs      int64         `json:"latency_ms"`
	CreatedAt      time.Time     `json:"created_at"`
}
