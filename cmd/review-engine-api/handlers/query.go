package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/minerva-reviews/review-engine/internal/assistant"
	"github.com/minerva-reviews/review-engine/internal/chat"
	"github.com/minerva-reviews/review-engine/internal/filter"
	"github.com/minerva-reviews/review-engine/internal/observability"
	"github.com/minerva-reviews/review-engine/internal/query"
)

// QueryHandler exposes classification and context preparation without a
// model call.
type QueryHandler struct {
	logger     *observability.Logger
	classifier query.Classifier
	assistant  Assistant
}

// NewQueryHandler creates a new query handler.
func NewQueryHandler(logger *observability.Logger, classifier query.Classifier, a Assistant) *QueryHandler {
	return &QueryHandler{
		logger:     logger.WithComponent("query-handler"),
		classifier: classifier,
		assistant:  a,
	}
}

// ClassifyRequestDTO represents a classification request.
type ClassifyRequestDTO struct {
	Query string `json:"query"`
}

// ClassifyResponseDTO represents a classification result.
type ClassifyResponseDTO struct {
	Type          string        `json:"type"`
	Filters       query.Filters `json:"filters"`
	UsesRetrieval bool          `json:"usesRetrieval"`
	Filter        string        `json:"filter,omitempty"`
}

// Classify handles POST /api/v1/query/classify.
func (h *QueryHandler) Classify(w http.ResponseWriter, r *http.Request) {
	var req ClassifyRequestDTO
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required", "")
		return
	}

	a := h.classifier.Classify(r.Context(), req.Query)
	resp := ClassifyResponseDTO{
		Type:          string(a.Type),
		Filters:       a.Filters,
		UsesRetrieval: a.Type.UsesRetrieval(),
	}
	if expr := filter.Compile(a.Filters); expr != nil {
		resp.Filter = expr.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

// ContextRequestDTO asks for the context of a turn. Either Query or
// Messages must be set; Query is treated as a single user message.
type ContextRequestDTO struct {
	ConversationID string       `json:"conversationId"`
	Query          string       `json:"query,omitempty"`
	Messages       []MessageDTO `json:"messages,omitempty"`
}

// Context handles POST /api/v1/context. It runs classification, retrieval
// and prompt assembly and returns the prepared turn.
func (h *QueryHandler) Context(w http.ResponseWriter, r *http.Request) {
	var req ContextRequestDTO
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	var messages []chat.Message
	if strings.TrimSpace(req.Query) != "" {
		messages = []chat.Message{{Role: chat.RoleUser, Content: req.Query}}
	} else {
		var err error
		if messages, err = toMessages(req.Messages); err != nil {
			writeError(w, http.StatusBadRequest, "invalid messages", err.Error())
			return
		}
	}

	turn, err := h.assistant.Prepare(r.Context(), req.ConversationID, messages)
	if errors.Is(err, assistant.ErrNoUserMessage) {
		writeError(w, http.StatusBadRequest, "query is required", "")
		return
	}
	if err != nil {
		h.logger.WithContext(r.Context()).Error().Err(err).Msg("Context preparation failed")
		writeError(w, http.StatusInternalServerError, "context preparation failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, turn)
}
