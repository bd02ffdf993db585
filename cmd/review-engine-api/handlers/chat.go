package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/minerva-reviews/review-engine/internal/assistant"
	"github.com/minerva-reviews/review-engine/internal/cards"
	"github.com/minerva-reviews/review-engine/internal/chat"
	"github.com/minerva-reviews/review-engine/internal/observability"
)

// Assistant prepares and answers chat turns. *assistant.Service implements it.
type Assistant interface {
	Prepare(ctx context.Context, conversationID string, messages []chat.Message) (*assistant.Turn, error)
	Respond(ctx context.Context, conversationID string, messages []chat.Message, onToken chat.TokenFunc) (*assistant.Reply, error)
}

// ChatHandler handles chat turns.
type ChatHandler struct {
	logger    *observability.Logger
	assistant Assistant
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(logger *observability.Logger, a Assistant) *ChatHandler {
	return &ChatHandler{logger: logger.WithComponent("chat-handler"), assistant: a}
}

// ChatRequestDTO represents the API request for a chat turn.
type ChatRequestDTO struct {
	ConversationID string       `json:"conversationId"`
	Messages       []MessageDTO `json:"messages"`
}

// ChatResponseDTO represents the API response for a chat turn.
type ChatResponseDTO struct {
	ConversationID string       `json:"conversationId,omitempty"`
	Text           string       `json:"text"`
	Cards          []cards.Card `json:"cards"`
	ToolCalled     bool         `json:"toolCalled"`
	QueryType      string       `json:"queryType"`
	ContextSource  string       `json:"contextSource"`
}

// StreamEventDTO is one NDJSON line of a streamed chat turn.
type StreamEventDTO struct {
	Type    string           `json:"type"` // token, done or error
	Content string           `json:"content,omitempty"`
	Reply   *ChatResponseDTO `json:"reply,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// Chat handles POST /api/v1/chat. With ?stream=true the response is NDJSON:
// token events followed by a single done or error event.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequestDTO
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages are required", "")
		return
	}
	messages, err := toMessages(req.Messages)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid messages", err.Error())
		return
	}

	if r.URL.Query().Get("stream") == "true" {
		h.stream(w, r, req.ConversationID, messages)
		return
	}

	reply, err := h.assistant.Respond(r.Context(), req.ConversationID, messages, nil)
	if err != nil {
		status, msg := chatErrorStatus(err)
		h.logger.WithContext(r.Context()).Error().Err(err).Msg("Chat turn failed")
		writeError(w, status, msg, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toChatResponse(req.ConversationID, reply))
}

func (h *ChatHandler) stream(w http.ResponseWriter, r *http.Request, conversationID string, messages []chat.Message) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported", "")
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)
	emit := func(ev StreamEventDTO) {
		if err := enc.Encode(ev); err != nil {
			h.logger.Debug().Err(err).Msg("Stream write failed")
			return
		}
		flusher.Flush()
	}

	reply, err := h.assistant.Respond(r.Context(), conversationID, messages, func(token string) {
		emit(StreamEventDTO{Type: "token", Content: token})
	})
	if err != nil {
		h.logger.WithContext(r.Context()).Error().Err(err).Msg("Streamed chat turn failed")
		_, msg := chatErrorStatus(err)
		emit(StreamEventDTO{Type: "error", Error: msg})
		return
	}
	resp := toChatResponse(conversationID, reply)
	emit(StreamEventDTO{Type: "done", Reply: &resp})
}

func chatErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, assistant.ErrNoUserMessage):
		return http.StatusBadRequest, "no user message"
	case errors.Is(err, assistant.ErrChatFailure):
		return http.StatusBadGateway, "chat model unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "request timed out"
	default:
		return http.StatusInternalServerError, "chat failed"
	}
}

func toChatResponse(conversationID string, reply *assistant.Reply) ChatResponseDTO {
	dto := ChatResponseDTO{
		ConversationID: conversationID,
		Text:           reply.Text,
		Cards:          reply.Cards,
		ToolCalled:     reply.ToolCalled,
	}
	if dto.Cards == nil {
		dto.Cards = []cards.Card{}
	}
	if reply.Turn != nil {
		dto.QueryType = string(reply.Turn.Analysis.Type)
		dto.ContextSource = string(reply.Turn.ContextSource)
	}
	return dto
}
