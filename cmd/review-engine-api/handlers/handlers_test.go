package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minerva-reviews/review-engine/internal/assistant"
	"github.com/minerva-reviews/review-engine/internal/cards"
	"github.com/minerva-reviews/review-engine/internal/chat"
	"github.com/minerva-reviews/review-engine/internal/observability"
	"github.com/minerva-reviews/review-engine/internal/query"
	"github.com/minerva-reviews/review-engine/internal/storage"
)

type fakeAssistant struct {
	tokens  []string
	reply   *assistant.Reply
	turn    *assistant.Turn
	err     error
	gotConv string
	gotMsgs []chat.Message
}

func (f *fakeAssistant) Prepare(_ context.Context, conv string, msgs []chat.Message) (*assistant.Turn, error) {
	f.gotConv, f.gotMsgs = conv, msgs
	if f.err != nil {
		return nil, f.err
	}
	return f.turn, nil
}

func (f *fakeAssistant) Respond(_ context.Context, conv string, msgs []chat.Message, onToken chat.TokenFunc) (*assistant.Reply, error) {
	f.gotConv, f.gotMsgs = conv, msgs
	if f.err != nil {
		return nil, f.err
	}
	for _, tok := range f.tokens {
		if onToken != nil {
			onToken(tok)
		}
	}
	return f.reply, nil
}

func post(h http.HandlerFunc, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func sampleReply() *assistant.Reply {
	return &assistant.Reply{
		Text:       "Try Lord of Scoundrels.",
		Cards:      []cards.Card{{Title: "Lord of Scoundrels", Author: "Loretta Chase", Grade: "A+"}},
		ToolCalled: true,
		Turn: &assistant.Turn{
			Analysis:      query.Analysis{Type: query.TypeRecommendation},
			ContextSource: storage.ContextSourceNone,
		},
	}
}

func TestChat_JSON(t *testing.T) {
	fa := &fakeAssistant{reply: sampleReply()}
	h := NewChatHandler(observability.NopLogger(), fa)

	rec := post(h.Chat, "/api/v1/chat", `{"conversationId":"c1","messages":[{"role":"user","content":"recommend a regency"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ChatResponseDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "c1", resp.ConversationID)
	assert.Equal(t, "recommendation", resp.QueryType)
	assert.Equal(t, "none", resp.ContextSource)
	assert.True(t, resp.ToolCalled)
	require.Len(t, resp.Cards, 1)
	assert.Equal(t, "Lord of Scoundrels", resp.Cards[0].Title)
	assert.Equal(t, "c1", fa.gotConv)
	require.Len(t, fa.gotMsgs, 1)
}

func TestChat_Stream(t *testing.T) {
	fa := &fakeAssistant{tokens: []string{"Try ", "Lord of Scoundrels."}, reply: sampleReply()}
	h := NewChatHandler(observability.NopLogger(), fa)

	rec := post(h.Chat, "/api/v1/chat?stream=true", `{"messages":[{"role":"user","content":"recommend"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))

	var events []StreamEventDTO
	sc := bufio.NewScanner(rec.Body)
	for sc.Scan() {
		var ev StreamEventDTO
		require.NoError(t, json.Unmarshal(sc.Bytes(), &ev))
		events = append(events, ev)
	}
	require.Len(t, events, 3)
	assert.Equal(t, "token", events[0].Type)
	assert.Equal(t, "Try ", events[0].Content)
	assert.Equal(t, "done", events[2].Type)
	require.NotNil(t, events[2].Reply)
	assert.Len(t, events[2].Reply.Cards, 1)
}

func TestChat_StreamError(t *testing.T) {
	fa := &fakeAssistant{err: fmt.Errorf("%w: boom", assistant.ErrChatFailure)}
	h := NewChatHandler(observability.NopLogger(), fa)

	rec := post(h.Chat, "/api/v1/chat?stream=true", `{"messages":[{"role":"user","content":"hi"}]}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"type":"error"`)
	assert.Contains(t, rec.Body.String(), "chat model unavailable")
}

func TestChat_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{"bad json", `{`, nil, http.StatusBadRequest},
		{"empty body", ``, nil, http.StatusBadRequest},
		{"no messages", `{"messages":[]}`, nil, http.StatusBadRequest},
		{"bad role", `{"messages":[{"role":"tool","content":"x"}]}`, nil, http.StatusBadRequest},
		{"no user message", `{"messages":[{"role":"assistant","content":"x"}]}`, assistant.ErrNoUserMessage, http.StatusBadRequest},
		{"chat failure", `{"messages":[{"role":"user","content":"x"}]}`, fmt.Errorf("%w: down", assistant.ErrChatFailure), http.StatusBadGateway},
		{"timeout", `{"messages":[{"role":"user","content":"x"}]}`, context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"other", `{"messages":[{"role":"user","content":"x"}]}`, errors.New("?"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewChatHandler(observability.NopLogger(), &fakeAssistant{err: tt.err, reply: sampleReply()})
			rec := post(h.Chat, "/api/v1/chat", tt.body)
			assert.Equal(t, tt.status, rec.Code)

			var e ErrorDTO
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
			assert.NotEmpty(t, e.Error)
		})
	}
}

func TestClassify(t *testing.T) {
	h := NewQueryHandler(observability.NopLogger(), query.NewRuleClassifier(query.DefaultRuleConfig()), &fakeAssistant{})

	rec := post(h.Classify, "/api/v1/query/classify", `{"query":"Tell me about The Velvet Bond by Catherine Archer"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ClassifyResponseDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "book_info", resp.Type)
	assert.Equal(t, "The Velvet Bond", resp.Filters.Title)
	assert.Equal(t, "Catherine Archer", resp.Filters.Author)
	assert.True(t, resp.UsesRetrieval)
	assert.Contains(t, resp.Filter, `bookTitle = "The Velvet Bond"`)

	rec = post(h.Classify, "/api/v1/query/classify", `{"query":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestContext(t *testing.T) {
	fa := &fakeAssistant{turn: &assistant.Turn{
		Query:         "tell me about Emma",
		Analysis:      query.Analysis{Type: query.TypeBookInfo, Filters: query.Filters{Title: "Emma"}},
		SystemPrompt:  "prompt",
		ContextSource: storage.ContextSourceRetrieval,
		Cards:         []cards.Card{},
	}}
	h := NewQueryHandler(observability.NopLogger(), query.NewRuleClassifier(query.DefaultRuleConfig()), fa)

	rec := post(h.Context, "/api/v1/context", `{"conversationId":"c9","query":"tell me about Emma"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"contextSource":"retrieval"`)
	assert.Equal(t, "c9", fa.gotConv)
	require.Len(t, fa.gotMsgs, 1)
	assert.Equal(t, chat.RoleUser, fa.gotMsgs[0].Role)

	fa.err = assistant.ErrNoUserMessage
	rec = post(h.Context, "/api/v1/context", `{"messages":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	h := NewHealthHandler("review-engine", nil)
	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")

	rec = httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	down := NewHealthHandler("review-engine", func(context.Context) error { return errors.New("redis down") })
	rec = httptest.NewRecorder()
	down.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "redis down")
}
