// Package assistant runs one chat turn: classify the question, gather
// context, build the system prompt, call the model and fulfil card requests.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/minerva-reviews/review-engine/internal/cards"
	"github.com/minerva-reviews/review-engine/internal/chat"
	"github.com/minerva-reviews/review-engine/internal/conversation"
	"github.com/minerva-reviews/review-engine/internal/monitoring"
	"github.com/minerva-reviews/review-engine/internal/observability"
	"github.com/minerva-reviews/review-engine/internal/prompt"
	"github.com/minerva-reviews/review-engine/internal/query"
	"github.com/minerva-reviews/review-engine/internal/retrieval"
	"github.com/minerva-reviews/review-engine/internal/storage"
)

var (
	// ErrNoUserMessage is returned when the conversation has no user turn.
	ErrNoUserMessage = errors.New("assistant: no user message")
	// ErrChatFailure wraps failures of the chat model call.
	ErrChatFailure = errors.New("assistant: chat model failed")
)

// Retriever runs the main retrieval. *retrieval.Engine implements it.
type Retriever interface {
	Retrieve(ctx context.Context, req retrieval.Request) (*retrieval.Result, error)
}

// ContextStore caches context between turns. *conversation.Store implements it.
type ContextStore interface {
	Get(ctx context.Context, id string) (*conversation.Entry, error)
	Set(ctx context.Context, id, topicLabel string, bundle *retrieval.Bundle) error
}

// CardFulfiller answers card tool calls. *cards.Recommender implements it.
type CardFulfiller interface {
	Fulfill(ctx context.Context, args cards.Args) ([]cards.Card, error)
}

// Auditor records prepared turns. *monitoring.AuditLogger implements it.
type Auditor interface {
	RecordTurn(ctx context.Context, ev monitoring.TurnEvent)
}

// Deps are the collaborators of a Service. Store, Cards, Chat, Auditor and
// Metrics are optional.
type Deps struct {
	Classifier query.Classifier
	Retriever  Retriever
	Assembler  *retrieval.Assembler
	Store      ContextStore
	Mapper     *cards.Mapper
	Cards      CardFulfiller
	Chat       chat.Service
	Auditor    Auditor
	Logger     *observability.Logger
	Metrics    *observability.Metrics
}

// Service orchestrates chat turns.
type Service struct {
	deps   Deps
	logger *observability.Logger
}

// NewService creates a service.
func NewService(deps Deps) *Service {
	if deps.Logger == nil {
		deps.Logger = observability.NopLogger()
	}
	if deps.Assembler == nil {
		deps.Assembler = retrieval.NewAssembler(retrieval.DefaultTopK)
	}
	if deps.Mapper == nil {
		deps.Mapper = cards.NewMapper(deps.Logger, deps.Metrics)
	}
	return &Service{deps: deps, logger: deps.Logger.WithComponent("assistant")}
}

// Turn is a prepared turn: everything needed to call the model.
type Turn struct {
	ConversationID string                `json:"conversationId,omitempty"`
	Query          string                `json:"query"`
	Analysis       query.Analysis        `json:"analysis"`
	SystemPrompt   string                `json:"systemPrompt"`
	Bundle         *retrieval.Bundle     `json:"bundle,omitempty"`
	ContextSource  storage.ContextSource `json:"contextSource"`
	Relaxed        bool                  `json:"relaxed"`
	RetrievalError string                `json:"retrievalError,omitempty"`
	// Cards are ready-made from this turn's retrieval, for comparison and
	// book-detail flows.
	Cards []cards.Card `json:"cards"`
}

// Reply is the model's answer to a turn.
type Reply struct {
	Text       string       `json:"text"`
	Cards      []cards.Card `json:"cards"`
	ToolCalled bool         `json:"toolCalled"`
	Turn       *Turn        `json:"-"`
}

// Prepare classifies the latest user message and builds the system prompt.
// Retrieval failures degrade to the base prompt and are reported on the
// Turn, never returned.
func (s *Service) Prepare(ctx context.Context, conversationID string, messages []chat.Message) (*Turn, error) {
	start := time.Now()
	text := LastUserMessage(messages)
	if text == "" {
		return nil, ErrNoUserMessage
	}

	log := s.logger.WithContext(ctx).WithConversation(conversationID)
	analysis := s.deps.Classifier.Classify(ctx, text)
	s.deps.Metrics.RecordClassification(string(analysis.Type))

	turn := &Turn{
		ConversationID: conversationID,
		Query:          text,
		Analysis:       analysis,
		ContextSource:  storage.ContextSourceNone,
		Cards:          []cards.Card{},
	}
	log.Debug().
		Str("query_type", string(analysis.Type)).
		Interface("filters", analysis.Filters).
		Msg("Classified query")

	ev := monitoring.TurnEvent{ConversationID: conversationID, Query: text, Analysis: analysis}

	switch {
	case analysis.Type == query.TypeRecommendation:
		turn.SystemPrompt = prompt.Recommendation()

	case analysis.Type == query.TypeFollowUp && s.cachedFollowUp(ctx, turn):
		log.Debug().Msg("Answering follow-up from cached context")

	default:
		if err := s.retrieve(ctx, turn, &ev); err != nil {
			log.Warn().Err(err).Msg("Retrieval failed, continuing without context")
			turn.RetrievalError = err.Error()
			ev.Err = err
		}
		if turn.SystemPrompt == "" {
			turn.SystemPrompt = prompt.Base
		}
	}

	ev.ContextSource = turn.ContextSource
	ev.Relaxed = turn.Relaxed
	if turn.Bundle != nil {
		ev.ResultKeys = turn.Bundle.Keys
	}
	ev.Latency = time.Since(start)
	if s.deps.Auditor != nil {
		s.deps.Auditor.RecordTurn(ctx, ev)
	}
	return turn, nil
}

// cachedFollowUp fills turn from the conversation cache. Reports false on
// a miss, so the caller falls through to ordinary retrieval.
func (s *Service) cachedFollowUp(ctx context.Context, turn *Turn) bool {
	if s.deps.Store == nil || turn.ConversationID == "" {
		return false
	}
	entry, err := s.deps.Store.Get(ctx, turn.ConversationID)
	if err != nil {
		if !errors.Is(err, conversation.ErrNotFound) {
			s.logger.Warn().Err(err).Msg("Conversation cache lookup failed")
		}
		return false
	}
	text := entry.Text()
	if text == "" {
		return false
	}
	turn.Bundle = entry.Bundle
	turn.SystemPrompt = prompt.FollowUp(text)
	turn.ContextSource = storage.ContextSourceCache
	return true
}

func (s *Service) retrieve(ctx context.Context, turn *Turn, ev *monitoring.TurnEvent) error {
	a := turn.Analysis
	comparison := a.Type == query.TypeComparison

	res, err := s.deps.Retriever.Retrieve(ctx, retrieval.Request{
		Query:      turn.Query,
		Filters:    a.Filters,
		Comparison: comparison,
	})
	if err != nil {
		ev.Outcome = retrieval.OutcomeFailure
		return err
	}
	ev.Outcome = res.Outcome()
	turn.Relaxed = res.Relaxed

	bundle := s.deps.Assembler.Assemble(res.Matches, retrieval.Options{
		Comparison: comparison,
		Titles:     a.Filters.Titles,
	})
	if bundle.Empty() {
		return nil
	}

	turn.Bundle = bundle
	turn.ContextSource = storage.ContextSourceRetrieval
	if comparison {
		turn.SystemPrompt = prompt.Comparison(bundle.Text())
	} else {
		turn.SystemPrompt = prompt.WithContext(bundle.Text())
	}

	if comparison || a.Type == query.TypeBookInfo {
		turn.Cards = s.deps.Mapper.FromMatches(bundled(res.Matches, bundle))
	}

	if s.deps.Store != nil && turn.ConversationID != "" && a.Type != query.TypeFollowUp {
		topic := conversation.TopicLabel(a.Filters.Title, a.Filters.Author, a.Filters.Titles, bundle)
		if err := s.deps.Store.Set(ctx, turn.ConversationID, topic, bundle); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to cache conversation context")
		}
	}
	return nil
}

// bundled keeps the matches whose keys made it into the bundle, in bundle order.
func bundled(matches []retrieval.Match, b *retrieval.Bundle) []retrieval.Match {
	byKey := make(map[string]retrieval.Match, len(matches))
	for _, m := range matches {
		if _, ok := byKey[m.Key]; !ok {
			byKey[m.Key] = m
		}
	}
	out := make([]retrieval.Match, 0, len(b.Keys))
	for _, k := range b.Keys {
		if m, ok := byKey[k]; ok {
			out = append(out, m)
		}
	}
	return out
}

// Respond prepares the turn, calls the chat model and fulfils any card
// tool call. Only chat model failures are returned as errors.
func (s *Service) Respond(ctx context.Context, conversationID string, messages []chat.Message, onToken chat.TokenFunc) (*Reply, error) {
	if s.deps.Chat == nil {
		return nil, fmt.Errorf("%w: no chat service configured", ErrChatFailure)
	}

	turn, err := s.Prepare(ctx, conversationID, messages)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := s.deps.Chat.Stream(ctx, chat.Request{
		System:   turn.SystemPrompt,
		Messages: messages,
		Tools:    []chat.Tool{cards.Tool()},
	}, onToken)
	if err != nil {
		s.deps.Metrics.RecordChatError("stream")
		return nil, fmt.Errorf("%w: %v", ErrChatFailure, err)
	}
	s.deps.Metrics.RecordChat(time.Since(start))

	reply := &Reply{Text: resp.Text, Cards: []cards.Card{}, Turn: turn}
	for _, call := range resp.ToolCalls {
		if call.Name != cards.ToolName {
			s.logger.Warn().Str("tool", call.Name).Msg("Ignoring unknown tool call")
			continue
		}
		reply.ToolCalled = true
		reply.Cards = s.fulfill(ctx, turn, cards.ParseArgs(call.Arguments))
		break
	}
	return reply, nil
}

// fulfill answers a card tool call: ready-made cards when this turn's
// retrieval produced them, otherwise a secondary retrieval.
func (s *Service) fulfill(ctx context.Context, turn *Turn, args cards.Args) []cards.Card {
	if len(turn.Cards) > 0 && len(args.SpecificTitles) == 0 {
		return turn.Cards
	}
	if s.deps.Cards == nil {
		return turn.Cards
	}
	if isZeroArgs(args) && turn.Analysis.Type == query.TypeRecommendation {
		args = cards.ArgsFromFilters(turn.Analysis.Filters)
	}

	out, err := s.deps.Cards.Fulfill(ctx, args)
	if err != nil {
		s.deps.Metrics.RecordChatError("cards")
		s.logger.Warn().Err(err).Msg("Card tool call failed")
		return []cards.Card{}
	}
	return out
}

func isZeroArgs(a cards.Args) bool {
	return a.Grade == "" && a.Subgenre == "" && a.SimilarTo == "" && a.Keywords == "" &&
		len(a.Tags) == 0 && len(a.SpecificTitles) == 0
}

// LastUserMessage returns the content of the most recent user message.
func LastUserMessage(messages []chat.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == chat.RoleUser {
			return strings.TrimSpace(messages[i].Content)
		}
	}
	return ""
}
