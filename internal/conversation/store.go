// Package conversation remembers the last assembled context per
// conversation so follow-up questions can reuse it.
package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/minerva-reviews/review-engine/internal/cache"
	"github.com/minerva-reviews/review-engine/internal/observability"
	"github.com/minerva-reviews/review-engine/internal/retrieval"
)

// ErrNotFound is returned when a conversation has no cached context.
var ErrNotFound = errors.New("conversation: no cached context")

// ErrMissingID is returned for an empty conversation id.
var ErrMissingID = errors.New("conversation: id is required")

const keyPrefix = "conversation"

// Entry is the cached context of one conversation. Bundle is nil when only
// raw text was stored.
type Entry struct {
	TopicLabel string            `json:"topicLabel,omitempty"`
	Bundle     *retrieval.Bundle `json:"bundle,omitempty"`
	RawContext string            `json:"rawContext,omitempty"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}

// Text returns the context text to place in a prompt.
func (e *Entry) Text() string {
	if e == nil {
		return ""
	}
	if !e.Bundle.Empty() {
		return e.Bundle.Text()
	}
	return e.RawContext
}

// Store reads and writes entries through a cache client. Concurrent writes
// for the same id are last-writer-wins.
type Store struct {
	cache   cache.Client
	ttl     time.Duration
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewStore creates a store. ttl of zero uses the cache client's default.
func NewStore(c cache.Client, ttl time.Duration, logger *observability.Logger, metrics *observability.Metrics) *Store {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Store{
		cache:   c,
		ttl:     ttl,
		logger:  logger.WithComponent("conversation"),
		metrics: metrics,
	}
}

// Get returns the cached entry for id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*Entry, error) {
	if id == "" {
		return nil, ErrMissingID
	}

	data, err := s.cache.Get(ctx, cacheKey(id))
	if errors.Is(err, cache.ErrCacheMiss) {
		s.metrics.RecordCacheLookup(false)
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation %s: %w", id, err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		s.logger.Warn().Str("conversation_id", id).Err(err).Msg("Discarding unreadable cache entry")
		_ = s.cache.Delete(ctx, cacheKey(id))
		s.metrics.RecordCacheLookup(false)
		return nil, ErrNotFound
	}

	s.metrics.RecordCacheLookup(true)
	return &entry, nil
}

// Set stores the bundle and topic label for id, replacing any previous entry.
func (s *Store) Set(ctx context.Context, id, topicLabel string, bundle *retrieval.Bundle) error {
	return s.put(ctx, id, Entry{TopicLabel: topicLabel, Bundle: bundle})
}

// SetRaw stores preformatted context text for id.
func (s *Store) SetRaw(ctx context.Context, id, topicLabel, text string) error {
	return s.put(ctx, id, Entry{TopicLabel: topicLabel, RawContext: text})
}

// Delete forgets a conversation.
func (s *Store) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrMissingID
	}
	return s.cache.Delete(ctx, cacheKey(id))
}

func (s *Store) put(ctx context.Context, id string, entry Entry) error {
	if id == "" {
		return ErrMissingID
	}
	entry.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal conversation entry: %w", err)
	}
	if err := s.cache.Set(ctx, cacheKey(id), data, s.ttl); err != nil {
		return fmt.Errorf("set conversation %s: %w", id, err)
	}

	s.logger.Debug().
		Str("conversation_id", id).
		Str("topic", entry.TopicLabel).
		Msg("Cached conversation context")
	return nil
}

func cacheKey(id string) string {
	return cache.CacheKey(keyPrefix, id)
}

// TopicLabel names what a turn was about: the title (and author) for a
// single book, both titles for a comparison, else the first entity in
// the bundle.
func TopicLabel(title, author string, titles []string, bundle *retrieval.Bundle) string {
	switch {
	case len(titles) == 2:
		return titles[0] + " vs " + titles[1]
	case title != "" && author != "":
		return title + " by " + author
	case title != "":
		return title
	case author != "":
		return "books by " + author
	case !bundle.Empty():
		return strings.Join(bundle.Keys, ", ")
	default:
		return ""
	}
}
