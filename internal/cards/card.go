// Package cards maps retrieved reviews to the book cards rendered by the
// chat client, and fulfils the model's card tool calls.
package cards

import (
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/minerva-reviews/review-engine/internal/catalog"
	"github.com/minerva-reviews/review-engine/internal/observability"
	"github.com/minerva-reviews/review-engine/internal/retrieval"
)

// UnknownAuthor is used when a review has no author.
const UnknownAuthor = "Unknown Author"

const summaryLimit = 300

// Card is one book card.
type Card struct {
	Title      string   `json:"title"`
	Author     string   `json:"author"`
	Grade      string   `json:"grade,omitempty"`
	Sensuality string   `json:"sensuality,omitempty"`
	BookType   string   `json:"bookType,omitempty"`
	BookTypes  []string `json:"bookTypes,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	Summary    string   `json:"summary,omitempty"`
	ASIN       string   `json:"asin,omitempty"`
	URL        string   `json:"url,omitempty"`
	CoverURL   string   `json:"coverUrl,omitempty"`
	PostID     string   `json:"postId,omitempty"`
}

// Result is either a valid card or an invalid one with a reason.
type Result struct {
	Card   Card
	Reason string
	ok     bool
}

// Valid wraps a card that passed validation.
func Valid(c Card) Result { return Result{Card: c, ok: true} }

// Invalid wraps a rejected card.
func Invalid(c Card, reason string) Result { return Result{Card: c, Reason: reason} }

// OK reports whether the card is valid.
func (r Result) OK() bool { return r.ok }

// Validate checks the card schema: title and author are required and link
// fields must be absolute http(s) URLs.
func Validate(c Card) Result {
	if strings.TrimSpace(c.Title) == "" {
		return Invalid(c, "title is required")
	}
	if strings.TrimSpace(c.Author) == "" {
		return Invalid(c, "author is required")
	}
	if c.URL != "" && !isHTTPURL(c.URL) {
		return Invalid(c, "url is not an absolute http(s) URL")
	}
	if c.CoverURL != "" && !isHTTPURL(c.CoverURL) {
		return Invalid(c, "coverUrl is not an absolute http(s) URL")
	}
	return Valid(c)
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// FromEntity builds a card from a catalog entity.
func FromEntity(e catalog.Entity) Card {
	author := e.Author
	if author == "" {
		author = UnknownAuthor
	}
	c := Card{
		Title:      e.Title,
		Author:     author,
		Grade:      e.Grade,
		Sensuality: e.Sensuality,
		BookTypes:  e.TypeTags,
		Tags:       e.TopicalTags,
		Summary:    truncate(e.Excerpt, summaryLimit),
		ASIN:       e.ExternalIDs.ASIN,
		URL:        e.ExternalIDs.ReviewURL,
		CoverURL:   e.ExternalIDs.CoverURL,
		PostID:     e.ExternalIDs.PostID,
	}
	if len(e.TypeTags) > 0 {
		c.BookType = e.TypeTags[0]
	}
	return c
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit-3]) + "..."
}

// Mapper turns matches into validated, de-duplicated cards.
type Mapper struct {
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewMapper creates a mapper. Both arguments may be nil.
func NewMapper(logger *observability.Logger, metrics *observability.Metrics) *Mapper {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Mapper{logger: logger.WithComponent("cards"), metrics: metrics}
}

// FromMatches returns one valid card per entity key, in match order.
// Invalid cards are dropped individually. Never returns nil.
func (m *Mapper) FromMatches(matches []retrieval.Match) []Card {
	results := make([]Result, 0, len(matches))
	seen := make(map[string]bool)
	for _, match := range matches {
		if seen[match.Key] {
			continue
		}
		seen[match.Key] = true
		results = append(results, Validate(FromEntity(match.Entity)))
	}
	return m.Collect(results)
}

// Collect keeps the valid cards and logs the rest.
func (m *Mapper) Collect(results []Result) []Card {
	out := make([]Card, 0, len(results))
	invalid := 0
	for _, r := range results {
		if !r.OK() {
			invalid++
			m.logger.Debug().Str("title", r.Card.Title).Str("reason", r.Reason).Msg("Dropping invalid card")
			continue
		}
		out = append(out, r.Card)
	}
	m.metrics.RecordCards(len(out), invalid)
	return out
}
