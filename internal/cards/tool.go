package cards

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/minerva-reviews/review-engine/internal/catalog"
	"github.com/minerva-reviews/review-engine/internal/chat"
	"github.com/minerva-reviews/review-engine/internal/filter"
	"github.com/minerva-reviews/review-engine/internal/observability"
	"github.com/minerva-reviews/review-engine/internal/query"
	"github.com/minerva-reviews/review-engine/internal/retrieval"
)

// ToolName is the function the chat model calls to show book cards.
const ToolName = "displayBookCards"

// Recommendation search limits.
const (
	DefaultMaxCards    = 5
	DefaultSearchWidth = 10
	DefaultTitleWidth  = 3
)

var toolSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "grade": {"type": "string", "description": "Filter by AAR grade (e.g. 'A+' or 'B')"},
    "subgenre": {"type": "string", "description": "Filter by subgenre or setting (e.g. 'medieval', 'Regency')"},
    "similarTo": {"type": "string", "description": "A book title the user liked to find similar recommendations"},
    "keywords": {"type": "string", "description": "General keywords or criteria for the recommendations"},
    "tags": {"type": "array", "items": {"type": "string"}, "description": "Specific romance tropes or themes to filter by"},
    "specificTitles": {"type": "array", "items": {"type": "string"}, "description": "List of specific book titles to display (used for comparisons)"}
  }
}`)

// Tool returns the card tool definition offered to the chat model.
func Tool() chat.Tool {
	return chat.Tool{
		Name: ToolName,
		Description: "Recommend romance novels based on the user's request or display specific books for comparison. " +
			"Use this tool whenever the user asks for book recommendations or similar books, or to compare specific books.",
		Parameters: toolSchema,
	}
}

// Args are the tool call parameters.
type Args struct {
	Grade          string   `json:"grade,omitempty"`
	Subgenre       string   `json:"subgenre,omitempty"`
	SimilarTo      string   `json:"similarTo,omitempty"`
	Keywords       string   `json:"keywords,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	SpecificTitles []string `json:"specificTitles,omitempty"`
}

// ArgsFromFilters seeds tool arguments from a classified query.
func ArgsFromFilters(f query.Filters) Args {
	return Args{
		Grade:     f.Grade,
		Subgenre:  f.Subgenre,
		SimilarTo: f.SimilarTo,
		Keywords:  f.Keywords,
		Tags:      f.Tags,
	}
}

// ParseArgs decodes tool call arguments. Models sometimes send a single
// string where a list is expected, or a comma-separated list; both are
// accepted.
func ParseArgs(raw map[string]any) Args {
	return Args{
		Grade:          str(raw["grade"]),
		Subgenre:       str(raw["subgenre"]),
		SimilarTo:      str(raw["similarTo"]),
		Keywords:       str(raw["keywords"]),
		Tags:           strs(raw["tags"]),
		SpecificTitles: strs(raw["specificTitles"]),
	}
}

func str(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func strs(v any) []string {
	var out []string
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	switch x := v.(type) {
	case []any:
		for _, item := range x {
			if s, ok := item.(string); ok {
				add(s)
			}
		}
	case []string:
		for _, s := range x {
			add(s)
		}
	case string:
		for _, s := range strings.Split(x, ",") {
			add(s)
		}
	}
	return out
}

// SearchText is the text embedded for a recommendation search.
func SearchText(a Args) string {
	var text string
	switch {
	case a.SimilarTo != "":
		text = "books similar to " + a.SimilarTo
	case a.Subgenre != "":
		text = a.Subgenre + " romance"
	}
	if a.Keywords != "" {
		text += " " + a.Keywords
	}
	if len(a.Tags) > 0 {
		text += " " + strings.Join(a.Tags, " ")
	}
	text = strings.TrimSpace(text)
	if text == "" && a.Grade != "" {
		text = fmt.Sprintf("top rated %s romance books", a.Grade)
	}
	if text == "" {
		text = "romance books"
	}
	return text
}

// Searcher runs a single filtered search. *retrieval.Engine implements it.
type Searcher interface {
	Search(ctx context.Context, text string, expr *filter.Expression, topK int) ([]retrieval.Match, error)
}

// Recommender fulfils card tool calls with a secondary retrieval.
type Recommender struct {
	searcher Searcher
	mapper   *Mapper
	logger   *observability.Logger
	maxCards int
}

// NewRecommender creates a recommender returning at most maxCards cards,
// never more than DefaultMaxCards.
func NewRecommender(searcher Searcher, mapper *Mapper, maxCards int, logger *observability.Logger) *Recommender {
	if maxCards <= 0 || maxCards > DefaultMaxCards {
		maxCards = DefaultMaxCards
	}
	if mapper == nil {
		mapper = NewMapper(logger, nil)
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Recommender{
		searcher: searcher,
		mapper:   mapper,
		logger:   logger.WithComponent("cards"),
		maxCards: maxCards,
	}
}

// Fulfill returns cards for a tool call. Specific titles are looked up one
// by one and lookups that fail are skipped; otherwise a filtered
// recommendation search runs. The result is never nil.
func (r *Recommender) Fulfill(ctx context.Context, args Args) ([]Card, error) {
	if len(args.SpecificTitles) > 0 {
		return r.specificTitles(ctx, args.SpecificTitles), nil
	}

	text := SearchText(args)
	expr := filter.Compile(query.Filters{
		Grade:     args.Grade,
		Subgenre:  args.Subgenre,
		Tags:      args.Tags,
		SimilarTo: args.SimilarTo,
	})

	r.logger.Debug().Str("search", text).Str("filter", expr.String()).Msg("Fulfilling recommendation")
	matches, err := r.searcher.Search(ctx, text, expr, DefaultSearchWidth)
	if err != nil {
		return []Card{}, fmt.Errorf("recommendation search: %w", err)
	}

	cards := r.mapper.FromMatches(matches)
	if len(cards) > r.maxCards {
		cards = cards[:r.maxCards]
	}
	return cards, nil
}

func (r *Recommender) specificTitles(ctx context.Context, titles []string) []Card {
	results := make([]Result, 0, len(titles))
	seen := make(map[string]bool)
	valid := 0
	for _, title := range titles {
		if valid >= r.maxCards {
			break
		}
		expr := (&filter.Builder{}).Where(filter.Eq(catalog.KeyTitle, title)).Build()
		matches, err := r.searcher.Search(ctx, title, expr, DefaultTitleWidth)
		if err != nil {
			r.logger.Warn().Str("title", title).Err(err).Msg("Card lookup failed")
			continue
		}
		if len(matches) == 0 || seen[matches[0].Key] {
			continue
		}
		seen[matches[0].Key] = true
		res := Validate(FromEntity(matches[0].Entity))
		if res.OK() {
			valid++
		}
		results = append(results, res)
	}
	cards := r.mapper.Collect(results)
	if len(cards) > r.maxCards {
		cards = cards[:r.maxCards]
	}
	return cards
}
