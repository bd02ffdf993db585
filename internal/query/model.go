package query

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/minerva-reviews/review-engine/internal/chat"
	"github.com/minerva-reviews/review-engine/internal/observability"
)

const modelClassifierPrompt = `You are a query analyzer for a romance book review assistant.
Analyze the user's message and extract its intent and any filters.
Respond with a single JSON object and nothing else:
{
  "type": one of "recommendation", "book_info", "author_info", "comparison", "general", "follow_up",
  "filters": {
    "grade": optional letter grade such as "A", "B+", "C-",
    "subgenre": optional subgenre like "medieval", "regency", "contemporary",
    "similarTo": optional title of a book the user likes,
    "tags": optional array of tropes or themes like ["arranged marriage", "enemies to lovers"],
    "keywords": optional general search terms,
    "title": optional specific book title,
    "titles": optional array of exactly two book titles for comparison queries,
    "author": optional author name
  }
}

Examples:
1. "Recommend me some medieval romance books" -> {"type":"recommendation","filters":{"subgenre":"medieval"}}
2. "Tell me about The Velvet Bond by Catherine Archer" -> {"type":"book_info","filters":{"title":"The Velvet Bond","author":"Catherine Archer"}}
3. "Compare Pride and Prejudice with Persuasion" -> {"type":"comparison","filters":{"titles":["Pride and Prejudice","Persuasion"]}}
4. "Are there any good enemies to lovers romances?" -> {"type":"recommendation","filters":{"tags":["enemies to lovers"]}}`

// ModelClassifier asks the chat model for a JSON analysis. Any failure
// (transport, malformed JSON, unknown type) is answered by the fallback.
type ModelClassifier struct {
	chat     chat.Service
	fallback Classifier
	logger   *observability.Logger
}

// NewModelClassifier creates a model-backed classifier.
func NewModelClassifier(svc chat.Service, fallback Classifier, logger *observability.Logger) *ModelClassifier {
	if fallback == nil {
		fallback = NewRuleClassifier(DefaultRuleConfig())
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &ModelClassifier{chat: svc, fallback: fallback, logger: logger}
}

// Classify implements Classifier.
func (c *ModelClassifier) Classify(ctx context.Context, text string) Analysis {
	a, err := c.classify(ctx, text)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Model classification failed, using rules")
		return c.fallback.Classify(ctx, text)
	}
	return a
}

func (c *ModelClassifier) classify(ctx context.Context, text string) (Analysis, error) {
	resp, err := chat.Complete(ctx, c.chat, chat.Request{
		System:   modelClassifierPrompt,
		Messages: []chat.Message{{Role: chat.RoleUser, Content: text}},
		JSON:     true,
	})
	if err != nil {
		return Analysis{}, fmt.Errorf("chat: %w", err)
	}
	return parseModelAnalysis(resp.Text)
}

type modelAnalysis struct {
	Type    string         `json:"type"`
	Filters map[string]any `json:"filters"`
}

// parseModelAnalysis decodes the model's JSON. Models are loose about
// list-vs-string fields, so each filter is read leniently.
func parseModelAnalysis(content string) (Analysis, error) {
	content = strings.TrimSpace(content)
	if start, end := strings.Index(content, "{"), strings.LastIndex(content, "}"); start >= 0 && end > start {
		content = content[start : end+1]
	}

	var m modelAnalysis
	if err := json.Unmarshal([]byte(content), &m); err != nil {
		return Analysis{}, fmt.Errorf("decode analysis: %w", err)
	}
	t := Type(strings.ToLower(strings.TrimSpace(m.Type)))
	if !t.Valid() {
		return Analysis{}, fmt.Errorf("unknown query type %q", m.Type)
	}

	f := Filters{
		Title:     asString(m.Filters["title"]),
		Titles:    asStrings(m.Filters["titles"]),
		Author:    asString(m.Filters["author"]),
		Grade:     asString(m.Filters["grade"]),
		Subgenre:  asString(m.Filters["subgenre"]),
		Tags:      asStrings(m.Filters["tags"]),
		SimilarTo: asString(m.Filters["similarTo"]),
		Keywords:  strings.Join(asStrings(m.Filters["keywords"]), " "),
	}
	return Analysis{Type: t, Filters: f}.Normalize(), nil
}

func asString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []any:
		if len(x) > 0 {
			return asString(x[0])
		}
	}
	return ""
}

func asStrings(v any) []string {
	switch x := v.(type) {
	case string:
		if x == "" {
			return nil
		}
		return []string{x}
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

var _ Classifier = (*ModelClassifier)(nil)
