// Package query classifies raw user text into a query type and the filters
// used to narrow retrieval.
package query

import (
	"context"
	"strings"
)

// Type is the intent behind a user query.
type Type string

const (
	TypeRecommendation Type = "recommendation"
	TypeBookInfo       Type = "book_info"
	TypeAuthorInfo     Type = "author_info"
	TypeComparison     Type = "comparison"
	TypeFollowUp       Type = "follow_up"
	TypeGeneral        Type = "general"
)

// Valid reports whether t is one of the known types.
func (t Type) Valid() bool {
	switch t {
	case TypeRecommendation, TypeBookInfo, TypeAuthorInfo, TypeComparison, TypeFollowUp, TypeGeneral:
		return true
	}
	return false
}

// UsesRetrieval reports whether the main retrieval path runs for t.
// Recommendations are served by the model's tool call instead.
func (t Type) UsesRetrieval() bool {
	return t != TypeRecommendation
}

// Filters are the parameters extracted from a query. Every field is optional.
type Filters struct {
	Title     string   `json:"title,omitempty" yaml:"title,omitempty"`
	Titles    []string `json:"titles,omitempty" yaml:"titles,omitempty"`
	Author    string   `json:"author,omitempty" yaml:"author,omitempty"`
	Grade     string   `json:"grade,omitempty" yaml:"grade,omitempty"`
	Subgenre  string   `json:"subgenre,omitempty" yaml:"subgenre,omitempty"`
	Tags      []string `json:"tags,omitempty" yaml:"tags,omitempty"`
	SimilarTo string   `json:"similarTo,omitempty" yaml:"similarTo,omitempty"`
	Keywords  string   `json:"keywords,omitempty" yaml:"keywords,omitempty"`
}

// IsEmpty reports whether no filter key is set.
func (f Filters) IsEmpty() bool {
	return f.Title == "" && len(f.Titles) == 0 && f.Author == "" && f.Grade == "" &&
		f.Subgenre == "" && len(f.Tags) == 0 && f.SimilarTo == "" && f.Keywords == ""
}

// Analysis is the classifier output for one query.
type Analysis struct {
	Type    Type    `json:"type"`
	Filters Filters `json:"filters"`
}

// General is the fallback analysis for anything unrecognised.
func General() Analysis {
	return Analysis{Type: TypeGeneral}
}

// Normalize enforces the analysis contract regardless of which classifier
// produced it: unknown types become general, comparisons need exactly two
// distinct titles, and string fields are trimmed and de-duplicated.
func (a Analysis) Normalize() Analysis {
	if !a.Type.Valid() {
		return General()
	}

	f := a.Filters
	f.Title = cleanTitle(f.Title)
	f.Author = cleanPhrase(f.Author)
	f.Grade = strings.ToUpper(strings.TrimSpace(f.Grade))
	f.Subgenre = strings.ToLower(strings.TrimSpace(f.Subgenre))
	f.SimilarTo = cleanTitle(f.SimilarTo)
	f.Keywords = strings.Join(strings.Fields(f.Keywords), " ")
	f.Tags = dedupe(f.Tags, strings.TrimSpace)
	f.Titles = dedupe(f.Titles, cleanTitle)

	if a.Type == TypeComparison {
		if len(f.Titles) != 2 {
			return General()
		}
		return Analysis{Type: TypeComparison, Filters: Filters{Titles: f.Titles}}
	}

	f.Titles = nil
	return Analysis{Type: a.Type, Filters: f}
}

// dedupe cleans every value and drops blanks and case-insensitive repeats,
// keeping first-seen order.
func dedupe(values []string, clean func(string) string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = clean(v)
		k := strings.ToLower(v)
		if v == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Classifier maps raw text to an Analysis. Implementations must be total:
// they never fail and degrade to General.
type Classifier interface {
	Classify(ctx context.Context, text string) Analysis
}
