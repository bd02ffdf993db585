package cards

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minerva-reviews/review-engine/internal/catalog"
	"github.com/minerva-reviews/review-engine/internal/filter"
	"github.com/minerva-reviews/review-engine/internal/retrieval"
)

func entity(title, author string) catalog.Entity {
	return catalog.Entity{
		Title:       title,
		Author:      author,
		Grade:       "A",
		TypeTags:    []string{"European Historical"},
		TopicalTags: []string{"enemies to lovers"},
		ExternalIDs: catalog.ExternalIDs{
			ReviewURL: "https://allaboutromance.com/book-review/" + strings.ReplaceAll(strings.ToLower(title), " ", "-"),
			PostID:    "42",
		},
		Excerpt: "A review of " + title,
	}
}

func matchOf(e catalog.Entity, score float32) retrieval.Match {
	return retrieval.Match{Key: e.Key(), Score: score, Entity: e}
}

func TestValidate(t *testing.T) {
	ok := FromEntity(entity("Lord of Scoundrels", "Loretta Chase"))

	tests := []struct {
		name   string
		mutate func(*Card)
		valid  bool
		reason string
	}{
		{name: "valid", mutate: func(*Card) {}, valid: true},
		{name: "no title", mutate: func(c *Card) { c.Title = "  " }, reason: "title is required"},
		{name: "no author", mutate: func(c *Card) { c.Author = "" }, reason: "author is required"},
		{name: "relative url", mutate: func(c *Card) { c.URL = "/reviews/1" }, reason: "url is not an absolute http(s) URL"},
		{name: "ftp cover", mutate: func(c *Card) { c.CoverURL = "ftp://x/y.jpg" }, reason: "coverUrl is not an absolute http(s) URL"},
		{name: "no links", mutate: func(c *Card) { c.URL, c.CoverURL = "", "" }, valid: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := ok
			tt.mutate(&c)
			r := Validate(c)
			assert.Equal(t, tt.valid, r.OK())
			assert.Equal(t, tt.reason, r.Reason)
		})
	}
}

func TestFromEntity(t *testing.T) {
	e := entity("Bet Me", "")
	e.Excerpt = strings.Repeat("é", 400)

	c := FromEntity(e)
	assert.Equal(t, UnknownAuthor, c.Author)
	assert.Equal(t, "European Historical", c.BookType)
	assert.Equal(t, []string{"enemies to lovers"}, c.Tags)
	assert.Equal(t, "42", c.PostID)
	assert.Equal(t, 300, len([]rune(c.Summary)))
	assert.True(t, strings.HasSuffix(c.Summary, "..."))

	short := FromEntity(entity("Short", "A"))
	assert.Equal(t, "A review of Short", short.Summary)
}

func TestMapper_FromMatches(t *testing.T) {
	m := NewMapper(nil, nil)

	assert.NotNil(t, m.FromMatches(nil))
	assert.Empty(t, m.FromMatches(nil))

	bad := entity("Broken Link", "Someone")
	bad.ExternalIDs.ReviewURL = "not a url"

	got := m.FromMatches([]retrieval.Match{
		matchOf(entity("Bet Me", "Jennifer Crusie"), 0.9),
		matchOf(bad, 0.85),
		matchOf(entity("Bet Me", "Jennifer Crusie"), 0.8),
		matchOf(entity("Lord of Scoundrels", "Loretta Chase"), 0.7),
	})
	require.Len(t, got, 2)
	assert.Equal(t, "Bet Me", got[0].Title)
	assert.Equal(t, "Lord of Scoundrels", got[1].Title)

	data, err := json.Marshal(got[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), `"title":"Bet Me"`)
	assert.NotContains(t, string(data), `"asin"`)
}

func TestSearchText(t *testing.T) {
	tests := []struct {
		args Args
		want string
	}{
		{Args{SimilarTo: "Bet Me", Subgenre: "contemporary"}, "books similar to Bet Me"},
		{Args{Subgenre: "medieval", Keywords: "knights"}, "medieval romance knights"},
		{Args{Tags: []string{"enemies to lovers", "slow burn"}}, "enemies to lovers slow burn"},
		{Args{Grade: "A"}, "top rated A romance books"},
		{Args{Grade: "A", Subgenre: "regency"}, "regency romance"},
		{Args{}, "romance books"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SearchText(tt.args))
	}
}

func TestParseArgs(t *testing.T) {
	a := ParseArgs(map[string]any{
		"grade":          " A ",
		"subgenre":       "medieval",
		"tags":           []any{"friends to lovers", 3, ""},
		"specificTitles": "Persuasion, Emma",
	})
	assert.Equal(t, "A", a.Grade)
	assert.Equal(t, "medieval", a.Subgenre)
	assert.Equal(t, []string{"friends to lovers"}, a.Tags)
	assert.Equal(t, []string{"Persuasion", "Emma"}, a.SpecificTitles)
}

func TestTool(t *testing.T) {
	tool := Tool()
	assert.Equal(t, ToolName, tool.Name)

	var schema map[string]any
	require.NoError(t, json.Unmarshal(tool.Parameters, &schema))
	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	for _, k := range []string{"grade", "subgenre", "similarTo", "keywords", "tags", "specificTitles"} {
		assert.Contains(t, props, k)
	}
}

type fakeSearcher struct {
	byTitle map[string][]retrieval.Match
	results []retrieval.Match
	err     error
	calls   []searchCall
}

type searchCall struct {
	text string
	expr *filter.Expression
	topK int
}

func (f *fakeSearcher) Search(_ context.Context, text string, expr *filter.Expression, topK int) ([]retrieval.Match, error) {
	f.calls = append(f.calls, searchCall{text, expr, topK})
	if f.err != nil {
		return nil, f.err
	}
	if f.byTitle != nil {
		return f.byTitle[text], nil
	}
	return f.results, nil
}

func TestRecommender_CapsAtFive(t *testing.T) {
	var results []retrieval.Match
	for i := 0; i < 10; i++ {
		results = append(results, matchOf(entity(fmt.Sprintf("Book %d", i), "Author"), 0.9))
	}
	s := &fakeSearcher{results: results}
	r := NewRecommender(s, nil, 0, nil)

	got, err := r.Fulfill(context.Background(), Args{Subgenre: "medieval", Grade: "A", SimilarTo: "Bet Me"})
	require.NoError(t, err)
	assert.Len(t, got, 5)

	require.Len(t, s.calls, 1)
	assert.Equal(t, "books similar to Bet Me", s.calls[0].text)
	assert.Equal(t, DefaultSearchWidth, s.calls[0].topK)
	f := s.calls[0].expr.String()
	assert.Contains(t, f, `grade = "A"`)
	assert.Contains(t, f, `bookTitle != "Bet Me"`)
	assert.Contains(t, f, "bookTypes IN")
}

func TestRecommender_SpecificTitles(t *testing.T) {
	s := &fakeSearcher{byTitle: map[string][]retrieval.Match{
		"Persuasion": {matchOf(entity("Persuasion", "Jane Austen"), 0.9), matchOf(entity("Persuasion", "Jane Austen"), 0.8)},
		"Emma":       {matchOf(entity("Emma", "Jane Austen"), 0.9)},
	}}
	r := NewRecommender(s, nil, 5, nil)

	got, err := r.Fulfill(context.Background(), Args{SpecificTitles: []string{"Persuasion", "Missing", "Emma"}})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Persuasion", got[0].Title)
	assert.Equal(t, "Emma", got[1].Title)

	require.Len(t, s.calls, 3)
	assert.Equal(t, DefaultTitleWidth, s.calls[0].topK)
	assert.Equal(t, `bookTitle = "Persuasion"`, s.calls[0].expr.String())
}

func TestRecommender_SpecificTitlesCapped(t *testing.T) {
	byTitle := make(map[string][]retrieval.Match)
	var titles []string
	for i := 0; i < 8; i++ {
		title := fmt.Sprintf("Book %d", i)
		titles = append(titles, title)
		byTitle[title] = []retrieval.Match{matchOf(entity(title, "Author"), 0.9)}
	}
	s := &fakeSearcher{byTitle: byTitle}

	got, err := NewRecommender(s, nil, 3, nil).Fulfill(context.Background(), Args{SpecificTitles: titles})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "Book 2", got[2].Title)
	assert.Len(t, s.calls, 3)

	// configured limits above five are clamped
	got, err = NewRecommender(&fakeSearcher{byTitle: byTitle}, nil, 20, nil).Fulfill(context.Background(), Args{SpecificTitles: titles})
	require.NoError(t, err)
	assert.Len(t, got, DefaultMaxCards)
}

func TestRecommender_Errors(t *testing.T) {
	s := &fakeSearcher{err: errors.New("index down")}
	r := NewRecommender(s, nil, 5, nil)

	got, err := r.Fulfill(context.Background(), Args{Subgenre: "regency"})
	require.Error(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	got, err = r.Fulfill(context.Background(), Args{SpecificTitles: []string{"Emma"}})
	require.NoError(t, err)
	assert.Empty(t, got)
}
