package retrieval

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minerva-reviews/review-engine/internal/catalog"
)

func match(title, author, grade string, score float32) Match {
	return Match{
		Key:   title,
		Score: score,
		Entity: catalog.Entity{
			Title:   title,
			Author:  author,
			Grade:   grade,
			Excerpt: "About " + title,
		},
	}
}

func assertDistinctKeys(t *testing.T, b *Bundle) {
	t.Helper()
	seen := map[string]bool{}
	for _, k := range b.Keys {
		assert.False(t, seen[k], "duplicate key %q", k)
		seen[k] = true
	}
	assert.Len(t, b.Entries, len(b.Keys))
}

func TestAssemble_DuplicateKeepsHighestScore(t *testing.T) {
	matches := []Match{
		match("Same Title", "A. Writer", "A", 0.9),
		match("Same Title", "A. Writer", "B", 0.8),
		match("Other One", "B. Writer", "B+", 0.78),
		match("Other Two", "C. Writer", "C", 0.77),
		match("Other Three", "D. Writer", "A-", 0.76),
		match("Other Four", "E. Writer", "B", 0.75),
	}
	matches[1].Entity.Excerpt = "lower scoring duplicate"

	b := NewAssembler(DefaultTopK).Assemble(matches, Options{})
	assertDistinctKeys(t, b)

	count := 0
	for _, e := range b.Entries {
		if strings.HasPrefix(e, "**Same Title**") {
			count++
			assert.Contains(t, e, "(Grade: A)")
			assert.NotContains(t, e, "lower scoring duplicate")
		}
	}
	assert.Equal(t, 1, count)
	assert.LessOrEqual(t, len(b.Entries)-1, 4)
	assert.Equal(t, "Same Title", b.Keys[0])
}

func TestAssemble_EntryFormatAndText(t *testing.T) {
	b := NewAssembler(5).Assemble([]Match{
		match("Bet Me", "Jennifer Crusie", "A", 0.9),
		match("No Grade", "Someone", "", 0.85),
		match("Anonymous", "", "B", 0.8),
	}, Options{})

	require.Len(t, b.Entries, 3)
	assert.Equal(t, "**Bet Me** by Jennifer Crusie (Grade: A) – About Bet Me", b.Entries[0])
	assert.Equal(t, "**No Grade** by Someone – About No Grade", b.Entries[1])
	assert.Equal(t, "**Anonymous** (Grade: B) – About Anonymous", b.Entries[2])
	assert.Equal(t, "This context includes reviews of 3 books.", b.Summary)

	want := b.Summary + "\n\n" + strings.Join(b.Entries, "\n\n---\n\n")
	assert.Equal(t, want, b.Text())
	assert.True(t, b.Contains("Bet Me"))
	assert.False(t, b.Contains("Missing"))
}

func TestAssemble_SingleEntrySummary(t *testing.T) {
	a := NewAssembler(5)

	b := a.Assemble([]Match{match("The Velvet Bond", "Catherine Archer", "B", 0.9)}, Options{})
	assert.Equal(t, `This context includes a review of "The Velvet Bond" by Catherine Archer.`, b.Summary)

	b = a.Assemble([]Match{match("Untitled Author", "", "", 0.9)}, Options{})
	assert.Equal(t, `This context includes a review of "Untitled Author".`, b.Summary)
}

func TestAssemble_Comparison(t *testing.T) {
	matches := []Match{
		match("Persuasion", "Jane Austen", "A", 0.93),
		match("Emma", "Jane Austen", "B", 0.91),
		match("Persuasion", "Jane Austen", "A", 0.9),
		match("Pride and Prejudice", "Jane Austen", "A+", 0.88),
	}

	b := NewAssembler(5).Assemble(matches, Options{
		Comparison: true,
		Titles:     []string{"Pride and Prejudice", "Persuasion"},
	})
	assertDistinctKeys(t, b)
	assert.Equal(t, []string{"Pride and Prejudice", "Persuasion"}, b.Keys)
	assert.Equal(t, `This context includes reviews of "Pride and Prejudice" and "Persuasion" for comparison.`, b.Summary)
}

func TestAssemble_ComparisonNeverExceedsTwo(t *testing.T) {
	matches := []Match{
		match("One", "", "", 0.9),
		match("Two", "", "", 0.9),
		match("Three", "", "", 0.9),
	}
	b := NewAssembler(5).Assemble(matches, Options{Comparison: true, Titles: []string{"Three", "Nope"}})
	assert.Equal(t, []string{"Three", "One"}, b.Keys)
}

func TestAssemble_EmptyAndNoExcerpt(t *testing.T) {
	a := NewAssembler(5)

	b := a.Assemble(nil, Options{})
	assert.True(t, b.Empty())
	assert.Equal(t, "", b.Text())
	assert.Equal(t, "", b.Summary)

	m := match("Bare", "", "", 0.9)
	m.Entity.Excerpt = ""
	b = a.Assemble([]Match{m}, Options{})
	assert.True(t, b.Empty())

	var nilBundle *Bundle
	assert.True(t, nilBundle.Empty())
	assert.False(t, nilBundle.Contains("x"))
}

func TestAssemble_LimitCountsProcessedMatches(t *testing.T) {
	matches := []Match{
		match("A", "", "", 0.9),
		match("A", "", "", 0.89),
		match("B", "", "", 0.88),
		match("C", "", "", 0.87),
	}
	b := NewAssembler(3).Assemble(matches, Options{})
	assert.Equal(t, []string{"A", "B"}, b.Keys)
}
