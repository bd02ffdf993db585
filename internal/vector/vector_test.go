package vector

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minerva-reviews/review-engine/internal/catalog"
	"github.com/minerva-reviews/review-engine/internal/embedding"
	"github.com/minerva-reviews/review-engine/internal/filter"
	"github.com/minerva-reviews/review-engine/internal/query"
)

func TestMemoryIndex_QueryOrdersAndFilters(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()

	require.NoError(t, idx.Upsert(ctx, "ns", []Record{
		{ID: "a", Vector: []float32{1, 0}, Metadata: map[string]any{catalog.KeyTitle: "A", catalog.KeyGrade: "A"}},
		{ID: "b", Vector: []float32{0.8, 0.6}, Metadata: map[string]any{catalog.KeyTitle: "B", catalog.KeyGrade: "B"}},
		{ID: "c", Vector: []float32{0, 1}, Metadata: map[string]any{catalog.KeyTitle: "C", catalog.KeyGrade: "A"}},
	}))

	got, err := idx.Query(ctx, "ns", []float32{1, 0}, nil, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
	assert.InDelta(t, 1.0, got[0].Score, 1e-6)
	assert.InDelta(t, 0.8, got[1].Score, 1e-6)

	expr := filter.Compile(query.Filters{Grade: "A"})
	got, err = idx.Query(ctx, "ns", []float32{1, 0}, expr, 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "c", got[1].ID)

	none, err := idx.Query(ctx, "ns", []float32{1, 0}, filter.Compile(query.Filters{Grade: "Z"}), 5)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemoryIndex_NamespacesAndDimensions(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()

	require.NoError(t, idx.Upsert(ctx, "one", []Record{{ID: "x", Vector: []float32{1, 0, 0}}}))
	err := idx.Upsert(ctx, "one", []Record{{ID: "y", Vector: []float32{1, 0}}})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	got, err := idx.Query(ctx, "two", []float32{1, 0, 0}, nil, 5)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = idx.Query(ctx, "one", []float32{1, 0}, nil, 5)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	n, err := idx.Count(ctx, "one")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// upsert replaces by ID
	require.NoError(t, idx.Upsert(ctx, "one", []Record{{ID: "x", Vector: []float32{0, 1, 0}}}))
	n, _ = idx.Count(ctx, "one")
	assert.Equal(t, int64(1), n)
}

func TestMemoryIndex_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMemoryIndex().Query(ctx, "ns", []float32{1}, nil, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSeed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
reviews:
  - id: "101"
    title: Bet Me
    author: Jennifer Crusie
    grade: A
    bookTypes: [Contemporary Romance]
    reviewTags: [fake relationship]
    url: https://example.com/bet-me
    text: A funny, warm contemporary.
  - title: Lord of Scoundrels
    author: Loretta Chase
    grade: A
    bookTypes: [European Historical]
    text: The rake meets his match.
`), 0o600))

	f, err := LoadSeedFile(path)
	require.NoError(t, err)
	require.Len(t, f.Reviews, 2)

	ctx := context.Background()
	idx := NewMemoryIndex()
	n, err := Seed(ctx, idx, embedding.NewMockClient(256), "reviews", f)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	vec, err := embedding.NewMockClient(256).EmbedSingle(ctx, "Bet Me by Jennifer Crusie")
	require.NoError(t, err)
	got, err := idx.Query(ctx, "reviews", vec, nil, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "101", got[0].ID)

	e, err := catalog.FromMetadata(got[0].Metadata)
	require.NoError(t, err)
	assert.Equal(t, "Jennifer Crusie", e.Author)
	assert.Equal(t, "https://example.com/bet-me", e.ExternalIDs.ReviewURL)
}

func TestSeed_RejectsMissingTitle(t *testing.T) {
	_, err := Seed(context.Background(), NewMemoryIndex(), embedding.NewMockClient(8), "ns",
		&SeedFile{Reviews: []SeedReview{{Author: "Nobody"}}})
	assert.ErrorIs(t, err, catalog.ErrMissingTitle)
}

func TestToQdrantFilter(t *testing.T) {
	assert.Nil(t, toQdrantFilter(nil))

	expr := filter.Compile(query.Filters{
		Grade:     "A",
		Subgenre:  "regency",
		SimilarTo: "Bet Me",
	})
	f := toQdrantFilter(expr)
	require.NotNil(t, f)

	require.Len(t, f.Must, 2)
	grade := f.Must[0].GetField()
	require.NotNil(t, grade)
	assert.Equal(t, catalog.KeyGrade, grade.Key)
	assert.Equal(t, "A", grade.GetMatch().GetKeyword())

	tags := f.Must[1].GetFilter()
	require.NotNil(t, tags)
	require.Len(t, tags.Should, 2)
	assert.Equal(t, catalog.KeyTypeTags, tags.Should[0].GetField().Key)
	assert.Equal(t, []string{"regency", "Regency"}, tags.Should[0].GetField().GetMatch().GetKeywords().GetStrings())
	assert.Equal(t, catalog.KeyTopicTags, tags.Should[1].GetField().Key)

	require.Len(t, f.MustNot, 1)
	assert.Equal(t, "Bet Me", f.MustNot[0].GetField().GetMatch().GetKeyword())
}

func TestPayloadRoundTrip(t *testing.T) {
	md := map[string]any{
		catalog.KeyTitle:    "Bet Me",
		catalog.KeyTypeTags: []string{"Contemporary Romance"},
		catalog.KeyPostID:   int64(42),
		"score":             1.5,
		"draft":             false,
	}
	got := fromPayload(toPayload(md))

	assert.Equal(t, "Bet Me", got[catalog.KeyTitle])
	assert.Equal(t, []any{"Contemporary Romance"}, got[catalog.KeyTypeTags])
	assert.Equal(t, int64(42), got[catalog.KeyPostID])
	assert.Equal(t, 1.5, got["score"])
	assert.Equal(t, false, got["draft"])

	e, err := catalog.FromMetadata(got)
	require.NoError(t, err)
	assert.Equal(t, "42", e.ExternalIDs.PostID)
}

func TestPointIDs(t *testing.T) {
	id := pointUUID("Bet Me#0")
	assert.Equal(t, id, pointUUID("Bet Me#0"))
	assert.NotEqual(t, id, pointUUID("Bet Me#1"))

	fixed := "7b0a3f2e-8d1c-4e59-9a3b-0f3c2d1e4b5a"
	assert.Equal(t, fixed, pointUUID(fixed))

	assert.Equal(t, "17", pointIDString(&qdrant.PointId{PointIdOptions: &qdrant.PointId_Num{Num: 17}}))
	assert.Equal(t, fixed, pointIDString(&qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: fixed}}))
}
