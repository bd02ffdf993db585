package vector

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/minerva-reviews/review-engine/internal/catalog"
	"github.com/minerva-reviews/review-engine/internal/embedding"
)

// SeedReview is one review in a YAML seed file.
type SeedReview struct {
	ID         string   `yaml:"id"`
	Title      string   `yaml:"title"`
	Author     string   `yaml:"author"`
	Grade      string   `yaml:"grade"`
	Sensuality string   `yaml:"sensuality"`
	BookTypes  []string `yaml:"bookTypes"`
	ReviewTags []string `yaml:"reviewTags"`
	ASIN       string   `yaml:"asin"`
	CoverURL   string   `yaml:"coverUrl"`
	URL        string   `yaml:"url"`
	PostID     string   `yaml:"postId"`
	Text       string   `yaml:"text"`
}

// SeedFile is the on-disk fixture format.
type SeedFile struct {
	Reviews []SeedReview `yaml:"reviews"`
}

// LoadSeedFile reads a YAML seed file.
func LoadSeedFile(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var f SeedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	return &f, nil
}

// Entity converts the seed row to a catalog entity.
func (r SeedReview) Entity() catalog.Entity {
	return catalog.Entity{
		Title:       r.Title,
		Author:      r.Author,
		Grade:       r.Grade,
		Sensuality:  r.Sensuality,
		TypeTags:    r.BookTypes,
		TopicalTags: r.ReviewTags,
		ExternalIDs: catalog.ExternalIDs{
			ASIN:      r.ASIN,
			CoverURL:  r.CoverURL,
			ReviewURL: r.URL,
			PostID:    r.PostID,
		},
		Excerpt: r.Text,
	}
}

// Seed embeds every review and upserts it into ns. The embedded text is
// the title line followed by the review body. Returns the number written.
func Seed(ctx context.Context, idx Index, emb embedding.Embedder, ns string, f *SeedFile) (int, error) {
	if f == nil || len(f.Reviews) == 0 {
		return 0, nil
	}

	texts := make([]string, len(f.Reviews))
	for i, r := range f.Reviews {
		if r.Title == "" {
			return 0, fmt.Errorf("review %d: %w", i, catalog.ErrMissingTitle)
		}
		texts[i] = fmt.Sprintf("%s by %s\n%s", r.Title, r.Author, r.Text)
	}

	vecs, err := emb.Embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed seed reviews: %w", err)
	}

	records := make([]Record, len(f.Reviews))
	for i, r := range f.Reviews {
		id := r.ID
		if id == "" {
			id = fmt.Sprintf("%s#%d", r.Title, i)
		}
		records[i] = Record{ID: id, Vector: vecs[i], Metadata: r.Entity().ToMetadata()}
	}

	if err := idx.Upsert(ctx, ns, records); err != nil {
		return 0, err
	}
	return len(records), nil
}
