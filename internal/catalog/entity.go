// Package catalog defines the reviewed-book entity and its decoding from
// vector-index metadata.
package catalog

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Metadata keys written by the review indexer.
const (
	KeyTitle      = "bookTitle"
	KeyAuthor     = "authorName"
	KeyGrade      = "grade"
	KeySensuality = "sensuality"
	KeyTypeTags   = "bookTypes"
	KeyTopicTags  = "reviewTags"
	KeyASIN       = "asin"
	KeyCoverURL   = "coverUrl"
	KeyReviewURL  = "url"
	KeyPostID     = "postId"
	KeyExcerpt    = "text"
)

// ErrMissingTitle is returned for metadata without a usable book title.
var ErrMissingTitle = errors.New("catalog: metadata has no book title")

// ExternalIDs holds identifiers and links that point outside the catalog.
type ExternalIDs struct {
	ASIN      string `json:"asin,omitempty"`
	CoverURL  string `json:"coverUrl,omitempty"`
	ReviewURL string `json:"url,omitempty"`
	PostID    string `json:"postId,omitempty"`
}

// Entity is one reviewed book.
type Entity struct {
	Title       string      `json:"title"`
	Author      string      `json:"author"`
	Grade       string      `json:"grade"`
	Sensuality  string      `json:"sensuality,omitempty"`
	TypeTags    []string    `json:"bookTypes"`
	TopicalTags []string    `json:"reviewTags"`
	ExternalIDs ExternalIDs `json:"externalIds"`
	Excerpt     string      `json:"excerpt"`
}

// Key is the identity used for de-duplication.
func (e Entity) Key() string {
	return e.Title
}

// FromMetadata decodes index metadata into an Entity. Only the title is
// required; everything else defaults to its zero value.
func FromMetadata(md map[string]any) (Entity, error) {
	title := stringField(md, KeyTitle)
	if title == "" {
		return Entity{}, ErrMissingTitle
	}

	return Entity{
		Title:       title,
		Author:      stringField(md, KeyAuthor),
		Grade:       stringField(md, KeyGrade),
		Sensuality:  stringField(md, KeySensuality),
		TypeTags:    listField(md, KeyTypeTags),
		TopicalTags: listField(md, KeyTopicTags),
		ExternalIDs: ExternalIDs{
			ASIN:      stringField(md, KeyASIN),
			CoverURL:  stringField(md, KeyCoverURL),
			ReviewURL: stringField(md, KeyReviewURL),
			PostID:    stringField(md, KeyPostID),
		},
		Excerpt: strings.TrimSpace(stringField(md, KeyExcerpt)),
	}, nil
}

// ToMetadata is the inverse of FromMetadata, used when seeding an index.
func (e Entity) ToMetadata() map[string]any {
	md := map[string]any{
		KeyTitle:     e.Title,
		KeyAuthor:    e.Author,
		KeyGrade:     e.Grade,
		KeyTypeTags:  append([]string{}, e.TypeTags...),
		KeyTopicTags: append([]string{}, e.TopicalTags...),
		KeyExcerpt:   e.Excerpt,
	}
	optional := map[string]string{
		KeySensuality: e.Sensuality,
		KeyASIN:       e.ExternalIDs.ASIN,
		KeyCoverURL:   e.ExternalIDs.CoverURL,
		KeyReviewURL:  e.ExternalIDs.ReviewURL,
		KeyPostID:     e.ExternalIDs.PostID,
	}
	for k, v := range optional {
		if v != "" {
			md[k] = v
		}
	}
	return md
}

func stringField(md map[string]any, key string) string {
	switch v := md[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// listField accepts []string, []any of strings, or a comma-separated string.
func listField(md map[string]any, key string) []string {
	out := []string{}
	switch v := md[key].(type) {
	case []string:
		for _, s := range v {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				if s = strings.TrimSpace(s); s != "" {
					out = append(out, s)
				}
			}
		}
	case string:
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
