package retrieval

import (
	"fmt"
	"strings"
)

const entrySeparator = "\n\n---\n\n"

// Bundle is the formatted context handed to the chat model. Keys are
// pairwise distinct and parallel to Entries.
type Bundle struct {
	Entries []string `json:"entries"`
	Summary string   `json:"summary"`
	Keys    []string `json:"keys"`
}

// Text renders the summary line, a blank line, then the separated entries.
// An empty bundle renders as "".
func (b *Bundle) Text() string {
	if b.Empty() {
		return ""
	}
	return b.Summary + "\n\n" + strings.Join(b.Entries, entrySeparator)
}

// Empty reports whether the bundle has no entries.
func (b *Bundle) Empty() bool {
	return b == nil || len(b.Entries) == 0
}

// Contains reports whether key is in the bundle.
func (b *Bundle) Contains(key string) bool {
	if b == nil {
		return false
	}
	for _, k := range b.Keys {
		if k == key {
			return true
		}
	}
	return false
}

// Options controls assembly.
type Options struct {
	Comparison bool
	Titles     []string // requested comparison titles
}

// Assembler collapses matches to one entry per entity.
type Assembler struct {
	limit int
}

// NewAssembler returns an assembler that considers at most limit matches
// for ordinary queries.
func NewAssembler(limit int) *Assembler {
	if limit <= 0 {
		limit = DefaultTopK
	}
	return &Assembler{limit: limit}
}

// Assemble builds a bundle from matches in score order.
func (a *Assembler) Assemble(matches []Match, opts Options) *Bundle {
	var kept []Match
	if opts.Comparison {
		kept = a.comparison(matches, opts.Titles)
	} else {
		kept = a.ordinary(matches)
	}

	b := &Bundle{
		Entries: make([]string, 0, len(kept)),
		Keys:    make([]string, 0, len(kept)),
	}
	for _, m := range kept {
		b.Entries = append(b.Entries, formatEntry(m))
		b.Keys = append(b.Keys, m.Key)
	}
	b.Summary = summarize(kept, opts.Comparison)
	return b
}

func (a *Assembler) ordinary(matches []Match) []Match {
	seen := make(map[string]bool)
	var out []Match
	for i, m := range matches {
		if i >= a.limit {
			break
		}
		if seen[m.Key] || m.Entity.Excerpt == "" {
			continue
		}
		seen[m.Key] = true
		out = append(out, m)
	}
	return out
}

// comparison keeps the highest-scoring match per key, at most two, with
// the requested titles ahead of anything else.
func (a *Assembler) comparison(matches []Match, titles []string) []Match {
	var distinct []Match
	seen := make(map[string]bool)
	for _, m := range matches {
		if seen[m.Key] || m.Entity.Excerpt == "" {
			continue
		}
		seen[m.Key] = true
		distinct = append(distinct, m)
	}

	out := make([]Match, 0, 2)
	used := make(map[string]bool)
	for _, t := range titles {
		for _, m := range distinct {
			if len(out) == 2 {
				return out
			}
			if !used[m.Key] && strings.EqualFold(m.Key, t) {
				used[m.Key] = true
				out = append(out, m)
				break
			}
		}
	}
	for _, m := range distinct {
		if len(out) == 2 {
			break
		}
		if !used[m.Key] {
			used[m.Key] = true
			out = append(out, m)
		}
	}
	return out
}

func formatEntry(m Match) string {
	var sb strings.Builder
	sb.WriteString("**")
	sb.WriteString(m.Entity.Title)
	sb.WriteString("**")
	if m.Entity.Author != "" {
		sb.WriteString(" by ")
		sb.WriteString(m.Entity.Author)
	}
	if m.Entity.Grade != "" {
		fmt.Fprintf(&sb, " (Grade: %s)", m.Entity.Grade)
	}
	sb.WriteString(" – ")
	sb.WriteString(m.Entity.Excerpt)
	return sb.String()
}

func summarize(kept []Match, comparison bool) string {
	switch {
	case len(kept) == 0:
		return ""
	case comparison && len(kept) == 2:
		return fmt.Sprintf("This context includes reviews of %q and %q for comparison.",
			kept[0].Entity.Title, kept[1].Entity.Title)
	case len(kept) == 1:
		e := kept[0].Entity
		if e.Author != "" {
			return fmt.Sprintf("This context includes a review of %q by %s.", e.Title, e.Author)
		}
		return fmt.Sprintf("This context includes a review of %q.", e.Title)
	default:
		return fmt.Sprintf("This context includes reviews of %d books.", len(kept))
	}
}
