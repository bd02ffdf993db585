// Package filter compiles query filters into a backend-neutral predicate
// over catalog metadata.
package filter

import (
	"fmt"
	"strings"

	"github.com/minerva-reviews/review-engine/internal/catalog"
	"github.com/minerva-reviews/review-engine/internal/query"
)

// Op is a condition operator.
type Op string

const (
	OpEq Op = "eq" // field equals one of Values
	OpNe Op = "ne" // field equals none of Values
	OpIn Op = "in" // list field shares a member with Values
)

// Condition tests a single metadata field.
type Condition struct {
	Field  string   `json:"field"`
	Op     Op       `json:"op"`
	Values []string `json:"values"`
}

// Clause is a disjunction of conditions. A one-condition clause is a plain
// equality or exclusion test.
type Clause struct {
	Any []Condition `json:"any"`
}

// Expression is a conjunction of clauses. A nil *Expression means "no
// filter": every record matches.
type Expression struct {
	Clauses []Clause `json:"clauses"`
}

// Eq returns an equality condition.
func Eq(field, value string) Condition {
	return Condition{Field: field, Op: OpEq, Values: []string{value}}
}

// Ne returns an exclusion condition.
func Ne(field, value string) Condition {
	return Condition{Field: field, Op: OpNe, Values: []string{value}}
}

// In returns a set-membership condition.
func In(field string, values ...string) Condition {
	return Condition{Field: field, Op: OpIn, Values: values}
}

// Builder accumulates clauses.
type Builder struct {
	clauses []Clause
}

// Where adds a clause that holds when any of conds holds.
func (b *Builder) Where(conds ...Condition) *Builder {
	if len(conds) > 0 {
		b.clauses = append(b.clauses, Clause{Any: conds})
	}
	return b
}

// Build returns the expression, or nil when no clause was added.
func (b *Builder) Build() *Expression {
	if len(b.clauses) == 0 {
		return nil
	}
	return &Expression{Clauses: b.clauses}
}

// Compile maps query filters to an expression. Keywords only steer the
// embedding and never become a clause. Returns nil when nothing filters.
func Compile(f query.Filters) *Expression {
	b := &Builder{}

	if f.Title != "" {
		b.Where(Eq(catalog.KeyTitle, f.Title))
	}
	if len(f.Titles) > 0 {
		conds := make([]Condition, 0, len(f.Titles))
		for _, t := range f.Titles {
			conds = append(conds, Eq(catalog.KeyTitle, t))
		}
		b.Where(conds...)
	}
	if f.Author != "" {
		b.Where(Eq(catalog.KeyAuthor, f.Author))
	}
	if f.Grade != "" {
		b.Where(Eq(catalog.KeyGrade, f.Grade))
	}
	if values := tagValues(f.Subgenre, f.Tags); len(values) > 0 {
		b.Where(In(catalog.KeyTypeTags, values...), In(catalog.KeyTopicTags, values...))
	}
	if f.SimilarTo != "" {
		b.Where(Ne(catalog.KeyTitle, f.SimilarTo))
	}

	return b.Build()
}

// tagValues expands subgenre and tags with the casings used by the indexer
// ("medieval", "Medieval", "Historical Romance").
func tagValues(subgenre string, tags []string) []string {
	var out []string
	seen := map[string]bool{}
	add := func(v string) {
		if v != "" && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	for _, v := range append([]string{subgenre}, tags...) {
		v = strings.TrimSpace(v)
		add(v)
		add(strings.ToLower(v))
		add(titleCase(v))
	}
	return out
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		r := []rune(w)
		words[i] = strings.ToUpper(string(r[0])) + string(r[1:])
	}
	return strings.Join(words, " ")
}

// Matches evaluates the expression against index metadata. String
// comparisons ignore case. A nil expression matches everything.
func (e *Expression) Matches(md map[string]any) bool {
	if e == nil {
		return true
	}
	for _, clause := range e.Clauses {
		if !clause.matches(md) {
			return false
		}
	}
	return true
}

func (c Clause) matches(md map[string]any) bool {
	for _, cond := range c.Any {
		if cond.matches(md) {
			return true
		}
	}
	return false
}

func (c Condition) matches(md map[string]any) bool {
	have := fieldValues(md[c.Field])
	if c.Op == OpIn {
		have = splitList(have)
	}
	switch c.Op {
	case OpEq, OpIn:
		return intersects(have, c.Values)
	case OpNe:
		return !intersects(have, c.Values)
	default:
		return false
	}
}

func fieldValues(v any) []string {
	switch x := v.(type) {
	case string:
		return []string{x}
	case []string:
		return x
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case nil:
		return nil
	default:
		return []string{fmt.Sprint(x)}
	}
}

// splitList reads a comma-separated string as separate list members, the
// same way catalog.FromMetadata decodes tag fields.
func splitList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func intersects(have, want []string) bool {
	for _, h := range have {
		for _, w := range want {
			if strings.EqualFold(strings.TrimSpace(h), strings.TrimSpace(w)) {
				return true
			}
		}
	}
	return false
}

// String renders the expression for logs.
func (e *Expression) String() string {
	if e == nil {
		return "<none>"
	}
	parts := make([]string, 0, len(e.Clauses))
	for _, clause := range e.Clauses {
		conds := make([]string, 0, len(clause.Any))
		for _, c := range clause.Any {
			conds = append(conds, c.String())
		}
		s := strings.Join(conds, " OR ")
		if len(conds) > 1 {
			s = "(" + s + ")"
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, " AND ")
}

func (c Condition) String() string {
	switch c.Op {
	case OpEq:
		return fmt.Sprintf("%s = %q", c.Field, strings.Join(c.Values, ","))
	case OpNe:
		return fmt.Sprintf("%s != %q", c.Field, strings.Join(c.Values, ","))
	default:
		return fmt.Sprintf("%s IN %q", c.Field, c.Values)
	}
}
