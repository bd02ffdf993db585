package main

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/minerva-reviews/review-engine/internal/app"
	"github.com/minerva-reviews/review-engine/internal/filter"
	"github.com/minerva-reviews/review-engine/internal/query"
)

// SuiteCase is one labelled query in an evaluation suite.
type SuiteCase struct {
	Query   string        `yaml:"query" json:"query"`
	Type    query.Type    `yaml:"type" json:"type"`
	Filters query.Filters `yaml:"filters" json:"filters,omitempty"`
}

// Suite is a YAML file of labelled queries.
type Suite struct {
	Cases []SuiteCase `yaml:"cases"`
}

// CaseResult is the outcome of one suite case.
type CaseResult struct {
	Case     SuiteCase      `json:"case"`
	Got      query.Analysis `json:"got"`
	TypeOK   bool           `json:"typeOk"`
	FilterOK bool           `json:"filterOk"`
}

// SuiteReport summarises a suite run.
type SuiteReport struct {
	Total      int          `json:"total"`
	TypeHits   int          `json:"typeHits"`
	FilterHits int          `json:"filterHits"`
	Results    []CaseResult `json:"results"`
}

// TypeAccuracy is the share of cases with the expected type.
func (r SuiteReport) TypeAccuracy() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.TypeHits) / float64(r.Total)
}

// LoadSuite reads an evaluation suite.
func LoadSuite(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read suite: %w", err)
	}
	var s Suite
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse suite: %w", err)
	}
	if len(s.Cases) == 0 {
		return nil, fmt.Errorf("suite %s has no cases", path)
	}
	return &s, nil
}

// RunSuite classifies every case. progress, if set, runs after each case.
func RunSuite(ctx context.Context, c query.Classifier, s *Suite, progress func()) SuiteReport {
	report := SuiteReport{Total: len(s.Cases), Results: make([]CaseResult, 0, len(s.Cases))}
	for _, tc := range s.Cases {
		got := c.Classify(ctx, tc.Query)
		res := CaseResult{
			Case:     tc,
			Got:      got,
			TypeOK:   got.Type == tc.Type,
			FilterOK: filtersMatch(tc.Filters, got.Filters),
		}
		if res.TypeOK {
			report.TypeHits++
		}
		if res.FilterOK {
			report.FilterHits++
		}
		report.Results = append(report.Results, res)
		if progress != nil {
			progress()
		}
	}
	return report
}

// filtersMatch checks only the keys the case specifies. Strings compare
// case-insensitively; lists must contain the expected values.
func filtersMatch(want, got query.Filters) bool {
	eq := func(w, g string) bool { return w == "" || strings.EqualFold(w, g) }
	contains := func(w, g []string) bool {
		for _, v := range w {
			if !slices.ContainsFunc(g, func(x string) bool { return strings.EqualFold(x, v) }) {
				return false
			}
		}
		return true
	}
	return eq(want.Title, got.Title) &&
		eq(want.Author, got.Author) &&
		eq(want.Grade, got.Grade) &&
		eq(want.Subgenre, got.Subgenre) &&
		eq(want.SimilarTo, got.SimilarTo) &&
		eq(want.Keywords, got.Keywords) &&
		contains(want.Titles, got.Titles) &&
		contains(want.Tags, got.Tags)
}

func newClassifyCmd() *cobra.Command {
	var suitePath string

	cmd := &cobra.Command{
		Use:   "classify [question]",
		Short: "Classify a question or run an evaluation suite",
		Example: `  review-engine-cli classify "Tell me about The Velvet Bond by Catherine Archer"
  review-engine-cli classify --suite configs/eval/classifier.yaml`,
		Args: func(_ *cobra.Command, args []string) error {
			if suitePath == "" && len(args) == 0 {
				return fmt.Errorf("a question or --suite is required")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if suitePath != "" {
				return runSuiteCmd(ctx, a, suitePath)
			}
			return classifyOne(ctx, a, strings.Join(args, " "))
		},
	}

	cmd.Flags().StringVar(&suitePath, "suite", "", "YAML file of labelled queries")
	return cmd
}

func classifyOne(ctx context.Context, a *app.App, text string) error {
	analysis := a.Classifier.Classify(ctx, text)
	expr := filter.Compile(analysis.Filters)
	if outputJSON {
		return ui.JSON(map[string]any{
			"analysis": analysis,
			"filter":   expr.String(),
		})
	}

	ui.Section("Classification")
	ui.KeyValue("Type", analysis.Type)
	f := analysis.Filters
	for _, kv := range [][2]string{
		{"Title", f.Title},
		{"Titles", strings.Join(f.Titles, " | ")},
		{"Author", f.Author},
		{"Grade", f.Grade},
		{"Subgenre", f.Subgenre},
		{"Tags", strings.Join(f.Tags, ", ")},
		{"Similar to", f.SimilarTo},
		{"Keywords", f.Keywords},
	} {
		if kv[1] != "" {
			ui.KeyValue(kv[0], kv[1])
		}
	}
	ui.KeyValue("Filter", expr.String())
	return nil
}

func runSuiteCmd(ctx context.Context, a *app.App, path string) error {
	suite, err := LoadSuite(path)
	if err != nil {
		return err
	}

	bar := ui.ProgressBar(len(suite.Cases), "Classifying")
	report := RunSuite(ctx, a.Classifier, suite, bar.Add)
	bar.Finish()

	if outputJSON {
		return ui.JSON(report)
	}

	var rows [][]string
	for _, r := range report.Results {
		if r.TypeOK && r.FilterOK {
			continue
		}
		rows = append(rows, []string{r.Case.Query, string(r.Case.Type), string(r.Got.Type), fmt.Sprint(r.FilterOK)})
	}

	ui.Section("Classifier evaluation")
	ui.KeyValue("Cases", report.Total)
	ui.KeyValue("Type accuracy", fmt.Sprintf("%.1f%%", 100*report.TypeAccuracy()))
	ui.KeyValue("Filters matched", fmt.Sprintf("%d/%d", report.FilterHits, report.Total))
	if len(rows) == 0 {
		ui.Success("All cases passed")
		return nil
	}
	ui.Newline()
	ui.Table([]string{"Query", "Expected", "Got", "Filters OK"}, rows)
	return nil
}
