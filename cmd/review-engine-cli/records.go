package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/minerva-reviews/review-engine/internal/catalog"
	"github.com/minerva-reviews/review-engine/internal/filter"
)

// findRecordTopK matches the maintenance lookup: a handful of exact-title
// hits is enough to spot duplicates.
const findRecordTopK = 5

func newFindRecordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "find-record <book title>",
		Short: "Find indexed records with an exact title",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			title := strings.Join(args, " ")
			expr := (&filter.Builder{}).Where(filter.Eq(catalog.KeyTitle, title)).Build()

			ui.Step("Searching for exact matches to %q", title)
			matches, err := a.Engine.Search(ctx, title, expr, findRecordTopK)
			if err != nil {
				return err
			}

			if outputJSON {
				return ui.JSON(matches)
			}
			if len(matches) == 0 {
				ui.Warning("No records found with exact match")
				return nil
			}
			ui.Success("Found %d record(s)", len(matches))
			for _, m := range matches {
				ui.Section(m.Key)
				ui.KeyValue("Score", fmt.Sprintf("%.4f", m.Score))
				ui.KeyValue("Author", m.Entity.Author)
				ui.KeyValue("Grade", m.Entity.Grade)
				ui.KeyValue("Types", strings.Join(m.Entity.TypeTags, ", "))
				ui.KeyValue("Tags", strings.Join(m.Entity.TopicalTags, ", "))
				ui.KeyValue("Review", m.Entity.ExternalIDs.ReviewURL)
			}
			return nil
		},
	}
}

func newIndexStatsCmd() *cobra.Command {
	var namespaces []string

	cmd := &cobra.Command{
		Use:   "index-stats",
		Short: "Show record counts per namespace",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if len(namespaces) == 0 {
				namespaces = []string{cfg.Retrieval.Namespace}
			}

			counts := make(map[string]int64, len(namespaces))
			rows := make([][]string, 0, len(namespaces))
			for _, ns := range namespaces {
				n, err := a.Index.Count(ctx, ns)
				if err != nil {
					return fmt.Errorf("count %s: %w", ns, err)
				}
				counts[ns] = n
				rows = append(rows, []string{ns, fmt.Sprint(n)})
			}

			if outputJSON {
				return ui.JSON(map[string]any{
					"driver":    cfg.Vector.Driver,
					"dimension": a.Embedder.Dimension(),
					"model":     a.Embedder.Model(),
					"counts":    counts,
				})
			}

			ui.Section("Index")
			ui.KeyValue("Driver", cfg.Vector.Driver)
			ui.KeyValue("Embedding model", a.Embedder.Model())
			ui.KeyValue("Dimension", a.Embedder.Dimension())
			ui.Newline()
			ui.Table([]string{"Namespace", "Records"}, rows)
			for ns, n := range counts {
				if n == 0 {
					ui.Warning("Namespace %s is empty", ns)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&namespaces, "namespace", nil, "namespaces to count (default: retrieval namespace)")
	return cmd
}
