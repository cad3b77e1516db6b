package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/searcher/query"
)

type searchOptions struct {
	limit  int
	facets []string
	format string
	strict bool
	show   []string
}

func newSearchCmd(root *rootOptions) *cobra.Command {
	var opts searchOptions
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run a query and print count, hits and facet counts",
		Long: `Run a query against the current segments. Facets are requested as
field:/prefix, or just field for the top level.

Examples:
  searchctl search sea -f category:/cat
  searchctl search "sea category:/cat/books" -n 5 --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, root, strings.Join(args, " "), opts)
		},
	}
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of hits")
	cmd.Flags().StringArrayVarP(&opts.facets, "facet", "f", nil, "Facet to count, as field or field:/prefix (repeatable)")
	cmd.Flags().StringVar(&opts.format, "format", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&opts.strict, "strict-facets", false, "Fail on malformed facet prefixes instead of skipping them")
	cmd.Flags().StringSliceVar(&opts.show, "show", nil, "Stored fields to print for each hit (text format)")
	return cmd
}

func runSearch(cmd *cobra.Command, root *rootOptions, raw string, opts searchOptions) error {
	facets, err := handler.ParseFacets(opts.facets)
	if err != nil {
		return err
	}
	plan := parser.Parse(raw)
	if plan.IsEmpty() {
		return fmt.Errorf("query %q has no terms or filters", raw)
	}
	s, cleanup, err := openSearcher(root, opts.strict)
	if err != nil {
		return err
	}
	defer cleanup()

	q, err := query.Compile(plan, s.Schema())
	if err != nil {
		return err
	}
	res, err := s.Search(cmd.Context(), q, opts.limit, facets)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch opts.format {
	case "json":
		return writeJSON(out, res)
	case "text":
		return printResult(out, s, res, opts.show)
	default:
		return fmt.Errorf("unknown format %q", opts.format)
	}
}

func printResult(w io.Writer, s *searcher.Searcher, res *searcher.SearchResult, show []string) error {
	fmt.Fprintf(w, "%d matching documents (generation %d)\n", res.Count, res.Generation)
	for i, hit := range res.Hits {
		fmt.Fprintf(w, "%3d. %-8s score=%.4f", i+1, hit.Address, hit.Score)
		if len(show) > 0 {
			doc, err := s.Doc(hit.Address)
			if err != nil {
				return err
			}
			for _, field := range show {
				fmt.Fprintf(w, " %s=%q", field, strings.Join(doc[field], " | "))
			}
		}
		fmt.Fprintln(w)
	}

	fields := make([]string, 0, len(res.Facets))
	for field := range res.Facets {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		fmt.Fprintf(w, "facet %s:\n", field)
		for _, e := range res.Facets[field] {
			fmt.Fprintf(w, "  %-30s %d\n", e.Facet, e.Count)
		}
	}
	if len(res.DegradedFields) > 0 {
		fmt.Fprintf(w, "skipped malformed facet prefixes for: %s\n", strings.Join(res.DegradedFields, ", "))
	}
	return nil
}
