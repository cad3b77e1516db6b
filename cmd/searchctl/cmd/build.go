package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/indexer/schema"
	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/ingestion"
)

type buildOptions struct {
	schemaPath string
	strict     bool
	maxDocs    int
}

func newBuildCmd(root *rootOptions) *cobra.Command {
	var opts buildOptions
	cmd := &cobra.Command{
		Use:   "build <input.jsonl|->",
		Short: "Index JSON-lines documents into the data directory",
		Long: `Index one JSON object per line. Each key names a schema field and
maps to a string or an array of strings. New segments are appended to
whatever the directory already holds.

Examples:
  searchctl build docs.jsonl --schema schema.json -d data/index
  cat docs.jsonl | searchctl build - -d data/index`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd, root, args[0], opts)
		},
	}
	cmd.Flags().StringVar(&opts.schemaPath, "schema", "", "Schema JSON file (required for a new index)")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "Stop at the first invalid record")
	cmd.Flags().IntVar(&opts.maxDocs, "segment-docs", 0, "Documents per segment (overrides index.segmentMaxDocs)")
	return cmd
}

func runBuild(cmd *cobra.Command, root *rootOptions, input string, opts buildOptions) error {
	cfg := root.cfg.Index
	if opts.maxDocs > 0 {
		cfg.SegmentMaxDocs = opts.maxDocs
	}
	var s *schema.Schema
	var err error
	if opts.schemaPath != "" {
		s, err = schema.LoadFile(opts.schemaPath)
	} else {
		s, err = schema.Load(cfg.DataDir)
	}
	if err != nil {
		return err
	}

	var r io.Reader = cmd.InOrStdin()
	if input != "-" {
		f, err := os.Open(input)
		if err != nil {
			return fmt.Errorf("opening input: %w", err)
		}
		defer f.Close()
		r = f
	}

	engine, err := indexer.NewEngine(cfg, s)
	if err != nil {
		return err
	}
	var flushed int
	engine.OnFlush(func(indexer.FlushInfo) { flushed++ })

	stats, loadErr := ingestion.LoadJSONL(cmd.Context(), r, s, ingestion.IndexInto(engine), ingestion.LoadOptions{Strict: opts.strict})
	if err := engine.Close(); err != nil && loadErr == nil {
		loadErr = err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "indexed %d, rejected %d, %d new segments\n", stats.Indexed, stats.Rejected, flushed)
	return loadErr
}
