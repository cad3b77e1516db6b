// Package cmd provides the searchctl subcommands.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/facet-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/facet-search/pkg/logger"
)

type rootOptions struct {
	configPath string
	dataDir    string
	logLevel   string
	cfg        *config.Config
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().ExecuteContext(context.Background())
}

// NewRootCmd creates the searchctl command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "searchctl",
		Short:         "Build and query a facet search index",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if opts.dataDir != "" {
				cfg.Index.DataDir = opts.dataDir
			}
			logger.SetupWriter(cmd.ErrOrStderr(), opts.logLevel, "text")
			opts.cfg = cfg
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to config file")
	cmd.PersistentFlags().StringVarP(&opts.dataDir, "data-dir", "d", "", "Index directory (overrides index.dataDir)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")

	cmd.AddCommand(newBuildCmd(opts))
	cmd.AddCommand(newSearchCmd(opts))
	cmd.AddCommand(newDocCmd(opts))
	cmd.AddCommand(newInfoCmd(opts))
	cmd.AddCommand(newKeysCmd(opts))
	return cmd
}

// openSearcher opens the index read-only and pins its current segments.
// The returned cleanup releases both.
func openSearcher(opts *rootOptions, strict bool) (*searcher.Searcher, func(), error) {
	engine, err := indexer.OpenReadOnly(opts.cfg.Index)
	if err != nil {
		return nil, nil, err
	}
	snap, err := engine.Acquire()
	if err != nil {
		engine.Close()
		return nil, nil, err
	}
	s := searcher.New(snap, searcher.Options{
		Parallelism:  opts.cfg.Search.Parallelism,
		DocCacheSize: opts.cfg.Search.DocCacheSize,
		StrictFacets: strict || opts.cfg.Search.StrictFacets,
	})
	return s, func() {
		s.Close()
		engine.Close()
	}, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	return nil
}
