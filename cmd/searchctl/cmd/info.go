package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newInfoCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Summarize the index: segments, documents and schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, cleanup, err := openSearcher(root, false)
			if err != nil {
				return err
			}
			defer cleanup()
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, s.String())
			fmt.Fprintf(out, "generation: %d\n", s.Generation())
			sch := s.Schema()
			for _, f := range sch.Fields() {
				e := sch.Entry(f)
				stored := ""
				if e.Stored {
					stored = " stored"
				}
				fmt.Fprintf(out, "field %-16s %s%s\n", e.Name, e.Type, stored)
			}
			return nil
		},
	}
}
