package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newDocCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "doc <segment> <doc>",
		Short: "Print the stored fields of one document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			seg, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("segment ordinal %q: %w", args[0], err)
			}
			doc, err := strconv.ParseUint(args[1], 10, 32)
			if err != nil {
				return fmt.Errorf("doc id %q: %w", args[1], err)
			}
			s, cleanup, err := openSearcher(root, false)
			if err != nil {
				return err
			}
			defer cleanup()
			fields, err := s.DocAt(uint32(seg), uint32(doc))
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), fields)
		},
	}
}
