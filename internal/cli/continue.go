package cli

import (
	"fmt"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/spf13/cobra"
)

// newContinueCmd creates the continue command
func newContinueCmd() *cobra.Command {
	var tree string

	cmd := &cobra.Command{
		Use:   "continue",
		Short: "Resume a conflicted operation with the resolved tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(tree) != 40 {
				return fmt.Errorf("--tree must be a full tree id")
			}

			eng, splog, err := openEngine()
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			op, err := eng.Continue(cmd.Context(), plumbing.NewHash(tree))
			if err != nil {
				return err
			}
			reportOperation(splog, op)
			return nil
		},
	}

	cmd.Flags().StringVar(&tree, "tree", "", "The resolved tree id for the conflicted commit.")
	_ = cmd.MarkFlagRequired("tree")

	return cmd
}
