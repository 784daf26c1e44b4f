package cli

import (
	"fmt"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/spf13/cobra"
)

// newMoveCmd creates the move command
func newMoveCmd() *cobra.Command {
	var (
		source string
		dest   string
	)

	cmd := &cobra.Command{
		Use:   "move",
		Short: "Move a commit and its descendants onto a new parent",
		RunE: func(cmd *cobra.Command, args []string) error {
			if source == "" || dest == "" {
				return fmt.Errorf("both --source and --dest are required")
			}

			eng, splog, err := openEngine()
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			src, err := resolveCommit(eng.Repository(), source)
			if err != nil {
				return err
			}
			var dst plumbing.Hash
			if dest != "root" {
				dst, err = resolveCommit(eng.Repository(), dest)
				if err != nil {
					return err
				}
			}

			op, err := eng.Move(cmd.Context(), src, dst)
			if err != nil {
				return err
			}
			reportOperation(splog, op)
			return nil
		},
	}

	cmd.Flags().StringVarP(&source, "source", "s", "", "The commit to move, along with its descendants.")
	cmd.Flags().StringVarP(&dest, "dest", "d", "", "The commit to move onto, or 'root' to detach.")

	return cmd
}
