package cli

import (
	"github.com/spf13/cobra"
)

// newRestackCmd creates the restack command
func newRestackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restack",
		Short: "Replay commits stranded on rewritten parents onto their live successors",
		Long: `Replay commits stranded on rewritten parents onto their live successors.
If a replayed commit conflicts with its new parent, the operation is
suspended; resolve the conflict and run 'grove continue', or 'grove abort'.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, splog, err := openEngine()
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			op, err := eng.Restack(cmd.Context())
			if err != nil {
				return err
			}
			reportOperation(splog, op)
			return nil
		},
	}

	return cmd
}
