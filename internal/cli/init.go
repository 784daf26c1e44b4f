package cli

import (
	"github.com/spf13/cobra"
)

// newInitCmd creates the init command
func newInitCmd() *cobra.Command {
	var mainBranch string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize grove in the current repository",
		Long: `Initialize grove in the current repository: create the event log,
record the trunk branch, and track the current branch tips.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, splog, err := openEngine()
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			if err := eng.Init(mainBranch); err != nil {
				return err
			}
			splog.Info("Initialized grove. Trunk is %s.", eng.MainRef())
			splog.Tip("Install the post-commit and post-rewrite hooks to track new commits:\n  grove hook post-commit\n  grove hook post-rewrite")
			return nil
		},
	}

	cmd.Flags().StringVar(&mainBranch, "main-branch", "", "The trunk branch name. Defaults to master, or main when no master exists.")

	return cmd
}
