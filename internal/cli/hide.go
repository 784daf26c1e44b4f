package cli

import (
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/spf13/cobra"

	"grove.dev/grove/internal/engine"
)

// newHideCmd creates the hide command
func newHideCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hide <commit>...",
		Short: "Hide commits from the smartlog without deleting them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, splog, err := openEngine()
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			commits, err := resolveAll(eng, args)
			if err != nil {
				return err
			}
			if err := eng.Hide(commits); err != nil {
				return err
			}
			splog.Info("Hid %d commit(s). Unhide with 'grove unhide'.", len(commits))
			return nil
		},
	}

	return cmd
}

// newUnhideCmd creates the unhide command
func newUnhideCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unhide <commit>...",
		Short: "Restore hidden commits to the smartlog",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, splog, err := openEngine()
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			commits, err := resolveAll(eng, args)
			if err != nil {
				return err
			}
			if err := eng.Unhide(commits); err != nil {
				return err
			}
			splog.Info("Unhid %d commit(s).", len(commits))
			return nil
		},
	}

	return cmd
}

func resolveAll(eng *engine.Engine, args []string) ([]plumbing.Hash, error) {
	commits := make([]plumbing.Hash, len(args))
	for i, arg := range args {
		id, err := resolveCommit(eng.Repository(), arg)
		if err != nil {
			return nil, err
		}
		commits[i] = id
	}
	return commits, nil
}
