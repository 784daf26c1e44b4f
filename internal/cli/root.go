// Package cli wires the cobra command tree for the grove binary.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"grove.dev/grove/internal/engine"
	"grove.dev/grove/internal/output"
)

// NewRootCmd creates the root cobra command
func NewRootCmd(version, commit, date string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "grove",
		Short:   "Grove is a branchless workflow engine for working with commits instead of branches",
		Version: fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		Long: `Grove tracks every commit you make in an append-only event log and keeps
your commit graph tidy without requiring branches. Rewritten commits are
never lost: restack replays stranded descendants onto their successors,
and undo rolls any operation back.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newSmartlogCmd())
	rootCmd.AddCommand(newRestackCmd())
	rootCmd.AddCommand(newMoveCmd())
	rootCmd.AddCommand(newContinueCmd())
	rootCmd.AddCommand(newAbortCmd())
	rootCmd.AddCommand(newUndoCmd())
	rootCmd.AddCommand(newHideCmd())
	rootCmd.AddCommand(newUnhideCmd())
	rootCmd.AddCommand(newNextCmd())
	rootCmd.AddCommand(newPrevCmd())
	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newHookCmd())

	return rootCmd
}

// openEngine creates the engine for the repository containing the working
// directory, with file logging enabled.
func openEngine() (*engine.Engine, *output.Splog, error) {
	splog, err := output.NewSplogWithConfig(output.GetLogFilePath())
	if err != nil {
		splog = output.NewSplog()
	}

	eng, err := engine.Open(".", splog)
	if err != nil {
		return nil, nil, fmt.Errorf("not a grove repository: %w", err)
	}
	return eng, splog, nil
}
