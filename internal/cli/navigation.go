package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"grove.dev/grove/internal/engine"
)

// newNextCmd creates the next command
func newNextCmd() *cobra.Command {
	var (
		oldest bool
		newest bool
	)

	cmd := &cobra.Command{
		Use:   "next [n]",
		Short: "Move to a child of the current commit",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if oldest && newest {
				return fmt.Errorf("only one of --oldest or --newest can be specified")
			}
			n, err := stepCount(args)
			if err != nil {
				return err
			}

			towards := engine.TowardsNone
			if oldest {
				towards = engine.TowardsOldest
			}
			if newest {
				towards = engine.TowardsNewest
			}

			eng, splog, err := openEngine()
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			target, err := eng.NextCommit(n, towards)
			if err != nil {
				return err
			}
			splog.Info("Now at %s", target.String()[:8])
			return nil
		},
	}

	cmd.Flags().BoolVar(&oldest, "oldest", false, "When a commit has multiple children, follow the earliest-committed one.")
	cmd.Flags().BoolVar(&newest, "newest", false, "When a commit has multiple children, follow the latest-committed one.")

	return cmd
}

// newPrevCmd creates the prev command
func newPrevCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prev [n]",
		Short: "Move to the parent of the current commit",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := stepCount(args)
			if err != nil {
				return err
			}

			eng, splog, err := openEngine()
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			target, err := eng.PrevCommit(n)
			if err != nil {
				return err
			}
			splog.Info("Now at %s", target.String()[:8])
			return nil
		},
	}

	return cmd
}

func stepCount(args []string) (int, error) {
	if len(args) == 0 {
		return 1, nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid step count %q", args[0])
	}
	return n, nil
}
