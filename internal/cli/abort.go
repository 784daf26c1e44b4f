package cli

import (
	"github.com/spf13/cobra"
)

// newAbortCmd creates the abort command
func newAbortCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "abort",
		Short: "Cancel the in-flight operation and revert its changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, _, err := openEngine()
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			return eng.AbortOperation()
		},
	}

	return cmd
}
