package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"grove.dev/grove/internal/eventlog"
)

// newUndoCmd creates the undo command
func newUndoCmd() *cobra.Command {
	var list bool

	cmd := &cobra.Command{
		Use:   "undo [transaction]",
		Short: "Roll the repository back to an earlier transaction",
		Long: `Roll the repository back to an earlier transaction.
Without arguments the most recent transaction is undone. Undo is itself
recorded as a transaction, so running undo twice in a row is a redo.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, splog, err := openEngine()
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			if list {
				txs, err := eng.Transactions()
				if err != nil {
					return err
				}
				for _, tx := range txs {
					splog.Info("%4d  %s  %-10s %d event(s)", tx.ID, tx.Time.Format("2006-01-02 15:04:05"), tx.Label, tx.Events)
				}
				return nil
			}

			var tx eventlog.TransactionID
			if len(args) == 1 {
				target, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid transaction id %q", args[0])
				}
				tx, err = eng.Undo(eventlog.TransactionID(target))
				if err != nil {
					return err
				}
			} else {
				var err error
				tx, err = eng.UndoLast()
				if err != nil {
					return err
				}
			}
			splog.Info("Undone. Recorded as transaction %d.", tx)
			return nil
		},
	}

	cmd.Flags().BoolVar(&list, "list", false, "List recorded transactions instead of undoing.")

	return cmd
}
