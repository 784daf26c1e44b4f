package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"grove.dev/grove/internal/output"
)

// newSmartlogCmd creates the smartlog command
func newSmartlogCmd() *cobra.Command {
	var (
		showHidden bool
		showFiles  bool
	)

	cmd := &cobra.Command{
		Use:     "smartlog",
		Aliases: []string{"sl", "log"},
		Short:   "Show the tracked commit graph with statuses and branch annotations",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, splog, err := openEngine()
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			lines, err := eng.Smartlog(cmd.Context(), output.SmartlogOptions{
				ShowHidden: showHidden,
				ShowFiles:  showFiles,
				Color:      output.ColorsEnabled(),
			})
			if err != nil {
				return err
			}
			if len(lines) == 0 {
				splog.Info("No tracked commits. Run 'grove init' and start committing.")
				return nil
			}
			splog.Page(strings.Join(lines, "\n") + "\n")
			return nil
		},
	}

	cmd.Flags().BoolVar(&showHidden, "hidden", false, "Include hidden commits in the graph.")
	cmd.Flags().BoolVar(&showFiles, "files", false, "Annotate each commit with its changed file count.")

	return cmd
}
