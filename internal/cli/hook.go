package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/spf13/cobra"
)

// newHookCmd creates the hook command group. These are invoked from git
// hooks, not by hand; failures are logged but exit zero so they never block
// the underlying git operation.
func newHookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:    "hook",
		Short:  "Ingest git hook callbacks into the event log",
		Hidden: true,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "post-commit",
		Short: "Record the commit HEAD points at",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, splog, err := openEngine()
			if err != nil {
				return nil
			}
			defer func() { _ = eng.Close() }()

			head, _, err := eng.Repository().ReadHead()
			if err != nil || head.IsZero() {
				return nil
			}
			if err := eng.RecordCommit(head); err != nil {
				splog.Debug("post-commit hook failed: %v", err)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "post-rewrite",
		Short: "Record old/new commit pairs from stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, splog, err := openEngine()
			if err != nil {
				return nil
			}
			defer func() { _ = eng.Close() }()

			pairs, err := readRewritePairs(os.Stdin)
			if err != nil {
				splog.Debug("post-rewrite hook: %v", err)
				return nil
			}
			if err := eng.RecordRewrites(pairs); err != nil {
				splog.Debug("post-rewrite hook failed: %v", err)
			}
			return nil
		},
	})

	return cmd
}

// readRewritePairs parses the post-rewrite hook's stdin format: one
// "old-sha new-sha [extra]" line per rewritten commit.
func readRewritePairs(r *os.File) ([][2]plumbing.Hash, error) {
	var pairs [][2]plumbing.Hash
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		if len(fields[0]) != 40 || len(fields[1]) != 40 {
			return nil, fmt.Errorf("malformed rewrite line: %q", scanner.Text())
		}
		pairs = append(pairs, [2]plumbing.Hash{
			plumbing.NewHash(fields[0]),
			plumbing.NewHash(fields[1]),
		})
	}
	return pairs, scanner.Err()
}
