package cli

import (
	"fmt"

	"github.com/go-git/go-git/v5/plumbing"

	"grove.dev/grove/internal/executor"
	"grove.dev/grove/internal/git"
	"grove.dev/grove/internal/output"
)

// resolveCommit resolves a revision string (hash, short hash, branch name,
// HEAD expression) to a commit id.
func resolveCommit(repo *git.Repository, rev string) (plumbing.Hash, error) {
	hash, err := repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("cannot resolve %q: %w", rev, err)
	}
	return *hash, nil
}

// reportOperation prints the outcome of a move or restack.
func reportOperation(splog *output.Splog, op *executor.Operation) {
	if op == nil {
		splog.Info("Nothing to do.")
		return
	}
	switch op.State {
	case executor.StateCompleted:
		splog.Info("Rewrote %d commit(s).", len(op.Steps))
	case executor.StateConflicted:
		splog.Error("Conflict recreating %s on %s", shortHash(op.Conflict.Commit), shortHash(op.Conflict.NewParent))
		for _, path := range op.Conflict.Paths {
			splog.Info("  both modified: %s", path)
		}
		splog.Tip("Resolve the conflict, then run 'grove continue --tree <tree>' or 'grove abort'.")
	}
}

func shortHash(hex string) string {
	if len(hex) > 8 {
		return hex[:8]
	}
	return hex
}
