package graph

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"grove.dev/grove/internal/git"
)

// AnnotateChangedFiles fills each node's ChangedFiles with the paths the
// commit touched relative to its first parent. The per-commit work is
// independent and runs in parallel over read-only accessor calls; results
// land in a preallocated slot per commit so the merge is deterministic.
func (g *Graph) AnnotateChangedFiles(ctx context.Context, repo *git.Repository) error {
	nodes := g.Commits()

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(runtime.GOMAXPROCS(0))

	results := make([][]string, len(nodes))
	for i, node := range nodes {
		if node.IsMainAncestor {
			continue
		}
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			files, err := repo.ChangedFiles(node.ID)
			if err != nil {
				return err
			}
			results[i] = files
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	for i, node := range nodes {
		node.ChangedFiles = results[i]
	}
	return nil
}
