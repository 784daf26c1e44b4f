package git_test

import (
	"testing"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grove.dev/grove/testhelpers"
)

func TestFlattenTree(t *testing.T) {
	repo := testhelpers.NewTestRepo(t)

	tree := repo.WriteTree(map[string]string{
		"top.txt":        "top",
		"dir/nested.txt": "nested",
		"dir/sub/f.txt":  "deep",
	})

	entries, err := repo.Repo.FlattenTree(tree)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Contains(t, entries, "top.txt")
	assert.Contains(t, entries, "dir/nested.txt")
	assert.Contains(t, entries, "dir/sub/f.txt")

	empty, err := repo.Repo.FlattenTree(plumbing.ZeroHash)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestWriteTreeRoundTrip(t *testing.T) {
	repo := testhelpers.NewTestRepo(t)

	files := map[string]string{
		"a.txt":     "a",
		"dir/b.txt": "b",
	}
	tree := repo.WriteTree(files)

	entries, err := repo.Repo.FlattenTree(tree)
	require.NoError(t, err)

	again, err := repo.Repo.WriteTree(entries)
	require.NoError(t, err)
	assert.Equal(t, tree, again, "rewriting a flattened tree must reproduce the same id")
}

func TestMergeTrees(t *testing.T) {
	repo := testhelpers.NewTestRepo(t)

	base := repo.WriteTree(map[string]string{
		"shared.txt": "base",
		"gone.txt":   "doomed",
	})

	t.Run("non-overlapping changes merge cleanly", func(t *testing.T) {
		ours := repo.WriteTree(map[string]string{
			"shared.txt": "base",
			"gone.txt":   "doomed",
			"ours.txt":   "mine",
		})
		theirs := repo.WriteTree(map[string]string{
			"shared.txt": "changed by them",
			"gone.txt":   "doomed",
		})

		result, err := repo.Repo.MergeTrees(base, ours, theirs)
		require.NoError(t, err)
		require.False(t, result.HasConflicts())

		merged, err := repo.Repo.FlattenTree(result.Tree)
		require.NoError(t, err)
		assert.Len(t, merged, 3)
		assert.Contains(t, merged, "ours.txt")
	})

	t.Run("deletion on one side wins over no change", func(t *testing.T) {
		ours := repo.WriteTree(map[string]string{
			"shared.txt": "base",
		})
		theirs := repo.WriteTree(map[string]string{
			"shared.txt": "base",
			"gone.txt":   "doomed",
		})

		result, err := repo.Repo.MergeTrees(base, ours, theirs)
		require.NoError(t, err)
		require.False(t, result.HasConflicts())

		merged, err := repo.Repo.FlattenTree(result.Tree)
		require.NoError(t, err)
		assert.NotContains(t, merged, "gone.txt")
	})

	t.Run("both sides changing the same path conflicts", func(t *testing.T) {
		ours := repo.WriteTree(map[string]string{
			"shared.txt": "ours",
			"gone.txt":   "doomed",
		})
		theirs := repo.WriteTree(map[string]string{
			"shared.txt": "theirs",
			"gone.txt":   "doomed",
		})

		result, err := repo.Repo.MergeTrees(base, ours, theirs)
		require.NoError(t, err)
		require.True(t, result.HasConflicts())
		assert.Equal(t, []string{"shared.txt"}, result.Conflicts)
		assert.True(t, result.Tree.IsZero())
	})

	t.Run("delete versus modify conflicts", func(t *testing.T) {
		ours := repo.WriteTree(map[string]string{
			"shared.txt": "base",
		})
		theirs := repo.WriteTree(map[string]string{
			"shared.txt": "base",
			"gone.txt":   "reworked",
		})

		result, err := repo.Repo.MergeTrees(base, ours, theirs)
		require.NoError(t, err)
		require.True(t, result.HasConflicts())
		assert.Equal(t, []string{"gone.txt"}, result.Conflicts)
	})

	t.Run("identical change on both sides agrees", func(t *testing.T) {
		same := repo.WriteTree(map[string]string{
			"shared.txt": "converged",
			"gone.txt":   "doomed",
		})

		result, err := repo.Repo.MergeTrees(base, same, same)
		require.NoError(t, err)
		require.False(t, result.HasConflicts())
		assert.Equal(t, same, result.Tree)
	})
}
