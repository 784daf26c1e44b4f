package git_test

import (
	"testing"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	groveerrors "grove.dev/grove/internal/errors"
	"grove.dev/grove/internal/git"
	"grove.dev/grove/testhelpers"
)

func TestUpdateRefCompareAndSwap(t *testing.T) {
	repo := testhelpers.NewTestRepo(t)
	a := repo.CommitFiles("a", map[string]string{"a.txt": "a"})
	b := repo.CommitFiles("b", map[string]string{"b.txt": "b"}, a)

	ref := git.BranchRefPrefix + "feature"

	t.Run("creates ref when old is zero", func(t *testing.T) {
		require.NoError(t, repo.Repo.UpdateRef(ref, plumbing.ZeroHash, a))

		current, ok, err := repo.Repo.ReadRef(ref)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, a, current)
	})

	t.Run("advances ref when old matches", func(t *testing.T) {
		require.NoError(t, repo.Repo.UpdateRef(ref, a, b))

		current, _, err := repo.Repo.ReadRef(ref)
		require.NoError(t, err)
		assert.Equal(t, b, current)
	})

	t.Run("rejects stale old value", func(t *testing.T) {
		err := repo.Repo.UpdateRef(ref, a, a)
		require.Error(t, err)
		assert.ErrorIs(t, err, groveerrors.ErrConcurrentModification)

		var casErr *groveerrors.CASError
		require.ErrorAs(t, err, &casErr)
		assert.Equal(t, ref, casErr.Ref)
	})

	t.Run("deletes ref with zero target", func(t *testing.T) {
		require.NoError(t, repo.Repo.UpdateRef(ref, b, plumbing.ZeroHash))

		_, ok, err := repo.Repo.ReadRef(ref)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestReadHead(t *testing.T) {
	repo := testhelpers.NewTestRepo(t)
	a := repo.CommitFiles("a", map[string]string{"a.txt": "a"})

	t.Run("symbolic head on branch", func(t *testing.T) {
		repo.SetBranch("master", a)
		repo.CheckoutBranch("master")

		head, branch, err := repo.Repo.ReadHead()
		require.NoError(t, err)
		assert.Equal(t, a, head)
		assert.Equal(t, git.BranchRefPrefix+"master", branch)
	})

	t.Run("detached head", func(t *testing.T) {
		repo.DetachHead(a)

		head, branch, err := repo.Repo.ReadHead()
		require.NoError(t, err)
		assert.Equal(t, a, head)
		assert.Empty(t, branch)
	})
}

func TestWriteAndReadCommit(t *testing.T) {
	repo := testhelpers.NewTestRepo(t)

	a := repo.CommitFiles("first commit\n\nwith body", map[string]string{"a.txt": "hello"})

	commit, err := repo.Repo.ReadCommit(a)
	require.NoError(t, err)
	assert.Equal(t, a, commit.ID)
	assert.Empty(t, commit.Parents)
	assert.Equal(t, "first commit", commit.Summary())
	assert.Equal(t, "Test User", commit.Author.Name)

	_, err = repo.Repo.ReadCommit(plumbing.NewHash("deadbeefdeadbeefdeadbeefdeadbeefdeadbeef"))
	assert.ErrorIs(t, err, groveerrors.ErrCommitNotFound)
}

func TestIsAncestor(t *testing.T) {
	repo := testhelpers.NewTestRepo(t)
	a := repo.CommitFiles("a", map[string]string{"f": "1"})
	b := repo.CommitFiles("b", map[string]string{"f": "2"}, a)
	c := repo.CommitFiles("c", map[string]string{"g": "1"}, a)

	got, err := repo.Repo.IsAncestor(a, b)
	require.NoError(t, err)
	assert.True(t, got)

	got, err = repo.Repo.IsAncestor(b, c)
	require.NoError(t, err)
	assert.False(t, got)

	got, err = repo.Repo.IsAncestor(a, a)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestChangedFiles(t *testing.T) {
	repo := testhelpers.NewTestRepo(t)
	a := repo.CommitFiles("a", map[string]string{"keep.txt": "same", "change.txt": "old"})
	b := repo.CommitFiles("b", map[string]string{"keep.txt": "same", "change.txt": "new", "added.txt": "x"}, a)

	files, err := repo.Repo.ChangedFiles(a)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"keep.txt", "change.txt"}, files)

	files, err = repo.Repo.ChangedFiles(b)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"change.txt", "added.txt"}, files)
}
