// Package testhelpers builds hermetic repositories for tests. Commits are
// written straight to the object store through the accessor, so tests run
// without a git binary or a working tree.
package testhelpers

import (
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/stretchr/testify/require"

	"grove.dev/grove/internal/engine"
	"grove.dev/grove/internal/eventlog"
	"grove.dev/grove/internal/git"
)

// TestRepo is a repository in a temp dir with helpers for building commit
// graphs. Timestamps increment deterministically so child ordering by
// committer date is stable across runs.
type TestRepo struct {
	T    *testing.T
	Repo *git.Repository
	Dir  string

	clock time.Time
}

// NewTestRepo initializes an empty repository in a temp dir.
func NewTestRepo(t *testing.T) *TestRepo {
	t.Helper()
	dir := t.TempDir()

	_, err := gogit.PlainInit(dir, false)
	require.NoError(t, err)

	repo, err := git.OpenRepository(dir)
	require.NoError(t, err)

	return &TestRepo{
		T:     t,
		Repo:  repo,
		Dir:   dir,
		clock: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

// NextSignature returns a signature one minute after the previous one.
func (r *TestRepo) NextSignature() git.Signature {
	r.clock = r.clock.Add(time.Minute)
	return git.Signature{Name: "Test User", Email: "test@example.com", When: r.clock}
}

// WriteTree writes a tree holding the given path->content files.
func (r *TestRepo) WriteTree(files map[string]string) plumbing.Hash {
	r.T.Helper()
	entries := make(map[string]git.TreeEntry, len(files))
	for path, content := range files {
		blob, err := r.Repo.WriteBlob([]byte(content))
		require.NoError(r.T, err)
		entries[path] = git.TreeEntry{Hash: blob, Mode: filemode.Regular}
	}
	tree, err := r.Repo.WriteTree(entries)
	require.NoError(r.T, err)
	return tree
}

// CommitFiles writes a commit whose tree holds exactly the given files.
func (r *TestRepo) CommitFiles(message string, files map[string]string, parents ...plumbing.Hash) plumbing.Hash {
	r.T.Helper()
	tree := r.WriteTree(files)
	sig := r.NextSignature()
	id, err := r.Repo.WriteCommit(tree, parents, sig, sig, message)
	require.NoError(r.T, err)
	return id
}

// SetBranch points a branch at a commit, creating it if needed.
func (r *TestRepo) SetBranch(name string, id plumbing.Hash) {
	r.T.Helper()
	current, _, err := r.Repo.ReadRef(git.BranchRefPrefix + name)
	require.NoError(r.T, err)
	require.NoError(r.T, r.Repo.UpdateRef(git.BranchRefPrefix+name, current, id))
}

// CheckoutBranch points HEAD at a branch symbolically.
func (r *TestRepo) CheckoutBranch(name string) {
	r.T.Helper()
	ref := plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.ReferenceName(git.BranchRefPrefix+name))
	require.NoError(r.T, r.Repo.Storer.SetReference(ref))
}

// DetachHead points HEAD directly at a commit.
func (r *TestRepo) DetachHead(id plumbing.Hash) {
	r.T.Helper()
	require.NoError(r.T, r.Repo.SetHeadDetached(id))
}

// StateDir returns the grove state directory inside .git.
func (r *TestRepo) StateDir() string {
	return filepath.Join(r.Repo.GitDir(), engine.StateDirName)
}

// OpenStore opens the event log store in the repository's state dir and
// closes it when the test finishes.
func (r *TestRepo) OpenStore() *eventlog.Store {
	r.T.Helper()
	store, err := eventlog.Open(r.StateDir())
	require.NoError(r.T, err)
	r.T.Cleanup(func() { _ = store.Close() })
	return store
}
