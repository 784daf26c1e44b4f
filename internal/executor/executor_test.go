package executor_test

import (
	"context"
	"testing"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	groveerrors "grove.dev/grove/internal/errors"
	"grove.dev/grove/internal/eventlog"
	"grove.dev/grove/internal/executor"
	"grove.dev/grove/internal/git"
	"grove.dev/grove/internal/restack"
	"grove.dev/grove/testhelpers"
)

func newExecutor(repo *testhelpers.TestRepo, store *eventlog.Store) *executor.Executor {
	return executor.New(repo.Repo, store, repo.StateDir())
}

func TestRunReplaysStackOntoNewParent(t *testing.T) {
	repo := testhelpers.NewTestRepo(t)
	store := repo.OpenStore()

	trunk := repo.CommitFiles("trunk", map[string]string{"README.md": "hi"})
	a := repo.CommitFiles("a", map[string]string{"README.md": "hi", "a.txt": "v1"}, trunk)
	b := repo.CommitFiles("b", map[string]string{"README.md": "hi", "a.txt": "v1", "b.txt": "b"}, a)
	c := repo.CommitFiles("c", map[string]string{"README.md": "hi", "a.txt": "v1", "b.txt": "b", "c.txt": "c"}, b)
	a2 := repo.CommitFiles("a amended", map[string]string{"README.md": "hi", "a.txt": "v2"}, trunk)

	repo.SetBranch("feature", c)
	repo.DetachHead(c)

	plan := &restack.Plan{Moves: []restack.Move{
		{Commit: b, NewParent: a2},
		{Commit: c, NewParent: b},
	}}

	op, err := newExecutor(repo, store).Run(context.Background(), plan, "restack")
	require.NoError(t, err)
	require.Equal(t, executor.StateCompleted, op.State)
	require.Len(t, op.Rewrites, 2)

	b2 := plumbing.NewHash(op.Rewrites[b.String()])
	c2 := plumbing.NewHash(op.Rewrites[c.String()])

	commitB2, err := repo.Repo.ReadCommit(b2)
	require.NoError(t, err)
	assert.Equal(t, []plumbing.Hash{a2}, commitB2.Parents)
	assert.Equal(t, "b", commitB2.Message)

	// The amended content carries into the replayed commit's tree.
	files, err := repo.Repo.FlattenTree(commitB2.Tree)
	require.NoError(t, err)
	assert.Contains(t, files, "b.txt")

	commitC2, err := repo.Repo.ReadCommit(c2)
	require.NoError(t, err)
	assert.Equal(t, []plumbing.Hash{b2}, commitC2.Parents, "cascade resolves through the accumulated rewrites")

	// Refs pointing at rewritten commits follow, including detached HEAD.
	tip, _, err := repo.Repo.ReadRef(git.BranchRefPrefix + "feature")
	require.NoError(t, err)
	assert.Equal(t, c2, tip)

	head, _, err := repo.Repo.ReadHead()
	require.NoError(t, err)
	assert.Equal(t, c2, head)

	// Everything lands in one transaction: two rewrites plus the ref moves.
	latest, err := store.LatestTransactionID()
	require.NoError(t, err)
	events, err := store.EventsBetween(latest-1, latest)
	require.NoError(t, err)
	var rewrites, refUpdates int
	for _, e := range events {
		switch e.Payload.(type) {
		case eventlog.Rewrite:
			rewrites++
		case eventlog.RefUpdate:
			refUpdates++
		}
	}
	assert.Equal(t, 2, rewrites)
	assert.Equal(t, 2, refUpdates)

	// The completed operation leaves no persisted state behind.
	_, err = executor.LoadOperation(repo.StateDir())
	assert.ErrorIs(t, err, groveerrors.ErrNoOperation)
}

func TestRunSuspendsOnConflictAndResumes(t *testing.T) {
	repo := testhelpers.NewTestRepo(t)
	store := repo.OpenStore()

	trunk := repo.CommitFiles("trunk", map[string]string{"f.txt": "base"})
	a := repo.CommitFiles("a", map[string]string{"f.txt": "from a"}, trunk)
	b := repo.CommitFiles("b", map[string]string{"f.txt": "from b"}, a)
	a2 := repo.CommitFiles("a amended", map[string]string{"f.txt": "from a2"}, trunk)

	plan := &restack.Plan{Moves: []restack.Move{{Commit: b, NewParent: a2}}}

	op, err := newExecutor(repo, store).Run(context.Background(), plan, "restack")
	require.NoError(t, err)
	require.Equal(t, executor.StateConflicted, op.State)
	require.NotNil(t, op.Conflict)
	assert.Equal(t, 0, op.Conflict.StepIndex)
	assert.Equal(t, b.String(), op.Conflict.Commit)
	assert.Equal(t, []string{"f.txt"}, op.Conflict.Paths)

	// No transaction is recorded while suspended.
	latest, err := store.LatestTransactionID()
	require.NoError(t, err)
	assert.Equal(t, eventlog.TransactionID(0), latest)

	// A fresh executor, as after a process restart, picks the operation up
	// from its persisted state.
	resolved := repo.WriteTree(map[string]string{"f.txt": "resolved"})
	op, err = newExecutor(repo, store).Resume(context.Background(), resolved)
	require.NoError(t, err)
	require.Equal(t, executor.StateCompleted, op.State)

	b2 := plumbing.NewHash(op.Rewrites[b.String()])
	commitB2, err := repo.Repo.ReadCommit(b2)
	require.NoError(t, err)
	assert.Equal(t, resolved, commitB2.Tree)
	assert.Equal(t, []plumbing.Hash{a2}, commitB2.Parents)
}

func TestRunReplaysMergeWithResolvedSecondParent(t *testing.T) {
	repo := testhelpers.NewTestRepo(t)
	store := repo.OpenStore()

	trunk := repo.CommitFiles("trunk", map[string]string{"README.md": "hi"})
	a := repo.CommitFiles("a", map[string]string{"README.md": "hi", "a.txt": "a"}, trunk)
	x := repo.CommitFiles("x", map[string]string{"README.md": "hi", "x.txt": "v1"}, trunk)
	m := repo.CommitFiles("merge x into a", map[string]string{"README.md": "hi", "a.txt": "a", "x.txt": "v1"}, a, x)
	x2 := repo.CommitFiles("x amended", map[string]string{"README.md": "hi", "x.txt": "v2"}, trunk)

	plan := &restack.Plan{Moves: []restack.Move{
		{Commit: m, NewParent: a, ExtraParents: []plumbing.Hash{x2}},
	}}

	op, err := newExecutor(repo, store).Run(context.Background(), plan, "restack")
	require.NoError(t, err)
	require.Equal(t, executor.StateCompleted, op.State)

	m2 := plumbing.NewHash(op.Rewrites[m.String()])
	commitM2, err := repo.Repo.ReadCommit(m2)
	require.NoError(t, err)
	assert.Equal(t, []plumbing.Hash{a, x2}, commitM2.Parents)
	assert.Equal(t, "merge x into a", commitM2.Message)
}

func TestCancelledRunClearsStateForRetry(t *testing.T) {
	repo := testhelpers.NewTestRepo(t)
	store := repo.OpenStore()

	trunk := repo.CommitFiles("trunk", map[string]string{"README.md": "hi"})
	a := repo.CommitFiles("a", map[string]string{"README.md": "hi", "a.txt": "v1"}, trunk)
	b := repo.CommitFiles("b", map[string]string{"README.md": "hi", "a.txt": "v1", "b.txt": "b"}, a)
	a2 := repo.CommitFiles("a amended", map[string]string{"README.md": "hi", "a.txt": "v2"}, trunk)

	plan := &restack.Plan{Moves: []restack.Move{{Commit: b, NewParent: a2}}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newExecutor(repo, store).Run(ctx, plan, "restack")
	require.ErrorIs(t, err, context.Canceled)

	// The failed run recorded nothing, so it leaves no state behind and the
	// next attempt is free to start.
	_, err = executor.LoadOperation(repo.StateDir())
	assert.ErrorIs(t, err, groveerrors.ErrNoOperation)

	op, err := newExecutor(repo, store).Run(context.Background(), plan, "restack")
	require.NoError(t, err)
	assert.Equal(t, executor.StateCompleted, op.State)
}

func TestAbortRevertsUnrecordedRefMoves(t *testing.T) {
	repo := testhelpers.NewTestRepo(t)
	store := repo.OpenStore()

	trunk := repo.CommitFiles("trunk", map[string]string{"README.md": "hi"})
	b := repo.CommitFiles("b", map[string]string{"README.md": "hi", "b.txt": "v1"}, trunk)
	b2 := repo.CommitFiles("b", map[string]string{"README.md": "hi", "b.txt": "v2"}, trunk)
	repo.SetBranch("feature", b)

	// State as left by a crash after the finalize ref move landed but before
	// the covering transaction was recorded.
	op := &executor.Operation{
		State:   executor.StateRunning,
		Label:   "restack",
		BeginTx: 0,
		Steps: []executor.Step{{
			Commit:    b.String(),
			NewParent: trunk.String(),
			Done:      true,
			NewCommit: b2.String(),
		}},
		Rewrites: map[string]string{b.String(): b2.String()},
		RefUpdates: []executor.RefUpdateStep{{
			Ref:  git.BranchRefPrefix + "feature",
			Old:  b.String(),
			New:  b2.String(),
			Done: true,
		}},
	}
	require.NoError(t, executor.SaveOperation(repo.StateDir(), op))
	repo.SetBranch("feature", b2)

	aborted, err := newExecutor(repo, store).Abort()
	require.NoError(t, err)
	assert.Equal(t, executor.StateAborted, aborted.State)

	tip, _, err := repo.Repo.ReadRef(git.BranchRefPrefix + "feature")
	require.NoError(t, err)
	assert.Equal(t, b, tip, "the unrecorded ref move is reverted")

	_, err = executor.LoadOperation(repo.StateDir())
	assert.ErrorIs(t, err, groveerrors.ErrNoOperation)
}

func TestResumeRequiresConflictedOperation(t *testing.T) {
	repo := testhelpers.NewTestRepo(t)
	store := repo.OpenStore()

	_, err := newExecutor(repo, store).Resume(context.Background(), plumbing.ZeroHash)
	assert.ErrorIs(t, err, groveerrors.ErrNoOperation)
}

func TestAbortClearsSuspendedOperation(t *testing.T) {
	repo := testhelpers.NewTestRepo(t)
	store := repo.OpenStore()

	trunk := repo.CommitFiles("trunk", map[string]string{"f.txt": "base"})
	a := repo.CommitFiles("a", map[string]string{"f.txt": "from a"}, trunk)
	b := repo.CommitFiles("b", map[string]string{"f.txt": "from b"}, a)
	a2 := repo.CommitFiles("a amended", map[string]string{"f.txt": "from a2"}, trunk)

	plan := &restack.Plan{Moves: []restack.Move{{Commit: b, NewParent: a2}}}
	op, err := newExecutor(repo, store).Run(context.Background(), plan, "restack")
	require.NoError(t, err)
	require.Equal(t, executor.StateConflicted, op.State)

	op, err = newExecutor(repo, store).Abort()
	require.NoError(t, err)
	assert.Equal(t, executor.StateAborted, op.State)

	_, err = executor.LoadOperation(repo.StateDir())
	assert.ErrorIs(t, err, groveerrors.ErrNoOperation)
}

func TestPreserveTimestampsKeepsCommitterTime(t *testing.T) {
	repo := testhelpers.NewTestRepo(t)
	store := repo.OpenStore()

	trunk := repo.CommitFiles("trunk", map[string]string{"README.md": "hi"})
	a := repo.CommitFiles("a", map[string]string{"README.md": "hi", "a.txt": "v1"}, trunk)
	b := repo.CommitFiles("b", map[string]string{"README.md": "hi", "a.txt": "v1", "b.txt": "b"}, a)
	a2 := repo.CommitFiles("a amended", map[string]string{"README.md": "hi", "a.txt": "v2"}, trunk)

	original, err := repo.Repo.ReadCommit(b)
	require.NoError(t, err)

	x := newExecutor(repo, store)
	x.PreserveTimestamps = true

	plan := &restack.Plan{Moves: []restack.Move{{Commit: b, NewParent: a2}}}
	op, err := x.Run(context.Background(), plan, "restack")
	require.NoError(t, err)
	require.Equal(t, executor.StateCompleted, op.State)

	b2 := plumbing.NewHash(op.Rewrites[b.String()])
	commitB2, err := repo.Repo.ReadCommit(b2)
	require.NoError(t, err)
	assert.True(t, commitB2.Committer.When.Equal(original.Committer.When))
	assert.True(t, commitB2.Author.When.Equal(original.Author.When), "author time is always preserved")
}

func TestRunRejectsSecondOperation(t *testing.T) {
	repo := testhelpers.NewTestRepo(t)
	store := repo.OpenStore()

	trunk := repo.CommitFiles("trunk", map[string]string{"f.txt": "base"})
	a := repo.CommitFiles("a", map[string]string{"f.txt": "from a"}, trunk)
	b := repo.CommitFiles("b", map[string]string{"f.txt": "from b"}, a)
	a2 := repo.CommitFiles("a amended", map[string]string{"f.txt": "from a2"}, trunk)

	plan := &restack.Plan{Moves: []restack.Move{{Commit: b, NewParent: a2}}}
	op, err := newExecutor(repo, store).Run(context.Background(), plan, "restack")
	require.NoError(t, err)
	require.Equal(t, executor.StateConflicted, op.State)

	_, err = newExecutor(repo, store).Run(context.Background(), plan, "restack")
	require.Error(t, err, "a suspended operation blocks new ones")
}
