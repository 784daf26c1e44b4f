package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/gofrs/flock"

	"grove.dev/grove/internal/config"
	groveerrors "grove.dev/grove/internal/errors"
	"grove.dev/grove/internal/eventlog"
	"grove.dev/grove/internal/executor"
	"grove.dev/grove/internal/git"
	"grove.dev/grove/internal/graph"
	"grove.dev/grove/internal/output"
	"grove.dev/grove/internal/restack"
	"grove.dev/grove/internal/undo"
)

// StateDirName is the grove state directory inside .git.
const StateDirName = "grove"

// Engine ties the repository accessor, event log and executor together.
type Engine struct {
	repo     *git.Repository
	store    *eventlog.Store
	log      *output.Splog
	lock     *flock.Flock
	stateDir string
	mainRef  string
	mu       sync.Mutex
}

// Open initializes an engine for the repository containing path.
func Open(path string, log *output.Splog) (*Engine, error) {
	repo, err := git.OpenRepository(path)
	if err != nil {
		return nil, err
	}

	stateDir := filepath.Join(repo.GitDir(), StateDirName)
	if err := os.MkdirAll(stateDir, 0750); err != nil {
		return nil, groveerrors.NewStorageError("create state directory", err)
	}

	store, err := eventlog.Open(stateDir)
	if err != nil {
		return nil, err
	}

	mainRef, err := config.MainBranchRef(repo)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &Engine{
		repo:     repo,
		store:    store,
		log:      log,
		lock:     flock.New(filepath.Join(stateDir, "lock")),
		stateDir: stateDir,
		mainRef:  mainRef,
	}, nil
}

// Close releases the store. The advisory lock is released per operation.
func (e *Engine) Close() error {
	return e.store.Close()
}

// Repository returns the underlying accessor.
func (e *Engine) Repository() *git.Repository {
	return e.repo
}

// Store returns the event log store.
func (e *Engine) Store() *eventlog.Store {
	return e.store
}

// MainRef returns the trunk branch ref name.
func (e *Engine) MainRef() string {
	return e.mainRef
}

// withLock serializes mutating operations across processes. A held lock
// fails fast rather than blocking; the caller retries manually.
func (e *Engine) withLock(fn func() error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	locked, err := e.lock.TryLock()
	if err != nil {
		return groveerrors.NewStorageError("acquire repository lock", err)
	}
	if !locked {
		return fmt.Errorf("%w: another grove process is operating on this repository", groveerrors.ErrLockHeld)
	}
	defer func() { _ = e.lock.Unlock() }()

	return fn()
}

// BuildGraph constructs a fresh snapshot of the tracked commit graph.
func (e *Engine) BuildGraph() (*graph.Graph, error) {
	return graph.Build(e.repo, e.store, git.HeadRef, e.mainRef)
}

// Smartlog builds the graph and renders it. With ShowFiles the changed file
// annotation runs in parallel before rendering.
func (e *Engine) Smartlog(ctx context.Context, opts output.SmartlogOptions) ([]string, error) {
	g, err := e.BuildGraph()
	if err != nil {
		return nil, err
	}
	if opts.ShowFiles {
		if err := g.AnnotateChangedFiles(ctx, e.repo); err != nil {
			return nil, err
		}
	}

	branches, err := e.repo.BranchRefs()
	if err != nil {
		return nil, err
	}
	byCommit := make(map[plumbing.Hash][]string)
	for name, tip := range branches {
		byCommit[tip] = append(byCommit[tip], name[len(git.BranchRefPrefix):])
	}

	return output.NewSmartlogRenderer(g, byCommit, opts).Render(), nil
}

// Hide records hide events for the given commits. Each commit must exist in
// the object store.
func (e *Engine) Hide(commits []plumbing.Hash) error {
	return e.markCommits(commits, "hide", func(id plumbing.Hash) eventlog.Payload {
		return eventlog.CommitHide{Commit: id}
	})
}

// Unhide records unhide events for the given commits.
func (e *Engine) Unhide(commits []plumbing.Hash) error {
	return e.markCommits(commits, "unhide", func(id plumbing.Hash) eventlog.Payload {
		return eventlog.CommitUnhide{Commit: id}
	})
}

func (e *Engine) markCommits(commits []plumbing.Hash, label string, payload func(plumbing.Hash) eventlog.Payload) error {
	if len(commits) == 0 {
		return fmt.Errorf("no commits given")
	}
	return e.withLock(func() error {
		var events []eventlog.Event
		for _, id := range commits {
			if !e.repo.HasCommit(id) {
				return fmt.Errorf("%w: %s", groveerrors.ErrCommitNotFound, id)
			}
			events = append(events, eventlog.NewEvent(payload(id)))
		}
		_, err := e.store.Append(label, events)
		return err
	})
}

// RecordCommit tracks a newly created commit, typically from the post-commit
// hook.
func (e *Engine) RecordCommit(id plumbing.Hash) error {
	return e.withLock(func() error {
		if !e.repo.HasCommit(id) {
			return fmt.Errorf("%w: %s", groveerrors.ErrCommitNotFound, id)
		}
		_, err := e.store.Append("commit", []eventlog.Event{
			eventlog.NewEvent(eventlog.CommitCreate{Commit: id}),
		})
		return err
	})
}

// RecordRewrites ingests old/new commit pairs, typically from the
// post-rewrite hook after an external amend or rebase.
func (e *Engine) RecordRewrites(pairs [][2]plumbing.Hash) error {
	if len(pairs) == 0 {
		return nil
	}
	return e.withLock(func() error {
		events := make([]eventlog.Event, len(pairs))
		for i, pair := range pairs {
			events[i] = eventlog.NewEvent(eventlog.Rewrite{Old: pair[0], New: pair[1]})
		}
		_, err := e.store.Append("rewrite", events)
		return err
	})
}

// Restack finds commits stranded on obsolete parents and replays them onto
// live successors. A concurrent ref modification rebuilds the snapshot and
// retries once before giving up.
func (e *Engine) Restack(ctx context.Context) (*executor.Operation, error) {
	var op *executor.Operation
	err := e.withLock(func() error {
		var err error
		op, err = e.runPlan(ctx, "restack", func(g *graph.Graph) (*restack.Plan, error) {
			return restack.Resolve(g)
		})
		return err
	})
	return op, err
}

// Move replays the subtree rooted at commit onto dest.
func (e *Engine) Move(ctx context.Context, commit, dest plumbing.Hash) (*executor.Operation, error) {
	var op *executor.Operation
	err := e.withLock(func() error {
		var err error
		op, err = e.runPlan(ctx, "move", func(g *graph.Graph) (*restack.Plan, error) {
			return restack.SubtreePlan(g, commit, dest)
		})
		return err
	})
	return op, err
}

// runPlan resolves a plan against a fresh snapshot and executes it. The plan
// is recomputed on retry because the failed attempt may have recreated
// commits the snapshot does not know about.
func (e *Engine) runPlan(ctx context.Context, label string, resolve func(*graph.Graph) (*restack.Plan, error)) (*executor.Operation, error) {
	attempt := func() (*executor.Operation, error) {
		g, err := e.BuildGraph()
		if err != nil {
			return nil, err
		}
		plan, err := resolve(g)
		if err != nil {
			return nil, err
		}
		for _, warning := range plan.Warnings {
			e.log.Warn("%s", warning)
		}
		if plan.Empty() {
			e.log.Debug("nothing to %s", label)
			return nil, nil
		}
		return e.newExecutor().Run(ctx, plan, label)
	}

	op, err := attempt()
	if err != nil && errors.Is(err, groveerrors.ErrConcurrentModification) {
		e.log.Debug("%s lost a ref race, retrying against a fresh snapshot", label)
		op, err = attempt()
		if err != nil && errors.Is(err, groveerrors.ErrConcurrentModification) {
			return nil, groveerrors.NewRetryExhaustedError(label, err)
		}
	}
	return op, err
}

// Continue resumes a conflicted operation with the resolved tree for the
// suspended commit.
func (e *Engine) Continue(ctx context.Context, resolvedTree plumbing.Hash) (*executor.Operation, error) {
	var op *executor.Operation
	err := e.withLock(func() error {
		var err error
		op, err = e.newExecutor().Resume(ctx, resolvedTree)
		return err
	})
	return op, err
}

// AbortOperation cancels the in-flight operation and reverts any transaction
// it recorded, restoring the state at the operation's begin boundary.
func (e *Engine) AbortOperation() error {
	return e.withLock(func() error {
		op, err := e.newExecutor().Abort()
		if err != nil {
			return err
		}
		current, err := e.store.LatestTransactionID()
		if err != nil {
			return err
		}
		if current > op.BeginTx {
			inverse, err := undo.Plan(e.store, current, op.BeginTx)
			if err != nil {
				return err
			}
			if _, err := undo.Apply(e.repo, e.store, inverse, "abort "+op.Label); err != nil {
				return err
			}
		}
		e.log.Info("aborted %s", op.Label)
		return nil
	})
}

// Operation returns the persisted in-flight operation, if any.
func (e *Engine) Operation() (*executor.Operation, error) {
	return executor.LoadOperation(e.stateDir)
}

// Undo rolls the repository back to the state after transaction target.
// Undoing an undo is the redo.
func (e *Engine) Undo(target eventlog.TransactionID) (eventlog.TransactionID, error) {
	var tx eventlog.TransactionID
	err := e.withLock(func() error {
		current, err := e.store.LatestTransactionID()
		if err != nil {
			return err
		}
		inverse, err := undo.Plan(e.store, current, target)
		if err != nil {
			return err
		}
		if len(inverse) == 0 {
			return groveerrors.ErrNoOperation
		}
		tx, err = undo.Apply(e.repo, e.store, inverse, fmt.Sprintf("undo to %d", target))
		return err
	})
	return tx, err
}

// UndoLast rolls back the most recent transaction.
func (e *Engine) UndoLast() (eventlog.TransactionID, error) {
	current, err := e.store.LatestTransactionID()
	if err != nil {
		return 0, err
	}
	if current == 0 {
		return 0, groveerrors.ErrNoOperation
	}
	return e.Undo(current - 1)
}

// Transactions lists recorded transactions, newest first.
func (e *Engine) Transactions() ([]eventlog.TransactionInfo, error) {
	return e.store.Transactions()
}

func (e *Engine) newExecutor() *executor.Executor {
	x := executor.New(e.repo, e.store, e.stateDir)
	x.PreserveTimestamps = config.PreserveTimestamps(e.repo)
	return x
}
