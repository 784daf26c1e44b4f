// Package executor applies graph restructuring plans by recreating commits
// with new parents, in dependency order. Conflicts suspend the operation
// into a persisted state machine rather than failing it; resumption picks up
// from the first unresolved step.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-git/go-git/v5/plumbing"

	groveerrors "grove.dev/grove/internal/errors"
	"grove.dev/grove/internal/eventlog"
	"grove.dev/grove/internal/git"
	"grove.dev/grove/internal/restack"
)

// Executor applies move plans against one repository.
type Executor struct {
	repo     *git.Repository
	store    *eventlog.Store
	stateDir string

	// PreserveTimestamps keeps original committer times on recreated
	// commits instead of stamping the current time.
	PreserveTimestamps bool
}

// New creates an executor writing its suspended state into stateDir.
func New(repo *git.Repository, store *eventlog.Store, stateDir string) *Executor {
	return &Executor{repo: repo, store: store, stateDir: stateDir}
}

// Run starts a new operation for the plan. It returns the operation in its
// final state: Completed, or Conflicted when suspended. Starting while
// another operation is suspended is an error.
func (x *Executor) Run(ctx context.Context, plan *restack.Plan, label string) (*Operation, error) {
	if existing, err := LoadOperation(x.stateDir); err == nil &&
		(existing.State == StateRunning || existing.State == StateConflicted) {
		return nil, fmt.Errorf("operation %q is already in progress; continue or abort it first", existing.Label)
	}

	beginTx, err := x.store.LatestTransactionID()
	if err != nil {
		return nil, err
	}

	steps := make([]Step, len(plan.Moves))
	for i, m := range plan.Moves {
		steps[i] = Step{Commit: m.Commit.String(), NewParent: hashField(m.NewParent)}
		for _, p := range m.ExtraParents {
			steps[i].ExtraParents = append(steps[i].ExtraParents, p.String())
		}
	}
	op := &Operation{
		State:    StateRunning,
		Label:    label,
		BeginTx:  beginTx,
		Steps:    steps,
		Rewrites: make(map[string]string),
	}
	if err := SaveOperation(x.stateDir, op); err != nil {
		return nil, err
	}

	return x.execute(ctx, op)
}

// Resume continues a conflicted operation. resolvedTree is the tree id for
// the conflicted commit after manual resolution; the suspended step's commit
// is recreated with it, then the remaining steps run normally.
func (x *Executor) Resume(ctx context.Context, resolvedTree plumbing.Hash) (*Operation, error) {
	op, err := LoadOperation(x.stateDir)
	if err != nil {
		return nil, err
	}
	if op.State != StateConflicted || op.Conflict == nil {
		return nil, fmt.Errorf("%w: operation is %s, not conflicted", groveerrors.ErrNoOperation, op.State)
	}

	step := &op.Steps[op.Conflict.StepIndex]
	original, err := x.repo.ReadCommit(plumbing.NewHash(step.Commit))
	if err != nil {
		return nil, err
	}
	newParent, err := x.resolveParent(op, step.NewParent)
	if err != nil {
		return nil, err
	}

	newID, err := x.recreate(op, original, newParent, resolvedTree, step.ExtraParents)
	if err != nil {
		return nil, err
	}
	step.Done = true
	step.NewCommit = newID.String()
	op.Rewrites[step.Commit] = newID.String()
	op.Conflict = nil
	op.State = StateRunning
	if err := SaveOperation(x.stateDir, op); err != nil {
		return nil, err
	}

	return x.execute(ctx, op)
}

// Abort cancels a conflicted or running operation. Ref moves already covered
// by a recorded transaction are the undo engine's to revert; ref moves from a
// crash between the finalize updates and the covering transaction are
// reverted here, directly from the persisted state.
func (x *Executor) Abort() (*Operation, error) {
	op, err := LoadOperation(x.stateDir)
	if err != nil {
		return nil, err
	}
	if op.State != StateConflicted && op.State != StateRunning {
		return nil, fmt.Errorf("%w: operation is %s", groveerrors.ErrNoOperation, op.State)
	}
	latest, err := x.store.LatestTransactionID()
	if err != nil {
		return nil, err
	}
	if latest == op.BeginTx {
		x.revertRefUpdates(op)
	}
	op.State = StateAborted
	op.Conflict = nil
	if err := SaveOperation(x.stateDir, op); err != nil {
		return nil, err
	}
	if err := ClearOperation(x.stateDir); err != nil {
		return nil, err
	}
	return op, nil
}

// execute runs the remaining steps. Recreating commits only adds objects, so
// a crash mid-run loses nothing: refs and the event log move together in
// finalize, at the very end. A run that fails before recording anything is
// discarded rather than left suspended, so the caller is free to retry.
func (x *Executor) execute(ctx context.Context, op *Operation) (*Operation, error) {
	for i := range op.Steps {
		step := &op.Steps[i]
		if step.Done {
			continue
		}
		// Cancellation is only honored between steps, never mid-step.
		if err := ctx.Err(); err != nil {
			return nil, x.discard(op, err)
		}

		original, err := x.repo.ReadCommit(plumbing.NewHash(step.Commit))
		if err != nil {
			return nil, x.discard(op, err)
		}
		newParent, err := x.resolveParent(op, step.NewParent)
		if err != nil {
			return nil, x.discard(op, err)
		}

		tree, conflicts, err := x.mergeOntoParent(original, newParent)
		if err != nil {
			return nil, x.discard(op, err)
		}
		if len(conflicts) > 0 {
			op.State = StateConflicted
			op.Conflict = &ConflictInfo{
				StepIndex: i,
				Commit:    step.Commit,
				NewParent: newParent.String(),
				Paths:     conflicts,
			}
			if err := SaveOperation(x.stateDir, op); err != nil {
				return nil, err
			}
			return op, nil
		}

		newID, err := x.recreate(op, original, newParent, tree, step.ExtraParents)
		if err != nil {
			return nil, x.discard(op, err)
		}
		step.Done = true
		step.NewCommit = newID.String()
		op.Rewrites[step.Commit] = newID.String()
		if err := SaveOperation(x.stateDir, op); err != nil {
			return nil, x.discard(op, err)
		}
	}

	// finalize reverts any ref it moved before failing, so discarding the
	// state here still leaves the repository unchanged.
	if err := x.finalize(op); err != nil {
		return nil, x.discard(op, err)
	}
	op.State = StateCompleted
	if err := ClearOperation(x.stateDir); err != nil {
		return nil, err
	}
	return op, nil
}

// discard abandons a run that failed before recording anything. Recreated
// commits are unreferenced objects, so clearing the persisted state leaves
// the repository unchanged and a fresh attempt free to start.
func (x *Executor) discard(op *Operation, cause error) error {
	op.State = StateAborted
	op.Conflict = nil
	if err := SaveOperation(x.stateDir, op); err != nil {
		return errors.Join(cause, err)
	}
	if err := ClearOperation(x.stateDir); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

// mergeOntoParent computes the tree for the commit replayed onto newParent:
// a three-way merge of the new parent's tree (ours) and the commit's tree
// (theirs) against the old parent's tree (base).
func (x *Executor) mergeOntoParent(original *git.Commit, newParent plumbing.Hash) (plumbing.Hash, []string, error) {
	base := plumbing.ZeroHash
	if len(original.Parents) > 0 {
		oldParent, err := x.repo.ReadCommit(original.Parents[0])
		if err != nil {
			return plumbing.ZeroHash, nil, err
		}
		base = oldParent.Tree
	}

	ours := plumbing.ZeroHash
	if !newParent.IsZero() {
		parentCommit, err := x.repo.ReadCommit(newParent)
		if err != nil {
			return plumbing.ZeroHash, nil, err
		}
		ours = parentCommit.Tree
	}

	result, err := x.repo.MergeTrees(base, ours, original.Tree)
	if err != nil {
		return plumbing.ZeroHash, nil, err
	}
	if result.HasConflicts() {
		return plumbing.ZeroHash, result.Conflicts, nil
	}
	return result.Tree, nil, nil
}

// recreate writes the replacement commit: same author and message, with the
// first parent swapped for newParent. Secondary parents come from the step's
// plan-time resolution when present, otherwise from the original commit, and
// either way are resolved through the operation's rewrites so merge commits
// follow along.
func (x *Executor) recreate(op *Operation, original *git.Commit, newParent plumbing.Hash, tree plumbing.Hash, extra []string) (plumbing.Hash, error) {
	var parents []plumbing.Hash
	if !newParent.IsZero() {
		parents = append(parents, newParent)
	}
	secondaries := extra
	if secondaries == nil && len(original.Parents) > 1 {
		for _, p := range original.Parents[1:] {
			secondaries = append(secondaries, p.String())
		}
	}
	for _, p := range secondaries {
		resolved, err := x.resolveParent(op, p)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		parents = append(parents, resolved)
	}

	committer := original.Committer
	if !x.PreserveTimestamps {
		committer.When = time.Now()
	}
	return x.repo.WriteCommit(tree, parents, original.Author, committer, original.Message)
}

// resolveParent maps a snapshot-time parent id through the rewrites this
// operation has produced so far, chasing chains with a visited set.
func (x *Executor) resolveParent(op *Operation, parent string) (plumbing.Hash, error) {
	if parent == "" {
		return plumbing.ZeroHash, nil
	}
	visited := map[string]bool{parent: true}
	current := parent
	for {
		next, ok := op.Rewrites[current]
		if !ok {
			return plumbing.NewHash(current), nil
		}
		if visited[next] {
			return plumbing.ZeroHash, groveerrors.NewRewriteCycleError([]string{parent, next})
		}
		visited[next] = true
		current = next
	}
}

// finalize moves every ref that pointed at a rewritten commit and records the
// rewrite mapping plus the ref updates as one transaction. The intended
// updates are persisted before the first ref moves and marked done one by
// one, so a crash between a ref move and the covering transaction is
// revertible from the state file alone. A compare-and-swap failure or a log
// append failure rolls the already-moved refs back, leaving the repository
// unchanged.
func (x *Executor) finalize(op *Operation) error {
	var events []eventlog.Event

	for _, step := range op.Steps {
		if !step.Done {
			return fmt.Errorf("%w: finalize reached with unfinished step %s", groveerrors.ErrCorruption, step.Commit)
		}
		events = append(events, eventlog.NewEvent(eventlog.Rewrite{
			Old: plumbing.NewHash(step.Commit),
			New: plumbing.NewHash(step.NewCommit),
		}))
	}

	branches, err := x.repo.BranchRefs()
	if err != nil {
		return err
	}
	names := make([]string, 0, len(branches))
	for name := range branches {
		names = append(names, name)
	}
	sort.Strings(names)

	var updates []RefUpdateStep
	for _, name := range names {
		tip := branches[name]
		replacement, err := x.resolveParent(op, tip.String())
		if err != nil {
			return err
		}
		if replacement == tip {
			continue
		}
		updates = append(updates, RefUpdateStep{Ref: name, Old: tip.String(), New: replacement.String()})
	}

	head, headBranch, err := x.repo.ReadHead()
	if err != nil {
		return err
	}
	if headBranch == "" && !head.IsZero() {
		replacement, err := x.resolveParent(op, head.String())
		if err != nil {
			return err
		}
		if replacement != head {
			updates = append(updates, RefUpdateStep{Ref: git.HeadRef, Old: head.String(), New: replacement.String()})
		}
	}

	op.RefUpdates = updates
	if err := SaveOperation(x.stateDir, op); err != nil {
		return err
	}

	for i := range op.RefUpdates {
		u := &op.RefUpdates[i]
		if err := x.applyRefUpdate(u); err != nil {
			x.revertRefUpdates(op)
			return err
		}
		u.Done = true
		if err := SaveOperation(x.stateDir, op); err != nil {
			x.revertRefUpdates(op)
			return err
		}
	}

	for _, u := range op.RefUpdates {
		events = append(events, eventlog.NewEvent(eventlog.RefUpdate{
			Ref: u.Ref,
			Old: plumbing.NewHash(u.Old),
			New: plumbing.NewHash(u.New),
		}))
	}
	if _, err := x.store.Append(op.Label, events); err != nil {
		x.revertRefUpdates(op)
		return err
	}
	return nil
}

func (x *Executor) applyRefUpdate(u *RefUpdateStep) error {
	if u.Ref == git.HeadRef {
		return x.repo.SetHeadDetached(plumbing.NewHash(u.New))
	}
	return x.repo.UpdateRef(u.Ref, plumbing.NewHash(u.Old), plumbing.NewHash(u.New))
}

// revertRefUpdates rolls back the ref moves already applied by this
// operation, newest first. Best effort: a ref that moved again underneath is
// left alone.
func (x *Executor) revertRefUpdates(op *Operation) {
	for i := len(op.RefUpdates) - 1; i >= 0; i-- {
		u := op.RefUpdates[i]
		if !u.Done {
			continue
		}
		if u.Ref == git.HeadRef {
			_ = x.repo.SetHeadDetached(plumbing.NewHash(u.Old))
			continue
		}
		_ = x.repo.UpdateRef(u.Ref, plumbing.NewHash(u.New), plumbing.NewHash(u.Old))
	}
}

func hashField(h plumbing.Hash) string {
	if h.IsZero() {
		return ""
	}
	return h.String()
}
