// Package undo computes and applies inverse event sequences, restoring the
// repository to the state it had at an earlier transaction boundary. Undo is
// additive: the inverse sequence is recorded as a new transaction, so redo is
// simply undoing the undo.
package undo

import (
	"fmt"

	"github.com/go-git/go-git/v5/plumbing"

	groveerrors "grove.dev/grove/internal/errors"
	"grove.dev/grove/internal/eventlog"
	"grove.dev/grove/internal/git"
)

// Plan computes the inverse event sequence that rolls the repository back
// from current (inclusive) to target (exclusive). Events are walked in
// reverse total order and inverted semantically.
func Plan(store *eventlog.Store, current, target eventlog.TransactionID) ([]eventlog.Event, error) {
	if target > current {
		return nil, fmt.Errorf("cannot undo forward: target %d is after current %d", target, current)
	}
	if target < 0 {
		return nil, fmt.Errorf("%w: %d", groveerrors.ErrUnknownTransaction, target)
	}
	if target > 0 {
		ok, err := store.HasTransaction(target)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: %d", groveerrors.ErrUnknownTransaction, target)
		}
	}

	events, err := store.ReverseEventsBetween(target, current)
	if err != nil {
		return nil, err
	}

	var inverse []eventlog.Event
	for _, e := range events {
		switch p := e.Payload.(type) {
		case eventlog.RefUpdate:
			inverse = append(inverse, eventlog.NewEvent(eventlog.RefUpdate{
				Ref: p.Ref,
				Old: p.New,
				New: p.Old,
			}))
		case eventlog.CommitCreate:
			// No direct inverse: only reachability changes, and the ref
			// inverses already cover that.
		case eventlog.CommitHide:
			inverse = append(inverse, eventlog.NewEvent(eventlog.CommitUnhide{Commit: p.Commit}))
		case eventlog.CommitUnhide:
			inverse = append(inverse, eventlog.NewEvent(eventlog.CommitHide{Commit: p.Commit}))
		case eventlog.Rewrite:
			// Re-recording the mapping backwards makes the original commit
			// live again and marks the replacement obsolete.
			inverse = append(inverse, eventlog.NewEvent(eventlog.Rewrite{Old: p.New, New: p.Old}))
		default:
			// Unknown kinds have no computable inverse and are skipped.
		}
	}
	return inverse, nil
}

// Apply performs the inverse sequence against the accessor and records it as
// a new transaction. Ref updates use compare-and-swap; every expected value
// is verified before the first ref is touched so a stale sequence aborts
// without mutating anything.
func Apply(repo *git.Repository, store *eventlog.Store, inverse []eventlog.Event, label string) (eventlog.TransactionID, error) {
	if len(inverse) == 0 {
		return 0, nil
	}

	// A ref undone across several transactions appears multiple times in the
	// sequence, each inverse chaining off the value the previous one sets.
	// Simulate the chain so verification matches what apply will see.
	expected := make(map[string]plumbing.Hash)
	for _, e := range inverse {
		p, ok := e.Payload.(eventlog.RefUpdate)
		if !ok {
			continue
		}
		current, seen := expected[p.Ref]
		if !seen {
			var err error
			current, _, err = repo.ReadRef(p.Ref)
			if err != nil {
				return 0, err
			}
		}
		if current != p.Old {
			return 0, groveerrors.NewCASError(p.Ref, p.Old.String(), current.String())
		}
		expected[p.Ref] = p.New
	}

	var applied []eventlog.RefUpdate
	for _, e := range inverse {
		p, ok := e.Payload.(eventlog.RefUpdate)
		if !ok {
			continue
		}
		if err := repo.UpdateRef(p.Ref, p.Old, p.New); err != nil {
			rollBack(repo, applied)
			return 0, err
		}
		applied = append(applied, p)
	}

	tx, err := store.Append(label, inverse)
	if err != nil {
		// The log is the source of truth; when the transaction cannot be
		// recorded the refs move back so the two stay consistent.
		rollBack(repo, applied)
		return 0, groveerrors.NewStorageError("record undo transaction", err)
	}
	return tx, nil
}

// rollBack restores already-applied ref updates newest first, best effort.
func rollBack(repo *git.Repository, applied []eventlog.RefUpdate) {
	for i := len(applied) - 1; i >= 0; i-- {
		p := applied[i]
		_ = repo.UpdateRef(p.Ref, p.New, p.Old)
	}
}
