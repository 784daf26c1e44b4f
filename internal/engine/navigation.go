package engine

import (
	"fmt"
	"sort"

	"github.com/go-git/go-git/v5/plumbing"

	groveerrors "grove.dev/grove/internal/errors"
	"grove.dev/grove/internal/eventlog"
	"grove.dev/grove/internal/graph"
)

// Towards picks a child when a commit has several.
type Towards int

const (
	// TowardsNone makes an ambiguous choice an error.
	TowardsNone Towards = iota
	// TowardsOldest follows the earliest-committed child.
	TowardsOldest
	// TowardsNewest follows the latest-committed child.
	TowardsNewest
)

// NextCommit moves HEAD n steps towards the descendants of the current
// commit, returning the commit it landed on. A commit with multiple visible
// children needs a Towards choice.
func (e *Engine) NextCommit(n int, towards Towards) (plumbing.Hash, error) {
	var target plumbing.Hash
	err := e.withLock(func() error {
		g, err := e.BuildGraph()
		if err != nil {
			return err
		}
		current := g.Head()
		if current.IsZero() {
			return fmt.Errorf("HEAD does not point at a commit")
		}

	steps:
		for step := 0; step < n; step++ {
			children := visibleChildren(g, current)
			switch {
			case len(children) == 0:
				if step == 0 {
					return fmt.Errorf("commit %s has no visible children", current)
				}
				// Partial movement: stop at the last reachable commit.
				break steps
			case len(children) == 1:
				current = children[0].ID
			default:
				switch towards {
				case TowardsOldest:
					current = children[0].ID
				case TowardsNewest:
					current = children[len(children)-1].ID
				default:
					return ambiguousChildrenError(current, children)
				}
			}
		}
		target = current
		return e.moveHead(g, target)
	})
	return target, err
}

// PrevCommit moves HEAD n steps towards the ancestors of the current commit.
func (e *Engine) PrevCommit(n int) (plumbing.Hash, error) {
	var target plumbing.Hash
	err := e.withLock(func() error {
		g, err := e.BuildGraph()
		if err != nil {
			return err
		}
		current := g.Head()
		if current.IsZero() {
			return fmt.Errorf("HEAD does not point at a commit")
		}

		for step := 0; step < n; step++ {
			node, ok := g.Node(current)
			if !ok || len(node.Parents) == 0 {
				if step == 0 {
					return fmt.Errorf("commit %s has no parent", current)
				}
				break
			}
			ancestor := node.NearestVisibleAncestor
			if ancestor.IsZero() {
				ancestor = node.Parents[0]
			}
			current = ancestor
			if _, ok := g.Node(current); !ok {
				// Stepped past the snapshot into trunk history; stop here.
				break
			}
		}
		target = current
		return e.moveHead(g, target)
	})
	return target, err
}

// moveHead detaches HEAD at target and records the movement.
func (e *Engine) moveHead(g *graph.Graph, target plumbing.Hash) error {
	old := g.Head()
	if target == old {
		return nil
	}
	if err := e.repo.SetHeadDetached(target); err != nil {
		return err
	}
	_, err := e.store.Append("checkout", []eventlog.Event{
		eventlog.NewEvent(eventlog.RefUpdate{Ref: "HEAD", Old: old, New: target}),
	})
	return err
}

// visibleChildren returns the visible children of a commit ordered oldest
// first by committer date, ties broken by commit id.
func visibleChildren(g *graph.Graph, id plumbing.Hash) []*graph.Node {
	node, ok := g.Node(id)
	if !ok {
		return nil
	}
	var children []*graph.Node
	for _, childID := range node.Children {
		child, ok := g.Node(childID)
		if !ok || child.Status() != graph.StatusVisible {
			continue
		}
		children = append(children, child)
	}
	sort.Slice(children, func(i, j int) bool {
		if !children[i].Committer.When.Equal(children[j].Committer.When) {
			return children[i].Committer.When.Before(children[j].Committer.When)
		}
		return children[i].ID.String() < children[j].ID.String()
	})
	return children
}

func ambiguousChildrenError(parent plumbing.Hash, children []*graph.Node) error {
	candidates := make([]string, len(children))
	for i, c := range children {
		candidates[i] = c.ID.String()[:8]
	}
	return fmt.Errorf("%w: commit %s has %d children %v; pass --oldest or --newest",
		groveerrors.ErrAmbiguousChild, parent, len(children), candidates)
}
