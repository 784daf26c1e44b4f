// Package restack finds commits whose recorded parent has been superseded
// and produces an ordered plan reattaching them to live successors.
package restack

import (
	"fmt"

	"github.com/go-git/go-git/v5/plumbing"

	"grove.dev/grove/internal/graph"
)

// Move reattaches Commit onto NewParent. A zero NewParent makes the commit a
// new root. NewParent is expressed in terms of snapshot-time ids; when it is
// itself the subject of an earlier Move in the same plan, the executor
// resolves it through the rewrites accumulated so far.
//
// ExtraParents, when set, replaces the secondary parents of a merge commit
// with their live successors. Nil keeps the original secondary parents,
// resolved through the plan's own rewrites.
type Move struct {
	Commit       plumbing.Hash
	NewParent    plumbing.Hash
	ExtraParents []plumbing.Hash
}

// Plan is an ordered sequence of moves. A commit always appears after its
// parent's move. Warnings carry non-fatal conditions such as a commit whose
// entire ancestor chain was stripped.
type Plan struct {
	Moves    []Move
	Warnings []string
}

// Empty reports whether the plan contains no work. A stabilized graph always
// resolves to an empty plan.
func (p *Plan) Empty() bool {
	return len(p.Moves) == 0
}

// Resolve walks the snapshot topologically, parents before children, and
// emits a move for every commit with an obsolete parent, plus the cascading
// moves for its descendants. The first parent determines where the commit
// reattaches; an obsolete secondary parent of a merge resolves to its live
// successor without changing the attachment point.
func Resolve(g *graph.Graph) (*Plan, error) {
	plan := &Plan{}
	moved := make(map[plumbing.Hash]bool)

	for _, node := range g.TopoOrder() {
		// Obsolete and hidden commits are not restacked themselves; their
		// visible descendants are.
		if node.Obsolete || node.Hidden || node.IsMainAncestor {
			continue
		}
		if len(node.Parents) == 0 {
			continue
		}

		parentID := node.Parents[0]
		parent, inGraph := g.Node(parentID)
		extra, extraChanged := resolveExtraParents(g, node)

		switch {
		case inGraph && parent.Obsolete:
			target, warning := liveTarget(g, parent)
			if warning != "" {
				plan.Warnings = append(plan.Warnings, warning)
			}
			if target != parentID {
				plan.Moves = append(plan.Moves, Move{Commit: node.ID, NewParent: target, ExtraParents: extra})
				moved[node.ID] = true
			}
		case moved[parentID]:
			// The parent is being recreated earlier in this plan; follow it.
			plan.Moves = append(plan.Moves, Move{Commit: node.ID, NewParent: parentID, ExtraParents: extra})
			moved[node.ID] = true
		case extraChanged || anyMoved(moved, node.Parents[1:]):
			// Only a secondary parent was superseded; the commit stays on its
			// first parent and the merge edge follows the successor.
			plan.Moves = append(plan.Moves, Move{Commit: node.ID, NewParent: parentID, ExtraParents: extra})
			moved[node.ID] = true
		}
	}

	return plan, nil
}

// resolveExtraParents maps the secondary parents of a merge commit to their
// terminal live successors. The second return value reports whether any
// parent actually changed; when none did, the slice is nil so the executor
// falls back to the originals.
func resolveExtraParents(g *graph.Graph, node *graph.Node) ([]plumbing.Hash, bool) {
	if len(node.Parents) < 2 {
		return nil, false
	}
	changed := false
	out := make([]plumbing.Hash, 0, len(node.Parents)-1)
	for _, p := range node.Parents[1:] {
		if n, ok := g.Node(p); ok && n.Obsolete {
			if successor, live := g.LiveSuccessor(p); live {
				out = append(out, successor)
				changed = true
				continue
			}
		}
		out = append(out, p)
	}
	if !changed {
		return nil, false
	}
	return out, true
}

func anyMoved(moved map[plumbing.Hash]bool, parents []plumbing.Hash) bool {
	for _, p := range parents {
		if moved[p] {
			return true
		}
	}
	return false
}

// SubtreePlan builds a plan that moves commit onto dest and carries the
// commit's visible descendants along. The destination must lie outside the
// moved subtree; replaying a commit beneath its own descendant would nest the
// recreated chain under its stale copy.
func SubtreePlan(g *graph.Graph, commit, dest plumbing.Hash) (*Plan, error) {
	node, ok := g.Node(commit)
	if !ok {
		return nil, fmt.Errorf("commit %s is not in the tracked graph", commit)
	}
	if _, ok := g.Node(dest); !ok && !dest.IsZero() {
		return nil, fmt.Errorf("destination %s is not in the tracked graph", dest)
	}
	if dest == commit || isDescendant(g, commit, dest) {
		return nil, fmt.Errorf("destination %s is inside the subtree of %s", dest, commit)
	}

	plan := &Plan{Moves: []Move{{Commit: commit, NewParent: dest}}}
	moved := map[plumbing.Hash]bool{commit: true}

	for _, n := range g.TopoOrder() {
		if n.ID == node.ID || n.Obsolete || n.Hidden {
			continue
		}
		if len(n.Parents) == 0 {
			continue
		}
		if moved[n.Parents[0]] {
			plan.Moves = append(plan.Moves, Move{Commit: n.ID, NewParent: n.Parents[0]})
			moved[n.ID] = true
		}
	}
	return plan, nil
}

// isDescendant reports whether id is reachable from root through child edges.
func isDescendant(g *graph.Graph, root, id plumbing.Hash) bool {
	queue := []plumbing.Hash{root}
	seen := map[plumbing.Hash]bool{root: true}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		node, ok := g.Node(current)
		if !ok {
			continue
		}
		for _, child := range node.Children {
			if child == id {
				return true
			}
			if !seen[child] {
				seen[child] = true
				queue = append(queue, child)
			}
		}
	}
	return false
}

// liveTarget resolves the reattachment point for a child of an obsolete
// parent: the terminal live successor when one exists, otherwise the nearest
// surviving ancestor along the original chain. When the whole chain is gone
// the commit becomes a new root and a warning is reported.
func liveTarget(g *graph.Graph, parent *graph.Node) (plumbing.Hash, string) {
	if successor, live := g.LiveSuccessor(parent.ID); live {
		return successor, ""
	}

	current := parent
	for {
		if len(current.Parents) == 0 {
			return plumbing.ZeroHash, fmt.Sprintf(
				"no surviving ancestor for descendants of %s; reattaching as a new root", parent.ID)
		}
		ancestorID := current.Parents[0]
		ancestor, ok := g.Node(ancestorID)
		if !ok {
			// Trunk history outside the snapshot is always alive.
			return ancestorID, ""
		}
		if ancestor.Status() == graph.StatusVisible {
			return ancestorID, ""
		}
		// A hidden-but-rewritten ancestor may still have a live successor.
		if ancestor.Obsolete {
			if successor, live := g.LiveSuccessor(ancestor.ID); live {
				return successor, ""
			}
		}
		current = ancestor
	}
}
