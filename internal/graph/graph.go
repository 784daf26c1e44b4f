// Package graph derives an in-memory DAG view of the tracked commits from the
// object store and the event log. A Graph is an immutable point-in-time
// snapshot; callers rebuild after each new transaction.
package graph

import (
	"sort"

	"github.com/go-git/go-git/v5/plumbing"

	groveerrors "grove.dev/grove/internal/errors"
	"grove.dev/grove/internal/eventlog"
	"grove.dev/grove/internal/git"
)

// Status is the display status of a commit in the graph.
type Status int

const (
	// StatusVisible is a live, displayed commit.
	StatusVisible Status = iota
	// StatusHidden is a commit suppressed from display by a hide event.
	StatusHidden
	// StatusObsolete is a commit superseded by a rewrite.
	StatusObsolete
)

func (s Status) String() string {
	switch s {
	case StatusHidden:
		return "hidden"
	case StatusObsolete:
		return "obsolete"
	default:
		return "visible"
	}
}

// Node is one commit in the graph snapshot.
type Node struct {
	ID       plumbing.Hash
	Parents  []plumbing.Hash
	Children []plumbing.Hash

	// Obsolete is set when a rewrite mapping supersedes this commit.
	// Successor is the terminal live replacement, or zero when the chain
	// ends in a missing or hidden commit.
	Obsolete  bool
	Successor plumbing.Hash

	// Hidden overrides display but not the underlying obsolete status.
	Hidden bool

	IsHead         bool
	IsMainAncestor bool

	// NearestVisibleAncestor is the closest ancestor that is neither hidden
	// nor obsolete, or zero when none exists inside the graph.
	NearestVisibleAncestor plumbing.Hash

	Committer git.Signature
	Summary   string

	// ChangedFiles is filled by AnnotateChangedFiles; nil until then.
	ChangedFiles []string
}

// Status returns the display status: hidden wins over obsolete, obsolete
// over visible.
func (n *Node) Status() Status {
	switch {
	case n.Hidden:
		return StatusHidden
	case n.Obsolete:
		return StatusObsolete
	default:
		return StatusVisible
	}
}

// Graph is an immutable snapshot of the tracked commit DAG.
type Graph struct {
	nodes    map[plumbing.Hash]*Node
	head     plumbing.Hash
	mainTip  plumbing.Hash
	rewrites map[plumbing.Hash]plumbing.Hash
}

// Build constructs a graph snapshot from the accessor state and the event
// log. headRef is usually HEAD; mainRef is the trunk branch ref whose
// ancestry is excluded from the visible set.
func Build(repo *git.Repository, store *eventlog.Store, headRef, mainRef string) (*Graph, error) {
	events, err := store.AllEvents()
	if err != nil {
		return nil, err
	}

	mainTip, ok, err := repo.ReadRef(mainRef)
	if err != nil {
		return nil, err
	}
	if !ok {
		mainTip = plumbing.ZeroHash
	}

	var head plumbing.Hash
	if headRef == git.HeadRef {
		head, _, err = repo.ReadHead()
	} else {
		head, _, err = repo.ReadRef(headRef)
	}
	if err != nil {
		return nil, err
	}

	// Replay the log: last rewrite per old id wins, and a hide is in effect
	// unless a later unhide names the same commit. Replay is deterministic
	// because events arrive in total order.
	rewrites := make(map[plumbing.Hash]plumbing.Hash)
	hidden := make(map[plumbing.Hash]bool)
	tracked := make(map[plumbing.Hash]bool)
	for _, e := range events {
		switch p := e.Payload.(type) {
		case eventlog.RefUpdate:
			if !p.New.IsZero() {
				tracked[p.New] = true
			}
		case eventlog.CommitCreate:
			tracked[p.Commit] = true
		case eventlog.CommitHide:
			hidden[p.Commit] = true
		case eventlog.CommitUnhide:
			delete(hidden, p.Commit)
		case eventlog.Rewrite:
			rewrites[p.Old] = p.New
			tracked[p.New] = true
		default:
			// Unknown kind: preserved in the log, ignored during replay.
		}
	}

	// Fail fast on a cyclic rewrite mapping before any traversal work.
	for old := range rewrites {
		if _, err := resolveSuccessor(rewrites, old); err != nil {
			return nil, err
		}
	}

	g := &Graph{
		nodes:    make(map[plumbing.Hash]*Node),
		head:     head,
		mainTip:  mainTip,
		rewrites: rewrites,
	}

	// Seed the walk with the head, local branches and every commit the log
	// tracks. Off-branch commits stay in the graph solely because the log
	// remembers them.
	seeds := make(map[plumbing.Hash]bool)
	if !head.IsZero() {
		seeds[head] = true
	}
	branches, err := repo.BranchRefs()
	if err != nil {
		return nil, err
	}
	for _, tip := range branches {
		seeds[tip] = true
	}
	for id := range tracked {
		seeds[id] = true
	}
	for old := range rewrites {
		seeds[old] = true
	}
	if !mainTip.IsZero() {
		seeds[mainTip] = true
	}

	mainAncestor := newAncestryCache(repo, mainTip)

	// Walk ancestors of each seed, stopping at the trunk boundary: a main
	// ancestor is included as an anchor but its parents are not traversed.
	queue := make([]plumbing.Hash, 0, len(seeds))
	for id := range seeds {
		queue = append(queue, id)
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if _, done := g.nodes[id]; done {
			continue
		}
		commit, err := repo.ReadCommit(id)
		if err != nil {
			// Stripped object: the log may reference commits whose objects
			// are gone. They simply drop out of the snapshot.
			continue
		}

		isMain, err := mainAncestor.contains(id)
		if err != nil {
			return nil, err
		}

		node := &Node{
			ID:             id,
			Parents:        commit.Parents,
			IsMainAncestor: isMain,
			Committer:      commit.Committer,
			Summary:        commit.Summary(),
		}
		g.nodes[id] = node

		if isMain {
			continue
		}
		queue = append(queue, commit.Parents...)
	}

	// Apply statuses and derive child edges restricted to the walked set.
	for id, node := range g.nodes {
		if _, obsolete := rewrites[id]; obsolete {
			node.Obsolete = true
			terminal, err := resolveSuccessor(rewrites, id)
			if err != nil {
				return nil, err
			}
			node.Successor = terminal
		}
		node.Hidden = hidden[id]
		node.IsHead = id == head
	}
	for id, node := range g.nodes {
		for _, parent := range node.Parents {
			if parentNode, ok := g.nodes[parent]; ok {
				parentNode.Children = append(parentNode.Children, id)
			}
		}
	}
	for _, node := range g.nodes {
		sort.Slice(node.Children, func(i, j int) bool {
			return node.Children[i].String() < node.Children[j].String()
		})
	}

	g.computeNearestVisibleAncestors()

	return g, nil
}

// resolveSuccessor follows the rewrite mapping from old to its terminal
// (unmapped) successor, failing on cycles with an explicit visited set.
func resolveSuccessor(rewrites map[plumbing.Hash]plumbing.Hash, old plumbing.Hash) (plumbing.Hash, error) {
	visited := map[plumbing.Hash]bool{old: true}
	chain := []string{old.String()}
	current := old
	for {
		next, ok := rewrites[current]
		if !ok {
			return current, nil
		}
		if visited[next] {
			chain = append(chain, next.String())
			return plumbing.ZeroHash, groveerrors.NewRewriteCycleError(chain)
		}
		visited[next] = true
		chain = append(chain, next.String())
		current = next
	}
}

// computeNearestVisibleAncestors walks each node's first-parent chain,
// skipping hidden and obsolete commits, so that hiding a commit re-parents
// its descendants' display attachment to the hidden commit's parent.
func (g *Graph) computeNearestVisibleAncestors() {
	for _, node := range g.nodes {
		current := node
		for {
			if len(current.Parents) == 0 {
				node.NearestVisibleAncestor = plumbing.ZeroHash
				break
			}
			parentID := current.Parents[0]
			parent, ok := g.nodes[parentID]
			if !ok {
				// Outside the walked set; treat as visible trunk history.
				node.NearestVisibleAncestor = parentID
				break
			}
			if parent.Status() == StatusVisible {
				node.NearestVisibleAncestor = parentID
				break
			}
			current = parent
		}
	}
}

// Node returns the node for a commit id.
func (g *Graph) Node(id plumbing.Hash) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Head returns the commit id HEAD resolved to at build time.
func (g *Graph) Head() plumbing.Hash {
	return g.head
}

// MainTip returns the trunk tip commit id at build time.
func (g *Graph) MainTip() plumbing.Hash {
	return g.mainTip
}

// Rewrites returns the old->new rewrite mapping observed in the log.
func (g *Graph) Rewrites() map[plumbing.Hash]plumbing.Hash {
	return g.rewrites
}

// LiveSuccessor resolves the terminal successor of a commit and reports
// whether that successor is present and visible in the snapshot.
func (g *Graph) LiveSuccessor(id plumbing.Hash) (plumbing.Hash, bool) {
	terminal, err := resolveSuccessor(g.rewrites, id)
	if err != nil || terminal.IsZero() {
		return plumbing.ZeroHash, false
	}
	node, ok := g.nodes[terminal]
	if !ok || node.Hidden {
		return terminal, false
	}
	return terminal, true
}

// Size returns the number of commits in the snapshot.
func (g *Graph) Size() int {
	return len(g.nodes)
}

// Commits returns all nodes ordered by commit id for deterministic iteration.
func (g *Graph) Commits() []*Node {
	nodes := make([]*Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].ID.String() < nodes[j].ID.String()
	})
	return nodes
}

// Roots returns the nodes that anchor the rendered tree: main ancestors and
// nodes whose parents all fall outside the snapshot.
func (g *Graph) Roots() []*Node {
	var roots []*Node
	for _, n := range g.Commits() {
		if n.IsMainAncestor {
			roots = append(roots, n)
			continue
		}
		anchored := false
		for _, p := range n.Parents {
			if _, ok := g.nodes[p]; ok {
				anchored = true
				break
			}
		}
		if !anchored {
			roots = append(roots, n)
		}
	}
	return roots
}

// TopoOrder returns all nodes parents-before-children. Ties are broken by
// commit id so the order is deterministic.
func (g *Graph) TopoOrder() []*Node {
	indegree := make(map[plumbing.Hash]int, len(g.nodes))
	for id, node := range g.nodes {
		if _, ok := indegree[id]; !ok {
			indegree[id] = 0
		}
		for _, p := range node.Parents {
			if _, ok := g.nodes[p]; ok {
				indegree[id]++
			}
		}
	}

	var frontier []plumbing.Hash
	for id, deg := range indegree {
		if deg == 0 {
			frontier = append(frontier, id)
		}
	}

	var order []*Node
	for len(frontier) > 0 {
		sort.Slice(frontier, func(i, j int) bool {
			return frontier[i].String() < frontier[j].String()
		})
		id := frontier[0]
		frontier = frontier[1:]
		node := g.nodes[id]
		order = append(order, node)
		for _, child := range node.Children {
			indegree[child]--
			if indegree[child] == 0 {
				frontier = append(frontier, child)
			}
		}
	}
	return order
}

// ancestryCache memoizes is-ancestor-of-trunk queries during a build.
type ancestryCache struct {
	repo  *git.Repository
	tip   plumbing.Hash
	known map[plumbing.Hash]bool
}

func newAncestryCache(repo *git.Repository, tip plumbing.Hash) *ancestryCache {
	return &ancestryCache{repo: repo, tip: tip, known: make(map[plumbing.Hash]bool)}
}

func (c *ancestryCache) contains(id plumbing.Hash) (bool, error) {
	if c.tip.IsZero() {
		return false, nil
	}
	if v, ok := c.known[id]; ok {
		return v, nil
	}
	v, err := c.repo.IsAncestor(id, c.tip)
	if err != nil {
		return false, err
	}
	c.known[id] = v
	return v, nil
}
