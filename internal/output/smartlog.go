package output

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"

	"grove.dev/grove/internal/graph"
)

// SmartlogOptions configures rendering behavior
type SmartlogOptions struct {
	ShowHidden bool
	ShowFiles  bool
	Color      bool
}

// SmartlogRenderer renders the tracked commit graph as an indented tree.
// Trunk anchors render with a diamond, the checked-out commit with a filled
// circle, and obsolete commits struck through with their successor noted.
type SmartlogRenderer struct {
	graph    *graph.Graph
	branches map[plumbing.Hash][]string
	opts     SmartlogOptions
}

// NewSmartlogRenderer creates a renderer. branches maps a commit id to the
// branch names pointing at it, used for annotations.
func NewSmartlogRenderer(g *graph.Graph, branches map[plumbing.Hash][]string, opts SmartlogOptions) *SmartlogRenderer {
	if branches == nil {
		branches = make(map[plumbing.Hash][]string)
	}
	return &SmartlogRenderer{graph: g, branches: branches, opts: opts}
}

// Render returns the smartlog lines, trunk anchors first.
func (r *SmartlogRenderer) Render() []string {
	displayed := make(map[plumbing.Hash]bool)
	for _, n := range r.graph.Commits() {
		if n.IsMainAncestor {
			continue
		}
		if n.Hidden && !r.opts.ShowHidden {
			continue
		}
		displayed[n.ID] = true
	}

	// Attach each displayed commit under its nearest visible ancestor so that
	// hiding a commit folds its descendants up to the hidden commit's parent.
	children := make(map[plumbing.Hash][]*graph.Node)
	var roots []*graph.Node
	anchors := make(map[plumbing.Hash]bool)
	if !r.graph.MainTip().IsZero() {
		if _, ok := r.graph.Node(r.graph.MainTip()); ok {
			anchors[r.graph.MainTip()] = true
		}
	}

	for _, n := range r.graph.Commits() {
		if !displayed[n.ID] {
			continue
		}
		parent := r.displayParent(n)
		if parent.IsZero() {
			roots = append(roots, n)
			continue
		}
		if pn, ok := r.graph.Node(parent); ok && pn.IsMainAncestor {
			anchors[parent] = true
		}
		children[parent] = append(children[parent], n)
	}

	for id := range children {
		sortNodes(children[id])
	}

	var anchorNodes []*graph.Node
	for id := range anchors {
		if n, ok := r.graph.Node(id); ok {
			anchorNodes = append(anchorNodes, n)
		}
	}
	sortNodes(anchorNodes)
	sortNodes(roots)

	var lines []string
	for _, anchor := range anchorNodes {
		lines = append(lines, r.renderSubtree(anchor, children, 0)...)
	}
	for _, root := range roots {
		lines = append(lines, r.renderSubtree(root, children, 0)...)
	}
	return lines
}

// displayParent resolves the tree attachment point for a node: the nearest
// visible ancestor, or the raw first parent when hidden commits are shown.
func (r *SmartlogRenderer) displayParent(n *graph.Node) plumbing.Hash {
	if r.opts.ShowHidden {
		if len(n.Parents) > 0 {
			return n.Parents[0]
		}
		return plumbing.ZeroHash
	}
	ancestor := n.NearestVisibleAncestor
	if ancestor.IsZero() {
		return plumbing.ZeroHash
	}
	if _, ok := r.graph.Node(ancestor); !ok {
		// Trunk history outside the snapshot; treat as a root.
		return plumbing.ZeroHash
	}
	return ancestor
}

func (r *SmartlogRenderer) renderSubtree(n *graph.Node, children map[plumbing.Hash][]*graph.Node, indent int) []string {
	prefix := strings.Repeat("│  ", indent)

	lines := []string{prefix + r.nodeLine(n)}

	kids := children[n.ID]
	for i, child := range kids {
		childIndent := indent
		if i > 0 {
			// Siblings after the first branch out one level deeper.
			childIndent = indent + i
			lines = append(lines, strings.Repeat("│  ", childIndent)+"│")
		} else {
			lines = append(lines, prefix+"│")
		}
		lines = append(lines, r.renderSubtree(child, children, childIndent)...)
	}
	return lines
}

func (r *SmartlogRenderer) nodeLine(n *graph.Node) string {
	symbol := "◯"
	switch {
	case n.IsMainAncestor:
		symbol = "◇"
	case n.IsHead:
		symbol = "◉"
	}

	short := n.ID.String()[:8]
	summary := n.Summary

	var annotations []string
	for _, branch := range r.branches[n.ID] {
		annotations = append(annotations, r.color(ColorBranch, "("+branch+")")...)
	}
	if n.Obsolete {
		note := "(rewritten"
		if !n.Successor.IsZero() {
			note += " as " + n.Successor.String()[:8]
		}
		note += ")"
		annotations = append(annotations, r.color(ColorWarning, note)...)
	}
	if n.Hidden {
		annotations = append(annotations, r.color(ColorDim, "(hidden)")...)
	}
	if r.opts.ShowFiles && len(n.ChangedFiles) > 0 {
		annotations = append(annotations, r.color(ColorDim, fmt.Sprintf("[%d files]", len(n.ChangedFiles)))...)
	}

	line := summary
	if r.opts.Color {
		short = ColorHash(short)
		switch {
		case n.Obsolete || n.Hidden:
			line = ColorObsolete(line)
		case n.IsHead:
			line = ColorCurrent(line)
		}
	}

	parts := []string{symbol, short, line}
	parts = append(parts, annotations...)
	return strings.Join(parts, " ")
}

func (r *SmartlogRenderer) color(f func(string) string, text string) []string {
	if r.opts.Color {
		return []string{f(text)}
	}
	return []string{text}
}

// sortNodes orders siblings oldest first, ties broken by commit id.
func sortNodes(nodes []*graph.Node) {
	sort.Slice(nodes, func(i, j int) bool {
		if !nodes[i].Committer.When.Equal(nodes[j].Committer.When) {
			return nodes[i].Committer.When.Before(nodes[j].Committer.When)
		}
		return nodes[i].ID.String() < nodes[j].ID.String()
	})
}
