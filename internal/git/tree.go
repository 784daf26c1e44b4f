package git

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"

	groveerrors "grove.dev/grove/internal/errors"
)

// TreeEntry describes a single blob within a flattened tree.
type TreeEntry struct {
	Hash plumbing.Hash
	Mode filemode.FileMode
}

// FlattenTree returns all blobs of a tree keyed by slash-separated path.
// A zero hash flattens to an empty map.
func (r *Repository) FlattenTree(id plumbing.Hash) (map[string]TreeEntry, error) {
	entries := make(map[string]TreeEntry)
	if id.IsZero() {
		return entries, nil
	}

	tree, err := r.TreeObject(id)
	if err != nil {
		return nil, fmt.Errorf("failed to read tree %s: %w", id, err)
	}

	iter := tree.Files()
	err = iter.ForEach(func(f *object.File) error {
		entries[f.Name] = TreeEntry{Hash: f.Blob.Hash, Mode: f.Mode}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to flatten tree %s: %w", id, err)
	}
	return entries, nil
}

// WriteTree writes the tree objects for a flattened path->entry map and
// returns the root tree id. Intermediate directory trees are created as
// needed.
func (r *Repository) WriteTree(entries map[string]TreeEntry) (plumbing.Hash, error) {
	type dirNode struct {
		blobs map[string]TreeEntry
		dirs  map[string]*dirNode
	}
	newDir := func() *dirNode {
		return &dirNode{blobs: make(map[string]TreeEntry), dirs: make(map[string]*dirNode)}
	}

	root := newDir()
	for path, entry := range entries {
		parts := strings.Split(path, "/")
		node := root
		for _, part := range parts[:len(parts)-1] {
			child, ok := node.dirs[part]
			if !ok {
				child = newDir()
				node.dirs[part] = child
			}
			node = child
		}
		node.blobs[parts[len(parts)-1]] = entry
	}

	var write func(node *dirNode) (plumbing.Hash, error)
	write = func(node *dirNode) (plumbing.Hash, error) {
		list := make([]object.TreeEntry, 0, len(node.blobs)+len(node.dirs))
		for name, entry := range node.blobs {
			list = append(list, object.TreeEntry{Name: name, Mode: entry.Mode, Hash: entry.Hash})
		}
		for name, child := range node.dirs {
			hash, err := write(child)
			if err != nil {
				return plumbing.ZeroHash, err
			}
			list = append(list, object.TreeEntry{Name: name, Mode: filemode.Dir, Hash: hash})
		}

		// Git orders tree entries by name, with directories compared as if
		// their name had a trailing slash.
		sort.Slice(list, func(i, j int) bool {
			return treeEntrySortKey(list[i]) < treeEntrySortKey(list[j])
		})

		tree := &object.Tree{Entries: list}
		obj := r.Storer.NewEncodedObject()
		if err := tree.Encode(obj); err != nil {
			return plumbing.ZeroHash, groveerrors.NewStorageError("encode tree", err)
		}
		id, err := r.Storer.SetEncodedObject(obj)
		if err != nil {
			return plumbing.ZeroHash, groveerrors.NewStorageError("write tree", err)
		}
		return id, nil
	}

	return write(root)
}

func treeEntrySortKey(e object.TreeEntry) string {
	if e.Mode == filemode.Dir {
		return e.Name + "/"
	}
	return e.Name
}

// MergeResult is the outcome of a three-way tree merge. Tree is only valid
// when Conflicts is empty.
type MergeResult struct {
	Tree      plumbing.Hash
	Conflicts []string
}

// HasConflicts reports whether the merge produced conflicting paths.
func (m *MergeResult) HasConflicts() bool {
	return len(m.Conflicts) > 0
}

// MergeTrees merges theirs onto ours using base as the common ancestor.
// The merge is resolved per path: a side that matches the base yields to the
// other side; identical results on both sides agree; anything else is a
// conflict. Conflicted paths are reported, not content-merged.
func (r *Repository) MergeTrees(base, ours, theirs plumbing.Hash) (*MergeResult, error) {
	baseEntries, err := r.FlattenTree(base)
	if err != nil {
		return nil, err
	}
	ourEntries, err := r.FlattenTree(ours)
	if err != nil {
		return nil, err
	}
	theirEntries, err := r.FlattenTree(theirs)
	if err != nil {
		return nil, err
	}

	paths := make(map[string]bool)
	for p := range baseEntries {
		paths[p] = true
	}
	for p := range ourEntries {
		paths[p] = true
	}
	for p := range theirEntries {
		paths[p] = true
	}

	merged := make(map[string]TreeEntry)
	var conflicts []string
	for path := range paths {
		b, inBase := baseEntries[path]
		o, inOurs := ourEntries[path]
		t, inTheirs := theirEntries[path]

		switch {
		case inOurs && inTheirs && o == t:
			merged[path] = o
		case (!inOurs && !inTheirs):
			// Deleted on both sides.
		case inBase && inOurs && o == b:
			// Only their side changed (or deleted) the path.
			if inTheirs {
				merged[path] = t
			}
		case inBase && inTheirs && t == b:
			// Only our side changed (or deleted) the path.
			if inOurs {
				merged[path] = o
			}
		case !inBase && inOurs && !inTheirs:
			merged[path] = o
		case !inBase && inTheirs && !inOurs:
			merged[path] = t
		default:
			conflicts = append(conflicts, path)
		}
	}

	if len(conflicts) > 0 {
		sort.Strings(conflicts)
		return &MergeResult{Conflicts: conflicts}, nil
	}

	tree, err := r.WriteTree(merged)
	if err != nil {
		return nil, err
	}
	return &MergeResult{Tree: tree}, nil
}
