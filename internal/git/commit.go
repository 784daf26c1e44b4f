package git

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	groveerrors "grove.dev/grove/internal/errors"
)

// Signature identifies an author or committer.
type Signature struct {
	Name  string
	Email string
	When  time.Time
}

// Commit is an immutable commit descriptor owned by the object store.
type Commit struct {
	ID        plumbing.Hash
	Parents   []plumbing.Hash
	Tree      plumbing.Hash
	Author    Signature
	Committer Signature
	Message   string
}

// Summary returns the first line of the commit message.
func (c *Commit) Summary() string {
	if i := strings.IndexByte(c.Message, '\n'); i >= 0 {
		return c.Message[:i]
	}
	return c.Message
}

// ReadCommit reads a commit descriptor from the object store.
func (r *Repository) ReadCommit(id plumbing.Hash) (*Commit, error) {
	c, err := r.CommitObject(id)
	if err != nil {
		if err == plumbing.ErrObjectNotFound {
			return nil, fmt.Errorf("%w: %s", groveerrors.ErrCommitNotFound, id)
		}
		return nil, fmt.Errorf("failed to read commit %s: %w", id, err)
	}

	parents := make([]plumbing.Hash, len(c.ParentHashes))
	copy(parents, c.ParentHashes)

	return &Commit{
		ID:        c.Hash,
		Parents:   parents,
		Tree:      c.TreeHash,
		Author:    Signature{Name: c.Author.Name, Email: c.Author.Email, When: c.Author.When},
		Committer: Signature{Name: c.Committer.Name, Email: c.Committer.Email, When: c.Committer.When},
		Message:   c.Message,
	}, nil
}

// HasCommit reports whether the object store holds a commit with the given id.
func (r *Repository) HasCommit(id plumbing.Hash) bool {
	_, err := r.CommitObject(id)
	return err == nil
}

// WriteCommit writes a new commit object and returns its id. The commit is
// not referenced by any ref until the caller updates one.
func (r *Repository) WriteCommit(tree plumbing.Hash, parents []plumbing.Hash, author, committer Signature, message string) (plumbing.Hash, error) {
	c := &object.Commit{
		Author:       object.Signature{Name: author.Name, Email: author.Email, When: author.When},
		Committer:    object.Signature{Name: committer.Name, Email: committer.Email, When: committer.When},
		Message:      message,
		TreeHash:     tree,
		ParentHashes: parents,
	}

	obj := r.Storer.NewEncodedObject()
	if err := c.Encode(obj); err != nil {
		return plumbing.ZeroHash, groveerrors.NewStorageError("encode commit", err)
	}
	id, err := r.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, groveerrors.NewStorageError("write commit", err)
	}
	return id, nil
}

// WriteBlob writes a blob object and returns its id.
func (r *Repository) WriteBlob(data []byte) (plumbing.Hash, error) {
	obj := r.Storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	w, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, groveerrors.NewStorageError("create blob writer", err)
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return plumbing.ZeroHash, groveerrors.NewStorageError("write blob", err)
	}
	if err := w.Close(); err != nil {
		return plumbing.ZeroHash, groveerrors.NewStorageError("close blob writer", err)
	}
	id, err := r.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, groveerrors.NewStorageError("store blob", err)
	}
	return id, nil
}

// IsAncestor checks if ancestor is an ancestor of descendant.
func (r *Repository) IsAncestor(ancestor, descendant plumbing.Hash) (bool, error) {
	if ancestor == descendant {
		return true, nil
	}

	ancestorCommit, err := r.CommitObject(ancestor)
	if err != nil {
		return false, fmt.Errorf("failed to get ancestor commit: %w", err)
	}
	descendantCommit, err := r.CommitObject(descendant)
	if err != nil {
		return false, fmt.Errorf("failed to get descendant commit: %w", err)
	}

	return ancestorCommit.IsAncestor(descendantCommit)
}

// MergeBase returns the best common ancestor of two commits, or a zero hash
// when the histories are unrelated.
func (r *Repository) MergeBase(a, b plumbing.Hash) (plumbing.Hash, error) {
	commitA, err := r.CommitObject(a)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to get commit %s: %w", a, err)
	}
	commitB, err := r.CommitObject(b)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to get commit %s: %w", b, err)
	}

	bases, err := commitA.MergeBase(commitB)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to find merge base: %w", err)
	}
	if len(bases) == 0 {
		return plumbing.ZeroHash, nil
	}
	return bases[0].Hash, nil
}

// ChangedFiles returns the paths changed by a commit relative to its first
// parent. A root commit reports all of its files.
func (r *Repository) ChangedFiles(id plumbing.Hash) ([]string, error) {
	c, err := r.CommitObject(id)
	if err != nil {
		return nil, fmt.Errorf("failed to read commit %s: %w", id, err)
	}
	tree, err := c.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to read tree for %s: %w", id, err)
	}

	if c.NumParents() == 0 {
		var paths []string
		iter := tree.Files()
		err := iter.ForEach(func(f *object.File) error {
			paths = append(paths, f.Name)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list files for %s: %w", id, err)
		}
		return paths, nil
	}

	parent, err := c.Parent(0)
	if err != nil {
		return nil, fmt.Errorf("failed to read parent of %s: %w", id, err)
	}
	parentTree, err := parent.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to read parent tree of %s: %w", id, err)
	}

	changes, err := object.DiffTree(parentTree, tree)
	if err != nil {
		return nil, fmt.Errorf("failed to diff trees for %s: %w", id, err)
	}

	seen := make(map[string]bool)
	var paths []string
	for _, change := range changes {
		name := change.To.Name
		if name == "" {
			name = change.From.Name
		}
		if name != "" && !seen[name] {
			seen[name] = true
			paths = append(paths, name)
		}
	}
	return paths, nil
}
