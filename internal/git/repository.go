package git

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	groveerrors "grove.dev/grove/internal/errors"
)

// HeadRef is the symbolic name of the HEAD reference.
const HeadRef = "HEAD"

// BranchRefPrefix is the prefix for local branch refs.
const BranchRefPrefix = "refs/heads/"

// Repository wraps a go-git repository
type Repository struct {
	*gogit.Repository
	path string
}

// OpenRepository opens a git repository at the given path
func OpenRepository(path string) (*Repository, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}

	repo, err := gogit.PlainOpenWithOptions(absPath, &gogit.PlainOpenOptions{
		DetectDotGit: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open repository: %w", err)
	}

	return &Repository{
		Repository: repo,
		path:       absPath,
	}, nil
}

// GetRepoRoot returns the root directory of the repository
func (r *Repository) GetRepoRoot() string {
	return r.path
}

// GitDir returns the path to the .git directory
func (r *Repository) GitDir() string {
	return filepath.Join(r.path, ".git")
}

// ReadRef returns the commit a ref points to. The second return value is
// false when the ref does not exist.
func (r *Repository) ReadRef(name string) (plumbing.Hash, bool, error) {
	ref, err := r.Reference(plumbing.ReferenceName(name), true)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return plumbing.ZeroHash, false, nil
		}
		return plumbing.ZeroHash, false, fmt.Errorf("failed to read ref %s: %w", name, err)
	}
	return ref.Hash(), true, nil
}

// ReadHead resolves HEAD to a commit id. The second return value is the
// branch ref name when HEAD is symbolic, or empty when detached.
func (r *Repository) ReadHead() (plumbing.Hash, string, error) {
	head, err := r.Storer.Reference(plumbing.HEAD)
	if err != nil {
		return plumbing.ZeroHash, "", fmt.Errorf("failed to read HEAD: %w", err)
	}

	if head.Type() == plumbing.SymbolicReference {
		target := head.Target()
		hash, ok, err := r.ReadRef(target.String())
		if err != nil {
			return plumbing.ZeroHash, "", err
		}
		if !ok {
			// Unborn branch (fresh repository).
			return plumbing.ZeroHash, target.String(), nil
		}
		return hash, target.String(), nil
	}
	return head.Hash(), "", nil
}

// SetHeadDetached points HEAD directly at a commit.
func (r *Repository) SetHeadDetached(id plumbing.Hash) error {
	ref := plumbing.NewHashReference(plumbing.HEAD, id)
	if err := r.Storer.SetReference(ref); err != nil {
		return groveerrors.NewStorageError("set HEAD", err)
	}
	return nil
}

// UpdateRef updates a ref with compare-and-swap semantics. The update fails
// with ErrConcurrentModification when the ref's current value differs from
// old. A zero old hash asserts the ref must not exist; a zero target hash
// deletes the ref.
func (r *Repository) UpdateRef(name string, old, target plumbing.Hash) error {
	refName := plumbing.ReferenceName(name)

	current := plumbing.ZeroHash
	ref, err := r.Storer.Reference(refName)
	switch {
	case err == nil:
		current = ref.Hash()
	case errors.Is(err, plumbing.ErrReferenceNotFound):
		// Ref absent; current stays zero.
	default:
		return groveerrors.NewStorageError("read ref "+name, err)
	}

	if current != old {
		return groveerrors.NewCASError(name, old.String(), current.String())
	}

	if target.IsZero() {
		if current.IsZero() {
			return nil
		}
		if err := r.Storer.RemoveReference(refName); err != nil {
			return groveerrors.NewStorageError("delete ref "+name, err)
		}
		return nil
	}

	newRef := plumbing.NewHashReference(refName, target)
	var oldRef *plumbing.Reference
	if !old.IsZero() {
		oldRef = plumbing.NewHashReference(refName, old)
	}
	if err := r.Storer.CheckAndSetReference(newRef, oldRef); err != nil {
		// The storer re-checks the old value on write; treat any refusal
		// as a concurrent modification and re-read the ref so the error
		// names the value that won the race.
		actual := "unknown"
		switch ref, rerr := r.Storer.Reference(refName); {
		case rerr == nil:
			actual = ref.Hash().String()
		case errors.Is(rerr, plumbing.ErrReferenceNotFound):
			actual = plumbing.ZeroHash.String()
		}
		return groveerrors.NewCASError(name, old.String(), actual)
	}
	return nil
}

// ListRefs returns all hash refs whose name starts with prefix, keyed by
// full ref name.
func (r *Repository) ListRefs(prefix string) (map[string]plumbing.Hash, error) {
	iter, err := r.References()
	if err != nil {
		return nil, fmt.Errorf("failed to list refs: %w", err)
	}

	result := make(map[string]plumbing.Hash)
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		if ref.Type() != plumbing.HashReference {
			return nil
		}
		name := ref.Name().String()
		if strings.HasPrefix(name, prefix) {
			result[name] = ref.Hash()
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to iterate refs: %w", err)
	}
	return result, nil
}

// BranchRefs returns all local branch refs keyed by full ref name.
func (r *Repository) BranchRefs() (map[string]plumbing.Hash, error) {
	return r.ListRefs(BranchRefPrefix)
}
