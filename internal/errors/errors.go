// Package errors provides sentinel errors and custom error types for the grove application.
// Use errors.Is() and errors.As() to check for specific error types.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for common conditions
var (
	// ErrCorruption indicates inconsistent on-disk state, such as a cyclic
	// rewrite mapping. Operations abort before mutating any ref.
	ErrCorruption = errors.New("repository state corrupted")

	// ErrConcurrentModification indicates a compare-and-swap ref update failed
	// because the ref moved underneath us. Retryable after rebuilding.
	ErrConcurrentModification = errors.New("concurrent ref modification")

	// ErrConflict indicates a move step hit a content conflict. Not fatal;
	// the operation is suspended and can be resumed.
	ErrConflict = errors.New("merge conflict")

	// ErrStorageFailure indicates the event log or object store rejected a write.
	ErrStorageFailure = errors.New("storage failure")

	// ErrLockHeld indicates another grove process holds the repository lock.
	ErrLockHeld = errors.New("repository lock held by another process")

	// ErrNoOperation indicates there is no suspended operation to continue or abort.
	ErrNoOperation = errors.New("no operation in progress")

	// ErrCommitNotFound indicates a commit id could not be resolved.
	ErrCommitNotFound = errors.New("commit not found")

	// ErrUnknownTransaction indicates a transaction id is not present in the event log.
	ErrUnknownTransaction = errors.New("unknown transaction")

	// ErrAmbiguousChild indicates navigation reached a commit with several
	// children and no direction was chosen.
	ErrAmbiguousChild = errors.New("ambiguous child commit")
)

// RewriteCycleError reports a cycle in the rewrite mapping. The chain lists
// the commit ids along the cycle in the order they were visited.
type RewriteCycleError struct {
	Chain []string
}

func (e *RewriteCycleError) Error() string {
	return fmt.Sprintf("cyclic rewrite mapping: %s", strings.Join(e.Chain, " -> "))
}

// Is returns true if the target error is ErrCorruption
func (e *RewriteCycleError) Is(target error) bool {
	return target == ErrCorruption
}

// NewRewriteCycleError creates a new RewriteCycleError
func NewRewriteCycleError(chain []string) *RewriteCycleError {
	return &RewriteCycleError{Chain: chain}
}

// CASError reports a failed compare-and-swap ref update.
type CASError struct {
	Ref      string
	Expected string
	Actual   string
}

func (e *CASError) Error() string {
	return fmt.Sprintf("ref %s changed concurrently: expected %s, found %s", e.Ref, e.Expected, e.Actual)
}

// Is returns true if the target error is ErrConcurrentModification
func (e *CASError) Is(target error) bool {
	return target == ErrConcurrentModification
}

// NewCASError creates a new CASError
func NewCASError(ref, expected, actual string) *CASError {
	return &CASError{Ref: ref, Expected: expected, Actual: actual}
}

// MergeConflictError reports the paths that could not be merged while
// recreating a commit on a new parent.
type MergeConflictError struct {
	Commit string
	Paths  []string
}

func (e *MergeConflictError) Error() string {
	return fmt.Sprintf("conflict recreating commit %s: %s", e.Commit, strings.Join(e.Paths, ", "))
}

// Is returns true if the target error is ErrConflict
func (e *MergeConflictError) Is(target error) bool {
	return target == ErrConflict
}

// NewMergeConflictError creates a new MergeConflictError
func NewMergeConflictError(commit string, paths []string) *MergeConflictError {
	return &MergeConflictError{Commit: commit, Paths: paths}
}

// StorageError wraps a failed event log or object store write.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is returns true if the target error is ErrStorageFailure
func (e *StorageError) Is(target error) bool {
	return target == ErrStorageFailure
}

// NewStorageError creates a new StorageError
func NewStorageError(op string, err error) *StorageError {
	return &StorageError{Op: op, Err: err}
}

// RetryExhaustedError indicates an operation failed twice due to concurrent
// modification. The caller may retry the whole operation.
type RetryExhaustedError struct {
	Op  string
	Err error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("%s failed after retry due to concurrent modification: %v", e.Op, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.Err
}

// NewRetryExhaustedError creates a new RetryExhaustedError
func NewRetryExhaustedError(op string, err error) *RetryExhaustedError {
	return &RetryExhaustedError{Op: op, Err: err}
}
