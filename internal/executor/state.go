package executor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	groveerrors "grove.dev/grove/internal/errors"
	"grove.dev/grove/internal/eventlog"
)

// StateFileName is the persisted operation file inside the grove state dir.
const StateFileName = "operation.json"

// State is the executor's lifecycle state.
type State string

const (
	// StateIdle means no operation is recorded.
	StateIdle State = "idle"
	// StateRunning means steps are being applied.
	StateRunning State = "running"
	// StateConflicted means a step hit a content conflict and the operation
	// is suspended awaiting resolution.
	StateConflicted State = "conflicted"
	// StateCompleted means every step applied and the transaction committed.
	StateCompleted State = "completed"
	// StateAborted means the operation was cancelled and reverted.
	StateAborted State = "aborted"
)

// Step is one plan entry plus its execution outcome. Commit ids are stored
// as hex so the state file stays diffable. ExtraParents, when present,
// replaces the secondary parents of a merge commit.
type Step struct {
	Commit       string   `json:"commit"`
	NewParent    string   `json:"newParent,omitempty"`
	ExtraParents []string `json:"extraParents,omitempty"`
	Done         bool     `json:"done"`
	NewCommit    string   `json:"newCommit,omitempty"`
}

// RefUpdateStep is one planned ref move in the finalize phase. The intended
// updates are persisted before the first ref is touched, and Done is flipped
// as each lands, so a crash mid-finalize is revertible from the state file.
type RefUpdateStep struct {
	Ref  string `json:"ref"`
	Old  string `json:"old"`
	New  string `json:"new"`
	Done bool   `json:"done"`
}

// ConflictInfo describes the suspended step.
type ConflictInfo struct {
	StepIndex int      `json:"stepIndex"`
	Commit    string   `json:"commit"`
	NewParent string   `json:"newParent,omitempty"`
	Paths     []string `json:"paths"`
}

// Operation is the persisted state machine for an in-flight move/rebase.
// It survives process exit so a conflicted operation can resume later.
type Operation struct {
	State      State                  `json:"state"`
	Label      string                 `json:"label"`
	BeginTx    eventlog.TransactionID `json:"beginTx"`
	Steps      []Step                 `json:"steps"`
	Rewrites   map[string]string      `json:"rewrites"`
	RefUpdates []RefUpdateStep        `json:"refUpdates,omitempty"`
	Conflict   *ConflictInfo          `json:"conflict,omitempty"`
	UpdatedAt  time.Time              `json:"updatedAt"`
}

func statePath(stateDir string) string {
	return filepath.Join(stateDir, StateFileName)
}

// LoadOperation reads the persisted operation, if any.
func LoadOperation(stateDir string) (*Operation, error) {
	data, err := os.ReadFile(statePath(stateDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, groveerrors.ErrNoOperation
		}
		return nil, fmt.Errorf("failed to read operation state: %w", err)
	}

	var op Operation
	if err := json.Unmarshal(data, &op); err != nil {
		return nil, fmt.Errorf("%w: operation state unreadable: %v", groveerrors.ErrCorruption, err)
	}
	return &op, nil
}

// SaveOperation persists the operation atomically: the temp file is created
// in the state dir so the rename never crosses filesystems.
func SaveOperation(stateDir string, op *Operation) error {
	op.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(op, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal operation state: %w", err)
	}

	f, err := os.CreateTemp(stateDir, ".operation-*")
	if err != nil {
		return groveerrors.NewStorageError("create operation temp file", err)
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return groveerrors.NewStorageError("write operation state", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return groveerrors.NewStorageError("sync operation state", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return groveerrors.NewStorageError("close operation state", err)
	}
	if err := os.Rename(tmp, statePath(stateDir)); err != nil {
		_ = os.Remove(tmp)
		return groveerrors.NewStorageError("commit operation state", err)
	}
	return nil
}

// ClearOperation removes the persisted operation.
func ClearOperation(stateDir string) error {
	err := os.Remove(statePath(stateDir))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear operation state: %w", err)
	}
	return nil
}
