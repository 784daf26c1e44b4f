package eventlog

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
)

// TransactionID identifies an atomic group of events. Ids are assigned by the
// store and increase monotonically.
type TransactionID int64

// Kind discriminates the event payload variants. The set is closed: inverse
// computation and replay switch over it exhaustively. Events with kinds not
// listed here are preserved on disk and skipped by replay.
type Kind string

const (
	// KindRefUpdate records a ref moving from one commit to another.
	KindRefUpdate Kind = "ref-update"
	// KindCommitCreate records a commit entering the tracked set.
	KindCommitCreate Kind = "commit-create"
	// KindCommitHide records a commit being hidden from display.
	KindCommitHide Kind = "commit-hide"
	// KindCommitUnhide reverses an earlier hide of the same commit.
	KindCommitUnhide Kind = "commit-unhide"
	// KindRewrite records a commit being superseded by a replacement.
	KindRewrite Kind = "rewrite"
)

// Payload is the kind-specific body of an event.
type Payload interface {
	Kind() Kind
}

// RefUpdate moves Ref from Old to New. A zero Old means the ref was created;
// a zero New means it was deleted.
type RefUpdate struct {
	Ref string
	Old plumbing.Hash
	New plumbing.Hash
}

// Kind implements Payload.
func (RefUpdate) Kind() Kind { return KindRefUpdate }

// CommitCreate marks Commit as tracked.
type CommitCreate struct {
	Commit plumbing.Hash
}

// Kind implements Payload.
func (CommitCreate) Kind() Kind { return KindCommitCreate }

// CommitHide hides Commit.
type CommitHide struct {
	Commit plumbing.Hash
}

// Kind implements Payload.
func (CommitHide) Kind() Kind { return KindCommitHide }

// CommitUnhide un-hides Commit.
type CommitUnhide struct {
	Commit plumbing.Hash
}

// Kind implements Payload.
func (CommitUnhide) Kind() Kind { return KindCommitUnhide }

// Rewrite records that Old was superseded by New.
type Rewrite struct {
	Old plumbing.Hash
	New plumbing.Hash
}

// Kind implements Payload.
func (Rewrite) Kind() Kind { return KindRewrite }

// Event is a single immutable entry in the log, totally ordered by
// (transaction id, sequence number). Payload is nil for unknown kinds; Raw
// always holds the stored payload bytes so unknown events survive a rewrite
// of the log by an older reader.
type Event struct {
	Tx      TransactionID
	Seq     int
	Time    time.Time
	Kind    Kind
	Payload Payload
	Raw     json.RawMessage
}

// NewEvent builds an event for a known payload. Tx and Seq are assigned by
// the store on append.
func NewEvent(p Payload) Event {
	return Event{Kind: p.Kind(), Payload: p}
}

// Wire formats keep commit ids as hex strings so the on-disk schema stays
// readable and backward compatible.

type refUpdateWire struct {
	Ref string `json:"ref"`
	Old string `json:"old"`
	New string `json:"new"`
}

type commitWire struct {
	Commit string `json:"commit"`
}

type rewriteWire struct {
	Old string `json:"old"`
	New string `json:"new"`
}

func hashToWire(h plumbing.Hash) string {
	if h.IsZero() {
		return ""
	}
	return h.String()
}

func wireToHash(s string) plumbing.Hash {
	if s == "" {
		return plumbing.ZeroHash
	}
	return plumbing.NewHash(s)
}

// MarshalPayload serializes a payload into its wire form.
func MarshalPayload(p Payload) (json.RawMessage, error) {
	switch v := p.(type) {
	case RefUpdate:
		return json.Marshal(refUpdateWire{Ref: v.Ref, Old: hashToWire(v.Old), New: hashToWire(v.New)})
	case CommitCreate:
		return json.Marshal(commitWire{Commit: hashToWire(v.Commit)})
	case CommitHide:
		return json.Marshal(commitWire{Commit: hashToWire(v.Commit)})
	case CommitUnhide:
		return json.Marshal(commitWire{Commit: hashToWire(v.Commit)})
	case Rewrite:
		return json.Marshal(rewriteWire{Old: hashToWire(v.Old), New: hashToWire(v.New)})
	default:
		return nil, fmt.Errorf("cannot marshal payload of kind %q", p.Kind())
	}
}

// UnmarshalPayload deserializes a wire payload for a known kind. Unknown
// kinds return a nil payload and no error; callers keep the raw bytes.
func UnmarshalPayload(kind Kind, raw json.RawMessage) (Payload, error) {
	switch kind {
	case KindRefUpdate:
		var w refUpdateWire
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, fmt.Errorf("failed to decode %s payload: %w", kind, err)
		}
		return RefUpdate{Ref: w.Ref, Old: wireToHash(w.Old), New: wireToHash(w.New)}, nil
	case KindCommitCreate:
		var w commitWire
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, fmt.Errorf("failed to decode %s payload: %w", kind, err)
		}
		return CommitCreate{Commit: wireToHash(w.Commit)}, nil
	case KindCommitHide:
		var w commitWire
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, fmt.Errorf("failed to decode %s payload: %w", kind, err)
		}
		return CommitHide{Commit: wireToHash(w.Commit)}, nil
	case KindCommitUnhide:
		var w commitWire
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, fmt.Errorf("failed to decode %s payload: %w", kind, err)
		}
		return CommitUnhide{Commit: wireToHash(w.Commit)}, nil
	case KindRewrite:
		var w rewriteWire
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, fmt.Errorf("failed to decode %s payload: %w", kind, err)
		}
		return Rewrite{Old: wireToHash(w.Old), New: wireToHash(w.New)}, nil
	default:
		return nil, nil
	}
}
