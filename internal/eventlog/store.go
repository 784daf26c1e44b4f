// Package eventlog persists the append-only ledger of state-changing events.
// Events are grouped into transactions; a transaction commits atomically and
// the log is never mutated in place. The backing store is an embedded SQLite
// database under .git/grove.
package eventlog

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	groveerrors "grove.dev/grove/internal/errors"
)

const (
	// DBFileName is the event log database file inside the grove state dir.
	DBFileName = "events.db"
)

const schema = `
CREATE TABLE IF NOT EXISTS transactions (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	label        TEXT NOT NULL DEFAULT '',
	committed_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS events (
	tx_id       INTEGER NOT NULL REFERENCES transactions(id),
	seq         INTEGER NOT NULL,
	kind        TEXT NOT NULL,
	payload     TEXT NOT NULL,
	recorded_at INTEGER NOT NULL,
	PRIMARY KEY (tx_id, seq)
);
`

// Store is a handle to the event log database. It is safe for concurrent
// readers; writers are serialized by the repository lock, not by the store.
type Store struct {
	db   *sql.DB
	path string
}

// TransactionInfo summarizes one transaction for display.
type TransactionInfo struct {
	ID     TransactionID
	Label  string
	Time   time.Time
	Events int
}

// Open opens (creating if needed) the event log in the given state directory.
func Open(stateDir string) (*Store, error) {
	if err := os.MkdirAll(stateDir, 0750); err != nil {
		return nil, groveerrors.NewStorageError("create state dir", err)
	}

	path := filepath.Join(stateDir, DBFileName)
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, groveerrors.NewStorageError("open event log", err)
	}
	// A single connection sidesteps SQLite writer contention entirely.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, groveerrors.NewStorageError("init event log schema", err)
	}

	return &Store{db: db, path: path}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Append writes a new transaction containing the given events. All events
// commit atomically or none do. The assigned transaction id is returned.
func (s *Store) Append(label string, events []Event) (TransactionID, error) {
	if len(events) == 0 {
		return 0, fmt.Errorf("refusing to append empty transaction %q", label)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, groveerrors.NewStorageError("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()
	res, err := tx.Exec(`INSERT INTO transactions (label, committed_at) VALUES (?, ?)`, label, now.UnixMilli())
	if err != nil {
		return 0, groveerrors.NewStorageError("insert transaction", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, groveerrors.NewStorageError("read transaction id", err)
	}

	for i, e := range events {
		raw := e.Raw
		if e.Payload != nil {
			raw, err = MarshalPayload(e.Payload)
			if err != nil {
				return 0, groveerrors.NewStorageError("marshal event payload", err)
			}
		}
		if raw == nil {
			return 0, fmt.Errorf("event %d of %q has neither payload nor raw bytes", i, label)
		}
		ts := e.Time
		if ts.IsZero() {
			ts = now
		}
		_, err = tx.Exec(
			`INSERT INTO events (tx_id, seq, kind, payload, recorded_at) VALUES (?, ?, ?, ?, ?)`,
			id, i, string(e.Kind), string(raw), ts.UnixMilli(),
		)
		if err != nil {
			return 0, groveerrors.NewStorageError("insert event", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, groveerrors.NewStorageError("commit transaction", err)
	}
	return TransactionID(id), nil
}

// LatestTransactionID returns the id of the most recent transaction, or zero
// when the log is empty.
func (s *Store) LatestTransactionID() (TransactionID, error) {
	var id int64
	err := s.db.QueryRow(`SELECT COALESCE(MAX(id), 0) FROM transactions`).Scan(&id)
	if err != nil {
		return 0, groveerrors.NewStorageError("read latest transaction", err)
	}
	return TransactionID(id), nil
}

// HasTransaction reports whether the given id exists in the log.
func (s *Store) HasTransaction(id TransactionID) (bool, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM transactions WHERE id = ?`, int64(id)).Scan(&n)
	if err != nil {
		return false, groveerrors.NewStorageError("look up transaction", err)
	}
	return n > 0, nil
}

// AllEvents returns every event in the log in total order.
func (s *Store) AllEvents() ([]Event, error) {
	return s.EventsSince(0)
}

// EventsSince returns all events with transaction id strictly greater than
// after, in total order.
func (s *Store) EventsSince(after TransactionID) ([]Event, error) {
	rows, err := s.db.Query(
		`SELECT tx_id, seq, kind, payload, recorded_at FROM events WHERE tx_id > ? ORDER BY tx_id ASC, seq ASC`,
		int64(after),
	)
	if err != nil {
		return nil, groveerrors.NewStorageError("query events", err)
	}
	return scanEvents(rows)
}

// EventsBetween returns events with after < tx id <= upto, in total order.
func (s *Store) EventsBetween(after, upto TransactionID) ([]Event, error) {
	rows, err := s.db.Query(
		`SELECT tx_id, seq, kind, payload, recorded_at FROM events WHERE tx_id > ? AND tx_id <= ? ORDER BY tx_id ASC, seq ASC`,
		int64(after), int64(upto),
	)
	if err != nil {
		return nil, groveerrors.NewStorageError("query events", err)
	}
	return scanEvents(rows)
}

// ReverseEventsBetween returns events with after < tx id <= upto in reverse
// total order, for undo planning.
func (s *Store) ReverseEventsBetween(after, upto TransactionID) ([]Event, error) {
	rows, err := s.db.Query(
		`SELECT tx_id, seq, kind, payload, recorded_at FROM events WHERE tx_id > ? AND tx_id <= ? ORDER BY tx_id DESC, seq DESC`,
		int64(after), int64(upto),
	)
	if err != nil {
		return nil, groveerrors.NewStorageError("query events", err)
	}
	return scanEvents(rows)
}

// Transactions lists all transactions, most recent first.
func (s *Store) Transactions() ([]TransactionInfo, error) {
	rows, err := s.db.Query(`
		SELECT t.id, t.label, t.committed_at, COUNT(e.seq)
		FROM transactions t LEFT JOIN events e ON e.tx_id = t.id
		GROUP BY t.id ORDER BY t.id DESC`)
	if err != nil {
		return nil, groveerrors.NewStorageError("query transactions", err)
	}
	defer rows.Close()

	var infos []TransactionInfo
	for rows.Next() {
		var (
			id    int64
			label string
			at    int64
			count int
		)
		if err := rows.Scan(&id, &label, &at, &count); err != nil {
			return nil, groveerrors.NewStorageError("scan transaction", err)
		}
		infos = append(infos, TransactionInfo{
			ID:     TransactionID(id),
			Label:  label,
			Time:   time.UnixMilli(at),
			Events: count,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, groveerrors.NewStorageError("iterate transactions", err)
	}
	return infos, nil
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			txID    int64
			seq     int
			kind    string
			payload string
			at      int64
		)
		if err := rows.Scan(&txID, &seq, &kind, &payload, &at); err != nil {
			return nil, groveerrors.NewStorageError("scan event", err)
		}

		raw := json.RawMessage(payload)
		p, err := UnmarshalPayload(Kind(kind), raw)
		if err != nil {
			return nil, fmt.Errorf("%w: event %d/%d: %v", groveerrors.ErrCorruption, txID, seq, err)
		}

		events = append(events, Event{
			Tx:      TransactionID(txID),
			Seq:     seq,
			Time:    time.UnixMilli(at),
			Kind:    Kind(kind),
			Payload: p,
			Raw:     raw,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, groveerrors.NewStorageError("iterate events", err)
	}
	return events, nil
}
