// Package engine orchestrates the grove workflow: it owns the repository
// accessor, the event log store and the operation state, and exposes the
// high-level operations the CLI calls. All mutating operations take an
// advisory file lock so concurrent grove processes serialize instead of
// corrupting each other's transactions.
package engine
