package eventlog

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHash(c byte) plumbing.Hash {
	return plumbing.NewHash(strings.Repeat(string(c), 40))
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestAppendAssignsSequentialTransactions(t *testing.T) {
	store := openTestStore(t)

	tx1, err := store.Append("first", []Event{
		NewEvent(CommitCreate{Commit: testHash('a')}),
	})
	require.NoError(t, err)
	assert.Equal(t, TransactionID(1), tx1)

	tx2, err := store.Append("second", []Event{
		NewEvent(CommitHide{Commit: testHash('a')}),
		NewEvent(CommitHide{Commit: testHash('b')}),
	})
	require.NoError(t, err)
	assert.Equal(t, TransactionID(2), tx2)

	latest, err := store.LatestTransactionID()
	require.NoError(t, err)
	assert.Equal(t, tx2, latest)
}

func TestAppendEmptyTransactionFails(t *testing.T) {
	store := openTestStore(t)

	_, err := store.Append("empty", nil)
	require.Error(t, err)

	latest, err := store.LatestTransactionID()
	require.NoError(t, err)
	assert.Equal(t, TransactionID(0), latest)
}

func TestEventsReturnInTotalOrder(t *testing.T) {
	store := openTestStore(t)

	_, err := store.Append("one", []Event{
		NewEvent(RefUpdate{Ref: "refs/heads/feature", New: testHash('a')}),
		NewEvent(CommitCreate{Commit: testHash('a')}),
	})
	require.NoError(t, err)
	_, err = store.Append("two", []Event{
		NewEvent(Rewrite{Old: testHash('a'), New: testHash('b')}),
	})
	require.NoError(t, err)

	events, err := store.AllEvents()
	require.NoError(t, err)
	require.Len(t, events, 3)

	assert.Equal(t, TransactionID(1), events[0].Tx)
	assert.Equal(t, 0, events[0].Seq)
	assert.Equal(t, TransactionID(1), events[1].Tx)
	assert.Equal(t, 1, events[1].Seq)
	assert.Equal(t, TransactionID(2), events[2].Tx)

	update, ok := events[0].Payload.(RefUpdate)
	require.True(t, ok)
	assert.Equal(t, "refs/heads/feature", update.Ref)
	assert.True(t, update.Old.IsZero())
	assert.Equal(t, testHash('a'), update.New)
}

func TestEventsSinceAndBetween(t *testing.T) {
	store := openTestStore(t)

	for _, c := range []byte{'a', 'b', 'c'} {
		_, err := store.Append("tx", []Event{NewEvent(CommitCreate{Commit: testHash(c)})})
		require.NoError(t, err)
	}

	since, err := store.EventsSince(1)
	require.NoError(t, err)
	require.Len(t, since, 2)
	assert.Equal(t, TransactionID(2), since[0].Tx)

	between, err := store.EventsBetween(1, 2)
	require.NoError(t, err)
	require.Len(t, between, 1)
	assert.Equal(t, TransactionID(2), between[0].Tx)
}

func TestReverseEventsBetween(t *testing.T) {
	store := openTestStore(t)

	_, err := store.Append("one", []Event{
		NewEvent(CommitHide{Commit: testHash('a')}),
		NewEvent(CommitHide{Commit: testHash('b')}),
	})
	require.NoError(t, err)
	_, err = store.Append("two", []Event{
		NewEvent(CommitHide{Commit: testHash('c')}),
	})
	require.NoError(t, err)

	events, err := store.ReverseEventsBetween(0, 2)
	require.NoError(t, err)
	require.Len(t, events, 3)

	// Newest transaction first, and within a transaction later events first.
	assert.Equal(t, testHash('c'), events[0].Payload.(CommitHide).Commit)
	assert.Equal(t, testHash('b'), events[1].Payload.(CommitHide).Commit)
	assert.Equal(t, testHash('a'), events[2].Payload.(CommitHide).Commit)
}

func TestUnknownKindRoundTrips(t *testing.T) {
	store := openTestStore(t)

	raw := json.RawMessage(`{"snapshot":"deadbeef"}`)
	_, err := store.Append("future", []Event{
		{Kind: Kind("working-copy-snapshot"), Raw: raw},
	})
	require.NoError(t, err)

	events, err := store.AllEvents()
	require.NoError(t, err)
	require.Len(t, events, 1)

	assert.Equal(t, Kind("working-copy-snapshot"), events[0].Kind)
	assert.Nil(t, events[0].Payload)
	assert.JSONEq(t, string(raw), string(events[0].Raw))
}

func TestHasTransaction(t *testing.T) {
	store := openTestStore(t)

	_, err := store.Append("tx", []Event{NewEvent(CommitCreate{Commit: testHash('a')})})
	require.NoError(t, err)

	ok, err := store.HasTransaction(1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.HasTransaction(42)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTransactionsListsNewestFirst(t *testing.T) {
	store := openTestStore(t)

	_, err := store.Append("first", []Event{NewEvent(CommitCreate{Commit: testHash('a')})})
	require.NoError(t, err)
	_, err = store.Append("second", []Event{
		NewEvent(CommitHide{Commit: testHash('a')}),
		NewEvent(CommitHide{Commit: testHash('b')}),
	})
	require.NoError(t, err)

	infos, err := store.Transactions()
	require.NoError(t, err)
	require.Len(t, infos, 2)

	assert.Equal(t, TransactionID(2), infos[0].ID)
	assert.Equal(t, "second", infos[0].Label)
	assert.Equal(t, 2, infos[0].Events)
	assert.Equal(t, TransactionID(1), infos[1].ID)
	assert.Equal(t, 1, infos[1].Events)
}
