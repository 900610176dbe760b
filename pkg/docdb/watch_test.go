package docdb_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/todo-sync/pkg/docdb"
)

func Test_Watch_Emits_Initial_Snapshot_When_Subscribed(t *testing.T) {
	t.Parallel()

	notes := openNotes(t, openTestDB(t, t.TempDir(), false))

	_, err := notes.Insert(t.Context(), note{ID: "n1", Title: "existing"})
	require.NoError(t, err)

	sub, err := notes.Watch(t.Context())
	require.NoError(t, err)

	defer sub.Unsubscribe()

	snap := recv(t, sub)
	assert.Equal(t, docdb.OpInitial, snap.Event.Op)
	assert.Equal(t, "notes", snap.Event.Collection)
	assert.Equal(t, []string{"n1"}, ids(snap.Docs))
}

func Test_Watch_Emits_One_Snapshot_Per_Change_When_Documents_Written(t *testing.T) {
	t.Parallel()

	notes := openNotes(t, openTestDB(t, t.TempDir(), false))

	sub, err := notes.Watch(t.Context())
	require.NoError(t, err)

	defer sub.Unsubscribe()

	initial := recv(t, sub)
	assert.Empty(t, initial.Docs)

	ctx := t.Context()

	_, err = notes.Insert(ctx, note{ID: "a", Title: "a"})
	require.NoError(t, err)

	_, err = notes.Insert(ctx, note{ID: "b", Title: "b"})
	require.NoError(t, err)

	_, err = notes.Patch(ctx, "a", func(n *note) error {
		n.Done = true

		return nil
	})
	require.NoError(t, err)

	require.NoError(t, notes.Remove(ctx, "b"))

	want := []docdb.Event{
		{Op: docdb.OpInsert, Collection: "notes", ID: "a"},
		{Op: docdb.OpInsert, Collection: "notes", ID: "b"},
		{Op: docdb.OpUpdate, Collection: "notes", ID: "a"},
		{Op: docdb.OpDelete, Collection: "notes", ID: "b"},
	}

	var got []docdb.Event

	var last docdb.Snapshot[note]

	for range want {
		last = recv(t, sub)
		got = append(got, last.Event)
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, []note{{ID: "a", Title: "a", Done: true}}, last.Docs)
}

func Test_Watch_Ignores_Other_Collections_When_They_Change(t *testing.T) {
	t.Parallel()

	db := openTestDB(t, t.TempDir(), false)
	notes := openNotes(t, db)

	other, err := docdb.AddCollection[note](t.Context(), db, "archive", noteSchema())
	require.NoError(t, err)

	sub, err := notes.Watch(t.Context())
	require.NoError(t, err)

	defer sub.Unsubscribe()

	recv(t, sub)

	_, err = other.Insert(t.Context(), note{ID: "x", Title: "elsewhere"})
	require.NoError(t, err)

	_, err = notes.Insert(t.Context(), note{ID: "y", Title: "here"})
	require.NoError(t, err)

	snap := recv(t, sub)
	assert.Equal(t, "y", snap.Event.ID)
	assert.Equal(t, []string{"y"}, ids(snap.Docs))
}

func Test_Watch_Emits_Import_Event_When_Dump_Imported(t *testing.T) {
	t.Parallel()

	notes := openNotes(t, openTestDB(t, t.TempDir(), false))

	sub, err := notes.Watch(t.Context())
	require.NoError(t, err)

	defer sub.Unsubscribe()

	recv(t, sub)

	_, err = notes.Import(t.Context(), docdb.Dump[note]{
		Schema: noteSchema(),
		Docs:   []note{{ID: "a", Title: "a"}, {ID: "b", Title: "b"}},
	})
	require.NoError(t, err)

	snap := recv(t, sub)
	assert.Equal(t, docdb.OpImport, snap.Event.Op)
	assert.Len(t, snap.Docs, 2)
}

func Test_Unsubscribe_Closes_Channel_When_Called_Twice(t *testing.T) {
	t.Parallel()

	notes := openNotes(t, openTestDB(t, t.TempDir(), false))

	sub, err := notes.Watch(t.Context())
	require.NoError(t, err)

	sub.Unsubscribe()
	sub.Unsubscribe()

	// The initial snapshot may or may not have been sent; drain until closed.
	for range sub.C {
	}

	_, err = notes.Insert(t.Context(), note{ID: "a", Title: "a"})
	require.NoError(t, err)
}

func Test_Subscription_Closes_When_Context_Cancelled_Or_DB_Closed(t *testing.T) {
	t.Parallel()

	db, err := docdb.Open(t.Context(), docdb.Config{Dir: t.TempDir(), Name: "testdb"})
	require.NoError(t, err)

	notes := openNotes(t, db)

	ctx, cancel := context.WithCancel(t.Context())

	byCtx, err := notes.Watch(ctx)
	require.NoError(t, err)

	byClose, err := notes.Watch(t.Context())
	require.NoError(t, err)

	recv(t, byCtx)
	recv(t, byClose)

	cancel()
	requireClosed(t, byCtx.C)

	require.NoError(t, db.Close())
	requireClosed(t, byClose.C)

	byCtx.Unsubscribe()
	byClose.Unsubscribe()
}

func Test_Watch_Emits_External_Event_When_Another_Connection_Commits(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	watched, err := docdb.Open(t.Context(), docdb.Config{Dir: dir, Name: "testdb", WatchExternal: true})
	require.NoError(t, err)

	t.Cleanup(func() { _ = watched.Close() })

	notes := openNotes(t, watched)

	// A second handle on the same file stands in for another process.
	writer := openTestDB(t, dir, false)
	foreign := openNotes(t, writer)

	sub, err := notes.Watch(t.Context())
	require.NoError(t, err)

	defer sub.Unsubscribe()

	recv(t, sub)

	_, err = foreign.Insert(t.Context(), note{ID: "ext", Title: "from outside"})
	require.NoError(t, err)

	// Opening the second handle may itself surface as an external commit;
	// wait for the one carrying the document.
	for {
		snap := recv(t, sub)
		require.Equal(t, docdb.OpExternal, snap.Event.Op)

		if len(snap.Docs) == 1 {
			assert.Equal(t, "ext", snap.Docs[0].ID)

			return
		}
	}
}

func Test_Watch_Emits_Snapshot_With_Error_When_Requery_Fails(t *testing.T) {
	t.Parallel()

	db := openTestDB(t, t.TempDir(), false)
	notes := openNotes(t, db)

	sub, err := notes.Watch(t.Context())
	require.NoError(t, err)

	defer sub.Unsubscribe()

	recv(t, sub)

	raw, err := sql.Open("sqlite3", db.Path())
	require.NoError(t, err)

	t.Cleanup(func() { _ = raw.Close() })

	_, err = raw.ExecContext(t.Context(), "INSERT INTO docs_notes(id, data) VALUES('bad', 'not json')")
	require.NoError(t, err)

	_, err = notes.Insert(t.Context(), note{ID: "a", Title: "a"})
	require.NoError(t, err)

	snap := recv(t, sub)
	assert.Equal(t, docdb.Event{Op: docdb.OpInsert, Collection: "notes", ID: "a"}, snap.Event)
	require.Error(t, snap.Err)
	assert.Nil(t, snap.Docs)
}

func requireClosed[T any](t *testing.T, ch <-chan T) {
	t.Helper()

	deadline := time.After(recvTimeout)

	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("channel not closed")
		}
	}
}
