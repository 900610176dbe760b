package docdb_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/todo-sync/pkg/docdb"
)

// -----------------------------------------------------------------------------
// note: minimal document type for tests
// -----------------------------------------------------------------------------

type note struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Stars int    `json:"stars"`
	Done  bool   `json:"done"`
}

func noteSchema() docdb.Schema {
	return docdb.Schema{
		Title:      "note schema",
		Version:    0,
		PrimaryKey: "id",
		Properties: map[string]docdb.Property{
			"id":    {Type: docdb.TypeString, MaxLength: 20},
			"title": {Type: docdb.TypeString, MaxLength: 40},
			"stars": {Type: docdb.TypeInteger},
			"done":  {Type: docdb.TypeBoolean},
		},
		Required: []string{"id", "title", "stars", "done"},
	}
}

func openTestDB(t *testing.T, dir string, dev bool) *docdb.DB {
	t.Helper()

	db, err := docdb.Open(t.Context(), docdb.Config{Dir: dir, Name: "testdb", DevMode: dev})
	require.NoError(t, err)

	t.Cleanup(func() { _ = db.Close() })

	return db
}

func openNotes(t *testing.T, db *docdb.DB) *docdb.Collection[note] {
	t.Helper()

	notes, err := docdb.AddCollection[note](t.Context(), db, "notes", noteSchema())
	require.NoError(t, err)

	return notes
}

const recvTimeout = 5 * time.Second

func recv[T any](t *testing.T, sub *docdb.Subscription[T]) docdb.Snapshot[T] {
	t.Helper()

	select {
	case snap, ok := <-sub.C:
		require.True(t, ok, "subscription closed")

		return snap
	case <-time.After(recvTimeout):
		t.Fatal("timed out waiting for snapshot")
	}

	return docdb.Snapshot[T]{}
}

func ids(docs []note) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.ID)
	}

	return out
}
