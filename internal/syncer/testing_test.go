package syncer_test

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/calvinalkan/todo-sync/internal/fakeapi"
	"github.com/calvinalkan/todo-sync/internal/remote"
	"github.com/calvinalkan/todo-sync/internal/store"
	"github.com/calvinalkan/todo-sync/internal/syncer"
	"github.com/calvinalkan/todo-sync/internal/todo"
)

const waitTimeout = 5 * time.Second

var lunch = todo.Form{Name: "Lunch", When: "Tuesday", Where: "Cafe", Description: "team sync"}

type harness struct {
	api    *fakeapi.Server
	remote *remote.Client
	handle *store.Handle
	ctrl   *syncer.Controller
	logs   *observer.ObservedLogs
}

type harnessOptions struct {
	storeDir string
	policy   syncer.ResetPolicy
	seed     []todo.Record
	failList bool
}

func newHarness(t *testing.T, opts harnessOptions) *harness {
	t.Helper()

	ids := []string{"abc123", "def456", "ghi789", "jkl012"}
	next := 0

	api, err := fakeapi.New(fakeapi.Options{
		APIKey: "test-key",
		NewID: func() string {
			id := ids[next%len(ids)]
			next++

			return id
		},
	})
	require.NoError(t, err)

	api.Seed(opts.seed...)

	if opts.failList {
		api.Fail(fakeapi.OpList, "list unavailable")
	}

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	core, logs := observer.New(zapcore.DebugLevel)
	log := zap.New(core)

	client, err := remote.New(remote.Config{
		Endpoint:   srv.URL + fakeapi.Path,
		APIKey:     "test-key",
		HTTPClient: srv.Client(),
		Logger:     log,
	})
	require.NoError(t, err)

	dir := opts.storeDir
	if dir == "" {
		dir = t.TempDir()
	}

	handle := store.NewHandle(store.Options{Dir: dir, Logger: log})
	t.Cleanup(func() { _ = handle.Close() })

	ctrl := syncer.New(client, handle, syncer.Options{Logger: log, ResetPolicy: opts.policy})
	t.Cleanup(ctrl.Unmount)

	return &harness{api: api, remote: client, handle: handle, ctrl: ctrl, logs: logs}
}

func (h *harness) mount(t *testing.T) {
	t.Helper()

	require.NoError(t, h.ctrl.Mount(t.Context()))
}

func (h *harness) todos(t *testing.T) *todo.Collection {
	t.Helper()

	st, err := h.handle.Get(t.Context())
	require.NoError(t, err)

	return st.Todos()
}

// waitFor blocks until cond holds for the controller's view.
func waitFor(t *testing.T, c *syncer.Controller, what string, cond func(v syncer.View) bool) syncer.View {
	t.Helper()

	deadline := time.After(waitTimeout)

	for {
		v := c.View()
		if cond(v) {
			return v
		}

		select {
		case <-c.Changed():
		case <-time.After(20 * time.Millisecond):
		case <-deadline:
			t.Fatalf("timed out waiting for %s; view: %+v", what, c.View())
		}
	}
}

func localLen(n int) func(v syncer.View) bool {
	return func(v syncer.View) bool { return len(v.Local) == n }
}

func remoteLen(n int) func(v syncer.View) bool {
	return func(v syncer.View) bool { return v.Remote != nil && len(v.Remote) == n }
}
