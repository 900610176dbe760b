// Package syncer keeps the remote to-do list and the local document store
// side by side.
//
// Writes go to both stores. Create is remote-first: the local copy is
// inserted under the id the service assigned, and nothing is written
// locally if the service rejects the create. Update and delete are
// local-first and always reach the service afterwards, whether or not the
// local step succeeded. Local failures are logged and never retried, so the
// two stores can drift apart. There is no reconciliation: the last write to
// each store wins.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/calvinalkan/todo-sync/internal/remote"
	"github.com/calvinalkan/todo-sync/internal/store"
	"github.com/calvinalkan/todo-sync/internal/todo"
	"github.com/calvinalkan/todo-sync/pkg/docdb"
)

const settlePoll = 5 * time.Millisecond

// ErrMounted is returned by Mount on a mounted controller.
var ErrMounted = errors.New("controller already mounted")

// Remote is the remote service as seen by the controller.
type Remote interface {
	ListTodos(ctx context.Context) ([]todo.Record, error)
	CreateTodo(ctx context.Context, in todo.CreateInput) (todo.Record, error)
	UpdateTodo(ctx context.Context, in todo.UpdateInput) (todo.Record, error)
	DeleteTodo(ctx context.Context, id string) (string, error)
	Observe() (<-chan remote.ListResult, func())
}

// ResetPolicy decides which local changes clear the edit form.
type ResetPolicy uint8

const (
	// ResetOwnMutations clears the form only when a local change caused
	// by this controller arrives.
	ResetOwnMutations ResetPolicy = iota

	// ResetAlways clears the form on every local change, including the
	// initial load and changes made by other writers.
	ResetAlways
)

// Options configures [New].
type Options struct {
	Logger      *zap.Logger
	ResetPolicy ResetPolicy
}

// Controller is the synchronization controller. Create one per view with
// [New], then Mount it.
//
// # Concurrency
//
// Safe for concurrent use. Writes are not serialized against each other:
// two overlapping operations interleave their remote and local steps.
type Controller struct {
	remote Remote
	store  *store.Handle
	log    *zap.Logger
	policy ResetPolicy

	changed chan struct{}

	// lifecycle serializes Mount and Unmount.
	lifecycle sync.Mutex

	mu          sync.Mutex
	state       State
	record      RecordState
	form        todo.Form
	updating    bool
	editingID   string
	local       []todo.Record
	localErr    error
	remoteErr   error
	remoteTodos []todo.Record
	expected    map[change]int
	mount       *mountState
}

type change struct {
	op docdb.Op
	id string
}

type mountState struct {
	sub          *docdb.Subscription[todo.Record]
	cancelRemote func()
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

// New returns an unmounted controller.
func New(r Remote, h *store.Handle, opts Options) *Controller {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &Controller{
		remote:   r,
		store:    h,
		log:      log,
		policy:   opts.ResetPolicy,
		changed:  make(chan struct{}, 1),
		local:    []todo.Record{},
		expected: make(map[change]int),
	}
}

// Changed signals after the view changed. Signals coalesce: one pending
// signal stands for any number of changes. Read [Controller.View] after
// receiving.
func (c *Controller) Changed() <-chan struct{} {
	return c.changed
}

func (c *Controller) notify() {
	select {
	case c.changed <- struct{}{}:
	default:
	}
}

// Mount loads both lists and starts following changes to them.
//
// The local and remote loads run concurrently and fail independently: a
// local store that cannot be initialized leaves the local list empty and is
// logged, a failed remote list read is kept in [View.RemoteErr].
func (c *Controller) Mount(ctx context.Context) error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.mu.Lock()

	if c.mount != nil {
		c.mu.Unlock()

		return ErrMounted
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m := &mountState{cancel: cancel}
	c.mount = m
	clear(c.expected)

	c.mu.Unlock()

	var g errgroup.Group

	g.Go(func() error { return c.mountLocal(ctx, runCtx, m) })
	g.Go(func() error { return c.mountRemote(ctx, m) })

	// Each failure is already logged and kept in the view; neither load
	// fails the mount.
	err := g.Wait()
	if err != nil {
		c.log.Debug("mounted with errors", zap.NamedError("first_error", err))
	} else {
		c.log.Debug("mounted")
	}

	c.notify()

	return nil
}

func (c *Controller) mountLocal(ctx, runCtx context.Context, m *mountState) error {
	st, err := c.store.Get(ctx)
	if err != nil {
		c.log.Error("failed to initialize database", zap.Error(err))
		c.setLocal(nil, err)

		return fmt.Errorf("local: %w", err)
	}

	docs, err := st.Todos().Find(ctx)
	if err != nil {
		c.log.Error("failed to load local todos", zap.Error(err))
		c.setLocal(nil, err)

		return fmt.Errorf("local: %w", err)
	}

	c.setLocal(docs, nil)

	sub, err := st.Todos().Watch(runCtx)
	if err != nil {
		c.log.Error("failed to subscribe to local todos", zap.Error(err))

		return fmt.Errorf("local: %w", err)
	}

	c.mu.Lock()
	m.sub = sub
	c.mu.Unlock()

	m.wg.Add(1)

	go func() {
		defer m.wg.Done()

		for snap := range sub.C {
			c.applyLocal(snap)
		}
	}()

	return nil
}

func (c *Controller) mountRemote(ctx context.Context, m *mountState) error {
	updates, cancel := c.remote.Observe()

	c.mu.Lock()
	m.cancelRemote = cancel
	c.mu.Unlock()

	m.wg.Add(1)

	go func() {
		defer m.wg.Done()

		for res := range updates {
			c.applyRemote(res.Todos, res.Err)
		}
	}()

	todos, err := c.remote.ListTodos(ctx)
	if err != nil {
		c.log.Error("failed to list remote todos", zap.Error(err))
	}

	c.applyRemote(todos, err)

	if err != nil {
		return fmt.Errorf("remote: %w", err)
	}

	return nil
}

// Unmount stops following both lists and waits for the followers to exit.
// Operations already in flight are not aborted. Safe to call when not
// mounted.
func (c *Controller) Unmount() {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.mu.Lock()
	m := c.mount
	c.mount = nil
	clear(c.expected)
	c.mu.Unlock()

	if m == nil {
		return
	}

	if m.sub != nil {
		m.sub.Unsubscribe()
	}

	if m.cancelRemote != nil {
		m.cancelRemote()
	}

	m.cancel()
	m.wg.Wait()
}

func (c *Controller) setLocal(docs []todo.Record, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if docs == nil {
		docs = []todo.Record{}
	}

	c.local = docs
	c.localErr = err
}

func (c *Controller) applyLocal(snap docdb.Snapshot[todo.Record]) {
	c.mu.Lock()

	if snap.Err != nil {
		c.localErr = snap.Err
	} else {
		c.local = snap.Docs
		c.localErr = nil
	}

	reset := c.policy == ResetAlways

	key := change{op: snap.Event.Op, id: snap.Event.ID}
	if n := c.expected[key]; n > 0 {
		reset = true

		if n == 1 {
			delete(c.expected, key)
		} else {
			c.expected[key] = n - 1
		}
	}

	if reset {
		c.form = todo.Form{}
		c.state = Idle
	}

	c.mu.Unlock()

	c.log.Debug("local todos changed",
		zap.Stringer("op", snap.Event.Op),
		zap.String("id", snap.Event.ID),
		zap.Int("count", len(snap.Docs)),
		zap.Bool("form_reset", reset),
	)

	c.notify()
}

func (c *Controller) applyRemote(todos []todo.Record, err error) {
	c.mu.Lock()

	if err != nil {
		c.remoteErr = err
	} else {
		c.remoteTodos = todos
		c.remoteErr = nil
	}

	c.mu.Unlock()

	c.notify()
}

// expect records that a local change for id is about to be made by this
// controller, so its notification clears the form.
func (c *Controller) expect(op docdb.Op, id string) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mount == nil || c.mount.sub == nil {
		return func() {}
	}

	key := change{op: op, id: id}
	c.expected[key]++

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		if c.expected[key] <= 1 {
			delete(c.expected, key)

			return
		}

		c.expected[key]--
	}
}

// Settle blocks until every local write made by this controller has come
// back through the live query, or ctx ends.
func (c *Controller) Settle(ctx context.Context) error {
	t := time.NewTicker(settlePoll)
	defer t.Stop()

	for {
		c.mu.Lock()
		pending := len(c.expected)
		c.mu.Unlock()

		if pending == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

// View returns a copy of the current state.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := View{
		State:     c.state,
		Record:    c.record,
		Form:      c.form,
		Updating:  c.updating,
		EditingID: c.editingID,
		Local:     slices.Clone(c.local),
		LocalErr:  c.localErr,
		RemoteErr: c.remoteErr,
		Mounted:   c.mount != nil,
	}

	if c.remoteTodos != nil {
		v.Remote = slices.Clone(c.remoteTodos)
	}

	return v
}
