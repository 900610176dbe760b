// Package store is the access layer to the local document database.
//
// A [Handle] is constructed explicitly and shared by reference. The
// database behind it is opened on the first [Handle.Get] and reused for
// every later call; a failed initialization is remembered and returned
// again, there is no retry.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/calvinalkan/todo-sync/internal/todo"
	"github.com/calvinalkan/todo-sync/pkg/docdb"
)

// DefaultName is the database name used when Options.Name is empty.
const DefaultName = "mydb2"

// ErrHandleClosed is returned by Get after Close.
var ErrHandleClosed = errors.New("store handle closed")

// Options configures a [Handle].
type Options struct {
	// Dir holds the database file.
	Dir string

	// Name is the database name. Defaults to [DefaultName].
	Name string

	// Production disables write validation and schema diagnostics.
	Production bool

	// WatchExternal re-emits live queries on commits from other processes.
	WatchExternal bool

	Logger *zap.Logger
}

// Store is an initialized local database with its collections registered.
type Store struct {
	db    *docdb.DB
	todos *todo.Collection
}

// Todos returns the todos collection.
func (s *Store) Todos() *todo.Collection {
	return s.todos
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.db.Path()
}

// Close closes the database. Safe on nil.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}

	return s.db.Close()
}

// Handle lazily initializes one [Store].
//
// # Concurrency
//
// Safe for concurrent use. Callers of Get block while the first call
// initializes and then all observe the same result.
type Handle struct {
	opts Options
	log  *zap.Logger

	mu     sync.Mutex
	done   bool
	closed bool
	store  *Store
	err    error
}

// NewHandle returns a handle that has not opened anything yet.
func NewHandle(opts Options) *Handle {
	if opts.Name == "" {
		opts.Name = DefaultName
	}

	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &Handle{opts: opts, log: log}
}

// Get returns the store, initializing it on the first call.
func (h *Handle) Get(ctx context.Context) (*Store, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHandleClosed
	}

	if !h.done {
		h.store, h.err = h.create(ctx)
		h.done = true
	}

	return h.store, h.err
}

// Close closes the store if it was initialized. Later Get calls fail with
// [ErrHandleClosed].
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}

	h.closed = true

	if h.store == nil {
		return nil
	}

	return h.store.Close()
}

func (h *Handle) create(ctx context.Context) (*Store, error) {
	h.log.Info("creating database", zap.String("name", h.opts.Name), zap.String("dir", h.opts.Dir))

	db, err := docdb.Open(ctx, docdb.Config{
		Dir:           h.opts.Dir,
		Name:          h.opts.Name,
		DevMode:       !h.opts.Production,
		WatchExternal: h.opts.WatchExternal,
		Logger:        h.log,
	})
	if err != nil {
		return nil, fmt.Errorf("create database: %w", err)
	}

	todos, err := docdb.AddCollection[todo.Record](ctx, db, todo.CollectionName, todo.Schema())
	if err != nil {
		closeErr := db.Close()

		return nil, errors.Join(fmt.Errorf("create database: %w", err), closeErr)
	}

	return &Store{db: db, todos: todos}, nil
}
