package docdb

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Op identifies what caused a live query emission.
type Op uint8

// Change operations.
const (
	// OpInitial is the first emission of a new subscription.
	OpInitial Op = iota
	OpInsert
	OpUpdate
	OpDelete
	OpImport
	// OpExternal is a commit made by another process.
	OpExternal
)

func (o Op) String() string {
	switch o {
	case OpInitial:
		return "initial"
	case OpInsert:
		return "insert"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	case OpImport:
		return "import"
	case OpExternal:
		return "external"
	default:
		return "unknown"
	}
}

// Event describes one committed change.
type Event struct {
	Op         Op
	Collection string
	// ID is the primary key of the changed document. Empty for
	// OpInitial, OpImport and OpExternal.
	ID string
}

// Snapshot is one live query emission: the full result set and the event
// that caused it. When re-running the query failed, Err is set and Docs is
// nil; the event is still delivered.
type Snapshot[T any] struct {
	Docs  []T
	Event Event
	Err   error
}

// Subscription is a live query over all documents of a collection.
//
// C delivers one [Snapshot] per change, in the order changes were
// published. Docs reflect the collection at the time the query re-ran,
// so they may already include later changes. C is closed after
// [Subscription.Unsubscribe] or [DB.Close].
type Subscription[T any] struct {
	C <-chan Snapshot[T]

	coll *Collection[T]
	out  chan Snapshot[T]
	id   uint64

	mu      sync.Mutex
	pending []Event
	wake    chan struct{}

	done     chan struct{}
	exited   chan struct{}
	stopOnce sync.Once
}

// Watch starts a live query. The current result set is delivered first,
// tagged [OpInitial]. The query runs until ctx is done, Unsubscribe is
// called, or the DB is closed.
func (c *Collection[T]) Watch(ctx context.Context) (*Subscription[T], error) {
	if ctx == nil {
		return nil, withContext(errors.New("watch: context is nil"), c.name, "")
	}

	out := make(chan Snapshot[T])

	sub := &Subscription[T]{
		C:       out,
		coll:    c,
		out:     out,
		pending: []Event{{Op: OpInitial, Collection: c.name}},
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		exited:  make(chan struct{}),
	}

	release, err := c.db.acquire()
	if err != nil {
		return nil, withContext(err, c.name, "")
	}

	id, ok := c.db.broker.add(c.name, sub)

	release()

	if !ok {
		return nil, withContext(ErrClosed, c.name, "")
	}

	sub.id = id
	sub.wake <- struct{}{}

	go sub.run(ctx)

	return sub, nil
}

// Unsubscribe ends the live query and waits for its goroutine to exit.
// Idempotent.
func (s *Subscription[T]) Unsubscribe() {
	s.stop()
}

func (s *Subscription[T]) stop() {
	s.stopOnce.Do(func() {
		close(s.done)
	})

	s.coll.db.broker.remove(s.coll.name, s.id)

	<-s.exited
}

func (s *Subscription[T]) enqueue(ev Event) {
	s.mu.Lock()
	s.pending = append(s.pending, ev)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription[T]) next() (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) == 0 {
		return Event{}, false
	}

	ev := s.pending[0]
	s.pending = s.pending[1:]

	return ev, true
}

func (s *Subscription[T]) run(ctx context.Context) {
	defer close(s.exited)
	defer close(s.out)

	log := s.coll.db.log

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-s.wake:
		}

		for {
			ev, ok := s.next()
			if !ok {
				break
			}

			docs, err := s.coll.Find(ctx)
			if err != nil {
				if errors.Is(err, ErrClosed) || ctx.Err() != nil {
					return
				}

				log.Error("live query failed", zap.String("collection", s.coll.name), zap.Error(err))
			}

			select {
			case s.out <- Snapshot[T]{Docs: docs, Event: ev, Err: err}:
			case <-ctx.Done():
				return
			case <-s.done:
				return
			}
		}
	}
}

// externalDebounce batches bursts of file events from one foreign commit.
const externalDebounce = 100 * time.Millisecond

// externalWatcher detects commits by other processes. fsnotify reports
// activity on the database files; PRAGMA data_version confirms a foreign
// commit, since it does not move for this process's own writes.
type externalWatcher struct {
	db      *DB
	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	exited  chan struct{}
	base    string
	version int64
}

func newExternalWatcher(ctx context.Context, db *DB) (*externalWatcher, error) {
	version, err := queryDataVersion(ctx, db.sql)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	err = watcher.Add(filepath.Dir(db.path))
	if err != nil {
		_ = watcher.Close()

		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	w := &externalWatcher{
		db:      db,
		watcher: watcher,
		cancel:  cancel,
		exited:  make(chan struct{}),
		base:    filepath.Base(db.path),
		version: version,
	}

	go w.run(runCtx)

	return w, nil
}

func (w *externalWatcher) stop() error {
	w.cancel()
	<-w.exited

	return w.watcher.Close()
}

func (w *externalWatcher) run(ctx context.Context) {
	defer close(w.exited)

	ticker := time.NewTicker(externalDebounce)
	defer ticker.Stop()

	dirty := false

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if strings.HasPrefix(filepath.Base(event.Name), w.base) && event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				dirty = true
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}

			w.db.log.Warn("file watch error", zap.Error(err))
		case <-ticker.C:
			if !dirty {
				continue
			}

			dirty = false

			w.check(ctx)
		}
	}
}

func (w *externalWatcher) check(ctx context.Context) {
	release, err := w.db.acquire()
	if err != nil {
		return
	}

	version, err := queryDataVersion(ctx, w.db.sql)

	release()

	if err != nil {
		w.db.log.Warn("external change check failed", zap.Error(err))

		return
	}

	if version == w.version {
		return
	}

	w.version = version
	w.db.publish(Event{Op: OpExternal})
}
