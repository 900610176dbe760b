package docdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"go.uber.org/zap"
)

// Config configures [Open].
type Config struct {
	// Dir is the directory holding the database file. Created if missing.
	Dir string

	// Name is the database name; the file is <Dir>/<Name>.sqlite.
	Name string

	// DevMode validates every write against the schema and logs schema
	// diagnostics. Meant for non-production builds.
	DevMode bool

	// WatchExternal re-emits live queries when another process commits to
	// the same database file.
	WatchExternal bool

	// Logger receives diagnostics. Defaults to a no-op logger.
	Logger *zap.Logger
}

// DB is an open document database.
//
// # Concurrency
//
// Safe for concurrent use. Operations hold mu shared; [DB.Close] takes it
// exclusively, so it waits for in-flight operations. SQLite itself is used
// through a single connection.
type DB struct {
	cfg    Config
	path   string
	sql    *sql.DB
	log    *zap.Logger
	closed atomic.Bool

	mu          sync.RWMutex
	collections map[string]*Schema

	broker  *broker
	watcher *externalWatcher
}

// Open opens or creates the database <Dir>/<Name>.sqlite.
//
// Returns errors for config validation, directory creation, and SQLite
// initialization failures.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	if ctx == nil {
		return nil, errors.New("open: context is nil")
	}

	if cfg.Dir == "" {
		return nil, errors.New("open: Config.Dir is required")
	}

	if cfg.Name == "" {
		return nil, errors.New("open: Config.Name is required")
	}

	if filepath.Base(cfg.Name) != cfg.Name {
		return nil, fmt.Errorf("open: invalid database name %q", cfg.Name)
	}

	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	dir := filepath.Clean(cfg.Dir)

	err := os.MkdirAll(dir, 0o750)
	if err != nil {
		return nil, fmt.Errorf("open: create dir: %w", err)
	}

	path := filepath.Join(dir, cfg.Name+".sqlite")

	sqlite, err := openSqlite(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	db := &DB{
		cfg:         cfg,
		path:        path,
		sql:         sqlite,
		log:         log.With(zap.String("db", cfg.Name)),
		collections: make(map[string]*Schema),
		broker:      newBroker(),
	}

	if cfg.WatchExternal {
		watcher, watchErr := newExternalWatcher(ctx, db)
		if watchErr != nil {
			closeErr := db.Close()

			return nil, errors.Join(fmt.Errorf("open: watch: %w", watchErr), closeErr)
		}

		db.watcher = watcher
	}

	db.log.Debug("database opened", zap.String("path", path), zap.Bool("dev_mode", cfg.DevMode))

	return db, nil
}

// Name returns the database name.
func (db *DB) Name() string {
	return db.cfg.Name
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Close ends all live queries and releases the SQLite handle.
// Safe on nil, idempotent. Waits for in-flight operations to complete.
func (db *DB) Close() error {
	if db == nil {
		return nil
	}

	if db.closed.Swap(true) {
		return nil
	}

	var errs []error

	if db.watcher != nil {
		err := db.watcher.stop()
		if err != nil {
			errs = append(errs, fmt.Errorf("watch: %w", err))
		}
	}

	// Subscriptions re-query under mu; stop them before taking it.
	for _, sub := range db.broker.closeAll() {
		sub.stop()
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if db.sql != nil {
		err := db.sql.Close()
		if err != nil {
			errs = append(errs, fmt.Errorf("sqlite: %w", err))
		}

		db.sql = nil
	}

	return errors.Join(errs...)
}

// acquire holds mu shared for one operation. The returned release must be
// called exactly once.
func (db *DB) acquire() (func(), error) {
	if db == nil {
		return nil, ErrClosed
	}

	db.mu.RLock()

	if db.closed.Load() || db.sql == nil {
		db.mu.RUnlock()

		return nil, ErrClosed
	}

	return db.mu.RUnlock, nil
}

// acquireExclusive is acquire for schema changes.
func (db *DB) acquireExclusive() (func(), error) {
	if db == nil {
		return nil, ErrClosed
	}

	db.mu.Lock()

	if db.closed.Load() || db.sql == nil {
		db.mu.Unlock()

		return nil, ErrClosed
	}

	return db.mu.Unlock, nil
}

// publish notifies live queries after a committed write.
func (db *DB) publish(ev Event) {
	db.log.Debug("change", zap.Stringer("op", ev.Op), zap.String("collection", ev.Collection), zap.String("id", ev.ID))
	db.broker.publish(ev)
}

// broker fans change events out to the live queries of each collection.
type broker struct {
	mu     sync.Mutex
	next   uint64
	closed bool
	subs   map[string]map[uint64]subscriber
}

type subscriber interface {
	enqueue(ev Event)
	stop()
}

func newBroker() *broker {
	return &broker{subs: make(map[string]map[uint64]subscriber)}
}

func (b *broker) add(collection string, s subscriber) (uint64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, false
	}

	b.next++

	if b.subs[collection] == nil {
		b.subs[collection] = make(map[uint64]subscriber)
	}

	b.subs[collection][b.next] = s

	return b.next, true
}

func (b *broker) remove(collection string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subs[collection], id)
}

// publish delivers ev to the subscribers of ev.Collection, or to every
// subscriber when ev.Collection is empty.
func (b *broker) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for name, subs := range b.subs {
		if ev.Collection != "" && name != ev.Collection {
			continue
		}

		for _, s := range subs {
			s.enqueue(ev)
		}
	}
}

func (b *broker) closeAll() []subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true

	var all []subscriber

	for _, subs := range b.subs {
		for _, s := range subs {
			all = append(all, s)
		}
	}

	b.subs = make(map[string]map[uint64]subscriber)

	return all
}
