package docdb

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"go.uber.org/zap"
)

// Collection is a typed view over the documents of one collection.
//
// T is the Go shape of a document; it must encode to a flat JSON object
// whose fields match the collection's schema.
type Collection[T any] struct {
	db     *DB
	name   string
	schema *Schema
}

// AddCollection registers a collection on db and returns its typed handle.
//
// The schema is validated and persisted. If a schema with the same version
// but a different structure was persisted under name, or the persisted
// version is newer, returns [ErrSchemaConflict]. If the persisted version is
// older, stored documents are dropped and the new schema recorded.
func AddCollection[T any](ctx context.Context, db *DB, name string, schema Schema) (*Collection[T], error) {
	if ctx == nil {
		return nil, errors.New("add collection: context is nil")
	}

	if !isValidIdentifier(name) {
		return nil, withContext(fmt.Errorf("%w: invalid collection name %q: must be lowercase a-z and underscore", ErrInvalidSchema, name), name, "")
	}

	err := schema.Validate()
	if err != nil {
		return nil, withContext(err, name, "")
	}

	release, err := db.acquireExclusive()
	if err != nil {
		return nil, withContext(err, name, "")
	}
	defer release()

	if _, exists := db.collections[name]; exists {
		return nil, withContext(errors.New("collection already registered"), name, "")
	}

	err = db.migrateCollection(ctx, name, &schema)
	if err != nil {
		return nil, withContext(err, name, "")
	}

	registered := schema
	db.collections[name] = &registered

	if db.cfg.DevMode {
		db.log.Debug("collection registered",
			zap.String("collection", name),
			zap.String("title", schema.Title),
			zap.Int("version", schema.Version),
			zap.String("primary_key", schema.PrimaryKey),
			zap.Strings("required", schema.Required),
			zap.Int("properties", len(schema.Properties)),
			zap.Uint32("fingerprint", schema.Fingerprint()),
		)
	}

	return &Collection[T]{db: db, name: name, schema: &registered}, nil
}

// migrateCollection reconciles the persisted schema with s. Caller holds mu exclusively.
func (db *DB) migrateCollection(ctx context.Context, name string, s *Schema) error {
	encoded, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode schema: %w", err)
	}

	tx, err := db.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer rollback(tx)

	var (
		storedVersion     int
		storedFingerprint int64
	)

	err = tx.QueryRowContext(ctx, "SELECT version, fingerprint FROM "+metaTable+" WHERE name = ?", name).
		Scan(&storedVersion, &storedFingerprint)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx, createTableSQL(name))
		if err != nil {
			return fmt.Errorf("sqlite: create table: %w", err)
		}

		_, err = tx.ExecContext(ctx, "INSERT INTO "+metaTable+" (name, version, fingerprint, schema) VALUES (?, ?, ?, ?)",
			name, s.Version, int64(s.Fingerprint()), string(encoded))
		if err != nil {
			return fmt.Errorf("sqlite: record schema: %w", err)
		}
	case err != nil:
		return fmt.Errorf("sqlite: read schema: %w", err)
	case storedVersion == s.Version:
		if storedFingerprint != int64(s.Fingerprint()) {
			return fmt.Errorf("%w: version %d was persisted with a different structure", ErrSchemaConflict, s.Version)
		}

		_, err = tx.ExecContext(ctx, createTableSQL(name))
		if err != nil {
			return fmt.Errorf("sqlite: create table: %w", err)
		}
	case storedVersion > s.Version:
		return fmt.Errorf("%w: persisted version %d is newer than %d", ErrSchemaConflict, storedVersion, s.Version)
	default:
		db.log.Warn("schema version changed, dropping stored documents",
			zap.String("collection", name),
			zap.Int("from", storedVersion),
			zap.Int("to", s.Version),
		)

		_, err = tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+tableName(name))
		if err != nil {
			return fmt.Errorf("sqlite: drop table: %w", err)
		}

		_, err = tx.ExecContext(ctx, createTableSQL(name))
		if err != nil {
			return fmt.Errorf("sqlite: create table: %w", err)
		}

		_, err = tx.ExecContext(ctx, "UPDATE "+metaTable+" SET version = ?, fingerprint = ?, schema = ? WHERE name = ?",
			s.Version, int64(s.Fingerprint()), string(encoded), name)
		if err != nil {
			return fmt.Errorf("sqlite: record schema: %w", err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}

	return nil
}

// Name returns the collection name.
func (c *Collection[T]) Name() string {
	return c.name
}

// Schema returns a copy of the collection schema.
func (c *Collection[T]) Schema() Schema {
	return *c.schema
}

// Find returns all documents ordered by primary key.
func (c *Collection[T]) Find(ctx context.Context) ([]T, error) {
	release, err := c.db.acquire()
	if err != nil {
		return nil, withContext(err, c.name, "")
	}
	defer release()

	rows, err := c.db.sql.QueryContext(ctx, "SELECT id, data FROM "+tableName(c.name)+" ORDER BY id")
	if err != nil {
		return nil, withContext(fmt.Errorf("find: sqlite: %w", err), c.name, "")
	}

	defer func() { _ = rows.Close() }()

	docs := make([]T, 0)

	for rows.Next() {
		var id, data string

		err = rows.Scan(&id, &data)
		if err != nil {
			return nil, withContext(fmt.Errorf("find: scan: %w", err), c.name, "")
		}

		doc, decodeErr := c.decode(data)
		if decodeErr != nil {
			return nil, withContext(decodeErr, c.name, id)
		}

		docs = append(docs, doc)
	}

	err = rows.Err()
	if err != nil {
		return nil, withContext(fmt.Errorf("find: rows: %w", err), c.name, "")
	}

	return docs, nil
}

// FindOne returns the document with primary key id, or [ErrNotFound].
func (c *Collection[T]) FindOne(ctx context.Context, id string) (T, error) {
	var zero T

	release, err := c.db.acquire()
	if err != nil {
		return zero, withContext(err, c.name, id)
	}
	defer release()

	doc, err := c.findOne(ctx, c.db.sql, id)
	if err != nil {
		return zero, withContext(err, c.name, id)
	}

	return doc, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (c *Collection[T]) findOne(ctx context.Context, q queryRower, id string) (T, error) {
	var (
		zero T
		data string
	)

	err := q.QueryRowContext(ctx, "SELECT data FROM "+tableName(c.name)+" WHERE id = ?", id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return zero, ErrNotFound
	}

	if err != nil {
		return zero, fmt.Errorf("find one: sqlite: %w", err)
	}

	return c.decode(data)
}

// Insert stores a new document. Returns [ErrConflict] if the primary key
// already exists, [ErrValidation] if the document does not match the schema.
func (c *Collection[T]) Insert(ctx context.Context, doc T) (T, error) {
	var zero T

	id, data, err := c.encode(doc)
	if err != nil {
		return zero, withContext(err, c.name, id)
	}

	release, err := c.db.acquire()
	if err != nil {
		return zero, withContext(err, c.name, id)
	}

	err = c.insertLocked(ctx, id, data)

	release()

	if err != nil {
		return zero, withContext(err, c.name, id)
	}

	c.db.publish(Event{Op: OpInsert, Collection: c.name, ID: id})

	return doc, nil
}

func (c *Collection[T]) insertLocked(ctx context.Context, id string, data []byte) error {
	tx, err := c.db.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("insert: sqlite: begin: %w", err)
	}
	defer rollback(tx)

	err = insertTx(ctx, tx, c.name, id, data)
	if err != nil {
		return err
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("insert: sqlite: commit: %w", err)
	}

	return nil
}

func insertTx(ctx context.Context, tx *sql.Tx, collection string, id string, data []byte) error {
	var exists int

	err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+tableName(collection)+" WHERE id = ?", id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("insert: sqlite: %w", err)
	}

	if exists > 0 {
		return ErrConflict
	}

	_, err = tx.ExecContext(ctx, "INSERT INTO "+tableName(collection)+" (id, data) VALUES (?, ?)", id, string(data))
	if err != nil {
		return fmt.Errorf("insert: sqlite: %w", err)
	}

	return nil
}

// Patch applies fn to the stored document with primary key id and writes
// the result in one transaction. fn must not change the primary key.
// Returns [ErrNotFound] if there is no such document.
func (c *Collection[T]) Patch(ctx context.Context, id string, fn func(doc *T) error) (T, error) {
	var zero T

	if fn == nil {
		return zero, withContext(errors.New("patch: fn is nil"), c.name, id)
	}

	release, err := c.db.acquire()
	if err != nil {
		return zero, withContext(err, c.name, id)
	}

	patched, err := c.patchLocked(ctx, id, fn)

	release()

	if err != nil {
		return zero, withContext(err, c.name, id)
	}

	c.db.publish(Event{Op: OpUpdate, Collection: c.name, ID: id})

	return patched, nil
}

func (c *Collection[T]) patchLocked(ctx context.Context, id string, fn func(doc *T) error) (T, error) {
	var zero T

	tx, err := c.db.sql.BeginTx(ctx, nil)
	if err != nil {
		return zero, fmt.Errorf("patch: sqlite: begin: %w", err)
	}
	defer rollback(tx)

	doc, err := c.findOne(ctx, tx, id)
	if err != nil {
		return zero, err
	}

	err = fn(&doc)
	if err != nil {
		return zero, fmt.Errorf("patch: %w", err)
	}

	newID, data, err := c.encode(doc)
	if err != nil {
		return zero, err
	}

	if newID != id {
		return zero, fmt.Errorf("patch: primary key changed from %q to %q", id, newID)
	}

	_, err = tx.ExecContext(ctx, "UPDATE "+tableName(c.name)+" SET data = ? WHERE id = ?", string(data), id)
	if err != nil {
		return zero, fmt.Errorf("patch: sqlite: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return zero, fmt.Errorf("patch: sqlite: commit: %w", err)
	}

	return doc, nil
}

// Remove deletes the document with primary key id, or returns [ErrNotFound].
func (c *Collection[T]) Remove(ctx context.Context, id string) error {
	release, err := c.db.acquire()
	if err != nil {
		return withContext(err, c.name, id)
	}

	res, err := c.db.sql.ExecContext(ctx, "DELETE FROM "+tableName(c.name)+" WHERE id = ?", id)

	release()

	if err != nil {
		return withContext(fmt.Errorf("remove: sqlite: %w", err), c.name, id)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return withContext(fmt.Errorf("remove: sqlite: %w", err), c.name, id)
	}

	if affected == 0 {
		return withContext(ErrNotFound, c.name, id)
	}

	c.db.publish(Event{Op: OpDelete, Collection: c.name, ID: id})

	return nil
}

// Count returns the number of documents in the collection.
func (c *Collection[T]) Count(ctx context.Context) (int, error) {
	release, err := c.db.acquire()
	if err != nil {
		return 0, withContext(err, c.name, "")
	}
	defer release()

	var n int

	err = c.db.sql.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+tableName(c.name)).Scan(&n)
	if err != nil {
		return 0, withContext(fmt.Errorf("count: sqlite: %w", err), c.name, "")
	}

	return n, nil
}

// encode marshals doc, extracts its primary key and, in dev mode,
// validates it against the schema.
func (c *Collection[T]) encode(doc T) (string, []byte, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return "", nil, fmt.Errorf("encode: %w", err)
	}

	fields, err := decodeFields(data)
	if err != nil {
		return "", nil, fmt.Errorf("encode: %w", err)
	}

	id, _ := fields[c.schema.PrimaryKey].(string)

	if c.db.cfg.DevMode {
		err = c.schema.ValidateDocument(fields)
		if err != nil {
			return id, nil, err
		}
	}

	if id == "" {
		return "", nil, fmt.Errorf("%w: primary key %q is empty", ErrValidation, c.schema.PrimaryKey)
	}

	maxLen := c.schema.Properties[c.schema.PrimaryKey].MaxLength
	if utf8.RuneCountInString(id) > maxLen {
		return id, nil, fmt.Errorf("%w: primary key longer than %d", ErrValidation, maxLen)
	}

	return id, data, nil
}

func (c *Collection[T]) decode(data string) (T, error) {
	var doc T

	err := json.Unmarshal([]byte(data), &doc)
	if err != nil {
		return doc, fmt.Errorf("decode: %w", err)
	}

	return doc, nil
}

func decodeFields(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var fields map[string]any

	err := dec.Decode(&fields)
	if err != nil {
		return nil, err
	}

	if fields == nil {
		return nil, errors.New("document is not a JSON object")
	}

	return fields, nil
}
