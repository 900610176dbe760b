package docdb

import (
	"context"
	"fmt"
)

// Dump is the portable form of one collection: its schema and documents.
type Dump[T any] struct {
	Collection string `json:"collection"`
	Schema     Schema `json:"schema"`
	Docs       []T    `json:"docs"`
}

// Export returns every document of the collection together with its schema.
func (c *Collection[T]) Export(ctx context.Context) (Dump[T], error) {
	docs, err := c.Find(ctx)
	if err != nil {
		return Dump[T]{}, err
	}

	return Dump[T]{Collection: c.name, Schema: c.Schema(), Docs: docs}, nil
}

// Import inserts every document of d in one transaction. Nothing is written
// if any document fails to encode or collides with an existing primary key.
//
// The dump's schema version must match the collection's.
func (c *Collection[T]) Import(ctx context.Context, d Dump[T]) (int, error) {
	if d.Schema.Version != c.schema.Version || d.Schema.Fingerprint() != c.schema.Fingerprint() {
		return 0, withContext(fmt.Errorf("%w: dump has schema version %d, collection has %d",
			ErrSchemaConflict, d.Schema.Version, c.schema.Version), c.name, "")
	}

	type row struct {
		id   string
		data []byte
	}

	rows := make([]row, 0, len(d.Docs))

	for _, doc := range d.Docs {
		id, data, err := c.encode(doc)
		if err != nil {
			return 0, withContext(fmt.Errorf("import: %w", err), c.name, id)
		}

		rows = append(rows, row{id: id, data: data})
	}

	if len(rows) == 0 {
		return 0, nil
	}

	release, err := c.db.acquire()
	if err != nil {
		return 0, withContext(err, c.name, "")
	}

	err = func() error {
		tx, err := c.db.sql.BeginTx(ctx, nil)
		if err != nil {
			return withContext(fmt.Errorf("import: sqlite: begin: %w", err), c.name, "")
		}
		defer rollback(tx)

		for _, r := range rows {
			err = insertTx(ctx, tx, c.name, r.id, r.data)
			if err != nil {
				return withContext(fmt.Errorf("import: %w", err), c.name, r.id)
			}
		}

		err = tx.Commit()
		if err != nil {
			return withContext(fmt.Errorf("import: sqlite: commit: %w", err), c.name, "")
		}

		return nil
	}()

	release()

	if err != nil {
		return 0, err
	}

	c.db.publish(Event{Op: OpImport, Collection: c.name})

	return len(rows), nil
}
