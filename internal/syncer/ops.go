package syncer

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/calvinalkan/todo-sync/internal/todo"
	"github.com/calvinalkan/todo-sync/pkg/docdb"
)

// SetField changes one form field.
func (c *Controller) SetField(field, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.form.Set(field, value)
	if err != nil {
		return err
	}

	c.state = FormEditing
	c.notify()

	return nil
}

// SetForm replaces the whole form.
func (c *Controller) SetForm(f todo.Form) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.form = f
	c.state = FormEditing
	c.notify()
}

// Submit creates a record from the form. The service is called first; on
// success the record is inserted locally under the id the service assigned.
//
// Returns the service error, after logging it. A failed local insert is
// only logged. The record returned is the service's copy.
func (c *Controller) Submit(ctx context.Context) (todo.Record, error) {
	c.mu.Lock()
	form := c.form
	c.state = Submitting
	c.mu.Unlock()

	c.notify()

	created, err := c.remote.CreateTodo(ctx, form.CreateInput())
	if err != nil {
		c.log.Error("error adding todo", zap.Error(err))
		c.finishSubmit()

		return todo.Record{}, err
	}

	rec := form.WithID(created.ID)

	todos, ok := c.localTodos(ctx)
	if ok {
		done := c.expect(docdb.OpInsert, rec.ID)

		_, err = todos.Insert(ctx, rec)
		if err != nil {
			done()
			c.log.Error("error adding todo to local store", zap.String("id", rec.ID), zap.Error(err))
		}
	}

	c.finishSubmit()

	return created, nil
}

func (c *Controller) finishSubmit() {
	c.mu.Lock()

	if c.state == Submitting {
		c.state = FormEditing
		if c.form.IsBlank() {
			c.state = Idle
		}
	}

	c.updating = false
	c.editingID = ""
	c.record = ViewingRecord
	c.mu.Unlock()

	c.notify()
}

// Update runs one phase of the two-phase update of rec.
//
// The first call copies rec into the form and writes nothing. The next
// call commits: the form is merged onto rec (blank fields keep rec's
// values), the local copy is patched if it exists, and then the service is
// updated with the same merged values regardless of the local outcome.
//
// Returns the service error of the commit phase, after logging it.
func (c *Controller) Update(ctx context.Context, rec todo.Record) error {
	c.mu.Lock()

	if !c.updating {
		c.form = todo.FormFrom(rec)
		c.updating = true
		c.editingID = rec.ID
		c.state = FormEditing
		c.record = EditingRecord
		c.mu.Unlock()

		c.notify()

		return nil
	}

	form := c.form
	c.record = CommittingUpdate
	c.mu.Unlock()

	c.notify()

	merged := form.MergeOnto(rec)

	todos, ok := c.localTodos(ctx)
	if ok {
		c.patchLocal(ctx, todos, merged)
	}

	_, err := c.remote.UpdateTodo(ctx, todo.UpdateInputFor(merged))
	if err != nil {
		c.log.Error("error updating todo", zap.String("id", rec.ID), zap.Error(err))
	}

	c.mu.Lock()
	c.updating = false
	c.editingID = ""
	c.record = ViewingRecord
	c.mu.Unlock()

	c.notify()

	return err
}

func (c *Controller) patchLocal(ctx context.Context, todos *todo.Collection, merged todo.Record) {
	_, err := todos.FindOne(ctx, merged.ID)
	if err != nil {
		c.logLookup(merged.ID, err)

		return
	}

	done := c.expect(docdb.OpUpdate, merged.ID)

	_, err = todos.Patch(ctx, merged.ID, func(doc *todo.Record) error {
		*doc = merged

		return nil
	})
	if err != nil {
		done()
		c.log.Error("error patching local todo", zap.String("id", merged.ID), zap.Error(err))
	}
}

// Delete removes rec locally if present, then always deletes it remotely.
//
// Returns the service error, after logging it.
func (c *Controller) Delete(ctx context.Context, rec todo.Record) error {
	todos, ok := c.localTodos(ctx)
	if ok {
		c.removeLocal(ctx, todos, rec.ID)
	}

	_, err := c.remote.DeleteTodo(ctx, rec.ID)
	if err != nil {
		c.log.Error("error deleting todo", zap.String("id", rec.ID), zap.Error(err))

		return err
	}

	return nil
}

func (c *Controller) removeLocal(ctx context.Context, todos *todo.Collection, id string) {
	_, err := todos.FindOne(ctx, id)
	if err != nil {
		c.logLookup(id, err)

		return
	}

	done := c.expect(docdb.OpDelete, id)

	err = todos.Remove(ctx, id)
	if err != nil {
		done()
		c.log.Error("error removing local todo", zap.String("id", id), zap.Error(err))
	}
}

func (c *Controller) logLookup(id string, err error) {
	if errors.Is(err, docdb.ErrNotFound) {
		c.log.Error("todo not found in local store", zap.String("id", id))

		return
	}

	c.log.Error("local lookup failed", zap.String("id", id), zap.Error(err))
}

// localTodos returns the local collection, or false when the store could
// not be initialized. The failure is logged.
func (c *Controller) localTodos(ctx context.Context) (*todo.Collection, bool) {
	st, err := c.store.Get(ctx)
	if err != nil {
		c.log.Warn("local store unavailable, skipping local write", zap.Error(fmt.Errorf("get store: %w", err)))

		return nil, false
	}

	return st.Todos(), true
}
