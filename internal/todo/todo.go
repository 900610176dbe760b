// Package todo defines the task record shared by the remote service and
// the local document store, its document schema, and the edit form used to
// create and update records.
package todo

import (
	"context"
	"fmt"
	"strings"

	"github.com/calvinalkan/todo-sync/pkg/docdb"
)

// CollectionName is the local collection holding task records.
const CollectionName = "todos"

// MaxIDLength bounds the primary key.
const MaxIDLength = 100

// Record is one to-do item. The same shape is used remotely and locally.
type Record struct {
	// Assigned by the remote service on create.
	ID string `json:"id"`

	Name string `json:"name"`

	// Free text, not a timestamp.
	When string `json:"when"`

	Where       string `json:"where"`
	Description string `json:"description"`
}

// Collection is the typed local collection of records.
type Collection = docdb.Collection[Record]

// Schema returns the document schema of the todos collection.
func Schema() docdb.Schema {
	return docdb.Schema{
		Title:       "todo schema",
		Description: "describes a to-do item",
		Version:     0,
		PrimaryKey:  "id",
		Properties: map[string]docdb.Property{
			"id":          {Type: docdb.TypeString, MaxLength: MaxIDLength},
			"name":        {Type: docdb.TypeString},
			"when":        {Type: docdb.TypeString},
			"where":       {Type: docdb.TypeString},
			"description": {Type: docdb.TypeString},
		},
		Required: []string{"name", "when", "where", "description", "id"},
	}
}

// Scream returns "<name> screams: <WHAT>".
func Scream(r Record, what string) string {
	return r.Name + " screams: " + strings.ToUpper(what)
}

// DisplayName returns "<name> <where>".
func DisplayName(r Record) string {
	return r.Name + " " + r.Where
}

// CountAll returns the number of records in the collection.
func CountAll(ctx context.Context, c *Collection) (int, error) {
	docs, err := c.Find(ctx)
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}

	return len(docs), nil
}
