package todo

import (
	"fmt"
	"strings"
)

// Form field names, as accepted by [Form.Set].
const (
	FieldName        = "name"
	FieldWhen        = "when"
	FieldWhere       = "where"
	FieldDescription = "description"
)

// Fields lists the editable fields in display order.
var Fields = []string{FieldName, FieldWhen, FieldWhere, FieldDescription}

// Form holds the editable fields of a record. The zero value is the empty
// form.
type Form struct {
	Name        string `json:"name"`
	When        string `json:"when"`
	Where       string `json:"where"`
	Description string `json:"description"`
}

// CreateInput is the payload of a remote create.
type CreateInput struct {
	Name        string `json:"name"`
	When        string `json:"when"`
	Where       string `json:"where"`
	Description string `json:"description"`
}

// UpdateInput is the payload of a remote update.
type UpdateInput struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	When        string `json:"when"`
	Where       string `json:"where"`
	Description string `json:"description"`
}

// FormFrom copies the editable fields of r.
func FormFrom(r Record) Form {
	return Form{Name: r.Name, When: r.When, Where: r.Where, Description: r.Description}
}

// Set assigns one field by name. Unknown names are an error.
func (f *Form) Set(field, value string) error {
	switch strings.ToLower(field) {
	case FieldName:
		f.Name = value
	case FieldWhen:
		f.When = value
	case FieldWhere:
		f.Where = value
	case FieldDescription:
		f.Description = value
	default:
		return fmt.Errorf("unknown field %q (want one of %s)", field, strings.Join(Fields, ", "))
	}

	return nil
}

// Get returns one field by name, or "" for unknown names.
func (f Form) Get(field string) string {
	switch strings.ToLower(field) {
	case FieldName:
		return f.Name
	case FieldWhen:
		return f.When
	case FieldWhere:
		return f.Where
	case FieldDescription:
		return f.Description
	default:
		return ""
	}
}

// IsBlank reports whether every field is empty.
func (f Form) IsBlank() bool {
	return f == Form{}
}

// MergeOnto returns r with every non-empty form field applied. Blank
// fields keep the record's value. The id is never changed.
func (f Form) MergeOnto(r Record) Record {
	if f.Name != "" {
		r.Name = f.Name
	}

	if f.When != "" {
		r.When = f.When
	}

	if f.Where != "" {
		r.Where = f.Where
	}

	if f.Description != "" {
		r.Description = f.Description
	}

	return r
}

// CreateInput returns the form as a remote create payload.
func (f Form) CreateInput() CreateInput {
	return CreateInput(f)
}

// UpdateInputFor returns the payload that sets r's remote twin to r's values.
func UpdateInputFor(r Record) UpdateInput {
	return UpdateInput(r)
}

// WithID returns the record a successful create stores locally: the form's
// values under the remote-assigned id.
func (f Form) WithID(id string) Record {
	return Record{ID: id, Name: f.Name, When: f.When, Where: f.Where, Description: f.Description}
}
