package docdb_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/todo-sync/pkg/docdb"
)

func Test_Schema_Validate_Returns_Nil_When_Schema_Is_Well_Formed(t *testing.T) {
	t.Parallel()

	s := noteSchema()
	require.NoError(t, s.Validate())
}

func Test_Schema_Validate_Returns_ErrInvalidSchema_When_Malformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(s *docdb.Schema)
		want   string
	}{
		{
			name:   "empty primary key",
			mutate: func(s *docdb.Schema) { s.PrimaryKey = "" },
			want:   "primaryKey is required",
		},
		{
			name:   "undeclared primary key",
			mutate: func(s *docdb.Schema) { s.PrimaryKey = "uuid" },
			want:   "not a declared property",
		},
		{
			name:   "primary key not required",
			mutate: func(s *docdb.Schema) { s.Required = []string{"title", "stars", "done"} },
			want:   "must be required",
		},
		{
			name: "primary key without maxLength",
			mutate: func(s *docdb.Schema) {
				s.Properties["id"] = docdb.Property{Type: docdb.TypeString}
			},
			want: "must set maxLength",
		},
		{
			name: "primary key not a string",
			mutate: func(s *docdb.Schema) {
				s.Properties["id"] = docdb.Property{Type: docdb.TypeInteger}
			},
			want: "must be a string",
		},
		{
			name: "unrecognized type",
			mutate: func(s *docdb.Schema) {
				s.Properties["title"] = docdb.Property{Type: "text"}
			},
			want: "unrecognized type",
		},
		{
			name:   "required field not declared",
			mutate: func(s *docdb.Schema) { s.Required = append(s.Required, "owner") },
			want:   `required field "owner" is not declared`,
		},
		{
			name:   "required field listed twice",
			mutate: func(s *docdb.Schema) { s.Required = append(s.Required, "title") },
			want:   "listed twice",
		},
		{
			name: "maxLength on a boolean",
			mutate: func(s *docdb.Schema) {
				s.Properties["done"] = docdb.Property{Type: docdb.TypeBoolean, MaxLength: 3}
			},
			want: "maxLength only applies to strings",
		},
		{
			name: "invalid property name",
			mutate: func(s *docdb.Schema) {
				s.Properties["due-at"] = docdb.Property{Type: docdb.TypeString}
			},
			want: "invalid property name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := noteSchema()
			tt.mutate(&s)

			err := s.Validate()
			require.ErrorIs(t, err, docdb.ErrInvalidSchema)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func Test_Schema_ValidateDocument_Reports_Every_Problem_When_Document_Is_Invalid(t *testing.T) {
	t.Parallel()

	s := noteSchema()

	doc := map[string]any{
		"id":    "n1",
		"title": strings.Repeat("x", 41),
		"stars": json.Number("1.5"),
		"color": "red",
	}

	err := s.ValidateDocument(doc)
	require.ErrorIs(t, err, docdb.ErrValidation)

	msg := err.Error()
	assert.Contains(t, msg, `missing required field "done"`)
	assert.Contains(t, msg, `unknown field "color"`)
	assert.Contains(t, msg, "exceeds maxLength 40")
	assert.Contains(t, msg, "want integer")
}

func Test_Schema_ValidateDocument_Counts_Characters_When_String_Is_Multibyte(t *testing.T) {
	t.Parallel()

	s := noteSchema()

	doc := map[string]any{
		"id":    "n1",
		"title": strings.Repeat("é", 40),
		"stars": json.Number("3"),
		"done":  false,
	}

	require.NoError(t, s.ValidateDocument(doc))
}

func Test_Schema_Fingerprint_Ignores_Order_And_Title_When_Structure_Is_Equal(t *testing.T) {
	t.Parallel()

	a := noteSchema()
	b := noteSchema()
	b.Title = "renamed"
	b.Description = "same structure"
	b.Required = []string{"done", "stars", "title", "id"}

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())

	c := noteSchema()
	c.Properties["title"] = docdb.Property{Type: docdb.TypeString, MaxLength: 41}

	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}
