package docdb

import (
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"slices"
	"sort"
	"unicode/utf8"
)

// PropertyType is a JSON primitive type a property may declare.
type PropertyType string

// Recognized property types.
const (
	TypeString  PropertyType = "string"
	TypeInteger PropertyType = "integer"
	TypeNumber  PropertyType = "number"
	TypeBoolean PropertyType = "boolean"
)

func (t PropertyType) valid() bool {
	switch t {
	case TypeString, TypeInteger, TypeNumber, TypeBoolean:
		return true
	default:
		return false
	}
}

// Property declares one top-level document field.
type Property struct {
	Type PropertyType `json:"type"`

	// MaxLength limits string length in characters. Zero means unlimited.
	// Required for the primary key.
	MaxLength int `json:"maxLength,omitempty"`
}

// Schema describes the shape of the documents in one collection.
//
// Documents are flat JSON objects: every field is a primitive declared in
// Properties. Version is bumped when the shape changes; registering a
// changed schema under an unchanged version is a conflict.
type Schema struct {
	Title       string              `json:"title"`
	Description string              `json:"description,omitempty"`
	Version     int                 `json:"version"`
	PrimaryKey  string              `json:"primaryKey"`
	Properties  map[string]Property `json:"properties"`
	Required    []string            `json:"required"`
}

// Validate reports whether the schema can back a collection.
//
// Fails when the primary key is missing, undeclared, not required, not a
// bounded string, when a property has an unrecognized type, or when a
// required field is not declared.
func (s *Schema) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: schema is nil", ErrInvalidSchema)
	}

	if s.Version < 0 {
		return fmt.Errorf("%w: version %d is negative", ErrInvalidSchema, s.Version)
	}

	if s.PrimaryKey == "" {
		return fmt.Errorf("%w: primaryKey is required", ErrInvalidSchema)
	}

	if len(s.Properties) == 0 {
		return fmt.Errorf("%w: no properties declared", ErrInvalidSchema)
	}

	for _, name := range s.propertyNames() {
		if !isValidFieldName(name) {
			return fmt.Errorf("%w: invalid property name %q", ErrInvalidSchema, name)
		}

		prop := s.Properties[name]
		if !prop.Type.valid() {
			return fmt.Errorf("%w: property %q has unrecognized type %q", ErrInvalidSchema, name, prop.Type)
		}

		if prop.MaxLength < 0 {
			return fmt.Errorf("%w: property %q has negative maxLength", ErrInvalidSchema, name)
		}

		if prop.MaxLength > 0 && prop.Type != TypeString {
			return fmt.Errorf("%w: property %q: maxLength only applies to strings", ErrInvalidSchema, name)
		}
	}

	pk, ok := s.Properties[s.PrimaryKey]
	if !ok {
		return fmt.Errorf("%w: primaryKey %q is not a declared property", ErrInvalidSchema, s.PrimaryKey)
	}

	if pk.Type != TypeString {
		return fmt.Errorf("%w: primaryKey %q must be a string", ErrInvalidSchema, s.PrimaryKey)
	}

	if pk.MaxLength == 0 {
		return fmt.Errorf("%w: primaryKey %q must set maxLength", ErrInvalidSchema, s.PrimaryKey)
	}

	if !slices.Contains(s.Required, s.PrimaryKey) {
		return fmt.Errorf("%w: primaryKey %q must be required", ErrInvalidSchema, s.PrimaryKey)
	}

	seen := make(map[string]struct{}, len(s.Required))

	for _, name := range s.Required {
		if _, ok := s.Properties[name]; !ok {
			return fmt.Errorf("%w: required field %q is not declared", ErrInvalidSchema, name)
		}

		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: required field %q listed twice", ErrInvalidSchema, name)
		}

		seen[name] = struct{}{}
	}

	return nil
}

// ValidateDocument checks a decoded document against the schema.
// Numbers must be decoded as [json.Number].
func (s *Schema) ValidateDocument(doc map[string]any) error {
	var errs []error

	for _, name := range s.Required {
		if _, ok := doc[name]; !ok {
			errs = append(errs, fmt.Errorf("missing required field %q", name))
		}
	}

	names := make([]string, 0, len(doc))
	for name := range doc {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		prop, ok := s.Properties[name]
		if !ok {
			errs = append(errs, fmt.Errorf("unknown field %q", name))

			continue
		}

		err := prop.check(doc[name])
		if err != nil {
			errs = append(errs, fmt.Errorf("field %q: %w", name, err))
		}
	}

	if len(errs) == 0 {
		return nil
	}

	return fmt.Errorf("%w: %w", ErrValidation, errors.Join(errs...))
}

func (p Property) check(value any) error {
	if value == nil {
		return errors.New("null value")
	}

	switch p.Type {
	case TypeString:
		str, ok := value.(string)
		if !ok {
			return fmt.Errorf("want string, got %T", value)
		}

		if p.MaxLength > 0 && utf8.RuneCountInString(str) > p.MaxLength {
			return fmt.Errorf("length %d exceeds maxLength %d", utf8.RuneCountInString(str), p.MaxLength)
		}
	case TypeInteger:
		num, ok := value.(json.Number)
		if !ok {
			return fmt.Errorf("want integer, got %T", value)
		}

		if _, err := num.Int64(); err != nil {
			return fmt.Errorf("want integer, got %s", num)
		}
	case TypeNumber:
		if _, ok := value.(json.Number); !ok {
			return fmt.Errorf("want number, got %T", value)
		}
	case TypeBoolean:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("want boolean, got %T", value)
		}
	}

	return nil
}

// Fingerprint hashes the schema structure. Order-independent: properties
// and required fields are sorted before hashing. Title and description are
// not part of the structure.
func (s *Schema) Fingerprint() uint32 {
	h := fnv.New32a()

	// fnv Write never returns an error, but we explicitly ignore for lint.
	_, _ = h.Write([]byte(s.PrimaryKey))
	_, _ = h.Write([]byte{0})

	for _, name := range s.propertyNames() {
		prop := s.Properties[name]
		_, _ = h.Write([]byte(name))
		_, _ = h.Write([]byte{0})
		_, _ = h.Write([]byte(prop.Type))
		_, _ = fmt.Fprintf(h, ":%d;", prop.MaxLength)
	}

	required := slices.Clone(s.Required)
	sort.Strings(required)

	for _, name := range required {
		_, _ = h.Write([]byte(name))
		_, _ = h.Write([]byte{1})
	}

	return h.Sum32()
}

func (s *Schema) propertyNames() []string {
	names := make([]string, 0, len(s.Properties))
	for name := range s.Properties {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// isValidIdentifier reports whether s is usable as a collection name.
// Collection names become part of table names.
func isValidIdentifier(s string) bool {
	if s == "" {
		return false
	}

	for _, r := range s {
		if (r < 'a' || r > 'z') && r != '_' {
			return false
		}
	}

	return true
}

func isValidFieldName(s string) bool {
	if s == "" {
		return false
	}

	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}

	return true
}
