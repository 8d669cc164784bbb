// Package model carries the field metadata the query engine consumes from
// the surrounding system: for every declared field, its type and the name
// it is stored under in the backing collection. The engine never declares
// or validates models itself; this package is the contract plus loaders
// for declaration files.
package model

import (
	"fmt"
	"sort"
)

// FieldType is the closed set of declared field types the engine can
// coerce. Every type has a wire representation and an inverse mapping in
// each backend's operator table.
type FieldType string

const (
	TypeID       FieldType = "id"       // identifier reference
	TypeText     FieldType = "text"     // unicode text
	TypeBool     FieldType = "bool"     // boolean
	TypeInt      FieldType = "int"      // 64-bit integer
	TypeFloat    FieldType = "float"    // 64-bit float
	TypeDecimal  FieldType = "decimal"  // arbitrary-precision decimal
	TypeDateTime FieldType = "datetime" // point in time, millisecond precision
	TypeList     FieldType = "list"     // ordered list of scalars
)

// Valid reports whether t is a known field type.
func (t FieldType) Valid() bool {
	switch t {
	case TypeID, TypeText, TypeBool, TypeInt, TypeFloat,
		TypeDecimal, TypeDateTime, TypeList:
		return true
	}
	return false
}

// Field declares one typed field of a model.
type Field struct {
	// Name is the caller-visible field name used in domains, projections
	// and result records.
	Name string `json:"name" yaml:"name"`

	// Type is the declared field type.
	Type FieldType `json:"type" yaml:"type"`

	// Storage is the document key the field is stored under. Empty means
	// same as Name.
	Storage string `json:"storage,omitempty" yaml:"storage,omitempty"`
}

// StorageName returns the document key for the field.
func (f Field) StorageName() string {
	if f.Storage != "" {
		return f.Storage
	}
	return f.Name
}

// Model is the field set of one collection.
type Model struct {
	// Name identifies the model.
	Name string `json:"name" yaml:"name"`

	// Collection is the backing collection name.
	Collection string `json:"collection" yaml:"collection"`

	// Fields lists the declared fields in declaration order.
	Fields []Field `json:"fields" yaml:"fields"`

	index map[string]Field
}

// New builds a model and validates its declarations.
func New(name, collection string, fields ...Field) (*Model, error) {
	m := &Model{Name: name, Collection: collection, Fields: fields}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// MustNew is New for fixtures; it panics on a bad declaration.
func MustNew(name, collection string, fields ...Field) *Model {
	m, err := New(name, collection, fields...)
	if err != nil {
		panic(err)
	}
	return m
}

// Validate checks the declaration set and builds the lookup index.
func (m *Model) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("model without a name")
	}
	if m.Collection == "" {
		return fmt.Errorf("model %s without a collection", m.Name)
	}
	if len(m.Fields) == 0 {
		return fmt.Errorf("model %s declares no fields", m.Name)
	}
	idx := make(map[string]Field, len(m.Fields))
	for _, f := range m.Fields {
		if f.Name == "" {
			return fmt.Errorf("model %s: field without a name", m.Name)
		}
		if !f.Type.Valid() {
			return fmt.Errorf("model %s: field %s has unknown type %q", m.Name, f.Name, f.Type)
		}
		if _, dup := idx[f.Name]; dup {
			return fmt.Errorf("model %s: duplicate field %s", m.Name, f.Name)
		}
		idx[f.Name] = f
	}
	m.index = idx
	return nil
}

// Lookup resolves a declared field by name.
func (m *Model) Lookup(name string) (Field, bool) {
	if m.index == nil {
		if err := m.Validate(); err != nil {
			return Field{}, false
		}
	}
	f, ok := m.index[name]
	return f, ok
}

// FieldNames returns the declared field names in declaration order.
func (m *Model) FieldNames() []string {
	names := make([]string, len(m.Fields))
	for i, f := range m.Fields {
		names[i] = f.Name
	}
	return names
}

// Registry holds the models known to one engine instance.
type Registry struct {
	models map[string]*Model
}

// NewRegistry builds a registry from models.
func NewRegistry(models ...*Model) (*Registry, error) {
	r := &Registry{models: make(map[string]*Model, len(models))}
	for _, m := range models {
		if err := m.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.models[m.Name]; dup {
			return nil, fmt.Errorf("duplicate model %s", m.Name)
		}
		r.models[m.Name] = m
	}
	return r, nil
}

// Get resolves a model by name.
func (r *Registry) Get(name string) (*Model, bool) {
	m, ok := r.models[name]
	return m, ok
}

// Names returns the registered model names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.models))
	for n := range r.models {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
