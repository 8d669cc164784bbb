package query

import (
	"sort"

	"github.com/docql/docql/model"
)

// Record is one typed result row: field name to a value already coerced to
// the declared field type. Records are built fresh per row; nothing is
// shared between them.
//
// A declared field missing from the raw document is not an error: Get
// reports it absent and Value returns nil. An explicit null is present
// with a nil value, so callers that care can tell the two apart.
type Record struct {
	values  map[string]any
	present map[string]bool
}

// Get returns the field value and whether the field was present in the
// raw document.
func (r Record) Get(name string) (any, bool) {
	return r.values[name], r.present[name]
}

// Has reports whether the field was present in the raw document.
func (r Record) Has(name string) bool { return r.present[name] }

// Value returns the field value, nil when absent or null.
func (r Record) Value(name string) any { return r.values[name] }

// Fields returns the record's field names, sorted.
func (r Record) Fields() []string {
	names := make([]string, 0, len(r.values))
	for n := range r.values {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Map returns a plain map copy of the record, for encoding and display.
func (r Record) Map() map[string]any {
	out := make(map[string]any, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

// Decoder reverses a backend's value coercion: wire representations back
// to caller-visible values. It is the inverse half of the backend's
// operator table, so coerce-then-decode must round-trip bit-exactly for
// every supported field type.
type Decoder interface {
	// DecodeField reverses the coercion for a declared field.
	DecodeField(f model.Field, wire any) (any, error)

	// DecodeValue maps a wire value with no declared type (operation
	// aliases, joined documents) to its caller-visible form by wire type
	// alone.
	DecodeValue(wire any) (any, error)
}

// Mapper assembles typed records from raw backend documents for one
// specification's output shape.
type Mapper struct {
	schema  []OutputField
	decoder Decoder
}

// NewMapper builds a mapper for the spec's output schema.
func NewMapper(spec *Spec, dec Decoder) *Mapper {
	return &Mapper{schema: spec.OutputSchema(), decoder: dec}
}

// MapRow converts one raw document. Keys in the document that are not part
// of the output schema are dropped silently; declared fields missing from
// the document map to the absent representation. A value that will not
// coerce back to its declared type fails with MappingError.
func (mp *Mapper) MapRow(raw map[string]any) (Record, error) {
	rec := Record{
		values:  make(map[string]any, len(mp.schema)),
		present: make(map[string]bool, len(mp.schema)),
	}
	for _, out := range mp.schema {
		wire, ok := raw[out.Key]
		if !ok {
			rec.values[out.Name] = nil
			continue
		}
		var (
			val any
			err error
		)
		switch {
		case out.Decl != nil:
			val, err = mp.decoder.DecodeField(*out.Decl, wire)
		default:
			val, err = mp.decoder.DecodeValue(wire)
		}
		if err != nil {
			return Record{}, &MappingError{Field: out.Name, Value: wire, Err: err}
		}
		rec.values[out.Name] = val
		rec.present[out.Name] = true
	}
	return rec, nil
}
