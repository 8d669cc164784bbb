package mongodoc

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/text/unicode/norm"

	"github.com/docql/docql/model"
)

// EncodeField converts a caller-visible value to the wire representation
// for f's declared type. Fixture loaders use it to seed stores with the
// same bytes a production writer would produce.
func EncodeField(f model.Field, v any) (any, error) {
	return coerceField(v, f.Type)
}

// EncodeDocument converts a caller-visible value map to a wire document,
// resolving declared names to storage keys. Unknown names are rejected.
func EncodeDocument(m *model.Model, vals map[string]any) (bson.M, error) {
	doc := make(bson.M, len(vals))
	for name, v := range vals {
		f, ok := m.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("model %s has no field %q", m.Name, name)
		}
		w, err := coerceField(v, f.Type)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", name, err)
		}
		doc[f.StorageName()] = w
	}
	return doc, nil
}

// coerceField converts a caller-visible value to its wire representation
// for the declared field type. Nil passes through as null for every type.
// The conversion is total over the supported type set and bit-exact with
// the decode path: decodeField(coerceField(v)) == v for every
// representable v.
func coerceField(v any, t model.FieldType) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case model.TypeID:
		switch id := v.(type) {
		case string:
			oid, err := primitive.ObjectIDFromHex(id)
			if err != nil {
				return nil, fmt.Errorf("coerce id %q: %w", id, err)
			}
			return oid, nil
		case primitive.ObjectID:
			return id, nil
		}
	case model.TypeText:
		if s, ok := v.(string); ok {
			// NFC keeps byte-level equality independent of how the caller
			// composed the string.
			return norm.NFC.String(s), nil
		}
	case model.TypeBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case model.TypeInt:
		switch n := v.(type) {
		case int:
			return int64(n), nil
		case int32:
			return int64(n), nil
		case int64:
			return n, nil
		}
	case model.TypeFloat:
		switch n := v.(type) {
		case float32:
			return float64(n), nil
		case float64:
			return n, nil
		case int:
			return float64(n), nil
		}
	case model.TypeDecimal:
		switch d := v.(type) {
		case decimal.Decimal:
			d128, err := primitive.ParseDecimal128(d.String())
			if err != nil {
				return nil, fmt.Errorf("coerce decimal %s: %w", d, err)
			}
			return d128, nil
		case string:
			d128, err := primitive.ParseDecimal128(d)
			if err != nil {
				return nil, fmt.Errorf("coerce decimal %q: %w", d, err)
			}
			return d128, nil
		}
	case model.TypeDateTime:
		switch ts := v.(type) {
		case time.Time:
			// The wire type carries millisecond precision in UTC;
			// representable values are exactly those.
			return primitive.NewDateTimeFromTime(ts.UTC()), nil
		case primitive.DateTime:
			return ts, nil
		}
	case model.TypeList:
		if items, ok := v.([]any); ok {
			out := make(bson.A, len(items))
			for i, item := range items {
				w, err := coerceScalar(item)
				if err != nil {
					return nil, fmt.Errorf("list element %d: %w", i, err)
				}
				out[i] = w
			}
			return out, nil
		}
	}
	return nil, fmt.Errorf("cannot coerce %T to %s", v, t)
}

// coerceScalar converts a value with no declared type by its Go type
// alone. Used for list elements and for alias namespaces (having clauses)
// where no field declaration exists.
func coerceScalar(v any) (any, error) {
	switch s := v.(type) {
	case nil:
		return nil, nil
	case string:
		return norm.NFC.String(s), nil
	case bool:
		return s, nil
	case int:
		return int64(s), nil
	case int32:
		return int64(s), nil
	case int64:
		return s, nil
	case float32:
		return float64(s), nil
	case float64:
		return s, nil
	case time.Time:
		return primitive.NewDateTimeFromTime(s.UTC()), nil
	case decimal.Decimal:
		d128, err := primitive.ParseDecimal128(s.String())
		if err != nil {
			return nil, fmt.Errorf("coerce decimal %s: %w", s, err)
		}
		return d128, nil
	case primitive.ObjectID, primitive.DateTime, primitive.Decimal128:
		return s, nil
	}
	return nil, fmt.Errorf("cannot coerce %T", v)
}

// DecodeField reverses coerceField for a declared field. Part of the
// query.Decoder contract.
func (b *Backend) DecodeField(f model.Field, wire any) (any, error) {
	if wire == nil {
		return nil, nil
	}
	switch f.Type {
	case model.TypeID:
		if oid, ok := wire.(primitive.ObjectID); ok {
			return oid.Hex(), nil
		}
	case model.TypeText:
		if s, ok := wire.(string); ok {
			return s, nil
		}
	case model.TypeBool:
		if v, ok := wire.(bool); ok {
			return v, nil
		}
	case model.TypeInt:
		switch n := wire.(type) {
		case int32:
			return int64(n), nil
		case int64:
			return n, nil
		}
	case model.TypeFloat:
		switch n := wire.(type) {
		case float64:
			return n, nil
		case int32:
			return float64(n), nil
		case int64:
			return float64(n), nil
		}
	case model.TypeDecimal:
		if d128, ok := wire.(primitive.Decimal128); ok {
			d, err := decimal.NewFromString(d128.String())
			if err != nil {
				return nil, fmt.Errorf("decode decimal %s: %w", d128, err)
			}
			return d, nil
		}
	case model.TypeDateTime:
		if dt, ok := wire.(primitive.DateTime); ok {
			return dt.Time().UTC(), nil
		}
	case model.TypeList:
		switch items := wire.(type) {
		case bson.A:
			return decodeList(items)
		case []any:
			return decodeList(items)
		}
	}
	return nil, fmt.Errorf("wire value %T does not decode as %s", wire, f.Type)
}

// DecodeValue reverses coercion for values with no declared type:
// operation aliases and joined documents. Part of the query.Decoder
// contract.
func (b *Backend) DecodeValue(wire any) (any, error) {
	switch v := wire.(type) {
	case nil, string, bool, int64, float64:
		return v, nil
	case int32:
		return int64(v), nil
	case primitive.ObjectID:
		return v.Hex(), nil
	case primitive.DateTime:
		return v.Time().UTC(), nil
	case primitive.Decimal128:
		d, err := decimal.NewFromString(v.String())
		if err != nil {
			return nil, fmt.Errorf("decode decimal %s: %w", v, err)
		}
		return d, nil
	case bson.A:
		return decodeList(v)
	case []any:
		return decodeList(v)
	case bson.M:
		return b.decodeDoc(v)
	case map[string]any:
		return b.decodeDoc(v)
	case bson.D:
		m := make(map[string]any, len(v))
		for _, e := range v {
			m[e.Key] = e.Value
		}
		return b.decodeDoc(m)
	}
	return nil, fmt.Errorf("wire value %T has no caller representation", wire)
}

func decodeList(items []any) ([]any, error) {
	var b Backend
	out := make([]any, len(items))
	for i, item := range items {
		v, err := b.DecodeValue(item)
		if err != nil {
			return nil, fmt.Errorf("list element %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func (b *Backend) decodeDoc(doc map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		dv, err := b.DecodeValue(v)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", k, err)
		}
		out[k] = dv
	}
	return out, nil
}
