package mongodoc

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/docql/docql/model"
)

func TestCoerce_RoundTripPerFieldType(t *testing.T) {
	b := New()
	ts := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	cases := []struct {
		name  string
		field model.Field
		value any
	}{
		{"id", model.Field{Name: "id", Type: model.TypeID}, "64a000000000000000000001"},
		{"text", model.Field{Name: "t", Type: model.TypeText}, "café"},
		{"bool", model.Field{Name: "b", Type: model.TypeBool}, true},
		{"int", model.Field{Name: "n", Type: model.TypeInt}, int64(42)},
		{"float", model.Field{Name: "f", Type: model.TypeFloat}, 2.5},
		{"decimal", model.Field{Name: "d", Type: model.TypeDecimal}, decimal.RequireFromString("19.99")},
		{"datetime", model.Field{Name: "ts", Type: model.TypeDateTime}, ts},
		{"list", model.Field{Name: "l", Type: model.TypeList}, []any{"a", int64(1), true}},
		{"null", model.Field{Name: "t", Type: model.TypeText}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			wire, err := coerceField(tc.value, tc.field.Type)
			require.NoError(t, err)
			back, err := b.DecodeField(tc.field, wire)
			require.NoError(t, err)
			if d, ok := tc.value.(decimal.Decimal); ok {
				require.IsType(t, decimal.Decimal{}, back)
				assert.True(t, d.Equal(back.(decimal.Decimal)))
				return
			}
			assert.Equal(t, tc.value, back)
		})
	}
}

func TestCoerce_TextNormalizes(t *testing.T) {
	// "é" as combining sequence and as precomposed character coerce to
	// the same wire bytes.
	composed, err := coerceField("café", model.TypeText)
	require.NoError(t, err)
	precomposed, err := coerceField("café", model.TypeText)
	require.NoError(t, err)
	assert.Equal(t, precomposed, composed)
}

func TestCoerce_IntWidensToInt64(t *testing.T) {
	wire, err := coerceField(7, model.TypeInt)
	require.NoError(t, err)
	assert.Equal(t, int64(7), wire)
}

func TestCoerce_DatetimeTruncatesToMillisUTC(t *testing.T) {
	loc := time.FixedZone("X", 3*3600)
	in := time.Date(2025, 1, 2, 12, 0, 0, 456789123, loc)
	wire, err := coerceField(in, model.TypeDateTime)
	require.NoError(t, err)
	dt := wire.(primitive.DateTime)
	assert.Equal(t, in.UTC().Truncate(time.Millisecond), dt.Time().UTC())
}

func TestCoerce_BadIDHex(t *testing.T) {
	_, err := coerceField("not-hex", model.TypeID)
	assert.Error(t, err)
}

func TestCoerce_TypeMismatch(t *testing.T) {
	_, err := coerceField("yes", model.TypeBool)
	assert.Error(t, err)
	_, err = coerceField(3.5, model.TypeInt)
	assert.Error(t, err)
}

func TestDecodeField_Int32Widens(t *testing.T) {
	b := New()
	v, err := b.DecodeField(model.Field{Name: "n", Type: model.TypeInt}, int32(9))
	require.NoError(t, err)
	assert.Equal(t, int64(9), v)
}

func TestDecodeValue_Untyped(t *testing.T) {
	b := New()
	oid, _ := primitive.ObjectIDFromHex("64a000000000000000000001")

	v, err := b.DecodeValue(oid)
	require.NoError(t, err)
	assert.Equal(t, "64a000000000000000000001", v)

	v, err = b.DecodeValue(primitive.NewDateTimeFromTime(time.Unix(1700000000, 0)))
	require.NoError(t, err)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), v)

	v, err = b.DecodeValue(int32(3))
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)
}

func TestDecodeValue_JoinedDocument(t *testing.T) {
	b := New()
	oid, _ := primitive.ObjectIDFromHex("64a000000000000000000002")
	v, err := b.DecodeValue(bson.A{
		bson.M{"name": "Ada", "ref": oid},
	})
	require.NoError(t, err)
	assert.Equal(t, []any{
		map[string]any{"name": "Ada", "ref": "64a000000000000000000002"},
	}, v)
}

func TestDecodeValue_Unrepresentable(t *testing.T) {
	b := New()
	_, err := b.DecodeValue(make(chan int))
	assert.Error(t, err)
}
