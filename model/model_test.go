package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldStorageName(t *testing.T) {
	assert.Equal(t, "status", Field{Name: "status", Type: TypeText}.StorageName())
	assert.Equal(t, "_id", Field{Name: "id", Type: TypeID, Storage: "_id"}.StorageName())
}

func TestFieldTypeValid(t *testing.T) {
	for _, ft := range []FieldType{TypeID, TypeText, TypeBool, TypeInt, TypeFloat, TypeDecimal, TypeDateTime, TypeList} {
		assert.True(t, ft.Valid(), "%s should be valid", ft)
	}
	assert.False(t, FieldType("varchar").Valid())
	assert.False(t, FieldType("").Valid())
}

func TestNewValidatesDeclarations(t *testing.T) {
	m, err := New("order", "orders",
		Field{Name: "id", Type: TypeID, Storage: "_id"},
		Field{Name: "qty", Type: TypeInt},
	)
	require.NoError(t, err)

	f, ok := m.Lookup("qty")
	require.True(t, ok)
	assert.Equal(t, TypeInt, f.Type)

	_, ok = m.Lookup("missing")
	assert.False(t, ok)

	assert.Equal(t, []string{"id", "qty"}, m.FieldNames())
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		model   *Model
		wantErr string
	}{
		{
			name:    "no name",
			model:   &Model{Collection: "c", Fields: []Field{{Name: "a", Type: TypeInt}}},
			wantErr: "without a name",
		},
		{
			name:    "no collection",
			model:   &Model{Name: "m", Fields: []Field{{Name: "a", Type: TypeInt}}},
			wantErr: "without a collection",
		},
		{
			name:    "no fields",
			model:   &Model{Name: "m", Collection: "c"},
			wantErr: "declares no fields",
		},
		{
			name:    "unnamed field",
			model:   &Model{Name: "m", Collection: "c", Fields: []Field{{Type: TypeInt}}},
			wantErr: "field without a name",
		},
		{
			name:    "unknown type",
			model:   &Model{Name: "m", Collection: "c", Fields: []Field{{Name: "a", Type: "varchar"}}},
			wantErr: "unknown type",
		},
		{
			name: "duplicate field",
			model: &Model{Name: "m", Collection: "c", Fields: []Field{
				{Name: "a", Type: TypeInt},
				{Name: "a", Type: TypeText},
			}},
			wantErr: "duplicate field",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.model.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMustNewPanicsOnBadDeclaration(t *testing.T) {
	assert.Panics(t, func() {
		MustNew("m", "")
	})
}

func TestRegistry(t *testing.T) {
	order := MustNew("order", "orders", Field{Name: "id", Type: TypeID, Storage: "_id"})
	customer := MustNew("customer", "customers", Field{Name: "id", Type: TypeID, Storage: "_id"})

	r, err := NewRegistry(order, customer)
	require.NoError(t, err)

	got, ok := r.Get("order")
	require.True(t, ok)
	assert.Equal(t, "orders", got.Collection)

	_, ok = r.Get("invoice")
	assert.False(t, ok)

	assert.Equal(t, []string{"customer", "order"}, r.Names())
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	order := MustNew("order", "orders", Field{Name: "id", Type: TypeID})

	_, err := NewRegistry(order, order)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate model")
}
