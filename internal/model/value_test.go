package model

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromAny(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		in   any
		want Value
	}{
		{"nil", nil, Null{}},
		{"string", "abc", String("abc")},
		{"bytes", []byte("abc"), String("abc")},
		{"bool", true, Bool(true)},
		{"int", 5, Int(5)},
		{"int32", int32(7), Int(7)},
		{"int64", int64(-3), Int(-3)},
		{"uint8", uint8(9), Int(9)},
		{"float64", 1.5, Float(1.5)},
		{"float32", float32(0.5), Float(0.5)},
		{"time", ts, String("2024-03-01T12:00:00Z")},
		{"value passthrough", Int(4), Int(4)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromAny(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromAny_Rejects(t *testing.T) {
	_, err := FromAny(struct{}{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported cell type")

	_, err = FromAny(uint64(math.MaxUint64))
	require.Error(t, err)
}

func TestAsBool(t *testing.T) {
	truthy := []Value{Bool(true), Int(1), Float(1), String("true"), String("T"), String("1")}
	for _, v := range truthy {
		got, err := AsBool(v)
		require.NoError(t, err, "value %v", v)
		assert.True(t, got, "value %v", v)
	}

	falsy := []Value{Bool(false), Int(0), Float(0), String("false"), String(" f "), String("0")}
	for _, v := range falsy {
		got, err := AsBool(v)
		require.NoError(t, err, "value %v", v)
		assert.False(t, got, "value %v", v)
	}

	for _, v := range []Value{Int(2), String("yes"), Null{}, nil, Float(0.5)} {
		_, err := AsBool(v)
		assert.Error(t, err, "value %v", v)
	}
}

func TestAsString(t *testing.T) {
	s, err := AsString(String("e1"))
	require.NoError(t, err)
	assert.Equal(t, "e1", s)

	s, err = AsString(Int(42))
	require.NoError(t, err)
	assert.Equal(t, "42", s)

	_, err = AsString(Bool(true))
	assert.Error(t, err)

	_, err = AsString(Null{})
	assert.Error(t, err)
}

func TestValueString(t *testing.T) {
	assert.Equal(t, "", Null{}.String())
	assert.Equal(t, "x", String("x").String())
	assert.Equal(t, "-12", Int(-12).String())
	assert.Equal(t, "5", Float(5).String())
	assert.Equal(t, "2.25", Float(2.25).String())
	assert.Equal(t, "true", Bool(true).String())
}

func TestParam(t *testing.T) {
	assert.Nil(t, Param(nil))
	assert.Nil(t, Param(Null{}))
	assert.Equal(t, "a", Param(String("a")))
	assert.Equal(t, int64(3), Param(Int(3)))
	assert.Equal(t, 1.25, Param(Float(1.25)))
	assert.Equal(t, true, Param(Bool(true)))
}

func TestTypeName(t *testing.T) {
	assert.Equal(t, "nil", TypeName(nil))
	assert.Equal(t, "null", TypeName(Null{}))
	assert.Equal(t, "string", TypeName(String("")))
	assert.Equal(t, "int", TypeName(Int(0)))
	assert.Equal(t, "float", TypeName(Float(0)))
	assert.Equal(t, "bool", TypeName(Bool(false)))
}

func TestIsNull(t *testing.T) {
	assert.True(t, IsNull(nil))
	assert.True(t, IsNull(Null{}))
	assert.False(t, IsNull(String("")))
}

func TestNormalizeID(t *testing.T) {
	// "é" as e + combining acute accent normalizes to the precomposed form.
	assert.Equal(t, "\u00e9", NormalizeID(" e\u0301 "))
	assert.Equal(t, "plain", NormalizeID("plain"))
}
