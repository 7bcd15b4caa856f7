package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Value is a sealed interface representing one table cell.
// Only Null, String, Int, Float and Bool implement it.
type Value interface {
	value() // Sealed - only these types implement it

	// String renders the value the way it is persisted in text columns.
	String() string
}

// Null represents a missing cell (SQL NULL).
type Null struct{}

func (Null) value() {}

// String implements Value.
func (Null) String() string { return "" }

// String is a text cell.
type String string

func (String) value() {}

// String implements Value.
func (s String) String() string { return string(s) }

// Int is an integer cell. Always int64.
type Int int64

func (Int) value() {}

// String implements Value.
func (i Int) String() string { return strconv.FormatInt(int64(i), 10) }

// Float is a floating point cell, used for diagnostic values.
type Float float64

func (Float) value() {}

// String implements Value.
// Integral floats render without a fractional part so "5" and 5.0 persist alike.
func (f Float) String() string {
	v := float64(f)
	if v == math.Trunc(v) && !math.IsInf(v, 0) && math.Abs(v) < 1e15 {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Bool is a boolean cell.
type Bool bool

func (Bool) value() {}

// String implements Value.
func (b Bool) String() string { return strconv.FormatBool(bool(b)) }

// IsNull reports whether v is nil or Null.
func IsNull(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(Null)
	return ok
}

// FromAny converts a Go value, typically a database/sql scan result, to a Value.
//
// Supported inputs: nil, Value, string, []byte, bool, all signed and unsigned
// integer kinds, float32, float64 and time.Time (rendered as RFC 3339).
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case string:
		return String(val), nil
	case []byte:
		return String(string(val)), nil
	case bool:
		return Bool(val), nil
	case int:
		return Int(val), nil
	case int8:
		return Int(val), nil
	case int16:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint8:
		return Int(val), nil
	case uint16:
		return Int(val), nil
	case uint32:
		return Int(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return nil, fmt.Errorf("integer out of int64 range: %d", val)
		}
		return Int(val), nil
	case float32:
		return Float(val), nil
	case float64:
		return Float(val), nil
	case time.Time:
		return String(val.UTC().Format(time.RFC3339Nano)), nil
	default:
		return nil, fmt.Errorf("unsupported cell type: %T", v)
	}
}

// MustFromAny is FromAny for literals in tests and fixtures. Panics on error.
func MustFromAny(v any) Value {
	val, err := FromAny(v)
	if err != nil {
		panic(err)
	}
	return val
}

// AsBool interprets a boolean-like cell.
//
// SQLite returns INTEGER 0/1 for boolean columns and Postgres returns bool,
// so both are accepted, as are the strings "true", "false", "1" and "0".
func AsBool(v Value) (bool, error) {
	switch val := v.(type) {
	case Bool:
		return bool(val), nil
	case Int:
		switch val {
		case 0:
			return false, nil
		case 1:
			return true, nil
		}
	case Float:
		switch val {
		case 0:
			return false, nil
		case 1:
			return true, nil
		}
	case String:
		switch strings.ToLower(strings.TrimSpace(string(val))) {
		case "true", "t", "1":
			return true, nil
		case "false", "f", "0":
			return false, nil
		}
	}
	return false, fmt.Errorf("not a boolean value: %s (%s)", describe(v), TypeName(v))
}

// AsString returns the text of a String cell.
// Int cells are accepted as identifiers as well; anything else is an error.
func AsString(v Value) (string, error) {
	switch val := v.(type) {
	case String:
		return string(val), nil
	case Int:
		return val.String(), nil
	}
	return "", fmt.Errorf("not a string value: %s (%s)", describe(v), TypeName(v))
}

// Param converts a Value to a native Go value for use as a SQL parameter.
func Param(v Value) any {
	switch val := v.(type) {
	case nil, Null:
		return nil
	case String:
		return string(val)
	case Int:
		return int64(val)
	case Float:
		return float64(val)
	case Bool:
		return bool(val)
	default:
		return nil
	}
}

// TypeName returns a short name for the dynamic type of a cell.
func TypeName(v Value) string {
	switch v.(type) {
	case nil:
		return "nil"
	case Null:
		return "null"
	case String:
		return "string"
	case Int:
		return "int"
	case Float:
		return "float"
	case Bool:
		return "bool"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func describe(v Value) string {
	if v == nil {
		return "<nil>"
	}
	return strconv.Quote(v.String())
}
