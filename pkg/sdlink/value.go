// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sdlink

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Type is the one-byte type tag that precedes every record on the wire
type Type uint8

// Type tags
const (
	TypeUndefined Type = iota
	TypeInt8
	TypeUint8
	TypeInt16
	TypeUint16
	TypeInt32
	TypeUint32
	TypeFloat32
	TypeFloat64
	TypeString
)

// Size returns the fixed wire width of a numeric type, 0 for strings
func (t Type) Size() int {
	switch t {
	case TypeInt8, TypeUint8:
		return 1
	case TypeInt16, TypeUint16:
		return 2
	case TypeInt32, TypeUint32, TypeFloat32:
		return 4
	case TypeFloat64:
		return 8
	default:
		return 0
	}
}

// Valid reports whether t is a tag that can appear in a payload
func (t Type) Valid() bool {
	return t >= TypeInt8 && t <= TypeString
}

// String returns the short type name used by the CLI field syntax
func (t Type) String() string {
	switch t {
	case TypeInt8:
		return "i8"
	case TypeUint8:
		return "u8"
	case TypeInt16:
		return "i16"
	case TypeUint16:
		return "u16"
	case TypeInt32:
		return "i32"
	case TypeUint32:
		return "u32"
	case TypeFloat32:
		return "f32"
	case TypeFloat64:
		return "f64"
	case TypeString:
		return "str"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// ParseType parses a short type name ("u16", "str", ...)
func ParseType(name string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "i8", "int8":
		return TypeInt8, nil
	case "u8", "uint8":
		return TypeUint8, nil
	case "i16", "int16":
		return TypeInt16, nil
	case "u16", "uint16":
		return TypeUint16, nil
	case "i32", "int32":
		return TypeInt32, nil
	case "u32", "uint32":
		return TypeUint32, nil
	case "f32", "float32", "float":
		return TypeFloat32, nil
	case "f64", "float64", "double":
		return TypeFloat64, nil
	case "str", "string", "s":
		return TypeString, nil
	}
	return TypeUndefined, fmt.Errorf("%w: %q", ErrUnknownType, name)
}

// Scalar is the set of Go types a record can hold
type Scalar interface {
	int8 | uint8 | int16 | uint16 | int32 | uint32 | float32 | float64 | string
}

// Value is a tagged union holding exactly one scalar.
// Numeric variants keep their bit pattern in bits, strings in str.
type Value struct {
	typ  Type
	bits uint64
	str  string
}

// Int8Value creates an int8 value
func Int8Value(v int8) Value { return Value{typ: TypeInt8, bits: uint64(uint8(v))} }

// Uint8Value creates a uint8 value
func Uint8Value(v uint8) Value { return Value{typ: TypeUint8, bits: uint64(v)} }

// Int16Value creates an int16 value
func Int16Value(v int16) Value { return Value{typ: TypeInt16, bits: uint64(uint16(v))} }

// Uint16Value creates a uint16 value
func Uint16Value(v uint16) Value { return Value{typ: TypeUint16, bits: uint64(v)} }

// Int32Value creates an int32 value
func Int32Value(v int32) Value { return Value{typ: TypeInt32, bits: uint64(uint32(v))} }

// Uint32Value creates a uint32 value
func Uint32Value(v uint32) Value { return Value{typ: TypeUint32, bits: uint64(v)} }

// Float32Value creates a float32 value
func Float32Value(v float32) Value {
	return Value{typ: TypeFloat32, bits: uint64(math.Float32bits(v))}
}

// Float64Value creates a float64 value
func Float64Value(v float64) Value { return Value{typ: TypeFloat64, bits: math.Float64bits(v)} }

// StringValue creates a string value
func StringValue(v string) Value { return Value{typ: TypeString, str: v} }

// ValueOf wraps any scalar in a Value with the matching type tag
func ValueOf[T Scalar](v T) Value {
	switch x := any(v).(type) {
	case int8:
		return Int8Value(x)
	case uint8:
		return Uint8Value(x)
	case int16:
		return Int16Value(x)
	case uint16:
		return Uint16Value(x)
	case int32:
		return Int32Value(x)
	case uint32:
		return Uint32Value(x)
	case float32:
		return Float32Value(x)
	case float64:
		return Float64Value(x)
	case string:
		return StringValue(x)
	}
	return Value{}
}

// TypeOf returns the type tag for the scalar type T
func TypeOf[T Scalar]() Type {
	var zero T
	return ValueOf(zero).typ
}

// valueAs converts v to T. The caller guarantees the tag matches.
func valueAs[T Scalar](v Value) T {
	var out T
	switch p := any(&out).(type) {
	case *int8:
		*p = v.Int8()
	case *uint8:
		*p = v.Uint8()
	case *int16:
		*p = v.Int16()
	case *uint16:
		*p = v.Uint16()
	case *int32:
		*p = v.Int32()
	case *uint32:
		*p = v.Uint32()
	case *float32:
		*p = v.Float32()
	case *float64:
		*p = v.Float64()
	case *string:
		*p = v.Str()
	}
	return out
}

// Type returns the value's type tag
func (v Value) Type() Type { return v.typ }

// IsZero reports whether v is the undefined value
func (v Value) IsZero() bool { return v.typ == TypeUndefined }

// Int8 returns the value as int8
func (v Value) Int8() int8 { return int8(v.bits) }

// Uint8 returns the value as uint8
func (v Value) Uint8() uint8 { return uint8(v.bits) }

// Int16 returns the value as int16
func (v Value) Int16() int16 { return int16(v.bits) }

// Uint16 returns the value as uint16
func (v Value) Uint16() uint16 { return uint16(v.bits) }

// Int32 returns the value as int32
func (v Value) Int32() int32 { return int32(v.bits) }

// Uint32 returns the value as uint32
func (v Value) Uint32() uint32 { return uint32(v.bits) }

// Float32 returns the value as float32
func (v Value) Float32() float32 { return math.Float32frombits(uint32(v.bits)) }

// Float64 returns the value as float64
func (v Value) Float64() float64 { return math.Float64frombits(v.bits) }

// Str returns the string variant
func (v Value) Str() string { return v.str }

// Len returns the number of value bytes on the wire
func (v Value) Len() int {
	if v.typ == TypeString {
		return len(v.str)
	}
	return v.typ.Size()
}

// Equal compares tag and bit pattern, so NaN equals an identical NaN
func (v Value) Equal(o Value) bool {
	return v.typ == o.typ && v.bits == o.bits && v.str == o.str
}

// Interface returns the value as a plain Go value
func (v Value) Interface() any {
	switch v.typ {
	case TypeInt8:
		return v.Int8()
	case TypeUint8:
		return v.Uint8()
	case TypeInt16:
		return v.Int16()
	case TypeUint16:
		return v.Uint16()
	case TypeInt32:
		return v.Int32()
	case TypeUint32:
		return v.Uint32()
	case TypeFloat32:
		return v.Float32()
	case TypeFloat64:
		return v.Float64()
	case TypeString:
		return v.str
	}
	return nil
}

// String formats the value for display
func (v Value) String() string {
	switch v.typ {
	case TypeInt8, TypeInt16, TypeInt32:
		return strconv.FormatInt(signExtend(v), 10)
	case TypeUint8, TypeUint16, TypeUint32:
		return strconv.FormatUint(v.bits, 10)
	case TypeFloat32:
		return strconv.FormatFloat(float64(v.Float32()), 'g', -1, 32)
	case TypeFloat64:
		return strconv.FormatFloat(v.Float64(), 'g', -1, 64)
	case TypeString:
		return strconv.Quote(v.str)
	}
	return "<undefined>"
}

func signExtend(v Value) int64 {
	switch v.typ {
	case TypeInt8:
		return int64(v.Int8())
	case TypeInt16:
		return int64(v.Int16())
	default:
		return int64(v.Int32())
	}
}

// appendWire appends the big-endian wire representation of the value part
func (v Value) appendWire(buf []byte) []byte {
	switch v.typ.Size() {
	case 1:
		return append(buf, byte(v.bits))
	case 2:
		return binary.BigEndian.AppendUint16(buf, uint16(v.bits))
	case 4:
		return binary.BigEndian.AppendUint32(buf, uint32(v.bits))
	case 8:
		return binary.BigEndian.AppendUint64(buf, v.bits)
	}
	return append(buf, v.str...)
}

// Bytes returns the wire representation of the value part
func (v Value) Bytes() []byte {
	return v.appendWire(make([]byte, 0, v.Len()))
}

// valueFromWire rebuilds a numeric value from exactly t.Size() bytes
func valueFromWire(t Type, b []byte) Value {
	switch len(b) {
	case 1:
		return Value{typ: t, bits: uint64(b[0])}
	case 2:
		return Value{typ: t, bits: uint64(binary.BigEndian.Uint16(b))}
	case 4:
		return Value{typ: t, bits: uint64(binary.BigEndian.Uint32(b))}
	case 8:
		return Value{typ: t, bits: binary.BigEndian.Uint64(b)}
	}
	return Value{}
}

// ParseValue parses text as a value of type t
func ParseValue(t Type, text string) (Value, error) {
	switch t {
	case TypeInt8, TypeInt16, TypeInt32:
		n, err := strconv.ParseInt(text, 0, t.Size()*8)
		if err != nil {
			return Value{}, fmt.Errorf("invalid %s %q: %w", t, text, err)
		}
		switch t {
		case TypeInt8:
			return Int8Value(int8(n)), nil
		case TypeInt16:
			return Int16Value(int16(n)), nil
		}
		return Int32Value(int32(n)), nil

	case TypeUint8, TypeUint16, TypeUint32:
		n, err := strconv.ParseUint(text, 0, t.Size()*8)
		if err != nil {
			return Value{}, fmt.Errorf("invalid %s %q: %w", t, text, err)
		}
		switch t {
		case TypeUint8:
			return Uint8Value(uint8(n)), nil
		case TypeUint16:
			return Uint16Value(uint16(n)), nil
		}
		return Uint32Value(uint32(n)), nil

	case TypeFloat32:
		f, err := strconv.ParseFloat(text, 32)
		if err != nil {
			return Value{}, fmt.Errorf("invalid %s %q: %w", t, text, err)
		}
		return Float32Value(float32(f)), nil

	case TypeFloat64:
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return Value{}, fmt.Errorf("invalid %s %q: %w", t, text, err)
		}
		return Float64Value(f), nil

	case TypeString:
		if len(text) > MaxStringLength {
			return Value{}, fmt.Errorf("%w: %d bytes (max %d)", ErrValueTooLong, len(text), MaxStringLength)
		}
		return StringValue(text), nil
	}
	return Value{}, fmt.Errorf("%w: %d", ErrUnknownType, uint8(t))
}

// ParseField parses the CLI field syntax "key=type:value".
// A missing type means string.
func ParseField(field string) (Record, error) {
	key, rest, ok := strings.Cut(field, "=")
	if !ok || key == "" {
		return Record{}, fmt.Errorf("invalid field %q (want key=type:value)", field)
	}

	t := TypeString
	text := rest
	if name, value, found := strings.Cut(rest, ":"); found {
		if parsed, err := ParseType(name); err == nil {
			t = parsed
			text = value
		}
	}

	v, err := ParseValue(t, text)
	if err != nil {
		return Record{}, err
	}
	return Record{Key: key, Value: v}, nil
}
