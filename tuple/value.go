// Package tuple provides the fixed-layout tuple and value machinery the
// storage engine treats as an external collaborator: inlined columns plus
// out-of-line variable-length strings, not a general SQL type system.
package tuple

import (
	"bytes"
	"encoding/binary"
)

// TypeID names the handful of column types this tuple layer knows how to
// serialize.
type TypeID int

const (
	Invalid TypeID = iota
	Boolean
	Integer
	Float
	Varchar
)

// Size returns the payload width of a fixed-size type, not counting the
// 1-byte null flag Value.Serialize writes before it; 0 for Varchar, whose
// footprint depends on the stored string.
func (t TypeID) Size() uint32 {
	switch t {
	case Integer, Float:
		return 4
	case Boolean:
		return 1
	}
	return 0
}

// Value is a tagged union over the column types this package supports. It
// is deliberately not a general SQL value: only what the table heap and
// B+-tree tests need to drive tuple storage.
type Value struct {
	valueType TypeID
	isNull    bool
	integer   int32
	float_    float32
	boolean   bool
	varchar   string
}

func NewInteger(v int32) Value   { return Value{valueType: Integer, integer: v} }
func NewFloat(v float32) Value   { return Value{valueType: Float, float_: v} }
func NewBoolean(v bool) Value    { return Value{valueType: Boolean, boolean: v} }
func NewVarchar(v string) Value  { return Value{valueType: Varchar, varchar: v} }
func NewNullValue(t TypeID) Value { return Value{valueType: t, isNull: true} }

func (v Value) ValueType() TypeID { return v.valueType }
func (v Value) IsNull() bool      { return v.isNull }
func (v Value) ToInteger() int32  { return v.integer }
func (v Value) ToFloat() float32  { return v.float_ }
func (v Value) ToBoolean() bool   { return v.boolean }
func (v Value) ToVarchar() string { return v.varchar }

// Size is the number of bytes Serialize produces for this value.
func (v Value) Size() uint32 {
	switch v.valueType {
	case Varchar:
		return uint32(len(v.varchar)) + 1 + 2
	default:
		return v.valueType.Size() + 1
	}
}

// Serialize packs an is-null flag followed by the type-specific payload.
func (v Value) Serialize() []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, v.isNull)
	switch v.valueType {
	case Integer:
		binary.Write(buf, binary.LittleEndian, v.integer)
	case Float:
		binary.Write(buf, binary.LittleEndian, v.float_)
	case Boolean:
		binary.Write(buf, binary.LittleEndian, v.boolean)
	case Varchar:
		binary.Write(buf, binary.LittleEndian, uint16(len(v.varchar)))
		buf.WriteString(v.varchar)
	}
	return buf.Bytes()
}

// NewValueFromBytes deserializes a value previously produced by Serialize.
func NewValueFromBytes(data []byte, valueType TypeID) Value {
	r := bytes.NewReader(data)
	var isNull bool
	binary.Read(r, binary.LittleEndian, &isNull)
	switch valueType {
	case Integer:
		var v int32
		binary.Read(r, binary.LittleEndian, &v)
		ret := NewInteger(v)
		ret.isNull = isNull
		return ret
	case Float:
		var v float32
		binary.Read(r, binary.LittleEndian, &v)
		ret := NewFloat(v)
		ret.isNull = isNull
		return ret
	case Boolean:
		var v bool
		binary.Read(r, binary.LittleEndian, &v)
		ret := NewBoolean(v)
		ret.isNull = isNull
		return ret
	case Varchar:
		var length uint16
		binary.Read(r, binary.LittleEndian, &length)
		strBytes := make([]byte, length)
		r.Read(strBytes)
		ret := NewVarchar(string(strBytes))
		ret.isNull = isNull
		return ret
	}
	return Value{}
}

// CompareEquals implements equality with SQL-style null semantics: two
// nulls never compare equal to each other in ORDER BY / index key terms, but
// for this engine's unique-index use they are treated as equal to each
// other and unequal to everything else, matching CompareTo's ordering.
func (v Value) CompareEquals(right Value) bool { return v.CompareTo(right) == 0 }

// CompareTo orders values of the same type; used as the default
// B+-tree key comparator when the key type is a Value.
func (v Value) CompareTo(right Value) int {
	if v.isNull && right.isNull {
		return 0
	}
	if v.isNull {
		return -1
	}
	if right.isNull {
		return 1
	}
	switch v.valueType {
	case Integer:
		return int(v.integer) - int(right.integer)
	case Float:
		switch {
		case v.float_ < right.float_:
			return -1
		case v.float_ > right.float_:
			return 1
		default:
			return 0
		}
	case Varchar:
		switch {
		case v.varchar < right.varchar:
			return -1
		case v.varchar > right.varchar:
			return 1
		default:
			return 0
		}
	case Boolean:
		if v.boolean == right.boolean {
			return 0
		}
		if !v.boolean {
			return -1
		}
		return 1
	}
	return 0
}
