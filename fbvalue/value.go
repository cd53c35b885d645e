// Package fbvalue provides the Value type, an immutable representation of any JSON value.
//
// Flag variations, user custom attributes, and clause operands are all Values. The zero
// value of Value is JSON null.
package fbvalue

// ValueType indicates which JSON type a Value contains.
type ValueType int

const (
	// NullType describes a null value. This is the zero value of ValueType.
	NullType ValueType = iota
	// BoolType describes a boolean value.
	BoolType
	// NumberType describes a numeric value. JSON does not distinguish between integers and
	// floating-point values; use IsInt to check whether a number is an integer.
	NumberType
	// StringType describes a string value.
	StringType
	// ArrayType describes an array value.
	ArrayType
	// ObjectType describes an object (map) value.
	ObjectType
	// RawType describes a value that was produced from preparsed JSON and has not been
	// inspected further.
	RawType
)

// String returns the name of the value type.
func (t ValueType) String() string {
	switch t {
	case NullType:
		return "null"
	case BoolType:
		return "bool"
	case NumberType:
		return "number"
	case StringType:
		return "string"
	case ArrayType:
		return "array"
	case ObjectType:
		return "object"
	case RawType:
		return "raw"
	default:
		return "unknown"
	}
}

// Value represents any of the data types supported by JSON. Values are immutable; the
// accessor methods never expose internal slices or maps directly.
type Value struct {
	valueType ValueType
	boolValue bool
	numValue  float64
	strValue  string
	arrValue  []Value
	objValue  map[string]Value
	rawValue  []byte
}

// Null returns a null Value. This is the same as the zero value of Value.
func Null() Value {
	return Value{valueType: NullType}
}

// Bool returns a boolean Value.
func Bool(v bool) Value {
	return Value{valueType: BoolType, boolValue: v}
}

// Int returns a numeric Value from an integer.
func Int(v int) Value {
	return Float64(float64(v))
}

// Float64 returns a numeric Value.
func Float64(v float64) Value {
	return Value{valueType: NumberType, numValue: v}
}

// String returns a string Value.
func String(v string) Value {
	return Value{valueType: StringType, strValue: v}
}

// Raw returns a Value wrapping preparsed JSON. The bytes are assumed to be well-formed
// JSON; they are not validated here.
func Raw(data []byte) Value {
	return Value{valueType: RawType, rawValue: data}
}

// ArrayOf returns an array Value containing the given elements.
func ArrayOf(items ...Value) Value {
	a := make([]Value, len(items))
	copy(a, items)
	return Value{valueType: ArrayType, arrValue: a}
}

// CopyObject returns an object Value whose properties are copied from the given map.
func CopyObject(m map[string]Value) Value {
	o := make(map[string]Value, len(m))
	for k, v := range m {
		o[k] = v
	}
	return Value{valueType: ObjectType, objValue: o}
}

// Type returns the type of the value.
func (v Value) Type() ValueType {
	if v.valueType == RawType {
		return v.parseIfRaw().valueType
	}
	return v.valueType
}

// IsNull returns true if the value is null.
func (v Value) IsNull() bool {
	return v.Type() == NullType
}

// IsNumber returns true if the value is numeric.
func (v Value) IsNumber() bool {
	return v.Type() == NumberType
}

// IsInt returns true if the value is numeric and has no fractional component.
func (v Value) IsInt() bool {
	if v.IsNumber() {
		f := v.Float64Value()
		return f == float64(int(f))
	}
	return false
}

// BoolValue returns the value as a bool, or false if it is not a boolean.
func (v Value) BoolValue() bool {
	p := v.parseIfRaw()
	return p.valueType == BoolType && p.boolValue
}

// IntValue returns the value as an int, truncating toward zero, or zero if it is not
// numeric.
func (v Value) IntValue() int {
	return int(v.Float64Value())
}

// Float64Value returns the value as a float64, or zero if it is not numeric.
func (v Value) Float64Value() float64 {
	p := v.parseIfRaw()
	if p.valueType == NumberType {
		return p.numValue
	}
	return 0
}

// StringValue returns the value as a string, or an empty string if it is not a string.
// This is not a description of the value; use JSONString for that.
func (v Value) StringValue() string {
	p := v.parseIfRaw()
	if p.valueType == StringType {
		return p.strValue
	}
	return ""
}

// Count returns the number of elements in an array or object value, or zero for all
// other types.
func (v Value) Count() int {
	p := v.parseIfRaw()
	switch p.valueType {
	case ArrayType:
		return len(p.arrValue)
	case ObjectType:
		return len(p.objValue)
	}
	return 0
}

// GetByIndex returns an element of an array value, or Null() if out of range or if the
// value is not an array.
func (v Value) GetByIndex(index int) Value {
	p := v.parseIfRaw()
	if p.valueType == ArrayType && index >= 0 && index < len(p.arrValue) {
		return p.arrValue[index]
	}
	return Null()
}

// TryGetByKey returns a property of an object value. The second return value is false if
// the property does not exist or if the value is not an object.
func (v Value) TryGetByKey(name string) (Value, bool) {
	p := v.parseIfRaw()
	if p.valueType == ObjectType {
		ret, ok := p.objValue[name]
		return ret, ok
	}
	return Null(), false
}

// GetByKey returns a property of an object value, or Null() if not found.
func (v Value) GetByKey(name string) Value {
	ret, _ := v.TryGetByKey(name)
	return ret
}

// Keys returns the property names of an object value, in unspecified order, or nil for
// all other types.
func (v Value) Keys() []string {
	p := v.parseIfRaw()
	if p.valueType == ObjectType {
		ret := make([]string, 0, len(p.objValue))
		for k := range p.objValue {
			ret = append(ret, k)
		}
		return ret
	}
	return nil
}

// Equal returns true if the two values are deeply equal. Numbers are compared without
// regard to how they were originally written (1 equals 1.0).
func (v Value) Equal(other Value) bool {
	a, b := v.parseIfRaw(), other.parseIfRaw()
	if a.valueType != b.valueType {
		return false
	}
	switch a.valueType {
	case NullType:
		return true
	case BoolType:
		return a.boolValue == b.boolValue
	case NumberType:
		return a.numValue == b.numValue
	case StringType:
		return a.strValue == b.strValue
	case ArrayType:
		if len(a.arrValue) != len(b.arrValue) {
			return false
		}
		for i, e := range a.arrValue {
			if !e.Equal(b.arrValue[i]) {
				return false
			}
		}
		return true
	case ObjectType:
		if len(a.objValue) != len(b.objValue) {
			return false
		}
		for k, e := range a.objValue {
			o, ok := b.objValue[k]
			if !ok || !e.Equal(o) {
				return false
			}
		}
		return true
	}
	return false
}

// ArrayBuilder is a mutable builder for array Values.
type ArrayBuilder struct {
	items []Value
}

// BuildArray creates an ArrayBuilder.
func BuildArray() *ArrayBuilder {
	return &ArrayBuilder{}
}

// Add appends an element.
func (b *ArrayBuilder) Add(v Value) *ArrayBuilder {
	b.items = append(b.items, v)
	return b
}

// Build returns the array Value. The builder must not be reused afterward.
func (b *ArrayBuilder) Build() Value {
	return Value{valueType: ArrayType, arrValue: b.items}
}

// ObjectBuilder is a mutable builder for object Values.
type ObjectBuilder struct {
	obj map[string]Value
}

// BuildObject creates an ObjectBuilder.
func BuildObject() *ObjectBuilder {
	return &ObjectBuilder{obj: make(map[string]Value)}
}

// Set sets a property.
func (b *ObjectBuilder) Set(name string, v Value) *ObjectBuilder {
	b.obj[name] = v
	return b
}

// Build returns the object Value. The builder must not be reused afterward.
func (b *ObjectBuilder) Build() Value {
	return Value{valueType: ObjectType, objValue: b.obj}
}
