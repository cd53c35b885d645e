package fbvalue

import (
	"encoding/json"
	"errors"
)

// Parse reads a Value from JSON. If the data is not valid JSON, it returns Null().
func Parse(data []byte) Value {
	var v Value
	if err := v.UnmarshalJSON(data); err != nil {
		return Null()
	}
	return v
}

// JSONString returns the JSON representation of the value as a string.
func (v Value) JSONString() string {
	data, _ := v.MarshalJSON()
	return string(data)
}

// AsRaw returns the JSON representation of the value as a json.RawMessage.
func (v Value) AsRaw() json.RawMessage {
	data, _ := v.MarshalJSON()
	return data
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.valueType {
	case NullType:
		return []byte("null"), nil
	case BoolType:
		if v.boolValue {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case NumberType:
		return json.Marshal(v.numValue)
	case StringType:
		return json.Marshal(v.strValue)
	case ArrayType:
		return json.Marshal(v.arrValue)
	case ObjectType:
		return json.Marshal(v.objValue)
	case RawType:
		if len(v.rawValue) == 0 {
			return []byte("null"), nil
		}
		return v.rawValue, nil
	}
	return nil, errors.New("unknown value type")
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	var parsed interface{}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return err
	}
	*v = fromParsed(parsed)
	return nil
}

func fromParsed(parsed interface{}) Value {
	switch o := parsed.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(o)
	case float64:
		return Float64(o)
	case string:
		return String(o)
	case []interface{}:
		a := make([]Value, 0, len(o))
		for _, e := range o {
			a = append(a, fromParsed(e))
		}
		return Value{valueType: ArrayType, arrValue: a}
	case map[string]interface{}:
		m := make(map[string]Value, len(o))
		for k, e := range o {
			m[k] = fromParsed(e)
		}
		return Value{valueType: ObjectType, objValue: m}
	}
	return Null()
}

// parseIfRaw resolves a RawType value into a fully parsed one. All accessors go through
// this so that a Raw value behaves identically to its parsed equivalent.
func (v Value) parseIfRaw() Value {
	if v.valueType != RawType {
		return v
	}
	return Parse(v.rawValue)
}
