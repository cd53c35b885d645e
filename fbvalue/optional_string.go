package fbvalue

import "encoding/json"

// OptionalString represents a string that may or may not have a value. This is used for
// user attributes where an empty string and an unset attribute mean different things.
//
// The zero value is an empty OptionalString with no value.
type OptionalString struct {
	value    string
	hasValue bool
}

// NewOptionalString constructs an OptionalString that has a value.
func NewOptionalString(value string) OptionalString {
	return OptionalString{value: value, hasValue: true}
}

// IsDefined returns true if the OptionalString contains a value.
func (o OptionalString) IsDefined() bool {
	return o.hasValue
}

// StringValue returns the value, or an empty string if there is none.
func (o OptionalString) StringValue() string {
	return o.value
}

// AsValue converts the OptionalString to a Value: either a string or Null().
func (o OptionalString) AsValue() Value {
	if o.hasValue {
		return String(o.value)
	}
	return Null()
}

// MarshalJSON implements json.Marshaler; an undefined value becomes null.
func (o OptionalString) MarshalJSON() ([]byte, error) {
	if o.hasValue {
		return json.Marshal(o.value)
	}
	return []byte("null"), nil
}

// UnmarshalJSON implements json.Unmarshaler; null becomes an undefined value.
func (o *OptionalString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*o = OptionalString{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*o = NewOptionalString(s)
	return nil
}
