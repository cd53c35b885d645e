package fbvalue

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNullValue(t *testing.T) {
	v := Null()
	assert.Equal(t, NullType, v.Type())
	assert.True(t, v.IsNull())
	assert.Equal(t, v, Value{})
}

func TestPrimitiveAccessors(t *testing.T) {
	assert.True(t, Bool(true).BoolValue())
	assert.False(t, Bool(false).BoolValue())
	assert.False(t, String("true").BoolValue())

	assert.Equal(t, 2, Int(2).IntValue())
	assert.Equal(t, 2.5, Float64(2.5).Float64Value())
	assert.Equal(t, 2, Float64(2.5).IntValue())
	assert.Equal(t, 0, String("x").IntValue())

	assert.Equal(t, "x", String("x").StringValue())
	assert.Equal(t, "", Int(3).StringValue())
}

func TestIsInt(t *testing.T) {
	assert.True(t, Int(2).IsInt())
	assert.True(t, Float64(2).IsInt())
	assert.False(t, Float64(2.5).IsInt())
	assert.False(t, String("2").IsInt())
}

func TestNumbersAreEqualRegardlessOfIntOrFloat(t *testing.T) {
	assert.True(t, Int(2).Equal(Float64(2)))
	assert.False(t, Int(2).Equal(Float64(2.5)))
}

func TestArrayValue(t *testing.T) {
	a := ArrayOf(String("a"), Int(1))
	assert.Equal(t, ArrayType, a.Type())
	assert.Equal(t, 2, a.Count())
	assert.Equal(t, String("a"), a.GetByIndex(0))
	assert.Equal(t, Null(), a.GetByIndex(2))

	b := BuildArray().Add(String("a")).Add(Int(1)).Build()
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(ArrayOf(String("a"))))
}

func TestObjectValue(t *testing.T) {
	o := BuildObject().Set("a", Int(1)).Set("b", String("x")).Build()
	assert.Equal(t, ObjectType, o.Type())
	assert.Equal(t, 2, o.Count())
	assert.Equal(t, Int(1), o.GetByKey("a"))
	v, ok := o.TryGetByKey("c")
	assert.False(t, ok)
	assert.Equal(t, Null(), v)
	assert.ElementsMatch(t, []string{"a", "b"}, o.Keys())

	same := CopyObject(map[string]Value{"a": Int(1), "b": String("x")})
	assert.True(t, o.Equal(same))
}

func TestStructuralEquality(t *testing.T) {
	v1 := BuildObject().Set("a", ArrayOf(Int(1), Bool(true))).Build()
	v2 := BuildObject().Set("a", ArrayOf(Int(1), Bool(true))).Build()
	v3 := BuildObject().Set("a", ArrayOf(Int(1), Bool(false))).Build()
	assert.True(t, v1.Equal(v2))
	assert.False(t, v1.Equal(v3))
	assert.False(t, v1.Equal(Null()))
}

func TestJSONRoundTrip(t *testing.T) {
	original := BuildObject().
		Set("b", Bool(true)).
		Set("n", Float64(2.5)).
		Set("s", String("x")).
		Set("null", Null()).
		Set("a", ArrayOf(Int(1), String("two"))).
		Build()
	data, err := json.Marshal(original)
	require.NoError(t, err)

	var reparsed Value
	require.NoError(t, json.Unmarshal(data, &reparsed))
	assert.True(t, original.Equal(reparsed))
}

func TestParseBadJSONIsNull(t *testing.T) {
	assert.Equal(t, Null(), Parse([]byte("{no")))
}

func TestRawValueBehavesLikeParsedValue(t *testing.T) {
	r := Raw([]byte(`{"a":[1,2]}`))
	assert.Equal(t, ObjectType, r.Type())
	assert.Equal(t, 2, r.GetByKey("a").Count())
	assert.Equal(t, json.RawMessage(`{"a":[1,2]}`), r.AsRaw())
	assert.True(t, r.Equal(Parse([]byte(`{"a":[1,2]}`))))
}

func TestOptionalString(t *testing.T) {
	var none OptionalString
	assert.False(t, none.IsDefined())
	assert.Equal(t, "", none.StringValue())
	assert.Equal(t, Null(), none.AsValue())

	some := NewOptionalString("x")
	assert.True(t, some.IsDefined())
	assert.Equal(t, "x", some.StringValue())
	assert.Equal(t, String("x"), some.AsValue())

	data, err := json.Marshal(some)
	require.NoError(t, err)
	assert.Equal(t, `"x"`, string(data))

	var decoded OptionalString
	require.NoError(t, json.Unmarshal([]byte("null"), &decoded))
	assert.False(t, decoded.IsDefined())
	require.NoError(t, json.Unmarshal([]byte(`"y"`), &decoded))
	assert.Equal(t, NewOptionalString("y"), decoded)
}
