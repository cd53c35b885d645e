package fbuser

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/featurebridge/go-server-sdk/fbvalue"
)

func TestNewUserHasOnlyKey(t *testing.T) {
	u := NewUser("some-key")
	assert.Equal(t, "some-key", u.GetKey())
	assert.False(t, u.GetAnonymous())
	assert.False(t, u.GetSecondaryKey().IsDefined())
	assert.Equal(t, fbvalue.Null(), u.GetAttribute(EmailAttribute))
}

func TestNewAnonymousUser(t *testing.T) {
	u := NewAnonymousUser("some-key")
	assert.Equal(t, "some-key", u.GetKey())
	assert.True(t, u.GetAnonymous())
}

func TestBuilderSetsBuiltInAttributes(t *testing.T) {
	u := NewUserBuilder("some-key").
		Secondary("sec").
		IP("1.2.3.4").
		Country("us").
		Email("test@example.com").
		FirstName("First").
		LastName("Last").
		Avatar("http://avatar").
		Name("First Last").
		Anonymous(true).
		Build()

	expected := map[UserAttribute]fbvalue.Value{
		KeyAttribute:          fbvalue.String("some-key"),
		SecondaryKeyAttribute: fbvalue.String("sec"),
		IPAttribute:           fbvalue.String("1.2.3.4"),
		CountryAttribute:      fbvalue.String("us"),
		EmailAttribute:        fbvalue.String("test@example.com"),
		FirstNameAttribute:    fbvalue.String("First"),
		LastNameAttribute:     fbvalue.String("Last"),
		AvatarAttribute:       fbvalue.String("http://avatar"),
		NameAttribute:         fbvalue.String("First Last"),
		AnonymousAttribute:    fbvalue.Bool(true),
	}
	for attr, value := range expected {
		assert.Equal(t, value, u.GetAttribute(attr), "attribute %s", attr)
	}
}

func TestCustomAttributes(t *testing.T) {
	u := NewUserBuilder("some-key").
		Custom("group", fbvalue.String("beta")).
		Custom("level", fbvalue.Int(3)).
		Build()

	value, ok := u.GetCustom("group")
	assert.True(t, ok)
	assert.Equal(t, fbvalue.String("beta"), value)

	assert.Equal(t, fbvalue.Int(3), u.GetAttribute(UserAttribute("level")))

	_, ok = u.GetCustom("missing")
	assert.False(t, ok)
	assert.Equal(t, fbvalue.Null(), u.GetAttribute(UserAttribute("missing")))
}

func TestBuiltInAttributeTakesPrecedenceOverCustom(t *testing.T) {
	u := NewUserBuilder("real-key").
		Custom("key", fbvalue.String("fake-key")).
		Custom("email", fbvalue.String("fake@example.com")).
		Email("real@example.com").
		Build()
	assert.Equal(t, fbvalue.String("real-key"), u.GetAttribute(KeyAttribute))
	assert.Equal(t, fbvalue.String("real@example.com"), u.GetAttribute(EmailAttribute))
}

func TestBuilderCanBeReusedWithoutAffectingBuiltUsers(t *testing.T) {
	b := NewUserBuilder("some-key").Custom("a", fbvalue.Int(1))
	u1 := b.Build()
	b.Custom("a", fbvalue.Int(2))
	u2 := b.Build()
	assert.Equal(t, fbvalue.Int(1), u1.GetAttribute(UserAttribute("a")))
	assert.Equal(t, fbvalue.Int(2), u2.GetAttribute(UserAttribute("a")))
}

func TestUserEqual(t *testing.T) {
	u1 := NewUserBuilder("k").Email("e").Custom("a", fbvalue.Int(1)).Build()
	u2 := NewUserBuilder("k").Email("e").Custom("a", fbvalue.Int(1)).Build()
	u3 := NewUserBuilder("k").Email("e").Custom("a", fbvalue.Int(2)).Build()
	assert.True(t, u1.Equal(u2))
	assert.False(t, u1.Equal(u3))
	assert.False(t, u1.Equal(NewUser("k")))
}
