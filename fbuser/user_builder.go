package fbuser

import (
	"github.com/featurebridge/go-server-sdk/fbvalue"
)

// UserBuilder is a mutable object for constructing a User with more than just a key.
//
//	user := fbuser.NewUserBuilder("user-key").
//		Email("test@example.com").
//		Custom("group", fbvalue.String("beta")).
//		Build()
//
// A UserBuilder is not safe for concurrent use.
type UserBuilder struct {
	user   User
	custom map[string]fbvalue.Value
}

// NewUserBuilder creates a UserBuilder for the given key.
func NewUserBuilder(key string) *UserBuilder {
	return &UserBuilder{user: User{key: key}}
}

// Key changes the user key.
func (b *UserBuilder) Key(key string) *UserBuilder {
	b.user.key = key
	return b
}

// Secondary sets the secondary key attribute.
func (b *UserBuilder) Secondary(value string) *UserBuilder {
	b.user.secondary = fbvalue.NewOptionalString(value)
	return b
}

// IP sets the IP address attribute.
func (b *UserBuilder) IP(value string) *UserBuilder {
	b.user.ip = fbvalue.NewOptionalString(value)
	return b
}

// Country sets the country attribute.
func (b *UserBuilder) Country(value string) *UserBuilder {
	b.user.country = fbvalue.NewOptionalString(value)
	return b
}

// Email sets the email attribute.
func (b *UserBuilder) Email(value string) *UserBuilder {
	b.user.email = fbvalue.NewOptionalString(value)
	return b
}

// FirstName sets the first name attribute.
func (b *UserBuilder) FirstName(value string) *UserBuilder {
	b.user.firstName = fbvalue.NewOptionalString(value)
	return b
}

// LastName sets the last name attribute.
func (b *UserBuilder) LastName(value string) *UserBuilder {
	b.user.lastName = fbvalue.NewOptionalString(value)
	return b
}

// Avatar sets the avatar URL attribute.
func (b *UserBuilder) Avatar(value string) *UserBuilder {
	b.user.avatar = fbvalue.NewOptionalString(value)
	return b
}

// Name sets the full name attribute.
func (b *UserBuilder) Name(value string) *UserBuilder {
	b.user.name = fbvalue.NewOptionalString(value)
	return b
}

// Anonymous sets the anonymous attribute.
func (b *UserBuilder) Anonymous(value bool) *UserBuilder {
	b.user.anonymous = fbvalue.Bool(value)
	return b
}

// Custom sets a custom attribute.
func (b *UserBuilder) Custom(name string, value fbvalue.Value) *UserBuilder {
	if b.custom == nil {
		b.custom = make(map[string]fbvalue.Value)
	}
	b.custom[name] = value
	return b
}

// Build returns the User. The builder can continue to be used afterward without
// affecting users already built.
func (b *UserBuilder) Build() User {
	u := b.user
	if len(b.custom) > 0 {
		u.custom = fbvalue.CopyObject(b.custom)
	}
	return u
}
