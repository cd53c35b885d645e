// Package fbuser defines the User type, the principal that feature flags are evaluated
// against.
package fbuser

import (
	"github.com/featurebridge/go-server-sdk/fbvalue"
)

// UserAttribute is the name of a user attribute. The constants below identify the
// built-in attributes; any other string refers to a custom attribute.
type UserAttribute string

const (
	// KeyAttribute is the attribute name corresponding to User.GetKey().
	KeyAttribute UserAttribute = "key"
	// SecondaryKeyAttribute is the attribute name corresponding to User.GetSecondaryKey().
	SecondaryKeyAttribute UserAttribute = "secondary"
	// IPAttribute is the attribute name corresponding to the user's IP address.
	IPAttribute UserAttribute = "ip"
	// CountryAttribute is the attribute name corresponding to the user's country.
	CountryAttribute UserAttribute = "country"
	// EmailAttribute is the attribute name corresponding to the user's email address.
	EmailAttribute UserAttribute = "email"
	// FirstNameAttribute is the attribute name corresponding to the user's first name.
	FirstNameAttribute UserAttribute = "firstName"
	// LastNameAttribute is the attribute name corresponding to the user's last name.
	LastNameAttribute UserAttribute = "lastName"
	// AvatarAttribute is the attribute name corresponding to the user's avatar URL.
	AvatarAttribute UserAttribute = "avatar"
	// NameAttribute is the attribute name corresponding to the user's full name.
	NameAttribute UserAttribute = "name"
	// AnonymousAttribute is the attribute name corresponding to User.GetAnonymous().
	AnonymousAttribute UserAttribute = "anonymous"
)

// A User is an identified principal: a required key plus optional built-in and custom
// attributes. Users are immutable; construct them with NewUser or NewUserBuilder.
//
// Rule clauses look attributes up by name. Built-in attributes take precedence over
// custom attributes with the same name.
type User struct {
	key       string
	secondary fbvalue.OptionalString
	ip        fbvalue.OptionalString
	country   fbvalue.OptionalString
	email     fbvalue.OptionalString
	firstName fbvalue.OptionalString
	lastName  fbvalue.OptionalString
	avatar    fbvalue.OptionalString
	name      fbvalue.OptionalString
	anonymous fbvalue.Value
	custom    fbvalue.Value
}

// NewUser constructs a User with only a key.
func NewUser(key string) User {
	return User{key: key}
}

// NewAnonymousUser constructs an anonymous User with the given key.
func NewAnonymousUser(key string) User {
	return User{key: key, anonymous: fbvalue.Bool(true)}
}

// GetKey returns the unique key of the user.
func (u User) GetKey() string {
	return u.key
}

// GetSecondaryKey returns the user's secondary key, if any. When present, the secondary
// key is appended to the bucketing input so that otherwise-identical users can be spread
// across rollout buckets.
func (u User) GetSecondaryKey() fbvalue.OptionalString {
	return u.secondary
}

// GetAnonymous returns true if the user is marked anonymous.
func (u User) GetAnonymous() bool {
	return u.anonymous.BoolValue()
}

// GetCustom returns a custom attribute by name; the second value is false if unset.
func (u User) GetCustom(attribute string) (fbvalue.Value, bool) {
	return u.custom.TryGetByKey(attribute)
}

// GetAttribute returns the user attribute with the given name, or Null() if unset.
// Built-in attribute names always resolve to the built-in attribute, even if a custom
// attribute with the same name exists.
func (u User) GetAttribute(attribute UserAttribute) fbvalue.Value {
	switch attribute {
	case KeyAttribute:
		return fbvalue.String(u.key)
	case SecondaryKeyAttribute:
		return u.secondary.AsValue()
	case IPAttribute:
		return u.ip.AsValue()
	case CountryAttribute:
		return u.country.AsValue()
	case EmailAttribute:
		return u.email.AsValue()
	case FirstNameAttribute:
		return u.firstName.AsValue()
	case LastNameAttribute:
		return u.lastName.AsValue()
	case AvatarAttribute:
		return u.avatar.AsValue()
	case NameAttribute:
		return u.name.AsValue()
	case AnonymousAttribute:
		return u.anonymous
	default:
		value, _ := u.GetCustom(string(attribute))
		return value
	}
}

// Equal tests whether two users have the same attributes. Struct comparison is not
// usable for User because custom attributes may contain maps and slices.
func (u User) Equal(other User) bool {
	return u.key == other.key &&
		u.secondary == other.secondary &&
		u.ip == other.ip &&
		u.country == other.country &&
		u.email == other.email &&
		u.firstName == other.firstName &&
		u.lastName == other.lastName &&
		u.avatar == other.avatar &&
		u.name == other.name &&
		u.anonymous.Equal(other.anonymous) &&
		u.custom.Equal(other.custom)
}
