package fbmodel

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/featurebridge/go-server-sdk/fbuser"
	"github.com/featurebridge/go-server-sdk/fbvalue"
)

func makeClause(attr string, op Operator, values ...fbvalue.Value) *Clause {
	return &Clause{Attribute: fbuser.UserAttribute(attr), Op: op, Values: values}
}

func userWithCustom(name string, value fbvalue.Value) fbuser.User {
	return fbuser.NewUserBuilder("key").Custom(name, value).Build()
}

func TestClauseMatchesStringOperators(t *testing.T) {
	user := fbuser.NewUserBuilder("key").Email("bob@acme.com").Build()

	for _, params := range []struct {
		op       Operator
		value    string
		expected bool
	}{
		{OperatorIn, "bob@acme.com", true},
		{OperatorIn, "BOB@acme.com", false},
		{OperatorEndsWith, "@acme.com", true},
		{OperatorEndsWith, "@other.com", false},
		{OperatorStartsWith, "bob", true},
		{OperatorStartsWith, "alice", false},
		{OperatorContains, "acme", true},
		{OperatorContains, "umbrella", false},
		{OperatorMatches, `^bob@.*\.com$`, true},
		{OperatorMatches, `^alice`, false},
		{OperatorMatches, `\`, false}, // malformed regex is a non-match
	} {
		clause := makeClause("email", params.op, fbvalue.String(params.value))
		assert.Equal(t, params.expected, ClauseMatchesUser(clause, &user),
			"op=%s value=%q", params.op, params.value)
	}
}

func TestClauseMatchesNumericOperators(t *testing.T) {
	user := userWithCustom("level", fbvalue.Int(5))

	for _, params := range []struct {
		op       Operator
		value    fbvalue.Value
		expected bool
	}{
		{OperatorLessThan, fbvalue.Int(6), true},
		{OperatorLessThan, fbvalue.Int(5), false},
		{OperatorLessThanOrEqual, fbvalue.Int(5), true},
		{OperatorGreaterThan, fbvalue.Float64(4.5), true},
		{OperatorGreaterThan, fbvalue.Int(5), false},
		{OperatorGreaterThanOrEqual, fbvalue.Int(5), true},
		{OperatorLessThan, fbvalue.String("6"), false}, // type mismatch is a non-match
	} {
		clause := makeClause("level", params.op, params.value)
		assert.Equal(t, params.expected, ClauseMatchesUser(clause, &user),
			"op=%s value=%s", params.op, params.value.JSONString())
	}
}

func TestClauseMatchesIntAndFloatInterchangeably(t *testing.T) {
	user := userWithCustom("level", fbvalue.Float64(5))
	clause := makeClause("level", OperatorIn, fbvalue.Int(5))
	assert.True(t, ClauseMatchesUser(clause, &user))
}

func TestClauseMatchesDateOperators(t *testing.T) {
	user := userWithCustom("signup", fbvalue.String("2021-06-01T00:00:00Z"))

	assert.True(t, ClauseMatchesUser(
		makeClause("signup", OperatorBefore, fbvalue.String("2022-01-01T00:00:00Z")), &user))
	assert.False(t, ClauseMatchesUser(
		makeClause("signup", OperatorAfter, fbvalue.String("2022-01-01T00:00:00Z")), &user))

	// Epoch milliseconds compare as the same instants.
	msUser := userWithCustom("signup", fbvalue.Float64(1622505600000)) // 2021-06-01T00:00:00Z
	assert.True(t, ClauseMatchesUser(
		makeClause("signup", OperatorAfter, fbvalue.String("2021-01-01T00:00:00Z")), &msUser))

	// Unparseable timestamps are non-matches.
	badUser := userWithCustom("signup", fbvalue.String("not a date"))
	assert.False(t, ClauseMatchesUser(
		makeClause("signup", OperatorBefore, fbvalue.String("2022-01-01T00:00:00Z")), &badUser))
}

func TestClauseMatchesSemVerOperators(t *testing.T) {
	user := userWithCustom("version", fbvalue.String("2.1.0"))

	for _, params := range []struct {
		op       Operator
		value    string
		expected bool
	}{
		{OperatorSemVerEqual, "2.1.0", true},
		{OperatorSemVerEqual, "2.1", true}, // missing patch treated as zero
		{OperatorSemVerEqual, "2", false},
		{OperatorSemVerLessThan, "2.2", true},
		{OperatorSemVerGreaterThan, "2.0.9", true},
		{OperatorSemVerGreaterThan, "2.1.0", false},
		{OperatorSemVerEqual, "nonsense", false},
	} {
		clause := makeClause("version", params.op, fbvalue.String(params.value))
		assert.Equal(t, params.expected, ClauseMatchesUser(clause, &user),
			"op=%s value=%q", params.op, params.value)
	}

	// Pre-release versions rank below the release per semver 2.0.
	preUser := userWithCustom("version", fbvalue.String("2.1.0-beta.1"))
	assert.True(t, ClauseMatchesUser(
		makeClause("version", OperatorSemVerLessThan, fbvalue.String("2.1.0")), &preUser))
}

func TestClauseMatchesAnyOfMultipleValues(t *testing.T) {
	user := fbuser.NewUserBuilder("key").Country("gb").Build()
	clause := makeClause("country", OperatorIn, fbvalue.String("us"), fbvalue.String("gb"))
	assert.True(t, ClauseMatchesUser(clause, &user))
}

func TestClauseMatchesArrayAttribute(t *testing.T) {
	user := userWithCustom("groups", fbvalue.ArrayOf(fbvalue.String("a"), fbvalue.String("b")))
	assert.True(t, ClauseMatchesUser(makeClause("groups", OperatorIn, fbvalue.String("b")), &user))
	assert.False(t, ClauseMatchesUser(makeClause("groups", OperatorIn, fbvalue.String("c")), &user))
}

func TestClauseNegation(t *testing.T) {
	user := fbuser.NewUserBuilder("key").Country("gb").Build()
	clause := makeClause("country", OperatorIn, fbvalue.String("us"))
	clause.Negate = true
	assert.True(t, ClauseMatchesUser(clause, &user))

	clause = makeClause("country", OperatorIn, fbvalue.String("gb"))
	clause.Negate = true
	assert.False(t, ClauseMatchesUser(clause, &user))
}

func TestClauseWithUnsetAttributeNeverMatchesEvenWhenNegated(t *testing.T) {
	user := fbuser.NewUser("key")
	clause := makeClause("email", OperatorIn, fbvalue.String("x"))
	assert.False(t, ClauseMatchesUser(clause, &user))
	clause.Negate = true
	assert.False(t, ClauseMatchesUser(clause, &user))
}

func TestClauseWithUnknownOperatorDoesNotMatch(t *testing.T) {
	user := fbuser.NewUser("key")
	clause := makeClause("key", Operator("unsupported"), fbvalue.String("key"))
	assert.False(t, ClauseMatchesUser(clause, &user))
}

func TestSegmentMatchClauseIsNotHandledHere(t *testing.T) {
	user := fbuser.NewUser("key")
	clause := makeClause("", OperatorSegmentMatch, fbvalue.String("segkey"))
	assert.False(t, ClauseMatchesUser(clause, &user))
}

func TestTargetContainsKey(t *testing.T) {
	target := &Target{Values: []string{"a", "b"}, Variation: 1}
	assert.True(t, TargetContainsKey(target, "a"))
	assert.False(t, TargetContainsKey(target, "c"))
}

func TestSegmentIncludesOrExcludesKey(t *testing.T) {
	segment := &Segment{Included: []string{"in1"}, Excluded: []string{"ex1"}}

	included, found := SegmentIncludesOrExcludesKey(segment, "in1")
	assert.True(t, included)
	assert.True(t, found)

	included, found = SegmentIncludesOrExcludesKey(segment, "ex1")
	assert.False(t, included)
	assert.True(t, found)

	_, found = SegmentIncludesOrExcludesKey(segment, "other")
	assert.False(t, found)
}
