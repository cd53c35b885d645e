package fbmodel

import (
	"regexp"
	"strings"

	"github.com/blang/semver"

	"github.com/featurebridge/go-server-sdk/fbuser"
	"github.com/featurebridge/go-server-sdk/fbvalue"
)

// Operator is the comparison operator of a clause. The set of operators is closed;
// unknown operators never match.
type Operator string

const (
	// OperatorIn matches if the attribute equals any clause value.
	OperatorIn Operator = "in"
	// OperatorEndsWith matches if the attribute string ends with a clause value.
	OperatorEndsWith Operator = "endsWith"
	// OperatorStartsWith matches if the attribute string starts with a clause value.
	OperatorStartsWith Operator = "startsWith"
	// OperatorMatches treats each clause value as a regular expression.
	OperatorMatches Operator = "matches"
	// OperatorContains matches if the attribute string contains a clause value.
	OperatorContains Operator = "contains"
	// OperatorLessThan is a numeric comparison.
	OperatorLessThan Operator = "lessThan"
	// OperatorLessThanOrEqual is a numeric comparison.
	OperatorLessThanOrEqual Operator = "lessThanOrEqual"
	// OperatorGreaterThan is a numeric comparison.
	OperatorGreaterThan Operator = "greaterThan"
	// OperatorGreaterThanOrEqual is a numeric comparison.
	OperatorGreaterThanOrEqual Operator = "greaterThanOrEqual"
	// OperatorBefore compares timestamps (RFC3339 strings or epoch milliseconds).
	OperatorBefore Operator = "before"
	// OperatorAfter compares timestamps (RFC3339 strings or epoch milliseconds).
	OperatorAfter Operator = "after"
	// OperatorSegmentMatch matches if the user belongs to any of the referenced
	// segments. It is handled by the evaluator, not by ClauseMatchesUser.
	OperatorSegmentMatch Operator = "segmentMatch"
	// OperatorSemVerEqual compares semantic versions for equality.
	OperatorSemVerEqual Operator = "semVerEqual"
	// OperatorSemVerLessThan compares semantic versions.
	OperatorSemVerLessThan Operator = "semVerLessThan"
	// OperatorSemVerGreaterThan compares semantic versions.
	OperatorSemVerGreaterThan Operator = "semVerGreaterThan"
)

// ClauseMatchesUser tests a clause against a user. It cannot be used when the clause's
// operator is OperatorSegmentMatch, since that requires data from outside the clause;
// in that case it returns false.
//
// Type-mismatched comparisons, malformed regexes, unparseable versions, and unparseable
// timestamps are all plain non-matches, never errors.
func ClauseMatchesUser(c *Clause, user *fbuser.User) bool {
	if c.Op == OperatorSegmentMatch {
		return false
	}
	uValue := user.GetAttribute(c.Attribute)
	if uValue.IsNull() {
		// An unset attribute is an automatic non-match, regardless of Negate.
		return false
	}
	fn := operatorFn(c.Op)

	// A multi-valued attribute matches if any of its elements matches any clause value.
	if uValue.Type() == fbvalue.ArrayType {
		for i := 0; i < uValue.Count(); i++ {
			if matchAny(fn, uValue.GetByIndex(i), c.Values) {
				return maybeNegate(c.Negate, true)
			}
		}
		return maybeNegate(c.Negate, false)
	}

	return maybeNegate(c.Negate, matchAny(fn, uValue, c.Values))
}

func maybeNegate(negate, result bool) bool {
	if negate {
		return !result
	}
	return result
}

func matchAny(fn opFn, value fbvalue.Value, values []fbvalue.Value) bool {
	for _, v := range values {
		if fn(value, v) {
			return true
		}
	}
	return false
}

type opFn func(userValue, clauseValue fbvalue.Value) bool

var allOps = map[Operator]opFn{ //nolint:gochecknoglobals
	OperatorIn:                 operatorInFn,
	OperatorEndsWith:           stringFn(strings.HasSuffix),
	OperatorStartsWith:         stringFn(strings.HasPrefix),
	OperatorMatches:            operatorMatchesFn,
	OperatorContains:           stringFn(strings.Contains),
	OperatorLessThan:           numericFn(func(u, c float64) bool { return u < c }),
	OperatorLessThanOrEqual:    numericFn(func(u, c float64) bool { return u <= c }),
	OperatorGreaterThan:        numericFn(func(u, c float64) bool { return u > c }),
	OperatorGreaterThanOrEqual: numericFn(func(u, c float64) bool { return u >= c }),
	OperatorBefore:             operatorBeforeFn,
	OperatorAfter:              operatorAfterFn,
	OperatorSemVerEqual:        semVerFn(semver.Version.Equals),
	OperatorSemVerLessThan:     semVerFn(semver.Version.LT),
	OperatorSemVerGreaterThan:  semVerFn(semver.Version.GT),
}

func operatorFn(operator Operator) opFn {
	if fn, ok := allOps[operator]; ok {
		return fn
	}
	return operatorNoneFn
}

func operatorInFn(uValue, cValue fbvalue.Value) bool {
	return uValue.Equal(cValue)
}

func stringFn(fn func(string, string) bool) opFn {
	return func(uValue, cValue fbvalue.Value) bool {
		if uValue.Type() == fbvalue.StringType && cValue.Type() == fbvalue.StringType {
			return fn(uValue.StringValue(), cValue.StringValue())
		}
		return false
	}
}

func operatorMatchesFn(uValue, cValue fbvalue.Value) bool {
	if uValue.Type() != fbvalue.StringType || cValue.Type() != fbvalue.StringType {
		return false
	}
	matched, err := regexp.MatchString(cValue.StringValue(), uValue.StringValue())
	return err == nil && matched
}

func numericFn(fn func(float64, float64) bool) opFn {
	return func(uValue, cValue fbvalue.Value) bool {
		if uValue.IsNumber() && cValue.IsNumber() {
			return fn(uValue.Float64Value(), cValue.Float64Value())
		}
		return false
	}
}

func operatorBeforeFn(uValue, cValue fbvalue.Value) bool {
	if uTime, ok := parseDateTime(uValue); ok {
		if cTime, ok := parseDateTime(cValue); ok {
			return uTime.Before(cTime)
		}
	}
	return false
}

func operatorAfterFn(uValue, cValue fbvalue.Value) bool {
	if uTime, ok := parseDateTime(uValue); ok {
		if cTime, ok := parseDateTime(cValue); ok {
			return uTime.After(cTime)
		}
	}
	return false
}

func semVerFn(fn func(semver.Version, semver.Version) bool) opFn {
	return func(uValue, cValue fbvalue.Value) bool {
		if uVer, ok := parseSemVer(uValue); ok {
			if cVer, ok := parseSemVer(cValue); ok {
				return fn(uVer, cVer)
			}
		}
		return false
	}
}

func operatorNoneFn(uValue, cValue fbvalue.Value) bool {
	return false
}
