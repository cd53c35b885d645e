package evaluation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/featurebridge/go-server-sdk/fbmodel"
	"github.com/featurebridge/go-server-sdk/fbuser"
	"github.com/featurebridge/go-server-sdk/fbvalue"
)

func makeSegmentMatchFlag(segmentKeys ...string) fbmodel.FeatureFlag {
	values := make([]fbvalue.Value, 0, len(segmentKeys))
	for _, key := range segmentKeys {
		values = append(values, fbvalue.String(key))
	}
	return fbmodel.FeatureFlag{
		Key: "flag",
		On:  true,
		Rules: []fbmodel.FlagRule{{
			ID:                 "r",
			VariationOrRollout: fbmodel.VariationOrRollout{Variation: intPtr(1)},
			Clauses:            []fbmodel.Clause{{Op: fbmodel.OperatorSegmentMatch, Values: values}},
		}},
		Fallthrough: fbmodel.VariationOrRollout{Variation: intPtr(0)},
		Variations:  variations(fbvalue.Bool(false), fbvalue.Bool(true)),
	}
}

func evaluateSegmentMatch(t *testing.T, data *testData, flag fbmodel.FeatureFlag, userKey string) bool {
	t.Helper()
	result := NewEvaluator(data).Evaluate(&flag, fbuser.NewUser(userKey), nil)
	return result.Value.BoolValue()
}

func TestSegmentMatchesIncludedKey(t *testing.T) {
	data := newTestData().addSegment(fbmodel.Segment{Key: "s", Included: []string{"alice"}})
	flag := makeSegmentMatchFlag("s")
	assert.True(t, evaluateSegmentMatch(t, data, flag, "alice"))
	assert.False(t, evaluateSegmentMatch(t, data, flag, "bob"))
}

func TestSegmentExcludedKeyOverridesRules(t *testing.T) {
	data := newTestData().addSegment(fbmodel.Segment{
		Key:      "s",
		Excluded: []string{"alice"},
		Rules: []fbmodel.SegmentRule{{
			Clauses: []fbmodel.Clause{{
				Attribute: fbuser.KeyAttribute,
				Op:        fbmodel.OperatorIn,
				Values:    []fbvalue.Value{fbvalue.String("alice")},
			}},
		}},
	})
	flag := makeSegmentMatchFlag("s")
	assert.False(t, evaluateSegmentMatch(t, data, flag, "alice"))
}

func TestSegmentIncludedKeyOverridesExcluded(t *testing.T) {
	data := newTestData().addSegment(fbmodel.Segment{
		Key:      "s",
		Included: []string{"alice"},
		Excluded: []string{"alice"},
	})
	flag := makeSegmentMatchFlag("s")
	assert.True(t, evaluateSegmentMatch(t, data, flag, "alice"))
}

func TestSegmentRuleWithAllClausesMatching(t *testing.T) {
	data := newTestData().addSegment(fbmodel.Segment{
		Key: "s",
		Rules: []fbmodel.SegmentRule{{
			Clauses: []fbmodel.Clause{
				{
					Attribute: fbuser.KeyAttribute,
					Op:        fbmodel.OperatorStartsWith,
					Values:    []fbvalue.Value{fbvalue.String("al")},
				},
				{
					Attribute: fbuser.KeyAttribute,
					Op:        fbmodel.OperatorEndsWith,
					Values:    []fbvalue.Value{fbvalue.String("ce")},
				},
			},
		}},
	})
	flag := makeSegmentMatchFlag("s")
	assert.True(t, evaluateSegmentMatch(t, data, flag, "alice"))
	assert.False(t, evaluateSegmentMatch(t, data, flag, "alfred"))
}

func TestSegmentRuleWeightActsAsBucketFilter(t *testing.T) {
	matchAll := []fbmodel.Clause{{
		Attribute: fbuser.KeyAttribute,
		Op:        fbmodel.OperatorStartsWith,
		Values:    []fbvalue.Value{fbvalue.String("")},
	}}
	fullWeight := 100000
	zeroWeight := 0

	data := newTestData().
		addSegment(fbmodel.Segment{
			Key:   "everyone",
			Salt:  "salt",
			Rules: []fbmodel.SegmentRule{{Clauses: matchAll, Weight: &fullWeight}},
		}).
		addSegment(fbmodel.Segment{
			Key:   "noone",
			Salt:  "salt",
			Rules: []fbmodel.SegmentRule{{Clauses: matchAll, Weight: &zeroWeight}},
		})

	assert.True(t, evaluateSegmentMatch(t, data, makeSegmentMatchFlag("everyone"), "u"))
	assert.False(t, evaluateSegmentMatch(t, data, makeSegmentMatchFlag("noone"), "u"))
}

func TestSegmentMatchAnyOfSeveralSegments(t *testing.T) {
	data := newTestData().
		addSegment(fbmodel.Segment{Key: "s1", Included: []string{"other"}}).
		addSegment(fbmodel.Segment{Key: "s2", Included: []string{"alice"}})
	flag := makeSegmentMatchFlag("s1", "s2")
	assert.True(t, evaluateSegmentMatch(t, data, flag, "alice"))
}

func TestSegmentMatchWithUnknownSegmentIsNonMatch(t *testing.T) {
	flag := makeSegmentMatchFlag("no-such-segment")
	assert.False(t, evaluateSegmentMatch(t, newTestData(), flag, "alice"))
}

func segmentMatchClause(segmentKey string) fbmodel.Clause {
	return fbmodel.Clause{
		Op:     fbmodel.OperatorSegmentMatch,
		Values: []fbvalue.Value{fbvalue.String(segmentKey)},
	}
}

func TestMutuallyRecursiveSegmentsDoNotRecurseForever(t *testing.T) {
	// S1's rule references S2 and S2's rule references S1. Membership cannot be
	// established by following the cycle, so the clause is simply a non-match.
	data := newTestData().
		addSegment(fbmodel.Segment{
			Key:   "S1",
			Rules: []fbmodel.SegmentRule{{Clauses: []fbmodel.Clause{segmentMatchClause("S2")}}},
		}).
		addSegment(fbmodel.Segment{
			Key:   "S2",
			Rules: []fbmodel.SegmentRule{{Clauses: []fbmodel.Clause{segmentMatchClause("S1")}}},
		})
	flag := makeSegmentMatchFlag("S1")
	assert.False(t, evaluateSegmentMatch(t, data, flag, "any-user"))
}

func TestSelfReferentialSegmentDoesNotRecurseForever(t *testing.T) {
	data := newTestData().addSegment(fbmodel.Segment{
		Key:   "S1",
		Rules: []fbmodel.SegmentRule{{Clauses: []fbmodel.Clause{segmentMatchClause("S1")}}},
	})
	flag := makeSegmentMatchFlag("S1")
	assert.False(t, evaluateSegmentMatch(t, newTestData(), flag, "u"))
	assert.False(t, evaluateSegmentMatch(t, data, flag, "u"))
}

func TestRecursiveSegmentStillMatchesViaIncludedList(t *testing.T) {
	// The include list is checked before rules, so a cyclic rule does not prevent
	// explicitly included users from matching.
	data := newTestData().addSegment(fbmodel.Segment{
		Key:      "S1",
		Included: []string{"alice"},
		Rules:    []fbmodel.SegmentRule{{Clauses: []fbmodel.Clause{segmentMatchClause("S1")}}},
	})
	flag := makeSegmentMatchFlag("S1")
	assert.True(t, evaluateSegmentMatch(t, data, flag, "alice"))
}

func TestNonStringSegmentMatchValueIsIgnored(t *testing.T) {
	data := newTestData().addSegment(fbmodel.Segment{Key: "s", Included: []string{"alice"}})
	flag := fbmodel.FeatureFlag{
		Key: "flag",
		On:  true,
		Rules: []fbmodel.FlagRule{{
			VariationOrRollout: fbmodel.VariationOrRollout{Variation: intPtr(1)},
			Clauses: []fbmodel.Clause{{
				Op:     fbmodel.OperatorSegmentMatch,
				Values: []fbvalue.Value{fbvalue.Int(3)},
			}},
		}},
		Fallthrough: fbmodel.VariationOrRollout{Variation: intPtr(0)},
		Variations:  variations(fbvalue.Bool(false), fbvalue.Bool(true)),
	}
	assert.False(t, evaluateSegmentMatch(t, data, flag, "alice"))
}
