package evaluation

import (
	"crypto/sha1" //nolint:gosec
	"encoding/hex"
	"io"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/featurebridge/go-server-sdk/fbmodel"
	"github.com/featurebridge/go-server-sdk/fbreason"
	"github.com/featurebridge/go-server-sdk/fbuser"
	"github.com/featurebridge/go-server-sdk/fbvalue"
)

// expectedBucket independently recomputes the bucket value so the tests assert the
// exact hashing contract, not just self-consistency of bucketUser.
func expectedBucket(key, salt, idHash string) float32 {
	h := sha1.New() //nolint:gosec
	_, _ = io.WriteString(h, key+"."+salt+"."+idHash)
	hash := hex.EncodeToString(h.Sum(nil))[:15]
	intVal, _ := strconv.ParseInt(hash, 16, 64)
	return float32(intVal) / float32(0xFFFFFFFFFFFFFFF)
}

func scopeForUser(user fbuser.User) *evaluationScope {
	e := NewEvaluator(newTestData()).(*evaluator)
	return &evaluationScope{owner: e, user: user}
}

func TestBucketUserByKey(t *testing.T) {
	es := scopeForUser(fbuser.NewUser("userKeyA"))
	bucket := es.bucketUser("hashKey", fbuser.KeyAttribute, "saltyA")
	assert.Equal(t, expectedBucket("hashKey", "saltyA", "userKeyA"), bucket)
	assert.True(t, bucket >= 0 && bucket < 1)

	// Determinism: the same inputs always produce the same bucket.
	assert.Equal(t, bucket, es.bucketUser("hashKey", fbuser.KeyAttribute, "saltyA"))

	// Different users land in different places.
	esB := scopeForUser(fbuser.NewUser("userKeyB"))
	assert.NotEqual(t, bucket, esB.bucketUser("hashKey", fbuser.KeyAttribute, "saltyA"))
}

func TestBucketUserWithSecondaryKey(t *testing.T) {
	plain := scopeForUser(fbuser.NewUser("userKey"))
	withSecondary := scopeForUser(fbuser.NewUserBuilder("userKey").Secondary("mySecondary").Build())

	assert.Equal(t, expectedBucket("hashKey", "salt", "userKey"),
		plain.bucketUser("hashKey", fbuser.KeyAttribute, "salt"))
	assert.Equal(t, expectedBucket("hashKey", "salt", "userKey.mySecondary"),
		withSecondary.bucketUser("hashKey", fbuser.KeyAttribute, "salt"))
}

func TestBucketUserByCustomAttribute(t *testing.T) {
	user := fbuser.NewUserBuilder("userKey").Custom("intAttr", fbvalue.Int(33333)).Build()
	es := scopeForUser(user)

	// Integer attributes are bucketed by their decimal string form.
	assert.Equal(t, expectedBucket("hashKey", "salt", "33333"),
		es.bucketUser("hashKey", fbuser.UserAttribute("intAttr"), "salt"))

	// Floats, booleans, and missing attributes cannot be bucketed.
	floatUser := fbuser.NewUserBuilder("userKey").Custom("floatAttr", fbvalue.Float64(999.999)).Build()
	assert.Equal(t, float32(0),
		scopeForUser(floatUser).bucketUser("hashKey", fbuser.UserAttribute("floatAttr"), "salt"))
	boolUser := fbuser.NewUserBuilder("userKey").Custom("boolAttr", fbvalue.Bool(true)).Build()
	assert.Equal(t, float32(0),
		scopeForUser(boolUser).bucketUser("hashKey", fbuser.UserAttribute("boolAttr"), "salt"))
	assert.Equal(t, float32(0),
		es.bucketUser("hashKey", fbuser.UserAttribute("missingAttr"), "salt"))
}

func TestRolloutBucketAssignmentIsBitExact(t *testing.T) {
	// Spec-level contract: the bucket for user "u1" in flag "f" with salt "s" is the
	// first 15 hex digits of SHA-1("f.s.u1") scaled to [0,1), and the variation is the
	// first bucket whose cumulative weight exceeds it.
	rollout := &fbmodel.Rollout{Variations: []fbmodel.WeightedVariation{
		{Variation: 0, Weight: 60000},
		{Variation: 1, Weight: 40000},
	}}
	flag := fbmodel.FeatureFlag{
		Key:  "f",
		On:   true,
		Salt: "s",
		Rules: []fbmodel.FlagRule{{
			ID:                 "r",
			VariationOrRollout: fbmodel.VariationOrRollout{Rollout: rollout},
			Clauses: []fbmodel.Clause{{
				Attribute: fbuser.EmailAttribute,
				Op:        fbmodel.OperatorEndsWith,
				Values:    []fbvalue.Value{fbvalue.String("@acme.com")},
			}},
		}},
		Fallthrough: fbmodel.VariationOrRollout{Variation: intPtr(0)},
		Variations:  variations(fbvalue.String("v0"), fbvalue.String("v1")),
	}

	bucket := expectedBucket("f", "s", "u1")
	expectedVariation := 0
	if bucket >= 0.6 {
		expectedVariation = 1
	}

	user := fbuser.NewUserBuilder("u1").Email("u1@acme.com").Build()
	result := NewEvaluator(newTestData()).Evaluate(&flag, user, nil)
	assert.Equal(t, expectedVariation, result.VariationIndex)
	assert.Equal(t, fbreason.NewEvalReasonRuleMatch(0, "r"), result.Reason)
}

func TestRolloutUsesBucketByAttribute(t *testing.T) {
	countryAttr := fbuser.CountryAttribute
	rollout := &fbmodel.Rollout{
		BucketBy: &countryAttr,
		Variations: []fbmodel.WeightedVariation{
			{Variation: 0, Weight: 50000},
			{Variation: 1, Weight: 50000},
		},
	}
	vr := fbmodel.VariationOrRollout{Rollout: rollout}

	// Two users with different keys but the same country bucket identically.
	u1 := fbuser.NewUserBuilder("key1").Country("gb").Build()
	u2 := fbuser.NewUserBuilder("key2").Country("gb").Build()
	i1, _ := scopeForUser(u1).variationIndexForUser(vr, "flagKey", "salt")
	i2, _ := scopeForUser(u2).variationIndexForUser(vr, "flagKey", "salt")
	assert.Equal(t, i1, i2)
}

func TestRolloutWithUnbucketableAttributeUsesFirstBucket(t *testing.T) {
	// An absent bucketBy attribute yields bucket 0, which falls in the first bucket
	// with any nonzero weight.
	missingAttr := fbuser.UserAttribute("notSet")
	vr := fbmodel.VariationOrRollout{Rollout: &fbmodel.Rollout{
		BucketBy: &missingAttr,
		Variations: []fbmodel.WeightedVariation{
			{Variation: 5, Weight: 1},
			{Variation: 6, Weight: 99999},
		},
	}}
	index, _ := scopeForUser(fbuser.NewUser("k")).variationIndexForUser(vr, "flagKey", "salt")
	assert.Equal(t, 5, index)
}

func TestRolloutWeightShortfallPutsUserInLastBucket(t *testing.T) {
	// Weights summing to less than 100000 leave a gap; users whose bucket value lands
	// in the gap are assigned to the last bucket rather than failing.
	vr := fbmodel.VariationOrRollout{Rollout: &fbmodel.Rollout{
		Variations: []fbmodel.WeightedVariation{{Variation: 0, Weight: 1}},
	}}

	// Find a user key whose bucket value is well beyond weight 1/100000.
	var es *evaluationScope
	for _, key := range []string{"userKeyA", "userKeyB", "userKeyC"} {
		candidate := scopeForUser(fbuser.NewUser(key))
		if candidate.bucketUser("flagKey", fbuser.KeyAttribute, "salt") > 0.1 {
			es = candidate
			break
		}
	}
	require.NotNil(t, es)

	index, _ := es.variationIndexForUser(vr, "flagKey", "salt")
	assert.Equal(t, 0, index)
}
