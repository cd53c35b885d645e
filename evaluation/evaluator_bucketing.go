package evaluation

import (
	"crypto/sha1" //nolint:gosec // SHA-1 is used as a bucketing hash, not for credentials
	"encoding/hex"
	"io"
	"strconv"

	"github.com/featurebridge/go-server-sdk/fbuser"
	"github.com/featurebridge/go-server-sdk/fbvalue"
)

// longScale is the denominator that maps the first 15 hex digits of the hash onto
// [0, 1).
const longScale = float32(0xFFFFFFFFFFFFFFF)

// bucketUser computes the user's rollout position for the given flag or segment key and
// salt. The result is deterministic in (key, salt, attribute value, secondary key): the
// same inputs always land in the same bucket, on any SDK instance.
func (es *evaluationScope) bucketUser(key string, attr fbuser.UserAttribute, salt string) float32 {
	uValue := es.user.GetAttribute(attr)
	idHash, ok := bucketableStringValue(uValue)
	if !ok {
		return 0
	}

	if secondary := es.user.GetSecondaryKey(); secondary.IsDefined() {
		idHash = idHash + "." + secondary.StringValue()
	}

	h := sha1.New() //nolint:gosec // see package comment above
	_, _ = io.WriteString(h, key+"."+salt+"."+idHash)
	hash := hex.EncodeToString(h.Sum(nil))[:15]

	intVal, _ := strconv.ParseInt(hash, 16, 64)

	return float32(intVal) / longScale
}

// bucketableStringValue converts an attribute value to the string that is hashed.
// Strings are used as-is and integers are written in decimal; any other type (floats
// included, since their formatting is ambiguous) cannot be bucketed.
func bucketableStringValue(uValue fbvalue.Value) (string, bool) {
	if uValue.Type() == fbvalue.StringType {
		return uValue.StringValue(), true
	}
	if uValue.IsInt() {
		return strconv.Itoa(uValue.IntValue()), true
	}
	return "", false
}
