package fbmodel

import (
	"regexp"
	"time"

	"github.com/blang/semver"

	"github.com/featurebridge/go-server-sdk/fbvalue"
)

var versionNumericComponentsRegex = regexp.MustCompile(`^\d+(\.\d+)?(\.\d+)?`) //nolint:gochecknoglobals

func parseDateTime(value fbvalue.Value) (time.Time, bool) {
	switch value.Type() {
	case fbvalue.StringType:
		if t, err := time.Parse(time.RFC3339Nano, value.StringValue()); err == nil {
			return t.UTC(), true
		}
	case fbvalue.NumberType:
		return unixMillisToUTCTime(value.Float64Value()), true
	}
	return time.Time{}, false
}

func unixMillisToUTCTime(unixMillis float64) time.Time {
	return time.Unix(0, int64(unixMillis)*int64(time.Millisecond)).UTC()
}

// parseSemVer parses a string per semver 2.0, with the relaxation that a missing minor
// or patch component is treated as zero ("2" is "2.0.0", "2.1-beta" is "2.1.0-beta").
func parseSemVer(value fbvalue.Value) (semver.Version, bool) {
	if value.Type() != fbvalue.StringType {
		return semver.Version{}, false
	}
	versionStr := value.StringValue()
	if sv, err := semver.Parse(versionStr); err == nil {
		return sv, true
	}
	matchParts := versionNumericComponentsRegex.FindStringSubmatch(versionStr)
	if matchParts != nil {
		transformed := matchParts[0]
		for i := 1; i < len(matchParts); i++ {
			if matchParts[i] == "" {
				transformed += ".0"
			}
		}
		transformed += versionStr[len(matchParts[0]):]
		if sv, err := semver.Parse(transformed); err == nil {
			return sv, true
		}
	}
	return semver.Version{}, false
}
