package internal

import (
	"fmt"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldlog"

	"github.com/featurebridge/go-server-sdk/fbmodel"
	"github.com/featurebridge/go-server-sdk/interfaces"
)

type allData struct {
	Flags    map[string]*fbmodel.FeatureFlag `json:"flags"`
	Segments map[string]*fbmodel.Segment     `json:"segments"`
}

// isHTTPErrorRecoverable reports whether an HTTP error status represents a condition
// that might resolve if the request is retried, as opposed to one that will keep
// happening (such as an invalid SDK key).
func isHTTPErrorRecoverable(statusCode int) bool {
	if statusCode >= 400 && statusCode < 500 {
		switch statusCode {
		case 400: // bad request
			return true
		case 408: // request timeout
			return true
		case 429: // too many requests
			return true
		default:
			return false // all other 4xx errors are unrecoverable
		}
	}
	return true
}

func httpErrorDescription(statusCode int) string {
	message := ""
	if statusCode == 401 || statusCode == 403 {
		message = " (invalid SDK key)"
	}
	return fmt.Sprintf("HTTP error %d%s", statusCode, message)
}

// checkIfErrorIsRecoverableAndLog logs an HTTP or network error at the appropriate
// level and returns whether it is recoverable.
func checkIfErrorIsRecoverableAndLog(
	loggers ldlog.Loggers,
	errorDesc, errorContext string,
	statusCode int,
	recoverableMessage string,
) bool {
	if statusCode > 0 && !isHTTPErrorRecoverable(statusCode) {
		loggers.Errorf("Error %s (giving up permanently): %s", errorContext, errorDesc)
		return false
	}
	loggers.Warnf("Error %s (%s): %s", errorContext, recoverableMessage, errorDesc)
	return true
}

// makeAllStoreData converts the parsed payload of a "put" event into the data set
// format used by DataStore.Init.
func makeAllStoreData(
	flags map[string]*fbmodel.FeatureFlag,
	segments map[string]*fbmodel.Segment,
) []interfaces.StoreCollection {
	flagsColl := make([]interfaces.StoreKeyedItemDescriptor, 0, len(flags))
	for key, flag := range flags {
		f := flag
		flagsColl = append(flagsColl, interfaces.StoreKeyedItemDescriptor{
			Key:  key,
			Item: interfaces.StoreItemDescriptor{Version: f.Version, Item: f},
		})
	}
	segmentsColl := make([]interfaces.StoreKeyedItemDescriptor, 0, len(segments))
	for key, segment := range segments {
		s := segment
		segmentsColl = append(segmentsColl, interfaces.StoreKeyedItemDescriptor{
			Key:  key,
			Item: interfaces.StoreItemDescriptor{Version: s.Version, Item: s},
		})
	}
	return []interfaces.StoreCollection{
		{Kind: interfaces.DataKindFeatures(), Items: flagsColl},
		{Kind: interfaces.DataKindSegments(), Items: segmentsColl},
	}
}
