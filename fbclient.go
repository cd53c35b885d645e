// Package fbclient is the FeatureBridge server-side SDK client. The client maintains a
// local copy of the flag ruleset, kept current over a streaming connection, and
// evaluates flags synchronously against it.
//
//	client, err := fbclient.MakeClient("sdk-key", fbclient.Config{}, 5*time.Second)
//	if err != nil { ... }
//	defer client.Close()
//
//	showFeature, _ := client.BoolVariation("my-flag", fbuser.NewUser("user-key"), false)
package fbclient

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldlog"

	"github.com/featurebridge/go-server-sdk/evaluation"
	"github.com/featurebridge/go-server-sdk/fbmodel"
	"github.com/featurebridge/go-server-sdk/fbreason"
	"github.com/featurebridge/go-server-sdk/fbuser"
	"github.com/featurebridge/go-server-sdk/fbvalue"
	"github.com/featurebridge/go-server-sdk/flagstate"
	"github.com/featurebridge/go-server-sdk/interfaces"
	"github.com/featurebridge/go-server-sdk/internal"
)

// Version is the SDK version string reported in the User-Agent of control-plane
// requests.
const Version = "1.0.0"

// Client is the FeatureBridge SDK client. All of its methods are safe for concurrent
// use.
type Client struct {
	sdkKey     string
	config     Config
	store      interfaces.DataStore
	dataSource interfaces.DataSource
	evaluator  evaluation.Evaluator
	loggers    ldlog.Loggers
}

// ErrInitializationTimeout is returned by MakeClient when the timeout elapses before
// the first full data set arrives. The client is still returned and keeps connecting in
// the background.
var ErrInitializationTimeout = errors.New("timeout encountered waiting for client initialization")

// ErrInitializationFailed is returned by MakeClient when the data source has failed
// permanently, for example because the SDK key was rejected.
var ErrInitializationFailed = errors.New("client initialization failed permanently")

// MakeClient creates a client and blocks up to waitFor for the first full ruleset to
// arrive. On timeout it returns both the client and ErrInitializationTimeout; the
// client can still be used, and until initialization completes evaluations either
// return defaults with a CLIENT_NOT_READY reason or, if a persistent store already
// holds data from another SDK instance, serve that data.
func MakeClient(sdkKey string, config Config, waitFor time.Duration) (*Client, error) {
	config = config.withDefaults()
	loggers := config.Loggers

	client := &Client{
		sdkKey:  sdkKey,
		config:  config,
		loggers: loggers,
	}

	client.store = config.DataStore
	if client.store == nil {
		if config.PersistentDataStore != nil {
			client.store = internal.NewPersistentDataStoreWrapper(
				config.PersistentDataStore, config.PersistentDataStoreCacheTTL, loggers)
		} else {
			client.store = internal.NewInMemoryDataStore(loggers)
		}
	}

	client.evaluator = evaluation.NewEvaluator(
		internal.NewDataStoreEvaluatorDataProvider(client.store, loggers))

	if config.Offline {
		loggers.Info("Starting client in offline mode")
		return client, nil
	}

	if config.DataSourceFactory != nil {
		client.dataSource = config.DataSourceFactory(client.store)
	} else {
		headers := make(http.Header)
		headers.Set("Authorization", sdkKey)
		headers.Set("User-Agent", "FeatureBridgeGoClient/"+Version)
		client.dataSource = internal.NewStreamProcessor(
			client.store,
			config.HTTPClient,
			headers,
			loggers,
			config.StreamURI,
			config.InitialReconnectDelay,
		)
	}

	closeWhenReady := make(chan struct{})
	client.dataSource.Start(closeWhenReady)

	if waitFor <= 0 {
		return client, nil
	}
	loggers.Infof("Waiting up to %d milliseconds for client initialization...",
		waitFor/time.Millisecond)
	timeout := time.NewTimer(waitFor)
	defer timeout.Stop()
	select {
	case <-closeWhenReady:
		if !client.dataSource.IsInitialized() {
			return client, ErrInitializationFailed
		}
		return client, nil
	case <-timeout.C:
		loggers.Warn("Timeout exceeded when initializing client")
		return client, ErrInitializationTimeout
	}
}

// Initialized returns whether the client has received its first full ruleset.
func (client *Client) Initialized() bool {
	if client.config.Offline {
		return false
	}
	return client.dataSource.IsInitialized()
}

// Close shuts down the client: the stream is torn down and the data store is closed.
// In-flight evaluations complete normally.
func (client *Client) Close() error {
	client.loggers.Info("Closing client")
	if client.dataSource != nil {
		_ = client.dataSource.Close()
	}
	return client.store.Close()
}

// BoolVariation returns the value of a boolean flag for the given user. It returns
// defaultVal if there is an error, if the flag has no value, or if the value is not a
// boolean.
func (client *Client) BoolVariation(key string, user fbuser.User, defaultVal bool) (bool, error) {
	detail, err := client.variation(key, user, fbvalue.Bool(defaultVal), true)
	return detail.Value.BoolValue(), err
}

// BoolVariationDetail is the same as BoolVariation, but also returns the evaluation
// reason.
func (client *Client) BoolVariationDetail(
	key string, user fbuser.User, defaultVal bool,
) (bool, fbreason.EvaluationDetail, error) {
	detail, err := client.variation(key, user, fbvalue.Bool(defaultVal), true)
	return detail.Value.BoolValue(), detail, err
}

// IntVariation returns the value of an integer flag for the given user. A numeric flag
// value with a fractional component is truncated toward zero.
func (client *Client) IntVariation(key string, user fbuser.User, defaultVal int) (int, error) {
	detail, err := client.variation(key, user, fbvalue.Int(defaultVal), true)
	return detail.Value.IntValue(), err
}

// IntVariationDetail is the same as IntVariation, but also returns the evaluation
// reason.
func (client *Client) IntVariationDetail(
	key string, user fbuser.User, defaultVal int,
) (int, fbreason.EvaluationDetail, error) {
	detail, err := client.variation(key, user, fbvalue.Int(defaultVal), true)
	return detail.Value.IntValue(), detail, err
}

// Float64Variation returns the value of a numeric flag for the given user.
func (client *Client) Float64Variation(key string, user fbuser.User, defaultVal float64) (float64, error) {
	detail, err := client.variation(key, user, fbvalue.Float64(defaultVal), true)
	return detail.Value.Float64Value(), err
}

// Float64VariationDetail is the same as Float64Variation, but also returns the
// evaluation reason.
func (client *Client) Float64VariationDetail(
	key string, user fbuser.User, defaultVal float64,
) (float64, fbreason.EvaluationDetail, error) {
	detail, err := client.variation(key, user, fbvalue.Float64(defaultVal), true)
	return detail.Value.Float64Value(), detail, err
}

// StringVariation returns the value of a string flag for the given user.
func (client *Client) StringVariation(key string, user fbuser.User, defaultVal string) (string, error) {
	detail, err := client.variation(key, user, fbvalue.String(defaultVal), true)
	return detail.Value.StringValue(), err
}

// StringVariationDetail is the same as StringVariation, but also returns the evaluation
// reason.
func (client *Client) StringVariationDetail(
	key string, user fbuser.User, defaultVal string,
) (string, fbreason.EvaluationDetail, error) {
	detail, err := client.variation(key, user, fbvalue.String(defaultVal), true)
	return detail.Value.StringValue(), detail, err
}

// JSONVariation returns the value of a flag of any JSON type for the given user. No
// type checking is applied.
func (client *Client) JSONVariation(
	key string, user fbuser.User, defaultVal fbvalue.Value,
) (fbvalue.Value, error) {
	detail, err := client.variation(key, user, defaultVal, false)
	return detail.Value, err
}

// JSONVariationDetail is the same as JSONVariation, but also returns the evaluation
// reason.
func (client *Client) JSONVariationDetail(
	key string, user fbuser.User, defaultVal fbvalue.Value,
) (fbvalue.Value, fbreason.EvaluationDetail, error) {
	detail, err := client.variation(key, user, defaultVal, false)
	return detail.Value, detail, err
}

// AllFlagsState evaluates every flag for the user and returns a snapshot of the
// results. A failed prerequisite short-circuits the individual flag but never the
// snapshot. This method does not generate analytics events.
func (client *Client) AllFlagsState(user fbuser.User, options ...flagstate.Option) flagstate.AllFlags {
	if client.config.Offline {
		client.loggers.Warn("Called AllFlagsState in offline mode. Returning empty state")
		return flagstate.MakeInvalidSnapshot()
	}
	if user.GetKey() == "" {
		client.loggers.Warn("Called AllFlagsState with empty user key. Returning empty state")
		return flagstate.MakeInvalidSnapshot()
	}
	if !client.Initialized() {
		if client.store.IsInitialized() {
			client.loggers.Warn("Called AllFlagsState before client initialization; using last known values from data store")
		} else {
			client.loggers.Warn("Called AllFlagsState before client initialization. Data store not available; returning empty state")
			return flagstate.MakeInvalidSnapshot()
		}
	}

	items, err := client.store.GetAll(interfaces.DataKindFeatures())
	if err != nil {
		client.loggers.Warnf("Unable to fetch flags from data store. Returning empty state. Error: %s", err)
		return flagstate.MakeInvalidSnapshot()
	}

	clientSideOnly := flagstate.HasOption(options, flagstate.ClientSideOnly)
	builder := flagstate.NewAllFlagsBuilder(options...)
	for _, item := range items {
		flag, ok := item.Item.Item.(*fbmodel.FeatureFlag)
		if !ok {
			// tombstones and anything unexpected are skipped
			continue
		}
		if clientSideOnly && !flag.ClientSide {
			continue
		}

		result := client.evaluator.Evaluate(flag, user, nil)

		trackReason := flag.IsExperimentationEnabled(reasonParamsFor(result.Reason))
		var debugEventsUntilDate uint64
		if flag.DebugEventsUntilDate != nil {
			debugEventsUntilDate = *flag.DebugEventsUntilDate
		}
		builder.AddFlag(flag.Key, flagstate.FlagState{
			Value:                result.Value,
			Variation:            result.VariationIndex,
			Version:              flag.Version,
			Reason:               result.Reason,
			TrackEvents:          flag.TrackEvents || trackReason,
			TrackReason:          trackReason,
			DebugEventsUntilDate: debugEventsUntilDate,
		})
	}

	return builder.Build()
}

func reasonParamsFor(reason fbreason.EvaluationReason) fbmodel.ReasonParams {
	return fbmodel.ReasonParams{
		Fallthrough:  reason.GetKind() == fbreason.EvalReasonFallthrough,
		RuleIndex:    reason.GetRuleIndex(),
		InExperiment: reason.IsInExperiment(),
	}
}

// variation is the common evaluation path for all the typed variation methods.
func (client *Client) variation(
	key string,
	user fbuser.User,
	defaultVal fbvalue.Value,
	checkType bool,
) (detail fbreason.EvaluationDetail, err error) {
	if client.config.Offline {
		return fbreason.NewEvaluationDetailForError(fbreason.EvalErrorClientNotReady, defaultVal), nil
	}

	// Evaluation must never panic across the public surface; anything unexpected
	// surfaces as an EXCEPTION error reason with the default value.
	defer func() {
		if r := recover(); r != nil {
			client.loggers.Errorf("Unexpected panic in flag evaluation: %+v", r)
			detail = fbreason.NewEvaluationDetailForError(fbreason.EvalErrorException, defaultVal)
			err = fmt.Errorf("unexpected panic in flag evaluation: %+v", r)
		}
	}()

	if !client.Initialized() {
		if client.store.IsInitialized() {
			client.loggers.Warn("Feature flag evaluation called before client initialization; using last known values from data store")
		} else {
			client.loggers.Warn("Feature flag evaluation called before client initialization. Data store not available; returning default value")
			return fbreason.NewEvaluationDetailForError(fbreason.EvalErrorClientNotReady, defaultVal),
				ErrClientNotInitialized
		}
	}

	item, err := client.store.Get(interfaces.DataKindFeatures(), key)
	if err != nil {
		return fbreason.NewEvaluationDetailForError(fbreason.EvalErrorException, defaultVal), err
	}
	flag, ok := item.Item.(*fbmodel.FeatureFlag)
	if !ok || flag == nil {
		return fbreason.NewEvaluationDetailForError(fbreason.EvalErrorFlagNotFound, defaultVal),
			fmt.Errorf("unknown feature key: %s. Verify that this feature key exists", key)
	}

	result := client.evaluator.Evaluate(flag, user, nil)
	if result.Reason.GetKind() == fbreason.EvalReasonError {
		result.Value = defaultVal
		return result, nil
	}
	if result.IsDefaultValue() {
		result.Value = defaultVal
		return result, nil
	}
	if checkType && defaultVal.Type() != fbvalue.NullType && result.Value.Type() != defaultVal.Type() {
		return fbreason.NewEvaluationDetailForError(fbreason.EvalErrorWrongType, defaultVal), nil
	}
	return result, nil
}

// ErrClientNotInitialized is returned with the default value when evaluation happens
// before the client has any data at all.
var ErrClientNotInitialized = errors.New("feature flag evaluation called before client initialization")
