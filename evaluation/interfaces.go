// Package evaluation contains the engine that computes the value of a feature flag for
// a user. The evaluator is pure: it performs no I/O, holds no mutable state, and is safe
// for any number of concurrent callers.
package evaluation

import (
	"github.com/featurebridge/go-server-sdk/fbmodel"
	"github.com/featurebridge/go-server-sdk/fbreason"
	"github.com/featurebridge/go-server-sdk/fbuser"
)

// Evaluator is the engine for evaluating feature flags.
type Evaluator interface {
	// Evaluate computes the value of a feature flag for the given user.
	//
	// The flag is passed by reference for efficiency only; it is never modified.
	// Passing a nil flag will panic.
	//
	// The evaluator knows nothing about analytics events. If the caller needs to know
	// about prerequisite evaluations done along the way, it can supply a
	// prerequisiteFlagEventRecorder; the recorder is invoked for each prerequisite,
	// including failed ones, before Evaluate returns the parent flag's result. The
	// recorder may be nil.
	Evaluate(
		flag *fbmodel.FeatureFlag,
		user fbuser.User,
		prerequisiteFlagEventRecorder PrerequisiteFlagEventRecorder,
	) fbreason.EvaluationDetail
}

// PrerequisiteFlagEventRecorder is a function that Evaluator.Evaluate calls to record
// the result of a prerequisite flag evaluation.
type PrerequisiteFlagEventRecorder func(PrerequisiteFlagEvent)

// PrerequisiteFlagEvent is the parameter data passed to PrerequisiteFlagEventRecorder.
type PrerequisiteFlagEvent struct {
	// TargetFlagKey is the key of the flag that declared the prerequisite.
	TargetFlagKey string
	// User is the user the evaluation was done for.
	User fbuser.User
	// PrerequisiteFlag is the full prerequisite flag. The whole flag is provided, not
	// just the key, because flag properties such as TrackEvents affect how the caller
	// generates events. It is never nil and must not be modified.
	PrerequisiteFlag *fbmodel.FeatureFlag
	// PrerequisiteResult is the result of evaluating the prerequisite flag.
	PrerequisiteResult fbreason.EvaluationDetail
}

// DataProvider is the evaluator's read view of the data store. Flags and segments are
// returned by reference for efficiency; the evaluator never modifies them.
//
// Implementations must treat deleted items as not found, even if the underlying store
// holds a tombstone for them.
type DataProvider interface {
	// GetFeatureFlag retrieves a flag by key, or nil if not found. Called when a flag
	// has a prerequisite.
	GetFeatureFlag(key string) *fbmodel.FeatureFlag
	// GetSegment retrieves a segment by key, or nil if not found. Called when a rule
	// clause uses fbmodel.OperatorSegmentMatch.
	GetSegment(key string) *fbmodel.Segment
}
