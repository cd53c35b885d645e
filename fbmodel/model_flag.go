// Package fbmodel contains the data model for feature flags and user segments, along
// with the clause-matching logic that operates directly on the model.
//
// Application code does not normally use this package; flag data arrives in JSON form
// from the control plane and is deserialized here for use by the evaluator and the data
// stores.
package fbmodel

import (
	"github.com/featurebridge/go-server-sdk/fbuser"
	"github.com/featurebridge/go-server-sdk/fbvalue"
)

// FeatureFlag describes an individual feature flag.
type FeatureFlag struct {
	// Key is the unique string key of the feature flag.
	Key string `json:"key"`
	// On is true if targeting is turned on. When false, evaluation always returns
	// OffVariation and ignores every other field.
	On bool `json:"on"`
	// Prerequisites are conditions on other flags that must be met before this flag's
	// own targeting applies. If any prerequisite fails, the flag behaves as if off.
	Prerequisites []Prerequisite `json:"prerequisites"`
	// Targets are sets of individually targeted user keys. Targets take precedence over
	// Rules.
	Targets []Target `json:"targets"`
	// Rules are evaluated in order; the first rule whose clauses all match wins.
	Rules []FlagRule `json:"rules"`
	// Fallthrough determines the result when the flag is on but no target or rule
	// matched.
	Fallthrough VariationOrRollout `json:"fallthrough"`
	// OffVariation is the index of the variation to return when the flag is off or a
	// prerequisite fails. If nil, the result value is null.
	OffVariation *int `json:"offVariation"`
	// Variations is the ordered list of possible values. Variation indices elsewhere in
	// the flag refer to this list.
	Variations []fbvalue.Value `json:"variations"`
	// ClientSide is true if the flag is made available to client-side SDKs.
	ClientSide bool `json:"clientSide"`
	// Salt perturbs the rollout hash so that bucket assignments are consistent within a
	// flag but not correlated across flags.
	Salt string `json:"salt"`
	// TrackEvents tells the analytics pipeline to record full event data for every
	// evaluation of this flag.
	TrackEvents bool `json:"trackEvents"`
	// TrackEventsFallthrough tells the analytics pipeline to record full event data for
	// evaluations that resolved through the fallthrough.
	TrackEventsFallthrough bool `json:"trackEventsFallthrough"`
	// DebugEventsUntilDate, if non-nil, enables debug event output until the given
	// millisecond timestamp.
	DebugEventsUntilDate *uint64 `json:"debugEventsUntilDate"`
	// Version is incremented by the control plane on every change to the flag.
	Version int `json:"version"`
	// Deleted is true if this object is a tombstone for a deleted flag.
	Deleted bool `json:"deleted"`
}

// GetKey returns the flag key.
func (f *FeatureFlag) GetKey() string {
	return f.Key
}

// GetVersion returns the flag version.
func (f *FeatureFlag) GetVersion() int {
	return f.Version
}

// IsExperimentationEnabled returns true if evaluations that produced the given reason
// should be treated as part of an experiment, forcing full event data and a reason in
// the event output.
func (f *FeatureFlag) IsExperimentationEnabled(reason ReasonParams) bool {
	if reason.InExperiment {
		return true
	}
	switch {
	case reason.Fallthrough:
		return f.TrackEventsFallthrough
	case reason.RuleIndex >= 0 && reason.RuleIndex < len(f.Rules):
		return f.Rules[reason.RuleIndex].TrackEvents
	}
	return false
}

// ReasonParams carries the properties of an evaluation reason that the model needs for
// event-tracking decisions, without depending on the reason package.
type ReasonParams struct {
	Fallthrough  bool
	RuleIndex    int
	InExperiment bool
}

// FlagRule is a set of ANDed clauses plus the variation or rollout to use when they all
// match.
type FlagRule struct {
	VariationOrRollout
	// ID is a stable identifier assigned to the rule when it is created; it appears in
	// rule-match reasons so that analytics are unaffected by rule reordering.
	ID string `json:"id,omitempty"`
	// Clauses must all match for the rule to match.
	Clauses []Clause `json:"clauses"`
	// TrackEvents tells the analytics pipeline to record full event data for
	// evaluations that matched this rule.
	TrackEvents bool `json:"trackEvents"`
}

// RolloutKind describes whether a rollout is a plain percentage rollout or an
// experiment.
type RolloutKind string

const (
	// RolloutKindRollout is the default: a plain percentage rollout.
	RolloutKindRollout RolloutKind = "rollout"
	// RolloutKindExperiment marks the rollout as an experiment; buckets not marked
	// untracked report inExperiment in the evaluation reason.
	RolloutKindExperiment RolloutKind = "experiment"
)

// VariationOrRollout specifies either a fixed variation index or a percentage rollout.
// Exactly one of the two fields should be set; a value with neither is malformed.
type VariationOrRollout struct {
	// Variation, if non-nil, is the index of the variation to return.
	Variation *int `json:"variation,omitempty"`
	// Rollout, if non-nil, assigns the user to a variation by deterministic bucketing.
	Rollout *Rollout `json:"rollout,omitempty"`
}

// Rollout describes how users are bucketed into variations.
type Rollout struct {
	// Kind distinguishes experiments from plain rollouts. An empty value means
	// RolloutKindRollout.
	Kind RolloutKind `json:"kind,omitempty"`
	// Variations lists each bucket's variation index and weight. Weights are integers
	// out of 100000 and should sum to 100000; any shortfall is absorbed by the last
	// bucket.
	Variations []WeightedVariation `json:"variations"`
	// BucketBy is the user attribute whose value is hashed to pick a bucket. If nil,
	// the user key is used.
	BucketBy *fbuser.UserAttribute `json:"bucketBy,omitempty"`
}

// IsExperiment returns true if the rollout is an experiment.
func (r Rollout) IsExperiment() bool {
	return r.Kind == RolloutKindExperiment
}

// WeightedVariation is one bucket of a rollout.
type WeightedVariation struct {
	// Variation is the index of the variation for this bucket.
	Variation int `json:"variation"`
	// Weight is the proportion of users in this bucket, out of 100000.
	Weight int `json:"weight"`
	// Untracked, in an experiment rollout, marks a bucket that is excluded from the
	// experiment.
	Untracked bool `json:"untracked,omitempty"`
}

// Clause is a single test against a user attribute.
type Clause struct {
	// Attribute is the user attribute being tested. Not used when Op is OperatorSegmentMatch.
	Attribute fbuser.UserAttribute `json:"attribute"`
	// Op is the comparison operator.
	Op Operator `json:"op"`
	// Values are ORed: the clause matches if the attribute matches any of them. For
	// OperatorSegmentMatch each value is a segment key.
	Values []fbvalue.Value `json:"values"`
	// Negate inverts the result. A clause that never ran its tests (because the
	// attribute was unset) is a non-match regardless of Negate.
	Negate bool `json:"negate"`
}

// Target is a set of user keys mapped directly to a variation.
type Target struct {
	// Values is the set of user keys.
	Values []string `json:"values"`
	// Variation is the index of the variation to return for those keys.
	Variation int `json:"variation"`
}

// Prerequisite requires another flag to return a specific variation. The condition is
// met only if the prerequisite flag is on and returns that variation; an off flag fails
// the condition even if its off variation happens to match.
type Prerequisite struct {
	// Key is the key of the prerequisite flag.
	Key string `json:"key"`
	// Variation is the variation index the prerequisite flag must return.
	Variation int `json:"variation"`
}

// TargetContainsKey tests whether a user key is in the target's key set.
func TargetContainsKey(t *Target, key string) bool {
	for _, value := range t.Values {
		if value == key {
			return true
		}
	}
	return false
}
