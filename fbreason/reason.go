// Package fbreason defines the types that describe why a flag evaluation produced its
// result.
package fbreason

import (
	"encoding/json"
	"fmt"
)

// EvalReasonKind defines the possible values of EvaluationReason.GetKind().
//
// The serialized form of each kind is a stable identifier consumed by analytics; it must
// never change.
type EvalReasonKind string

const (
	// EvalReasonOff indicates that the flag was off and returned its configured off
	// variation.
	EvalReasonOff EvalReasonKind = "OFF"
	// EvalReasonTargetMatch indicates that the user key was specifically targeted.
	EvalReasonTargetMatch EvalReasonKind = "TARGET_MATCH"
	// EvalReasonRuleMatch indicates that the user matched one of the flag's rules.
	EvalReasonRuleMatch EvalReasonKind = "RULE_MATCH"
	// EvalReasonPrerequisiteFailed indicates that the flag was treated as off because a
	// prerequisite flag was off, missing, or did not return the required variation.
	EvalReasonPrerequisiteFailed EvalReasonKind = "PREREQUISITE_FAILED"
	// EvalReasonFallthrough indicates that the flag was on but the user matched no
	// targets or rules.
	EvalReasonFallthrough EvalReasonKind = "FALLTHROUGH"
	// EvalReasonError indicates that the flag could not be evaluated, so the default
	// value was returned.
	EvalReasonError EvalReasonKind = "ERROR"
)

// EvalErrorKind defines the possible values of EvaluationReason.GetErrorKind().
type EvalErrorKind string

const (
	// EvalErrorClientNotReady indicates that evaluation was attempted before the client
	// had received its first full data set.
	EvalErrorClientNotReady EvalErrorKind = "CLIENT_NOT_READY"
	// EvalErrorFlagNotFound indicates that the flag key did not match any known flag.
	EvalErrorFlagNotFound EvalErrorKind = "FLAG_NOT_FOUND"
	// EvalErrorMalformedFlag indicates an inconsistency in the flag data, such as a
	// variation index that is out of range.
	EvalErrorMalformedFlag EvalErrorKind = "MALFORMED_FLAG"
	// EvalErrorUserNotSpecified indicates that the user was nil or had an empty key.
	EvalErrorUserNotSpecified EvalErrorKind = "USER_NOT_SPECIFIED"
	// EvalErrorWrongType indicates that a typed variation method was called but the
	// flag's value was of a different type.
	EvalErrorWrongType EvalErrorKind = "WRONG_TYPE"
	// EvalErrorException indicates an unexpected internal error.
	EvalErrorException EvalErrorKind = "EXCEPTION"
)

// EvaluationReason is a tagged variant describing why an evaluation produced its result.
// It is immutable; properties are read through getter methods.
type EvaluationReason struct {
	kind            EvalReasonKind
	ruleIndex       int
	ruleID          string
	prerequisiteKey string
	errorKind       EvalErrorKind
	inExperiment    bool
}

// String returns a concise description such as "OFF" or "ERROR(WRONG_TYPE)".
func (r EvaluationReason) String() string {
	switch r.kind {
	case EvalReasonRuleMatch:
		return fmt.Sprintf("%s(%d,%s)", r.kind, r.ruleIndex, r.ruleID)
	case EvalReasonPrerequisiteFailed:
		return fmt.Sprintf("%s(%s)", r.kind, r.prerequisiteKey)
	case EvalReasonError:
		return fmt.Sprintf("%s(%s)", r.kind, r.errorKind)
	default:
		return string(r.kind)
	}
}

// GetKind returns the general category of the reason.
func (r EvaluationReason) GetKind() EvalReasonKind {
	return r.kind
}

// GetRuleIndex returns the index of the matched rule (0 for the first), if the kind is
// EvalReasonRuleMatch; otherwise -1.
func (r EvaluationReason) GetRuleIndex() int {
	if r.kind == EvalReasonRuleMatch {
		return r.ruleIndex
	}
	return -1
}

// GetRuleID returns the stable identifier of the matched rule, if the kind is
// EvalReasonRuleMatch; otherwise an empty string.
func (r EvaluationReason) GetRuleID() string {
	return r.ruleID
}

// GetPrerequisiteKey returns the key of the failed prerequisite flag, if the kind is
// EvalReasonPrerequisiteFailed; otherwise an empty string.
func (r EvaluationReason) GetPrerequisiteKey() string {
	return r.prerequisiteKey
}

// GetErrorKind returns the category of the error, if the kind is EvalReasonError;
// otherwise an empty string.
func (r EvaluationReason) GetErrorKind() EvalErrorKind {
	return r.errorKind
}

// IsInExperiment returns true if the evaluation resulted from an experiment rollout
// placing the user in a bucket that is part of the experiment.
func (r EvaluationReason) IsInExperiment() bool {
	return r.inExperiment
}

// NewEvalReasonOff returns an EvaluationReason whose kind is EvalReasonOff.
func NewEvalReasonOff() EvaluationReason {
	return EvaluationReason{kind: EvalReasonOff}
}

// NewEvalReasonFallthrough returns an EvaluationReason whose kind is EvalReasonFallthrough.
func NewEvalReasonFallthrough() EvaluationReason {
	return EvaluationReason{kind: EvalReasonFallthrough}
}

// NewEvalReasonFallthroughExperiment returns a fallthrough reason with the experiment
// marker set as specified.
func NewEvalReasonFallthroughExperiment(inExperiment bool) EvaluationReason {
	return EvaluationReason{kind: EvalReasonFallthrough, inExperiment: inExperiment}
}

// NewEvalReasonTargetMatch returns an EvaluationReason whose kind is EvalReasonTargetMatch.
func NewEvalReasonTargetMatch() EvaluationReason {
	return EvaluationReason{kind: EvalReasonTargetMatch}
}

// NewEvalReasonRuleMatch returns an EvaluationReason whose kind is EvalReasonRuleMatch.
func NewEvalReasonRuleMatch(ruleIndex int, ruleID string) EvaluationReason {
	return EvaluationReason{kind: EvalReasonRuleMatch, ruleIndex: ruleIndex, ruleID: ruleID}
}

// NewEvalReasonRuleMatchExperiment returns a rule-match reason with the experiment
// marker set as specified.
func NewEvalReasonRuleMatchExperiment(ruleIndex int, ruleID string, inExperiment bool) EvaluationReason {
	return EvaluationReason{
		kind: EvalReasonRuleMatch, ruleIndex: ruleIndex, ruleID: ruleID, inExperiment: inExperiment,
	}
}

// NewEvalReasonPrerequisiteFailed returns an EvaluationReason whose kind is
// EvalReasonPrerequisiteFailed.
func NewEvalReasonPrerequisiteFailed(prereqKey string) EvaluationReason {
	return EvaluationReason{kind: EvalReasonPrerequisiteFailed, prerequisiteKey: prereqKey}
}

// NewEvalReasonError returns an EvaluationReason whose kind is EvalReasonError.
func NewEvalReasonError(errorKind EvalErrorKind) EvaluationReason {
	return EvaluationReason{kind: EvalReasonError, errorKind: errorKind}
}

type reasonForMarshaling struct {
	Kind            EvalReasonKind `json:"kind"`
	RuleIndex       *int           `json:"ruleIndex,omitempty"`
	RuleID          string         `json:"ruleId,omitempty"`
	PrerequisiteKey string         `json:"prerequisiteKey,omitempty"`
	ErrorKind       EvalErrorKind  `json:"errorKind,omitempty"`
	InExperiment    bool           `json:"inExperiment,omitempty"`
}

// MarshalJSON implements json.Marshaler. An empty reason serializes as null.
func (r EvaluationReason) MarshalJSON() ([]byte, error) {
	if r.kind == "" {
		return []byte("null"), nil
	}
	rm := reasonForMarshaling{
		Kind:            r.kind,
		RuleID:          r.ruleID,
		PrerequisiteKey: r.prerequisiteKey,
		ErrorKind:       r.errorKind,
		InExperiment:    r.inExperiment,
	}
	if r.kind == EvalReasonRuleMatch {
		rm.RuleIndex = &r.ruleIndex
	}
	return json.Marshal(rm)
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *EvaluationReason) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*r = EvaluationReason{}
		return nil
	}
	var rm reasonForMarshaling
	if err := json.Unmarshal(data, &rm); err != nil {
		return err
	}
	*r = EvaluationReason{
		kind:            rm.Kind,
		ruleID:          rm.RuleID,
		prerequisiteKey: rm.PrerequisiteKey,
		errorKind:       rm.ErrorKind,
		inExperiment:    rm.InExperiment,
	}
	if rm.RuleIndex != nil {
		r.ruleIndex = *rm.RuleIndex
	}
	return nil
}
