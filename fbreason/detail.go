package fbreason

import (
	"github.com/featurebridge/go-server-sdk/fbvalue"
)

// NoVariation is the VariationIndex used when evaluation did not select any variation,
// such as when the flag is off with no off variation, or on error.
const NoVariation = -1

// EvaluationDetail is the result of a flag evaluation: the value, the index of the
// variation that produced it, and the reason.
type EvaluationDetail struct {
	// Value is the result of the evaluation, or the default value on error.
	Value fbvalue.Value
	// VariationIndex is the zero-based index of the variation within the flag, or
	// NoVariation if no variation was selected.
	VariationIndex int
	// Reason describes how the result was determined.
	Reason EvaluationReason
}

// NewEvaluationDetail constructs an EvaluationDetail.
func NewEvaluationDetail(value fbvalue.Value, variationIndex int, reason EvaluationReason) EvaluationDetail {
	return EvaluationDetail{Value: value, VariationIndex: variationIndex, Reason: reason}
}

// NewEvaluationDetailForError constructs an EvaluationDetail describing an evaluation
// error, with the given value as the result.
func NewEvaluationDetailForError(errorKind EvalErrorKind, value fbvalue.Value) EvaluationDetail {
	return EvaluationDetail{Value: value, VariationIndex: NoVariation, Reason: NewEvalReasonError(errorKind)}
}

// IsDefaultValue returns true if no variation was selected, meaning the caller's default
// value was (or would be) returned.
func (d EvaluationDetail) IsDefaultValue() bool {
	return d.VariationIndex == NoVariation
}
