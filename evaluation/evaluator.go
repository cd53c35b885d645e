package evaluation

import (
	"github.com/featurebridge/go-server-sdk/fbmodel"
	"github.com/featurebridge/go-server-sdk/fbreason"
	"github.com/featurebridge/go-server-sdk/fbuser"
	"github.com/featurebridge/go-server-sdk/fbvalue"
)

type evaluator struct {
	dataProvider DataProvider
}

// NewEvaluator creates an Evaluator that uses the given DataProvider to look up
// prerequisite flags and segments during an evaluation.
func NewEvaluator(dataProvider DataProvider) Evaluator {
	return &evaluator{dataProvider}
}

// evaluationScope holds the parameters of one evaluation to avoid repetitive parameter
// passing. Methods use a pointer receiver for efficiency; the fields are never mutated
// except for the two visited-sets, which exist only for the duration of the evaluation.
type evaluationScope struct {
	owner                         *evaluator
	user                          fbuser.User
	prerequisiteFlagEventRecorder PrerequisiteFlagEventRecorder
	// prerequisiteChain tracks the keys of flags currently being evaluated as
	// prerequisites, so a cyclic prerequisite graph cannot recurse forever. Allocated
	// lazily: flags with no prerequisites never pay for it.
	prerequisiteChain map[string]struct{}
	// segmentChain serves the same purpose for segment rules that reference other
	// segments.
	segmentChain map[string]struct{}
}

func (e *evaluator) Evaluate(
	flag *fbmodel.FeatureFlag,
	user fbuser.User,
	prerequisiteFlagEventRecorder PrerequisiteFlagEventRecorder,
) fbreason.EvaluationDetail {
	if user.GetKey() == "" {
		return fbreason.NewEvaluationDetailForError(fbreason.EvalErrorUserNotSpecified, fbvalue.Null())
	}
	es := evaluationScope{
		owner: e, user: user,
		prerequisiteFlagEventRecorder: prerequisiteFlagEventRecorder,
	}
	return es.evaluate(flag)
}

func (es *evaluationScope) evaluate(flag *fbmodel.FeatureFlag) fbreason.EvaluationDetail {
	if !flag.On {
		return es.getOffValue(flag, fbreason.NewEvalReasonOff())
	}

	prereqErrorReason, ok := es.checkPrerequisites(flag)
	if !ok {
		if prereqErrorReason.GetKind() == fbreason.EvalReasonError {
			// An error encountered while evaluating a prerequisite propagates as an
			// error, not as the off variation.
			return fbreason.NewEvaluationDetail(fbvalue.Null(), fbreason.NoVariation, prereqErrorReason)
		}
		return es.getOffValue(flag, prereqErrorReason)
	}

	key := es.user.GetKey()
	for _, target := range flag.Targets {
		t := target
		if fbmodel.TargetContainsKey(&t, key) {
			return es.getVariation(flag, target.Variation, fbreason.NewEvalReasonTargetMatch())
		}
	}

	for ruleIndex, rule := range flag.Rules {
		r := rule
		if es.ruleMatchesUser(&r) {
			return es.getValueForVariationOrRollout(flag, rule.VariationOrRollout,
				func(inExperiment bool) fbreason.EvaluationReason {
					if inExperiment {
						return fbreason.NewEvalReasonRuleMatchExperiment(ruleIndex, rule.ID, true)
					}
					return fbreason.NewEvalReasonRuleMatch(ruleIndex, rule.ID)
				})
		}
	}

	return es.getValueForVariationOrRollout(flag, flag.Fallthrough,
		func(inExperiment bool) fbreason.EvaluationReason {
			if inExperiment {
				return fbreason.NewEvalReasonFallthroughExperiment(true)
			}
			return fbreason.NewEvalReasonFallthrough()
		})
}

// checkPrerequisites returns (zero reason, true) if all prerequisites are satisfied;
// otherwise a reason describing the failure. Every prerequisite that gets evaluated is
// reported through the event recorder, including ones that fail, so the analytics
// pipeline sees prerequisite events ahead of the parent flag's own event.
func (es *evaluationScope) checkPrerequisites(flag *fbmodel.FeatureFlag) (fbreason.EvaluationReason, bool) {
	if len(flag.Prerequisites) == 0 {
		return fbreason.EvaluationReason{}, true
	}

	if es.prerequisiteChain == nil {
		es.prerequisiteChain = make(map[string]struct{})
	}
	es.prerequisiteChain[flag.Key] = struct{}{}
	defer delete(es.prerequisiteChain, flag.Key)

	for _, prereq := range flag.Prerequisites {
		if _, inChain := es.prerequisiteChain[prereq.Key]; inChain {
			// A cycle in the prerequisite graph is malformed data; refusing to recurse
			// is the only safe behavior.
			return fbreason.NewEvalReasonError(fbreason.EvalErrorMalformedFlag), false
		}

		prereqFlag := es.owner.dataProvider.GetFeatureFlag(prereq.Key)
		if prereqFlag == nil {
			return fbreason.NewEvalReasonPrerequisiteFailed(prereq.Key), false
		}

		prereqResult := es.evaluate(prereqFlag)
		prereqOK := prereqFlag.On && !prereqResult.IsDefaultValue() &&
			prereqResult.VariationIndex == prereq.Variation
		// An off prerequisite never satisfies the condition, no matter what its off
		// variation was, but it is still evaluated above so that an event is recorded.

		if es.prerequisiteFlagEventRecorder != nil {
			es.prerequisiteFlagEventRecorder(PrerequisiteFlagEvent{
				TargetFlagKey:      flag.Key,
				User:               es.user,
				PrerequisiteFlag:   prereqFlag,
				PrerequisiteResult: prereqResult,
			})
		}

		if prereqResult.Reason.GetKind() == fbreason.EvalReasonError {
			return prereqResult.Reason, false
		}
		if !prereqOK {
			return fbreason.NewEvalReasonPrerequisiteFailed(prereq.Key), false
		}
	}
	return fbreason.EvaluationReason{}, true
}

func (es *evaluationScope) getVariation(
	flag *fbmodel.FeatureFlag,
	index int,
	reason fbreason.EvaluationReason,
) fbreason.EvaluationDetail {
	if index < 0 || index >= len(flag.Variations) {
		return fbreason.NewEvaluationDetailForError(fbreason.EvalErrorMalformedFlag, fbvalue.Null())
	}
	return fbreason.NewEvaluationDetail(flag.Variations[index], index, reason)
}

func (es *evaluationScope) getOffValue(
	flag *fbmodel.FeatureFlag,
	reason fbreason.EvaluationReason,
) fbreason.EvaluationDetail {
	if flag.OffVariation == nil {
		return fbreason.NewEvaluationDetail(fbvalue.Null(), fbreason.NoVariation, reason)
	}
	return es.getVariation(flag, *flag.OffVariation, reason)
}

func (es *evaluationScope) getValueForVariationOrRollout(
	flag *fbmodel.FeatureFlag,
	vr fbmodel.VariationOrRollout,
	makeReason func(inExperiment bool) fbreason.EvaluationReason,
) fbreason.EvaluationDetail {
	index, inExperiment := es.variationIndexForUser(vr, flag.Key, flag.Salt)
	if index < 0 {
		return fbreason.NewEvaluationDetailForError(fbreason.EvalErrorMalformedFlag, fbvalue.Null())
	}
	return es.getVariation(flag, index, makeReason(inExperiment))
}

func (es *evaluationScope) ruleMatchesUser(rule *fbmodel.FlagRule) bool {
	for _, clause := range rule.Clauses {
		c := clause
		if !es.clauseMatchesUser(&c) {
			return false
		}
	}
	return true
}

func (es *evaluationScope) clauseMatchesUser(clause *fbmodel.Clause) bool {
	// Segment membership requires data from outside the clause, so it is handled here
	// rather than in the model.
	if clause.Op == fbmodel.OperatorSegmentMatch {
		for _, value := range clause.Values {
			if value.Type() == fbvalue.StringType {
				if segment := es.owner.dataProvider.GetSegment(value.StringValue()); segment != nil {
					if es.segmentContainsUser(segment) {
						return !clause.Negate
					}
				}
			}
		}
		return clause.Negate
	}

	return fbmodel.ClauseMatchesUser(clause, &es.user)
}

// variationIndexForUser resolves a VariationOrRollout to a variation index. It returns
// -1 for malformed data (neither field set, or an empty rollout). The second return
// value reports whether an experiment rollout placed the user in a tracked bucket.
func (es *evaluationScope) variationIndexForUser(
	r fbmodel.VariationOrRollout, key, salt string,
) (int, bool) {
	if r.Variation != nil {
		return *r.Variation, false
	}
	if r.Rollout == nil || len(r.Rollout.Variations) == 0 {
		return -1, false
	}

	bucketBy := fbuser.KeyAttribute
	if r.Rollout.BucketBy != nil {
		bucketBy = *r.Rollout.BucketBy
	}
	isExperiment := r.Rollout.IsExperiment()

	bucket := es.bucketUser(key, bucketBy, salt)
	var sum float32
	for _, wv := range r.Rollout.Variations {
		sum += float32(wv.Weight) / 100000.0
		if bucket < sum {
			return wv.Variation, isExperiment && !wv.Untracked
		}
	}

	// The bucket value was beyond the end of the last bucket, either because of a
	// rounding error or because the weights did not add up to 100000. Rather than
	// failing, the user goes into the last bucket.
	last := r.Rollout.Variations[len(r.Rollout.Variations)-1]
	return last.Variation, isExperiment && !last.Untracked
}
