package evaluation

import (
	"github.com/featurebridge/go-server-sdk/fbmodel"
	"github.com/featurebridge/go-server-sdk/fbuser"
)

// segmentContainsUser tests segment membership: the explicit include/exclude lists
// first, then the segment's rules.
//
// Segment rules can themselves contain segmentMatch clauses, so the traversal carries a
// visited-set; a segment that is reached again while it is still being tested is treated
// as a non-match rather than recursing forever.
func (es *evaluationScope) segmentContainsUser(s *fbmodel.Segment) bool {
	if _, visiting := es.segmentChain[s.Key]; visiting {
		return false
	}

	userKey := es.user.GetKey()
	if included, found := fbmodel.SegmentIncludesOrExcludesKey(s, userKey); found {
		return included
	}

	if len(s.Rules) == 0 {
		return false
	}
	if es.segmentChain == nil {
		es.segmentChain = make(map[string]struct{})
	}
	es.segmentChain[s.Key] = struct{}{}
	defer delete(es.segmentChain, s.Key)

	for _, rule := range s.Rules {
		r := rule
		if es.segmentRuleMatchesUser(&r, s.Key, s.Salt) {
			return true
		}
	}
	return false
}

func (es *evaluationScope) segmentRuleMatchesUser(r *fbmodel.SegmentRule, key, salt string) bool {
	for _, clause := range r.Clauses {
		c := clause
		if !es.clauseMatchesUser(&c) {
			return false
		}
	}

	// All clauses matched; an absent weight means the rule matches outright.
	if r.Weight == nil {
		return true
	}

	bucketBy := fbuser.KeyAttribute
	if r.BucketBy != nil {
		bucketBy = *r.BucketBy
	}
	bucket := es.bucketUser(key, bucketBy, salt)
	weight := float32(*r.Weight) / 100000.0
	return bucket < weight
}
