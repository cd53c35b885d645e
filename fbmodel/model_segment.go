package fbmodel

import (
	"github.com/featurebridge/go-server-sdk/fbuser"
)

// Segment describes a reusable set of users, defined by inclusion and exclusion lists
// plus matching rules.
type Segment struct {
	// Key is the unique string key of the segment.
	Key string `json:"key"`
	// Included user keys always match, taking precedence over Excluded and Rules.
	Included []string `json:"included"`
	// Excluded user keys never match unless also in Included.
	Excluded []string `json:"excluded"`
	// Salt perturbs the hash used by weighted segment rules.
	Salt string `json:"salt"`
	// Rules are evaluated in order; the first matching rule includes the user.
	Rules []SegmentRule `json:"rules"`
	// Version is incremented by the control plane on every change to the segment.
	Version int `json:"version"`
	// Deleted is true if this object is a tombstone for a deleted segment.
	Deleted bool `json:"deleted"`
}

// GetKey returns the segment key.
func (s *Segment) GetKey() string {
	return s.Key
}

// GetVersion returns the segment version.
func (s *Segment) GetVersion() int {
	return s.Version
}

// SegmentRule is a set of ANDed clauses, optionally limited to a percentage of the
// users who match them.
type SegmentRule struct {
	// ID is a stable identifier assigned to the rule when it is created.
	ID string `json:"id,omitempty"`
	// Clauses must all match for the rule to match.
	Clauses []Clause `json:"clauses"`
	// Weight, if non-nil, restricts the rule to the given proportion (out of 100000) of
	// matching users, selected by deterministic bucketing with the segment's salt.
	Weight *int `json:"weight,omitempty"`
	// BucketBy is the user attribute hashed for the weight check; the user key if nil.
	BucketBy *fbuser.UserAttribute `json:"bucketBy,omitempty"`
}

// SegmentIncludesOrExcludesKey checks the segment's explicit key lists. The second
// return value is true if the key appeared in either list; the first is true only for
// the included list.
func SegmentIncludesOrExcludesKey(s *Segment, key string) (included bool, found bool) {
	for _, inc := range s.Included {
		if inc == key {
			return true, true
		}
	}
	for _, exc := range s.Excluded {
		if exc == key {
			return false, true
		}
	}
	return false, false
}
