package fbmodel

import (
	"encoding/json"
)

// MarshalFeatureFlag serializes a flag to the JSON schema used by the control plane and
// by persistent stores.
func MarshalFeatureFlag(flag FeatureFlag) ([]byte, error) {
	return json.Marshal(flag)
}

// UnmarshalFeatureFlag deserializes a flag.
func UnmarshalFeatureFlag(data []byte) (FeatureFlag, error) {
	var flag FeatureFlag
	err := json.Unmarshal(data, &flag)
	return flag, err
}

// MarshalSegment serializes a segment.
func MarshalSegment(segment Segment) ([]byte, error) {
	return json.Marshal(segment)
}

// UnmarshalSegment deserializes a segment.
func UnmarshalSegment(data []byte) (Segment, error) {
	var segment Segment
	err := json.Unmarshal(data, &segment)
	return segment, err
}

// MakeTombstoneJSON produces the serialized placeholder for a deleted item. Persistent
// stores that cannot represent deletions any other way store this value; it preserves
// the deletion's version.
func MakeTombstoneJSON(key string, version int) []byte {
	data, _ := json.Marshal(map[string]interface{}{
		"key":     key,
		"version": version,
		"deleted": true,
	})
	return data
}
