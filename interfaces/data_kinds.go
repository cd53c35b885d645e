package interfaces

import (
	"github.com/featurebridge/go-server-sdk/fbmodel"
)

// StoreDataKinds returns all the kinds of data the SDK stores. Data store
// implementations can use this to know what namespaces to expect.
func StoreDataKinds() []StoreDataKind {
	return []StoreDataKind{dataKindFeatures, dataKindSegments}
}

// featureFlagStoreDataKind implements StoreDataKind for feature flags.
type featureFlagStoreDataKind struct{}

func (fk featureFlagStoreDataKind) GetName() string {
	return "features"
}

func (fk featureFlagStoreDataKind) Serialize(item StoreItemDescriptor) []byte {
	if item.Item == nil {
		return fbmodel.MakeTombstoneJSON("", item.Version)
	}
	if flag, ok := item.Item.(*fbmodel.FeatureFlag); ok {
		if data, err := fbmodel.MarshalFeatureFlag(*flag); err == nil {
			return data
		}
	}
	return nil
}

func (fk featureFlagStoreDataKind) Deserialize(data []byte) (StoreItemDescriptor, error) {
	flag, err := fbmodel.UnmarshalFeatureFlag(data)
	if err != nil {
		return StoreItemDescriptor{}, err
	}
	if flag.Deleted {
		return StoreItemDescriptor{Version: flag.Version, Item: nil}, nil
	}
	return StoreItemDescriptor{Version: flag.Version, Item: &flag}, nil
}

func (fk featureFlagStoreDataKind) String() string {
	return fk.GetName()
}

//nolint:gochecknoglobals // used as a constant
var dataKindFeatures StoreDataKind = featureFlagStoreDataKind{}

// DataKindFeatures returns the StoreDataKind for feature flag data.
func DataKindFeatures() StoreDataKind {
	return dataKindFeatures
}

// segmentStoreDataKind implements StoreDataKind for user segments.
type segmentStoreDataKind struct{}

func (sk segmentStoreDataKind) GetName() string {
	return "segments"
}

func (sk segmentStoreDataKind) Serialize(item StoreItemDescriptor) []byte {
	if item.Item == nil {
		return fbmodel.MakeTombstoneJSON("", item.Version)
	}
	if segment, ok := item.Item.(*fbmodel.Segment); ok {
		if data, err := fbmodel.MarshalSegment(*segment); err == nil {
			return data
		}
	}
	return nil
}

func (sk segmentStoreDataKind) Deserialize(data []byte) (StoreItemDescriptor, error) {
	segment, err := fbmodel.UnmarshalSegment(data)
	if err != nil {
		return StoreItemDescriptor{}, err
	}
	if segment.Deleted {
		return StoreItemDescriptor{Version: segment.Version, Item: nil}, nil
	}
	return StoreItemDescriptor{Version: segment.Version, Item: &segment}, nil
}

func (sk segmentStoreDataKind) String() string {
	return sk.GetName()
}

//nolint:gochecknoglobals // used as a constant
var dataKindSegments StoreDataKind = segmentStoreDataKind{}

// DataKindSegments returns the StoreDataKind for user segment data.
func DataKindSegments() StoreDataKind {
	return dataKindSegments
}
