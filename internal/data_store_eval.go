package internal

import (
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldlog"

	"github.com/featurebridge/go-server-sdk/evaluation"
	"github.com/featurebridge/go-server-sdk/fbmodel"
	"github.com/featurebridge/go-server-sdk/interfaces"
)

// dataStoreEvaluatorDataProvider bridges a DataStore to the evaluator's read view.
// Tombstones and store errors both surface as "not found", which is all the evaluator
// needs to know.
type dataStoreEvaluatorDataProvider struct {
	store   interfaces.DataStore
	loggers ldlog.Loggers
}

// NewDataStoreEvaluatorDataProvider provides an evaluation.DataProvider backed by a
// DataStore.
func NewDataStoreEvaluatorDataProvider(
	store interfaces.DataStore,
	loggers ldlog.Loggers,
) evaluation.DataProvider {
	return dataStoreEvaluatorDataProvider{store, loggers}
}

func (d dataStoreEvaluatorDataProvider) GetFeatureFlag(key string) *fbmodel.FeatureFlag {
	item, err := d.store.Get(interfaces.DataKindFeatures(), key)
	if err == nil && item.Item != nil {
		if flag, ok := item.Item.(*fbmodel.FeatureFlag); ok {
			return flag
		}
		d.loggers.Errorf("unexpected data type found in store for flag key %s", key)
	}
	return nil
}

func (d dataStoreEvaluatorDataProvider) GetSegment(key string) *fbmodel.Segment {
	item, err := d.store.Get(interfaces.DataKindSegments(), key)
	if err == nil && item.Item != nil {
		if segment, ok := item.Item.(*fbmodel.Segment); ok {
			return segment
		}
		d.loggers.Errorf("unexpected data type found in store for segment key %s", key)
	}
	return nil
}
