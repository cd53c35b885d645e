package internal

import (
	"fmt"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldlog"

	"github.com/featurebridge/go-server-sdk/interfaces"
)

// persistentDataStoreWrapper turns a PersistentDataStore core into a full DataStore.
// It owns serialization, read-through/write-through caching, and the dependency
// ordering of Init data; the core deals only in serialized bytes.
//
// Three configurations are possible. With cacheTTL == 0 every operation goes to the
// core. With a positive cacheTTL, reads are cached for that long and a core failure
// never puts the new data into the cache: a failed Upsert leaves the cache untouched,
// and a failed Init leaves it empty, so later reads go to the core. With a negative cacheTTL the cache never expires and is also updated
// when the core fails, so the in-memory view keeps tracking the data source through a
// database outage.
type persistentDataStoreWrapper struct {
	core     interfaces.PersistentDataStore
	cache    *cache.Cache
	cacheTTL time.Duration
	requests singleflight.Group
	loggers  ldlog.Loggers
	inited   bool
	initLock sync.RWMutex
}

// initCheckedKey is the cache entry recording a recent negative IsInitialized probe of
// the core, so that repeated polling does not hammer the database.
const initCheckedKey = "$initChecked"

// NewPersistentDataStoreWrapper wraps a persistent store core in the standard caching
// layer. A cacheTTL of zero disables caching; a negative cacheTTL means cached data
// never expires.
func NewPersistentDataStoreWrapper(
	core interfaces.PersistentDataStore,
	cacheTTL time.Duration,
	loggers ldlog.Loggers,
) interfaces.DataStore {
	var myCache *cache.Cache
	if cacheTTL != 0 {
		// go-cache documents that a negative default expiration means entries never
		// expire, which matches how cacheTTL is defined.
		myCache = cache.New(cacheTTL, 5*time.Minute)
	}

	return &persistentDataStoreWrapper{
		core:     core,
		cache:    myCache,
		cacheTTL: cacheTTL,
		loggers:  loggers,
	}
}

func (w *persistentDataStoreWrapper) Init(allData []interfaces.StoreCollection) error {
	sortedData := sortDataForStoreInit(allData)
	err := w.initCore(sortedData)
	if w.cache != nil {
		w.cache.Flush()
	}
	if err != nil && !w.hasCacheWithInfiniteTTL() {
		// If the core update failed, updating the cache would mean being inconsistent:
		// new data now, then silently back to old data when the cache expires. Better
		// to keep serving the old state. With an infinite TTL there is no expiry, so
		// caching the intended data keeps evaluation working through the outage.
		return err
	}
	if w.cache != nil {
		for _, coll := range sortedData {
			w.cacheItems(coll.Kind, coll.Items)
		}
	}
	if err == nil {
		w.initLock.Lock()
		w.inited = true
		w.initLock.Unlock()
	}
	return err
}

func (w *persistentDataStoreWrapper) Get(
	kind interfaces.StoreDataKind,
	key string,
) (interfaces.StoreItemDescriptor, error) {
	if w.cache == nil {
		return w.getAndDeserializeItem(kind, key)
	}
	cacheKey := dataStoreCacheKey(kind, key)
	if data, present := w.cache.Get(cacheKey); present {
		if item, ok := data.(interfaces.StoreItemDescriptor); ok {
			// A cached NotFound is a legitimate entry: the backend is not consulted
			// again until the entry expires or is invalidated.
			return item, nil
		}
	}
	// Not cached. The singleflight group guarantees a single core query per key no
	// matter how many goroutines miss at once.
	reqKey := fmt.Sprintf("get:%s:%s", kind.GetName(), key)
	itemIntf, err, _ := w.requests.Do(reqKey, func() (interface{}, error) {
		item, err := w.getAndDeserializeItem(kind, key)
		if err != nil {
			return nil, err
		}
		w.cache.Set(cacheKey, item, cache.DefaultExpiration)
		return item, nil
	})
	if err != nil || itemIntf == nil {
		return interfaces.StoreItemDescriptor{}.NotFound(), err
	}
	if item, ok := itemIntf.(interfaces.StoreItemDescriptor); ok {
		return item, nil
	}
	w.loggers.Errorf("data store query returned unexpected type %T", itemIntf)
	return interfaces.StoreItemDescriptor{}.NotFound(), nil
}

func (w *persistentDataStoreWrapper) GetAll(
	kind interfaces.StoreDataKind,
) ([]interfaces.StoreKeyedItemDescriptor, error) {
	if w.cache == nil {
		return w.getAllAndDeserialize(kind)
	}
	// The whole data set is cached under a per-kind key, separate from the per-item
	// entries.
	cacheKey := dataStoreAllItemsCacheKey(kind)
	if data, present := w.cache.Get(cacheKey); present {
		if items, ok := data.([]interfaces.StoreKeyedItemDescriptor); ok {
			return items, nil
		}
	}
	reqKey := fmt.Sprintf("all:%s", kind.GetName())
	itemsIntf, err, _ := w.requests.Do(reqKey, func() (interface{}, error) {
		items, err := w.getAllAndDeserialize(kind)
		if err != nil {
			return nil, err
		}
		w.cache.Set(cacheKey, items, cache.DefaultExpiration)
		return items, nil
	})
	if err != nil {
		return nil, err
	}
	if items, ok := itemsIntf.([]interfaces.StoreKeyedItemDescriptor); ok {
		return items, nil
	}
	w.loggers.Errorf("data store query returned unexpected type %T", itemsIntf)
	return nil, nil
}

func (w *persistentDataStoreWrapper) Upsert(
	kind interfaces.StoreDataKind,
	key string,
	newItem interfaces.StoreItemDescriptor,
) (bool, error) {
	serializedItem := w.serialize(kind, newItem)
	updated, err := w.core.Upsert(kind, key, serializedItem)
	if err != nil && !w.hasCacheWithInfiniteTTL() {
		// Same reasoning as in Init: with a finite TTL, a failed core write must not
		// make the cache lie about the persisted state.
		return updated, err
	}
	if w.cache == nil {
		return updated, err
	}

	cacheKey := dataStoreCacheKey(kind, key)
	allCacheKey := dataStoreAllItemsCacheKey(kind)
	switch {
	case err != nil:
		// Infinite TTL: the cache tracks the intended state so evaluation keeps
		// working; the cached data is not written back to the core. Version gating
		// normally happens in the core; since that failed, it is applied against the
		// cached entry here.
		if w.versionExceedsCached(cacheKey, newItem) {
			w.cache.Set(cacheKey, newItem, cache.DefaultExpiration)
			w.cache.Set(allCacheKey,
				updateSingleItem(w.cachedItems(allCacheKey), key, newItem), cache.DefaultExpiration)
		}
	case updated:
		w.cache.Set(cacheKey, newItem, cache.DefaultExpiration)
		if w.hasCacheWithInfiniteTTL() {
			// The "all items" snapshot is patched in place; invalidating it would
			// force a backend read that must stay optional in this mode.
			if data, present := w.cache.Get(allCacheKey); present {
				if items, ok := data.([]interfaces.StoreKeyedItemDescriptor); ok {
					w.cache.Set(allCacheKey, updateSingleItem(items, key, newItem), cache.DefaultExpiration)
				}
			}
		} else {
			w.cache.Delete(allCacheKey)
		}
	default:
		// The core rejected the version, meaning someone else wrote newer data; drop
		// the stale cache entries and repopulate from the core.
		w.cache.Delete(cacheKey)
		w.cache.Delete(allCacheKey)
		_, _ = w.Get(kind, key)
	}
	return updated, err
}

func (w *persistentDataStoreWrapper) IsInitialized() bool {
	w.initLock.RLock()
	previousValue := w.inited
	w.initLock.RUnlock()
	if previousValue {
		// Once true, always true: data in a persistent store does not un-initialize.
		return true
	}

	if w.cache != nil {
		if _, found := w.cache.Get(initCheckedKey); found {
			return false
		}
	}

	newValue := w.core.IsInitialized()
	if newValue {
		w.initLock.Lock()
		w.inited = true
		w.initLock.Unlock()
		if w.cache != nil {
			w.cache.Delete(initCheckedKey)
		}
	} else if w.cache != nil {
		// The negative result is cached briefly so that repeated polling does not
		// hammer the core. With an infinite data TTL the probe still has to expire, or
		// a store initialized later by another SDK instance would never be noticed.
		probeTTL := w.cacheTTL
		if probeTTL < 0 {
			probeTTL = time.Second
		}
		w.cache.Set(initCheckedKey, "", probeTTL)
	}
	return newValue
}

func (w *persistentDataStoreWrapper) IsStatusMonitoringEnabled() bool {
	return true
}

func (w *persistentDataStoreWrapper) Close() error {
	return w.core.Close()
}

func (w *persistentDataStoreWrapper) hasCacheWithInfiniteTTL() bool {
	return w.cache != nil && w.cacheTTL < 0
}

func dataStoreCacheKey(kind interfaces.StoreDataKind, key string) string {
	return kind.GetName() + ":" + key
}

func dataStoreAllItemsCacheKey(kind interfaces.StoreDataKind) string {
	return "all:" + kind.GetName()
}

func (w *persistentDataStoreWrapper) initCore(allData []interfaces.StoreCollection) error {
	serializedAllData := make([]interfaces.StoreSerializedCollection, 0, len(allData))
	for _, coll := range allData {
		serializedAllData = append(serializedAllData, interfaces.StoreSerializedCollection{
			Kind:  coll.Kind,
			Items: w.serializeAll(coll.Kind, coll.Items),
		})
	}
	return w.core.Init(serializedAllData)
}

func (w *persistentDataStoreWrapper) getAndDeserializeItem(
	kind interfaces.StoreDataKind,
	key string,
) (interfaces.StoreItemDescriptor, error) {
	serializedItem, err := w.core.Get(kind, key)
	if err == nil {
		return w.deserialize(kind, serializedItem)
	}
	return interfaces.StoreItemDescriptor{}.NotFound(), err
}

func (w *persistentDataStoreWrapper) getAllAndDeserialize(
	kind interfaces.StoreDataKind,
) ([]interfaces.StoreKeyedItemDescriptor, error) {
	serializedItems, err := w.core.GetAll(kind)
	if err != nil {
		return nil, err
	}
	ret := make([]interfaces.StoreKeyedItemDescriptor, 0, len(serializedItems))
	for _, serializedItem := range serializedItems {
		item, err := w.deserialize(kind, serializedItem.Item)
		if err != nil {
			return nil, err
		}
		ret = append(ret, interfaces.StoreKeyedItemDescriptor{Key: serializedItem.Key, Item: item})
	}
	return ret, nil
}

func (w *persistentDataStoreWrapper) cacheItems(
	kind interfaces.StoreDataKind,
	items []interfaces.StoreKeyedItemDescriptor,
) {
	if w.cache == nil {
		return
	}
	copyOfItems := make([]interfaces.StoreKeyedItemDescriptor, len(items))
	copy(copyOfItems, items)
	w.cache.Set(dataStoreAllItemsCacheKey(kind), copyOfItems, cache.DefaultExpiration)
	for _, item := range items {
		w.cache.Set(dataStoreCacheKey(kind, item.Key), item.Item, cache.DefaultExpiration)
	}
}

// cachedItems returns the cached all-items snapshot for the kind, or an empty slice.
func (w *persistentDataStoreWrapper) cachedItems(allCacheKey string) []interfaces.StoreKeyedItemDescriptor {
	if data, present := w.cache.Get(allCacheKey); present {
		if items, ok := data.([]interfaces.StoreKeyedItemDescriptor); ok {
			return items
		}
	}
	return nil
}

// versionExceedsCached reports whether the new descriptor is strictly newer than
// whatever is cached for that key. An uncached key counts as older.
func (w *persistentDataStoreWrapper) versionExceedsCached(
	cacheKey string,
	newItem interfaces.StoreItemDescriptor,
) bool {
	if data, present := w.cache.Get(cacheKey); present {
		if item, ok := data.(interfaces.StoreItemDescriptor); ok {
			return newItem.Version > item.Version
		}
	}
	return true
}

func (w *persistentDataStoreWrapper) serialize(
	kind interfaces.StoreDataKind,
	item interfaces.StoreItemDescriptor,
) interfaces.StoreSerializedItemDescriptor {
	return interfaces.StoreSerializedItemDescriptor{
		Version:        item.Version,
		Deleted:        item.Item == nil,
		SerializedItem: kind.Serialize(item),
	}
}

func (w *persistentDataStoreWrapper) serializeAll(
	kind interfaces.StoreDataKind,
	items []interfaces.StoreKeyedItemDescriptor,
) []interfaces.StoreKeyedSerializedItemDescriptor {
	ret := make([]interfaces.StoreKeyedSerializedItemDescriptor, 0, len(items))
	for _, item := range items {
		ret = append(ret, interfaces.StoreKeyedSerializedItemDescriptor{
			Key:  item.Key,
			Item: w.serialize(kind, item.Item),
		})
	}
	return ret
}

func (w *persistentDataStoreWrapper) deserialize(
	kind interfaces.StoreDataKind,
	serializedItemDesc interfaces.StoreSerializedItemDescriptor,
) (interfaces.StoreItemDescriptor, error) {
	if serializedItemDesc.Deleted || serializedItemDesc.SerializedItem == nil {
		return interfaces.StoreItemDescriptor{Version: serializedItemDesc.Version}, nil
	}
	deserializedItemDesc, err := kind.Deserialize(serializedItemDesc.SerializedItem)
	if err != nil {
		return interfaces.StoreItemDescriptor{}.NotFound(), err
	}
	if serializedItemDesc.Version == 0 || serializedItemDesc.Version == deserializedItemDesc.Version {
		return deserializedItemDesc, nil
	}
	// The store reported a version that differs from the one encoded in the data;
	// the store's version wins.
	return interfaces.StoreItemDescriptor{
		Version: serializedItemDesc.Version,
		Item:    deserializedItemDesc.Item,
	}, nil
}

func updateSingleItem(
	items []interfaces.StoreKeyedItemDescriptor,
	key string,
	newItem interfaces.StoreItemDescriptor,
) []interfaces.StoreKeyedItemDescriptor {
	found := false
	ret := make([]interfaces.StoreKeyedItemDescriptor, 0, len(items)+1)
	for _, item := range items {
		if item.Key == key {
			ret = append(ret, interfaces.StoreKeyedItemDescriptor{Key: key, Item: newItem})
			found = true
		} else {
			ret = append(ret, item)
		}
	}
	if !found {
		ret = append(ret, interfaces.StoreKeyedItemDescriptor{Key: key, Item: newItem})
	}
	return ret
}
