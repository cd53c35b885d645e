// Package internal contains the SDK's standard component implementations: the data
// stores, the caching wrapper for persistent stores, and the streaming data source.
// Application code configures these through the top-level Config type rather than using
// this package directly.
package internal

import (
	"sync"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldlog"

	"github.com/featurebridge/go-server-sdk/interfaces"
)

// memoryStore is the default DataStore: one map per data kind, guarded by a single
// reader/writer lock. Writes replace whole descriptor values, so readers can never
// observe a torn item; a reader overlapping an Init or Upsert sees either the old or
// the new descriptor for any given key.
type memoryStore struct {
	mu      sync.RWMutex
	items   map[interfaces.StoreDataKind]map[string]interfaces.StoreItemDescriptor
	inited  bool
	loggers ldlog.Loggers
}

// NewInMemoryDataStore creates an instance of the in-memory data store.
func NewInMemoryDataStore(loggers ldlog.Loggers) interfaces.DataStore {
	return &memoryStore{
		items:   make(map[interfaces.StoreDataKind]map[string]interfaces.StoreItemDescriptor),
		loggers: loggers,
	}
}

func (s *memoryStore) Init(allData []interfaces.StoreCollection) error {
	// The replacement map is assembled outside the lock; the swap itself is what has
	// to be atomic.
	fresh := make(map[interfaces.StoreDataKind]map[string]interfaces.StoreItemDescriptor, len(allData))
	for _, coll := range allData {
		byKey := make(map[string]interfaces.StoreItemDescriptor, len(coll.Items))
		for _, item := range coll.Items {
			byKey[item.Key] = item.Item
		}
		fresh[coll.Kind] = byKey
	}

	s.mu.Lock()
	s.items = fresh
	s.inited = true
	s.mu.Unlock()

	return nil
}

func (s *memoryStore) Get(
	kind interfaces.StoreDataKind,
	key string,
) (interfaces.StoreItemDescriptor, error) {
	s.mu.RLock()
	item, ok := s.items[kind][key]
	s.mu.RUnlock()

	if !ok {
		if s.loggers.IsDebugEnabled() {
			s.loggers.Debugf("no %s item for key %q", kind.GetName(), key)
		}
		return interfaces.StoreItemDescriptor{}.NotFound(), nil
	}
	return item, nil
}

func (s *memoryStore) GetAll(
	kind interfaces.StoreDataKind,
) ([]interfaces.StoreKeyedItemDescriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	coll := s.items[kind]
	if len(coll) == 0 {
		return nil, nil
	}
	snapshot := make([]interfaces.StoreKeyedItemDescriptor, 0, len(coll))
	for key, item := range coll {
		snapshot = append(snapshot, interfaces.StoreKeyedItemDescriptor{Key: key, Item: item})
	}
	return snapshot, nil
}

func (s *memoryStore) Upsert(
	kind interfaces.StoreDataKind,
	key string,
	newItem interfaces.StoreItemDescriptor,
) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	coll := s.items[kind]
	if coll == nil {
		coll = make(map[string]interfaces.StoreItemDescriptor)
		s.items[kind] = coll
	}
	if old, exists := coll[key]; exists && old.Version >= newItem.Version {
		if s.loggers.IsDebugEnabled() {
			s.loggers.Debugf("skipping %s write for key %q: version %d is not newer than %d",
				kind.GetName(), key, newItem.Version, old.Version)
		}
		return false, nil
	}
	coll[key] = newItem
	return true, nil
}

func (s *memoryStore) IsInitialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inited
}

func (s *memoryStore) IsStatusMonitoringEnabled() bool {
	return false
}

func (s *memoryStore) Close() error {
	return nil
}
