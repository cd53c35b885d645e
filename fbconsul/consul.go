// Package fbconsul provides a Consul-backed persistent data store.
//
// The store is always used behind the SDK's caching wrapper; configure it through
// Config.PersistentDataStore:
//
//	store, err := fbconsul.DataStore().Address("localhost:8500").Build()
//	config := fbclient.Config{PersistentDataStore: store}
//
// Items are stored as individual KV entries named "{prefix}/features/{flag-key}",
// "{prefix}/segments/{segment-key}", etc. The special key "{prefix}/$inited" marks a
// store that holds a complete data set.
//
// Consul transactions cannot contain more than 64 operations, so Init is not atomic:
// rather than deleting everything up front, it writes the new data and then deletes
// whatever keys are left over, which keeps the window of inconsistency small.
package fbconsul

import (
	"fmt"
	"strings"

	c "github.com/hashicorp/consul/api"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldlog"

	"github.com/featurebridge/go-server-sdk/interfaces"
)

// DefaultPrefix is the key prefix used when none is specified.
const DefaultPrefix = "featurebridge"

const initedKey = "$inited"

// DataStoreBuilder configures a Consul data store.
type DataStoreBuilder struct {
	consulConfig c.Config
	prefix       string
	loggers      ldlog.Loggers
}

// DataStore creates a builder with default options.
func DataStore() *DataStoreBuilder {
	return &DataStoreBuilder{consulConfig: *c.DefaultConfig(), prefix: DefaultPrefix}
}

// Address sets the Consul agent address.
func (b *DataStoreBuilder) Address(address string) *DataStoreBuilder {
	if address != "" {
		b.consulConfig.Address = address
	}
	return b
}

// Config replaces the whole Consul client configuration.
func (b *DataStoreBuilder) Config(config c.Config) *DataStoreBuilder {
	b.consulConfig = config
	return b
}

// Prefix sets the key prefix, so multiple environments can share one datastore.
func (b *DataStoreBuilder) Prefix(prefix string) *DataStoreBuilder {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	b.prefix = prefix
	return b
}

// Loggers sets the log destination for the store.
func (b *DataStoreBuilder) Loggers(loggers ldlog.Loggers) *DataStoreBuilder {
	b.loggers = loggers
	return b
}

// Build creates the store and its Consul client.
func (b *DataStoreBuilder) Build() (interfaces.PersistentDataStore, error) {
	client, err := c.NewClient(&b.consulConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to configure Consul client: %s", err)
	}
	loggers := b.loggers
	loggers.SetPrefix("ConsulDataStore:")
	return &consulDataStore{client: client, prefix: b.prefix, loggers: loggers}, nil
}

// consulDataStore implements interfaces.PersistentDataStore against Consul's KV store.
type consulDataStore struct {
	client     *c.Client
	prefix     string
	loggers    ldlog.Loggers
	testTxHook func() // instrumentation for concurrency tests
}

func (store *consulDataStore) Init(allData []interfaces.StoreSerializedCollection) error {
	kv := store.client.KV()

	// Read the existing keys first; anything not replaced below gets deleted at the
	// end.
	pairs, _, err := kv.List(store.prefix, nil)
	if err != nil {
		return fmt.Errorf("failed to get existing items prior to Init: %s", err)
	}
	oldKeys := make(map[string]bool)
	for _, p := range pairs {
		oldKeys[p.Key] = true
	}

	ops := make([]*c.KVTxnOp, 0)
	for _, coll := range allData {
		for _, item := range coll.Items {
			key := store.combinedItemKey(coll.Kind, item.Key)
			ops = append(ops, &c.KVTxnOp{Verb: c.KVSet, Key: key, Value: item.Item.SerializedItem})
			oldKeys[key] = false
		}
	}

	for k, stale := range oldKeys {
		if stale && k != store.initedKey() {
			ops = append(ops, &c.KVTxnOp{Verb: c.KVDelete, Key: k})
		}
	}

	ops = append(ops, &c.KVTxnOp{Verb: c.KVSet, Key: store.initedKey(), Value: []byte{}})

	return batchOperations(kv, ops)
}

func (store *consulDataStore) Get(
	kind interfaces.StoreDataKind,
	key string,
) (interfaces.StoreSerializedItemDescriptor, error) {
	item, _, err := store.getWithModifyIndex(kind, key)
	return item, err
}

func (store *consulDataStore) GetAll(
	kind interfaces.StoreDataKind,
) ([]interfaces.StoreKeyedSerializedItemDescriptor, error) {
	kv := store.client.KV()
	pairs, _, err := kv.List(store.collectionKey(kind), nil)
	if err != nil {
		return nil, fmt.Errorf("list failed for %s: %s", kind.GetName(), err)
	}

	results := make([]interfaces.StoreKeyedSerializedItemDescriptor, 0, len(pairs))
	for _, pair := range pairs {
		results = append(results, interfaces.StoreKeyedSerializedItemDescriptor{
			Key:  store.itemKeyFromCombinedKey(kind, pair.Key),
			Item: interfaces.StoreSerializedItemDescriptor{SerializedItem: pair.Value},
		})
	}
	return results, nil
}

func (store *consulDataStore) Upsert(
	kind interfaces.StoreDataKind,
	key string,
	newItem interfaces.StoreSerializedItemDescriptor,
) (bool, error) {
	// Retries until either this write or a newer concurrent write wins.
	for {
		oldItem, modifyIndex, err := store.getWithModifyIndex(kind, key)
		if err != nil {
			return false, err
		}

		// The version must be parsed out of the stored item.
		oldVersion := oldItem.Version
		if oldItem.SerializedItem != nil {
			parsed, _ := kind.Deserialize(oldItem.SerializedItem)
			oldVersion = parsed.Version
		}

		if oldVersion >= newItem.Version {
			return false, nil
		}

		if store.testTxHook != nil {
			store.testTxHook()
		}

		// Compare-and-set against the ModifyIndex observed above. A ModifyIndex of
		// zero means the key must still not exist for the write to succeed.
		kv := store.client.KV()
		written, _, err := kv.CAS(&c.KVPair{
			Key:         store.combinedItemKey(kind, key),
			ModifyIndex: modifyIndex,
			Value:       newItem.SerializedItem,
		}, nil)
		if err != nil {
			return false, err
		}
		if written {
			return true, nil
		}
		if store.loggers.IsDebugEnabled() {
			store.loggers.Debug("Concurrent modification detected, retrying")
		}
	}
}

func (store *consulDataStore) IsInitialized() bool {
	kv := store.client.KV()
	pair, _, err := kv.Get(store.initedKey(), nil)
	return pair != nil && err == nil
}

func (store *consulDataStore) IsStoreAvailable() bool {
	// A plain Get rather than the Consul health API: what matters is whether a basic
	// KV operation succeeds.
	kv := store.client.KV()
	_, _, err := kv.Get(store.initedKey(), nil)
	return err == nil
}

func (store *consulDataStore) Close() error {
	return nil
}

func (store *consulDataStore) getWithModifyIndex(
	kind interfaces.StoreDataKind,
	key string,
) (interfaces.StoreSerializedItemDescriptor, uint64, error) {
	kv := store.client.KV()
	pair, _, err := kv.Get(store.combinedItemKey(kind, key), nil)
	if err != nil || pair == nil {
		return interfaces.StoreSerializedItemDescriptor{}.NotFound(), 0, err
	}
	return interfaces.StoreSerializedItemDescriptor{SerializedItem: pair.Value}, pair.ModifyIndex, nil
}

// batchOperations submits the queued operations in chunks of 64, the transaction size
// limit. Multiple transactions are not atomic as a whole; batching just reduces the
// number of server calls.
func batchOperations(kv *c.KV, ops []*c.KVTxnOp) error {
	for i := 0; i < len(ops); {
		j := i + 64
		if j > len(ops) {
			j = len(ops)
		}
		ok, resp, _, err := kv.Txn(ops[i:j], nil)
		if err != nil {
			return err
		}
		if !ok {
			errs := make([]string, 0, len(resp.Errors))
			for _, te := range resp.Errors {
				errs = append(errs, te.What)
			}
			//nolint:stylecheck // error message capitalized to name the product
			return fmt.Errorf("Consul transaction failed: %s", strings.Join(errs, ", "))
		}
		i = j
	}
	return nil
}

func (store *consulDataStore) collectionKey(kind interfaces.StoreDataKind) string {
	return store.prefix + "/" + kind.GetName()
}

func (store *consulDataStore) combinedItemKey(kind interfaces.StoreDataKind, k string) string {
	return store.collectionKey(kind) + "/" + k
}

func (store *consulDataStore) itemKeyFromCombinedKey(kind interfaces.StoreDataKind, combinedKey string) string {
	return strings.TrimPrefix(combinedKey, store.collectionKey(kind)+"/")
}

func (store *consulDataStore) initedKey() string {
	return store.prefix + "/" + initedKey
}
