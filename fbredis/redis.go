// Package fbredis provides a Redis-backed persistent data store.
//
// The store is always used behind the SDK's caching wrapper; configure it through
// Config.PersistentDataStore:
//
//	config := fbclient.Config{
//		PersistentDataStore:         fbredis.DataStore().URL("redis://localhost:6379").Build(),
//		PersistentDataStoreCacheTTL: 30 * time.Second,
//	}
//
// Items are stored in one Redis hash per data kind, named "{prefix}:features",
// "{prefix}:segments", etc. The special key "{prefix}:$inited" marks a store that
// holds a complete data set.
package fbredis

import (
	"time"

	r "github.com/gomodule/redigo/redis"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldlog"

	"github.com/featurebridge/go-server-sdk/interfaces"
)

// DefaultURL is the Redis URL used when none is specified.
const DefaultURL = "redis://localhost:6379"

// DefaultPrefix is the key prefix used when none is specified.
const DefaultPrefix = "featurebridge"

const initedKey = "$inited"

// DataStoreBuilder configures a Redis data store. Create one with DataStore(), set
// options with the chained methods, and pass it as Config.PersistentDataStore.
type DataStoreBuilder struct {
	url         string
	prefix      string
	pool        *r.Pool
	dialOptions []r.DialOption
	loggers     ldlog.Loggers
}

// DataStore creates a builder with default options.
func DataStore() *DataStoreBuilder {
	return &DataStoreBuilder{url: DefaultURL, prefix: DefaultPrefix}
}

// URL sets the Redis URL.
func (b *DataStoreBuilder) URL(url string) *DataStoreBuilder {
	if url != "" {
		b.url = url
	}
	return b
}

// Prefix sets the key prefix, so multiple environments can share one database.
func (b *DataStoreBuilder) Prefix(prefix string) *DataStoreBuilder {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	b.prefix = prefix
	return b
}

// Pool replaces the connection pool entirely; URL and DialOptions are then ignored.
func (b *DataStoreBuilder) Pool(pool *r.Pool) *DataStoreBuilder {
	b.pool = pool
	return b
}

// DialOptions adds redigo dial options for new connections.
func (b *DataStoreBuilder) DialOptions(options ...r.DialOption) *DataStoreBuilder {
	b.dialOptions = append(b.dialOptions, options...)
	return b
}

// Loggers sets the log destination for the store.
func (b *DataStoreBuilder) Loggers(loggers ldlog.Loggers) *DataStoreBuilder {
	b.loggers = loggers
	return b
}

// redisDataStore implements interfaces.PersistentDataStore against Redis.
type redisDataStore struct {
	prefix     string
	pool       *r.Pool
	loggers    ldlog.Loggers
	testTxHook func() // instrumentation for concurrency tests
}

var _ interfaces.PersistentDataStore = &redisDataStore{}

func newPool(url string, dialOptions []r.DialOption) *r.Pool {
	return &r.Pool{
		MaxIdle:     20,
		MaxActive:   16,
		Wait:        true,
		IdleTimeout: 300 * time.Second,
		Dial: func() (r.Conn, error) {
			return r.DialURL(url, dialOptions...)
		},
		TestOnBorrow: func(c r.Conn, t time.Time) error {
			_, err := c.Do("PING")
			return err
		},
	}
}

// Build creates the store, connecting the pool lazily on first use.
func (b *DataStoreBuilder) Build() interfaces.PersistentDataStore {
	return b.buildInternal()
}

func (b *DataStoreBuilder) buildInternal() *redisDataStore {
	store := &redisDataStore{
		prefix:  b.prefix,
		pool:    b.pool,
		loggers: b.loggers,
	}
	store.loggers.SetPrefix("RedisDataStore:")
	if store.pool == nil {
		store.loggers.Infof("Using URL: %s", b.url)
		store.pool = newPool(b.url, b.dialOptions)
	}
	return store
}

func (store *redisDataStore) Init(allData []interfaces.StoreSerializedCollection) error {
	c := store.getConn()
	defer c.Close() //nolint:errcheck

	_ = c.Send("MULTI")

	for _, coll := range allData {
		baseKey := store.hashKeyFor(coll.Kind)
		_ = c.Send("DEL", baseKey)
		for _, keyedItem := range coll.Items {
			_ = c.Send("HSET", baseKey, keyedItem.Key, keyedItem.Item.SerializedItem)
		}
	}

	_ = c.Send("SET", store.initedKey(), "")

	_, err := c.Do("EXEC")
	return err
}

func (store *redisDataStore) Get(
	kind interfaces.StoreDataKind,
	key string,
) (interfaces.StoreSerializedItemDescriptor, error) {
	c := store.getConn()
	defer c.Close() //nolint:errcheck

	data, err := r.Bytes(c.Do("HGET", store.hashKeyFor(kind), key))
	if err != nil {
		if err == r.ErrNil {
			if store.loggers.IsDebugEnabled() {
				store.loggers.Debugf(`Key %s not found in "%s"`, key, kind.GetName())
			}
			return interfaces.StoreSerializedItemDescriptor{}.NotFound(), nil
		}
		return interfaces.StoreSerializedItemDescriptor{}.NotFound(), err
	}
	return interfaces.StoreSerializedItemDescriptor{Version: 0, SerializedItem: data}, nil
}

func (store *redisDataStore) GetAll(
	kind interfaces.StoreDataKind,
) ([]interfaces.StoreKeyedSerializedItemDescriptor, error) {
	c := store.getConn()
	defer c.Close() //nolint:errcheck

	values, err := r.StringMap(c.Do("HGETALL", store.hashKeyFor(kind)))
	if err != nil && err != r.ErrNil {
		return nil, err
	}

	results := make([]interfaces.StoreKeyedSerializedItemDescriptor, 0, len(values))
	for k, v := range values {
		results = append(results, interfaces.StoreKeyedSerializedItemDescriptor{
			Key:  k,
			Item: interfaces.StoreSerializedItemDescriptor{Version: 0, SerializedItem: []byte(v)},
		})
	}
	return results, nil
}

func (store *redisDataStore) Upsert(
	kind interfaces.StoreDataKind,
	key string,
	newItem interfaces.StoreSerializedItemDescriptor,
) (bool, error) {
	baseKey := store.hashKeyFor(kind)
	for {
		c := store.getConn()
		defer c.Close() //nolint:errcheck // connections are few; loop exits are returns

		// WATCH/MULTI/EXEC gives optimistic concurrency: if another client touches the
		// hash between our read and our write, EXEC returns nil and we start over.
		if _, err := c.Do("WATCH", baseKey); err != nil {
			return false, err
		}
		defer c.Send("UNWATCH") //nolint:errcheck

		if store.testTxHook != nil {
			store.testTxHook()
		}

		oldItem, err := store.Get(kind, key)
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
			if store.loggers.IsDebugEnabled() {
				updateOrDelete := "update"
				if newItem.Deleted {
					updateOrDelete = "delete"
				}
				store.loggers.Debugf(`Attempted to %s key %s version %d in "%s" with a version that is the same or older: %d`,
					updateOrDelete, key, oldVersion, kind.GetName(), newItem.Version)
			}
			return false, nil
		}

		_ = c.Send("MULTI")
		if err := c.Send("HSET", baseKey, key, newItem.SerializedItem); err != nil {
			return false, err
		}
		result, err := c.Do("EXEC")
		if err != nil {
			return false, err
		}
		if result == nil {
			// watch was triggered by a concurrent modification
			if store.loggers.IsDebugEnabled() {
				store.loggers.Debug("Concurrent modification detected, retrying")
			}
			continue
		}
		return true, nil
	}
}

func (store *redisDataStore) IsInitialized() bool {
	c := store.getConn()
	defer c.Close() //nolint:errcheck
	inited, _ := r.Bool(c.Do("EXISTS", store.initedKey()))
	return inited
}

func (store *redisDataStore) IsStoreAvailable() bool {
	c := store.getConn()
	defer c.Close() //nolint:errcheck
	_, err := r.Bool(c.Do("EXISTS", store.initedKey()))
	return err == nil
}

func (store *redisDataStore) Close() error {
	return store.pool.Close()
}

func (store *redisDataStore) hashKeyFor(kind interfaces.StoreDataKind) string {
	return store.prefix + ":" + kind.GetName()
}

func (store *redisDataStore) initedKey() string {
	return store.prefix + ":" + initedKey
}

func (store *redisDataStore) getConn() r.Conn {
	return store.pool.Get()
}
