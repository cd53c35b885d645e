package interfaces

import "io"

// DataStore is the versioned, queryable store of flags and segments that the evaluator
// reads and the data source writes.
//
// Reads may happen from any number of goroutines concurrently with writes; readers
// always see a consistent descriptor for any single key. Implementations of Get and
// GetAll must return tombstones as descriptors with a nil Item, not hide them; hiding
// deleted items is the caller's concern.
type DataStore interface {
	io.Closer

	// Init atomically replaces all existing data with the given set. After the first
	// successful Init, IsInitialized returns true forever.
	Init(allData []StoreCollection) error

	// Get retrieves an item from the specified collection. If the key is not known at
	// all, it returns StoreItemDescriptor{}.NotFound().
	Get(kind StoreDataKind, key string) (StoreItemDescriptor, error)

	// GetAll returns a snapshot of all items of the given kind, including tombstones.
	GetAll(kind StoreDataKind) ([]StoreKeyedItemDescriptor, error)

	// Upsert stores the descriptor - which may be a tombstone - if and only if its
	// version is strictly greater than the version currently stored for that key (a
	// missing key counts as version -1). It returns whether the write was applied.
	Upsert(kind StoreDataKind, key string, item StoreItemDescriptor) (bool, error)

	// IsInitialized returns true if the store has ever contained a full data set.
	IsInitialized() bool

	// IsStatusMonitoringEnabled returns true if the store can report when it becomes
	// unavailable and available again. Persistent stores normally can; the in-memory
	// store cannot fail, so it returns false.
	IsStatusMonitoringEnabled() bool
}

// PersistentDataStore is the contract implemented by database integrations. It is the
// serialized-bytes counterpart of DataStore; the SDK always accesses such a store
// through its caching wrapper, never directly.
//
// Implementations do not need to worry about caching or about data dependencies between
// kinds; the wrapper handles both. They do own version gating on Upsert, since only the
// database can do a version comparison atomically.
type PersistentDataStore interface {
	io.Closer

	// Init replaces all existing data with the given set. The replacement need not be
	// atomic; the Consul and DynamoDB stores write in batches. The data arrives
	// pre-ordered so that items are written after anything they depend on.
	Init(allData []StoreSerializedCollection) error

	// Get retrieves an item. A missing key returns
	// StoreSerializedItemDescriptor{}.NotFound() with a nil error.
	Get(kind StoreDataKind, key string) (StoreSerializedItemDescriptor, error)

	// GetAll returns all items of the given kind, including stored tombstones.
	GetAll(kind StoreDataKind) ([]StoreKeyedSerializedItemDescriptor, error)

	// Upsert stores the item if its version is strictly greater than the stored
	// version, returning whether the write was applied.
	Upsert(kind StoreDataKind, key string, item StoreSerializedItemDescriptor) (bool, error)

	// IsInitialized returns true if the database contains a full data set, possibly
	// written by another SDK instance.
	IsInitialized() bool

	// IsStoreAvailable makes a cheap probe of the database, returning true if it is
	// reachable. Nothing else in this module calls it.
	IsStoreAvailable() bool
}

// DataSource is the component that keeps the data store up to date from the control
// plane. The streaming implementation is the default.
type DataSource interface {
	io.Closer

	// IsInitialized returns true once the source has stored a complete data set.
	IsInitialized() bool

	// Start begins the source's asynchronous operation. The channel is closed when the
	// source has either succeeded in storing its first data set or permanently failed.
	Start(closeWhenReady chan<- struct{})
}
