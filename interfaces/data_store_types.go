// Package interfaces defines the component interfaces of the SDK: the data store
// abstraction consumed by the evaluator and populated by the data source, and the
// persistent-store contract implemented by database integrations.
package interfaces

// StoreDataKind represents a separately namespaced collection of storable items, such
// as feature flags or user segments. Data store implementations treat all kinds
// generically; they should never look for one specific kind.
type StoreDataKind interface {
	// GetName returns the unique namespace identifier for this kind.
	GetName() string
	// Serialize converts an item descriptor to its serialized representation.
	Serialize(item StoreItemDescriptor) []byte
	// Deserialize converts serialized data back to an item descriptor. Tombstones
	// deserialize to a descriptor with a nil Item.
	Deserialize(data []byte) (StoreItemDescriptor, error)
}

// StoreItemDescriptor is a versioned item - or a versioned placeholder for a deleted
// item - as held by stores that keep live objects in memory.
//
// For any key within a kind there is either an item with a version, or a tombstone with
// a version. Tombstones exist so that if an item is updated with version N and deleted
// with version N+1 but the messages arrive out of order, version N cannot resurrect it.
type StoreItemDescriptor struct {
	// Version is the version number provided by the control plane.
	Version int
	// Item is the data item, or nil for a tombstone.
	Item interface{}
}

// NotFound returns a descriptor value representing a key with no entry at all.
func (s StoreItemDescriptor) NotFound() StoreItemDescriptor {
	return StoreItemDescriptor{Version: -1, Item: nil}
}

// StoreSerializedItemDescriptor is the counterpart of StoreItemDescriptor for
// persistent stores, which deal only in serialized bytes.
type StoreSerializedItemDescriptor struct {
	// Version is the version number provided by the control plane.
	Version int
	// Deleted is true if this is a tombstone. SerializedItem still contains a parseable
	// placeholder in that case, but a store implementation may represent the deletion
	// some other way and discard the bytes.
	Deleted bool
	// SerializedItem is the item's serialized representation.
	SerializedItem []byte
}

// NotFound returns a descriptor value representing a key with no entry at all.
func (s StoreSerializedItemDescriptor) NotFound() StoreSerializedItemDescriptor {
	return StoreSerializedItemDescriptor{Version: -1, SerializedItem: nil}
}

// StoreKeyedItemDescriptor is a key-descriptor pair.
type StoreKeyedItemDescriptor struct {
	// Key is the item's unique key within its kind.
	Key string
	// Item is the versioned item.
	Item StoreItemDescriptor
}

// StoreKeyedSerializedItemDescriptor is a key-descriptor pair in serialized form.
type StoreKeyedSerializedItemDescriptor struct {
	// Key is the item's unique key within its kind.
	Key string
	// Item is the versioned serialized item.
	Item StoreSerializedItemDescriptor
}

// StoreCollection is all the items of one kind, as used in Init.
type StoreCollection struct {
	Kind  StoreDataKind
	Items []StoreKeyedItemDescriptor
}

// StoreSerializedCollection is all the serialized items of one kind.
type StoreSerializedCollection struct {
	Kind  StoreDataKind
	Items []StoreKeyedSerializedItemDescriptor
}
