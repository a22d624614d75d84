// ABOUTME: Key-value store interface and the collection keys stored in it
// ABOUTME: Enables testability and storage backend swapping

package storage

// Keys for the three independently serialized collections.
const (
	KeyZones       = "geofence_zones"
	KeyHistory     = "location_history"
	KeyTransitions = "geofence_transitions"
)

// AllKeys lists every collection key, in migration order.
var AllKeys = []string{KeyZones, KeyHistory, KeyTransitions}

// KV is the persistent key-value store used by the registry, tracker, and engine.
// No transactional guarantee spans keys; each key is written whole.
type KV interface {
	// Get returns the value for key, or ErrNotFound if it has never been set.
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	// Remove deletes key. Removing a missing key is not an error.
	Remove(key string) error
	Close() error
}
