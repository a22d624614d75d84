// ABOUTME: Charm KV backend for geofence collections using transactional Do API
// ABOUTME: Short-lived connections so several processes can share one database

package charm

import (
	"errors"
	"os"

	"github.com/charmbracelet/charm/kv"
	"github.com/dgraph-io/badger/v3"
	"github.com/harper/geofence/internal/storage"
)

const (
	// DBName is the name of the Charm KV database for geofence data.
	DBName = "geofence"

	// DefaultCharmHost is the default Charm server to use.
	DefaultCharmHost = "charm.2389.dev"
)

// KV implements storage.KV on top of Charm KV.
// It does NOT hold a persistent connection. Each operation opens the
// database, performs the operation, and closes it.
type KV struct {
	dbName   string
	autoSync bool
}

// Compile-time check that KV implements storage.KV.
var _ storage.KV = (*KV)(nil)

// Config holds client configuration options.
type Config struct {
	// CharmHost is the Charm server to use (default: charm.2389.dev).
	CharmHost string
	// AutoSync enables automatic sync after writes.
	AutoSync bool
	// DBName overrides the database name.
	DBName string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	host := os.Getenv("CHARM_HOST")
	if host == "" {
		host = DefaultCharmHost
	}
	return &Config{
		CharmHost: host,
		AutoSync:  true,
		DBName:    DBName,
	}
}

// New creates a Charm-backed store with the given config.
func New(cfg *Config) (*KV, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.CharmHost != "" {
		// Set CHARM_HOST before any KV operations
		if err := os.Setenv("CHARM_HOST", cfg.CharmHost); err != nil {
			return nil, err
		}
	}
	name := cfg.DBName
	if name == "" {
		name = DBName
	}
	return &KV{dbName: name, autoSync: cfg.AutoSync}, nil
}

// NewTestKV creates a store for testing without network access.
func NewTestKV(dbName string) *KV {
	return &KV{dbName: dbName}
}

// Get retrieves a value by key (read-only, no lock contention).
func (c *KV) Get(key string) ([]byte, error) {
	var val []byte
	err := kv.DoReadOnly(c.dbName, func(k *kv.KV) error {
		var err error
		val, err = k.Get([]byte(key))
		return err
	})
	if isMissing(err) {
		return nil, storage.ErrNotFound
	}
	return val, err
}

// Set stores a value with the given key.
func (c *KV) Set(key string, value []byte) error {
	return c.do(func(k *kv.KV) error {
		return k.Set([]byte(key), value)
	})
}

// Remove deletes a key. Missing keys are not an error.
func (c *KV) Remove(key string) error {
	err := c.do(func(k *kv.KV) error {
		return k.Delete([]byte(key))
	})
	if isMissing(err) {
		return nil
	}
	return err
}

// Sync triggers a manual sync with the charm server.
func (c *KV) Sync() error {
	return kv.Do(c.dbName, func(k *kv.KV) error {
		return k.Sync()
	})
}

// Close is a no-op; connections are closed after each operation.
func (c *KV) Close() error {
	return nil
}

func (c *KV) do(fn func(k *kv.KV) error) error {
	return kv.Do(c.dbName, func(k *kv.KV) error {
		if err := fn(k); err != nil {
			return err
		}
		if c.autoSync {
			return k.Sync()
		}
		return nil
	})
}

func isMissing(err error) bool {
	return errors.Is(err, kv.ErrMissingKey) || errors.Is(err, badger.ErrKeyNotFound)
}
