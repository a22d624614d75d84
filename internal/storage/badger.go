// ABOUTME: Badger storage implementation for geofence collections
// ABOUTME: Embedded LSM store for devices that write history at high rates

package storage

import (
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v3"
)

// BadgerKV implements KV on an embedded Badger database.
type BadgerKV struct {
	db *badger.DB
}

var _ KV = (*BadgerKV)(nil)

// NewBadgerKV opens (or creates) a Badger database in dir.
// An empty dir opens an in-memory database.
func NewBadgerKV(dir string) (*BadgerKV, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	} else if err := os.MkdirAll(dir, 0750); err != nil { //nolint:gosec // 0750 is appropriate for user data directory
		return nil, fmt.Errorf("create directory: %w", err)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerKV{db: db}, nil
}

func (b *BadgerKV) Get(key string) ([]byte, error) {
	var value []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return value, nil
}

func (b *BadgerKV) Set(key string, value []byte) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (b *BadgerKV) Remove(key string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

func (b *BadgerKV) Close() error {
	return b.db.Close()
}
