// ABOUTME: Tests for the Charm KV backend
// ABOUTME: Runs against a local data dir with sync disabled

package charm

import (
	"errors"
	"sync"
	"testing"

	"github.com/harper/geofence/internal/storage"
)

func newTestKV(t *testing.T, name string) *KV {
	t.Helper()
	t.Setenv("CHARM_DATA_DIR", t.TempDir())
	return NewTestKV(name)
}

func TestKV_SetGetRemove(t *testing.T) {
	store := newTestKV(t, "geofence-test")

	if _, err := store.Get(storage.KeyZones); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("got error %v, want ErrNotFound", err)
	}

	if err := store.Set(storage.KeyZones, []byte(`[]`)); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	got, err := store.Get(storage.KeyZones)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if string(got) != `[]` {
		t.Errorf("got %q, want []", got)
	}

	if err := store.Remove(storage.KeyZones); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if _, err := store.Get(storage.KeyZones); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("got error %v after remove, want ErrNotFound", err)
	}
}

func TestKV_CollectionsRoundTrip(t *testing.T) {
	store := newTestKV(t, "geofence-collections")

	if err := storage.SaveHistory(store, nil); err != nil {
		t.Fatalf("save history: %v", err)
	}
	history, err := storage.LoadHistory(store)
	if err != nil {
		t.Fatalf("load history: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("expected empty history, got %d", len(history))
	}
}

func TestKV_ConcurrentWriters(t *testing.T) {
	store := newTestKV(t, "geofence-concurrent")
	// Initialize the database with a single connection first.
	if err := store.Set("init", []byte("1")); err != nil {
		t.Fatalf("failed to initialize: %v", err)
	}

	const writers = 3
	var wg sync.WaitGroup
	errs := make(chan error, writers*5)

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				if err := store.Set(storage.KeyTransitions, []byte("[]")); err != nil {
					errs <- err
				}
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent write failed: %v", err)
	}
}
