// ABOUTME: Data migration between geofence storage backends
// ABOUTME: Copies every collection key from source to destination store

package storage

import (
	"errors"
	"fmt"
)

// MigrateSummary holds counts of migrated entities.
type MigrateSummary struct {
	Zones       int
	Samples     int
	Transitions int
}

// MigrateData copies all collections from src to dst.
// Each collection is decoded before it is written so corrupt data is never propagated.
// Keys missing from src are left untouched in dst.
func MigrateData(src, dst KV) (*MigrateSummary, error) {
	summary := &MigrateSummary{}

	zones, err := LoadZones(src)
	if err != nil {
		return nil, fmt.Errorf("load source zones: %w", err)
	}
	history, err := LoadHistory(src)
	if err != nil {
		return nil, fmt.Errorf("load source history: %w", err)
	}
	transitions, err := LoadTransitions(src)
	if err != nil {
		return nil, fmt.Errorf("load source transitions: %w", err)
	}

	for _, key := range AllKeys {
		if _, err := src.Get(key); errors.Is(err, ErrNotFound) {
			continue
		}
		switch key {
		case KeyZones:
			err = SaveZones(dst, zones)
			summary.Zones = len(zones)
		case KeyHistory:
			err = SaveHistory(dst, history)
			summary.Samples = len(history)
		case KeyTransitions:
			err = SaveTransitions(dst, transitions)
			summary.Transitions = len(transitions)
		}
		if err != nil {
			return nil, fmt.Errorf("write %s: %w", key, err)
		}
	}

	return summary, nil
}
