// ABOUTME: Typed JSON load/save helpers for the three persisted collections
// ABOUTME: Zones, location history, and the transition log each live under one key

package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/harper/geofence/internal/models"
)

// LoadZones returns the stored zones. A missing key yields an empty slice.
func LoadZones(kv KV) ([]models.Zone, error) {
	return loadJSON[models.Zone](kv, KeyZones)
}

// SaveZones replaces the stored zone set.
func SaveZones(kv KV, zones []models.Zone) error {
	return saveJSON(kv, KeyZones, zones)
}

// LoadHistory returns the stored location history, oldest first.
func LoadHistory(kv KV) ([]models.Sample, error) {
	return loadJSON[models.Sample](kv, KeyHistory)
}

// SaveHistory replaces the stored location history.
func SaveHistory(kv KV, samples []models.Sample) error {
	return saveJSON(kv, KeyHistory, samples)
}

// LoadTransitions returns the stored transition log, oldest first.
func LoadTransitions(kv KV) ([]models.Transition, error) {
	return loadJSON[models.Transition](kv, KeyTransitions)
}

// SaveTransitions replaces the stored transition log.
func SaveTransitions(kv KV, transitions []models.Transition) error {
	return saveJSON(kv, KeyTransitions, transitions)
}

func loadJSON[T any](kv KV, key string) ([]T, error) {
	data, err := kv.Get(key)
	if errors.Is(err, ErrNotFound) {
		return []T{}, nil
	}
	if err != nil {
		return nil, err
	}

	var out []T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, key, err)
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}

func saveJSON[T any](kv KV, key string, values []T) error {
	if values == nil {
		values = []T{}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return kv.Set(key, data)
}
