// ABOUTME: Zone registry with validated CRUD and write-through persistence
// ABOUTME: In-memory state is authoritative; storage failures are logged, not returned

package geofence

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/harper/geofence/internal/metrics"
	"github.com/harper/geofence/internal/models"
	"github.com/harper/geofence/internal/storage"
	"github.com/rs/zerolog"
)

// RegistryConfig wires the registry's collaborators. All fields are optional.
type RegistryConfig struct {
	Store   storage.KV
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}

// Registry owns the set of zone definitions.
type Registry struct {
	mu    sync.RWMutex
	zones []models.Zone

	store   storage.KV
	log     zerolog.Logger
	metrics *metrics.Metrics
}

// NewRegistry creates an empty registry. Call Load to read persisted zones.
func NewRegistry(cfg RegistryConfig) *Registry {
	return &Registry{
		store:   cfg.Store,
		log:     cfg.Logger.With().Str("component", "registry").Logger(),
		metrics: cfg.Metrics,
	}
}

// Load replaces the in-memory zones with the persisted set.
// Missing or malformed storage yields an empty registry; invalid or
// duplicate zones are skipped.
// Without a store, Load leaves memory untouched.
func (r *Registry) Load() {
	if r.store == nil {
		return
	}
	loaded, err := storage.LoadZones(r.store)
	if err != nil {
		r.log.Warn().Err(err).Str("key", storage.KeyZones).Msg("starting with empty zone registry")
		loaded = nil
	}

	seen := make(map[string]bool, len(loaded))
	valid := make([]models.Zone, 0, len(loaded))
	for _, z := range loaded {
		if z.ID == "" || seen[z.ID] {
			r.log.Warn().Str("zone_id", z.ID).Msg("skipping zone with missing or duplicate id")
			continue
		}
		if err := z.Validate(); err != nil {
			r.log.Warn().Err(err).Str("zone_id", z.ID).Msg("skipping invalid zone")
			continue
		}
		seen[z.ID] = true
		valid = append(valid, z)
	}
	// Zones created in the same millisecond keep their persisted order.
	sort.SliceStable(valid, func(i, j int) bool {
		return valid[i].CreatedAt < valid[j].CreatedAt
	})

	r.mu.Lock()
	r.zones = valid
	r.mu.Unlock()

	r.log.Debug().Int("zones", len(valid)).Msg("zones loaded")
}

func newZone(def models.ZoneDef) (models.Zone, error) {
	category, err := models.ParseCategory(string(def.Category))
	if err != nil {
		return models.Zone{}, err
	}
	z := models.Zone{
		ID:            uuid.NewString(),
		Name:          strings.TrimSpace(def.Name),
		Latitude:      def.Latitude,
		Longitude:     def.Longitude,
		RadiusMeters:  def.RadiusMeters,
		Category:      category,
		Enabled:       def.Enabled,
		NotifyOnEntry: def.NotifyOnEntry,
		NotifyOnExit:  def.NotifyOnExit,
		CreatedAt:     time.Now().UnixMilli(),
	}
	if err := z.Validate(); err != nil {
		return models.Zone{}, err
	}
	return z, nil
}

// AddZone validates def and stores it as a new zone with a fresh ID.
func (r *Registry) AddZone(def models.ZoneDef) (string, error) {
	z, err := newZone(def)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.zones = append(r.zones, z)
	r.persistLocked()

	r.log.Info().Str("zone_id", z.ID).Str("name", z.Name).Msg("zone added")
	return z.ID, nil
}

// SeedDefaults adds each definition whose name is not already present
// (case-insensitive) and returns how many were added.
func (r *Registry) SeedDefaults(defs []models.ZoneDef) (int, error) {
	zones := make([]models.Zone, 0, len(defs))
	for _, def := range defs {
		z, err := newZone(def)
		if err != nil {
			return 0, err
		}
		zones = append(zones, z)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	names := make(map[string]bool, len(r.zones))
	for _, z := range r.zones {
		names[strings.ToLower(z.Name)] = true
	}
	added := 0
	for _, z := range zones {
		key := strings.ToLower(z.Name)
		if names[key] {
			continue
		}
		names[key] = true
		r.zones = append(r.zones, z)
		added++
	}
	if added > 0 {
		r.persistLocked()
		r.log.Info().Int("added", added).Msg("default zones seeded")
	}
	return added, nil
}

// RemoveZone deletes a zone and reports whether it existed.
func (r *Registry) RemoveZone(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexLocked(id)
	if i < 0 {
		return false
	}
	r.zones = append(r.zones[:i], r.zones[i+1:]...)
	r.persistLocked()

	r.log.Info().Str("zone_id", id).Msg("zone removed")
	return true
}

// UpdateZone applies patch to the zone with id. It returns false if the zone
// does not exist, and a validation error if the result would be invalid.
func (r *Registry) UpdateZone(id string, patch models.ZonePatch) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexLocked(id)
	if i < 0 {
		return false, nil
	}
	updated := patch.Apply(r.zones[i])
	if updated.Category == "" {
		updated.Category = models.CategoryCustom
	}
	if err := updated.Validate(); err != nil {
		return false, err
	}
	r.zones[i] = updated
	r.persistLocked()

	r.log.Info().Str("zone_id", id).Msg("zone updated")
	return true, nil
}

// Zone returns the zone with id.
func (r *Registry) Zone(id string) (models.Zone, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if i := r.indexLocked(id); i >= 0 {
		return r.zones[i], true
	}
	return models.Zone{}, false
}

// Zones returns a copy of all zones in creation order.
func (r *Registry) Zones() []models.Zone {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Zone, len(r.zones))
	copy(out, r.zones)
	return out
}

// EnabledZones returns a copy of the enabled zones in creation order.
func (r *Registry) EnabledZones() []models.Zone {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Zone, 0, len(r.zones))
	for _, z := range r.zones {
		if z.Enabled {
			out = append(out, z)
		}
	}
	return out
}

// Len returns the number of zones.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.zones)
}

// Clear drops all zones from memory. Storage is left untouched.
func (r *Registry) Clear() {
	r.mu.Lock()
	r.zones = nil
	r.mu.Unlock()
}

func (r *Registry) indexLocked(id string) int {
	for i, z := range r.zones {
		if z.ID == id {
			return i
		}
	}
	return -1
}

func (r *Registry) persistLocked() {
	if r.store == nil {
		return
	}
	if err := storage.SaveZones(r.store, r.zones); err != nil {
		r.metrics.IncrementPersistenceFailures(storage.KeyZones)
		r.log.Warn().Err(err).Str("key", storage.KeyZones).Msg("failed to persist zones")
	}
}
