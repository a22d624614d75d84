// ABOUTME: Geofence engine wiring the tracker, registry, evaluator, and sinks
// ABOUTME: Serializes sample processing and keeps the capped transition log

package geofence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harper/geofence/internal/fanout"
	"github.com/harper/geofence/internal/geo"
	"github.com/harper/geofence/internal/location"
	"github.com/harper/geofence/internal/metrics"
	"github.com/harper/geofence/internal/models"
	"github.com/harper/geofence/internal/notify"
	"github.com/harper/geofence/internal/storage"
	"github.com/rs/zerolog"
)

const (
	DefaultTransitionCapacity = 100
	DefaultSinkTimeout        = 5 * time.Second
)

// SampleSource is the part of the location tracker the engine depends on.
type SampleSource interface {
	RequestPermission(ctx context.Context) location.PermissionState
	StartTracking(ctx context.Context, cfg location.TrackingConfig) error
	StopTracking()
	Subscribe(fn func(models.Sample)) (unsubscribe func())
	LastSample() (models.Sample, bool)
}

// EngineConfig wires the engine's collaborators. All fields are optional.
type EngineConfig struct {
	Store   storage.KV
	Sink    notify.Sink
	Logger  zerolog.Logger
	Metrics *metrics.Metrics

	TransitionCapacity int
	SinkTimeout        time.Duration
	Tracking           location.TrackingConfig

	// DefaultZones are seeded by name the first time the engine loads.
	DefaultZones []models.ZoneDef
}

// Engine turns the sample stream into zone transitions.
type Engine struct {
	tracker  SampleSource
	registry *Registry
	store    storage.KV
	sink     notify.Sink
	log      zerolog.Logger
	metrics  *metrics.Metrics

	capacity    int
	sinkTimeout time.Duration
	tracking    location.TrackingConfig
	defaults    []models.ZoneDef

	running   atomic.Bool
	destroyed atomic.Bool

	// initMu serializes Initialize and Load. Stop and Destroy never take it.
	initMu sync.Mutex
	// loaded is guarded by initMu. Storage is read once per engine; after
	// that memory is authoritative even when saves have been failing.
	loaded bool

	lifeMu      sync.Mutex
	unsubscribe func()

	// procMu is held for the whole evaluate, record, and dispatch sequence.
	procMu sync.Mutex

	memMu      sync.RWMutex
	membership models.Membership
	lastSample *models.Sample

	logMu       sync.RWMutex
	transitions []models.Transition

	subs *fanout.Registry[models.Transition]
}

// NewEngine creates an engine. Nothing is loaded or subscribed until Initialize.
func NewEngine(tracker SampleSource, registry *Registry, cfg EngineConfig) *Engine {
	if cfg.TransitionCapacity <= 0 {
		cfg.TransitionCapacity = DefaultTransitionCapacity
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = DefaultSinkTimeout
	}
	if cfg.Sink == nil {
		cfg.Sink = notify.Nop{}
	}

	e := &Engine{
		tracker:     tracker,
		registry:    registry,
		store:       cfg.Store,
		sink:        cfg.Sink,
		log:         cfg.Logger.With().Str("component", "engine").Logger(),
		metrics:     cfg.Metrics,
		capacity:    cfg.TransitionCapacity,
		sinkTimeout: cfg.SinkTimeout,
		tracking:    cfg.Tracking,
		defaults:    cfg.DefaultZones,
	}
	e.subs = fanout.New[models.Transition](e.log)
	return e
}

// Registry returns the zone registry the engine evaluates against.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Initialize loads zones and the transition log, then starts tracking.
// It returns false with a nil error when location permission is refused;
// zones are still loaded in that case. Calling it while running is a no-op.
func (e *Engine) Initialize(ctx context.Context) (bool, error) {
	e.initMu.Lock()
	defer e.initMu.Unlock()

	if e.destroyed.Load() {
		return false, ErrDestroyed
	}
	if e.running.Load() {
		return true, nil
	}

	if err := e.load(); err != nil {
		return false, err
	}

	if state := e.tracker.RequestPermission(ctx); state != location.PermissionGranted {
		e.log.Warn().Str("permission", string(state)).Msg("geofencing unavailable without location permission")
		return false, nil
	}

	// Running is set before subscribing so the replayed current sample is evaluated.
	e.running.Store(true)

	e.lifeMu.Lock()
	subscribed := e.unsubscribe != nil
	e.lifeMu.Unlock()
	if !subscribed {
		unsubscribe := e.tracker.Subscribe(e.handleSample)
		e.lifeMu.Lock()
		if e.destroyed.Load() {
			e.lifeMu.Unlock()
			unsubscribe()
			return false, ErrDestroyed
		}
		e.unsubscribe = unsubscribe
		e.lifeMu.Unlock()
	}

	if err := e.tracker.StartTracking(ctx, e.tracking); err != nil {
		e.running.Store(false)
		if errors.Is(err, location.ErrPermissionDenied) {
			e.log.Warn().Err(err).Msg("geofencing unavailable without location permission")
			return false, nil
		}
		return false, fmt.Errorf("start tracking: %w", err)
	}

	e.log.Info().Int("zones", e.registry.Len()).Msg("geofencing started")
	return true, nil
}

// Load reads zones and the transition log from storage and seeds default
// zones without starting tracking. Only the first call, or the first
// Initialize, touches storage; later calls are no-ops.
func (e *Engine) Load() error {
	e.initMu.Lock()
	defer e.initMu.Unlock()

	if e.destroyed.Load() {
		return ErrDestroyed
	}
	return e.load()
}

func (e *Engine) load() error {
	if e.loaded {
		return nil
	}
	e.registry.Load()
	if len(e.defaults) > 0 {
		if _, err := e.registry.SeedDefaults(e.defaults); err != nil {
			return fmt.Errorf("seed default zones: %w", err)
		}
	}
	e.loadTransitions()
	e.loaded = true
	return nil
}

func (e *Engine) loadTransitions() {
	if e.store == nil {
		return
	}
	transitions, err := storage.LoadTransitions(e.store)
	if err != nil {
		e.log.Warn().Err(err).Str("key", storage.KeyTransitions).Msg("starting with empty transition log")
		transitions = nil
	}
	if over := len(transitions) - e.capacity; over > 0 {
		transitions = transitions[over:]
	}

	e.logMu.Lock()
	e.transitions = transitions
	e.logMu.Unlock()
}

// Process evaluates one sample. It is the tracker subscription callback and
// is exported for feeding samples directly.
func (e *Engine) Process(s models.Sample) {
	e.handleSample(s)
}

func (e *Engine) handleSample(s models.Sample) {
	if !e.running.Load() {
		return
	}

	e.procMu.Lock()
	defer e.procMu.Unlock()

	// Stop may have been called while this sample waited for the lock.
	if !e.running.Load() {
		return
	}

	e.memMu.RLock()
	previous := e.membership
	e.memMu.RUnlock()

	next, transitions := Evaluate(previous, s, e.registry.EnabledZones())

	e.memMu.Lock()
	e.membership = next
	e.lastSample = &s
	e.memMu.Unlock()

	e.metrics.IncrementSamples()
	e.metrics.SetActiveZones(next.Len())

	if len(transitions) == 0 {
		return
	}
	e.record(transitions)

	for _, tr := range transitions {
		e.metrics.IncrementTransition(string(tr.Kind))
		e.log.Info().
			Str("transition_id", tr.ID).
			Str("zone_id", tr.ZoneID).
			Str("zone", tr.ZoneName).
			Str("kind", string(tr.Kind)).
			Msg("zone transition")

		e.subs.Publish(tr)
		e.deliver(tr)
	}
}

func (e *Engine) deliver(tr models.Transition) {
	ctx, cancel := context.WithTimeout(context.Background(), e.sinkTimeout)
	defer cancel()

	if err := e.sink.Deliver(ctx, tr); err != nil {
		e.metrics.IncrementSinkFailures()
		e.log.Warn().Err(err).Str("transition_id", tr.ID).Str("zone_id", tr.ZoneID).Msg("notification delivery failed")
	}
}

func (e *Engine) record(transitions []models.Transition) {
	e.logMu.Lock()
	defer e.logMu.Unlock()

	e.transitions = append(e.transitions, transitions...)
	if over := len(e.transitions) - e.capacity; over > 0 {
		e.transitions = append([]models.Transition(nil), e.transitions[over:]...)
	}
	e.persistLocked()
}

func (e *Engine) persistLocked() {
	if e.store == nil {
		return
	}
	if err := storage.SaveTransitions(e.store, e.transitions); err != nil {
		e.metrics.IncrementPersistenceFailures(storage.KeyTransitions)
		e.log.Warn().Err(err).Str("key", storage.KeyTransitions).Msg("failed to persist transitions")
	}
}

// Subscribe registers fn for every transition. It works before Initialize
// and after a refused permission, though nothing fires until tracking runs.
func (e *Engine) Subscribe(fn func(models.Transition)) (unsubscribe func()) {
	return e.subs.Add(fn)
}

// Transitions returns the transition log, oldest first.
func (e *Engine) Transitions() []models.Transition {
	e.logMu.RLock()
	defer e.logMu.RUnlock()

	out := make([]models.Transition, len(e.transitions))
	copy(out, e.transitions)
	return out
}

// Acknowledge marks a transition as seen and reports whether it exists.
func (e *Engine) Acknowledge(id string) bool {
	e.logMu.Lock()
	defer e.logMu.Unlock()

	for i := range e.transitions {
		if e.transitions[i].ID != id {
			continue
		}
		if !e.transitions[i].Acknowledged {
			e.transitions[i].Acknowledged = true
			e.persistLocked()
		}
		return true
	}
	return false
}

// ClearTransitions empties the log in memory and storage.
func (e *Engine) ClearTransitions() {
	e.logMu.Lock()
	defer e.logMu.Unlock()

	e.transitions = nil
	if e.store == nil {
		return
	}
	if err := e.store.Remove(storage.KeyTransitions); err != nil {
		e.metrics.IncrementPersistenceFailures(storage.KeyTransitions)
		e.log.Warn().Err(err).Str("key", storage.KeyTransitions).Msg("failed to clear transitions")
	}
}

// Stop halts tracking. It is safe to call at any time, including from a
// transition subscriber; a sample already being evaluated still completes.
func (e *Engine) Stop() {
	if !e.running.Swap(false) {
		return
	}
	e.tracker.StopTracking()
	e.log.Info().Msg("geofencing stopped")
}

// Destroy stops the engine, drops its tracker subscription, clears the
// registry in memory, and removes all subscribers. The engine cannot be
// initialized again.
func (e *Engine) Destroy() {
	if e.destroyed.Swap(true) {
		return
	}
	e.Stop()

	e.lifeMu.Lock()
	unsubscribe := e.unsubscribe
	e.unsubscribe = nil
	e.lifeMu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}

	e.registry.Clear()
	e.subs.Clear()
}

// Running reports whether the engine is accepting samples.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// Membership returns the zone IDs containing the last processed sample.
func (e *Engine) Membership() models.Membership {
	e.memMu.RLock()
	defer e.memMu.RUnlock()
	return e.membership.Clone()
}

// CurrentZones returns the zones containing the last processed sample.
func (e *Engine) CurrentZones() []models.Zone {
	membership := e.Membership()

	var out []models.Zone
	for _, z := range e.registry.Zones() {
		if membership.Contains(z.ID) {
			out = append(out, z)
		}
	}
	return out
}

// NearestZone returns the enabled zone closest to the last known sample
// and the distance to its center in meters.
func (e *Engine) NearestZone() (models.Zone, float64, bool) {
	e.memMu.RLock()
	last := e.lastSample
	e.memMu.RUnlock()

	var s models.Sample
	if last != nil {
		s = *last
	} else {
		var ok bool
		if s, ok = e.tracker.LastSample(); !ok {
			return models.Zone{}, 0, false
		}
	}
	return geo.Nearest(s.Latitude, s.Longitude, e.registry.EnabledZones())
}
