// ABOUTME: Tests for the geofence engine lifecycle and transition pipeline
// ABOUTME: Drives the engine through a fake sample source

package geofence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/harper/geofence/internal/location"
	"github.com/harper/geofence/internal/metrics"
	"github.com/harper/geofence/internal/models"
	"github.com/harper/geofence/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu             sync.Mutex
	permission     location.PermissionState
	startErr       error
	nextID         int
	subs           map[int]func(models.Sample)
	subscribeCalls int
	startCalls     int
	stopCalls      int
	tracking       location.TrackingConfig
	last           *models.Sample
}

func newFakeSource(permission location.PermissionState) *fakeSource {
	return &fakeSource{permission: permission, subs: make(map[int]func(models.Sample))}
}

func (f *fakeSource) RequestPermission(context.Context) location.PermissionState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.permission
}

func (f *fakeSource) StartTracking(_ context.Context, cfg location.TrackingConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCalls++
	f.tracking = cfg
	return f.startErr
}

func (f *fakeSource) StopTracking() {
	f.mu.Lock()
	f.stopCalls++
	f.mu.Unlock()
}

func (f *fakeSource) Subscribe(fn func(models.Sample)) func() {
	f.mu.Lock()
	f.subscribeCalls++
	f.nextID++
	id := f.nextID
	f.subs[id] = fn
	last := f.last
	f.mu.Unlock()

	if last != nil {
		fn(*last)
	}
	return func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
	}
}

func (f *fakeSource) LastSample() (models.Sample, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.last == nil {
		return models.Sample{}, false
	}
	return *f.last, true
}

func (f *fakeSource) emit(s models.Sample) {
	f.mu.Lock()
	f.last = &s
	subs := make([]func(models.Sample), 0, len(f.subs))
	for _, fn := range f.subs {
		subs = append(subs, fn)
	}
	f.mu.Unlock()

	for _, fn := range subs {
		fn(s)
	}
}

func (f *fakeSource) subscriberCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

type recordingSink struct {
	mu  sync.Mutex
	got []models.Transition
	err error
}

func (s *recordingSink) Deliver(_ context.Context, tr models.Transition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, tr)
	return s.err
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.got)
}

var (
	inside  = at(37.7749, -122.4194, 0)
	outside = at(37.7849, -122.4194, 0)
)

func sampleAtMs(s models.Sample, ms int64) models.Sample {
	s.CapturedAt = ms
	return s
}

type engineFixture struct {
	source   *fakeSource
	kv       *storage.MemoryKV
	registry *Registry
	sink     *recordingSink
	metrics  *metrics.Metrics
	engine   *Engine
}

func newFixture(t *testing.T, permission location.PermissionState, cfg EngineConfig) *engineFixture {
	t.Helper()
	f := &engineFixture{
		source:  newFakeSource(permission),
		kv:      storage.NewMemoryKV(),
		sink:    &recordingSink{},
		metrics: metrics.New(prometheus.NewRegistry()),
	}
	f.registry = NewRegistry(RegistryConfig{Store: f.kv})
	cfg.Store = f.kv
	cfg.Sink = f.sink
	cfg.Metrics = f.metrics
	f.engine = NewEngine(f.source, f.registry, cfg)
	return f
}

// addPark persists a zone before Initialize loads the registry.
func (f *engineFixture) addPark(t *testing.T, id string) models.Zone {
	t.Helper()
	z := park1()
	z.ID = id
	z.Name = id
	z.CreatedAt = int64(len(id))
	zones, err := storage.LoadZones(f.kv)
	require.NoError(t, err)
	require.NoError(t, storage.SaveZones(f.kv, append(zones, z)))
	return z
}

func TestEngine_PermissionDenied(t *testing.T) {
	f := newFixture(t, location.PermissionDenied, EngineConfig{})
	f.addPark(t, "park-1")

	ok, err := f.engine.Initialize(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, 1, f.registry.Len(), "registry should be loaded even without permission")
	assert.Equal(t, 0, f.source.subscribeCalls, "no tracker subscription without permission")
	assert.Equal(t, 0, f.source.startCalls)

	fired := 0
	unsubscribe := f.engine.Subscribe(func(models.Transition) { fired++ })
	require.NotNil(t, unsubscribe)

	f.source.emit(sampleAtMs(inside, 1))
	f.engine.Process(sampleAtMs(inside, 2))
	assert.Equal(t, 0, fired)
	assert.Empty(t, f.engine.Transitions())
}

func TestEngine_InitializeSubscribesOnce(t *testing.T) {
	tracking := location.TrackingConfig{DesiredAccuracy: location.AccuracyHigh, EnableBackground: true}
	f := newFixture(t, location.PermissionGranted, EngineConfig{Tracking: tracking})

	for i := 0; i < 3; i++ {
		ok, err := f.engine.Initialize(context.Background())
		require.NoError(t, err)
		require.True(t, ok)
	}

	assert.Equal(t, 1, f.source.subscribeCalls)
	assert.Equal(t, 1, f.source.startCalls)
	assert.Equal(t, tracking, f.source.tracking)
	assert.True(t, f.engine.Running())
}

func TestEngine_StartTrackingFailure(t *testing.T) {
	f := newFixture(t, location.PermissionGranted, EngineConfig{})
	f.source.startErr = fmt.Errorf("watch: %w", location.ErrDeviceUnavailable)

	ok, err := f.engine.Initialize(context.Background())
	assert.False(t, ok)
	assert.ErrorIs(t, err, location.ErrDeviceUnavailable)
	assert.False(t, f.engine.Running())

	f.source.startErr = &location.PermissionError{Tier: location.TierForeground, State: location.PermissionDenied}
	ok, err = f.engine.Initialize(context.Background())
	assert.False(t, ok)
	assert.NoError(t, err, "permission refusal is reported as false, not an error")
}

func TestEngine_SimpleEntry(t *testing.T) {
	f := newFixture(t, location.PermissionGranted, EngineConfig{})
	f.addPark(t, "park-1")

	var got []models.Transition
	f.engine.Subscribe(func(tr models.Transition) { got = append(got, tr) })

	ok, err := f.engine.Initialize(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	f.source.emit(sampleAtMs(inside, 1000))

	require.Len(t, got, 1)
	assert.Equal(t, "park-1", got[0].ZoneID)
	assert.Equal(t, models.TransitionEntry, got[0].Kind)
	assert.Equal(t, int64(1000), got[0].OccurredAt)

	assert.Equal(t, 1, f.sink.count())
	assert.Len(t, f.engine.Transitions(), 1)
	assert.True(t, f.engine.Membership().Contains("park-1"))

	persisted, err := storage.LoadTransitions(f.kv)
	require.NoError(t, err)
	require.Len(t, persisted, 1)
	assert.Equal(t, got[0].ID, persisted[0].ID)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SamplesProcessed))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Transitions.WithLabelValues("entry")))

	// No movement, no duplicates.
	f.source.emit(sampleAtMs(inside, 2000))
	assert.Len(t, got, 1)
}

func TestEngine_ReplayedSampleIsEvaluated(t *testing.T) {
	f := newFixture(t, location.PermissionGranted, EngineConfig{})
	f.addPark(t, "park-1")
	s := sampleAtMs(inside, 5)
	f.source.last = &s

	_, err := f.engine.Initialize(context.Background())
	require.NoError(t, err)

	assert.Len(t, f.engine.Transitions(), 1)
}

func TestEngine_DisabledZoneIgnored(t *testing.T) {
	f := newFixture(t, location.PermissionGranted, EngineConfig{})
	z := f.addPark(t, "park-1")
	_, _ = f.engine.Initialize(context.Background())

	disabled := false
	ok, err := f.registry.UpdateZone(z.ID, models.ZonePatch{Enabled: &disabled})
	require.NoError(t, err)
	require.True(t, ok)

	f.source.emit(sampleAtMs(inside, 1))
	assert.Empty(t, f.engine.Transitions())
	assert.Equal(t, 0, f.engine.Membership().Len())
}

func TestEngine_TransitionCapEvictsOldest(t *testing.T) {
	f := newFixture(t, location.PermissionGranted, EngineConfig{})
	f.addPark(t, "park-1")
	_, _ = f.engine.Initialize(context.Background())

	for i := 1; i <= 150; i++ {
		s := outside
		if i%2 == 1 {
			s = inside
		}
		f.source.emit(sampleAtMs(s, int64(i)))
	}

	transitions := f.engine.Transitions()
	require.Len(t, transitions, 100)
	assert.Equal(t, int64(51), transitions[0].OccurredAt)
	assert.Equal(t, int64(150), transitions[99].OccurredAt)

	persisted, _ := storage.LoadTransitions(f.kv)
	assert.Len(t, persisted, 100)
}

func TestEngine_CustomCapacity(t *testing.T) {
	f := newFixture(t, location.PermissionGranted, EngineConfig{TransitionCapacity: 3})
	f.addPark(t, "park-1")
	_, _ = f.engine.Initialize(context.Background())

	for i := 1; i <= 10; i++ {
		s := outside
		if i%2 == 1 {
			s = inside
		}
		f.source.emit(sampleAtMs(s, int64(i)))
	}
	assert.Len(t, f.engine.Transitions(), 3)
}

func TestEngine_SubscriberAndSinkFailuresAreIsolated(t *testing.T) {
	f := newFixture(t, location.PermissionGranted, EngineConfig{})
	f.addPark(t, "a")
	f.addPark(t, "bb")
	f.sink.err = errors.New("push service down")
	_, _ = f.engine.Initialize(context.Background())

	f.engine.Subscribe(func(models.Transition) { panic("bad subscriber") })
	var healthy []models.Transition
	f.engine.Subscribe(func(tr models.Transition) { healthy = append(healthy, tr) })

	f.source.emit(sampleAtMs(inside, 1))

	assert.Len(t, healthy, 2, "healthy subscriber receives every transition")
	assert.Equal(t, 2, f.sink.count(), "a failing sink does not stop later deliveries")
	assert.Len(t, f.engine.Transitions(), 2)
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.SinkFailures))

	// The engine keeps working after failures.
	f.source.emit(sampleAtMs(outside, 2))
	assert.Len(t, healthy, 4)
}

func TestEngine_StopDuringEvaluation(t *testing.T) {
	f := newFixture(t, location.PermissionGranted, EngineConfig{})
	f.addPark(t, "a")
	f.addPark(t, "bb")
	_, _ = f.engine.Initialize(context.Background())

	delivered := 0
	f.engine.Subscribe(func(models.Transition) {
		delivered++
		f.engine.Stop()
	})

	f.source.emit(sampleAtMs(inside, 1))

	assert.Equal(t, 2, delivered, "in-flight evaluation completes")
	assert.Len(t, f.engine.Transitions(), 2)
	assert.False(t, f.engine.Running())
	assert.Equal(t, 1, f.source.stopCalls)

	f.source.emit(sampleAtMs(outside, 2))
	assert.Len(t, f.engine.Transitions(), 2, "no samples accepted after stop")

	f.engine.Stop()
	assert.Equal(t, 1, f.source.stopCalls, "stop is idempotent")
}

func TestEngine_RestartAfterStop(t *testing.T) {
	f := newFixture(t, location.PermissionGranted, EngineConfig{})
	f.addPark(t, "park-1")
	_, _ = f.engine.Initialize(context.Background())
	f.engine.Stop()

	ok, err := f.engine.Initialize(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, f.source.subscribeCalls, "subscription survives stop")
	assert.Equal(t, 2, f.source.startCalls)

	f.source.emit(sampleAtMs(inside, 1))
	assert.Len(t, f.engine.Transitions(), 1)
}

func TestEngine_Destroy(t *testing.T) {
	f := newFixture(t, location.PermissionGranted, EngineConfig{})
	f.addPark(t, "park-1")
	_, _ = f.engine.Initialize(context.Background())

	fired := 0
	f.engine.Subscribe(func(models.Transition) { fired++ })

	f.engine.Destroy()
	f.engine.Destroy()

	assert.Equal(t, 0, f.registry.Len())
	assert.Equal(t, 0, f.source.subscriberCount())
	assert.False(t, f.engine.Running())

	f.engine.Process(sampleAtMs(inside, 1))
	assert.Equal(t, 0, fired)

	ok, err := f.engine.Initialize(context.Background())
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrDestroyed)

	persisted, _ := storage.LoadZones(f.kv)
	assert.Len(t, persisted, 1, "destroy clears memory only")
}

func TestEngine_AcknowledgeAndClear(t *testing.T) {
	f := newFixture(t, location.PermissionGranted, EngineConfig{})
	f.addPark(t, "park-1")
	_, _ = f.engine.Initialize(context.Background())
	f.source.emit(sampleAtMs(inside, 1))

	id := f.engine.Transitions()[0].ID
	assert.True(t, f.engine.Acknowledge(id))
	assert.True(t, f.engine.Acknowledge(id))
	assert.False(t, f.engine.Acknowledge("missing"))
	assert.True(t, f.engine.Transitions()[0].Acknowledged)

	persisted, _ := storage.LoadTransitions(f.kv)
	require.Len(t, persisted, 1)
	assert.True(t, persisted[0].Acknowledged)

	f.engine.ClearTransitions()
	assert.Empty(t, f.engine.Transitions())
	_, err := f.kv.Get(storage.KeyTransitions)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestEngine_LoadsPersistedTransitions(t *testing.T) {
	f := newFixture(t, location.PermissionGranted, EngineConfig{TransitionCapacity: 2})
	require.NoError(t, storage.SaveTransitions(f.kv, []models.Transition{{ID: "1"}, {ID: "2"}, {ID: "3"}}))

	_, err := f.engine.Initialize(context.Background())
	require.NoError(t, err)

	transitions := f.engine.Transitions()
	require.Len(t, transitions, 2)
	assert.Equal(t, "2", transitions[0].ID)
}

func TestEngine_CorruptTransitionLog(t *testing.T) {
	f := newFixture(t, location.PermissionGranted, EngineConfig{})
	require.NoError(t, f.kv.Set(storage.KeyTransitions, []byte("garbage")))

	ok, err := f.engine.Initialize(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, f.engine.Transitions())
}

func TestEngine_SeedsDefaultZones(t *testing.T) {
	f := newFixture(t, location.PermissionDenied, EngineConfig{DefaultZones: DefaultZones()})

	_, err := f.engine.Initialize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, len(DefaultZones()), f.registry.Len())

	// Seeding is by name, so a second engine on the same store adds nothing.
	again := NewEngine(f.source, NewRegistry(RegistryConfig{Store: f.kv}), EngineConfig{Store: f.kv, DefaultZones: DefaultZones()})
	_, err = again.Initialize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, len(DefaultZones()), again.Registry().Len())
}

func TestEngine_CurrentAndNearestZones(t *testing.T) {
	f := newFixture(t, location.PermissionGranted, EngineConfig{})
	f.addPark(t, "park-1")
	_, _ = f.engine.Initialize(context.Background())

	_, _, ok := f.engine.NearestZone()
	assert.False(t, ok, "no sample yet")

	f.source.emit(sampleAtMs(inside, 1))
	current := f.engine.CurrentZones()
	require.Len(t, current, 1)
	assert.Equal(t, "park-1", current[0].ID)

	f.source.emit(sampleAtMs(outside, 2))
	assert.Empty(t, f.engine.CurrentZones())

	z, dist, ok := f.engine.NearestZone()
	require.True(t, ok)
	assert.Equal(t, "park-1", z.ID)
	assert.InDelta(t, 1112, dist, 5)
}

func TestEngine_NilSinkDefaultsToNop(t *testing.T) {
	source := newFakeSource(location.PermissionGranted)
	e := NewEngine(source, NewRegistry(RegistryConfig{}), EngineConfig{Sink: nil})
	_, err := e.registry.AddZone(models.NewZoneDef("p", inside.Latitude, inside.Longitude, 50, models.CategoryPark))
	require.NoError(t, err)
	_, _ = e.Initialize(context.Background())

	assert.NotPanics(t, func() { source.emit(sampleAtMs(inside, 1)) })
	assert.Len(t, e.Transitions(), 1)
}

func TestEngine_LoadWithoutTracking(t *testing.T) {
	f := newFixture(t, location.PermissionGranted, EngineConfig{})
	f.addPark(t, "park-1")
	require.NoError(t, storage.SaveTransitions(f.kv, []models.Transition{{ID: "t1"}}))

	require.NoError(t, f.engine.Load())
	assert.Equal(t, 1, f.registry.Len())
	assert.Len(t, f.engine.Transitions(), 1)
	assert.False(t, f.engine.Running())
	assert.Zero(t, f.source.subscriberCount())

	f.engine.Destroy()
	assert.ErrorIs(t, f.engine.Load(), ErrDestroyed)
}

func TestEngine_RestartKeepsUnpersistedState(t *testing.T) {
	kv := brokenKV{storage.NewMemoryKV()}
	source := newFakeSource(location.PermissionGranted)
	registry := NewRegistry(RegistryConfig{Store: kv})
	e := NewEngine(source, registry, EngineConfig{Store: kv})

	require.NoError(t, e.Load())
	ok, err := e.Initialize(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	id, err := registry.AddZone(models.NewZoneDef("park", inside.Latitude, inside.Longitude, 50, models.CategoryPark))
	require.NoError(t, err)
	source.emit(sampleAtMs(inside, 1))
	require.Len(t, e.Transitions(), 1)

	e.Stop()
	ok, err = e.Initialize(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	_, found := registry.Zone(id)
	assert.True(t, found, "zone that failed to persist must survive a restart")
	assert.Equal(t, 1, registry.Len())
	assert.Len(t, e.Transitions(), 1, "transition log must survive a restart")

	_, err = kv.Get(storage.KeyZones)
	assert.ErrorIs(t, err, storage.ErrNotFound, "nothing reached storage")
}

func TestEngine_ConcurrentSamplesAreSerialized(t *testing.T) {
	const (
		workers = 8
		perWork = 500
	)
	f := newFixture(t, location.PermissionGranted, EngineConfig{TransitionCapacity: workers * perWork})
	f.addPark(t, "park-1")
	ok, err := f.engine.Initialize(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWork; i++ {
				s := inside
				if (i+w)%2 == 1 {
					s = outside
				}
				f.source.emit(sampleAtMs(s, int64(w*perWork+i+1)))
			}
		}(w)
	}
	wg.Wait()

	transitions := f.engine.Transitions()
	require.NotEmpty(t, transitions)
	for i, tr := range transitions {
		want := models.TransitionEntry
		if i%2 == 1 {
			want = models.TransitionExit
		}
		require.Equal(t, want, tr.Kind, "transition %d breaks entry/exit alternation", i)
	}

	inZone := len(f.engine.CurrentZones()) == 1
	assert.Equal(t, len(transitions)%2 == 1, inZone, "membership must agree with the last transition")
	assert.Equal(t, len(transitions), f.sink.count())
}
