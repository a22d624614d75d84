// ABOUTME: Location tracker owning permissions, the sample stream, and history
// ABOUTME: Accepted samples are stored, appended to capped history, broadcast, then uploaded

package location

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/harper/geofence/internal/fanout"
	"github.com/harper/geofence/internal/metrics"
	"github.com/harper/geofence/internal/models"
	"github.com/harper/geofence/internal/storage"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// State is the tracker lifecycle state.
type State int

const (
	StateIdle State = iota
	StatePermissionRequested
	StateGranted
	StateDenied
	StateTracking
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePermissionRequested:
		return "permission_requested"
	case StateGranted:
		return "granted"
	case StateDenied:
		return "denied"
	case StateTracking:
		return "tracking"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Tracker produces the stream of accepted location samples.
type Tracker struct {
	provider Provider
	store    storage.KV
	uploader Uploader
	log      zerolog.Logger
	metrics  *metrics.Metrics
	onDenied func(Tier)

	historyCap    int
	uploadTimeout time.Duration

	// startMu serializes StartTracking calls.
	startMu sync.Mutex

	mu        sync.Mutex
	state     State
	accepting bool
	epoch     uint64
	stops     []func()
	prompted  map[Tier]bool

	// sampleMu serializes the accept pipeline so history order is arrival order.
	sampleMu sync.Mutex

	histMu  sync.RWMutex
	current *models.Sample
	history []models.Sample

	subs    *fanout.Registry[models.Sample]
	uploads errgroup.Group
}

// NewTracker creates an idle tracker and loads persisted history.
// Corrupt history is logged and replaced by an empty one.
func NewTracker(provider Provider, cfg Config) *Tracker {
	if cfg.HistoryCapacity <= 0 {
		cfg.HistoryCapacity = DefaultHistoryCapacity
	}
	if cfg.MaxConcurrentUploads <= 0 {
		cfg.MaxConcurrentUploads = DefaultMaxConcurrentUploads
	}
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = DefaultUploadTimeout
	}

	t := &Tracker{
		provider:      provider,
		store:         cfg.Store,
		uploader:      cfg.Uploader,
		log:           cfg.Logger.With().Str("component", "tracker").Logger(),
		metrics:       cfg.Metrics,
		onDenied:      cfg.OnPermissionDenied,
		historyCap:    cfg.HistoryCapacity,
		uploadTimeout: cfg.UploadTimeout,
		prompted:      make(map[Tier]bool),
	}
	t.subs = fanout.New[models.Sample](t.log)
	t.uploads.SetLimit(cfg.MaxConcurrentUploads)
	t.loadHistory()
	return t
}

func (t *Tracker) loadHistory() {
	if t.store == nil {
		return
	}
	history, err := storage.LoadHistory(t.store)
	if err != nil {
		t.log.Warn().Err(err).Str("key", storage.KeyHistory).Msg("discarding unreadable location history")
		return
	}
	if len(history) > t.historyCap {
		history = history[len(history)-t.historyCap:]
	}
	t.history = history
}

// State returns the current lifecycle state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Tracker) setState(s State) {
	t.mu.Lock()
	// Permission checks while tracking don't interrupt the session.
	if t.state != StateTracking {
		t.state = s
	}
	t.mu.Unlock()
}

// PermissionStatus reports both permission tiers without prompting.
func (t *Tracker) PermissionStatus(ctx context.Context) PermissionStatus {
	fg, err := t.provider.ForegroundPermission(ctx)
	if err != nil {
		t.log.Warn().Err(err).Msg("foreground permission query failed")
		fg = PermissionResponse{State: PermissionUndetermined}
	}
	bg, err := t.provider.BackgroundPermission(ctx)
	if err != nil {
		t.log.Warn().Err(err).Msg("background permission query failed")
		bg = PermissionResponse{State: PermissionUndetermined}
	}
	return PermissionStatus{
		Granted:     fg.State == PermissionGranted,
		Foreground:  fg.State,
		Background:  bg.State,
		CanAskAgain: fg.CanAskAgain,
	}
}

// RequestPermission ensures foreground permission, prompting when the
// platform allows it. Provider failures report undetermined.
func (t *Tracker) RequestPermission(ctx context.Context) PermissionState {
	t.setState(StatePermissionRequested)

	resp, err := t.ensure(ctx, t.provider.ForegroundPermission, t.provider.RequestForegroundPermission)
	if err != nil {
		t.log.Warn().Err(err).Msg("foreground permission request failed")
		t.setState(StateIdle)
		return PermissionUndetermined
	}

	switch resp.State {
	case PermissionGranted:
		t.setState(StateGranted)
		t.clearPrompt(TierForeground)
	case PermissionDenied:
		t.setState(StateDenied)
		t.promptDenied(TierForeground)
	default:
		t.setState(StateIdle)
	}
	return resp.State
}

// ensure queries a tier and requests it when not granted but still askable.
func (t *Tracker) ensure(ctx context.Context, query, request func(context.Context) (PermissionResponse, error)) (PermissionResponse, error) {
	resp, err := query(ctx)
	if err != nil {
		return PermissionResponse{}, err
	}
	if resp.State == PermissionGranted {
		return resp, nil
	}
	if resp.State == PermissionUndetermined || resp.CanAskAgain {
		return request(ctx)
	}
	return resp, nil
}

func (t *Tracker) promptDenied(tier Tier) {
	t.mu.Lock()
	already := t.prompted[tier]
	t.prompted[tier] = true
	t.mu.Unlock()

	if already || t.onDenied == nil {
		return
	}
	t.onDenied(tier)
}

func (t *Tracker) clearPrompt(tier Tier) {
	t.mu.Lock()
	delete(t.prompted, tier)
	t.mu.Unlock()
}

// CurrentSample fetches one sample, requesting permission first if needed.
// The sample goes through the same pipeline as watched samples.
func (t *Tracker) CurrentSample(ctx context.Context) (models.Sample, error) {
	if state := t.RequestPermission(ctx); state != PermissionGranted {
		return models.Sample{}, &PermissionError{Tier: TierForeground, State: state}
	}

	s, err := t.provider.CurrentSample(ctx, AccuracyHigh)
	if err != nil {
		return models.Sample{}, fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}
	if err := models.ValidateCoordinates(s.Latitude, s.Longitude); err != nil {
		return models.Sample{}, fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}
	if s.CapturedAt == 0 {
		s.CapturedAt = time.Now().UnixMilli()
	}

	t.accept(s, nil)
	return s, nil
}

// StartTracking begins continuous tracking. Calling it while tracking is a no-op.
// Background tracking is best-effort: if it cannot start, foreground tracking continues.
func (t *Tracker) StartTracking(ctx context.Context, cfg TrackingConfig) error {
	t.startMu.Lock()
	defer t.startMu.Unlock()

	if t.State() == StateTracking {
		return nil
	}

	if state := t.RequestPermission(ctx); state != PermissionGranted {
		return &PermissionError{Tier: TierForeground, State: state}
	}

	cfg = cfg.withDefaults()
	opts := cfg.watchOptions()

	t.mu.Lock()
	t.epoch++
	epoch := t.epoch
	t.accepting = true
	t.mu.Unlock()

	stop, err := t.provider.Watch(ctx, opts, t.watchHandler(epoch))
	if err != nil {
		t.mu.Lock()
		if t.epoch == epoch {
			t.accepting = false
		}
		t.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}
	stops := []func(){stop}

	if cfg.EnableBackground {
		if bgStop := t.startBackground(ctx, opts, epoch); bgStop != nil {
			stops = append(stops, bgStop)
		}
	}

	t.mu.Lock()
	if t.epoch != epoch {
		// StopTracking ran while we were subscribing.
		t.mu.Unlock()
		for _, s := range stops {
			s()
		}
		return nil
	}
	t.stops = stops
	t.state = StateTracking
	t.mu.Unlock()

	t.log.Info().
		Str("accuracy", string(opts.Accuracy)).
		Dur("min_interval", opts.MinInterval).
		Float64("min_distance_m", opts.MinDistanceMeters).
		Bool("background", len(stops) > 1).
		Msg("tracking started")
	return nil
}

func (t *Tracker) startBackground(ctx context.Context, opts WatchOptions, epoch uint64) func() {
	resp, err := t.ensure(ctx, t.provider.BackgroundPermission, t.provider.RequestBackgroundPermission)
	if err != nil {
		t.log.Warn().Err(err).Msg("background permission request failed, tracking in foreground only")
		return nil
	}
	if resp.State != PermissionGranted {
		t.log.Info().Str("state", string(resp.State)).Msg("background permission not granted, tracking in foreground only")
		if resp.State == PermissionDenied {
			t.promptDenied(TierBackground)
		}
		return nil
	}
	t.clearPrompt(TierBackground)

	stop, err := t.provider.StartBackground(ctx, opts, t.watchHandler(epoch))
	if err != nil {
		t.log.Warn().Err(err).Msg("background task failed to start, tracking in foreground only")
		return nil
	}
	return stop
}

func (t *Tracker) watchHandler(epoch uint64) func(models.Sample) {
	return func(s models.Sample) {
		if err := models.ValidateCoordinates(s.Latitude, s.Longitude); err != nil {
			t.log.Warn().Err(err).Msg("dropping invalid sample from provider")
			return
		}

		if !t.admits(epoch) {
			return
		}

		if s.CapturedAt == 0 {
			s.CapturedAt = time.Now().UnixMilli()
		}
		t.accept(s, func() bool { return t.admits(epoch) })
	}
}

// admits reports whether samples from the watch started at epoch are still wanted.
func (t *Tracker) admits(epoch uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.accepting && t.epoch == epoch
}

// StopTracking cancels all subscriptions. It is idempotent and safe to call
// from inside a sample subscriber; a sample already being processed completes.
func (t *Tracker) StopTracking() {
	t.mu.Lock()
	t.accepting = false
	t.epoch++
	stops := t.stops
	t.stops = nil
	wasTracking := t.state == StateTracking
	if wasTracking {
		t.state = StateIdle
	}
	t.mu.Unlock()

	for _, stop := range stops {
		stop()
	}
	if wasTracking {
		t.log.Info().Msg("tracking stopped")
	}
}

// Close stops tracking and waits for in-flight uploads.
func (t *Tracker) Close() error {
	t.StopTracking()
	return t.uploads.Wait()
}

// Subscribe registers fn for every accepted sample. If a sample was accepted
// earlier in this session, fn receives it synchronously before Subscribe returns.
// Subscribe must not be called from inside a sample callback of the same tracker.
func (t *Tracker) Subscribe(fn func(models.Sample)) (unsubscribe func()) {
	t.sampleMu.Lock()
	defer t.sampleMu.Unlock()

	unsubscribe = t.subs.Add(fn)

	t.histMu.RLock()
	current := t.current
	t.histMu.RUnlock()
	if current != nil {
		safeCall(t.log, fn, *current)
	}
	return unsubscribe
}

func safeCall(log zerolog.Logger, fn func(models.Sample), s models.Sample) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("sample subscriber panicked")
		}
	}()
	fn(s)
}

// accept runs the pipeline: current, history, broadcast, upload.
// admit, when set, is checked again once sampleMu is held, so a sample that
// waited out a StopTracking is dropped.
func (t *Tracker) accept(s models.Sample, admit func() bool) {
	t.sampleMu.Lock()
	defer t.sampleMu.Unlock()

	if admit != nil && !admit() {
		return
	}

	t.histMu.Lock()
	t.current = &s
	t.history = append(t.history, s)
	if over := len(t.history) - t.historyCap; over > 0 {
		t.history = append([]models.Sample(nil), t.history[over:]...)
	}
	snapshot := make([]models.Sample, len(t.history))
	copy(snapshot, t.history)
	t.histMu.Unlock()

	t.persistHistory(snapshot)
	t.subs.Publish(s)
	t.upload(s)
}

func (t *Tracker) persistHistory(history []models.Sample) {
	if t.store == nil {
		return
	}
	if err := storage.SaveHistory(t.store, history); err != nil {
		t.metrics.IncrementPersistenceFailures(storage.KeyHistory)
		t.log.Warn().Err(err).Str("key", storage.KeyHistory).Msg("failed to persist location history")
	}
}

func (t *Tracker) upload(s models.Sample) {
	if t.uploader == nil {
		return
	}
	started := t.uploads.TryGo(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), t.uploadTimeout)
		defer cancel()
		if err := t.uploader.Upload(ctx, s); err != nil {
			t.metrics.IncrementUploadFailures()
			t.log.Debug().Err(err).Msg("sample upload failed")
		}
		return nil
	})
	if !started {
		t.metrics.IncrementUploadsDropped()
		t.log.Debug().Msg("upload skipped, too many in flight")
	}
}

// LastSample returns the most recent sample, falling back to persisted history.
func (t *Tracker) LastSample() (models.Sample, bool) {
	t.histMu.RLock()
	defer t.histMu.RUnlock()
	if t.current != nil {
		return *t.current, true
	}
	if n := len(t.history); n > 0 {
		return t.history[n-1], true
	}
	return models.Sample{}, false
}

// History returns up to limit of the most recent samples, oldest first.
// A limit of zero or less returns everything.
func (t *Tracker) History(limit int) []models.Sample {
	t.histMu.RLock()
	defer t.histMu.RUnlock()

	start := 0
	if limit > 0 && limit < len(t.history) {
		start = len(t.history) - limit
	}
	out := make([]models.Sample, len(t.history)-start)
	copy(out, t.history[start:])
	return out
}

// ActivityTrail returns samples captured within [from, to], oldest first.
func (t *Tracker) ActivityTrail(from, to time.Time) []models.Sample {
	lo, hi := from.UnixMilli(), to.UnixMilli()

	t.histMu.RLock()
	defer t.histMu.RUnlock()

	var out []models.Sample
	for _, s := range t.history {
		if s.CapturedAt >= lo && s.CapturedAt <= hi {
			out = append(out, s)
		}
	}
	return out
}

// ClearHistory drops all samples from memory and storage.
// The current sample is kept.
func (t *Tracker) ClearHistory() {
	t.histMu.Lock()
	t.history = nil
	t.histMu.Unlock()

	if t.store == nil {
		return
	}
	if err := t.store.Remove(storage.KeyHistory); err != nil && !errors.Is(err, storage.ErrNotFound) {
		t.metrics.IncrementPersistenceFailures(storage.KeyHistory)
		t.log.Warn().Err(err).Str("key", storage.KeyHistory).Msg("failed to clear location history")
	}
}
