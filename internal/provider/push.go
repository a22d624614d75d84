// ABOUTME: In-process location provider fed by explicit Publish calls
// ABOUTME: Applies per-watcher interval and distance filters and simulated permission tiers

package provider

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/harper/geofence/internal/geo"
	"github.com/harper/geofence/internal/location"
	"github.com/harper/geofence/internal/models"
	"github.com/rs/zerolog"
)

// ErrNotGranted is returned by Watch and StartBackground when the tier is not granted.
var ErrNotGranted = errors.New("permission not granted")

// PushConfig sets the simulated permission tiers. Empty states mean granted.
type PushConfig struct {
	Foreground location.PermissionState
	Background location.PermissionState

	// GrantOnRequest turns an undetermined tier into granted when requested.
	GrantOnRequest bool

	Logger zerolog.Logger
}

type watcher struct {
	id         uint64
	background bool
	opts       location.WatchOptions
	fn         func(models.Sample)
	last       *models.Sample
	stopped    bool
}

// Push is a location.Provider whose samples come from Publish. Samples from
// MQTT, HTTP, or a replayed track all enter through it.
type Push struct {
	log            zerolog.Logger
	grantOnRequest bool

	// pubMu keeps delivery order equal to publish order.
	pubMu sync.Mutex

	mu       sync.Mutex
	fg       location.PermissionResponse
	bg       location.PermissionResponse
	last     *models.Sample
	arrived  chan struct{}
	watchers map[uint64]*watcher
	nextID   uint64
}

// NewPush creates a provider with the configured permission states.
func NewPush(cfg PushConfig) *Push {
	if cfg.Foreground == "" {
		cfg.Foreground = location.PermissionGranted
	}
	if cfg.Background == "" {
		cfg.Background = location.PermissionGranted
	}
	return &Push{
		log:            cfg.Logger.With().Str("component", "push_provider").Logger(),
		grantOnRequest: cfg.GrantOnRequest,
		fg:             location.PermissionResponse{State: cfg.Foreground, CanAskAgain: cfg.Foreground != location.PermissionDenied},
		bg:             location.PermissionResponse{State: cfg.Background, CanAskAgain: cfg.Background != location.PermissionDenied},
		arrived:        make(chan struct{}),
		watchers:       make(map[uint64]*watcher),
	}
}

// SetPermission changes a tier, as a user would in the system settings.
func (p *Push) SetPermission(tier location.Tier, resp location.PermissionResponse) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if tier == location.TierBackground {
		p.bg = resp
	} else {
		p.fg = resp
	}
}

func (p *Push) ForegroundPermission(ctx context.Context) (location.PermissionResponse, error) {
	if err := ctx.Err(); err != nil {
		return location.PermissionResponse{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fg, nil
}

func (p *Push) BackgroundPermission(ctx context.Context) (location.PermissionResponse, error) {
	if err := ctx.Err(); err != nil {
		return location.PermissionResponse{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bg, nil
}

func (p *Push) RequestForegroundPermission(ctx context.Context) (location.PermissionResponse, error) {
	return p.request(ctx, &p.fg)
}

func (p *Push) RequestBackgroundPermission(ctx context.Context) (location.PermissionResponse, error) {
	return p.request(ctx, &p.bg)
}

func (p *Push) request(ctx context.Context, tier *location.PermissionResponse) (location.PermissionResponse, error) {
	if err := ctx.Err(); err != nil {
		return location.PermissionResponse{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if tier.State == location.PermissionUndetermined && p.grantOnRequest {
		tier.State = location.PermissionGranted
		tier.CanAskAgain = true
	}
	return *tier, nil
}

// CurrentSample returns the last published sample, waiting for the first
// one until ctx is done.
func (p *Push) CurrentSample(ctx context.Context, _ location.Accuracy) (models.Sample, error) {
	for {
		p.mu.Lock()
		last, arrived := p.last, p.arrived
		p.mu.Unlock()
		if last != nil {
			return *last, nil
		}

		select {
		case <-arrived:
		case <-ctx.Done():
			return models.Sample{}, ctx.Err()
		}
	}
}

// Watch registers a foreground watcher.
func (p *Push) Watch(ctx context.Context, opts location.WatchOptions, fn func(models.Sample)) (func(), error) {
	return p.add(ctx, false, opts, fn)
}

// StartBackground registers a watcher that only receives samples while no
// foreground watcher is active.
func (p *Push) StartBackground(ctx context.Context, opts location.WatchOptions, fn func(models.Sample)) (func(), error) {
	return p.add(ctx, true, opts, fn)
}

func (p *Push) add(ctx context.Context, background bool, opts location.WatchOptions, fn func(models.Sample)) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	tier := p.fg
	if background {
		tier = p.bg
	}
	if tier.State != location.PermissionGranted {
		return nil, ErrNotGranted
	}

	p.nextID++
	w := &watcher{id: p.nextID, background: background, opts: opts, fn: fn}
	p.watchers[w.id] = w

	var once sync.Once
	stop := func() {
		once.Do(func() {
			p.mu.Lock()
			w.stopped = true
			delete(p.watchers, w.id)
			p.mu.Unlock()
		})
	}
	return stop, nil
}

// Watchers returns the number of active foreground and background watchers.
func (p *Push) Watchers() (foreground, background int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, w := range p.watchers {
		if w.background {
			background++
		} else {
			foreground++
		}
	}
	return foreground, background
}

// Publish validates a sample and hands it to every eligible watcher.
// It returns the number of watchers that received it. A zero capture time
// is stamped with the current time. Publish must not be called from inside
// a watcher callback.
func (p *Push) Publish(s models.Sample) (int, error) {
	if err := models.ValidateCoordinates(s.Latitude, s.Longitude); err != nil {
		return 0, err
	}
	if s.CapturedAt == 0 {
		s.CapturedAt = time.Now().UnixMilli()
	}

	p.pubMu.Lock()
	defer p.pubMu.Unlock()

	targets := p.route(s)

	delivered := 0
	for _, w := range targets {
		p.mu.Lock()
		stopped := w.stopped
		p.mu.Unlock()
		if stopped {
			continue
		}
		w.fn(s)
		delivered++
	}
	p.log.Debug().Int("watchers", delivered).Int64("captured_at_ms", s.CapturedAt).Msg("sample published")
	return delivered, nil
}

// route records s as the last fix and picks the watchers whose filters pass.
func (p *Push) route(s models.Sample) []*watcher {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.last = &s
	close(p.arrived)
	p.arrived = make(chan struct{})

	foregroundActive := false
	for _, w := range p.watchers {
		if !w.background {
			foregroundActive = true
			break
		}
	}

	var targets []*watcher
	for _, w := range p.watchers {
		if w.background && foregroundActive {
			continue
		}
		if !due(w.last, s, w.opts) {
			continue
		}
		w.last = &s
		targets = append(targets, w)
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i].id < targets[j].id })
	return targets
}

// due reports whether s should be delivered to a watcher whose last
// delivered sample was prev: either the interval elapsed or the device
// moved far enough.
func due(prev *models.Sample, s models.Sample, opts location.WatchOptions) bool {
	if prev == nil {
		return true
	}
	if opts.MinInterval <= 0 && opts.MinDistanceMeters <= 0 {
		return true
	}
	elapsed := time.Duration(s.CapturedAt-prev.CapturedAt) * time.Millisecond
	if opts.MinInterval > 0 && elapsed >= opts.MinInterval {
		return true
	}
	moved := geo.DistanceMeters(prev.Latitude, prev.Longitude, s.Latitude, s.Longitude)
	return opts.MinDistanceMeters > 0 && moved >= opts.MinDistanceMeters
}
