// ABOUTME: Replays a recorded track into a provider at a fixed pace
// ABOUTME: Used to drive the engine from GeoJSON files without a device

package provider

import (
	"context"
	"time"

	"github.com/harper/geofence/internal/models"
	"github.com/rs/zerolog"
)

// ReplayConfig controls pacing.
type ReplayConfig struct {
	Interval time.Duration
	// Loop restarts the track until the context is cancelled.
	Loop bool
	// Restamp replaces recorded capture times with the time of publishing.
	Restamp bool
	Logger  zerolog.Logger
}

// Replay publishes a fixed list of samples.
type Replay struct {
	samples []models.Sample
	sink    Publisher
	cfg     ReplayConfig
	log     zerolog.Logger
}

// NewReplay creates a replay. A non-positive interval defaults to one second.
func NewReplay(samples []models.Sample, sink Publisher, cfg ReplayConfig) *Replay {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	return &Replay{
		samples: samples,
		sink:    sink,
		cfg:     cfg,
		log:     cfg.Logger.With().Str("component", "replay").Logger(),
	}
}

// Run publishes the first sample immediately and the rest one interval
// apart. It returns the number of samples published, with ctx.Err() when
// cancelled before the track finished.
func (r *Replay) Run(ctx context.Context) (int, error) {
	if len(r.samples) == 0 {
		return 0, nil
	}

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	published := 0
	for i := 0; ; i++ {
		if i == len(r.samples) {
			if !r.cfg.Loop {
				r.log.Info().Int("published", published).Msg("replay finished")
				return published, nil
			}
			i = 0
		}

		if i > 0 || published > 0 {
			select {
			case <-ctx.Done():
				return published, ctx.Err()
			case <-ticker.C:
			}
		} else if err := ctx.Err(); err != nil {
			return 0, err
		}

		s := r.samples[i]
		if r.cfg.Restamp {
			s.CapturedAt = time.Now().UnixMilli()
		}
		if _, err := r.sink.Publish(s); err != nil {
			r.log.Warn().Err(err).Int("index", i).Msg("skipping sample")
			continue
		}
		published++
	}
}
