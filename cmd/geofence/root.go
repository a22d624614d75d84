// ABOUTME: Root Cobra command and global state
// ABOUTME: Loads config, builds the logger, and opens the configured storage backend

package main

import (
	"fmt"

	"github.com/harper/geofence/internal/config"
	"github.com/harper/geofence/internal/geofence"
	"github.com/harper/geofence/internal/location"
	"github.com/harper/geofence/internal/logging"
	"github.com/harper/geofence/internal/metrics"
	"github.com/harper/geofence/internal/provider"
	"github.com/harper/geofence/internal/storage"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// skipStore marks commands that never touch the data store.
const skipStore = "skip-store"

var (
	cfg    *config.Config
	store  storage.KV
	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "geofence",
	Short: "Circular geofences over a live location stream",
	Long: `
 ██████╗ ███████╗ ██████╗ ███████╗███████╗███╗   ██╗ ██████╗███████╗
██╔════╝ ██╔════╝██╔═══██╗██╔════╝██╔════╝████╗  ██║██╔════╝██╔════╝
██║  ███╗█████╗  ██║   ██║█████╗  █████╗  ██╔██╗ ██║██║     █████╗
██║   ██║██╔══╝  ██║   ██║██╔══╝  ██╔══╝  ██║╚██╗██║██║     ██╔══╝
╚██████╔╝███████╗╚██████╔╝██║     ███████╗██║ ╚████║╚██████╗███████╗
 ╚═════╝ ╚══════╝ ╚═════╝ ╚═╝     ╚══════╝╚═╝  ╚═══╝ ╚═════╝╚══════╝

       Know when you arrive at the dog park, and when you leave

Examples:
  geofence zone add --radius 200 --category park "Dog Run" 40.7829 -73.9654
  geofence zone list
  geofence run --replay walk.geojson
  geofence transitions list`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			cfg.LogLevel = "debug"
		}
		logger = logging.New(cfg.GetLogLevel(), cmd.ErrOrStderr())

		if cmd.Annotations[skipStore] == "true" {
			return nil
		}
		store, err = cfg.OpenStore()
		if err != nil {
			return fmt.Errorf("failed to open %s storage: %w", cfg.GetBackend(), err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if store != nil {
			err := store.Close()
			store = nil
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug logging")
}

// stack is the engine wiring shared by every command that reads or
// changes zones, transitions, or history.
type stack struct {
	push     *provider.Push
	tracker  *location.Tracker
	registry *geofence.Registry
	engine   *geofence.Engine
}

type stackOptions struct {
	pushCfg provider.PushConfig
	tracker location.Config
	engine  geofence.EngineConfig
	metrics *metrics.Metrics
}

// newStack wires the push provider, tracker, registry, and engine against
// the open store. Zones and transitions are loaded but tracking is not started.
func newStack(opts stackOptions) (*stack, error) {
	opts.pushCfg.Logger = logger
	push := provider.NewPush(opts.pushCfg)

	opts.tracker.Store = store
	opts.tracker.Logger = logger
	opts.tracker.Metrics = opts.metrics
	if opts.tracker.HistoryCapacity == 0 {
		opts.tracker.HistoryCapacity = cfg.HistoryCapacity
	}
	tracker := location.NewTracker(push, opts.tracker)

	registry := geofence.NewRegistry(geofence.RegistryConfig{
		Store:   store,
		Logger:  logger,
		Metrics: opts.metrics,
	})

	opts.engine.Store = store
	opts.engine.Logger = logger
	opts.engine.Metrics = opts.metrics
	if opts.engine.TransitionCapacity == 0 {
		opts.engine.TransitionCapacity = cfg.TransitionCapacity
	}
	if cfg.SeedDefaultZones {
		opts.engine.DefaultZones = geofence.DefaultZones()
	}
	if opts.engine.Tracking == (location.TrackingConfig{}) {
		opts.engine.Tracking = cfg.LocationTracking()
	}
	engine := geofence.NewEngine(tracker, registry, opts.engine)

	if err := engine.Load(); err != nil {
		_ = tracker.Close()
		return nil, err
	}
	return &stack{push: push, tracker: tracker, registry: registry, engine: engine}, nil
}

// openStack builds a stack with defaults for the offline commands.
func openStack() (*stack, error) {
	return newStack(stackOptions{})
}

func (s *stack) Close() error {
	s.engine.Destroy()
	return s.tracker.Close()
}
