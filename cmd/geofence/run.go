// ABOUTME: Run command wiring the engine to live transports
// ABOUTME: MQTT and HTTP feeds in, console and RabbitMQ alerts out, metrics and API served

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/harper/geofence/internal/api"
	"github.com/harper/geofence/internal/geofence"
	"github.com/harper/geofence/internal/geojson"
	"github.com/harper/geofence/internal/location"
	"github.com/harper/geofence/internal/metrics"
	"github.com/harper/geofence/internal/notify"
	"github.com/harper/geofence/internal/provider"
	"github.com/harper/geofence/internal/sync"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Track location and report zone transitions",
	Long: `Start tracking and evaluate every accepted sample against the enabled zones.

Samples arrive from any combination of:
  - MQTT topic geofence/device/+/location (mqtt.broker in config, or --mqtt)
  - POST /samples on the HTTP API
  - a recorded GeoJSON track (--replay)

Transitions are printed to the console and, when amqp.url is configured,
published to RabbitMQ. Accepted samples are uploaded when 'geofence sync'
is configured.

Examples:
  geofence run
  geofence run --replay walk.geojson --interval 2s
  geofence run --mqtt tcp://localhost:1883 --device rex --no-api`,
	RunE: runRun,
}

var (
	runReplay     string
	runInterval   time.Duration
	runLoop       bool
	runMQTT       string
	runDevice     string
	runNoAPI      bool
	runAddr       string
	runBackground bool
)

func init() {
	runCmd.Flags().StringVar(&runReplay, "replay", "", "replay a GeoJSON track file")
	runCmd.Flags().DurationVar(&runInterval, "interval", time.Second, "pause between replayed samples")
	runCmd.Flags().BoolVar(&runLoop, "loop", false, "repeat the replay until interrupted")
	runCmd.Flags().StringVar(&runMQTT, "mqtt", "", "MQTT broker URL (overrides config)")
	runCmd.Flags().StringVar(&runDevice, "device", "", "only accept MQTT samples from this device")
	runCmd.Flags().BoolVar(&runNoAPI, "no-api", false, "do not serve the HTTP API")
	runCmd.Flags().StringVar(&runAddr, "addr", "", "HTTP API listen address (overrides config)")
	runCmd.Flags().BoolVar(&runBackground, "background", false, "also request background tracking")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	uploader, err := openUploader()
	if err != nil {
		return err
	}

	sink, closeSink, err := openSink(cmd)
	if err != nil {
		return err
	}
	defer closeSink()

	tracking := cfg.LocationTracking()
	if runBackground {
		tracking.EnableBackground = true
	}

	s, err := newStack(stackOptions{
		metrics: m,
		tracker: location.Config{
			Uploader: uploader,
			OnPermissionDenied: func(tier location.Tier) {
				_, _ = fmt.Fprintln(cmd.ErrOrStderr(), color.YellowString(
					"⚠ %s location access is off. Zone alerts need it; enable it and restart.", tier))
			},
		},
		engine: geofence.EngineConfig{Sink: sink, Tracking: tracking},
	})
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	ok, err := s.engine.Initialize(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("location permission not granted; geofencing is off")
	}
	defer s.engine.Stop()

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintln(out, color.GreenString("✓ Watching %d zone(s)", len(s.registry.EnabledZones())))

	g, ctx := errgroup.WithContext(ctx)

	if broker := firstNonEmpty(runMQTT, cfg.MQTT.Broker); broker != "" {
		clientID := firstNonEmpty(cfg.MQTT.ClientID, "geofence-"+uuid.NewString()[:8])
		client, err := provider.DialMQTT(broker, clientID)
		if err != nil {
			return err
		}
		feed := provider.NewMQTTFeed(client, s.push, provider.MQTTConfig{
			DeviceID: firstNonEmpty(runDevice, cfg.MQTT.DeviceID),
			QoS:      cfg.MQTT.QoS,
			Logger:   logger,
		})
		if err := feed.Start(); err != nil {
			client.Disconnect(250)
			return err
		}
		_, _ = fmt.Fprintf(out, "  MQTT:   %s (%s)\n", broker, provider.TopicPattern)
		g.Go(func() error {
			<-ctx.Done()
			err := feed.Stop()
			client.Disconnect(250)
			return err
		})
	}

	if !runNoAPI {
		addr := firstNonEmpty(runAddr, cfg.GetHTTPAddr())
		router := api.NewRouter(api.Deps{
			Zones:    s.registry,
			Engine:   s.engine,
			History:  s.tracker,
			Ingest:   s.push,
			Gatherer: reg,
			Logger:   logger,
		})
		_, _ = fmt.Fprintf(out, "  API:    http://%s\n", addr)
		g.Go(func() error {
			return api.Serve(ctx, addr, router, logger)
		})
	}

	if runReplay != "" {
		data, err := os.ReadFile(runReplay) //#nosec G304 -- user-specified track file
		if err != nil {
			return fmt.Errorf("failed to read replay file: %w", err)
		}
		samples, err := geojson.ParseSamples(data)
		if err != nil {
			return err
		}
		replay := provider.NewReplay(samples, s.push, provider.ReplayConfig{
			Interval: runInterval,
			Loop:     runLoop,
			Restamp:  true,
			Logger:   logger,
		})
		_, _ = fmt.Fprintf(out, "  Replay: %s (%d samples)\n", runReplay, len(samples))
		g.Go(func() error {
			n, err := replay.Run(ctx)
			logger.Info().Int("published", n).Msg("replay finished")
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		return nil
	})

	err = g.Wait()
	_, _ = fmt.Fprintln(out, "Stopping.")
	return err
}

// openUploader returns the remote sync uploader, or nil when sync is not configured.
func openUploader() (location.Uploader, error) {
	sc, err := sync.LoadConfig()
	if err != nil {
		return nil, err
	}
	if !sc.IsConfigured() || !sc.AutoSync {
		return nil, nil
	}
	syncer, err := sync.NewSyncer(sc, nil)
	if err != nil {
		return nil, err
	}
	return syncer, nil
}

// openSink builds the console sink plus RabbitMQ when configured.
func openSink(cmd *cobra.Command) (notify.Sink, func(), error) {
	sinks := notify.Multi{notify.NewConsole(cmd.OutOrStdout())}
	if cfg.AMQP.URL == "" {
		return sinks, func() {}, nil
	}

	conn, err := notify.Dial(cfg.AMQP.URL)
	if err != nil {
		return nil, nil, err
	}
	deviceID := firstNonEmpty(runDevice, cfg.MQTT.DeviceID)
	publisher, err := notify.NewAMQP(conn, cfg.AMQP.Exchange, cfg.AMQP.Queue, deviceID)
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	sinks = append(sinks, publisher)
	return sinks, func() {
		_ = publisher.Close()
		_ = conn.Close()
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
