// ABOUTME: Prometheus counters for the geofence pipeline
// ABOUTME: All methods are safe on a nil receiver so metrics stay optional

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	SamplesProcessed    prometheus.Counter
	Transitions         *prometheus.CounterVec
	SinkFailures        prometheus.Counter
	PersistenceFailures *prometheus.CounterVec
	UploadFailures      prometheus.Counter
	UploadsDropped      prometheus.Counter
	ActiveZones         prometheus.Gauge
}

// New registers the geofence metrics with reg.
// A nil reg uses a fresh private registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &Metrics{
		SamplesProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "geofence_samples_processed_total",
			Help: "Total number of location samples evaluated against zones",
		}),
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "geofence_transitions_total",
			Help: "Total number of zone transitions by kind",
		}, []string{"kind"}),
		SinkFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "geofence_sink_failures_total",
			Help: "Total number of failed notification deliveries",
		}),
		PersistenceFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "geofence_persistence_failures_total",
			Help: "Total number of failed writes by storage key",
		}, []string{"key"}),
		UploadFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "geofence_upload_failures_total",
			Help: "Total number of failed history uploads",
		}),
		UploadsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "geofence_uploads_dropped_total",
			Help: "Total number of uploads skipped because too many were in flight",
		}),
		ActiveZones: factory.NewGauge(prometheus.GaugeOpts{
			Name: "geofence_active_zones",
			Help: "Number of zones the device is currently inside",
		}),
	}
}

func (m *Metrics) IncrementSamples() {
	if m == nil {
		return
	}
	m.SamplesProcessed.Inc()
}

func (m *Metrics) IncrementTransition(kind string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncrementSinkFailures() {
	if m == nil {
		return
	}
	m.SinkFailures.Inc()
}

func (m *Metrics) IncrementPersistenceFailures(key string) {
	if m == nil {
		return
	}
	m.PersistenceFailures.WithLabelValues(key).Inc()
}

func (m *Metrics) IncrementUploadFailures() {
	if m == nil {
		return
	}
	m.UploadFailures.Inc()
}

func (m *Metrics) IncrementUploadsDropped() {
	if m == nil {
		return
	}
	m.UploadsDropped.Inc()
}

func (m *Metrics) SetActiveZones(count int) {
	if m == nil {
		return
	}
	m.ActiveZones.Set(float64(count))
}
