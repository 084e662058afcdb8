package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openhearth/hearth-core/internal/device"
)

// Collector holds the Prometheus instruments for Hearth Core.
//
// It satisfies the metrics interfaces of the discovery and dispatch
// packages so those stay free of a Prometheus dependency.
type Collector struct {
	registry *prometheus.Registry

	roundDuration   prometheus.Histogram
	roundDevices    prometheus.Gauge
	mergeResults    *prometheus.CounterVec
	backendFailures *prometheus.CounterVec
	commands        *prometheus.CounterVec
}

// New creates a collector and registers all instruments on a dedicated
// Prometheus registry. The device registry feeds a live gauge of known
// devices.
func New(devices *device.Registry) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		registry: reg,
		roundDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "hearth",
			Subsystem: "discovery",
			Name:      "round_duration_seconds",
			Help:      "Duration of a full discovery round across all backends.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		roundDevices: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hearth",
			Subsystem: "discovery",
			Name:      "round_devices_merged",
			Help:      "Devices merged by the most recent discovery round.",
		}),
		mergeResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hearth",
			Subsystem: "registry",
			Name:      "merges_total",
			Help:      "Registry merge outcomes by result.",
		}, []string{"result"}),
		backendFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hearth",
			Subsystem: "discovery",
			Name:      "backend_failures_total",
			Help:      "Discovery passes that failed entirely, by backend.",
		}, []string{"backend"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hearth",
			Subsystem: "dispatch",
			Name:      "commands_total",
			Help:      "Executed commands by kind and outcome.",
		}, []string{"kind", "outcome"}),
	}

	reg.MustRegister(
		c.roundDuration,
		c.roundDevices,
		c.mergeResults,
		c.backendFailures,
		c.commands,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "hearth",
			Subsystem: "registry",
			Name:      "devices",
			Help:      "Devices currently held in the registry.",
		}, func() float64 {
			return float64(devices.Count())
		}),
	)

	return c
}

// ObserveRound records one discovery round.
func (c *Collector) ObserveRound(duration time.Duration, devices int) {
	c.roundDuration.Observe(duration.Seconds())
	c.roundDevices.Set(float64(devices))
}

// CountMerge counts one registry merge outcome.
func (c *Collector) CountMerge(result string) {
	c.mergeResults.WithLabelValues(result).Inc()
}

// CountBackendFailure counts one failed backend discovery pass.
func (c *Collector) CountBackendFailure(kind string) {
	c.backendFailures.WithLabelValues(kind).Inc()
}

// CountCommand counts one executed command.
func (c *Collector) CountCommand(kind, outcome string) {
	c.commands.WithLabelValues(kind, outcome).Inc()
}

// Handler returns the HTTP handler serving the /metrics endpoint.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
