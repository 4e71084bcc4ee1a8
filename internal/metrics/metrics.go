// Package metrics exposes supervisor state as Prometheus metrics on a private
// registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrSnakeDoc/voicectl/internal/supervisor"
)

const namespace = "voicectl"

// Metrics holds the collectors fed by lifecycle events and health checks.
type Metrics struct {
	registry *prometheus.Registry

	LifecycleEvents   *prometheus.CounterVec
	StopDuration      *prometheus.HistogramVec
	HealthCheckStatus *prometheus.GaugeVec
}

// New creates the collectors and registers them, together with the Go runtime
// and process collectors, on a fresh registry. reg may be nil, in which case
// the per-service running and log line metrics are omitted.
func New(reg *supervisor.Registry) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		LifecycleEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lifecycle_events_total",
				Help:      "Lifecycle transitions by service and kind",
			},
			[]string{"service", "kind"},
		),

		StopDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stop_duration_seconds",
				Help:      "Time from stop request to process exit",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15, 30},
			},
			[]string{"service"},
		),

		HealthCheckStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "health_check_status",
				Help:      "Last health check result (1=ok, 0=failing)",
			},
			[]string{"service"},
		),
	}

	m.registry.MustRegister(
		m.LifecycleEvents,
		m.StopDuration,
		m.HealthCheckStatus,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if reg != nil {
		m.registry.MustRegister(newServiceCollector(reg))
	}
	return m
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Observe implements supervisor.Observer.
func (m *Metrics) Observe(e supervisor.Event) {
	m.LifecycleEvents.WithLabelValues(e.Service, string(e.Kind)).Inc()

	switch e.Kind {
	case supervisor.EventStopped, supervisor.EventKilled:
		m.StopDuration.WithLabelValues(e.Service).Observe(e.StopSeconds)
	}
}

// SetHealth records the outcome of the latest health check.
func (m *Metrics) SetHealth(service string, ok bool) {
	v := 0.0
	if ok {
		v = 1
	}
	m.HealthCheckStatus.WithLabelValues(service).Set(v)
}

// serviceCollector reads running state and log counters straight from the
// registry at scrape time.
type serviceCollector struct {
	reg *supervisor.Registry

	running  *prometheus.Desc
	logLines *prometheus.Desc
}

func newServiceCollector(reg *supervisor.Registry) *serviceCollector {
	return &serviceCollector{
		reg: reg,
		running: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "service", "running"),
			"Whether the service process is alive (1) or not (0)",
			[]string{"service"}, nil,
		),
		logLines: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "log", "lines_total"),
			"Output lines captured from the service since the daemon started",
			[]string{"service"}, nil,
		),
	}
}

func (c *serviceCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.running
	ch <- c.logLines
}

func (c *serviceCollector) Collect(ch chan<- prometheus.Metric) {
	for _, name := range c.reg.Names() {
		running := 0.0
		var lines uint64

		if rec, ok := c.reg.Lookup(name); ok {
			if rec.Running() {
				running = 1
			}
			lines = rec.Logs().Appended()
		}

		ch <- prometheus.MustNewConstMetric(c.running, prometheus.GaugeValue, running, name)
		ch <- prometheus.MustNewConstMetric(c.logLines, prometheus.CounterValue, float64(lines), name)
	}
}
