package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/gray-logic-haptics/internal/device"
	"github.com/nerrad567/gray-logic-haptics/internal/playback"
)

const namespace = "haptics"

// Send failure reasons used as the "reason" label.
const (
	ReasonQueueFull = "queue_full"
	ReasonSend      = "send"
)

// Metrics holds the Prometheus collectors for hapticd.
//
// It implements playback.Observer so the scheduler reports tick and
// dispatch activity directly. Collectors live on a private registry so
// tests can create as many instances as they like.
type Metrics struct {
	registry *prometheus.Registry

	ticks         prometheus.Counter
	tickDuration  prometheus.Histogram
	active        prometheus.Gauge
	changed       prometheus.Counter
	commandsSent  *prometheus.CounterVec // by category
	sendFailures  *prometheus.CounterVec // by reason
	addressErrors prometheus.Counter
	devices       prometheus.Gauge
	hubConnected  prometheus.Gauge
	patterns      prometheus.Gauge

	httpRequests *prometheus.CounterVec   // by method, route, code
	httpDuration *prometheus.HistogramVec // by method, route
}

// New creates and registers all collectors, plus the Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "ticks_total",
			Help:      "Total number of scheduler ticks",
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "tick_duration_seconds",
			Help:      "Time spent sampling assignments per tick",
			Buckets:   []float64{0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01}, // 50µs to the default tick interval
		}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "active_assignments",
			Help:      "Actuators with an installed pattern",
		}),
		changed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "status_changes_total",
			Help:      "Sampled statuses that differed from the last one sent",
		}),
		commandsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "commands_sent_total",
			Help:      "Commands delivered to the hub",
		}, []string{"category"}),
		sendFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "send_failures_total",
			Help:      "Commands that could not be delivered",
		}, []string{"reason"}),
		addressErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "address_errors_total",
			Help:      "Malformed address units reported while resolving",
		}),
		devices: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "devices",
			Help:      "Devices in the latest hub device list",
		}),
		hubConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "broker_connected",
			Help:      "1 while the MQTT link to the hub broker is up",
		}),
		patterns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "library",
			Name:      "patterns",
			Help:      "Patterns held in the pattern library",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "API requests by route and status code",
		}, []string{"method", "route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "API request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ticks,
		m.tickDuration,
		m.active,
		m.changed,
		m.commandsSent,
		m.sendFailures,
		m.addressErrors,
		m.devices,
		m.hubConnected,
		m.patterns,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// TickCompleted records one scheduler tick.
func (m *Metrics) TickCompleted(d time.Duration, active, changed int) {
	m.ticks.Inc()
	m.tickDuration.Observe(d.Seconds())
	m.active.Set(float64(active))
	m.changed.Add(float64(changed))
}

// CommandSent counts a delivered command.
func (m *Metrics) CommandSent(key device.FeatureKey, _ device.Status) {
	m.commandsSent.WithLabelValues(string(key.Category)).Inc()
}

// SendFailed counts a command that was dropped or rejected.
func (m *Metrics) SendFailed(_ device.FeatureKey, err error) {
	m.sendFailures.WithLabelValues(failureReason(err)).Inc()
}

// AddressError counts one malformed address unit.
func (m *Metrics) AddressError() {
	m.addressErrors.Inc()
}

// SetDevices records the size of the latest device list.
func (m *Metrics) SetDevices(n int) {
	m.devices.Set(float64(n))
}

// SetHubConnected records the broker link state.
func (m *Metrics) SetHubConnected(up bool) {
	v := 0.0
	if up {
		v = 1
	}
	m.hubConnected.Set(v)
}

// SetPatterns records the pattern library size.
func (m *Metrics) SetPatterns(n int) {
	m.patterns.Set(float64(n))
}

// ObserveHTTP records one API request. route is the matched route
// pattern, not the raw path, to keep label cardinality bounded.
func (m *Metrics) ObserveHTTP(method, route string, code int, d time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func failureReason(err error) string {
	if errors.Is(err, playback.ErrQueueFull) {
		return ReasonQueueFull
	}
	return ReasonSend
}
