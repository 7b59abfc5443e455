package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/aretw0/softbus/pkg/dispatcher"
	"github.com/aretw0/softbus/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the collectors of one process.
type Metrics struct {
	registry *prometheus.Registry

	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	sessions prometheus.Gauge
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "softbus_dispatch_requests_total",
				Help: "Privileged requests handled, by op and result code",
			},
			[]string{"op", "result"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "softbus_dispatch_duration_seconds",
				Help:    "Duration of privileged request handling",
				Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
			},
			[]string{"op"},
		),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "softbus_client_sessions",
			Help: "Live sessions held by the client",
		}),
	}
	m.registry.MustRegister(m.requests, m.duration, m.sessions)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveDispatch matches dispatcher.ObserveFunc.
func (m *Metrics) ObserveDispatch(op dispatcher.Op, code domain.ResultCode, elapsed time.Duration) {
	m.requests.WithLabelValues(string(op), resultLabel(code)).Inc()
	m.duration.WithLabelValues(string(op)).Observe(elapsed.Seconds())
}

// SetSessions records the client's live session count.
func (m *Metrics) SetSessions(n int) {
	m.sessions.Set(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// resultLabel keeps label cardinality bounded: channel ids never appear, only codes.
func resultLabel(code domain.ResultCode) string {
	if code >= 0 {
		return "ok"
	}
	return strconv.Itoa(int(code))
}
