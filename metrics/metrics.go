// Package metrics instruments the session engine with Prometheus
// collectors. A nil *Recorder is valid and records nothing.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/teranos/lspsession/reconnect"
)

const namespace = "lspsession"

// Recorder holds the session's collectors and the registry they live in.
type Recorder struct {
	registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	PendingRequests  prometheus.Gauge
	OldestPending    prometheus.Gauge
	ReconnectsTotal  prometheus.Counter
	ConnectionState  prometheus.Gauge
	MalformedFrames  prometheus.Counter
	Notifications    *prometheus.CounterVec
	ConnectionUptime prometheus.GaugeFunc

	mu              sync.Mutex
	connectionStart time.Time
	now             func() time.Time
}

// New creates a Recorder registered on a private registry, so several
// sessions or tests never collide on the global one.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		now:      time.Now,
	}

	r.RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of requests sent, by method and outcome",
		},
		[]string{"method", "outcome"},
	)

	r.RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Time from send to resolution of a request",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	r.PendingRequests = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pending_requests",
		Help:      "Requests awaiting a response",
	})

	r.OldestPending = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "oldest_pending_seconds",
		Help:      "Age of the longest-waiting request",
	})

	r.ReconnectsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconnects_total",
		Help:      "Reconnection attempts scheduled after a drop",
	})

	r.ConnectionState = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "connection_state",
		Help:      "Connection state: 0 disconnected, 1 connecting, 2 open, 3 backoff, 4 gave up",
	})

	r.MalformedFrames = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "malformed_frames_total",
		Help:      "Inbound frames dropped because they could not be decoded",
	})

	r.Notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notifications received from the server, by method",
		},
		[]string{"method"},
	)

	r.ConnectionUptime = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_uptime_seconds",
			Help:      "Seconds since the current connection opened, 0 when disconnected",
		},
		func() float64 { return r.Uptime().Seconds() },
	)

	r.registry.MustRegister(
		r.RequestsTotal,
		r.RequestDuration,
		r.PendingRequests,
		r.OldestPending,
		r.ReconnectsTotal,
		r.ConnectionState,
		r.MalformedFrames,
		r.Notifications,
		r.ConnectionUptime,
	)

	return r
}

// Registry returns the registry the collectors are registered on.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records one resolved request.
func (r *Recorder) ObserveRequest(method, outcome string, duration time.Duration) {
	if r == nil {
		return
	}
	r.RequestsTotal.WithLabelValues(method, outcome).Inc()
	r.RequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// SetPending records the correlation table size and its oldest entry.
func (r *Recorder) SetPending(n int, oldest time.Duration) {
	if r == nil {
		return
	}
	r.PendingRequests.Set(float64(n))
	r.OldestPending.Set(oldest.Seconds())
}

// RecordReconnect records a scheduled reconnection attempt.
func (r *Recorder) RecordReconnect() {
	if r == nil {
		return
	}
	r.ReconnectsTotal.Inc()
}

// SetConnectionState records the controller state and tracks uptime.
func (r *Recorder) SetConnectionState(s reconnect.State) {
	if r == nil {
		return
	}
	r.ConnectionState.Set(float64(s))

	r.mu.Lock()
	if s == reconnect.Open {
		r.connectionStart = r.now()
	} else {
		r.connectionStart = time.Time{}
	}
	r.mu.Unlock()
}

// Uptime returns how long the current connection has been open.
func (r *Recorder) Uptime() time.Duration {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.connectionStart.IsZero() {
		return 0
	}
	return r.now().Sub(r.connectionStart)
}

// RecordMalformed records a dropped inbound frame.
func (r *Recorder) RecordMalformed() {
	if r == nil {
		return
	}
	r.MalformedFrames.Inc()
}

// RecordNotification records one inbound notification.
func (r *Recorder) RecordNotification(method string) {
	if r == nil {
		return
	}
	r.Notifications.WithLabelValues(method).Inc()
}
