package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics wraps prometheus collectors for the controller's
// invocation and invoker-fleet metrics.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	// Counters
	invocationsTotal  *prometheus.CounterVec
	coldStartsTotal   prometheus.Counter
	warmStartsTotal   prometheus.Counter
	invokersJoined    prometheus.Counter
	invokersUnhealthy prometheus.Counter
	warmInvokerHits   prometheus.Counter

	// Histograms
	invocationDuration *prometheus.HistogramVec

	// Gauges
	uptime         prometheus.GaugeFunc
	activeRequests prometheus.Gauge
}

// defaultBuckets are the histogram buckets used when InitPrometheus isn't
// given an explicit set (invocation duration, in milliseconds).
var defaultBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

var promMetrics *PrometheusMetrics

// InitPrometheus initializes the Prometheus metrics subsystem.
func InitPrometheus(namespace string, buckets []float64) {
	if len(buckets) == 0 {
		buckets = defaultBuckets
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	pm := &PrometheusMetrics{
		registry: registry,

		invocationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invocations_total",
				Help:      "Total number of action invocations",
			},
			[]string{"function", "runtime", "status"},
		),

		coldStartsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cold_starts_total",
				Help:      "Total number of invocations dispatched to a cold invoker",
			},
		),

		warmStartsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "warm_starts_total",
				Help:      "Total number of invocations dispatched to a warm invoker",
			},
		),

		invokersJoined: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invokers_joined_total",
				Help:      "Total invokers that registered their first heartbeat",
			},
		),

		invokersUnhealthy: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invokers_unhealthy_total",
				Help:      "Total invoker health-state transitions to unhealthy",
			},
		),

		warmInvokerHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "warm_invoker_hits_total",
				Help:      "Total invocations the scheduler placed on a warm invoker",
			},
		),

		invocationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "invocation_duration_milliseconds",
				Help:      "Duration of action invocations in milliseconds",
				Buckets:   buckets,
			},
			[]string{"function", "runtime", "cold_start"},
		),

		activeRequests: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_requests",
				Help:      "Number of currently active invocation requests",
			},
		),
	}

	pm.uptime = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Time since the controller started",
		},
		func() float64 {
			return time.Since(StartTime()).Seconds()
		},
	)

	registry.MustRegister(
		pm.invocationsTotal,
		pm.coldStartsTotal,
		pm.warmStartsTotal,
		pm.invokersJoined,
		pm.invokersUnhealthy,
		pm.warmInvokerHits,
		pm.invocationDuration,
		pm.uptime,
		pm.activeRequests,
	)

	promMetrics = pm
}

// RecordPrometheusInvocation records an invocation in Prometheus collectors.
func RecordPrometheusInvocation(funcName, runtime string, durationMs int64, coldStart bool, success bool) {
	if promMetrics == nil {
		return
	}

	status := "success"
	if !success {
		status = "failed"
	}
	promMetrics.invocationsTotal.WithLabelValues(funcName, runtime, status).Inc()

	if coldStart {
		promMetrics.coldStartsTotal.Inc()
	} else {
		promMetrics.warmStartsTotal.Inc()
	}

	coldLabel := "false"
	if coldStart {
		coldLabel = "true"
	}
	promMetrics.invocationDuration.WithLabelValues(funcName, runtime, coldLabel).Observe(float64(durationMs))
}

// RecordPrometheusInvokerJoined records an invoker's first heartbeat.
func RecordPrometheusInvokerJoined() {
	if promMetrics == nil {
		return
	}
	promMetrics.invokersJoined.Inc()
}

// RecordPrometheusInvokerUnhealthy records an invoker's heartbeat going stale.
func RecordPrometheusInvokerUnhealthy() {
	if promMetrics == nil {
		return
	}
	promMetrics.invokersUnhealthy.Inc()
}

// RecordPrometheusWarmInvokerHit records the scheduler placing an
// invocation on an already-warm invoker.
func RecordPrometheusWarmInvokerHit() {
	if promMetrics == nil {
		return
	}
	promMetrics.warmInvokerHits.Inc()
}

// IncActiveRequests increments the active requests gauge.
func IncActiveRequests() {
	if promMetrics == nil {
		return
	}
	promMetrics.activeRequests.Inc()
}

// DecActiveRequests decrements the active requests gauge.
func DecActiveRequests() {
	if promMetrics == nil {
		return
	}
	promMetrics.activeRequests.Dec()
}

// PrometheusHandler returns an HTTP handler for Prometheus metrics scraping.
func PrometheusHandler() http.Handler {
	if promMetrics == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("prometheus metrics not initialized"))
		})
	}
	return promhttp.HandlerFor(promMetrics.registry, promhttp.HandlerOpts{})
}

// PrometheusRegistry returns the prometheus registry, for tests or custom
// collectors that need to register against it directly.
func PrometheusRegistry() *prometheus.Registry {
	if promMetrics == nil {
		return nil
	}
	return promMetrics.registry
}
