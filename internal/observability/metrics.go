package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	rpcCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "airlink",
			Subsystem: "rpc",
			Name:      "calls_total",
			Help:      "RPC calls by command and outcome.",
		},
		[]string{"command", "outcome"},
	)
	rpcDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "airlink",
			Subsystem: "rpc",
			Name:      "call_duration_seconds",
			Help:      "RPC round trip in seconds, queued data frames included.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
		[]string{"command"},
	)
	frames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "airlink",
			Subsystem: "frames",
			Name:      "total",
			Help:      "Data frames by event: read, queued, dequeued, dropped, captured.",
		},
		[]string{"event"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "airlink",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "airlink",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(rpcCalls, rpcDuration, frames, httpRequests, httpDuration)
	})
}

func RecordRPC(command, outcome string, duration time.Duration) {
	RegisterMetrics()
	rpcCalls.WithLabelValues(command, outcome).Inc()
	rpcDuration.WithLabelValues(command).Observe(duration.Seconds())
}

func RecordFrame(event string) {
	RegisterMetrics()
	frames.WithLabelValues(event).Inc()
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}
