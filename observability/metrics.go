package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

// GiftCardMetrics tracks gift card operations executed by the node.
type GiftCardMetrics struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	moved      *prometheus.CounterVec
	faucet     *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	giftCardMetricsOnce sync.Once
	giftCardRegistry    *GiftCardMetrics
)

// ModuleMetrics returns the lazily-initialised module metrics registry used to
// record RPC module activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "giftchain",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total JSON-RPC requests segmented by module and method.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "giftchain",
				Subsystem: "rpc",
				Name:      "errors_total",
				Help:      "Total JSON-RPC errors segmented by module, method and error code.",
			}, []string{"module", "method", "code"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "giftchain",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "giftchain",
				Subsystem: "rpc",
				Name:      "throttles_total",
				Help:      "Count of requests rejected due to throttling policies.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of a module request. code is the JSON-RPC error
// code or zero on success.
func (m *moduleMetrics) Observe(module, method string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if code != 0 {
		outcome = "error"
		m.errors.WithLabelValues(module, method, strconv.Itoa(code)).Inc()
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter. Reasons should be stable
// strings such as "rate_limit" or "body_too_large".
func (m *moduleMetrics) RecordThrottle(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(reason).Inc()
}

// GiftCards returns the singleton gift card metrics registry.
func GiftCards() *GiftCardMetrics {
	giftCardMetricsOnce.Do(func() {
		giftCardRegistry = &GiftCardMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "giftchain",
				Subsystem: "giftcard",
				Name:      "operations_total",
				Help:      "Gift card operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "giftchain",
				Subsystem: "giftcard",
				Name:      "operation_duration_seconds",
				Help:      "Latency of gift card operations including commit.",
				Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
			}, []string{"operation"}),
			moved: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "giftchain",
				Subsystem: "giftcard",
				Name:      "value_moved_total",
				Help:      "Base units moved into or out of gift card escrows.",
			}, []string{"operation", "asset"}),
			faucet: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "giftchain",
				Subsystem: "faucet",
				Name:      "payouts_total",
				Help:      "Faucet payouts segmented by asset and outcome.",
			}, []string{"asset", "outcome"}),
		}
		prometheus.MustRegister(
			giftCardRegistry.operations,
			giftCardRegistry.latency,
			giftCardRegistry.moved,
			giftCardRegistry.faucet,
		)
	})
	return giftCardRegistry
}

// RecordOperation records one gift card operation. outcome is "success" or a
// short error class.
func (m *GiftCardMetrics) RecordOperation(operation, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "success"
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.latency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordValue adds amount base units of asset moved by operation.
func (m *GiftCardMetrics) RecordValue(operation, asset string, amount uint64) {
	if m == nil || amount == 0 {
		return
	}
	m.moved.WithLabelValues(operation, asset).Add(float64(amount))
}

// RecordFaucet counts a faucet request.
func (m *GiftCardMetrics) RecordFaucet(asset, outcome string) {
	if m == nil {
		return
	}
	m.faucet.WithLabelValues(asset, outcome).Inc()
}
