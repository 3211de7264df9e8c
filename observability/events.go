package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type eventMetrics struct {
	emitted     *prometheus.CounterVec
	persisted   prometheus.Counter
	persistErrs prometheus.Counter
	streams     prometheus.Gauge
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking published events.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "giftchain",
				Subsystem: "events",
				Name:      "emitted_total",
				Help:      "Count of events published after commit, segmented by type.",
			}, []string{"type"}),
			persisted: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "giftchain",
				Subsystem: "events",
				Name:      "persisted_total",
				Help:      "Count of events written to the event journal.",
			}),
			persistErrs: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "giftchain",
				Subsystem: "events",
				Name:      "persist_errors_total",
				Help:      "Count of events the event journal failed to store.",
			}),
			streams: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "giftchain",
				Subsystem: "events",
				Name:      "stream_subscribers",
				Help:      "Number of connected websocket event subscribers.",
			}),
		}
		prometheus.MustRegister(eventRegistry.emitted, eventRegistry.persisted, eventRegistry.persistErrs, eventRegistry.streams)
	})
	return eventRegistry
}

// RecordEmitted increments the counter for an event type.
func (m *eventMetrics) RecordEmitted(eventType string) {
	if m == nil {
		return
	}
	normalized := strings.TrimSpace(eventType)
	if normalized == "" {
		normalized = "unknown"
	}
	m.emitted.WithLabelValues(normalized).Inc()
}

// RecordPersisted tracks the result of an event journal write.
func (m *eventMetrics) RecordPersisted(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.persistErrs.Inc()
		return
	}
	m.persisted.Inc()
}

// StreamOpened and StreamClosed track websocket subscribers.
func (m *eventMetrics) StreamOpened() {
	if m != nil {
		m.streams.Inc()
	}
}

func (m *eventMetrics) StreamClosed() {
	if m != nil {
		m.streams.Dec()
	}
}
