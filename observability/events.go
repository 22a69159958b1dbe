package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"stakegov/core/events"
)

// EventMetrics counts emitted events and reports the state of the event hub.
// It satisfies events.Emitter so the runtime can emit into it directly.
type EventMetrics struct {
	emitted *prometheus.CounterVec

	hubOnce sync.Once
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *EventMetrics
)

// Events returns the process-wide event metrics.
func Events() *EventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &EventMetrics{
			emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stakegov",
				Subsystem: "events",
				Name:      "emitted_total",
				Help:      "Events emitted by the runtime, by type.",
			}, []string{"type"}),
		}
		prometheus.MustRegister(eventRegistry.emitted)
	})
	return eventRegistry
}

// Emit increments the counter for the event's type.
func (m *EventMetrics) Emit(evt events.Event) {
	if m == nil || evt == nil {
		return
	}
	kind := strings.TrimSpace(evt.EventType())
	if kind == "" {
		kind = "unknown"
	}
	m.emitted.WithLabelValues(kind).Inc()
}

// ObserveHub exports the subscriber count and dropped deliveries of hub.
// Only the first hub passed is observed.
func (m *EventMetrics) ObserveHub(hub *events.Hub) {
	if m == nil || hub == nil {
		return
	}
	m.hubOnce.Do(func() {
		prometheus.MustRegister(
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: "stakegov",
				Subsystem: "events",
				Name:      "subscribers",
				Help:      "Active event stream subscriptions.",
			}, func() float64 { return float64(hub.Subscribers()) }),
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Namespace: "stakegov",
				Subsystem: "events",
				Name:      "dropped_total",
				Help:      "Event deliveries skipped because a subscriber was full.",
			}, func() float64 { return float64(hub.Dropped()) }),
		)
	})
}
