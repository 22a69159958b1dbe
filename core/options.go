package core

import (
	"log/slog"
	"time"

	"stakegov/core/audit"
	"stakegov/core/events"
	"stakegov/observability/metrics"
)

// Option customises a Runtime during construction.
type Option func(*Runtime)

// WithClock injects the time source consulted by every time-dependent
// operation.
func WithClock(clock func() time.Time) Option {
	return func(r *Runtime) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// WithLogger sets the structured logger for lifecycle messages.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runtime) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithJournal persists audit records to j instead of an in-memory journal.
func WithJournal(j *audit.Journal) Option {
	return func(r *Runtime) {
		if j != nil {
			r.journal = j
		}
	}
}

// WithEmitter adds an emitter that receives every event alongside the hub.
func WithEmitter(emitter events.Emitter) Option {
	return func(r *Runtime) {
		if emitter != nil {
			r.emitters = append(r.emitters, emitter)
		}
	}
}

// WithMetrics records governance activity on m.
func WithMetrics(m *metrics.GovernanceMetrics) Option {
	return func(r *Runtime) {
		r.metrics = m
	}
}

// WithEventBuffer sets the per-subscriber buffer of the event hub.
func WithEventBuffer(size int) Option {
	return func(r *Runtime) {
		r.hubBuffer = size
	}
}
