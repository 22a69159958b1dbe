package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// GovernanceMetrics tracks proposal lifecycle activity and staking totals.
type GovernanceMetrics struct {
	proposals     prometheus.Counter
	votes         *prometheus.CounterVec
	executions    *prometheus.CounterVec
	rejections    *prometheus.CounterVec
	totalStaked   prometheus.Gauge
	stakers       prometheus.Gauge
	auditFailures prometheus.Counter
}

var (
	governanceOnce     sync.Once
	governanceRegistry *GovernanceMetrics
)

// Governance returns the lazily registered governance metrics.
func Governance() *GovernanceMetrics {
	governanceOnce.Do(func() {
		governanceRegistry = &GovernanceMetrics{
			proposals: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "stakegov",
				Subsystem: "governance",
				Name:      "proposals_created_total",
				Help:      "Count of proposals created.",
			}),
			votes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stakegov",
				Subsystem: "governance",
				Name:      "votes_total",
				Help:      "Count of accepted ballots by direction.",
			}, []string{"support"}),
			executions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stakegov",
				Subsystem: "governance",
				Name:      "executions_total",
				Help:      "Count of executed proposals by stake release outcome.",
			}, []string{"outcome"}),
			rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stakegov",
				Subsystem: "governance",
				Name:      "rejections_total",
				Help:      "Count of rejected operations by operation and reason.",
			}, []string{"operation", "reason"}),
			totalStaked: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "stakegov",
				Subsystem: "staking",
				Name:      "total_staked",
				Help:      "Sum of all active stakes in base units.",
			}),
			stakers: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "stakegov",
				Subsystem: "staking",
				Name:      "active_stakers",
				Help:      "Number of accounts with an active stake.",
			}),
			auditFailures: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "stakegov",
				Subsystem: "audit",
				Name:      "append_failures_total",
				Help:      "Count of audit records that could not be persisted.",
			}),
		}
		prometheus.MustRegister(
			governanceRegistry.proposals,
			governanceRegistry.votes,
			governanceRegistry.executions,
			governanceRegistry.rejections,
			governanceRegistry.totalStaked,
			governanceRegistry.stakers,
			governanceRegistry.auditFailures,
		)
	})
	return governanceRegistry
}

// RecordProposal counts a created proposal.
func (m *GovernanceMetrics) RecordProposal() {
	if m == nil {
		return
	}
	m.proposals.Inc()
}

// RecordVote counts a ballot, labelled yes or no by support.
func (m *GovernanceMetrics) RecordVote(support bool) {
	if m == nil {
		return
	}
	label := "no"
	if support {
		label = "yes"
	}
	m.votes.WithLabelValues(label).Inc()
}

// RecordExecution counts an executed proposal. released is false when the
// stake release that follows execution failed.
func (m *GovernanceMetrics) RecordExecution(released bool) {
	if m == nil {
		return
	}
	outcome := "released"
	if !released {
		outcome = "release_failed"
	}
	m.executions.WithLabelValues(outcome).Inc()
}

// RecordRejection counts a refused operation by name and error reason.
// Empty labels fall back to unknown and unspecified.
func (m *GovernanceMetrics) RecordRejection(operation, reason string) {
	if m == nil {
		return
	}
	if operation == "" {
		operation = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.rejections.WithLabelValues(operation, reason).Inc()
}

// SetStaking publishes the current staking totals. total is truncated to a
// float64 for the gauge.
func (m *GovernanceMetrics) SetStaking(total float64, stakers int) {
	if m == nil {
		return
	}
	m.totalStaked.Set(total)
	m.stakers.Set(float64(stakers))
}

// IncAuditFailure counts an audit record that could not be persisted.
func (m *GovernanceMetrics) IncAuditFailure() {
	if m == nil {
		return
	}
	m.auditFailures.Inc()
}
