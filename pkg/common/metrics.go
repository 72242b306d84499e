package common

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ElectionStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "election_coordinator_status",
		Help: "Current election status (1 = leader, 0 = not leader)",
	}, []string{"key", "node_id"})

	ElectionState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "election_coordinator_state",
		Help: "Current state machine state (1 for the active state, 0 otherwise)",
	}, []string{"key", "node_id", "state"})

	ElectionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "election_coordinator_transitions_total",
		Help: "Total number of state machine transitions",
	}, []string{"key", "node_id", "to"})

	ElectionTerm = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "election_coordinator_term",
		Help: "Term of the most recent leadership held by this node",
	}, []string{"key", "node_id"})

	LeadershipDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "election_coordinator_leadership_duration_seconds",
		Help:    "Duration in seconds this node held leadership",
		Buckets: prometheus.ExponentialBuckets(1, 2, 15),
	}, []string{"key", "node_id"})

	ElectionErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "election_coordinator_errors_total",
		Help: "Total number of errors during election operations",
	}, []string{"key", "node_id", "operation"})

	StoreOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "election_coordinator_store_operation_duration_seconds",
		Help:    "Duration of lease store operations",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	}, []string{"backend", "operation", "status"})

	HookInvocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "election_coordinator_hook_invocations_total",
		Help: "Total number of notification hook invocations",
	}, []string{"key", "hook", "status"})

	HookDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "election_coordinator_hook_duration_seconds",
		Help:    "Time taken by notification hooks",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	}, []string{"key", "hook"})

	ObservedLeader = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "election_coordinator_observed_leader",
		Help: "Leader observed on the election key (1 = this holder currently leads)",
	}, []string{"key", "holder"})

	ObservedTerm = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "election_coordinator_observed_term",
		Help: "Term of the lease observed on the election key",
	}, []string{"key"})
)
