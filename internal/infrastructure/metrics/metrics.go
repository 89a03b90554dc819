package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RecoveryMetrics holds the collectors for the recovery workflow.
type RecoveryMetrics struct {
	// Requests
	RequestsCreatedTotal prometheus.Counter
	TransitionsTotal     *prometheus.CounterVec
	ApprovalsTotal       *prometheus.CounterVec

	// Execution
	ExecutionsTotal      *prometheus.CounterVec
	LedgerSubmitDuration *prometheus.HistogramVec
	LedgerSubmitAttempts prometheus.Histogram
	StaleStateConflicts  *prometheus.CounterVec
	ForceExecutionsTotal prometheus.Counter
	NotificationsDropped *prometheus.CounterVec

	// Scheduler
	SweepDuration    *prometheus.HistogramVec
	SweepItemsTotal  *prometheus.CounterVec
	AuditPurgedTotal prometheus.Counter
}

func NewRecoveryMetrics(reg prometheus.Registerer) *RecoveryMetrics {
	factory := promauto.With(reg)
	return &RecoveryMetrics{
		RequestsCreatedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "recovery_requests_created_total",
				Help: "Recovery requests created",
			},
		),
		TransitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recovery_transitions_total",
				Help: "Recovery request status transitions",
			},
			[]string{"from", "to"},
		),
		ApprovalsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recovery_approvals_total",
				Help: "Approval calls by outcome (recorded, duplicate, late)",
			},
			[]string{"outcome"},
		),
		ExecutionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recovery_executions_total",
				Help: "Executor attempts by result and failure kind",
			},
			[]string{"result", "kind"},
		),
		LedgerSubmitDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "recovery_ledger_submit_duration_seconds",
				Help:    "Latency of signer rotation submissions including transient retries",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms .. ~25s
			},
			[]string{"result"},
		),
		LedgerSubmitAttempts: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "recovery_ledger_submit_attempts",
				Help:    "Ledger calls made per execution attempt",
				Buckets: []float64{1, 2, 3, 5, 8, 13},
			},
		),
		StaleStateConflicts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recovery_stale_state_conflicts_total",
				Help: "Compare-and-set conflicts by operation",
			},
			[]string{"operation"},
		),
		ForceExecutionsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "recovery_force_executions_total",
				Help: "Force execute authorizations",
			},
		),
		NotificationsDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recovery_notifications_failed_total",
				Help: "Notifications that could not be published",
			},
			[]string{"event"},
		),
		SweepDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "recovery_sweep_duration_seconds",
				Help:    "Duration of scheduler sweeps",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"sweep"},
		),
		SweepItemsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recovery_sweep_items_total",
				Help: "Requests processed by scheduler sweeps",
			},
			[]string{"sweep", "result"},
		),
		AuditPurgedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "recovery_audit_purged_total",
				Help: "Audit entries removed by the retention sweep",
			},
		),
	}
}

func (m *RecoveryMetrics) RecordCreated() {
	if m == nil {
		return
	}
	m.RequestsCreatedTotal.Inc()
}

func (m *RecoveryMetrics) RecordTransition(from, to string) {
	if m == nil {
		return
	}
	m.TransitionsTotal.WithLabelValues(from, to).Inc()
}

func (m *RecoveryMetrics) RecordApproval(outcome string) {
	if m == nil {
		return
	}
	m.ApprovalsTotal.WithLabelValues(outcome).Inc()
}

func (m *RecoveryMetrics) RecordExecution(success bool, kind string) {
	if m == nil {
		return
	}
	result := "failure"
	if success {
		result = "success"
	}
	m.ExecutionsTotal.WithLabelValues(result, kind).Inc()
}

func (m *RecoveryMetrics) RecordLedgerSubmit(success bool, seconds float64, attempts int) {
	if m == nil {
		return
	}
	result := "failure"
	if success {
		result = "success"
	}
	m.LedgerSubmitDuration.WithLabelValues(result).Observe(seconds)
	m.LedgerSubmitAttempts.Observe(float64(attempts))
}

func (m *RecoveryMetrics) RecordStaleState(operation string) {
	if m == nil {
		return
	}
	m.StaleStateConflicts.WithLabelValues(operation).Inc()
}

func (m *RecoveryMetrics) RecordForceExecution() {
	if m == nil {
		return
	}
	m.ForceExecutionsTotal.Inc()
}

func (m *RecoveryMetrics) RecordNotificationFailed(event string) {
	if m == nil {
		return
	}
	m.NotificationsDropped.WithLabelValues(event).Inc()
}

func (m *RecoveryMetrics) RecordSweep(sweep string, seconds float64) {
	if m == nil {
		return
	}
	m.SweepDuration.WithLabelValues(sweep).Observe(seconds)
}

func (m *RecoveryMetrics) RecordSweepItem(sweep, result string) {
	if m == nil {
		return
	}
	m.SweepItemsTotal.WithLabelValues(sweep, result).Inc()
}

func (m *RecoveryMetrics) RecordAuditPurged(n int64) {
	if m == nil {
		return
	}
	m.AuditPurgedTotal.Add(float64(n))
}
