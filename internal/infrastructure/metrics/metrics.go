package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuditRunsTotal tracks completed reconciliation runs by run type
	AuditRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_audit_runs_total",
		Help: "Total number of completed audit/heal runs",
	}, []string{"run_type"})

	// FindingsTotal tracks findings produced by runs
	FindingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_findings_total",
		Help: "Total number of policy findings produced",
	}, []string{"severity", "status"})

	// HealsApplied tracks auto-heal writes applied to the provider
	HealsApplied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_heals_applied_total",
		Help: "Total number of auto-heal changes written to the provider",
	})

	// ApprovalsQueued tracks new approval-queue entries
	ApprovalsQueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_approvals_queued_total",
		Help: "Total number of changes queued for human approval",
	})

	// ApprovalsDecided tracks reviewer decisions by outcome
	ApprovalsDecided = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_approvals_decided_total",
		Help: "Total number of approval decisions",
	}, []string{"decision"})

	// ProviderRequestDuration tracks DNS provider call latency
	ProviderRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sentinel_provider_request_duration_seconds",
		Help:    "Histogram of DNS provider request duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	// ProviderErrors tracks failed DNS provider calls
	ProviderErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_provider_errors_total",
		Help: "Total number of failed DNS provider requests",
	}, []string{"op"})

	// SnapshotCacheOperations tracks snapshot cache hits and misses
	SnapshotCacheOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_snapshot_cache_operations_total",
		Help: "Total number of snapshot cache hits and misses",
	}, []string{"result"})

	// DBConnectionsActive tracks open database connections
	DBConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sentinel_db_connections_active",
		Help: "Number of active database connections",
	})
)
