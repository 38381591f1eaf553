package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EvaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipegate_evaluations_total",
		Help: "Gateway evaluations by action kind and outcome",
	}, []string{"kind", "outcome"})

	GateRejects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipegate_gate_rejects_total",
		Help: "Denied evaluations by reason code",
	}, []string{"reason"})

	RateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipegate_rate_limited_total",
		Help: "Requests rejected by the fixed-window limiter",
	}, []string{"actor_role"})

	ExecutorLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pipegate_executor_latency_seconds",
		Help:    "Outbound executor call latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	LatencyBucket = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pipegate_latency_bucket",
		Help:    "Request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	AuditWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pipegate_audit_write_failures_total",
		Help: "Audit sink write failures",
	})
)
