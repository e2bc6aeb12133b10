package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AbuseDetections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "modgate_abuse_detections_total",
		Help: "Scoring runs by resulting classification",
	}, []string{"score"})

	SignalTriggers = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "modgate_signal_triggers_total",
		Help: "Triggered abuse signals by pattern tag",
	}, []string{"pattern"})

	FlagsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "modgate_flags_created_total",
		Help: "Moderation flags created by flag type",
	}, []string{"type"})

	AuditWrites = promauto.NewCounter(prometheus.CounterOpts{
		Name: "modgate_audit_writes_total",
		Help: "Audit trail entries appended",
	})

	LatencyBucket = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "modgate_latency_bucket",
		Help:    "Request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "modgate_rate_limited_total",
		Help: "Moderation API requests rejected by the limiter",
	})
)
