package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counters and histograms for a snapshot run, partitioned by queue, step or asset.

var (
	// Scheduler
	SchedulerTasksSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "snapshot",
		Subsystem: "scheduler",
		Name:      "tasks_submitted_total",
		Help:      "Total tasks accepted by the scheduler",
	}, []string{"queue"})

	SchedulerTasksFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "snapshot",
		Subsystem: "scheduler",
		Name:      "tasks_failed_total",
		Help:      "Total scheduler tasks that returned an error",
	}, []string{"queue"})

	SchedulerQueueWaits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "snapshot",
		Subsystem: "scheduler",
		Name:      "queue_waits_total",
		Help:      "Total submissions that had to wait for a free slot",
	}, []string{"queue"})

	// Scanner
	ScannerWindowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "snapshot",
		Subsystem: "scanner",
		Name:      "windows_total",
		Help:      "Total block windows queried for events",
	}, []string{"event"})

	ScannerEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "snapshot",
		Subsystem: "scanner",
		Name:      "events_total",
		Help:      "Total events returned by window scans",
	}, []string{"event"})

	// RPC
	RPCCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "snapshot",
		Subsystem: "rpc",
		Name:      "calls_total",
		Help:      "Total RPC calls by provider, method and status",
	}, []string{"provider", "method", "status"})

	RPCRateLimitWaits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "snapshot",
		Subsystem: "rpc",
		Name:      "rate_limit_waits_total",
		Help:      "Total RPC calls delayed by the rate limiter",
	}, []string{"provider"})

	RPCRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "snapshot",
		Subsystem: "rpc",
		Name:      "retries_total",
		Help:      "Total RPC calls retried after a transient failure",
	}, []string{"provider", "method"})

	RPCLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "snapshot",
		Subsystem: "rpc",
		Name:      "call_duration_seconds",
		Help:      "RPC call duration",
		Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"provider", "method"})

	// Step cache
	StepCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "snapshot",
		Subsystem: "stepcache",
		Name:      "hits_total",
		Help:      "Total steps served from the durable cache",
	}, []string{"step"})

	StepCacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "snapshot",
		Subsystem: "stepcache",
		Name:      "misses_total",
		Help:      "Total steps computed because no cache file existed",
	}, []string{"step"})

	StepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "snapshot",
		Subsystem: "stepcache",
		Name:      "compute_duration_seconds",
		Help:      "Duration of computing an uncached step",
		Buckets:   []float64{0.1, 1, 5, 15, 60, 300, 900, 3600, 10800},
	}, []string{"step"})

	// Classifier
	ClassifierChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "snapshot",
		Subsystem: "classifier",
		Name:      "code_checks_total",
		Help:      "Total code-presence checks by result",
	}, []string{"chain", "result"})

	// Reconciliation
	ReconcileAccounts = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "snapshot",
		Subsystem: "reconcile",
		Name:      "accounts",
		Help:      "Accounts per asset and wallet bucket after classification",
	}, []string{"asset", "bucket"})

	ReconcileMismatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "snapshot",
		Subsystem: "reconcile",
		Name:      "mismatches_total",
		Help:      "Total aggregate or storage checks that disagreed",
	}, []string{"asset", "kind"})

	ReconcileStageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "snapshot",
		Subsystem: "reconcile",
		Name:      "stage_duration_seconds",
		Help:      "Pipeline stage duration",
		Buckets:   []float64{0.01, 0.1, 1, 10, 60, 300, 900, 3600},
	}, []string{"asset", "stage"})
)
