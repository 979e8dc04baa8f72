// Package metrics exposes Prometheus instrumentation for the simulation
// domain: node/pod counts, scheduling and autoscaler cycle latency,
// migrations, and overuse events. None of this is read by simulation
// logic; it is ambient observability a run can optionally be scraped
// for while it executes.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	WorkingNodesTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orbitsim_working_nodes_total",
		Help: "Current number of working nodes.",
	})

	FailedNodesTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orbitsim_failed_nodes_total",
		Help: "Current number of failed nodes.",
	})

	PodsByPhase = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "orbitsim_pods_by_phase",
		Help: "Current number of pods by phase.",
	}, []string{"phase"})

	PodMigrationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orbitsim_pod_migrations_total",
		Help: "Total number of pod migrations triggered by memory-pressure eviction.",
	})

	MemoryOveruseEventsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orbitsim_memory_overuse_events_total",
		Help: "Total number of reconciliation passes where a pod's wanted memory exceeded its request.",
	})

	SchedulingCyclesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orbitsim_scheduling_cycles_total",
		Help: "Total number of scheduler cycles run.",
	})

	SchedulingFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orbitsim_scheduling_failures_total",
		Help: "Total number of pods that failed to find a candidate node in a scheduling cycle.",
	})

	SchedulingCycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "orbitsim_scheduling_cycle_duration_seconds",
		Help:    "Wall-clock time spent running filter+score for one scheduling cycle.",
		Buckets: prometheus.DefBuckets,
	})

	ClusterAutoscalerScanDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "orbitsim_cluster_autoscaler_scan_duration_seconds",
		Help:    "Wall-clock time spent running one cluster autoscaler scan.",
		Buckets: prometheus.DefBuckets,
	})

	NodeReconciliationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "orbitsim_node_reconciliation_duration_seconds",
		Help:    "Wall-clock time spent running one node reconciliation pass.",
		Buckets: prometheus.DefBuckets,
	})

	VerticalAutoscalerCycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "orbitsim_vertical_autoscaler_cycle_duration_seconds",
		Help:    "Wall-clock time spent running one vertical autoscaler cycle.",
		Buckets: prometheus.DefBuckets,
	})

	HorizontalAutoscalerCycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "orbitsim_horizontal_autoscaler_cycle_duration_seconds",
		Help:    "Wall-clock time spent running one horizontal autoscaler cycle.",
		Buckets: prometheus.DefBuckets,
	})

	MetricsServerSnapshotDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "orbitsim_metrics_server_snapshot_duration_seconds",
		Help:    "Wall-clock time spent taking one metrics server snapshot.",
		Buckets: prometheus.DefBuckets,
	})

	NodesAllocatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orbitsim_nodes_allocated_total",
		Help: "Total number of nodes allocated from the cloud pool by the cluster autoscaler.",
	})

	NodesRemovedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orbitsim_nodes_removed_total",
		Help: "Total number of nodes removed by the cluster autoscaler.",
	})

	HorizontalScalingEventsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orbitsim_horizontal_scaling_events_total",
		Help: "Total number of horizontal autoscaler replica-count changes emitted.",
	})

	VerticalRecommendationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orbitsim_vertical_recommendations_total",
		Help: "Total number of vertical autoscaler resize recommendations applied.",
	})
)

func init() {
	prometheus.MustRegister(
		WorkingNodesTotal,
		FailedNodesTotal,
		PodsByPhase,
		PodMigrationsTotal,
		MemoryOveruseEventsTotal,
		SchedulingCyclesTotal,
		SchedulingFailuresTotal,
		SchedulingCycleDuration,
		ClusterAutoscalerScanDuration,
		NodeReconciliationDuration,
		VerticalAutoscalerCycleDuration,
		HorizontalAutoscalerCycleDuration,
		MetricsServerSnapshotDuration,
		NodesAllocatedTotal,
		NodesRemovedTotal,
		HorizontalScalingEventsTotal,
		VerticalRecommendationsTotal,
	)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures wall-clock elapsed time for an operation and reports it
// into a Prometheus histogram. This is the one use of time.Now() in this
// module outside log timestamps: it measures a component's own real
// engineering cost. Only the Scheduler folds its measurement back into
// simulated delay; every other caller just reports it, and none of it
// drives simulated progress.
type Timer struct {
	start time.Time
}

// NewTimer starts a new Timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed wall-clock time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration records the elapsed duration into a histogram.
func (t *Timer) ObserveDuration(h prometheus.Histogram) {
	h.Observe(t.Duration().Seconds())
}

// ObserveDurationVec records the elapsed duration into a histogram vec
// for the given label values.
func (t *Timer) ObserveDurationVec(h *prometheus.HistogramVec, labelValues ...string) {
	h.WithLabelValues(labelValues...).Observe(t.Duration().Seconds())
}
