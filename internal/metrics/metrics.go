// Package metrics exposes Prometheus collectors for the pipeline. Collectors
// register on the default registry; the daemon serves them at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ItemTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "squeeze_item_transitions_total",
			Help: "Item lifecycle transitions by edge",
		},
		[]string{"from", "to"},
	)

	FailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "squeeze_failures_total",
			Help: "Failure ledger entries by stage and category",
		},
		[]string{"stage", "category"},
	)

	DispatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "squeeze_dispatches_total",
			Help: "Dispatch attempts by stage and outcome",
		},
		[]string{"stage", "result"},
	)

	ProbesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "squeeze_probes_total",
			Help: "Worker health probes by stage and answer",
		},
		[]string{"stage", "result"},
	)

	WorkerResetsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "squeeze_worker_resets_total",
			Help: "Forced worker resets after sustained unresponsiveness",
		},
		[]string{"stage"},
	)

	StageStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "squeeze_stage_status",
			Help: "Current stage operational status (1 = active status)",
		},
		[]string{"stage", "status"},
	)

	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "squeeze_queue_depth",
			Help: "Queue items by lifecycle state",
		},
		[]string{"state"},
	)

	AdmissionConcurrency = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "squeeze_admission_concurrency",
			Help: "Concurrency bound computed by the admission controller",
		},
		[]string{"site"},
	)

	StageDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "squeeze_stage_duration_seconds",
			Help:    "Wall-clock duration of stage attempts",
			Buckets: []float64{1, 5, 15, 60, 300, 900, 1800, 3600, 7200, 14400},
		},
		[]string{"stage"},
	)

	EncodeSavingsPercent = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "squeeze_encode_savings_percent",
			Help:    "Size reduction achieved by completed encodes",
			Buckets: []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90},
		},
	)
)

// RecordTransition counts one item lifecycle edge.
func RecordTransition(from, to string) {
	ItemTransitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordFailure counts one failure ledger entry.
func RecordFailure(stage, category string) {
	FailuresTotal.WithLabelValues(stage, category).Inc()
}

// RecordDispatch counts one dispatch attempt outcome.
func RecordDispatch(stage, result string) {
	DispatchesTotal.WithLabelValues(stage, result).Inc()
}

// RecordProbe counts one health probe answer.
func RecordProbe(stage, result string) {
	ProbesTotal.WithLabelValues(stage, result).Inc()
}

// RecordWorkerReset counts one forced worker reset.
func RecordWorkerReset(stage string) {
	WorkerResetsTotal.WithLabelValues(stage).Inc()
}

// SetStageStatus marks the active operational status for a stage. The full
// status list is required so stale statuses drop back to zero.
func SetStageStatus(stage, active string, statuses []string) {
	for _, status := range statuses {
		value := 0.0
		if status == active {
			value = 1.0
		}
		StageStatus.WithLabelValues(stage, status).Set(value)
	}
}

// SetQueueDepth records the backlog for one lifecycle state.
func SetQueueDepth(state string, depth int) {
	QueueDepth.WithLabelValues(state).Set(float64(depth))
}

// SetAdmissionConcurrency records the bound computed for a call site.
func SetAdmissionConcurrency(site string, bound int) {
	AdmissionConcurrency.WithLabelValues(site).Set(float64(bound))
}

// ObserveStageDuration records how long a stage attempt ran.
func ObserveStageDuration(stage string, seconds float64) {
	StageDurationSeconds.WithLabelValues(stage).Observe(seconds)
}

// ObserveEncodeSavings records the size reduction of a finished encode.
func ObserveEncodeSavings(percent float64) {
	if percent < 0 {
		return
	}
	EncodeSavingsPercent.Observe(percent)
}
