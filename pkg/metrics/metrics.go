package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Task lifecycle metrics
	TasksSubmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "taskrunner_tasks_submitted_total",
			Help: "Total number of tasks submitted",
		},
	)

	TasksReady = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "taskrunner_tasks_ready_total",
			Help: "Total number of tasks that became ready (remaining_deps reached zero)",
		},
	)

	TasksTerminated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskrunner_tasks_terminated_total",
			Help: "Total number of tasks that reached a terminal state, by outcome",
		},
		[]string{"outcome"}, // "success", "failed", "aborted"
	)

	TasksRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskrunner_tasks_rejected_total",
			Help: "Total number of tasks rejected at submit time, by reason",
		},
		[]string{"reason"}, // "no_device", "invalid_state"
	)

	// Scheduler metrics
	SchedulingLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "taskrunner_scheduling_latency_seconds",
			Help:    "Time between a task becoming ready (push_task) and a worker popping it",
			Buckets: prometheus.DefBuckets,
		},
	)

	WorkersWaiting = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskrunner_workers_waiting",
			Help: "Number of workers currently parked waiting for a task",
		},
	)

	// Data wizard / coherency metrics
	TransferBytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskrunner_transfer_bytes_total",
			Help: "Total bytes moved between memory nodes by async copies",
		},
		[]string{"node_from", "node_to"},
	)

	TransferLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "taskrunner_transfer_latency_seconds",
			Help:    "Latency of a single async replica transfer",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"node_from", "node_to"},
	)

	HandleReplicaState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "taskrunner_handle_replica_state",
			Help: "Number of replicas currently in a given coherence state on a node",
		},
		[]string{"node", "state"},
	)

	ReplicaEvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "taskrunner_replica_evictions_total",
			Help: "Total number of replicas evicted to satisfy an allocation under memory pressure",
		},
	)

	// Worker metrics
	WorkerBusy = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "taskrunner_worker_busy",
			Help: "1 if the worker currently has a task in flight, 0 otherwise",
		},
		[]string{"worker_id"},
	)
)

func init() {
	prometheus.MustRegister(TasksSubmitted)
	prometheus.MustRegister(TasksReady)
	prometheus.MustRegister(TasksTerminated)
	prometheus.MustRegister(TasksRejected)
	prometheus.MustRegister(SchedulingLatency)
	prometheus.MustRegister(WorkersWaiting)
	prometheus.MustRegister(TransferBytesTotal)
	prometheus.MustRegister(TransferLatency)
	prometheus.MustRegister(HandleReplicaState)
	prometheus.MustRegister(ReplicaEvictionsTotal)
	prometheus.MustRegister(WorkerBusy)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
