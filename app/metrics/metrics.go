// Package metrics provides Prometheus metrics for rss-intake.
package metrics

import (
	"time"

	"github.com/lysyi3m/rss-intake/app/rss"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "rss_intake"

var (
	// FetchTotal counts feed fetches by adapter and outcome.
	FetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_total",
			Help:      "Total number of feed fetches",
		},
		[]string{"adapter", "outcome"},
	)

	// FetchDuration measures feed fetch duration.
	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Duration of feed fetches in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"adapter"},
	)

	FetchedItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetched_items_total",
			Help:      "Total number of items returned by successful fetches",
		},
		[]string{"adapter"},
	)

	// TasksTotal counts scheduler tasks by type and final status.
	TasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_total",
			Help:      "Total number of scheduler tasks",
		},
		[]string{"type", "status"},
	)

	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Duration of scheduler tasks in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"type"},
	)

	// QueueDepth tracks pending tasks in the scheduler queue.
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "task_queue_depth",
			Help:      "Number of tasks waiting in the scheduler queue",
		},
	)
)

// ObserveFetch records one adapter fetch. Its signature matches rss.Observer.
func ObserveFetch(adapter, url string, result rss.Result, elapsed time.Duration) {
	outcome := "success"
	if !result.Success {
		outcome = "failure"
	}
	FetchTotal.WithLabelValues(adapter, outcome).Inc()
	FetchDuration.WithLabelValues(adapter).Observe(elapsed.Seconds())
	if result.Data != nil {
		FetchedItems.WithLabelValues(adapter).Add(float64(len(result.Data.Items)))
	}
}

// RecordTask records a finished scheduler task.
func RecordTask(taskType, status string, duration time.Duration) {
	TasksTotal.WithLabelValues(taskType, status).Inc()
	TaskDuration.WithLabelValues(taskType).Observe(duration.Seconds())
}

func SetQueueDepth(depth int) {
	QueueDepth.Set(float64(depth))
}
