// Package metrics exposes Prometheus collectors for the harvester.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tasksTotal          *prometheus.CounterVec
	videosIngestedTotal prometheus.Counter
	credsExhaustedTotal prometheus.Counter
	activeWorkers       prometheus.Gauge
	taskDurationSeconds prometheus.Histogram

	once sync.Once
)

// Init registers the collectors. Safe to call multiple times.
func Init() {
	once.Do(func() {
		tasksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_tasks_total",
				Help: "Total tasks completed, labeled by terminal outcome.",
			},
			[]string{"outcome"},
		)

		videosIngestedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "harvest_videos_ingested_total",
				Help: "Total video records handed to the persistence sink.",
			},
		)

		credsExhaustedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "harvest_credentials_exhausted_total",
				Help: "Credentials marked exhausted during the run.",
			},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "harvest_active_workers",
				Help: "Workers currently running.",
			},
		)

		taskDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "harvest_task_duration_seconds",
				Help:    "Wall-clock time per task, all stages included.",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
		)
	})
}

// TaskCompleted counts a terminal task outcome.
func TaskCompleted(outcome string) {
	if tasksTotal != nil {
		tasksTotal.WithLabelValues(outcome).Inc()
	}
}

// VideosIngested adds to the persisted record counter.
func VideosIngested(n int) {
	if videosIngestedTotal != nil {
		videosIngestedTotal.Add(float64(n))
	}
}

// CredentialExhausted counts one credential leaving the pool.
func CredentialExhausted() {
	if credsExhaustedTotal != nil {
		credsExhaustedTotal.Inc()
	}
}

// WorkerStarted increments the active worker gauge.
func WorkerStarted() {
	if activeWorkers != nil {
		activeWorkers.Inc()
	}
}

// WorkerStopped decrements the active worker gauge.
func WorkerStopped() {
	if activeWorkers != nil {
		activeWorkers.Dec()
	}
}

// ObserveTaskDuration records one task's wall-clock duration.
func ObserveTaskDuration(d time.Duration) {
	if taskDurationSeconds != nil {
		taskDurationSeconds.Observe(d.Seconds())
	}
}
