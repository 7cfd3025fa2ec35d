package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "routelens_sessions_processed_total",
		Help: "Total number of analysis sessions processed, by terminal status",
	}, []string{"status"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "routelens_stage_duration_seconds",
		Help:    "Duration of each pipeline stage",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"stage"})

	FramesExtractedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "routelens_frames_extracted_total",
		Help: "Total number of frames extracted across all sessions",
	})

	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "routelens_active_workers",
		Help: "Number of worker slots currently running a pipeline",
	})

	RetryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "routelens_retry_total",
		Help: "Total number of local retries, by component",
	}, []string{"component"})
)
