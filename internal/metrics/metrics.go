// Package metrics declares the Prometheus instruments shared by the API and
// the worker.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UploadsInitiated counts presigned upload grants handed out.
	UploadsInitiated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clipscribe_uploads_initiated_total",
		Help: "Number of presigned upload URLs issued",
	})

	// JobsProcessed counts finished transcription attempts by outcome:
	// success, retry, failed, abandoned.
	JobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clipscribe_jobs_total",
		Help: "Transcription job attempts by outcome",
	}, []string{"outcome"})

	// JobDuration observes wall time per processing attempt.
	JobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "clipscribe_job_duration_seconds",
		Help:    "Time taken to process one transcription job",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	// ActiveJobs tracks jobs currently processing on this node.
	ActiveJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "clipscribe_active_jobs",
		Help: "Number of jobs currently processing on this worker",
	})
)
