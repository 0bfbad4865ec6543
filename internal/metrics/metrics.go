package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hlsgrab",
		Name:      "http_requests_total",
		Help:      "Total API requests by method, route and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "hlsgrab",
		Name:      "http_request_duration_seconds",
		Help:      "API request duration in seconds.",
		Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.3, 1, 5},
	}, []string{"method", "path"})

	UpstreamRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hlsgrab",
		Name:      "upstream_requests_total",
		Help:      "Total upstream GET requests by outcome.",
	}, []string{"outcome"})

	UpstreamRequestDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "hlsgrab",
		Name:      "upstream_request_duration_seconds",
		Help:      "Upstream GET duration in seconds, including body read.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 30},
	})

	JobsSubmittedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hlsgrab",
		Name:      "jobs_submitted_total",
		Help:      "Total jobs accepted by input kind.",
	}, []string{"kind"})

	JobsFinishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hlsgrab",
		Name:      "jobs_finished_total",
		Help:      "Total jobs reaching a terminal state, by state and error kind.",
	}, []string{"state", "error_kind"})

	JobsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "hlsgrab",
		Name:      "jobs_active",
		Help:      "Number of jobs currently being processed by workers.",
	})

	JobDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "hlsgrab",
		Name:      "job_duration_seconds",
		Help:      "Wall time from processing start to terminal state.",
		Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
	})

	SegmentsFetchedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hlsgrab",
		Name:      "segments_fetched_total",
		Help:      "Total media segments committed to artifacts.",
	})

	SegmentBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hlsgrab",
		Name:      "segment_bytes_total",
		Help:      "Total bytes written to artifacts from media segments.",
	})

	RemuxDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "hlsgrab",
		Name:      "remux_duration_seconds",
		Help:      "Duration of ffmpeg stream-copy runs in seconds.",
		Buckets:   []float64{0.5, 1, 5, 10, 30, 60, 120},
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		UpstreamRequestsTotal,
		UpstreamRequestDuration,
		JobsSubmittedTotal,
		JobsFinishedTotal,
		JobsActive,
		JobDuration,
		SegmentsFetchedTotal,
		SegmentBytesTotal,
		RemuxDuration,
	)
}
