package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	JobsRequested *prometheus.CounterVec
	JobsCompleted prometheus.Counter
	JobsFailed    prometheus.Counter
	RateLimited   prometheus.Counter
	JobDuration   prometheus.Histogram
	RowsExported  prometheus.Counter
	Downloads     prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		JobsRequested: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sentra_export_jobs_requested_total",
			Help: "Total export jobs accepted, by format",
		}, []string{"format"}),
		JobsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sentra_export_jobs_completed_total",
			Help: "Total export jobs that finished successfully",
		}),
		JobsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sentra_export_jobs_failed_total",
			Help: "Total export jobs that failed",
		}),
		RateLimited: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sentra_export_rate_limited_total",
			Help: "Total export requests rejected by a rate or concurrency limit",
		}),
		JobDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "sentra_export_job_duration_seconds",
			Help:    "Export job processing time",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		RowsExported: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sentra_export_rows_total",
			Help: "Total audit rows written into export files",
		}),
		Downloads: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sentra_export_downloads_total",
			Help: "Total successful export downloads",
		}),
	}
}

func (m *Metrics) ObserveRequested(format string) {
	m.JobsRequested.WithLabelValues(format).Inc()
}

func (m *Metrics) ObserveCompleted(rows int64, d time.Duration) {
	m.JobsCompleted.Inc()
	m.RowsExported.Add(float64(rows))
	m.JobDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveFailed() {
	m.JobsFailed.Inc()
}

func (m *Metrics) ObserveRateLimited() {
	m.RateLimited.Inc()
}

func (m *Metrics) ObserveDownload() {
	m.Downloads.Inc()
}
