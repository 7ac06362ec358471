package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	EventsRecorded  *prometheus.CounterVec
	RecordFailures  prometheus.Counter
	QueriesTotal    *prometheus.CounterVec
	QueryDuration   prometheus.Histogram
	EntriesReturned prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		EventsRecorded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sentra_audit_events_recorded_total",
			Help: "Total number of audit events persisted",
		}, []string{"module"}),
		RecordFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sentra_audit_record_failures_total",
			Help: "Total number of audit event writes that failed",
		}),
		QueriesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sentra_audit_queries_total",
			Help: "Total number of audit trail queries by mode",
		}, []string{"mode"}),
		QueryDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "sentra_audit_query_duration_seconds",
			Help:    "Audit trail query latency",
			Buckets: prometheus.DefBuckets,
		}),
		EntriesReturned: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sentra_audit_entries_returned_total",
			Help: "Total number of audit entries returned to callers",
		}),
	}
}

func (m *Metrics) ObserveRecord(module string) {
	m.EventsRecorded.WithLabelValues(module).Inc()
}

func (m *Metrics) ObserveRecordFailure() {
	m.RecordFailures.Inc()
}

func (m *Metrics) ObserveQuery(mode string, entries int) {
	m.QueriesTotal.WithLabelValues(mode).Inc()
	m.EntriesReturned.Add(float64(entries))
}
