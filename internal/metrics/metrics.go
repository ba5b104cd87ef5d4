package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// Async Ads report lifecycle, by report type and outcome
	ReportRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "amazon_brain_report_requests_total",
		Help: "Ads reports requested, by report type and outcome",
	}, []string{"report", "outcome"})

	ReportLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "amazon_brain_report_latency_seconds",
		Help:    "Time from report request to downloaded payload",
		Buckets: []float64{5, 15, 30, 60, 120, 300, 600},
	}, []string{"report"})

	DatasetDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "amazon_brain_sync_dataset_duration_seconds",
		Help:    "Duration of one dataset sync",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"dataset", "status"})

	RowsWritten = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "amazon_brain_sync_rows_written_total",
		Help: "Weekly rows upserted per dataset",
	}, []string{"dataset"})

	UnmappedRecords = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "amazon_brain_sync_unmapped_records_total",
		Help: "Report records skipped because their entity could not be resolved",
	}, []string{"dataset"})

	LastSync = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "amazon_brain_last_sync_timestamp_seconds",
		Help: "Unix time of the last finished sync run",
	})

	SheetsRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "amazon_brain_sheets_requests_total",
		Help: "Dataset API requests by dataset and status code",
	}, []string{"dataset", "code"})

	AlertsCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "amazon_brain_alerts_created_total",
		Help: "Alerts raised by the cron job",
	}, []string{"type", "level"})
)

func Init() {
	prometheus.MustRegister(
		ReportRequests,
		ReportLatency,
		DatasetDuration,
		RowsWritten,
		UnmappedRecords,
		LastSync,
		SheetsRequests,
		AlertsCreated,
	)
}
