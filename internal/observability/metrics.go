package observability

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kubeadapt/gpustat/pkg/model"
)

// Metrics holds all Prometheus metrics for gpustat self-monitoring and the
// cluster GPU gauges published in watch mode.
// It uses a custom registry to avoid polluting the global default.
type Metrics struct {
	Registry *prometheus.Registry

	// Poll metrics
	PollDuration prometheus.Histogram
	PollTotal    *prometheus.CounterVec

	// Cluster GPU gauges, refreshed after every successful poll
	GPUsInUse          *prometheus.GaugeVec
	GPUsByUser         *prometheus.GaugeVec
	InactiveGPUs       prometheus.Gauge
	MemoryUsagePercent prometheus.Gauge
	Jobs               *prometheus.GaugeVec

	// Metrics provider
	MetricsProviderDuration *prometheus.HistogramVec
	MetricsProviderErrors   *prometheus.CounterVec

	// History
	HistoryAppendTotal *prometheus.CounterVec

	// ReportStale is 1 while the published report is from an earlier poll.
	ReportStale prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all Prometheus metrics
// registered on a custom registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		PollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gpustat_poll_duration_seconds",
			Help:    "Duration of a full poll (list, extract, metrics, derive, aggregate) in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		PollTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gpustat_poll_total",
			Help: "Total number of polls by outcome.",
		}, []string{"status"}),

		GPUsInUse: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gpustat_gpus_in_use",
			Help: "GPUs allocated to running pods, by GPU product.",
		}, []string{"gpu_name"}),
		GPUsByUser: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gpustat_user_gpus",
			Help: "GPUs allocated to running pods, by user.",
		}, []string{"username"}),
		InactiveGPUs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gpustat_inactive_gpus",
			Help: "Allocated GPUs using less than 1% of their memory.",
		}),
		MemoryUsagePercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gpustat_memory_usage_percent",
			Help: "GPU-count-weighted mean memory utilization across all allocated GPUs.",
		}),
		Jobs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gpustat_jobs",
			Help: "GPU jobs by mode (interactive, batch) and status (active, inactive).",
		}, []string{"mode", "status"}),

		MetricsProviderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gpustat_metrics_provider_duration_seconds",
			Help:    "Duration of GPU memory metrics provider calls in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
		MetricsProviderErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gpustat_metrics_provider_errors_total",
			Help: "Total number of failed GPU memory metrics provider calls.",
		}, []string{"provider"}),

		HistoryAppendTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gpustat_history_append_total",
			Help: "Total number of history snapshot appends by outcome.",
		}, []string{"status"}),

		ReportStale: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gpustat_report_stale",
			Help: "1 when the last poll failed and the published report is from an earlier poll.",
		}),
	}

	// Register all metrics with the custom registry.
	reg.MustRegister(
		m.PollDuration,
		m.PollTotal,
		m.GPUsInUse,
		m.GPUsByUser,
		m.InactiveGPUs,
		m.MemoryUsagePercent,
		m.Jobs,
		m.MetricsProviderDuration,
		m.MetricsProviderErrors,
		m.HistoryAppendTotal,
		m.ReportStale,
	)

	return m
}

// RecordReport replaces the cluster GPU gauges with the values of report.
// Label sets from earlier polls are dropped so departed users and GPU types
// disappear.
func (m *Metrics) RecordReport(report *model.Report) {
	m.GPUsInUse.Reset()
	for _, row := range report.GPUTypes.Rows {
		m.GPUsInUse.WithLabelValues(row.GPUName).Set(float64(row.Count))
	}

	m.GPUsByUser.Reset()
	for _, row := range report.Users.Rows {
		m.GPUsByUser.WithLabelValues(row.Username).Set(float64(row.Count))
	}

	m.InactiveGPUs.Set(float64(report.Users.TotalInactive))
	m.MemoryUsagePercent.Set(report.Users.AvgMemUsage)

	m.Jobs.Reset()
	for _, job := range report.Jobs.Rows {
		mode, status := "batch", "active"
		if job.Interactive {
			mode = "interactive"
		}
		if job.AllInactive {
			status = "inactive"
		}
		m.Jobs.WithLabelValues(mode, status).Inc()
	}
}
