package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the dashboard.
type Metrics struct {
	registry *prometheus.Registry

	// Export metrics
	ExportsTotal          prometheus.Counter
	ContactsExportedTotal prometheus.Counter
	ExportsEmptyTotal     prometheus.Counter
	ResetsTotal           prometheus.Counter

	// Data metrics
	RecordsLoaded   prometheus.Gauge
	LoadErrorsTotal *prometheus.CounterVec
	IngestRunsTotal *prometheus.CounterVec
	IngestDuration  prometheus.Histogram

	SessionsActive prometheus.Gauge
}

// New creates and registers all metrics on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		ExportsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rosa_exports_total",
			Help: "Total number of committed contact exports",
		}),
		ContactsExportedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rosa_contacts_exported_total",
			Help: "Total number of contact rows exported",
		}),
		ExportsEmptyTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rosa_exports_empty_total",
			Help: "Export requests with no available contacts",
		}),
		ResetsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rosa_session_resets_total",
			Help: "Total number of download-tracking resets",
		}),
		RecordsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rosa_records_loaded",
			Help: "Number of contact records in the last load",
		}),
		LoadErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rosa_load_errors_total",
			Help: "Failed contact loads by kind",
		}, []string{"kind"}),
		IngestRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rosa_ingest_runs_total",
			Help: "Ingestion runs by outcome",
		}, []string{"status"}),
		IngestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rosa_ingest_duration_seconds",
			Help:    "Duration of ingestion runs in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rosa_sessions_active",
			Help: "Number of dashboard sessions held in memory",
		}),
	}

	m.registry.MustRegister(
		m.ExportsTotal,
		m.ContactsExportedTotal,
		m.ExportsEmptyTotal,
		m.ResetsTotal,
		m.RecordsLoaded,
		m.LoadErrorsTotal,
		m.IngestRunsTotal,
		m.IngestDuration,
		m.SessionsActive,
	)
	return m
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
