// Package metrics exposes Prometheus instrumentation for the subsystems
// spec.md identifies: open catalogues, archived bytes, lane health, and
// wire protocol activity.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	OpenCatalogues = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fdb_open_catalogues",
			Help: "Number of catalogues currently held open in the process-wide LRU.",
		},
	)

	ArchiveBytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fdb_archive_bytes_total",
			Help: "Total bytes archived, by store backend.",
		},
		[]string{"backend"},
	)

	ArchiveFieldsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fdb_archive_fields_total",
			Help: "Total fields archived, by database.",
		},
		[]string{"database"},
	)

	LaneDisabled = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fdb_lane_disabled",
			Help: "Whether a dist lane is currently disabled (1) or writable (0).",
		},
		[]string{"lane"},
	)

	ListDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fdb_list_duration_seconds",
			Help:    "Latency of list operations.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"dispatch_type"},
	)

	RemoteRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fdb_remote_requests_total",
			Help: "Total wire protocol requests handled, by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	WipeOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fdb_wipe_operations_total",
			Help: "Total wipe operations, by whether they were a dry run.",
		},
		[]string{"doit"},
	)

	PurgeBytesReclaimedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fdb_purge_bytes_reclaimed_total",
			Help: "Total bytes reclaimed by purge operations.",
		},
	)
)

func init() {
	prometheus.MustRegister(OpenCatalogues)
	prometheus.MustRegister(ArchiveBytesTotal)
	prometheus.MustRegister(ArchiveFieldsTotal)
	prometheus.MustRegister(LaneDisabled)
	prometheus.MustRegister(ListDuration)
	prometheus.MustRegister(RemoteRequestsTotal)
	prometheus.MustRegister(WipeOperationsTotal)
	prometheus.MustRegister(PurgeBytesReclaimedTotal)
}

// Handler returns the Prometheus scrape handler, for wiring into
// whatever HTTP mux the `fdb status` / server command exposes.
func Handler() http.Handler {
	return promhttp.Handler()
}
