// pkg/metrics/metrics.go

// Package metrics holds the process-wide prometheus collectors. They are
// registered on the default registry at init and served by `prov watch`.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ResolveTotal counts resolver lookups by cache result (hit, miss).
	ResolveTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prov_resolve_total",
		Help: "Resolver lookups by cache result",
	}, []string{"result"})

	SyncDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "prov_sync_duration_seconds",
		Help:    "Sync duration in seconds by mode",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"mode"})

	// ArtifactsTotal counts generated artifacts by kind and result (written,
	// unchanged, failed).
	ArtifactsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prov_artifacts_total",
		Help: "Generated artifacts by item kind and result",
	}, []string{"kind", "result"})

	ManagerOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prov_manager_operations_total",
		Help: "Service manager operations by manager, operation and result",
	}, []string{"manager", "op", "result"})

	TriggerRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prov_trigger_runs_total",
		Help: "Trigger hook runs by hook class and result",
	}, []string{"class", "result"})

	InventoryItems = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "prov_inventory_items",
		Help: "Items in the inventory by kind",
	}, []string{"kind"})
)

// Result maps an error onto the "ok"/"error" label value.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
