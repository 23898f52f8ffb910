// Package metrics holds the Prometheus collectors shared by the pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// UnrecognizedShapes counts nested values the aggregator or correlator
	// could not interpret and skipped.
	UnrecognizedShapes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ganabosques",
		Name:      "unrecognized_shapes_total",
		Help:      "Values skipped because their JSON shape was not recognized.",
	}, []string{"component"})

	// BatchChunks counts chunk requests issued by the batched fetcher.
	BatchChunks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ganabosques",
		Name:      "batch_chunks_total",
		Help:      "Chunk requests issued by batched fetches.",
	})

	// BatchMixed counts batched fetches whose partials mixed arrays and objects.
	BatchMixed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ganabosques",
		Name:      "batch_mixed_total",
		Help:      "Batched fetches returned unmerged because partial shapes differed.",
	})

	// ReportExports counts PDF exports by result ("ok" or "error").
	ReportExports = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ganabosques",
		Name:      "report_exports_total",
		Help:      "Report PDF exports by result.",
	}, []string{"result"})
)

var registry = prometheus.NewRegistry()

func init() {
	registry.MustRegister(UnrecognizedShapes, BatchChunks, BatchMixed, ReportExports)
}

// Handler serves the collectors in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
