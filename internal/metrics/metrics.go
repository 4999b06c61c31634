// Package metrics exposes the pipeline's ambient process metrics over
// Prometheus's text exposition format. The teacher's own rollup files
// (miner/worker.go) instrument themselves through go-ethereum's
// metrics.NewRegisteredCounter/Timer, which can optionally fan out to a
// Prometheus exporter; this binary has no embedded geth metrics system to
// piggyback on, so it wires github.com/prometheus/client_golang directly
// via promauto, the standard way a standalone Go service in this
// ecosystem (e.g. prysm's monitoring package) exposes a /metrics
// endpoint.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	L1BlockHeight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "facet_derivation_l1_block_height",
		Help: "L1 block number the derivation pipeline has most recently processed.",
	})

	MintTotalMinted = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "facet_mint_total_minted",
		Help: "Cumulative FCT minted, as tracked by the mint controller.",
	})

	PrefetchQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "facet_prefetch_queue_depth",
		Help: "Number of L1 blocks currently scheduled or in flight in the prefetcher.",
	})

	DerivedBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "facet_derived_blocks_total",
		Help: "Total number of L2 blocks produced by the proposer, including filler blocks.",
	})

	BatchesDiscardedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "facet_batches_discarded_total",
		Help: "Total number of parsed batches discarded, partitioned by reason.",
	}, []string{"reason"})
)

// Handler returns the HTTP handler to mount at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
