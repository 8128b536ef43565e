// Package metrics holds the Prometheus collectors shared by the HTTP layer,
// the review service and the range cache.
//
// Labels are kept to bounded sets: HTTP paths use the registered chi route
// pattern, never the raw URL.
package metrics

import (
	"sync/atomic"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// HTTPRequests counts requests by method, route pattern, and status code.
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "washroom_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPLatency records request duration in seconds by method and route pattern.
	HTTPLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "washroom_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "washroom_http_requests_inflight",
			Help: "Current number of in-flight HTTP requests.",
		},
	)

	// ReviewMutations counts review operations by kind (create, update, edit,
	// delete) and outcome (ok or the apperr kind).
	ReviewMutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "washroom_review_mutations_total",
			Help: "Review mutations by operation and outcome.",
		},
		[]string{"op", "outcome"},
	)

	DuplicatesRemoved = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "washroom_review_duplicates_removed_total",
		Help: "Duplicate reviews deleted while converging a (facility, author) pair.",
	})

	Recomputations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "washroom_aggregate_recomputations_total",
		Help: "Facility aggregate recomputations.",
	})

	TxRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "washroom_tx_retries_total",
			Help: "Transaction retries by operation.",
		},
		[]string{"op"},
	)

	RangeCacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "washroom_range_cache_hits_total",
		Help: "Range query cache hits.",
	})

	RangeCacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "washroom_range_cache_misses_total",
		Help: "Range query cache misses.",
	})

	CacheInvalidationFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "washroom_range_cache_invalidation_failures_total",
		Help: "Range cache invalidations that failed after a retry.",
	})

	ImportedFacilities = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "washroom_import_rows_total",
			Help: "Open-data rows processed by the importer, by result.",
		},
		[]string{"result"},
	)
)

// poolSource is read on every scrape; nil reports zeros.
var poolSource atomic.Pointer[func() *pgxpool.Stat]

// ObservePool points the pool gauges at stat. The last call wins.
func ObservePool(stat func() *pgxpool.Stat) {
	poolSource.Store(&stat)
}

func poolGauge(name, help string, read func(*pgxpool.Stat) float64) prometheus.GaugeFunc {
	return prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, func() float64 {
		fn := poolSource.Load()
		if fn == nil || *fn == nil {
			return 0
		}
		stat := (*fn)()
		if stat == nil {
			return 0
		}
		return read(stat)
	})
}

// Pool gauges read pgxpool statistics at scrape time.
var (
	PoolAcquiredConns = poolGauge("washroom_db_pool_acquired_conns", "Connections currently checked out of the pool.",
		func(s *pgxpool.Stat) float64 { return float64(s.AcquiredConns()) })
	PoolIdleConns = poolGauge("washroom_db_pool_idle_conns", "Idle connections in the pool.",
		func(s *pgxpool.Stat) float64 { return float64(s.IdleConns()) })
	PoolTotalConns = poolGauge("washroom_db_pool_total_conns", "Open connections in the pool.",
		func(s *pgxpool.Stat) float64 { return float64(s.TotalConns()) })
	PoolMaxConns = poolGauge("washroom_db_pool_max_conns", "Configured maximum pool size.",
		func(s *pgxpool.Stat) float64 { return float64(s.MaxConns()) })
)

func init() {
	prometheus.MustRegister(
		HTTPRequests,
		HTTPLatency,
		HTTPInflight,
		ReviewMutations,
		DuplicatesRemoved,
		Recomputations,
		TxRetries,
		RangeCacheHits,
		RangeCacheMisses,
		CacheInvalidationFailures,
		ImportedFacilities,
		PoolAcquiredConns,
		PoolIdleConns,
		PoolTotalConns,
		PoolMaxConns,
	)
}
