package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// IndexHits tracks membership checks answered from Redis
	IndexHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "connsync_index_hits_total",
			Help: "Total number of existence checks answered from the identity index",
		},
	)

	// IndexMisses tracks absent or stale fingerprints
	IndexMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "connsync_index_misses_total",
			Help: "Total number of identity index lookups with a missing or stale fingerprint",
		},
	)

	// IndexRebuilds tracks sets rebuilt from a collection document
	IndexRebuilds = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "connsync_index_rebuilds_total",
			Help: "Total number of identity index rebuilds",
		},
	)

	// IndexErrors tracks Redis operation errors
	IndexErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connsync_index_errors_total",
			Help: "Total number of identity index operation errors",
		},
		[]string{"operation"}, // "fingerprint", "contains", "rebuild", "delete"
	)
)
