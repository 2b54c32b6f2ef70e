package syncer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for sync runs.
var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connsync_runs_total",
		Help: "Finished runs by platform and status",
	}, []string{"platform", "status"})

	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "connsync_run_duration_seconds",
		Help:    "Run duration in seconds by platform",
		Buckets: []float64{1, 5, 15, 60, 300, 900},
	}, []string{"platform"})

	runsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "connsync_runs_active",
		Help: "Runs currently in progress",
	})

	pagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connsync_pages_total",
		Help: "Listing pages fetched by platform",
	}, []string{"platform"})

	itemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connsync_items_total",
		Help: "Listing items by platform and decision (new, duplicate, skipped)",
	}, []string{"platform", "decision"})
)
