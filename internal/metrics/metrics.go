// Package metrics provides Prometheus metrics for the TCG Sorter application.
// Scrape these at /metrics for Grafana dashboards and alerting.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tcg_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tcg_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Price Worker Metrics
	PriceUpdatesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tcg_price_updates_total",
			Help: "Total number of card prices updated",
		},
	)

	PriceUpdatesToday = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tcg_price_updates_today",
			Help: "Number of card prices updated today (resets at midnight)",
		},
	)

	PriceQueueSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tcg_price_queue_size",
			Help: "Number of cards waiting in the priority refresh queue",
		},
	)

	PriceBatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tcg_price_batch_duration_seconds",
			Help:    "Time taken to process a price update batch",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	PriceHistoryEntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tcg_price_history_entries_total",
			Help: "Price history entries appended",
		},
		[]string{"currency"},
	)

	// Scryfall API Metrics
	ScryfallRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tcg_scryfall_requests_total",
			Help: "Total number of Scryfall API requests made",
		},
		[]string{"endpoint", "result"}, // result: "ok", "not_found", "error"
	)

	ScryfallLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tcg_scryfall_latency_seconds",
			Help:    "Scryfall API call latency",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
	)

	ScryfallCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tcg_scryfall_cache_hits_total",
			Help: "Scryfall lookup cache hit count",
		},
	)

	ScryfallCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tcg_scryfall_cache_misses_total",
			Help: "Scryfall lookup cache miss count",
		},
	)

	// Collection Metrics
	CollectionCardsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tcg_collection_cards_total",
			Help: "Total number of cards in collection",
		},
	)

	CollectionValueUSD = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tcg_collection_value_usd",
			Help: "Total estimated value of collection in USD",
		},
	)

	CollectionCardsByTier = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tcg_collection_cards_by_tier",
			Help: "Number of cards in collection by price tier",
		},
		[]string{"tier"},
	)

	CollectionValueByTier = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tcg_collection_value_by_tier_usd",
			Help: "Collection value in USD by price tier",
		},
		[]string{"tier"},
	)

	// Card Database Metrics
	CardDatabaseSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tcg_card_database_size",
			Help: "Number of unique cards in the database",
		},
	)

	// Scan Metrics
	ScansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tcg_scans_total",
			Help: "Total number of scanned cards recorded",
		},
		[]string{"result"}, // "matched", "review", "failed"
	)

	ScanConfidenceHistogram = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tcg_scan_confidence",
			Help:    "Match confidence of recorded scans",
			Buckets: []float64{0.1, 0.3, 0.5, 0.6, 0.7, 0.75, 0.8, 0.9, 0.95, 1.0},
		},
	)

	// Sorting Metrics
	SortingRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tcg_sorting_runs_total",
			Help: "Sorting previews and applies by criterion and outcome",
		},
		[]string{"criterion", "phase", "result"}, // phase: "preview", "apply"; result: "ok", "invalid", "empty", "stale", "error"
	)

	SortingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tcg_sorting_duration_seconds",
			Help:    "Time taken to preview or apply a sorting run",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"phase"},
	)

	SortingCardsAssigned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tcg_sorting_cards_assigned_total",
			Help: "Scanned cards given a bin by an applied sorting run",
		},
	)

	SortingUnknownCards = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tcg_sorting_unknown_cards_total",
			Help: "Scanned cards left unbinned because their sort key was unknown",
		},
	)

	// Notification Metrics
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tcg_notifications_total",
			Help: "Sorting complete notifications by sink and outcome",
		},
		[]string{"sink", "result"}, // sink: "events", "amqp", "log"
	)

	EventSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tcg_event_subscribers",
			Help: "Number of connected event stream clients",
		},
	)
)
