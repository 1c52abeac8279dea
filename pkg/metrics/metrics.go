package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Scan metrics
var (
	ScansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yomuyume_scans_total",
			Help: "Total number of library scans",
		},
		[]string{"status"}, // "completed", "failed"
	)

	ScanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "yomuyume_scan_duration_seconds",
			Help:    "Library scan duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
	)

	ScanRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "yomuyume_scan_running",
			Help: "Whether a scan is currently running (1 = running, 0 = idle)",
		},
	)

	CategoriesDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "yomuyume_categories_deleted_total",
			Help: "Total number of categories removed by the orphan sweep",
		},
	)

	TitlesDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "yomuyume_titles_deleted_total",
			Help: "Total number of titles removed by the orphan sweep",
		},
	)
)

// Title metrics
var (
	TitlesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yomuyume_titles_total",
			Help: "Total number of titles reconciled, by outcome",
		},
		[]string{"outcome"}, // "unchanged", "moved", "encoded", "failed"
	)

	PagesHashed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "yomuyume_pages_hashed_total",
			Help: "Total number of pages hashed",
		},
	)

	PageHashFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "yomuyume_page_hash_failures_total",
			Help: "Total number of pages that could not be decoded",
		},
	)
)

// Transcode metrics
var (
	TranscodesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yomuyume_transcodes_total",
			Help: "Total number of image decodes, by method and result",
		},
		[]string{"method", "result"}, // method: "native", "djxl", "ffmpeg"; result: "ok", "error", "unavailable"
	)

	TranscodeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "yomuyume_transcode_duration_seconds",
			Help:    "Image decode duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)
