// Package metrics holds the prometheus collectors shared by the pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline metrics
var (
	ReelRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelsaver_reel_requests_total",
			Help: "Total number of processReel requests handled by the coordinator",
		},
		[]string{"outcome"}, // "success", "processing_error", "download_error"
	)

	ReelProcessingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reelsaver_reel_processing_duration_seconds",
			Help:    "Time from request receipt to result, per outcome",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"outcome"},
	)

	ServiceResponseBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reelsaver_service_response_bytes",
			Help:    "Size of processed videos returned by the service",
			Buckets: prometheus.ExponentialBuckets(64*1024, 4, 8),
		},
	)
)

// Download metrics
var (
	DownloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelsaver_downloads_total",
			Help: "Total number of downloads by final status",
		},
		[]string{"status"}, // "complete", "failed", "canceled", "rejected"
	)

	DownloadsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reelsaver_downloads_in_flight",
			Help: "Number of downloads currently being written",
		},
	)

	BlobsLive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reelsaver_blobs_live",
			Help: "Number of blob URLs that have not been revoked",
		},
	)
)

// Page and bridge metrics
var (
	ControlsAttachedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reelsaver_controls_attached_total",
			Help: "Total number of trigger controls attached to video containers",
		},
	)

	WatcherScansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelsaver_watcher_scans_total",
			Help: "Total number of video rescans by cause",
		},
		[]string{"cause"}, // "startup", "mutation", "interval"
	)

	BridgeMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelsaver_bridge_messages_total",
			Help: "Messages sent over the bridge by action and disposition",
		},
		[]string{"action", "disposition"}, // "replied", "dropped", "unavailable"
	)

	NotificationsShownTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelsaver_notifications_shown_total",
			Help: "Notifications shown in the page by kind",
		},
		[]string{"kind"}, // "success", "error"
	)
)
