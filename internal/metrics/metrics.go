// Package metrics defines the Prometheus instrumentation for a crawl run.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PagesFetchedTotal counts successful fetches, labeled by fetch mode.
	PagesFetchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitemd_pages_fetched_total",
			Help: "Total number of pages fetched successfully, labeled by mode.",
		},
		[]string{"mode"},
	)

	// PagesFailedTotal counts pages that did not make it to disk, labeled by
	// the pipeline stage where they failed.
	PagesFailedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitemd_pages_failed_total",
			Help: "Total number of pages that failed, labeled by stage.",
		},
		[]string{"stage"},
	)

	// PagesWrittenTotal counts Markdown files written to the output directory.
	PagesWrittenTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sitemd_pages_written_total",
			Help: "Total number of Markdown files written.",
		},
	)

	// SitemapURLsDiscovered counts page URLs collected during sitemap discovery.
	SitemapURLsDiscovered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sitemd_sitemap_urls_discovered_total",
			Help: "Total number of page URLs discovered from sitemaps.",
		},
	)

	// FetchBytesTotal counts body bytes fetched, labeled by mode.
	FetchBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitemd_fetch_bytes_total",
			Help: "Total number of response body bytes fetched, labeled by mode.",
		},
		[]string{"mode"},
	)

	// FetchDurationSeconds observes per-page fetch latency, labeled by mode.
	FetchDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sitemd_fetch_duration_seconds",
			Help:    "Histogram of page fetch latencies, labeled by mode.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"mode"},
	)
)
