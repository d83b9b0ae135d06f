// Package metrics holds the Prometheus collectors shared by the feed client,
// the streamer, the cache backends and the HTTP server. Collectors register
// with the default registry at init and are served on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	FeedRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nvdsync_feed_requests_total",
		Help: "Feed requests by outcome (ok, status, transport, decode, cancelled).",
	}, []string{"outcome"})

	FeedDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "nvdsync_feed_request_duration_milliseconds",
		Help:    "Time to fetch and decode one feed response.",
		Buckets: prometheus.ExponentialBuckets(50, 2, 10),
	})

	FeedBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nvdsync_feed_response_bytes_total",
		Help: "Bytes read from feed response bodies.",
	})

	RowsEmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nvdsync_rows_emitted_total",
		Help: "Rows written to a sink, by table.",
	}, []string{"table"})

	StreamFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nvdsync_stream_failures_total",
		Help: "Table streams that ended with an error.",
	}, []string{"table"})

	Upserts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nvdsync_cache_upserts_total",
		Help: "Records upserted into the cache, by backend and outcome.",
	}, []string{"backend", "outcome"})

	UpsertDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nvdsync_cache_upsert_duration_milliseconds",
		Help:    "Duration of one Upsert call, by backend.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 14),
	}, []string{"backend"})

	LookupCache = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nvdsync_cache_lookups_total",
		Help: "Cache entry lookups by result (hit, miss).",
	}, []string{"result"})

	ResponseDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nvdsync_api_response_duration_milliseconds",
		Help:    "The duration of time it takes to write a response to an API request.",
		Buckets: prometheus.ExponentialBuckets(9.375, 2, 10),
	}, []string{"route", "code"})
)

func init() {
	prometheus.MustRegister(
		FeedRequests,
		FeedDuration,
		FeedBytes,
		RowsEmitted,
		StreamFailures,
		Upserts,
		UpsertDuration,
		LookupCache,
		ResponseDuration,
	)
}

// Milliseconds returns the time elapsed since start in fractional milliseconds.
func Milliseconds(start time.Time) float64 {
	return float64(time.Since(start).Nanoseconds()) / float64(time.Millisecond)
}
