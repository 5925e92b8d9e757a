// Package metrics holds the Prometheus collectors of a twitvid process.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "twitvid"

// Metrics groups every collector on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	Resolves        *prometheus.CounterVec // by provider, result
	ResolveDuration *prometheus.HistogramVec
	CacheLookups    *prometheus.CounterVec // by result: hit, miss

	DownloadBytes prometheus.Counter
	Uploads       *prometheus.CounterVec // by result
	UploadBytes   prometheus.Counter
	CodeConflicts prometheus.Counter
	LinkLookups   *prometheus.CounterVec // by result: found, not_found
}

// New creates the collectors and registers them, together with the Go and
// process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status code",
		}, []string{"route", "method", "code"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		Resolves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "requests_total",
			Help:      "Video resolve attempts by provider and result",
		}, []string{"provider", "result"}),
		ResolveDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "duration_seconds",
			Help:      "Upstream API latency by provider",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"provider"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "cache_lookups_total",
			Help:      "Resolve cache lookups by result",
		}, []string{"result"}),
		DownloadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "download",
			Name:      "bytes_total",
			Help:      "Media bytes streamed to clients",
		}),
		Uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upload",
			Name:      "requests_total",
			Help:      "Image uploads by result",
		}, []string{"result"}),
		UploadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upload",
			Name:      "bytes_total",
			Help:      "Bytes of accepted uploads",
		}),
		CodeConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upload",
			Name:      "short_code_conflicts_total",
			Help:      "Short code collisions that forced a retry",
		}),
		LinkLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "shortlink",
			Name:      "lookups_total",
			Help:      "Short link resolutions by result",
		}, []string{"result"}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequests,
		m.HTTPDuration,
		m.Resolves,
		m.ResolveDuration,
		m.CacheLookups,
		m.DownloadBytes,
		m.Uploads,
		m.UploadBytes,
		m.CodeConflicts,
		m.LinkLookups,
	)
	return m
}
