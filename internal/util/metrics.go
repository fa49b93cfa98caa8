package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "catalog_api_request_duration_seconds",
		Help:    "Latency of calls to the remote product/review API",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "outcome"})

	QueryFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "query_fetches_total",
		Help: "Request cache lookups by key kind and result (hit, joined, fetched, error)",
	}, []string{"kind", "result"})

	QueryInvalidationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "query_invalidations_total",
		Help: "Total number of request cache invalidations",
	}, []string{"kind"})

	QueryDiscardedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "query_discarded_responses_total",
		Help: "Responses not committed because the entry was invalidated while in flight",
	}, []string{"kind"})

	QueryEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "query_cache_entries",
		Help: "Current number of request cache entries",
	})

	MutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mutations_total",
		Help: "Mutations by kind and result",
	}, []string{"kind", "result"})

	ValidationRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "form_validation_rejections_total",
		Help: "Form submissions blocked by client-side validation",
	}, []string{"form"})

	CatalogEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_events_total",
		Help: "Catalog events by direction and type",
	}, []string{"direction", "type"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
