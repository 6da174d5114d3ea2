// Package metrics описывает Prometheus-метрики сервиса.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// повторная регистрация коллектора в registry вызывает panic
	once sync.Once

	// HTTPRequestsTotal число обработанных запросов.
	// route берётся из шаблона маршрута (/:code), а не из реального пути.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency distributions.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	HTTPInflightRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Current number of in-flight HTTP requests.",
		},
	)

	LinksIssued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shortlink_links_issued_total",
			Help: "Short codes issued from the sequence.",
		},
	)

	// SequenceErrors отказы выдачи идентификатора; reason: unavailable, collision
	SequenceErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shortlink_sequence_errors_total",
			Help: "Failures while issuing identifiers.",
		},
		[]string{"reason"},
	)

	// CacheOperations layer: local, redis; result: hit, miss, error
	CacheOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shortlink_cache_operations_total",
			Help: "Link cache lookups by layer and result.",
		},
		[]string{"layer", "result"},
	)

	ClicksDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shortlink_clicks_dropped_total",
			Help: "Click events dropped because the queue was full.",
		},
	)

	RateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shortlink_rate_limited_total",
			Help: "Requests rejected by the rate limiter.",
		},
		[]string{"limiter"},
	)
)

// Init регистрирует метрики в registry по умолчанию, повторные вызовы ничего не делают
func Init() {
	once.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDurationSeconds,
			HTTPInflightRequests,
			LinksIssued,
			SequenceErrors,
			CacheOperations,
			ClicksDropped,
			RateLimited,
		)
	})
}
