// Package metrics provides Prometheus metrics for the price service.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ExchangeFetchTotal counts price fetches per exchange by outcome.
	ExchangeFetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exchange_fetch_total",
			Help: "Total number of price fetches per exchange by outcome",
		},
		[]string{"exchange", "outcome"},
	)

	// ExchangeFetchDuration is a histogram of single price fetch latencies.
	ExchangeFetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "exchange_fetch_duration_seconds",
			Help:    "Duration of a price fetch against one exchange, fallbacks included",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"exchange"},
	)

	// ExchangeRequestsTotal counts individual HTTP requests sent to exchanges.
	ExchangeRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exchange_requests_total",
			Help: "Total number of HTTP requests sent to exchange APIs",
		},
		[]string{"exchange", "endpoint", "status"},
	)

	// AutoSourceSelectedTotal counts which exchange won an auto-mode price request.
	AutoSourceSelectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auto_source_selected_total",
			Help: "Number of auto-mode price requests answered by each exchange",
		},
		[]string{"exchange"},
	)

	// SpreadPercent is the last computed cross-exchange spread per symbol.
	SpreadPercent = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "spread_percent",
			Help: "Last computed cross-exchange spread in percent",
		},
		[]string{"symbol"},
	)

	// SpreadQuotes is the number of exchanges that contributed to the last spread.
	SpreadQuotes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "spread_quotes",
			Help: "Number of exchange quotes used in the last spread computation",
		},
		[]string{"symbol"},
	)

	// AggregationDuration is a histogram of aggregator operation durations.
	AggregationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "price_aggregation_duration_seconds",
			Help:    "Duration of price aggregation operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// HTTPRequestsTotal is a counter of total HTTP requests.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"endpoint", "status"},
	)

	// HTTPRequestDuration is a histogram of HTTP request latencies.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 5, 15},
		},
		[]string{"endpoint"},
	)

	// CacheLookupsTotal counts quote cache lookups by result.
	CacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_lookups_total",
			Help: "Quote cache lookups by backend and result",
		},
		[]string{"backend", "result"},
	)

	// SinkWritesTotal counts history sink writes by status.
	SinkWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sink_writes_total",
			Help: "Price history rows handed to the sink by status",
		},
		[]string{"status"},
	)

	// WebSocketClients is the number of connected stream clients.
	WebSocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_clients",
			Help: "Number of connected WebSocket stream clients",
		},
	)
)

var registerOnce sync.Once

// Init registers all collectors with the default registry. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			ExchangeFetchTotal,
			ExchangeFetchDuration,
			ExchangeRequestsTotal,
			AutoSourceSelectedTotal,
			SpreadPercent,
			SpreadQuotes,
			AggregationDuration,
			HTTPRequestsTotal,
			HTTPRequestDuration,
			CacheLookupsTotal,
			SinkWritesTotal,
			WebSocketClients,
		)
	})
}

// ServeHTTP serves Prometheus metrics on the specified address and path.
func ServeHTTP(addr, path string) error {
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return server.ListenAndServe()
}

// RecordExchangeFetch records the outcome and duration of one client fetch.
func RecordExchangeFetch(exchange, outcome string, duration time.Duration) {
	ExchangeFetchTotal.WithLabelValues(exchange, outcome).Inc()
	ExchangeFetchDuration.WithLabelValues(exchange).Observe(duration.Seconds())
}

// RecordExchangeRequest records a single HTTP request to an exchange.
func RecordExchangeRequest(exchange, endpoint, status string) {
	ExchangeRequestsTotal.WithLabelValues(exchange, endpoint, status).Inc()
}

// RecordAutoSelection records the exchange that answered an auto-mode request.
func RecordAutoSelection(exchange string) {
	AutoSourceSelectedTotal.WithLabelValues(exchange).Inc()
}

// RecordSpread records the latest spread for a symbol.
func RecordSpread(symbol string, percent float64, quotes int) {
	SpreadPercent.WithLabelValues(symbol).Set(percent)
	SpreadQuotes.WithLabelValues(symbol).Set(float64(quotes))
}

// RecordAggregation records a price aggregation operation.
func RecordAggregation(method string, duration time.Duration) {
	AggregationDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, status string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordCacheLookup records a cache hit or miss.
func RecordCacheLookup(backend string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheLookupsTotal.WithLabelValues(backend, result).Inc()
}

// RecordSinkWrite records rows handed to the history sink.
func RecordSinkWrite(status string, rows int) {
	SinkWritesTotal.WithLabelValues(status).Add(float64(rows))
}
