// Package metrics exposes prometheus instrumentation for proxied requests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector registers and records all gateway metrics.
type Collector struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	tokensTotal     *prometheus.CounterVec
	inFlight        prometheus.Gauge
}

// NewCollector creates a collector with its own registry.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "streamgate",
			Name:      "requests_total",
			Help:      "Proxied chat completion requests by model, mode and status.",
		}, []string{"model", "streaming", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "streamgate",
			Name:      "request_duration_seconds",
			Help:      "End-to-end request duration.",
			// LLM request latencies run from sub-second to tens of seconds
			Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0, 120.0},
		}, []string{"model", "streaming"}),
		tokensTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "streamgate",
			Name:      "tokens_total",
			Help:      "Token totals by model and kind (prompt/completion).",
		}, []string{"model", "kind"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "streamgate",
			Name:      "requests_in_flight",
			Help:      "Requests currently being proxied.",
		}),
	}

	registry.MustRegister(c.requestsTotal, c.requestDuration, c.tokensTotal, c.inFlight)
	return c
}

// RequestStarted marks a request as in flight.
func (c *Collector) RequestStarted() {
	c.inFlight.Inc()
}

// RequestFinished records a completed request.
func (c *Collector) RequestFinished(model string, streaming bool, status int, duration time.Duration, promptTokens, completionTokens int) {
	c.inFlight.Dec()

	streamLabel := strconv.FormatBool(streaming)
	c.requestsTotal.WithLabelValues(model, streamLabel, strconv.Itoa(status)).Inc()
	c.requestDuration.WithLabelValues(model, streamLabel).Observe(duration.Seconds())
	if promptTokens > 0 {
		c.tokensTotal.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		c.tokensTotal.WithLabelValues(model, "completion").Add(float64(completionTokens))
	}
}

// Handler returns the /metrics endpoint handler.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}
