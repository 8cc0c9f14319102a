// Package observability provides Prometheus metrics and OpenTelemetry
// tracing for duplex exchanges, contributed to the transport catalog as the
// "metrics" and "tracing" interceptors.
package observability

import "github.com/prometheus/client_golang/prometheus"

// ExchangeBuckets defines histogram buckets for exchange latencies, from
// 1ms to 30s.
var ExchangeBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30}

var (
	// ExchangesTotal counts completed exchanges by transport, namespace and
	// status class.
	ExchangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duplex_exchanges_total",
			Help: "Completed exchanges",
		},
		[]string{"transport", "namespace", "status"},
	)

	// ExchangeDuration records exchange duration in seconds.
	ExchangeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duplex_exchange_duration_seconds",
			Help:    "Exchange duration",
			Buckets: ExchangeBuckets,
		},
		[]string{"transport", "namespace"},
	)

	// ExchangesInFlight tracks exchanges currently being handled.
	ExchangesInFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "duplex_exchanges_in_flight",
			Help: "Exchanges in flight",
		},
		[]string{"transport"},
	)

	// PartialsTotal counts partial responses delivered ahead of a terminal
	// response.
	PartialsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duplex_partial_responses_total",
			Help: "Partial responses sent",
		},
		[]string{"transport"},
	)
)

func init() {
	prometheus.MustRegister(
		ExchangesTotal,
		ExchangeDuration,
		ExchangesInFlight,
		PartialsTotal,
	)
}

// RegisterConnectionGauge exposes the number of open persistent
// connections, as reported by count, on reg.
func RegisterConnectionGauge(reg prometheus.Registerer, count func() int) error {
	return reg.Register(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "duplex_websocket_connections",
			Help: "Open WebSocket connections",
		},
		func() float64 { return float64(count()) },
	))
}
