package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(callsTotal, callLatencyMs, callRetriesTotal) }

var callsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "extraction_calls_total",
		Help: "Inference calls by final status (succeeded/failed/timed_out).",
	},
	[]string{"status"},
)

var callLatencyMs = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "extraction_call_latency_ms",
		Help:    "Inference call latency distribution in milliseconds.",
		Buckets: []float64{250, 500, 1000, 2500, 5000, 10000, 30000, 60000, 120000},
	},
	[]string{"status"},
)

var callRetriesTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "extraction_call_retries_total",
		Help: "Per-call retry attempts beyond the first.",
	},
)

func ObserveCall(status string, latencyMs int) {
	callsTotal.WithLabelValues(norm(status)).Inc()
	callLatencyMs.WithLabelValues(norm(status)).Observe(float64(latencyMs))
}

func IncCallRetry() { callRetriesTotal.Inc() }
