package proxy

import "github.com/prometheus/client_golang/prometheus"

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gemchat_proxy_requests_total",
			Help: "Proxy function requests by mode and outcome.",
		},
		[]string{"mode", "outcome"},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gemchat_proxy_request_duration_seconds",
			Help:    "Proxy function latency including the gateway round trip.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"mode"},
	)
)

func init() {
	prometheus.MustRegister(requestsTotal)
	prometheus.MustRegister(requestDuration)
}
