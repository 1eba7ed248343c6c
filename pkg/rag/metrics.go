package rag

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var requestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "wolfie_rag_client_request_seconds",
		Help:    "Latency of calls to the RAG service by operation and status code.",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	},
	[]string{"op", "code"},
)

func init() {
	prometheus.MustRegister(requestDuration)
}

func observe(op string, status int, d time.Duration) {
	requestDuration.WithLabelValues(op, strconv.Itoa(status)).Observe(d.Seconds())
}
