package rag

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ingestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wolfie_rag_ingest_total",
			Help: "Document ingestions by result.",
		},
		[]string{"result"},
	)
	chunksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wolfie_rag_chunks_stored_total",
		Help: "Chunks written to the vector store.",
	})
	queryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wolfie_rag_query_total",
			Help: "Questions by result.",
		},
		[]string{"result"},
	)
	queryDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "wolfie_rag_query_seconds",
		Help:    "Time to retrieve and generate an answer.",
		Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 30, 60, 120},
	})
)

func init() {
	prometheus.MustRegister(ingestTotal, chunksTotal, queryTotal, queryDuration)
}
