package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crawlrank",
		Name:      "api_requests_total",
		Help:      "The number of API requests by endpoint and status code.",
	}, []string{"endpoint", "code"})

	requestTime = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "crawlrank",
		Name:      "api_request_seconds",
		Help:      "The time spent serving API requests.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"endpoint"})

	queryResults = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "crawlrank",
		Name:      "search_results",
		Help:      "The number of documents matched by search queries.",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
	})

	ingestedDocs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crawlrank",
		Name:      "ingested_documents_total",
		Help:      "The number of document ingestion requests by outcome.",
	}, []string{"outcome"})

	ingestedLinks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "crawlrank",
		Name:      "ingested_links_total",
		Help:      "The number of ingested links.",
	})
)
