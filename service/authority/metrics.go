package authority

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	recomputeCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crawlrank",
		Name:      "authority_recomputations_total",
		Help:      "The number of authority score recomputations by outcome.",
	}, []string{"outcome"})

	recomputeTime = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "crawlrank",
		Name:      "authority_recomputation_seconds",
		Help:      "The time spent recomputing authority scores.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
	})
)

// ObserveRecompute records the outcome and duration of a recomputation.
func ObserveRecompute(elapsed time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	recomputeCount.WithLabelValues(outcome).Inc()
	recomputeTime.Observe(elapsed.Seconds())
}
