package delivery

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Push dispatch attempts partitioned by classified outcome
	pushDispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "push_dispatch_attempts_total",
			Help: "Total push dispatch attempts by outcome classification",
		},
		[]string{"outcome"},
	)

	// Dispatch latency in seconds
	pushDispatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "push_dispatch_duration_seconds",
			Help:    "Push dispatch latencies in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Campaigns finished by terminal status
	campaignsFinishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaigns_finished_total",
			Help: "Total campaigns that reached a terminal status",
		},
		[]string{"status"},
	)

	// Subscribers deactivated after their endpoint was reported gone
	subscribersDeactivatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "subscribers_deactivated_total",
			Help: "Total subscribers deactivated due to gone push endpoints",
		},
	)
)
