package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	challengesIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "otpgate_challenges_issued_total",
		Help: "Number of OTP challenges issued",
	})

	verifyOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "otpgate_verify_outcomes_total",
		Help: "Number of OTP verifications by outcome",
	}, []string{"outcome"})

	storeLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "otpgate_store_duration_seconds",
		Help:    "Latency of ledger store operations",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
	}, []string{"op"})
)
