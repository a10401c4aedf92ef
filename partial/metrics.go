package partial

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeConverged   = "converged"
	outcomeConvergence = "convergence_error"
	outcomeError       = "error"
)

var (
	optimizationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mladp_partial_optimizations_total",
		Help: "Partial re-optimizations by outcome",
	}, []string{"outcome"})

	objectiveEvaluations = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mladp_partial_objective_evaluations",
		Help:    "Slice evaluations per partial re-optimization",
		Buckets: prometheus.ExponentialBuckets(1, 4, 8),
	})
)
