// Package metrics exposes Prometheus metrics for coverage evaluation runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"coverplan/internal/coverage"
)

// Registry is the custom prometheus registry for the application.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

// EntitiesByStatus tracks how many (entity, day) results the last evaluation
// produced per status, before covered suppression.
var EntitiesByStatus = factory.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "coverplan",
	Name:      "entities_by_status",
	Help:      "Entity-day results of the last evaluation run, by coverage status",
}, []string{"status"})

// DaysEvaluated tracks the day count of the last evaluation window.
var DaysEvaluated = factory.NewGauge(prometheus.GaugeOpts{
	Namespace: "coverplan",
	Name:      "days_evaluated",
	Help:      "Number of days in the last evaluated window",
})

// AmbiguousNameMatches counts vacation entries whose fuzzy name match hit more
// than one roster employee.
var AmbiguousNameMatches = factory.NewCounter(prometheus.CounterOpts{
	Namespace: "coverplan",
	Name:      "ambiguous_name_matches_total",
	Help:      "Vacation calendar entries matching more than one roster employee",
})

// EvaluationDuration observes wall time of evaluation runs.
var EvaluationDuration = factory.NewHistogram(prometheus.HistogramOpts{
	Namespace: "coverplan",
	Name:      "evaluation_duration_seconds",
	Help:      "Wall time of coverage evaluation runs",
	Buckets:   prometheus.DefBuckets,
})

// EvaluationsTotal counts evaluation runs.
var EvaluationsTotal = factory.NewCounter(prometheus.CounterOpts{
	Namespace: "coverplan",
	Name:      "evaluations_total",
	Help:      "Number of coverage evaluation runs",
})

// Record publishes the outcome of one evaluation run.
func Record(stats coverage.RunStats, dur time.Duration) {
	EntitiesByStatus.WithLabelValues("critical").Set(float64(stats.Critical))
	EntitiesByStatus.WithLabelValues("warning").Set(float64(stats.Warning))
	EntitiesByStatus.WithLabelValues("covered").Set(float64(stats.Covered))
	DaysEvaluated.Set(float64(stats.Days))
	AmbiguousNameMatches.Add(float64(stats.Ambiguities))
	EvaluationDuration.Observe(dur.Seconds())
	EvaluationsTotal.Inc()
}
