package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all prometheus metrics for the reconciliation engine
type Metrics struct {
	PassesTotal        *prometheus.CounterVec // by tier
	GroupErrorsTotal   *prometheus.CounterVec // by tier
	SourceFetchTotal   *prometheus.CounterVec // by source, outcome ("ok", "not_found", "error")
	ChangeEntriesTotal prometheus.Counter
	PassDuration       *prometheus.HistogramVec // by tier
	ShadowFlights      prometheus.Gauge
}

// New creates the metric set under the given namespace on the default
// registry
func New(namespace string) *Metrics {
	return NewWith(prometheus.DefaultRegisterer, namespace)
}

// NewWith creates the metric set against a specific registerer
func NewWith(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PassesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_passes_total",
			Help:      "The total number of reconciliation passes per tier",
		}, []string{"tier"}),
		GroupErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_group_errors_total",
			Help:      "The total number of flight groups that failed a pass",
		}, []string{"tier"}),
		SourceFetchTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_fetches_total",
			Help:      "The total number of source adapter fetches by outcome",
		}, []string{"source", "outcome"}),
		ChangeEntriesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "change_entries_total",
			Help:      "The total number of audit entries written",
		}),
		PassDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reconcile_pass_duration_seconds",
			Help:      "Time taken to reconcile one flight group",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tier"}),
		ShadowFlights: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "shadow_flights",
			Help:      "Number of shadow flight rows currently stored",
		}),
	}
}
