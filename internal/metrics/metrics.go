// Package metrics exposes Prometheus instruments for the cracking pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the pipeline instruments. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	searches       *prometheus.CounterVec
	searchDuration *prometheus.HistogramVec
	candidates     *prometheus.CounterVec
	seeds          *prometheus.CounterVec
	observations   *prometheus.CounterVec
}

// New registers the instruments on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		searches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "seedcracker_searches_total",
			Help: "Reversal searches by decorator and result",
		}, []string{"decorator", "result"}),
		searchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "seedcracker_search_duration_seconds",
			Help:    "Reversal search duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10), // 1ms to ~4min
		}, []string{"decorator"}),
		candidates: f.NewCounterVec(prometheus.CounterOpts{
			Name: "seedcracker_candidates_examined_total",
			Help: "Lattice candidates replayed against the call sequence",
		}, []string{"decorator"}),
		seeds: f.NewCounterVec(prometheus.CounterOpts{
			Name: "seedcracker_seeds_found_total",
			Help: "Seeds recorded by kind",
		}, []string{"kind"}),
		observations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "seedcracker_observations_total",
			Help: "Observations processed by decorator and outcome",
		}, []string{"decorator", "outcome"}),
	}
}

// Search records one finished reversal search.
func (m *Metrics) Search(decorator, result string, examined int, took time.Duration) {
	if m == nil {
		return
	}
	m.searches.WithLabelValues(decorator, result).Inc()
	m.searchDuration.WithLabelValues(decorator).Observe(took.Seconds())
	m.candidates.WithLabelValues(decorator).Add(float64(examined))
}

func (m *Metrics) Seeds(kind string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.seeds.WithLabelValues(kind).Add(float64(n))
}

func (m *Metrics) Observation(decorator, outcome string) {
	if m == nil {
		return
	}
	m.observations.WithLabelValues(decorator, outcome).Inc()
}
