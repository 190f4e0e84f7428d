package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Generation pipeline
	GenerationAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "askmore_generation_attempts_total",
		Help: "Generation attempts by outcome and error kind.",
	}, []string{"outcome", "kind"})
	GenerationFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "askmore_generation_fallbacks_total",
		Help: "Requests answered with the static fallback question set.",
	})
	GenerationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "askmore_generation_duration_seconds",
		Help:    "Wall time of a resilient generation request, backoff included.",
		Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
	})

	// Sessions
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "askmore_sessions_active",
		Help: "Sessions currently held in memory.",
	})
	SessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "askmore_sessions_created_total",
		Help: "Sessions created.",
	})
	SessionsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "askmore_sessions_expired_total",
		Help: "Sessions evicted after their TTL.",
	})
	AnswersRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "askmore_answers_recorded_total",
		Help: "Answer submissions by result.",
	}, []string{"result"})
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
