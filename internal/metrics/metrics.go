// Package metrics exposes clone session statistics to prometheus.
//
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	labelOutcome = "outcome"
	labelSignal  = "signal"
	labelStage   = "stage"
)

// Metrics holds the collectors of one registry.
type Metrics struct {
	sessions   *prometheus.CounterVec
	iterations prometheus.Histogram
	scores     *prometheus.SummaryVec
	durations  *prometheus.SummaryVec
	failures   *prometheus.CounterVec
	running    prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reclone_sessions_total",
			Help: "Clone sessions by stop reason.",
		}, []string{labelOutcome}),

		iterations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "reclone_session_iterations",
			Help:    "Number of scored candidates per session.",
			Buckets: []float64{1, 2, 3, 4, 5, 6, 8, 10},
		}),

		scores: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Name:       "reclone_candidate_score",
			Help:       "Fidelity scores of scored candidates.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		}, []string{labelSignal}),

		durations: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Name:       "reclone_stage_duration_seconds",
			Help:       "Duration of generate and render calls.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		}, []string{labelStage}),

		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reclone_stage_failures_total",
			Help: "Failed generate, render and score calls.",
		}, []string{labelStage}),

		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "reclone_sessions_running",
			Help: "Clone sessions in progress.",
		}),
	}

	reg.MustRegister(
		m.sessions,
		m.iterations,
		m.scores,
		m.durations,
		m.failures,
		m.running,
	)
	return m
}

// SessionStarted marks a session as running.
func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.running.Inc()
}

// SessionFinished records how a session ended.
func (m *Metrics) SessionFinished(outcome string, iterations int) {
	if m == nil {
		return
	}
	m.running.Dec()
	m.sessions.WithLabelValues(outcome).Inc()
	m.iterations.Observe(float64(iterations))
}

// ObserveScores records the three signals of a candidate.
func (m *Metrics) ObserveScores(visual, content, asset float64) {
	if m == nil {
		return
	}
	m.scores.WithLabelValues("visual").Observe(visual)
	m.scores.WithLabelValues("content").Observe(content)
	m.scores.WithLabelValues("asset").Observe(asset)
}

// ObserveStage records the duration of a generate or render call.
func (m *Metrics) ObserveStage(stage string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.durations.WithLabelValues(stage).Observe(d.Seconds())
	if err != nil {
		m.failures.WithLabelValues(stage).Inc()
	}
}

// StageFailed counts a failure that has no duration, such as a decode error.
func (m *Metrics) StageFailed(stage string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(stage).Inc()
}
