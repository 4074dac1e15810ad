package metrics

import (
	"time"

	"github.com/integrasalud/integrasalud/pkg/model"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes counters for answer resolution and token issuance.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	answersTotal       *prometheus.CounterVec
	tokensTotal        *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec
	activeSessions     prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		answersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "integrasalud",
			Subsystem: "resolver",
			Name:      "answers_total",
			Help:      "Answers returned by the resolver",
		}, []string{"topic", "provenance"}),
		tokensTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "integrasalud",
			Subsystem: "tokens",
			Name:      "issued_total",
			Help:      "Anonymous appointment codes issued",
		}, []string{"topic"}),
		generationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "integrasalud",
			Subsystem: "resolver",
			Name:      "generation_duration_seconds",
			Help:      "Latency of generative backend calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "integrasalud",
			Subsystem: "sessions",
			Name:      "active",
			Help:      "Sessions currently held in memory",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.answersTotal, m.tokensTotal, m.generationDuration, m.activeSessions)
	return m
}

func (m *Metrics) ObserveAnswer(topic model.TopicID, provenance model.Provenance) {
	if m == nil {
		return
	}
	m.answersTotal.WithLabelValues(string(topic), string(provenance)).Inc()
}

func (m *Metrics) ObserveToken(topic model.TopicID) {
	if m == nil {
		return
	}
	m.tokensTotal.WithLabelValues(string(topic)).Inc()
}

func (m *Metrics) ObserveGeneration(elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.generationDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}
