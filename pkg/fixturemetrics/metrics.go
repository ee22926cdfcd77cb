// Package fixturemetrics exports fixture lifecycle metrics to Prometheus.
package fixturemetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"scribble/pkg/fixture"
)

const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

// Metrics holds the fixture lifecycle metrics and implements
// fixture.Observer.
type Metrics struct {
	SetupTotal           *prometheus.CounterVec
	TeardownTotal        *prometheus.CounterVec
	SetupDurationSeconds *prometheus.HistogramVec
}

// New creates the metrics on reg. A nil reg uses the default registerer.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		SetupTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fixture_setup_total",
				Help:      "Total number of fixture setups",
			},
			[]string{"fixture", "scope", "outcome"},
		),
		TeardownTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fixture_teardown_total",
				Help:      "Total number of fixture teardowns",
			},
			[]string{"fixture", "scope", "outcome"},
		),
		SetupDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fixture_setup_duration_seconds",
				Help:      "Time spent in fixture setup hooks",
				Buckets:   []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"fixture", "scope"},
		),
	}
}

// Install registers m as the fixture observer.
func (m *Metrics) Install() {
	fixture.SetObserver(m)
}

func (m *Metrics) SetupCompleted(resource string, scope fixture.Scope, d time.Duration, err error) {
	m.SetupDurationSeconds.WithLabelValues(resource, string(scope)).Observe(d.Seconds())
	m.SetupTotal.WithLabelValues(resource, string(scope), outcome(err)).Inc()
}

func (m *Metrics) TeardownCompleted(resource string, scope fixture.Scope, err error) {
	m.TeardownTotal.WithLabelValues(resource, string(scope), outcome(err)).Inc()
}

func outcome(err error) string {
	if err != nil {
		return outcomeFailure
	}
	return outcomeSuccess
}
