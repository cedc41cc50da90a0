// Package metrics exposes daemon activity as Prometheus collectors fed
// from the event bus.
package metrics

import (
	"context"

	"github.com/HerbHall/campusnet/internal/event"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "campusnet"

// Metrics holds the daemon's collectors and the registry they live in.
type Metrics struct {
	registry *prometheus.Registry

	checksTotal         *prometheus.CounterVec
	loginAttemptsTotal  *prometheus.CounterVec
	retryExhaustedTotal prometheus.Counter
	consecutiveFailures prometheus.Gauge
	lastRecovery        prometheus.Gauge
	tickPanicsTotal     prometheus.Counter
}

// New creates the collectors on a dedicated registry that also carries the
// Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		checksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "checks_total",
				Help:      "Connectivity checks by deciding layer and result.",
			},
			[]string{"layer", "result"},
		),
		loginAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "login_attempts_total",
				Help:      "Gateway login attempts by result.",
			},
			[]string{"result"},
		),
		retryExhaustedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retry_exhausted_total",
			Help:      "Re-authentication cycles that used every attempt without success.",
		}),
		consecutiveFailures: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "consecutive_failures",
			Help:      "Failed connectivity checks since access was last confirmed.",
		}),
		lastRecovery: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_recovery_timestamp_seconds",
			Help:      "Unix time of the most recent recovery from an outage.",
		}),
		tickPanicsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tick_panics_total",
			Help:      "Daemon iterations aborted by an unexpected panic.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.checksTotal,
		m.loginAttemptsTotal,
		m.retryExhaustedTotal,
		m.consecutiveFailures,
		m.lastRecovery,
		m.tickPanicsTotal,
	)
	return m
}

// Registry returns the registry to expose over HTTP.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Subscriber is the subscribing side of the event bus.
type Subscriber interface {
	SubscribeAll(handler event.Handler) (unsubscribe func())
}

// Subscribe updates the collectors from bus events.
func (m *Metrics) Subscribe(bus Subscriber) (unsubscribe func()) {
	return bus.SubscribeAll(m.handle)
}

func (m *Metrics) handle(_ context.Context, e event.Event) {
	switch p := e.Payload.(type) {
	case event.CheckCompleted:
		m.checksTotal.WithLabelValues(p.Layer, result(p.Reachable)).Inc()
	case event.LoginAttempt:
		m.loginAttemptsTotal.WithLabelValues(result(p.Success)).Inc()
	case event.ConnectivityLost:
		m.consecutiveFailures.Set(float64(p.ConsecutiveFailures))
	case event.ConnectivityRestored:
		m.consecutiveFailures.Set(0)
		m.lastRecovery.Set(float64(e.Timestamp.Unix()))
	case event.TickPanicked:
		m.tickPanicsTotal.Inc()
	case event.LoginFinished:
		if e.Topic == event.TopicLoginExhausted {
			m.retryExhaustedTotal.Inc()
		}
	}
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
