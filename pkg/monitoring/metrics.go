/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: metrics.go
Description: Prometheus instrumentation for automaton sessions. Counts state activations,
executed transitions, rejected symbols, channel failures and finished sessions, and
serves them on /metrics.
*/

package monitoring

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/kleascm/akaylee-automaton/pkg/automaton"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const namespace = "automaton"

// Metrics holds the session collectors
type Metrics struct {
	StateActivations *prometheus.CounterVec
	Transitions      *prometheus.CounterVec
	Mismatches       *prometheus.CounterVec
	ChannelFailures  prometheus.Counter
	Sessions         *prometheus.CounterVec
	ActiveSessions   prometheus.Gauge
	SessionDuration  prometheus.Histogram
}

// NewMetrics creates the collectors and registers them on reg
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		StateActivations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_activations_total",
			Help:      "Total number of state activations",
		}, []string{"state"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Total number of executed transitions",
		}, []string{"kind", "role"}),
		Mismatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "symbol_mismatches_total",
			Help:      "Inbound messages that did not advance the automaton",
		}, []string{"state"}),
		ChannelFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channel_failures_total",
			Help:      "Sessions stopped by a channel failure",
		}),
		Sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Finished sessions by stop reason",
		}, []string{"reason", "role"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Sessions currently running",
		}),
		SessionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Wall time of finished sessions",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
	}

	for _, c := range []prometheus.Collector{
		m.StateActivations, m.Transitions, m.Mismatches, m.ChannelFailures,
		m.Sessions, m.ActiveSessions, m.SessionDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Started marks a session as running. OnSessionFinished undoes it.
func (m *Metrics) Started() {
	m.ActiveSessions.Inc()
}

var _ automaton.Reporter = (*PrometheusReporter)(nil)

// PrometheusReporter feeds automaton events into Metrics
type PrometheusReporter struct {
	automaton.NopReporter
	metrics *Metrics
}

// NewPrometheusReporter creates a reporter updating m
func NewPrometheusReporter(m *Metrics) *PrometheusReporter {
	return &PrometheusReporter{metrics: m}
}

// OnStateActivated counts the activation
func (r *PrometheusReporter) OnStateActivated(ev automaton.StateEvent) {
	r.metrics.StateActivations.WithLabelValues(ev.State.ID).Inc()
}

// OnTransitionExecuted counts the transition
func (r *PrometheusReporter) OnTransitionExecuted(ev automaton.TransitionEvent) {
	r.metrics.Transitions.WithLabelValues(ev.Transition.Kind.String(), ev.Role.String()).Inc()
}

// OnSymbolRejected counts the mismatch
func (r *PrometheusReporter) OnSymbolRejected(ev automaton.MismatchEvent) {
	r.metrics.Mismatches.WithLabelValues(ev.State.ID).Inc()
}

// OnSessionFinished records the outcome
func (r *PrometheusReporter) OnSessionFinished(res *automaton.Result) {
	r.metrics.Sessions.WithLabelValues(res.Reason.String(), res.Role.String()).Inc()
	if res.Reason == automaton.StopChannelFailure {
		r.metrics.ChannelFailures.Inc()
	}
	r.metrics.SessionDuration.Observe(res.Duration().Seconds())
	r.metrics.ActiveSessions.Dec()
}

// Serve exposes the gatherer on addr under /metrics until ctx is done
func Serve(ctx context.Context, addr string, g prometheus.Gatherer, logger *logrus.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.WithField("address", addr).Info("Metrics server listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}
