// Package metrics exposes prometheus counters for the transport, token and playback layers.
//
// A nil *[Metrics] is valid and records nothing, so components run without a registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "cadence"

// Metrics holds the client's counters.
type Metrics struct {
	transportAttempts *prometheus.CounterVec
	transportRetries  *prometheus.CounterVec
	tokenRefreshes    *prometheus.CounterVec
	signOuts          *prometheus.CounterVec
	intents           *prometheus.CounterVec
	modeTransitions   *prometheus.CounterVec
}

// New registers every counter on reg. Pass [prometheus.NewRegistry] in tests to avoid duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		transportAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_attempts_total",
			Help:      "HTTP attempts by target service and outcome (ok, timeout, network, aborted)",
		}, []string{"service", "outcome"}),
		transportRetries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_retries_total",
			Help:      "Attempts retried after a per-attempt timeout",
		}, []string{"service"}),
		tokenRefreshes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_refreshes_total",
			Help:      "Access token refreshes by outcome (ok, failed)",
		}, []string{"outcome"}),
		signOuts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sign_outs_total",
			Help:      "Sign-outs by whether the remote revoke succeeded",
		}, []string{"revoked"}),
		intents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_intents_total",
			Help:      "Playback intents by name and outcome",
		}, []string{"intent", "outcome"}),
		modeTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_mode_transitions_total",
			Help:      "Playback mode changes by target mode",
		}, []string{"mode"}),
	}
}

// RecordAttempt counts one transport attempt.
func (m *Metrics) RecordAttempt(service, outcome string) {
	if m == nil {
		return
	}
	m.transportAttempts.WithLabelValues(service, outcome).Inc()
}

// RecordRetry counts one retried attempt.
func (m *Metrics) RecordRetry(service string) {
	if m == nil {
		return
	}
	m.transportRetries.WithLabelValues(service).Inc()
}

// RecordRefresh counts a token refresh.
func (m *Metrics) RecordRefresh(ok bool) {
	if m == nil {
		return
	}
	m.tokenRefreshes.WithLabelValues(outcome(ok)).Inc()
}

// RecordSignOut counts a sign-out.
func (m *Metrics) RecordSignOut(revoked bool) {
	if m == nil {
		return
	}
	label := "false"
	if revoked {
		label = "true"
	}
	m.signOuts.WithLabelValues(label).Inc()
}

// RecordIntent counts a playback intent. outcome is "ok" or an error kind.
func (m *Metrics) RecordIntent(intent, outcome string) {
	if m == nil {
		return
	}
	m.intents.WithLabelValues(intent, outcome).Inc()
}

// RecordModeTransition counts a change of playback mode.
func (m *Metrics) RecordModeTransition(mode string) {
	if m == nil {
		return
	}
	m.modeTransitions.WithLabelValues(mode).Inc()
}

func outcome(ok bool) string {
	if ok {
		return "ok"
	}
	return "failed"
}
