// Package metrics exposes Prometheus counters for the auth core.
//
// All recorders are safe to call on a nil *Metrics, so tests and callers that
// run without a registry can skip wiring entirely.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "stratagate"

// Login outcomes.
const (
	OutcomeSuccess       = "success"
	OutcomeMalformed     = "malformed"
	OutcomeBadSignature  = "bad_signature"
	OutcomeStale         = "stale"
	OutcomeNotRegistered = "not_registered"
	OutcomeForbidden     = "forbidden"
	OutcomeLocked        = "locked"
	OutcomeInvalid       = "invalid"
	OutcomeError         = "error"
)

// NewRegistry creates a private registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Metrics holds the auth counters.
type Metrics struct {
	logins          *prometheus.CounterVec
	lockouts        *prometheus.CounterVec
	refreshes       *prometheus.CounterVec
	logouts         *prometheus.CounterVec
	sessionsEvicted prometheus.Counter
	sweepDeleted    *prometheus.CounterVec
	sweepRuns       *prometheus.CounterVec
}

// New registers the auth counters on reg. A nil reg yields a nil *Metrics.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}
	m := &Metrics{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "logins_total",
			Help:      "Login attempts by outcome.",
		}, []string{"outcome"}),
		lockouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "lockouts_total",
			Help:      "Lockouts started, by identifier type.",
		}, []string{"type"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "refresh_total",
			Help:      "Access token refreshes by outcome.",
		}, []string{"outcome"}),
		logouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "logouts_total",
			Help:      "Logouts by scope.",
		}, []string{"scope"}),
		sessionsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "sessions_evicted_total",
			Help:      "Sessions removed because a principal exceeded the session cap.",
		}),
		sweepDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_deleted_total",
			Help:      "Records removed by background sweeps, by collection.",
		}, []string{"collection"}),
		sweepRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_runs_total",
			Help:      "Background sweep runs, by job and result.",
		}, []string{"job", "result"}),
	}
	reg.MustRegister(m.logins, m.lockouts, m.refreshes, m.logouts, m.sessionsEvicted, m.sweepDeleted, m.sweepRuns)
	return m
}

// Login counts one login attempt.
func (m *Metrics) Login(outcome string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(outcome).Inc()
}

// Lockout counts a lockout started for an identifier type.
func (m *Metrics) Lockout(identifierType string) {
	if m == nil {
		return
	}
	m.lockouts.WithLabelValues(identifierType).Inc()
}

// Refresh counts one refresh attempt.
func (m *Metrics) Refresh(outcome string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(outcome).Inc()
}

// Logout counts a logout; scope is "session" or "all".
func (m *Metrics) Logout(scope string) {
	if m == nil {
		return
	}
	m.logouts.WithLabelValues(scope).Inc()
}

// SessionsEvicted adds n evicted sessions.
func (m *Metrics) SessionsEvicted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sessionsEvicted.Add(float64(n))
}

// SweepDeleted adds n records removed from collection by a sweep.
func (m *Metrics) SweepDeleted(collection string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.sweepDeleted.WithLabelValues(collection).Add(float64(n))
}

// SweepRun counts a sweep run; result is "ok" or "error".
func (m *Metrics) SweepRun(job, result string) {
	if m == nil {
		return
	}
	m.sweepRuns.WithLabelValues(job, result).Inc()
}
