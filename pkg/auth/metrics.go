package auth

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts key-cache and authentication events. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	keyLookups      *prometheus.CounterVec
	keyRefreshes    *prometheus.CounterVec
	authentications *prometheus.CounterVec
	guardDecisions  *prometheus.CounterVec
}

// NewMetrics creates the auth collectors and registers them with reg.
// Collectors already registered by an earlier call are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		keyLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskhub",
			Subsystem: "auth",
			Name:      "signing_key_lookups_total",
			Help:      "Signing key lookups by cache result (hit, miss).",
		}, []string{"result"}),
		keyRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskhub",
			Subsystem: "auth",
			Name:      "signing_key_refreshes_total",
			Help:      "Key set refresh attempts by result (ok, error, rate_limited).",
		}, []string{"result"}),
		authentications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskhub",
			Subsystem: "auth",
			Name:      "authentications_total",
			Help:      "Requests by authentication outcome.",
		}, []string{"outcome"}),
		guardDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskhub",
			Subsystem: "auth",
			Name:      "guard_decisions_total",
			Help:      "Authorization checks by check and decision.",
		}, []string{"check", "decision"}),
	}

	var err error
	m.keyLookups, err = register(reg, m.keyLookups)
	if err != nil {
		return nil, err
	}
	m.keyRefreshes, err = register(reg, m.keyRefreshes)
	if err != nil {
		return nil, err
	}
	m.authentications, err = register(reg, m.authentications)
	if err != nil {
		return nil, err
	}
	m.guardDecisions, err = register(reg, m.guardDecisions)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func register(reg prometheus.Registerer, c *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return c, nil
}

func (m *Metrics) keyLookup(result string) {
	if m != nil {
		m.keyLookups.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) keyRefresh(result string) {
	if m != nil {
		m.keyRefreshes.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) authentication(outcome AuthOutcome) {
	if m != nil {
		m.authentications.WithLabelValues(outcome.String()).Inc()
	}
}

func (m *Metrics) guardDecision(check string, allowed bool) {
	if m == nil {
		return
	}
	decision := "deny"
	if allowed {
		decision = "allow"
	}
	m.guardDecisions.WithLabelValues(check, decision).Inc()
}
