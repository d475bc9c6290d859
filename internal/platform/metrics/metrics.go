package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the trust core.
type Metrics struct {
	Verifications   *prometheus.CounterVec
	AccessDecisions *prometheus.CounterVec
	ActiveGrants    prometheus.Gauge
	AuditRecorded   *prometheus.CounterVec
	AuditPurged     prometheus.Counter
	ChallengesSwept prometheus.Counter
}

// New creates and registers all metrics on the default registry.
func New() *Metrics {
	return newWith(prometheus.DefaultRegisterer)
}

// NewForTesting registers on a private registry so parallel tests do not
// collide on duplicate registration.
func NewForTesting() *Metrics {
	return newWith(prometheus.NewRegistry())
}

func newWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Verifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "registra_verifications_total",
			Help: "Verification attempts by method and outcome",
		}, []string{"method", "outcome"}),
		AccessDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "registra_access_decisions_total",
			Help: "Access request decisions by outcome",
		}, []string{"decision"}),
		ActiveGrants: factory.NewGauge(prometheus.GaugeOpts{
			Name: "registra_active_grants",
			Help: "Currently active consumer grants",
		}),
		AuditRecorded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "registra_audit_events_total",
			Help: "Audit events recorded by severity",
		}, []string{"severity"}),
		AuditPurged: factory.NewCounter(prometheus.CounterOpts{
			Name: "registra_audit_events_purged_total",
			Help: "Audit events removed by retention sweeps",
		}),
		ChallengesSwept: factory.NewCounter(prometheus.CounterOpts{
			Name: "registra_challenges_expired_total",
			Help: "Domain challenges transitioned to expired by sweeps",
		}),
	}
}

func (m *Metrics) IncVerification(method, outcome string) {
	m.Verifications.WithLabelValues(method, outcome).Inc()
}

func (m *Metrics) IncAccessDecision(decision string) {
	m.AccessDecisions.WithLabelValues(decision).Inc()
}

func (m *Metrics) IncAuditRecorded(severity string) {
	m.AuditRecorded.WithLabelValues(severity).Inc()
}

func (m *Metrics) AddAuditPurged(n float64) {
	m.AuditPurged.Add(n)
}

func (m *Metrics) AddChallengesSwept(n float64) {
	m.ChallengesSwept.Add(n)
}
