package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// AccessMetrics records how subscription access checks are answered.
type AccessMetrics struct {
	resolutions *prometheus.CounterVec
	denied      *prometheus.CounterVec
	failOpen    *prometheus.CounterVec
	rotations   *prometheus.CounterVec
	reconcile   *prometheus.HistogramVec
}

// NewAccessMetrics registers the access metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewAccessMetrics(reg prometheus.Registerer) *AccessMetrics {
	if reg == nil {
		return &AccessMetrics{}
	}
	resolutions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "appointly_access_resolutions_total",
		Help: "Access resolutions by the tier that answered them.",
	}, []string{"tier"})
	denied := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "appointly_access_denied_total",
		Help: "Requests denied for lack of an active subscription.",
	}, []string{"status"})
	failOpen := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "appointly_access_fail_open_total",
		Help: "Access checks granted because resolution itself failed.",
	}, []string{"kind"})
	rotations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "appointly_session_rotations_total",
		Help: "Session tokens issued, by trigger.",
	}, []string{"reason"})
	reconcile := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "appointly_access_reconcile_duration_seconds",
		Help:    "Latency of live payment processor reconciliation.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	reg.MustRegister(resolutions, denied, failOpen, rotations, reconcile)
	return &AccessMetrics{
		resolutions: resolutions,
		denied:      denied,
		failOpen:    failOpen,
		rotations:   rotations,
		reconcile:   reconcile,
	}
}

// IncResolution counts a resolution answered by tier.
func (m *AccessMetrics) IncResolution(tier string) {
	if m == nil || m.resolutions == nil {
		return
	}
	m.resolutions.WithLabelValues(normalizeLabel(tier)).Inc()
}

// IncDenied counts a denial for the normalized status.
func (m *AccessMetrics) IncDenied(status string) {
	if m == nil || m.denied == nil {
		return
	}
	m.denied.WithLabelValues(normalizeLabel(status)).Inc()
}

// IncFailOpen counts a resolution failure that was converted into a grant.
func (m *AccessMetrics) IncFailOpen(kind string) {
	if m == nil || m.failOpen == nil {
		return
	}
	m.failOpen.WithLabelValues(normalizeLabel(kind)).Inc()
}

// IncRotation counts a session issuance.
func (m *AccessMetrics) IncRotation(reason string) {
	if m == nil || m.rotations == nil {
		return
	}
	m.rotations.WithLabelValues(normalizeLabel(reason)).Inc()
}

// ObserveReconcile records the latency of a processor reconciliation.
func (m *AccessMetrics) ObserveReconcile(outcome string, duration time.Duration) {
	if m == nil || m.reconcile == nil {
		return
	}
	m.reconcile.WithLabelValues(normalizeLabel(outcome)).Observe(duration.Seconds())
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
