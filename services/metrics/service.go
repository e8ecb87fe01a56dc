package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Service struct {
	registry *prometheus.Registry

	authenticationsTotal *prometheus.CounterVec
	authorizationsTotal  *prometheus.CounterVec
	revocationsTotal     *prometheus.CounterVec
	revocationChecks     *prometheus.CounterVec
	degradedModeEvents   prometheus.Counter
	purgedRecordsTotal   prometheus.Counter
	ledgerLatency        *prometheus.HistogramVec
}

func NewService() *Service {
	registry := prometheus.NewRegistry()

	s := &Service{
		registry: registry,
		authenticationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authkit_authentications_total",
				Help: "Authentication attempts by outcome kind.",
			},
			[]string{"outcome"},
		),
		authorizationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authkit_authorizations_total",
				Help: "Permission decisions by resource, action and decision.",
			},
			[]string{"resource", "action", "decision"},
		),
		revocationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authkit_revocations_total",
				Help: "Ledger writes by revocation reason.",
			},
			[]string{"reason"},
		),
		revocationChecks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authkit_revocation_checks_total",
				Help: "Ledger lookups by result (revoked, valid, error).",
			},
			[]string{"result"},
		),
		degradedModeEvents: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "authkit_degraded_mode_events_total",
				Help: "Requests rejected fail-closed because the ledger was unreachable.",
			},
		),
		purgedRecordsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "authkit_purged_records_total",
				Help: "Expired ledger records removed by the purge sweep.",
			},
		),
		ledgerLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "authkit_ledger_operation_seconds",
				Help:    "Ledger operation latencies in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}

	registry.MustRegister(
		s.authenticationsTotal,
		s.authorizationsTotal,
		s.revocationsTotal,
		s.revocationChecks,
		s.degradedModeEvents,
		s.purgedRecordsTotal,
		s.ledgerLatency,
	)

	return s
}

func (s *Service) Registry() *prometheus.Registry {
	if s != nil {
		return s.registry
	}
	return nil
}

func (s *Service) Handler() http.Handler {
	if s == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

func (s *Service) ObserveAuthentication(outcome string) {
	if s != nil {
		s.authenticationsTotal.WithLabelValues(outcome).Inc()
	}
}

func (s *Service) ObserveAuthorization(resource, action string, allowed bool) {
	if s != nil {
		decision := "deny"
		if allowed {
			decision = "allow"
		}
		s.authorizationsTotal.WithLabelValues(resource, action, decision).Inc()
	}
}

func (s *Service) ObserveRevocation(reason string) {
	if s != nil {
		s.revocationsTotal.WithLabelValues(reason).Inc()
	}
}

func (s *Service) ObserveRevocations(reason string, count int64) {
	if s != nil && count > 0 {
		s.revocationsTotal.WithLabelValues(reason).Add(float64(count))
	}
}

func (s *Service) ObserveRevocationCheck(result string) {
	if s != nil {
		s.revocationChecks.WithLabelValues(result).Inc()
	}
}

func (s *Service) ObserveDegradedMode() {
	if s != nil {
		s.degradedModeEvents.Inc()
	}
}

func (s *Service) ObservePurgedRecords(count int64) {
	if s != nil && count > 0 {
		s.purgedRecordsTotal.Add(float64(count))
	}
}

func (s *Service) ObserveLedgerLatency(operation string, seconds float64) {
	if s != nil {
		s.ledgerLatency.WithLabelValues(operation).Observe(seconds)
	}
}
