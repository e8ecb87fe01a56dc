package jwt

import (
	"github.com/bookwell/authkit/config"
	"github.com/bookwell/authkit/services/logging"
	"github.com/bookwell/authkit/services/metrics"
	"go.uber.org/fx"
)

type OptionalMetrics struct {
	fx.In
	Metrics *metrics.Service `optional:"true"`
}

func NewJWTService(cfg *config.Config, logger *logging.Service, optMetrics OptionalMetrics) *Service {
	return NewService(cfg, logger, optMetrics.Metrics)
}

type OptionalLedger struct {
	fx.In
	Ledger RevocationLedger `optional:"true"`
}

func WireRevocationLedger(jwtSvc *Service, optLedger OptionalLedger) {
	if jwtSvc != nil && optLedger.Ledger != nil {
		jwtSvc.SetRevocationLedger(optLedger.Ledger)
	}
}

var Options = fx.Options(
	fx.Provide(NewJWTService),
	fx.Invoke(WireRevocationLedger),
)
