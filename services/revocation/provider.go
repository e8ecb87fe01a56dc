package revocation

import (
	"context"

	"github.com/bookwell/authkit/config"
	"github.com/bookwell/authkit/services/logging"
	"github.com/bookwell/authkit/services/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type OptionalMetrics struct {
	fx.In
	Metrics *metrics.Service `optional:"true"`
}

func ProvideStore(db *gorm.DB) Store {
	return NewGormStore(db)
}

func ProvideRevocationService(cfg *config.Config, store Store, logger *logging.Service, optMetrics OptionalMetrics) *Service {
	return NewService(cfg, store, logger, optMetrics.Metrics)
}

func StartPurgeWorker(lc fx.Lifecycle, cfg *config.Config, svc *Service, logger *logging.Service) {
	if cfg.Revocation.PurgePeriod <= 0 {
		if logger != nil {
			logger.Debug("ledger purge worker disabled")
		}
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if logger != nil {
				logger.Debug("starting ledger purge worker",
					zap.Duration("purge_period", cfg.Revocation.PurgePeriod))
			}
			svc.StartPurgeWorker(cfg.Revocation.PurgePeriod)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			svc.StopPurgeWorker()
			return nil
		},
	})
}

var Module = fx.Options(
	fx.Provide(ProvideStore),
	fx.Provide(ProvideRevocationService),
	fx.Invoke(StartPurgeWorker),
)
