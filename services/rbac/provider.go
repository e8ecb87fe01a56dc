package rbac

import (
	"github.com/bookwell/authkit/config"
	"github.com/bookwell/authkit/services/logging"
	"github.com/bookwell/authkit/services/metrics"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type OptionalMetrics struct {
	fx.In
	Metrics *metrics.Service `optional:"true"`
}

func ProvideStore(db *gorm.DB) Store {
	return NewGormStore(db)
}

func ProvideRBACService(cfg *config.Config, store Store, logger *logging.Service, optMetrics OptionalMetrics) *Service {
	return NewService(cfg, store, logger, optMetrics.Metrics)
}

var Module = fx.Options(
	fx.Provide(ProvideStore),
	fx.Provide(ProvideRBACService),
)
