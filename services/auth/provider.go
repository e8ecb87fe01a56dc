package auth

import (
	"github.com/bookwell/authkit/config"
	"github.com/bookwell/authkit/services/jwt"
	"github.com/bookwell/authkit/services/logging"
	"github.com/bookwell/authkit/services/rbac"
	"github.com/bookwell/authkit/services/revocation"
	"go.uber.org/fx"
)

func ProvideAuthService(cfg *config.Config, ledger *revocation.Service, tokens *jwt.Service, resolver *rbac.Service, logger *logging.Service) *Service {
	return NewService(cfg, ledger, tokens, resolver, logger)
}

var Module = fx.Options(
	fx.Provide(ProvideAuthService),
)
