package server

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/bookwell/authkit/config"
	"github.com/bookwell/authkit/services/logging"
)

type ServerParams struct {
	fx.In

	Config *config.Config
	Logger *logging.Service `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	return New(p.Config, p.Logger)
}

func NewProvider() fx.Option {
	return fx.Options(
		fx.Provide(NewServer),
		fx.Invoke(func(lc fx.Lifecycle, srv *Server) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					go func() {
						if err := srv.Start(); err != nil {
							srv.logger.Error("server stopped unexpectedly", zap.Error(err))
						}
					}()
					return nil
				},
				OnStop: func(ctx context.Context) error {
					return srv.Shutdown(ctx)
				},
			})
		}),
	)
}
