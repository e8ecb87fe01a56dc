package authkit

import (
	"github.com/bookwell/authkit/app"
	"github.com/bookwell/authkit/config"
	"github.com/bookwell/authkit/internal/options"
)

type App = app.App

func New(opts ...options.Option) *App {
	return app.New(opts...)
}

func WithConfig(cfg *config.Config) options.Option {
	return options.WithConfig(cfg)
}

func WithDatabase(models ...any) options.Option {
	return options.WithDatabase(models...)
}

func WithRevocation() options.Option {
	return options.WithRevocation()
}

func WithJWT() options.Option {
	return options.WithJWT()
}

func WithPermissions() options.Option {
	return options.WithPermissions()
}

func WithAuthFlows() options.Option {
	return options.WithAuthFlows()
}

func WithMetrics() options.Option {
	return options.WithMetrics()
}

func WithFxOptions(fxOpts ...any) options.Option {
	return options.WithFxOptions(fxOpts...)
}
