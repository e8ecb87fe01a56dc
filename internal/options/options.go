package options

import (
	"github.com/bookwell/authkit/config"
)

type Options struct {
	Config            *config.Config
	EnableDatabase    bool
	DatabaseModels    []any
	EnableRevocation  bool
	EnableJWT         bool
	EnablePermissions bool
	EnableAuthFlows   bool
	EnableMetrics     bool
	ExtraFxOptions    []any
}

type Option func(*Options)

func WithConfig(cfg *config.Config) Option {
	return func(opts *Options) {
		opts.Config = cfg
	}
}

func WithDatabase(models ...any) Option {
	return func(opts *Options) {
		opts.EnableDatabase = true
		opts.DatabaseModels = models
	}
}

func WithRevocation() Option {
	return func(opts *Options) {
		opts.EnableRevocation = true
	}
}

func WithJWT() Option {
	return func(opts *Options) {
		opts.EnableJWT = true
	}
}

func WithPermissions() Option {
	return func(opts *Options) {
		opts.EnablePermissions = true
	}
}

func WithAuthFlows() Option {
	return func(opts *Options) {
		opts.EnableAuthFlows = true
	}
}

func WithMetrics() Option {
	return func(opts *Options) {
		opts.EnableMetrics = true
	}
}

func WithFxOptions(fxOpts ...any) Option {
	return func(opts *Options) {
		opts.ExtraFxOptions = append(opts.ExtraFxOptions, fxOpts...)
	}
}
