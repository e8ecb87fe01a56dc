package app

import (
	"fmt"

	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/bookwell/authkit/config"
	"github.com/bookwell/authkit/database"
	"github.com/bookwell/authkit/internal/options"
	"github.com/bookwell/authkit/middleware/ratelimit"
	"github.com/bookwell/authkit/server"
	"github.com/bookwell/authkit/services/auth"
	"github.com/bookwell/authkit/services/jwt"
	"github.com/bookwell/authkit/services/logging"
	"github.com/bookwell/authkit/services/metrics"
	"github.com/bookwell/authkit/services/rbac"
	"github.com/bookwell/authkit/services/revocation"
)

type AppBuilder struct {
	config    *config.Config
	services  map[string]bool
	models    []any
	fxOptions []fx.Option
	errors    []error
}

func NewBuilder() *AppBuilder {
	return &AppBuilder{
		services:  make(map[string]bool),
		models:    make([]any, 0),
		fxOptions: make([]fx.Option, 0),
		errors:    make([]error, 0),
	}
}

func (b *AppBuilder) WithConfig(cfg *config.Config) *AppBuilder {
	if cfg == nil {
		b.addError("config cannot be nil")
		return b
	}
	b.config = cfg
	return b
}

func (b *AppBuilder) WithAutoConfig() *AppBuilder {
	cfg := &config.Config{}
	if err := config.LoadConfig(cfg); err != nil {
		b.addError(fmt.Sprintf("failed to load config: %v", err))
		return b
	}
	b.config = cfg
	return b
}

func (b *AppBuilder) WithDatabase(models ...any) *AppBuilder {
	b.services["database"] = true
	b.models = append(b.models, models...)
	return b
}

// WithRevocation enables the token revocation ledger and its purge
// worker.
func (b *AppBuilder) WithRevocation() *AppBuilder {
	b.services["revocation"] = true
	b.services["database"] = true
	b.models = append(b.models, &revocation.TokenRecord{}, &revocation.IssuedToken{})
	return b
}

// WithJWT enables token issuance and authentication. Revocation is
// pulled in as well, every authentication consults the ledger.
func (b *AppBuilder) WithJWT() *AppBuilder {
	b.services["jwt"] = true
	if !b.services["revocation"] {
		b.WithRevocation()
	}
	return b
}

// WithPermissions enables the role registry and permission resolver.
func (b *AppBuilder) WithPermissions() *AppBuilder {
	b.services["rbac"] = true
	b.services["database"] = true
	b.models = append(b.models, &rbac.Role{}, &rbac.PermissionEntry{})
	return b
}

// WithAuthFlows enables the high level logout, password change,
// breach response, admin revocation and refresh rotation flows.
func (b *AppBuilder) WithAuthFlows() *AppBuilder {
	b.services["auth"] = true
	if !b.services["jwt"] {
		b.WithJWT()
	}
	if !b.services["rbac"] {
		b.WithPermissions()
	}
	return b
}

func (b *AppBuilder) WithMetrics() *AppBuilder {
	b.services["metrics"] = true
	return b
}

func (b *AppBuilder) WithFxOptions(opts ...fx.Option) *AppBuilder {
	b.fxOptions = append(b.fxOptions, opts...)
	return b
}

func (b *AppBuilder) Build() (*App, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}

	if b.config == nil {
		if err := b.WithAutoConfig().validate(); err != nil {
			return nil, err
		}
	}

	logger, err := b.createLogger()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	var db *gorm.DB
	if b.services["database"] {
		modelsOpt := &database.ModelsOption{}
		if len(b.models) > 0 {
			modelsOpt = database.WithModels(b.models...)
		}

		db, err = database.ProvideDatabase(*b.config, modelsOpt, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
	}

	app := &App{
		config: b.config,
		logger: logger,
		db:     db,
	}

	fxOptions := b.buildFxOptions(app, logger, db)

	app.fx = fx.New(fxOptions...)

	return app, nil
}

func (b *AppBuilder) addError(msg string) {
	b.errors = append(b.errors, fmt.Errorf("%s", msg))
}

func (b *AppBuilder) validate() error {
	if len(b.errors) > 0 {
		return fmt.Errorf("configuration errors: %v", b.errors)
	}

	if b.services["jwt"] && !b.services["revocation"] {
		return fmt.Errorf("JWT authentication requires the revocation ledger")
	}

	if b.services["auth"] && (!b.services["jwt"] || !b.services["rbac"]) {
		return fmt.Errorf("auth flows require JWT and permission support")
	}

	if (b.services["revocation"] || b.services["rbac"]) && !b.services["database"] {
		b.services["database"] = true
	}

	return nil
}

func (b *AppBuilder) createLogger() (*logging.Service, error) {
	if b.config == nil {
		return nil, fmt.Errorf("config required for logger creation")
	}

	return logging.NewService(logging.Config{
		Level:      logging.LogLevel(b.config.Log.Level),
		Format:     b.config.Log.Format,
		OutputPath: b.config.Log.Output,
	})
}

func (b *AppBuilder) buildFxOptions(app *App, logger *logging.Service, db *gorm.DB) []fx.Option {
	var opts []fx.Option

	opts = append(opts,
		fx.Supply(b.config),
		fx.Supply(logger),
		fx.NopLogger,
	)

	if db != nil {
		opts = append(opts, fx.Supply(db))
	}

	opts = append(opts, server.NewProvider())

	opts = append(opts, fx.Provide(ratelimit.ProvideRateLimitStore))

	if b.services["metrics"] {
		opts = append(opts, metrics.Module)
		opts = append(opts, fx.Invoke(func(srv *server.Server, svc *metrics.Service) {
			metrics.RegisterHandler(srv.Echo(), svc)
		}))
	}

	if b.services["revocation"] {
		opts = append(opts, revocation.Module)
	}

	if b.services["rbac"] {
		opts = append(opts, rbac.Module)
	}

	if b.services["jwt"] {
		opts = append(opts, jwt.Options)
		// The ledger satisfies the authenticator's revocation
		// interface. The adapter lives here to keep the jwt and
		// revocation packages from depending on each other.
		opts = append(opts, fx.Provide(func(svc *revocation.Service) jwt.RevocationLedger {
			return svc
		}))
	}

	if b.services["auth"] {
		opts = append(opts, auth.Module)
	}

	opts = append(opts, b.fxOptions...)

	opts = append(opts, b.captureServices(app))

	return opts
}

// captureServices copies the resolved services onto the App so callers
// can reach them without going through fx.
func (b *AppBuilder) captureServices(app *App) fx.Option {
	var invokes []fx.Option

	invokes = append(invokes, fx.Invoke(func(srv *server.Server) {
		app.server = srv
	}))

	if b.services["revocation"] {
		invokes = append(invokes, fx.Invoke(func(svc *revocation.Service) {
			app.ledger = svc
		}))
	}
	if b.services["rbac"] {
		invokes = append(invokes, fx.Invoke(func(svc *rbac.Service) {
			app.resolver = svc
		}))
	}
	if b.services["jwt"] {
		invokes = append(invokes, fx.Invoke(func(svc *jwt.Service) {
			app.tokens = svc
		}))
	}
	if b.services["auth"] {
		invokes = append(invokes, fx.Invoke(func(svc *auth.Service) {
			app.flows = svc
		}))
	}

	return fx.Options(invokes...)
}

// New assembles an App from functional options. It is the entry point
// used by the root package.
func New(opts ...options.Option) *App {
	o := &options.Options{}
	for _, opt := range opts {
		opt(o)
	}

	builder := NewBuilder()

	if o.Config != nil {
		builder.WithConfig(o.Config)
	}
	if o.EnableDatabase {
		builder.WithDatabase(o.DatabaseModels...)
	}
	if o.EnableRevocation {
		builder.WithRevocation()
	}
	if o.EnableJWT {
		builder.WithJWT()
	}
	if o.EnablePermissions {
		builder.WithPermissions()
	}
	if o.EnableAuthFlows {
		builder.WithAuthFlows()
	}
	if o.EnableMetrics {
		builder.WithMetrics()
	}

	for _, fxOpt := range o.ExtraFxOptions {
		if opt, ok := fxOpt.(fx.Option); ok {
			builder.WithFxOptions(opt)
		}
	}

	app, err := builder.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build application: %v", err))
	}

	return app
}
