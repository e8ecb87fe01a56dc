package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	App         AppConfig         `envPrefix:"APP_"`
	Server      ServerConfig      `envPrefix:"SERVER_"`
	Log         LogConfig         `envPrefix:"LOG_"`
	Database    DatabaseConfig    `envPrefix:"DATABASE_"`
	JWT         JWTConfig         `envPrefix:"JWT_"`
	Revocation  RevocationConfig  `envPrefix:"REVOCATION_"`
	Permissions PermissionsConfig `envPrefix:"PERMISSIONS_"`
	RateLimit   RateLimitConfig   `envPrefix:"RATE_LIMIT_"`
}

type AppConfig struct {
	Name string `env:"NAME" envDefault:"authkit Application"`
	URL  string `env:"URL" envDefault:"http://localhost:8080"`
}

type ServerConfig struct {
	Port           string   `env:"PORT" envDefault:"8080"`
	Host           string   `env:"HOST" envDefault:"localhost"`
	TrustedProxies []string `env:"TRUSTED_PROXIES"`
}

type LogConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
	Output string `env:"OUTPUT" envDefault:"stdout"`
}

type DatabaseConfig struct {
	Driver      string `env:"DRIVER" envDefault:"sqlite"`
	DSN         string `env:"DSN" envDefault:"authkit.db"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" envDefault:"true"`
}

type JWTConfig struct {
	SecretKey              string        `env:"SECRET_KEY"`
	Algorithm              string        `env:"ALGORITHM" envDefault:"HS256"`
	Issuer                 string        `env:"ISSUER" envDefault:"authkit"`
	AccessExpiry           time.Duration `env:"ACCESS_EXPIRY" envDefault:"15m"`
	RefreshExpiry          time.Duration `env:"REFRESH_EXPIRY" envDefault:"720h"`
	RevocationCheckTimeout time.Duration `env:"REVOCATION_CHECK_TIMEOUT" envDefault:"2s"`
}

type RevocationConfig struct {
	PurgePeriod time.Duration `env:"PURGE_PERIOD" envDefault:"1h"`
	PurgeGrace  time.Duration `env:"PURGE_GRACE" envDefault:"720h"`
}

type PermissionsConfig struct {
	CacheTTL time.Duration `env:"CACHE_TTL" envDefault:"10s"`
}

type CountingMode string

const (
	CountAll      CountingMode = "all"
	CountFailures CountingMode = "failures"
	CountSuccess  CountingMode = "success"
)

type RateLimitConfig struct {
	Enabled   bool          `env:"ENABLED" envDefault:"false"`
	Rate      int           `env:"RATE" envDefault:"10"`
	Period    time.Duration `env:"PERIOD" envDefault:"1m"`
	CountMode CountingMode  `env:"COUNT_MODE" envDefault:"failures"`
	Store     string        `env:"STORE" envDefault:"memory"`
}

func LoadConfig(cfg any) error {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found: %v", err)
	}

	if err := env.Parse(cfg); err != nil {
		return err
	}

	if c, ok := cfg.(*Config); ok {
		return Validate(c)
	}

	return nil
}

func Validate(cfg *Config) error {
	if err := validateJWTConfig(&cfg.JWT); err != nil {
		return err
	}

	return validateRevocationConfig(&cfg.Revocation)
}

func validateJWTConfig(cfg *JWTConfig) error {
	if cfg.SecretKey == "" {
		return nil
	}

	if len(cfg.SecretKey) < 32 {
		return fmt.Errorf("JWT secret key must be at least 32 characters long")
	}

	weakPatterns := []string{"password", "secret", "test", "example", "default", "change"}
	lowered := strings.ToLower(cfg.SecretKey)
	for _, pattern := range weakPatterns {
		if strings.Contains(lowered, pattern) {
			return fmt.Errorf("JWT secret key contains weak patterns (%q)", pattern)
		}
	}

	if cfg.Algorithm != "HS256" {
		return fmt.Errorf("unsupported JWT algorithm: %s (supported: HS256)", cfg.Algorithm)
	}

	if cfg.RevocationCheckTimeout <= 0 {
		return fmt.Errorf("JWT revocation check timeout must be positive")
	}

	return nil
}

func validateRevocationConfig(cfg *RevocationConfig) error {
	if cfg.PurgeGrace < 0 {
		return fmt.Errorf("revocation purge grace cannot be negative")
	}

	return nil
}
