package testutils

import (
	"time"

	"github.com/bookwell/authkit/config"
)

func GetTestConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{
			Name: "Test App",
			URL:  "http://localhost:8080",
		},
		JWT: config.JWTConfig{
			SecretKey:              "unit-fixture-signing-material-0123456789abcdef",
			Algorithm:              "HS256",
			Issuer:                 "authkit-tests",
			AccessExpiry:           15 * time.Minute,
			RefreshExpiry:          720 * time.Hour,
			RevocationCheckTimeout: 2 * time.Second,
		},
		Revocation: config.RevocationConfig{
			PurgePeriod: time.Hour,
			PurgeGrace:  0,
		},
		Permissions: config.PermissionsConfig{
			CacheTTL: 10 * time.Second,
		},
		Database: config.DatabaseConfig{
			Driver:      "sqlite",
			DSN:         ":memory:",
			AutoMigrate: true,
		},
	}
}
