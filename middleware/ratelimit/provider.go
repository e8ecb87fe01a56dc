package ratelimit

import (
	"github.com/bookwell/authkit/config"
)

func ProvideRateLimitStore(cfg *config.Config) Store {
	return NewStore(&cfg.RateLimit)
}
