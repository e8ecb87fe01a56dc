package ratelimit

import (
	"fmt"
	"hash/fnv"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/bookwell/authkit/config"
)

// Config controls the fixed-window limiter. With CountFailures (the
// default for credential endpoints) only rejected requests consume the
// budget, so well-behaved clients are never throttled while repeated
// bad tokens or guessed credentials burn through it quickly.
type Config struct {
	Store          Store
	Rate           int
	Period         time.Duration
	CountMode      config.CountingMode
	KeyGenerator   func(c echo.Context) string
	OnLimitReached func(c echo.Context) error
}

func Middleware(cfg *Config) echo.MiddlewareFunc {
	if cfg.Store == nil {
		cfg.Store = NewMemoryStore()
	}

	if cfg.Rate <= 0 {
		cfg.Rate = 10
	}

	if cfg.Period <= 0 {
		cfg.Period = time.Minute
	}

	if cfg.KeyGenerator == nil {
		cfg.KeyGenerator = DefaultKeyGenerator
	}

	if cfg.OnLimitReached == nil {
		cfg.OnLimitReached = DefaultOnLimitReached
	}

	if cfg.CountMode == "" {
		cfg.CountMode = config.CountFailures
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := cfg.KeyGenerator(c)
			now := time.Now()
			resetTime := now.Add(cfg.Period)

			count, existingResetTime, exists := cfg.Store.Get(key)
			if exists {
				resetTime = existingResetTime
			}

			if count >= cfg.Rate {
				setLimitHeaders(c, cfg.Rate, 0, resetTime)
				return cfg.OnLimitReached(c)
			}

			// Every request is charged up front; selective modes
			// refund the slot after the outcome is known.
			newCount := cfg.Store.Increment(key, resetTime)

			setLimitHeaders(c, cfg.Rate, max(cfg.Rate-newCount, 0), resetTime)

			err := next(c)

			if cfg.CountMode != config.CountAll {
				statusCode := c.Response().Status
				shouldCount := false

				switch cfg.CountMode {
				case config.CountFailures:
					shouldCount = statusCode >= 400
				case config.CountSuccess:
					shouldCount = statusCode < 400
				}

				if !shouldCount {
					cfg.Store.Decrement(key)
				}
			}

			return err
		}
	}
}

func setLimitHeaders(c echo.Context, limit, remaining int, resetTime time.Time) {
	h := c.Response().Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(resetTime.Unix(), 10))
}

// DefaultKeyGenerator buckets by client IP and request path, so a
// flood against the login route cannot starve the refresh route.
func DefaultKeyGenerator(c echo.Context) string {
	realIP := c.RealIP()
	if realIP == "" || realIP == "unknown" {
		realIP = "fallback"
	}

	return "rate_limit:" + realIP + ":" + c.Path()
}

// SecureKeyGenerator additionally mixes in the User-Agent, which makes
// it harder for a single NAT'd address to exhaust the shared budget.
func SecureKeyGenerator(c echo.Context) string {
	realIP := c.RealIP()
	if realIP == "" || realIP == "unknown" {
		realIP = "fallback"
	}

	h := fnv.New32a()
	h.Write([]byte(c.Request().Header.Get("User-Agent")))

	return fmt.Sprintf("rate_limit:%s:%x", realIP, h.Sum32())
}

func DefaultOnLimitReached(c echo.Context) error {
	return c.JSON(http.StatusTooManyRequests, map[string]string{
		"kind":  "rate_limited",
		"error": "too many attempts, try again later",
	})
}

func NewStore(rateLimitConfig *config.RateLimitConfig) Store {
	var store Store
	switch rateLimitConfig.Store {
	case "memory":
		fallthrough
	default:
		store = NewMemoryStore()
	}

	return store
}

func WithConfig(cfg *Config) echo.MiddlewareFunc {
	return Middleware(cfg)
}
