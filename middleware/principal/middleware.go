package principal

import (
	"github.com/labstack/echo/v4"

	"github.com/bookwell/authkit/middleware/jwtauth"
)

type Config struct {
	Provider Provider
}

// Provider resolves the application's account record for an
// authenticated user ID. authkit does not store accounts itself.
type Provider interface {
	GetPrincipal(c echo.Context, userID uint) (any, error)
}

func Middleware(provider Provider) echo.MiddlewareFunc {
	return MiddlewareWithConfig(Config{
		Provider: provider,
	})
}

func MiddlewareWithConfig(cfg Config) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID := jwtauth.GetUserID(c)

			if userID > 0 && cfg.Provider != nil {
				if p, err := cfg.Provider.GetPrincipal(c, userID); err == nil && p != nil {
					c.Set("currentPrincipal", p)
				}
			}

			return next(c)
		}
	}
}

func GetCurrentPrincipal(c echo.Context) any {
	return c.Get("currentPrincipal")
}
