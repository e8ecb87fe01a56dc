package jwtauth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/bookwell/authkit/services/jwt"
	"github.com/bookwell/authkit/services/logging"
	"github.com/bookwell/authkit/services/rbac"
	"github.com/bookwell/authkit/services/revocation"
)

const (
	UserIDKey = "_auth_user_id"
	RoleIDKey = "_auth_role_id"
	ClaimsKey = "_auth_claims"
)

// Rejection is the JSON error body returned on a denied request. Kind is
// deliberately coarse: the precise failure (expired vs revoked vs bad
// signature) goes to logs only, never to the client.
type Rejection struct {
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

var (
	unauthorizedBody = Rejection{Kind: "unauthorized", Error: "session invalid, please log in again"}
	forbiddenBody    = Rejection{Kind: "forbidden", Error: "you do not have permission to perform this action"}
)

func RequireAuth(tokens *jwt.Service, logger *logging.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, unauthorizedBody)
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == "" {
				return c.JSON(http.StatusUnauthorized, unauthorizedBody)
			}

			claims, err := tokens.Authenticate(c.Request().Context(), tokenString)
			if err != nil {
				if logger != nil {
					logger.Warn("authentication rejected",
						zap.String("kind", jwt.RejectionKind(err)),
						zap.String("remote_ip", c.RealIP()),
						zap.String("path", c.Path()))
				}
				return c.JSON(http.StatusUnauthorized, unauthorizedBody)
			}

			// Refresh tokens only buy new pairs; they never reach handlers.
			if claims.TokenType == string(revocation.TokenTypeRefresh) {
				if logger != nil {
					logger.Warn("refresh token presented as bearer credential",
						zap.Uint("user_id", claims.UserID),
						zap.String("remote_ip", c.RealIP()))
				}
				return c.JSON(http.StatusUnauthorized, unauthorizedBody)
			}

			c.Set(UserIDKey, claims.UserID)
			c.Set(RoleIDKey, claims.RoleID)
			c.Set(ClaimsKey, claims)

			return next(c)
		}
	}
}

// RequirePermission gates a route on one (resource, action) pair. It must
// run after RequireAuth.
func RequirePermission(resolver *rbac.Service, resource string, action rbac.Action) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims := GetClaims(c)
			if claims == nil {
				return c.JSON(http.StatusUnauthorized, unauthorizedBody)
			}

			if !resolver.IsAllowed(c.Request().Context(), claims.RoleID, resource, action) {
				return c.JSON(http.StatusForbidden, forbiddenBody)
			}

			return next(c)
		}
	}
}

func GetUserID(c echo.Context) uint {
	if userID, ok := c.Get(UserIDKey).(uint); ok {
		return userID
	}
	return 0
}

func GetRoleID(c echo.Context) uint {
	if roleID, ok := c.Get(RoleIDKey).(uint); ok {
		return roleID
	}
	return 0
}

func GetClaims(c echo.Context) *jwt.Claims {
	if claims, ok := c.Get(ClaimsKey).(*jwt.Claims); ok {
		return claims
	}
	return nil
}
