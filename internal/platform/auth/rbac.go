package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// RequireRole permits only actors holding one of the given roles. The admin
// role always passes.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			actor, ok := ActorFromContext(c.Request().Context())
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "no actor in context")
			}
			if actor.Role == RoleAdmin || allowed[actor.Role] {
				return next(c)
			}
			return echo.NewHTTPError(http.StatusForbidden, "insufficient role")
		}
	}
}

// RequireAdministrative permits only oversight and admin actors.
func RequireAdministrative() echo.MiddlewareFunc {
	return RequireRole(RoleOversight)
}
