package middleware

import (
	"net/http"
	"slices"

	"github.com/labstack/echo/v4"
)

// Roles returns the roles JWTMiddleware stored on c.
func Roles(c echo.Context) []string {
	roles, _ := c.Get("roles").([]string)
	return roles
}

// RequireRoles lets the request through when the caller holds any of roles.
// Usage: route(..., RequireRoles("provider"))
func RequireRoles(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			have := Roles(c)
			if len(have) == 0 {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "role missing", "code": "FORBIDDEN"})
			}
			for _, r := range roles {
				if slices.Contains(have, r) {
					return next(c)
				}
			}
			return c.JSON(http.StatusForbidden, echo.Map{"error": "access denied", "code": "FORBIDDEN"})
		}
	}
}
