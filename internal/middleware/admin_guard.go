package middleware

import (
	"net/http"
	"slices"

	"github.com/labstack/echo/v4"
)

// AdminGuard ensures only admin users can access admin routes
func AdminGuard(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !slices.Contains(Roles(c), "admin") {
			return c.JSON(http.StatusForbidden, echo.Map{"error": "admin access only", "code": "FORBIDDEN"})
		}
		return next(c)
	}
}
