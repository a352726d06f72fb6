package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// AdminGuard ensures only allow-listed participants reach admin routes.
// It must run after JWTMiddleware.
func AdminGuard(isAdmin func(int64) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := ParticipantID(c)
			if !ok || !isAdmin(id) {
				return c.JSON(http.StatusForbidden, echo.Map{
					"error": "admin access only",
				})
			}
			return next(c)
		}
	}
}
