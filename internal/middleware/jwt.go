package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/circle/internal/auth"
)

const participantKey = "participant_id"

// JWTMiddleware authenticates the bearer token and stores the participant id
// on the context. Websocket clients that cannot set headers may pass the token
// as the access_token query parameter.
func JWTMiddleware(iss *auth.Issuer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := strings.TrimPrefix(c.Request().Header.Get(echo.HeaderAuthorization), "Bearer ")
			if token == "" {
				token = c.QueryParam("access_token")
			}
			if token == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing token"})
			}
			id, err := iss.Parse(token)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			c.Set(participantKey, id)
			return next(c)
		}
	}
}

// ParticipantID returns the id stored by JWTMiddleware.
func ParticipantID(c echo.Context) (int64, bool) {
	id, ok := c.Get(participantKey).(int64)
	return id, ok
}
