package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"horse.fit/bookimport/internal/auth"
)

// requireAdminToken checks the bearer token against the configured hash. Without a hash the
// route is open.
func (s *Server) requireAdminToken() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if s.opts.AdminTokenHash == "" {
				return next(c)
			}

			token, ok := auth.BearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if !ok || !auth.VerifyToken(token, s.opts.AdminTokenHash) {
				c.Response().Header().Set(echo.HeaderWWWAuthenticate, `Bearer realm="bookimport"`)
				return fail(c, http.StatusUnauthorized, "Authentication required", nil)
			}
			return next(c)
		}
	}
}
