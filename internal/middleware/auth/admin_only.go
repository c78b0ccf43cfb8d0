package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// RequireAdmin gates the admin surface: logged out goes to login,
// authenticated non-admins go home, admins pass through.
func RequireAdmin(s Session) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !s.Authenticated() {
				return c.Redirect(http.StatusSeeOther, "/login")
			}
			if !s.IsAdmin() {
				return c.Redirect(http.StatusSeeOther, "/")
			}
			return next(c)
		}
	}
}
