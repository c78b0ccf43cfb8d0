package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Session is the view the guards get of the session store.
type Session interface {
	Authenticated() bool
	IsAdmin() bool
}

// RequireLogin redirects unauthenticated requests to the login page. The
// 303 replaces the guarded location, so going back does not land on it.
// The decision is recomputed from session state on every request.
func RequireLogin(s Session) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !s.Authenticated() {
				return c.Redirect(http.StatusSeeOther, "/login")
			}
			return next(c)
		}
	}
}
