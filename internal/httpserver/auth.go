package httpserver

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"storefront/internal/backend"
	"storefront/internal/cart"
	"storefront/internal/logging"
	"storefront/internal/session"
)

type AuthHTTP struct {
	Sessions *session.Store
	Cart     *cart.Store
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHTTP) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.login")

	var req credentials
	if err := c.Bind(&req); err != nil {
		l.Warn("login_error", "status", 400, "error", err)
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	user, err := h.Sessions.Login(ctx, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrValidation):
			l.Warn("login_error", "status", 400)
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "email and password required"})
		case errors.Is(err, session.ErrInvalidCredentials):
			l.Warn("login_error", "status", 401)
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid email or password"})
		default:
			l.Error("login_error", "status", 500, "error", err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "login failed, please try again"})
		}
	}

	// Identity just transitioned to logged in; mirror the server cart.
	if err := h.Cart.Refresh(ctx); err != nil {
		l.Error("cart refresh after login failed", "error", err)
	}

	l.Info("user logged in", "user_id", user.ID)
	return c.JSON(http.StatusOK, echo.Map{"user": user})
}

func (h *AuthHTTP) Register(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.register")

	var req credentials
	if err := c.Bind(&req); err != nil {
		l.Warn("register_error", "status", 400, "error", err)
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	user, err := h.Sessions.Register(ctx, req.Email, req.Password)
	if err != nil {
		var se *backend.StatusError
		switch {
		case errors.Is(err, session.ErrValidation):
			l.Warn("register_error", "status", 400)
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "email and password required"})
		case errors.As(err, &se):
			// The backend's own reason, e.g. a duplicate email.
			l.Warn("register_error", "status", se.Status, "error", err)
			return c.JSON(se.Status, echo.Map{"error": se.Body})
		default:
			l.Error("register_error", "status", 500, "error", err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "registration failed, please try again"})
		}
	}

	l.Info("user registered", "user_id", user.ID)
	return c.JSON(http.StatusCreated, echo.Map{"user": user})
}

func (h *AuthHTTP) Logout(c echo.Context) error {
	h.Sessions.Logout()
	h.Cart.ResetLocal()
	return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
}
