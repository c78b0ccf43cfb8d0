package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"storefront/internal/backend"
	"storefront/internal/logging"
	"storefront/internal/models"
	"storefront/internal/session"
)

type OrdersHTTP struct {
	Backend  *backend.Client
	Sessions *session.Store
}

// List is user-scoped for customers; admins see every order.
func (h *OrdersHTTP) List(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "orders.list")

	var orders []models.Order
	var err error
	if h.Sessions.IsAdmin() {
		orders, err = h.Backend.Orders(ctx)
	} else {
		userID, ok := h.Sessions.UserID()
		if !ok {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
		}
		orders, err = h.Backend.OrdersByUser(ctx, userID)
	}
	if err != nil {
		l.Error("list_orders_error", "status", 500, "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}

	if orders == nil {
		orders = []models.Order{}
	}
	return c.JSON(http.StatusOK, orders)
}
