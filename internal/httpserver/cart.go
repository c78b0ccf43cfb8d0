package httpserver

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"storefront/internal/cart"
	"storefront/internal/checkout"
	"storefront/internal/logging"
)

type CartHTTP struct {
	Cart     *cart.Store
	Checkout *checkout.Workflow
}

func (h *CartHTTP) cartView(c echo.Context, status int) error {
	return c.JSON(status, echo.Map{
		"items": h.Cart.Lines(),
		"total": h.Cart.Total(),
	})
}

func (h *CartHTTP) GetCart(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.get")

	if err := h.Cart.Refresh(ctx); err != nil {
		l.Error("get_cart_error", "status", 500, "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	return h.cartView(c, http.StatusOK)
}

func (h *CartHTTP) AddToCart(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.add")

	var req struct {
		ProductID uint `json:"productId"`
		Quantity  uint `json:"quantity"`
	}
	if err := c.Bind(&req); err != nil {
		l.Warn("add_to_cart_error", "status", 400, "error", err)
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	if err := h.Cart.Add(ctx, req.ProductID, req.Quantity); err != nil {
		switch {
		case errors.Is(err, cart.ErrValidation):
			l.Warn("add_to_cart_error", "status", 400)
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "productId required"})
		case errors.Is(err, cart.ErrUnauthenticated):
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
		default:
			l.Error("add_to_cart_error", "status", 500, "error", err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
		}
	}

	l.Info("item added to cart", "product_id", req.ProductID)
	return h.cartView(c, http.StatusOK)
}

func (h *CartHTTP) UpdateLine(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.update")

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid line id"})
	}

	var req struct {
		Quantity uint `json:"quantity"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	if err := h.Cart.Update(ctx, uint(id), req.Quantity); err != nil {
		switch {
		case errors.Is(err, cart.ErrValidation):
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "quantity must be at least 1"})
		case errors.Is(err, cart.ErrUnauthenticated):
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
		default:
			l.Error("update_cart_error", "status", 500, "error", err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
		}
	}

	return h.cartView(c, http.StatusOK)
}

func (h *CartHTTP) RemoveLine(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.remove")

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid line id"})
	}

	if err := h.Cart.Remove(ctx, uint(id)); err != nil {
		if errors.Is(err, cart.ErrUnauthenticated) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
		}
		l.Error("remove_cart_error", "status", 500, "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}

	return h.cartView(c, http.StatusOK)
}

func (h *CartHTTP) ClearCart(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.clear")

	if err := h.Cart.Clear(ctx); err != nil {
		if errors.Is(err, cart.ErrUnauthenticated) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
		}
		l.Error("clear_cart_error", "status", 500, "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}

	return h.cartView(c, http.StatusOK)
}

// PlaceOrder drives the checkout workflow. Failures surface as one generic
// message; partial results are only in the log.
func (h *CartHTTP) PlaceOrder(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "checkout.run")

	orders, err := h.Checkout.Run(ctx)
	if err != nil {
		switch {
		case errors.Is(err, checkout.ErrEmptyCart):
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "cart is empty"})
		case errors.Is(err, checkout.ErrInFlight):
			return c.JSON(http.StatusConflict, echo.Map{"error": "checkout already in progress"})
		default:
			l.Error("checkout_error", "status", 500, "error", err, "orders_created", len(orders))
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to process checkout. Please try again."})
		}
	}

	l.Info("checkout completed", "orders", len(orders))
	return c.JSON(http.StatusOK, echo.Map{
		"orders":   orders,
		"redirect": "/orders",
	})
}
