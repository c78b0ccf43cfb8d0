package httpserver

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"storefront/internal/backend"
	"storefront/internal/logging"
	"storefront/internal/models"
)

type CatalogHTTP struct {
	Backend *backend.Client
}

func (h *CatalogHTTP) GetProducts(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "catalog.list")

	products, err := h.Backend.Products(ctx)
	if err != nil {
		l.Error("get_products_error", "status", 500, "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}

	if category := c.QueryParam("category"); category != "" {
		filtered := make([]models.Product, 0, len(products))
		for _, p := range products {
			if p.Category == category {
				filtered = append(filtered, p)
			}
		}
		products = filtered
	}

	return c.JSON(http.StatusOK, products)
}

func (h *CatalogHTTP) GetProduct(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "catalog.get")

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid product id"})
	}

	product, err := h.Backend.Product(ctx, uint(id))
	if err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "product not found"})
		}
		l.Error("get_product_error", "status", 500, "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}

	return c.JSON(http.StatusOK, product)
}

func (h *CatalogHTTP) GetCategories(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "catalog.categories")

	categories, err := h.Backend.Categories(ctx)
	if err != nil {
		l.Error("get_categories_error", "status", 500, "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	return c.JSON(http.StatusOK, categories)
}

func (h *CatalogHTTP) CreateProduct(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "catalog.create")

	var req models.Product
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.Name == "" || req.Price < 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name required and price must be >= 0"})
	}

	product, err := h.Backend.CreateProduct(ctx, &req)
	if err != nil {
		l.Error("create_product_error", "status", 500, "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}

	l.Info("product created", "product_id", product.ID)
	return c.JSON(http.StatusCreated, product)
}

func (h *CatalogHTTP) UpdateProduct(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "catalog.update")

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid product id"})
	}

	var req models.Product
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.Name == "" || req.Price < 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name required and price must be >= 0"})
	}

	product, err := h.Backend.UpdateProduct(ctx, uint(id), &req)
	if err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "product not found"})
		}
		l.Error("update_product_error", "status", 500, "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}

	return c.JSON(http.StatusOK, product)
}

func (h *CatalogHTTP) DeleteProduct(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "catalog.delete")

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid product id"})
	}

	if err := h.Backend.DeleteProduct(ctx, uint(id)); err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "product not found"})
		}
		l.Error("delete_product_error", "status", 500, "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}

	return c.NoContent(http.StatusNoContent)
}
