package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"storefront/internal/backend"
	"storefront/internal/cart"
	"storefront/internal/checkout"
	authmw "storefront/internal/middleware/auth"
	"storefront/internal/session"
)

type Deps struct {
	Backend  *backend.Client
	Sessions *session.Store
	Cart     *cart.Store
	Checkout *checkout.Workflow
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	auth := &AuthHTTP{Sessions: d.Sessions, Cart: d.Cart}
	catalog := &CatalogHTTP{Backend: d.Backend}
	cartH := &CartHTTP{Cart: d.Cart, Checkout: d.Checkout}
	orders := &OrdersHTTP{Backend: d.Backend, Sessions: d.Sessions}

	e.POST("/login", auth.Login)
	e.POST("/register", auth.Register)
	e.POST("/logout", auth.Logout)

	e.GET("/products", catalog.GetProducts)
	e.GET("/products/:id", catalog.GetProduct)
	e.GET("/categories", catalog.GetCategories)

	private := e.Group("", authmw.RequireLogin(d.Sessions))

	private.GET("/cart", cartH.GetCart)
	private.POST("/cart", cartH.AddToCart)
	private.PATCH("/cart/:id", cartH.UpdateLine)
	private.DELETE("/cart/:id", cartH.RemoveLine)
	private.DELETE("/cart", cartH.ClearCart)
	private.POST("/checkout", cartH.PlaceOrder)
	private.GET("/orders", orders.List)

	admin := e.Group("/admin", authmw.RequireAdmin(d.Sessions))

	admin.POST("/products", catalog.CreateProduct)
	admin.PUT("/products/:id", catalog.UpdateProduct)
	admin.DELETE("/products/:id", catalog.DeleteProduct)
}
