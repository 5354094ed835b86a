package server

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"storefront/internal/handler"
)

type routes struct {
	authMW        echo.MiddlewareFunc
	auth          *handler.AuthHandler
	products      *handler.ProductHandler
	orders        *handler.OrderHandler
	adminOrders   *handler.AdminOrderHandler
	adminProducts *handler.AdminProductHandler
	health        func(context.Context) error
}

func registerRoutes(e *echo.Echo, r routes) {
	e.GET("/healthz", func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := r.health(ctx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	api := e.Group("/api")
	r.auth.RegisterRoutes(api)
	r.products.RegisterRoutes(api)
	r.orders.RegisterRoutes(api, r.authMW)
	r.adminOrders.RegisterRoutes(api, r.authMW)
	r.adminProducts.RegisterRoutes(api, r.authMW)
}
