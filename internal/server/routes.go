package server

import (
	"ordercore/internal/metrics"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo, authMW echo.MiddlewareFunc, h Handlers) {
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	if h.Health != nil {
		h.Health.RegisterRoutes(e)
	}
	h.Orders.RegisterRoutes(e, authMW)
	h.AdminOrders.RegisterRoutes(e, authMW)
}
