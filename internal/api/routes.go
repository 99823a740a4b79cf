package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter создаёт gin.Engine со всеми маршрутами API.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true

	r.Use(
		Recovery(h.logger),
		Tracing(),
		Metrics(),
		Logging(h.logger),
	)

	r.NoRoute(noRoute)
	r.NoMethod(MethodNotAllowed)

	h.RegisterRoutes(r)
	return r
}

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	// Health
	r.GET("/health", h.Health)
	r.GET("/health/ready", h.Ready)
	r.GET("/health/live", h.Live)
	r.GET("/health/workers/:name", h.WorkerHealth)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")

	// Orders
	v1.POST("/orders", h.CreateOrder)
	v1.GET("/orders/:id", h.GetOrder)
	v1.GET("/orders/:id/history", h.GetOrderHistory)

	// Customers
	v1.GET("/customers/:email/orders", h.ListCustomerOrders)

	// Workers
	v1.GET("/workers", h.ListWorkers)
}
