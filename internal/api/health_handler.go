package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shaiso/orderflow/internal/domain"
	"github.com/shaiso/orderflow/internal/health"
)

// Health обрабатывает GET /health: все проверки, включая воркеры.
func (h *Handler) Health(c *gin.Context) {
	h.respondHealth(c, h.health.Run(c.Request.Context(), health.All))
}

// Ready обрабатывает GET /health/ready: проверки с тегом "ready".
func (h *Handler) Ready(c *gin.Context) {
	h.respondHealth(c, h.health.Run(c.Request.Context(), health.Tagged("ready")))
}

// Live обрабатывает GET /health/live: без проверок зависимостей.
func (h *Handler) Live(c *gin.Context) {
	h.respondHealth(c, h.health.Run(c.Request.Context(), health.None))
}

// WorkerHealth обрабатывает GET /health/workers/:name.
func (h *Handler) WorkerHealth(c *gin.Context) {
	name := c.Param("name")

	report := h.health.Run(c.Request.Context(), health.Named(name))
	if len(report.Entries) == 0 {
		NotFound(c, "unknown health check: "+name)
		return
	}
	h.respondHealth(c, report)
}

// ListWorkers обрабатывает GET /api/v1/workers: сохранённые снимки
// как есть, без оценки свежести.
func (h *Handler) ListWorkers(c *gin.Context) {
	if h.workers == nil {
		List(c, []domain.WorkerHealthStatus{}, 0)
		return
	}

	snapshots, err := h.workers.List(c.Request.Context())
	if handleRepoError(c, h.logger, err, "worker status not found") {
		return
	}
	if snapshots == nil {
		snapshots = []domain.WorkerHealthStatus{}
	}
	List(c, snapshots, len(snapshots))
}

// respondHealth пишет отчёт: 503 для Unhealthy, иначе 200.
func (h *Handler) respondHealth(c *gin.Context, report health.Report) {
	code := http.StatusOK
	if report.Status == health.StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, report)
}
