package handler

import (
	"net/http"

	"biogenie-go/internal/service"

	"github.com/gin-gonic/gin"
)

// HealthHandler 暴露存活与就绪探针。
type HealthHandler struct {
	healthService service.HealthService
}

// NewHealthHandler 创建一个新的 HealthHandler 实例。
func NewHealthHandler(healthService service.HealthService) *HealthHandler {
	return &HealthHandler{healthService: healthService}
}

// Health 返回 {status, index_ready}。
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, h.healthService.Summary(c.Request.Context()))
}

// Live 只要进程能处理请求就返回 200。
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready 在依赖不可用时返回 503。
func (h *HealthHandler) Ready(c *gin.Context) {
	report, err := h.healthService.Ready(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, report)
		return
	}
	c.JSON(http.StatusOK, report)
}
