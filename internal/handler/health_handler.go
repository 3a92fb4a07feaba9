package handler

import (
	"net/http"

	"faq-rag-go/internal/service"

	"github.com/gin-gonic/gin"
)

// HealthHandler 提供存活与就绪探针。
type HealthHandler struct {
	askService service.AskService
}

// NewHealthHandler 创建一个新的 HealthHandler 实例。
func NewHealthHandler(askService service.AskService) *HealthHandler {
	return &HealthHandler{askService: askService}
}

// Healthz 始终返回 200，就绪状态放在响应体中。
func (h *HealthHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, h.askService.Health())
}
