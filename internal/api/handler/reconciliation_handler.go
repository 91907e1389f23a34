package handler

import (
	"github.com/gin-gonic/gin"

	"campus-core/backend/internal/service"
	"campus-core/backend/pkg/response"
)

// ReconciliationHandler 待对账记录查询
type ReconciliationHandler struct {
	coordinator service.Coordinator
}

// NewReconciliationHandler 创建 ReconciliationHandler
func NewReconciliationHandler(coordinator service.Coordinator) *ReconciliationHandler {
	return &ReconciliationHandler{coordinator: coordinator}
}

// ListPending 部分提交与未完成考勤替换的待处理列表
// GET /api/v1/reconciliations
func (h *ReconciliationHandler) ListPending(c *gin.Context) {
	entries, err := h.coordinator.PendingReconciliations(c.Request.Context())
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.OKList(c, entries)
}
