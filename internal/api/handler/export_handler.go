package handler

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"campus-core/backend/internal/dto"
	"campus-core/backend/internal/service"
	"campus-core/backend/pkg/response"
)

// ExportHandler 导出模块 HTTP 处理器
type ExportHandler struct {
	exportSvc service.ExportService
}

// NewExportHandler 创建 ExportHandler
func NewExportHandler(exportSvc service.ExportService) *ExportHandler {
	return &ExportHandler{exportSvc: exportSvc}
}

// ExportAttendance 导出某天某课程科目的考勤表
// GET /api/v1/export/attendance?course=&subject=&date=
func (h *ExportHandler) ExportAttendance(c *gin.Context) {
	var req dto.DayKeyQuery
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "course、subject、date 不能为空")
		return
	}

	date, ok := MustParseDate(c, "date", req.Date)
	if !ok {
		return
	}

	key := service.DayKey{Course: req.Course, Subject: req.Subject, Date: date}
	buf, filename, err := h.exportSvc.ExportAttendance(c.Request.Context(), key)
	if err != nil {
		h.handleExportError(c, err)
		return
	}

	// 设置下载响应头
	encodedFilename := url.QueryEscape(filename)
	c.Header("Content-Description", "File Transfer")
	c.Header("Content-Disposition", "attachment; filename*=UTF-8''"+encodedFilename)
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

func (h *ExportHandler) handleExportError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrExportNoRecords):
		response.NotFound(c, 20501, "该考勤键下暂无记录")
	case errors.Is(err, service.ErrExportGenerateFail):
		response.InternalError(c)
	default:
		handleServiceError(c, err)
	}
}
