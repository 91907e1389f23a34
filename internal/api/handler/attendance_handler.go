package handler

import (
	"github.com/gin-gonic/gin"

	"campus-core/backend/internal/dto"
	"campus-core/backend/internal/model"
	"campus-core/backend/internal/service"
	"campus-core/backend/pkg/response"
)

// AttendanceHandler 考勤模块 HTTP 处理器
type AttendanceHandler struct {
	attendance  service.AttendanceReconciler
	coordinator service.Coordinator
}

// NewAttendanceHandler 创建 AttendanceHandler
func NewAttendanceHandler(attendance service.AttendanceReconciler, coordinator service.Coordinator) *AttendanceHandler {
	return &AttendanceHandler{attendance: attendance, coordinator: coordinator}
}

// toMarkings 请求转领域输入；status 缺省时由 present 换算
func toMarkings(reqs []dto.MarkingRequest) []service.Marking {
	markings := make([]service.Marking, 0, len(reqs))
	for _, r := range reqs {
		status := model.AttendanceStatus(r.Status)
		if status == "" && r.Present != nil {
			status = model.AttendanceAbsent
			if *r.Present {
				status = model.AttendancePresent
			}
		}
		markings = append(markings, service.Marking{
			StudentID: r.StudentID,
			Ordinal:   r.Ordinal,
			Status:    status,
		})
	}
	return markings
}

// ReplaceDay 整批替换某天某课程科目的考勤
// PUT /api/v1/attendance/day
func (h *AttendanceHandler) ReplaceDay(c *gin.Context) {
	var req dto.ReplaceDayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	date, ok := MustParseDate(c, "date", req.Date)
	if !ok {
		return
	}

	markedBy, ok := MustGetUserID(c)
	if !ok {
		return
	}

	key := service.DayKey{Course: req.Course, Subject: req.Subject, Date: date}
	out, err := h.coordinator.ReplaceAttendanceDay(c.Request.Context(), key, toMarkings(req.Markings), markedBy)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.OK(c, dto.ReplaceDayResponse{
		Records: dto.NewAttendanceResponses(out.Records),
		Report:  out.Report,
		Trace:   dto.NewTraceResponse(out.Trace),
	})
}

// ListAttendance 查询考勤记录
// GET /api/v1/attendance?student_id= | ?date= | ?course=&subject= | ?course=&subject=&date=
func (h *AttendanceHandler) ListAttendance(c *gin.Context) {
	var req dto.AttendanceQueryRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	ctx := c.Request.Context()
	hasCourse := req.Course != "" && req.Subject != ""

	var (
		records []model.AttendanceRecord
		err     error
	)
	switch {
	case req.StudentID != "":
		records, err = h.attendance.ByStudent(ctx, req.StudentID)
	case req.Date != "":
		date, ok := MustParseDate(c, "date", req.Date)
		if !ok {
			return
		}
		if hasCourse {
			records, err = h.attendance.ByDay(ctx, service.DayKey{Course: req.Course, Subject: req.Subject, Date: date})
		} else {
			records, err = h.attendance.ByDate(ctx, date)
		}
	case hasCourse:
		records, err = h.attendance.ByCourseAndSubject(ctx, req.Course, req.Subject)
	default:
		response.BadRequest(c, 10001, "需提供 student_id、date 或 course+subject")
		return
	}
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.OKList(c, dto.NewAttendanceResponses(records))
}

// Summary 单个考勤键的出勤汇总
// GET /api/v1/attendance/summary?course=&subject=&date=
func (h *AttendanceHandler) Summary(c *gin.Context) {
	var req dto.DayKeyQuery
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	date, ok := MustParseDate(c, "date", req.Date)
	if !ok {
		return
	}

	summary, err := h.attendance.Summary(c.Request.Context(), service.DayKey{Course: req.Course, Subject: req.Subject, Date: date})
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.OK(c, summary)
}
