package dto

import (
	"campus-core/backend/internal/model"
	"campus-core/backend/internal/service"
)

// ── 考勤模块 DTO ──

// MarkingRequest 一条考勤标记
// student_id 与 ordinal（花名册序号，从 1 开始）二选一；
// status 缺省时按 present 布尔值换算为 present / absent
type MarkingRequest struct {
	StudentID string `json:"student_id,omitempty" binding:"omitempty,max=32"`
	Ordinal   int    `json:"ordinal,omitempty"    binding:"omitempty,min=1"`
	Status    string `json:"status,omitempty"     binding:"omitempty,oneof=present absent late"`
	Present   *bool  `json:"present,omitempty"`
}

// ReplaceDayRequest 整批替换某天考勤的请求
type ReplaceDayRequest struct {
	Course   string           `json:"course"   binding:"required,max=50"`
	Subject  string           `json:"subject"  binding:"required,max=100"`
	Date     string           `json:"date"     binding:"required"`
	Markings []MarkingRequest `json:"markings" binding:"max=2000,dive"`
}

// AttendanceQueryRequest 考勤查询参数
// 按 student_id、date、course+subject 之一过滤；date 与 course+subject 同时给出时查询单个考勤键
type AttendanceQueryRequest struct {
	StudentID string `form:"student_id" binding:"omitempty,max=32"`
	Date      string `form:"date"`
	Course    string `form:"course"     binding:"omitempty,max=50"`
	Subject   string `form:"subject"    binding:"omitempty,max=100"`
}

// DayKeyQuery 单个考勤键（汇总与导出使用）
type DayKeyQuery struct {
	Course  string `form:"course"  binding:"required,max=50"`
	Subject string `form:"subject" binding:"required,max=100"`
	Date    string `form:"date"    binding:"required"`
}

// AttendanceRecordResponse 考勤记录响应
type AttendanceRecordResponse struct {
	ID        string `json:"attendance_id"`
	StudentID string `json:"student_id"`
	Course    string `json:"course"`
	Subject   string `json:"subject"`
	Date      string `json:"date"`
	Status    string `json:"status"`
	MarkedBy  string `json:"marked_by"`
}

// ReplaceDayResponse 整批替换结果
type ReplaceDayResponse struct {
	Records []AttendanceRecordResponse `json:"records"`
	Report  *service.ReplaceReport     `json:"report"`
	Trace   *TraceResponse             `json:"trace,omitempty"`
}

// NewAttendanceResponses 批量转换
func NewAttendanceResponses(records []model.AttendanceRecord) []AttendanceRecordResponse {
	list := make([]AttendanceRecordResponse, 0, len(records))
	for _, r := range records {
		list = append(list, AttendanceRecordResponse{
			ID:        r.AttendanceID,
			StudentID: r.StudentID,
			Course:    r.Course,
			Subject:   r.Subject,
			Date:      r.Date.Format(model.DateLayout),
			Status:    string(r.Status),
			MarkedBy:  r.MarkedBy,
		})
	}
	return list
}
