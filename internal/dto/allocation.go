package dto

import (
	"time"

	"campus-core/backend/internal/model"
	"campus-core/backend/internal/service"
)

// ── 分配模块 DTO ──
// 日期统一使用 YYYY-MM-DD

// AllocateRequest 分配房间请求
type AllocateRequest struct {
	StudentID string `json:"student_id" binding:"required,max=32"`
	RoomID    string `json:"room_id"    binding:"required,uuid"`
	Date      string `json:"date"       binding:"required"`
}

// DeallocateRequest 退宿请求
type DeallocateRequest struct {
	Date string `json:"date" binding:"required"`
}

// CheckInRequest 入住登记请求
type CheckInRequest struct {
	Date string `json:"date" binding:"required"`
}

// CancelAllocationRequest 撤销分配请求
type CancelAllocationRequest struct {
	Reason string `json:"reason" binding:"required,max=255"`
}

// AllocationListRequest 分配记录查询参数，student_id 与 room_id 二选一
type AllocationListRequest struct {
	StudentID string `form:"student_id" binding:"omitempty,max=32"`
	RoomID    string `form:"room_id"    binding:"omitempty,uuid"`
}

// AllocationResponse 分配记录响应
type AllocationResponse struct {
	ID             string  `json:"allocation_id"`
	StudentID      string  `json:"student_id"`
	RoomID         string  `json:"room_id"`
	AllocationDate string  `json:"allocation_date"`
	CheckInDate    *string `json:"check_in_date,omitempty"`
	CheckOutDate   *string `json:"check_out_date,omitempty"`
	Status         string  `json:"status"`
	CancelReason   *string `json:"cancel_reason,omitempty"`
	CreatedAt      string  `json:"created_at"`
}

// TraceResponse 多步操作实际经过的步骤
type TraceResponse struct {
	Operation string   `json:"operation"`
	Steps     []string `json:"steps"`
}

// AllocationOutcomeResponse 分配 / 退宿 / 撤销的结果
type AllocationOutcomeResponse struct {
	Allocation *AllocationResponse `json:"allocation"`
	Room       *RoomResponse       `json:"room,omitempty"`
	Trace      *TraceResponse      `json:"trace,omitempty"`
}

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(model.DateLayout)
	return &s
}

// NewAllocationResponse 模型转响应
func NewAllocationResponse(a *model.Allocation) *AllocationResponse {
	if a == nil {
		return nil
	}
	return &AllocationResponse{
		ID:             a.AllocationID,
		StudentID:      a.StudentID,
		RoomID:         a.RoomID,
		AllocationDate: a.AllocationDate.Format(model.DateLayout),
		CheckInDate:    formatDate(a.CheckInDate),
		CheckOutDate:   formatDate(a.CheckOutDate),
		Status:         string(a.Status),
		CancelReason:   a.CancelReason,
		CreatedAt:      a.CreatedAt.Format(time.RFC3339),
	}
}

// NewAllocationResponses 批量转换
func NewAllocationResponses(allocs []model.Allocation) []AllocationResponse {
	list := make([]AllocationResponse, 0, len(allocs))
	for i := range allocs {
		list = append(list, *NewAllocationResponse(&allocs[i]))
	}
	return list
}

// NewTraceResponse 步骤名转字符串
func NewTraceResponse(trace *service.OperationTrace) *TraceResponse {
	if trace == nil {
		return nil
	}
	steps := make([]string, 0, len(trace.Steps))
	for _, s := range trace.Steps {
		steps = append(steps, string(s))
	}
	return &TraceResponse{Operation: string(trace.Operation), Steps: steps}
}

// NewAllocationOutcomeResponse 协调器结果转响应
func NewAllocationOutcomeResponse(out *service.AllocationOutcome) *AllocationOutcomeResponse {
	if out == nil {
		return nil
	}
	return &AllocationOutcomeResponse{
		Allocation: NewAllocationResponse(out.Allocation),
		Room:       NewRoomResponse(out.Room),
		Trace:      NewTraceResponse(out.Trace),
	}
}
