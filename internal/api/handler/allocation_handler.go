package handler

import (
	"github.com/gin-gonic/gin"

	"campus-core/backend/internal/dto"
	"campus-core/backend/internal/service"
	"campus-core/backend/pkg/response"
)

// AllocationHandler 住宿分配 HTTP 处理器
// 写操作全部经过 Coordinator，保证分配台账与房间状态一起推进
type AllocationHandler struct {
	ledger      service.AllocationLedger
	coordinator service.Coordinator
}

// NewAllocationHandler 创建 AllocationHandler
func NewAllocationHandler(ledger service.AllocationLedger, coordinator service.Coordinator) *AllocationHandler {
	return &AllocationHandler{ledger: ledger, coordinator: coordinator}
}

// Allocate 为学生分配房间
// POST /api/v1/allocations
func (h *AllocationHandler) Allocate(c *gin.Context) {
	var req dto.AllocateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	date, ok := MustParseDate(c, "date", req.Date)
	if !ok {
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	out, err := h.coordinator.AllocateRoom(c.Request.Context(), req.StudentID, req.RoomID, date, callerID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.Created(c, dto.NewAllocationOutcomeResponse(out))
}

// Deallocate 退宿
// POST /api/v1/allocations/:id/deallocate
func (h *AllocationHandler) Deallocate(c *gin.Context) {
	id, ok := MustGetUUIDParam(c, "id")
	if !ok {
		return
	}

	var req dto.DeallocateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	date, ok := MustParseDate(c, "date", req.Date)
	if !ok {
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	out, err := h.coordinator.DeallocateRoom(c.Request.Context(), id, date, callerID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.OK(c, dto.NewAllocationOutcomeResponse(out))
}

// Cancel 撤销分配（录入错误等场景）
// POST /api/v1/allocations/:id/cancel
func (h *AllocationHandler) Cancel(c *gin.Context) {
	id, ok := MustGetUUIDParam(c, "id")
	if !ok {
		return
	}

	var req dto.CancelAllocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	out, err := h.coordinator.CancelAllocation(c.Request.Context(), id, req.Reason, callerID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.OK(c, dto.NewAllocationOutcomeResponse(out))
}

// CheckIn 入住登记
// POST /api/v1/allocations/:id/check-in
func (h *AllocationHandler) CheckIn(c *gin.Context) {
	id, ok := MustGetUUIDParam(c, "id")
	if !ok {
		return
	}

	var req dto.CheckInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	date, ok := MustParseDate(c, "date", req.Date)
	if !ok {
		return
	}

	alloc, err := h.ledger.CheckIn(c.Request.Context(), id, date)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.OK(c, dto.NewAllocationResponse(alloc))
}

// GetAllocation 获取分配详情
// GET /api/v1/allocations/:id
func (h *AllocationHandler) GetAllocation(c *gin.Context) {
	id, ok := MustGetUUIDParam(c, "id")
	if !ok {
		return
	}

	alloc, err := h.ledger.Get(c.Request.Context(), id)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.OK(c, dto.NewAllocationResponse(alloc))
}

// ListAllocations 按学生或房间列出分配历史
// GET /api/v1/allocations?student_id= | ?room_id=
func (h *AllocationHandler) ListAllocations(c *gin.Context) {
	var req dto.AllocationListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	ctx := c.Request.Context()
	switch {
	case req.StudentID != "" && req.RoomID == "":
		allocs, err := h.ledger.ListByStudent(ctx, req.StudentID)
		if err != nil {
			handleServiceError(c, err)
			return
		}
		response.OKList(c, dto.NewAllocationResponses(allocs))
	case req.RoomID != "" && req.StudentID == "":
		allocs, err := h.ledger.ListByRoom(ctx, req.RoomID)
		if err != nil {
			handleServiceError(c, err)
			return
		}
		response.OKList(c, dto.NewAllocationResponses(allocs))
	default:
		response.BadRequest(c, 10001, "student_id 与 room_id 需且仅需提供一个")
	}
}

// GetActiveAllocation 学生当前的有效分配
// GET /api/v1/students/:id/allocation
func (h *AllocationHandler) GetActiveAllocation(c *gin.Context) {
	studentID := c.Param("id")
	if studentID == "" {
		response.BadRequest(c, 10001, "学号不能为空")
		return
	}

	alloc, err := h.ledger.ActiveFor(c.Request.Context(), studentID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	if alloc == nil {
		response.NotFound(c, CodeNoActiveAllocation, "该学生当前没有有效分配")
		return
	}

	response.OK(c, dto.NewAllocationResponse(alloc))
}
