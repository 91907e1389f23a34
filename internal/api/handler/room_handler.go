package handler

import (
	"github.com/gin-gonic/gin"

	"campus-core/backend/internal/dto"
	"campus-core/backend/internal/model"
	"campus-core/backend/internal/repository"
	"campus-core/backend/internal/service"
	"campus-core/backend/pkg/response"
)

// RoomHandler 房间模块 HTTP 处理器
type RoomHandler struct {
	rooms       service.RoomRegistry
	coordinator service.Coordinator
}

// NewRoomHandler 创建 RoomHandler
func NewRoomHandler(rooms service.RoomRegistry, coordinator service.Coordinator) *RoomHandler {
	return &RoomHandler{rooms: rooms, coordinator: coordinator}
}

// ListRooms 获取房间列表
// GET /api/v1/rooms?status=&gender=&block=
func (h *RoomHandler) ListRooms(c *gin.Context) {
	var req dto.RoomListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	var filter repository.RoomFilter
	if req.Status != "" {
		status := model.RoomStatus(req.Status)
		filter.Status = &status
	}
	if req.Gender != "" {
		filter.Gender = &req.Gender
	}
	if req.Block != "" {
		filter.Block = &req.Block
	}

	rooms, err := h.rooms.List(c.Request.Context(), filter)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.OKList(c, dto.NewRoomResponses(rooms))
}

// ListAvailableRooms 可分配房间
// GET /api/v1/rooms/available?gender=
func (h *RoomHandler) ListAvailableRooms(c *gin.Context) {
	var gender *string
	if g := c.Query("gender"); g != "" {
		gender = &g
	}

	rooms, err := h.rooms.ListAvailable(c.Request.Context(), gender)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.OKList(c, dto.NewRoomResponses(rooms))
}

// GetRoom 获取房间详情
// GET /api/v1/rooms/:id
func (h *RoomHandler) GetRoom(c *gin.Context) {
	id, ok := MustGetUUIDParam(c, "id")
	if !ok {
		return
	}

	room, err := h.rooms.Get(c.Request.Context(), id)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.OK(c, dto.NewRoomResponse(room))
}

// CreateRoom 新建房间
// POST /api/v1/rooms
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	var req dto.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	room, err := h.rooms.Create(c.Request.Context(), service.CreateRoomInput{
		RoomNumber: req.RoomNumber,
		Block:      req.Block,
		Floor:      req.Floor,
		Capacity:   req.Capacity,
		Gender:     req.Gender,
	}, callerID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.Created(c, dto.NewRoomResponse(room))
}

// SetRoomStatus 人工设置房间状态
// PUT /api/v1/rooms/:id/status
func (h *RoomHandler) SetRoomStatus(c *gin.Context) {
	id, ok := MustGetUUIDParam(c, "id")
	if !ok {
		return
	}

	var req dto.SetRoomStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	room, err := h.rooms.SetStatus(c.Request.Context(), id, model.RoomStatus(req.Status), callerID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.OK(c, dto.NewRoomResponse(room))
}

// ReconcileRoom 按有效分配重算房间状态
// POST /api/v1/rooms/:id/reconcile
func (h *RoomHandler) ReconcileRoom(c *gin.Context) {
	id, ok := MustGetUUIDParam(c, "id")
	if !ok {
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	room, err := h.coordinator.ReconcileRoom(c.Request.Context(), id, callerID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.OK(c, dto.NewRoomResponse(room))
}

// DeleteRoom 删除房间
// DELETE /api/v1/rooms/:id
func (h *RoomHandler) DeleteRoom(c *gin.Context) {
	id, ok := MustGetUUIDParam(c, "id")
	if !ok {
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	if err := h.rooms.Delete(c.Request.Context(), id, callerID); err != nil {
		handleServiceError(c, err)
		return
	}

	response.OK(c, nil)
}
