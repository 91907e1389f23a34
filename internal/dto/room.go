package dto

import (
	"time"

	"campus-core/backend/internal/model"
)

// ── 房间模块 DTO ──

// CreateRoomRequest 新建房间请求
type CreateRoomRequest struct {
	RoomNumber string `json:"room_number" binding:"required,max=20"`
	Block      string `json:"block"       binding:"required,max=20"`
	Floor      int    `json:"floor"       binding:"min=0,max=200"`
	Capacity   int    `json:"capacity"    binding:"omitempty,min=1,max=12"`
	Gender     string `json:"gender"      binding:"omitempty,oneof=male female mixed"`
}

// SetRoomStatusRequest 人工设置房间状态（维修 / 解除维修）
type SetRoomStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=available occupied maintenance"`
}

// RoomListRequest 房间列表查询参数
type RoomListRequest struct {
	Status string `form:"status" binding:"omitempty,oneof=available occupied maintenance"`
	Gender string `form:"gender" binding:"omitempty,oneof=male female mixed"`
	Block  string `form:"block"  binding:"omitempty,max=20"`
}

// RoomResponse 房间信息响应
type RoomResponse struct {
	ID         string `json:"room_id"`
	RoomNumber string `json:"room_number"`
	Block      string `json:"block"`
	Floor      int    `json:"floor"`
	Capacity   int    `json:"capacity"`
	Gender     string `json:"gender"`
	Status     string `json:"status"`
	Version    int    `json:"version"`
	UpdatedAt  string `json:"updated_at"`
}

// NewRoomResponse 模型转响应；room 为 nil 时返回 nil
func NewRoomResponse(room *model.Room) *RoomResponse {
	if room == nil {
		return nil
	}
	return &RoomResponse{
		ID:         room.RoomID,
		RoomNumber: room.RoomNumber,
		Block:      room.Block,
		Floor:      room.Floor,
		Capacity:   room.Capacity,
		Gender:     room.Gender,
		Status:     string(room.Status),
		Version:    room.Version,
		UpdatedAt:  room.UpdatedAt.Format(time.RFC3339),
	}
}

// NewRoomResponses 批量转换
func NewRoomResponses(rooms []model.Room) []RoomResponse {
	list := make([]RoomResponse, 0, len(rooms))
	for i := range rooms {
		list = append(list, *NewRoomResponse(&rooms[i]))
	}
	return list
}
