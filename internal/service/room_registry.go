package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"campus-core/backend/internal/model"
	"campus-core/backend/internal/repository"
	pkgerrors "campus-core/backend/pkg/errors"
)

// CreateRoomInput 新建房间参数
type CreateRoomInput struct {
	RoomNumber string
	Block      string
	Floor      int
	Capacity   int
	Gender     string
}

// RoomRegistry 房间目录：房间的查询与占用状态维护
//
// 占用状态是 active 分配数量的缓存摘要。SetStatus 在写入前核对分配数量，
// 拒绝与分配集合矛盾的 occupied / available；maintenance 为人工覆盖，始终接受
type RoomRegistry interface {
	Get(ctx context.Context, roomID string) (*model.Room, error)
	List(ctx context.Context, filter repository.RoomFilter) ([]model.Room, error)
	ListAvailable(ctx context.Context, gender *string) ([]model.Room, error)
	SetStatus(ctx context.Context, roomID string, status model.RoomStatus, callerID string) (*model.Room, error)
	ActiveAllocations(ctx context.Context, roomID string) (int64, error)
	Create(ctx context.Context, in CreateRoomInput, callerID string) (*model.Room, error)
	Delete(ctx context.Context, roomID string, callerID string) error
}

type roomRegistry struct {
	repo   *repository.Repository
	logger *zap.Logger
}

// NewRoomRegistry 创建 RoomRegistry 实例
func NewRoomRegistry(repo *repository.Repository, logger *zap.Logger) RoomRegistry {
	return &roomRegistry{repo: repo, logger: logger}
}

// ────────────────────── Get ──────────────────────

func (s *roomRegistry) Get(ctx context.Context, roomID string) (*model.Room, error) {
	room, err := s.repo.Room.GetByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoomNotFound
		}
		s.logger.Error("查询房间失败", zap.String("room_id", roomID), zap.Error(err))
		return nil, err
	}
	return room, nil
}

// ────────────────────── List ──────────────────────

func (s *roomRegistry) List(ctx context.Context, filter repository.RoomFilter) ([]model.Room, error) {
	rooms, err := s.repo.Room.List(ctx, filter)
	if err != nil {
		s.logger.Error("列出房间失败", zap.Error(err))
		return nil, err
	}
	return rooms, nil
}

// ListAvailable 可分配房间，按房号升序
func (s *roomRegistry) ListAvailable(ctx context.Context, gender *string) ([]model.Room, error) {
	status := model.RoomAvailable
	return s.List(ctx, repository.RoomFilter{Status: &status, Gender: gender})
}

// ────────────────────── SetStatus ──────────────────────

func (s *roomRegistry) SetStatus(ctx context.Context, roomID string, status model.RoomStatus, callerID string) (*model.Room, error) {
	if !status.Valid() {
		return nil, ErrInvalidTransition
	}

	room, err := s.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}

	if status != model.RoomMaintenance {
		active, err := s.ActiveAllocations(ctx, roomID)
		if err != nil {
			return nil, err
		}
		if status == model.RoomOccupied && active == 0 {
			return nil, ErrInvalidTransition
		}
		if status == model.RoomAvailable && active > 0 {
			return nil, ErrRoomInUse
		}
	}

	if room.Status == status {
		return room, nil
	}

	if callerID != "" {
		room.UpdatedBy = &callerID
	}
	if err := s.repo.Room.UpdateStatus(ctx, room, status); err != nil {
		if errors.Is(err, pkgerrors.ErrOptimisticLock) {
			return nil, ErrRoomModified
		}
		s.logger.Error("更新房间状态失败",
			zap.String("room_id", roomID),
			zap.String("status", string(status)),
			zap.Error(err),
		)
		return nil, err
	}

	s.logger.Info("房间状态已更新",
		zap.String("room_id", roomID),
		zap.String("status", string(status)),
		zap.Int("version", room.Version),
	)
	return room, nil
}

// ActiveAllocations 引用该房间的 active 分配数量
func (s *roomRegistry) ActiveAllocations(ctx context.Context, roomID string) (int64, error) {
	count, err := s.repo.Allocation.CountActiveByRoom(ctx, roomID)
	if err != nil {
		s.logger.Error("统计房间有效分配失败", zap.String("room_id", roomID), zap.Error(err))
		return 0, err
	}
	return count, nil
}

// ────────────────────── Create ──────────────────────

func (s *roomRegistry) Create(ctx context.Context, in CreateRoomInput, callerID string) (*model.Room, error) {
	in.RoomNumber = strings.TrimSpace(in.RoomNumber)
	in.Block = strings.TrimSpace(in.Block)
	if in.RoomNumber == "" || in.Block == "" || in.Floor < 0 {
		return nil, ErrInvalidRoom
	}
	if in.Capacity <= 0 {
		in.Capacity = 1
	}
	if in.Gender == "" {
		in.Gender = "mixed"
	}

	room := &model.Room{
		RoomNumber: in.RoomNumber,
		Block:      in.Block,
		Floor:      in.Floor,
		Capacity:   in.Capacity,
		Gender:     in.Gender,
		Status:     model.RoomAvailable,
	}
	room.Version = 1
	if callerID != "" {
		room.CreatedBy = &callerID
		room.UpdatedBy = &callerID
	}

	if err := s.repo.Room.Create(ctx, room); err != nil {
		if errors.Is(err, pkgerrors.ErrDuplicate) {
			return nil, ErrRoomExists
		}
		s.logger.Error("创建房间失败", zap.Error(err))
		return nil, err
	}

	return room, nil
}

// ────────────────────── Delete ──────────────────────

// Delete 软删除房间；仍有 active 分配引用时拒绝
func (s *roomRegistry) Delete(ctx context.Context, roomID string, callerID string) error {
	if _, err := s.Get(ctx, roomID); err != nil {
		return err
	}

	active, err := s.ActiveAllocations(ctx, roomID)
	if err != nil {
		return err
	}
	if active > 0 {
		return ErrRoomInUse
	}

	if err := s.repo.Room.Delete(ctx, roomID, callerID); err != nil {
		s.logger.Error("删除房间失败", zap.String("room_id", roomID), zap.Error(err))
		return err
	}
	return nil
}
