package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"campus-core/backend/internal/model"
	"campus-core/backend/internal/repository"
	pkgerrors "campus-core/backend/pkg/errors"
)

// AllocationLedger 住宿分配台账
//
// 台账只写 allocations 表，从不修改房间状态；房间状态的回写由 Coordinator 负责，
// 这样台账的后置条件可以脱离房间副作用单独验证。
// 同一房间、同一学生至多一条 active 分配由存储层部分唯一索引在写入时裁决，
// 预检查只用于给出更准确的错误
type AllocationLedger interface {
	Allocate(ctx context.Context, studentID, roomID string, date time.Time, callerID string) (*model.Allocation, error)
	Deallocate(ctx context.Context, allocationID string, date time.Time, callerID string) (*model.Allocation, error)
	Cancel(ctx context.Context, allocationID, reason, callerID string) (*model.Allocation, error)
	CheckIn(ctx context.Context, allocationID string, date time.Time) (*model.Allocation, error)
	Get(ctx context.Context, allocationID string) (*model.Allocation, error)
	// ActiveFor 无 active 分配时返回 (nil, nil)
	ActiveFor(ctx context.Context, studentID string) (*model.Allocation, error)
	ActiveForRoom(ctx context.Context, roomID string) (*model.Allocation, error)
	ListByStudent(ctx context.Context, studentID string) ([]model.Allocation, error)
	ListByRoom(ctx context.Context, roomID string) ([]model.Allocation, error)
}

type allocationLedger struct {
	repo      *repository.Repository
	rooms     RoomRegistry
	directory StudentDirectory
	logger    *zap.Logger
}

// NewAllocationLedger 创建 AllocationLedger 实例
func NewAllocationLedger(repo *repository.Repository, rooms RoomRegistry, directory StudentDirectory, logger *zap.Logger) AllocationLedger {
	return &allocationLedger{repo: repo, rooms: rooms, directory: directory, logger: logger}
}

// ────────────────────── Allocate ──────────────────────

func (s *allocationLedger) Allocate(ctx context.Context, studentID, roomID string, date time.Time, callerID string) (*model.Allocation, error) {
	studentID = strings.TrimSpace(studentID)
	if studentID == "" || roomID == "" || date.IsZero() {
		return nil, ErrInvalidArgument
	}

	// 调用时重新确认房间可分配
	room, err := s.rooms.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.Status != model.RoomAvailable {
		return nil, fmt.Errorf("%w (room=%s status=%s)", ErrRoomUnavailable, roomID, room.Status)
	}

	exists, err := s.directory.Exists(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrStudentNotFound
	}

	current, err := s.ActiveFor(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if current != nil {
		return nil, fmt.Errorf("%w (allocation=%s)", ErrStudentAlreadyAllocated, current.AllocationID)
	}

	alloc := &model.Allocation{
		StudentID:      studentID,
		RoomID:         roomID,
		AllocationDate: truncateDate(date),
		Status:         model.AllocationActive,
	}
	if callerID != "" {
		alloc.CreatedBy = &callerID
		alloc.UpdatedBy = &callerID
	}

	if err := s.repo.Allocation.Create(ctx, alloc); err != nil {
		if errors.Is(err, pkgerrors.ErrDuplicate) {
			// 并发分配在写入边界失败：预检查与写入之间房间或学生已被占用
			switch pkgerrors.ConstraintOf(err) {
			case repository.ConstraintActiveRoom:
				return nil, ErrRoomTaken
			case repository.ConstraintActiveStudent:
				return nil, ErrStudentTaken
			default:
				return nil, ErrConflict
			}
		}
		s.logger.Error("写入分配失败",
			zap.String("student_id", studentID),
			zap.String("room_id", roomID),
			zap.Error(err),
		)
		return nil, err
	}

	return alloc, nil
}

// ────────────────────── Deallocate ──────────────────────

func (s *allocationLedger) Deallocate(ctx context.Context, allocationID string, date time.Time, callerID string) (*model.Allocation, error) {
	checkOut := truncateDate(date)
	change := repository.AllocationClose{
		Status:       model.AllocationCheckedOut,
		CheckOutDate: &checkOut,
	}
	return s.close(ctx, allocationID, change, callerID)
}

// ────────────────────── Cancel ──────────────────────

// Cancel 管理员覆盖：active → cancelled
func (s *allocationLedger) Cancel(ctx context.Context, allocationID, reason, callerID string) (*model.Allocation, error) {
	reason = strings.TrimSpace(reason)
	change := repository.AllocationClose{Status: model.AllocationCancelled}
	if reason != "" {
		change.CancelReason = &reason
	}
	return s.close(ctx, allocationID, change, callerID)
}

func (s *allocationLedger) close(ctx context.Context, allocationID string, change repository.AllocationClose, callerID string) (*model.Allocation, error) {
	alloc, err := s.Get(ctx, allocationID)
	if err != nil {
		return nil, err
	}
	if alloc.Status != model.AllocationActive {
		return nil, ErrNotActive
	}

	if callerID != "" {
		change.UpdatedBy = &callerID
	}
	if err := s.repo.Allocation.Close(ctx, allocationID, change); err != nil {
		if errors.Is(err, pkgerrors.ErrStaleState) {
			// 读取之后被并发关闭
			return nil, ErrNotActive
		}
		s.logger.Error("关闭分配失败",
			zap.String("allocation_id", allocationID),
			zap.String("status", string(change.Status)),
			zap.Error(err),
		)
		return nil, err
	}

	alloc.Status = change.Status
	alloc.CheckOutDate = change.CheckOutDate
	alloc.CancelReason = change.CancelReason
	alloc.UpdatedBy = change.UpdatedBy
	return alloc, nil
}

// ────────────────────── CheckIn ──────────────────────

func (s *allocationLedger) CheckIn(ctx context.Context, allocationID string, date time.Time) (*model.Allocation, error) {
	alloc, err := s.Get(ctx, allocationID)
	if err != nil {
		return nil, err
	}
	if alloc.Status != model.AllocationActive {
		return nil, ErrNotActive
	}
	day := truncateDate(date)
	if day.Before(truncateDate(alloc.AllocationDate)) {
		return nil, ErrCheckInBeforeAllocation
	}

	if err := s.repo.Allocation.SetCheckIn(ctx, allocationID, day); err != nil {
		if errors.Is(err, pkgerrors.ErrStaleState) {
			return nil, ErrNotActive
		}
		s.logger.Error("登记入住失败", zap.String("allocation_id", allocationID), zap.Error(err))
		return nil, err
	}

	alloc.CheckInDate = &day
	return alloc, nil
}

// ────────────────────── 查询 ──────────────────────

func (s *allocationLedger) Get(ctx context.Context, allocationID string) (*model.Allocation, error) {
	alloc, err := s.repo.Allocation.GetByID(ctx, allocationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAllocationNotFound
		}
		s.logger.Error("查询分配失败", zap.String("allocation_id", allocationID), zap.Error(err))
		return nil, err
	}
	return alloc, nil
}

// ActiveFor 查询学生的 active 分配；无记录是正常结果，多于一条视为完整性破坏
func (s *allocationLedger) ActiveFor(ctx context.Context, studentID string) (*model.Allocation, error) {
	allocs, err := s.repo.Allocation.ListActiveByStudent(ctx, studentID)
	if err != nil {
		s.logger.Error("查询学生有效分配失败", zap.String("student_id", studentID), zap.Error(err))
		return nil, err
	}
	return s.single(allocs, "student", studentID)
}

// ActiveForRoom 查询房间的 active 分配，语义同 ActiveFor
func (s *allocationLedger) ActiveForRoom(ctx context.Context, roomID string) (*model.Allocation, error) {
	allocs, err := s.repo.Allocation.ListActiveByRoom(ctx, roomID)
	if err != nil {
		s.logger.Error("查询房间有效分配失败", zap.String("room_id", roomID), zap.Error(err))
		return nil, err
	}
	return s.single(allocs, "room", roomID)
}

func (s *allocationLedger) single(allocs []model.Allocation, entity, key string) (*model.Allocation, error) {
	switch len(allocs) {
	case 0:
		return nil, nil
	case 1:
		return &allocs[0], nil
	default:
		ids := make([]string, 0, len(allocs))
		for _, a := range allocs {
			ids = append(ids, a.AllocationID)
		}
		s.logger.Error("发现多条有效分配",
			zap.String("entity", entity),
			zap.String("key", key),
			zap.Strings("allocation_ids", ids),
		)
		return nil, &DataIntegrityError{
			Entity: entity,
			Key:    key,
			Detail: fmt.Sprintf("存在 %d 条 active 分配: %s", len(allocs), strings.Join(ids, ",")),
		}
	}
}

func (s *allocationLedger) ListByStudent(ctx context.Context, studentID string) ([]model.Allocation, error) {
	allocs, err := s.repo.Allocation.ListByStudent(ctx, studentID)
	if err != nil {
		s.logger.Error("列出学生分配失败", zap.String("student_id", studentID), zap.Error(err))
		return nil, err
	}
	return allocs, nil
}

func (s *allocationLedger) ListByRoom(ctx context.Context, roomID string) ([]model.Allocation, error) {
	allocs, err := s.repo.Allocation.ListByRoom(ctx, roomID)
	if err != nil {
		s.logger.Error("列出房间分配失败", zap.String("room_id", roomID), zap.Error(err))
		return nil, err
	}
	return allocs, nil
}

// truncateDate 去掉时分秒，按 UTC 日期存储
func truncateDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
