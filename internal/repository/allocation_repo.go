package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"campus-core/backend/internal/model"
	pkgerrors "campus-core/backend/pkg/errors"
)

// 部分唯一索引名（见 migrations/000001_init.up.sql）
const (
	ConstraintActiveRoom    = "uq_allocations_active_room"
	ConstraintActiveStudent = "uq_allocations_active_student"
)

// AllocationClose 关闭一条 active 分配所需的字段
type AllocationClose struct {
	Status       model.AllocationStatus // checked_out | cancelled
	CheckOutDate *time.Time
	CancelReason *string
	UpdatedBy    *string
}

// AllocationRepository 住宿分配数据访问接口
type AllocationRepository interface {
	// Create 插入 active 分配；违反部分唯一索引时返回 *pkgerrors.DuplicateError
	Create(ctx context.Context, alloc *model.Allocation) error
	GetByID(ctx context.Context, id string) (*model.Allocation, error)
	ListActiveByStudent(ctx context.Context, studentID string) ([]model.Allocation, error)
	ListActiveByRoom(ctx context.Context, roomID string) ([]model.Allocation, error)
	CountActiveByRoom(ctx context.Context, roomID string) (int64, error)
	ListByStudent(ctx context.Context, studentID string) ([]model.Allocation, error)
	ListByRoom(ctx context.Context, roomID string) ([]model.Allocation, error)
	// Close 仅当记录仍为 active 时生效，否则返回 ErrStaleState
	Close(ctx context.Context, id string, change AllocationClose) error
	// SetCheckIn 仅当记录仍为 active 时生效，否则返回 ErrStaleState
	SetCheckIn(ctx context.Context, id string, date time.Time) error
}

type allocationRepo struct {
	db *gorm.DB
}

// NewAllocationRepo 创建 AllocationRepository 实例
func NewAllocationRepo(db *gorm.DB) AllocationRepository {
	return &allocationRepo{db: db}
}

func (r *allocationRepo) Create(ctx context.Context, alloc *model.Allocation) error {
	return pkgerrors.TranslatePG(r.db.WithContext(ctx).Omit("Room").Create(alloc).Error)
}

func (r *allocationRepo) GetByID(ctx context.Context, id string) (*model.Allocation, error) {
	var alloc model.Allocation
	err := r.db.WithContext(ctx).
		Where("allocation_id = ?", id).
		First(&alloc).Error
	if err != nil {
		return nil, err
	}
	return &alloc, nil
}

func (r *allocationRepo) ListActiveByStudent(ctx context.Context, studentID string) ([]model.Allocation, error) {
	var allocs []model.Allocation
	err := r.db.WithContext(ctx).
		Where("student_id = ? AND status = ?", studentID, model.AllocationActive).
		Order("allocation_date ASC, created_at ASC").
		Find(&allocs).Error
	return allocs, err
}

func (r *allocationRepo) ListActiveByRoom(ctx context.Context, roomID string) ([]model.Allocation, error) {
	var allocs []model.Allocation
	err := r.db.WithContext(ctx).
		Where("room_id = ? AND status = ?", roomID, model.AllocationActive).
		Order("allocation_date ASC, created_at ASC").
		Find(&allocs).Error
	return allocs, err
}

func (r *allocationRepo) CountActiveByRoom(ctx context.Context, roomID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Allocation{}).
		Where("room_id = ? AND status = ?", roomID, model.AllocationActive).
		Count(&count).Error
	return count, err
}

func (r *allocationRepo) ListByStudent(ctx context.Context, studentID string) ([]model.Allocation, error) {
	var allocs []model.Allocation
	err := r.db.WithContext(ctx).
		Preload("Room").
		Where("student_id = ?", studentID).
		Order("allocation_date DESC, created_at DESC").
		Find(&allocs).Error
	return allocs, err
}

func (r *allocationRepo) ListByRoom(ctx context.Context, roomID string) ([]model.Allocation, error) {
	var allocs []model.Allocation
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("allocation_date DESC, created_at DESC").
		Find(&allocs).Error
	return allocs, err
}

func (r *allocationRepo) Close(ctx context.Context, id string, change AllocationClose) error {
	updates := map[string]interface{}{
		"status":     change.Status,
		"updated_by": change.UpdatedBy,
		"updated_at": gorm.Expr("NOW()"),
	}
	if change.CheckOutDate != nil {
		updates["check_out_date"] = *change.CheckOutDate
	}
	if change.CancelReason != nil {
		updates["cancel_reason"] = *change.CancelReason
	}

	result := r.db.WithContext(ctx).
		Model(&model.Allocation{}).
		Where("allocation_id = ? AND status = ?", id, model.AllocationActive).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrStaleState
	}
	return nil
}

func (r *allocationRepo) SetCheckIn(ctx context.Context, id string, date time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&model.Allocation{}).
		Where("allocation_id = ? AND status = ?", id, model.AllocationActive).
		Updates(map[string]interface{}{
			"check_in_date": date,
			"updated_at":    gorm.Expr("NOW()"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrStaleState
	}
	return nil
}
