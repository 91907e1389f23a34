package repository

import (
	"context"

	"gorm.io/gorm"

	"campus-core/backend/internal/model"
	pkgerrors "campus-core/backend/pkg/errors"
)

// RoomFilter 房间列表筛选条件，空值表示不过滤
type RoomFilter struct {
	Status *model.RoomStatus
	Gender *string
	Block  *string
}

// RoomRepository 房间数据访问接口
type RoomRepository interface {
	Create(ctx context.Context, room *model.Room) error
	GetByID(ctx context.Context, id string) (*model.Room, error)
	List(ctx context.Context, filter RoomFilter) ([]model.Room, error)
	UpdateStatus(ctx context.Context, room *model.Room, status model.RoomStatus) error
	Delete(ctx context.Context, id string, deletedBy string) error
}

type roomRepo struct {
	db *gorm.DB
}

// NewRoomRepo 创建 RoomRepository 实例
func NewRoomRepo(db *gorm.DB) RoomRepository {
	return &roomRepo{db: db}
}

func (r *roomRepo) Create(ctx context.Context, room *model.Room) error {
	return pkgerrors.TranslatePG(r.db.WithContext(ctx).Create(room).Error)
}

func (r *roomRepo) GetByID(ctx context.Context, id string) (*model.Room, error) {
	var room model.Room
	err := r.db.WithContext(ctx).
		Where("room_id = ?", id).
		First(&room).Error
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// List 按房号升序（同号按楼栋）返回，保证顺序稳定
func (r *roomRepo) List(ctx context.Context, filter RoomFilter) ([]model.Room, error) {
	var rooms []model.Room
	q := r.db.WithContext(ctx).Model(&model.Room{})
	if filter.Status != nil {
		q = q.Where("status = ?", *filter.Status)
	}
	if filter.Gender != nil {
		q = q.Where("gender = ?", *filter.Gender)
	}
	if filter.Block != nil {
		q = q.Where("block = ?", *filter.Block)
	}
	err := q.Order("room_number ASC, block ASC, room_id ASC").Find(&rooms).Error
	return rooms, err
}

// UpdateStatus 基于版本号的条件更新；版本不匹配返回 ErrOptimisticLock
func (r *roomRepo) UpdateStatus(ctx context.Context, room *model.Room, status model.RoomStatus) error {
	oldVersion := room.Version
	result := r.db.WithContext(ctx).
		Model(&model.Room{}).
		Where("room_id = ? AND version = ?", room.RoomID, oldVersion).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_by": room.UpdatedBy,
			"updated_at": gorm.Expr("NOW()"),
			"version":    oldVersion + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrOptimisticLock
	}
	room.Status = status
	room.Version = oldVersion + 1
	return nil
}

func (r *roomRepo) Delete(ctx context.Context, id string, deletedBy string) error {
	return r.db.WithContext(ctx).
		Model(&model.Room{}).
		Where("room_id = ?", id).
		Updates(map[string]interface{}{
			"deleted_by": deletedBy,
			"deleted_at": gorm.Expr("NOW()"),
		}).Error
}
