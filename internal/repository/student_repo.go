package repository

import (
	"context"

	"gorm.io/gorm"

	"campus-core/backend/internal/model"
)

// StudentRepository 学生名录数据访问接口（只读）
type StudentRepository interface {
	GetByID(ctx context.Context, id string) (*model.Student, error)
	// ListActiveOrdered 按 roll_number, student_id 升序返回在册学生
	ListActiveOrdered(ctx context.Context) ([]model.Student, error)
	Exists(ctx context.Context, id string) (bool, error)
}

type studentRepo struct {
	db *gorm.DB
}

// NewStudentRepo 创建 StudentRepository 实例
func NewStudentRepo(db *gorm.DB) StudentRepository {
	return &studentRepo{db: db}
}

func (r *studentRepo) GetByID(ctx context.Context, id string) (*model.Student, error) {
	var student model.Student
	err := r.db.WithContext(ctx).
		Where("student_id = ?", id).
		First(&student).Error
	if err != nil {
		return nil, err
	}
	return &student, nil
}

func (r *studentRepo) ListActiveOrdered(ctx context.Context) ([]model.Student, error) {
	var students []model.Student
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("roll_number ASC, student_id ASC").
		Find(&students).Error
	return students, err
}

func (r *studentRepo) Exists(ctx context.Context, id string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Student{}).
		Where("student_id = ? AND is_active = ?", id, true).
		Count(&count).Error
	return count > 0, err
}
