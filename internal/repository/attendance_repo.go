package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"campus-core/backend/internal/model"
	pkgerrors "campus-core/backend/pkg/errors"
)

// AttendanceRepository 考勤记录数据访问接口
type AttendanceRepository interface {
	// DeleteByKey 删除 (course, subject, date) 下的全部记录，返回删除条数
	DeleteByKey(ctx context.Context, course, subject string, date time.Time) (int64, error)
	// CreateBatch 单条 INSERT 语句写入整批记录
	CreateBatch(ctx context.Context, records []model.AttendanceRecord) error
	ListByKey(ctx context.Context, course, subject string, date time.Time) ([]model.AttendanceRecord, error)
	ListByStudent(ctx context.Context, studentID string) ([]model.AttendanceRecord, error)
	ListByDate(ctx context.Context, date time.Time) ([]model.AttendanceRecord, error)
	ListByCourseAndSubject(ctx context.Context, course, subject string) ([]model.AttendanceRecord, error)
}

type attendanceRepo struct {
	db *gorm.DB
}

// NewAttendanceRepo 创建 AttendanceRepository 实例
func NewAttendanceRepo(db *gorm.DB) AttendanceRepository {
	return &attendanceRepo{db: db}
}

func (r *attendanceRepo) DeleteByKey(ctx context.Context, course, subject string, date time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("course = ? AND subject = ? AND date = ?", course, subject, date).
		Delete(&model.AttendanceRecord{})
	return result.RowsAffected, result.Error
}

func (r *attendanceRepo) CreateBatch(ctx context.Context, records []model.AttendanceRecord) error {
	if len(records) == 0 {
		return nil
	}
	// CreateBatchSize 未设置时 GORM 生成单条多值 INSERT
	return pkgerrors.TranslatePG(r.db.WithContext(ctx).Create(&records).Error)
}

func (r *attendanceRepo) ListByKey(ctx context.Context, course, subject string, date time.Time) ([]model.AttendanceRecord, error) {
	var records []model.AttendanceRecord
	err := r.db.WithContext(ctx).
		Where("course = ? AND subject = ? AND date = ?", course, subject, date).
		Order("student_id ASC").
		Find(&records).Error
	return records, err
}

func (r *attendanceRepo) ListByStudent(ctx context.Context, studentID string) ([]model.AttendanceRecord, error) {
	var records []model.AttendanceRecord
	err := r.db.WithContext(ctx).
		Where("student_id = ?", studentID).
		Order("date DESC, course ASC, subject ASC").
		Find(&records).Error
	return records, err
}

func (r *attendanceRepo) ListByDate(ctx context.Context, date time.Time) ([]model.AttendanceRecord, error) {
	var records []model.AttendanceRecord
	err := r.db.WithContext(ctx).
		Where("date = ?", date).
		Order("course ASC, subject ASC, student_id ASC").
		Find(&records).Error
	return records, err
}

func (r *attendanceRepo) ListByCourseAndSubject(ctx context.Context, course, subject string) ([]model.AttendanceRecord, error) {
	var records []model.AttendanceRecord
	err := r.db.WithContext(ctx).
		Where("course = ? AND subject = ?", course, subject).
		Order("date DESC, student_id ASC").
		Find(&records).Error
	return records, err
}
