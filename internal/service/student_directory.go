package service

import (
	"context"

	"go.uber.org/zap"

	"campus-core/backend/internal/repository"
)

// StudentIdentity 名录中的稳定学生身份
type StudentIdentity struct {
	StudentID  string `json:"student_id"`
	Name       string `json:"name"`
	RollNumber int    `json:"roll_number"`
}

// StudentDirectory 学生名录（外部协作方）
// ListStable 的顺序决定考勤序号的解析结果，必须在两次调用之间保持稳定
type StudentDirectory interface {
	ListStable(ctx context.Context) ([]StudentIdentity, error)
	Exists(ctx context.Context, studentID string) (bool, error)
}

type repoDirectory struct {
	repo   repository.StudentRepository
	logger *zap.Logger
}

// NewStudentDirectory 基于 students 表的名录实现
func NewStudentDirectory(repo repository.StudentRepository, logger *zap.Logger) StudentDirectory {
	return &repoDirectory{repo: repo, logger: logger}
}

func (d *repoDirectory) ListStable(ctx context.Context) ([]StudentIdentity, error) {
	students, err := d.repo.ListActiveOrdered(ctx)
	if err != nil {
		d.logger.Error("加载学生名录失败", zap.Error(err))
		return nil, err
	}

	result := make([]StudentIdentity, 0, len(students))
	for _, st := range students {
		result = append(result, StudentIdentity{
			StudentID:  st.StudentID,
			Name:       st.Name,
			RollNumber: st.RollNumber,
		})
	}
	return result, nil
}

func (d *repoDirectory) Exists(ctx context.Context, studentID string) (bool, error) {
	ok, err := d.repo.Exists(ctx, studentID)
	if err != nil {
		d.logger.Error("查询学生失败", zap.String("student_id", studentID), zap.Error(err))
		return false, err
	}
	return ok, nil
}
