package repository

import "gorm.io/gorm"

// Repository 所有 Repository 的聚合入口
//
// 外部存储只保证单条语句的原子性：这里的每个方法恰好发出一条 SQL，
// 多步操作的顺序与补偿由 service.Coordinator 负责
type Repository struct {
	Room       RoomRepository
	Allocation AllocationRepository
	Attendance AttendanceRepository
	Student    StudentRepository
}

// NewRepository 创建 Repository 聚合
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		Room:       NewRoomRepo(db),
		Allocation: NewAllocationRepo(db),
		Attendance: NewAttendanceRepo(db),
		Student:    NewStudentRepo(db),
	}
}
