package service

import (
	"go.uber.org/zap"

	"campus-core/backend/config"
	"campus-core/backend/internal/repository"
	"campus-core/backend/pkg/logger"
)

// Service 所有 Service 的聚合入口
type Service struct {
	Rooms       RoomRegistry
	Ledger      AllocationLedger
	Directory   StudentDirectory
	Attendance  AttendanceReconciler
	Coordinator Coordinator
	Export      ExportService
}

// NewService 创建 Service 聚合
// journal 为 nil（Redis 未配置或不可用）时对账日志降级为进程内存储
func NewService(
	cfg *config.Config,
	repo *repository.Repository,
	journal Journal,
	log *zap.Logger,
) *Service {
	rooms := NewRoomRegistry(repo, logger.Component(log, "rooms"))
	directory := NewStudentDirectory(repo.Student, logger.Component(log, "directory"))
	ledger := NewAllocationLedger(repo, rooms, directory, logger.Component(log, "ledger"))
	attendance := NewAttendanceReconciler(repo, directory,
		OrdinalPolicy(cfg.Attendance.OrdinalPolicy), logger.Component(log, "attendance"))

	coordinator := NewCoordinator(rooms, ledger, attendance, journal, CoordinatorOptions{
		StepTimeout:       cfg.Consistency.StepTimeout,
		CompensateRetries: cfg.Consistency.CompensateRetries,
	}, logger.Component(log, "coordinator"))

	return &Service{
		Rooms:       rooms,
		Ledger:      ledger,
		Directory:   directory,
		Attendance:  attendance,
		Coordinator: coordinator,
		Export:      NewExportService(attendance, directory, logger.Component(log, "export")),
	}
}
