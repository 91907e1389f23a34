package handler

import "campus-core/backend/internal/service"

// Handler 所有 Handler 的聚合入口
type Handler struct {
	Room           *RoomHandler
	Allocation     *AllocationHandler
	Attendance     *AttendanceHandler
	Export         *ExportHandler
	Reconciliation *ReconciliationHandler
}

// NewHandler 创建 Handler 聚合
func NewHandler(svc *service.Service) *Handler {
	return &Handler{
		Room:           NewRoomHandler(svc.Rooms, svc.Coordinator),
		Allocation:     NewAllocationHandler(svc.Ledger, svc.Coordinator),
		Attendance:     NewAttendanceHandler(svc.Attendance, svc.Coordinator),
		Export:         NewExportHandler(svc.Export),
		Reconciliation: NewReconciliationHandler(svc.Coordinator),
	}
}
