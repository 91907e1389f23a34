package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"campus-core/backend/internal/model"
	"campus-core/backend/pkg/redis"
)

// CoordinatorOptions 协调器运行参数
type CoordinatorOptions struct {
	StepTimeout       time.Duration
	CompensateRetries int
}

// AllocationOutcome 分配类操作的结果
type AllocationOutcome struct {
	Allocation *model.Allocation `json:"allocation"`
	Room       *model.Room       `json:"room"`
	Trace      *OperationTrace   `json:"trace"`
}

// AttendanceOutcome 考勤整批替换的结果
type AttendanceOutcome struct {
	Records []model.AttendanceRecord `json:"records"`
	Report  *ReplaceReport           `json:"report"`
	Trace   *OperationTrace          `json:"trace"`
}

// Coordinator 跨实体一致性协调器
//
// 存储没有多语句事务，每个多步操作被建模为显式状态机：
//
//	allocate:   Requested → RoomChecked → LedgerWritten → RoomUpdated(occupied) → Done
//	deallocate: Requested → AllocationChecked → LedgerWritten(checked_out) → RoomUpdated(available) → Done
//	attendance: Requested → DirectoryLoaded → Deduplicated → OldReplaced → NewWritten → Done
//
// LedgerWritten 之前失败不产生任何写入；房间回写失败时补偿重试，仍失败则返回
// *PartialCommitError 并写入对账日志。考勤写入失败返回 *ReconciliationIncompleteError
type Coordinator interface {
	AllocateRoom(ctx context.Context, studentID, roomID string, date time.Time, callerID string) (*AllocationOutcome, error)
	DeallocateRoom(ctx context.Context, allocationID string, date time.Time, callerID string) (*AllocationOutcome, error)
	CancelAllocation(ctx context.Context, allocationID, reason, callerID string) (*AllocationOutcome, error)
	ReplaceAttendanceDay(ctx context.Context, key DayKey, markings []Marking, markedBy string) (*AttendanceOutcome, error)
	// ReconcileRoom 按 active 分配数量重算房间状态，并清除该房间的待对账记录
	ReconcileRoom(ctx context.Context, roomID, callerID string) (*model.Room, error)
	PendingReconciliations(ctx context.Context) ([]redis.ReconcileEntry, error)
}

type coordinator struct {
	rooms      RoomRegistry
	ledger     AllocationLedger
	attendance AttendanceReconciler
	journal    Journal
	run        stepRunner
	retries    int
	logger     *zap.Logger
}

// NewCoordinator 创建 Coordinator 实例；journal 为 nil 时使用进程内日志
func NewCoordinator(
	rooms RoomRegistry,
	ledger AllocationLedger,
	attendance AttendanceReconciler,
	journal Journal,
	opts CoordinatorOptions,
	logger *zap.Logger,
) Coordinator {
	if journal == nil {
		journal = NewMemoryJournal()
	}
	if opts.CompensateRetries < 0 {
		opts.CompensateRetries = 0
	}
	return &coordinator{
		rooms:      rooms,
		ledger:     ledger,
		attendance: attendance,
		journal:    journal,
		run:        withTimeout(opts.StepTimeout),
		retries:    opts.CompensateRetries,
		logger:     logger,
	}
}

// ────────────────────── AllocateRoom ──────────────────────

func (c *coordinator) AllocateRoom(ctx context.Context, studentID, roomID string, date time.Time, callerID string) (*AllocationOutcome, error) {
	trace := newTrace(OpAllocate)

	var room *model.Room
	if err := c.run(ctx, func(ctx context.Context) error {
		var err error
		room, err = c.rooms.Get(ctx, roomID)
		return err
	}); err != nil {
		return nil, c.abort(trace, err)
	}
	if room.Status != model.RoomAvailable {
		return nil, c.abort(trace, fmt.Errorf("%w (room=%s status=%s)", ErrRoomUnavailable, roomID, room.Status))
	}
	trace.advance(StepRoomChecked)

	var alloc *model.Allocation
	if err := c.run(ctx, func(ctx context.Context) error {
		var err error
		alloc, err = c.ledger.Allocate(ctx, studentID, roomID, date, callerID)
		return err
	}); err != nil {
		return nil, c.abort(trace, err)
	}
	trace.advance(StepLedgerWritten)

	room, attempts, err := c.syncRoom(ctx, roomID, model.RoomOccupied, callerID)
	if err != nil {
		return nil, c.partialCommit(ctx, trace, alloc, attempts, err)
	}
	trace.advance(StepRoomUpdated)
	trace.advance(StepDone)

	c.logger.Info("分配完成",
		zap.String("allocation_id", alloc.AllocationID),
		zap.String("student_id", alloc.StudentID),
		zap.String("room_id", roomID),
		trace.field(),
	)
	return &AllocationOutcome{Allocation: alloc, Room: room, Trace: trace}, nil
}

// ────────────────────── DeallocateRoom / CancelAllocation ──────────────────────

func (c *coordinator) DeallocateRoom(ctx context.Context, allocationID string, date time.Time, callerID string) (*AllocationOutcome, error) {
	return c.closeAllocation(ctx, OpDeallocate, allocationID, callerID, func(ctx context.Context) (*model.Allocation, error) {
		return c.ledger.Deallocate(ctx, allocationID, date, callerID)
	})
}

func (c *coordinator) CancelAllocation(ctx context.Context, allocationID, reason, callerID string) (*AllocationOutcome, error) {
	return c.closeAllocation(ctx, OpCancel, allocationID, callerID, func(ctx context.Context) (*model.Allocation, error) {
		return c.ledger.Cancel(ctx, allocationID, reason, callerID)
	})
}

func (c *coordinator) closeAllocation(
	ctx context.Context,
	op Operation,
	allocationID, callerID string,
	write func(ctx context.Context) (*model.Allocation, error),
) (*AllocationOutcome, error) {
	trace := newTrace(op)

	var alloc *model.Allocation
	if err := c.run(ctx, func(ctx context.Context) error {
		var err error
		alloc, err = c.ledger.Get(ctx, allocationID)
		return err
	}); err != nil {
		return nil, c.abort(trace, err)
	}
	if alloc.Status != model.AllocationActive {
		return nil, c.abort(trace, ErrNotActive)
	}
	trace.advance(StepAllocationChecked)

	var closed *model.Allocation
	if err := c.run(ctx, func(ctx context.Context) error {
		var err error
		closed, err = write(ctx)
		return err
	}); err != nil {
		return nil, c.abort(trace, err)
	}
	trace.advance(StepLedgerWritten)

	room, attempts, err := c.syncRoom(ctx, closed.RoomID, model.RoomAvailable, callerID)
	if err != nil {
		return nil, c.partialCommit(ctx, trace, closed, attempts, err)
	}
	if room.Status == model.RoomMaintenance {
		trace.advance(StepRoomSkipped)
	} else {
		trace.advance(StepRoomUpdated)
	}
	trace.advance(StepDone)

	c.logger.Info("分配已关闭",
		zap.String("operation", string(op)),
		zap.String("allocation_id", closed.AllocationID),
		zap.String("room_id", closed.RoomID),
		zap.String("status", string(closed.Status)),
		trace.field(),
	)
	return &AllocationOutcome{Allocation: closed, Room: room, Trace: trace}, nil
}

// syncRoom 回写房间状态，失败后按配置补偿重试
// 释放房间时若房间已被人工置为 maintenance，保持不动
func (c *coordinator) syncRoom(ctx context.Context, roomID string, target model.RoomStatus, callerID string) (*model.Room, int, error) {
	var (
		room    *model.Room
		lastErr error
	)
	attempts := 0
	for attempts <= c.retries {
		attempts++
		lastErr = c.run(ctx, func(ctx context.Context) error {
			current, err := c.rooms.Get(ctx, roomID)
			if err != nil {
				return err
			}
			if target == model.RoomAvailable && current.Status == model.RoomMaintenance {
				room = current
				return nil
			}
			room, err = c.rooms.SetStatus(ctx, roomID, target, callerID)
			return err
		})
		if lastErr == nil {
			return room, attempts, nil
		}

		c.logger.Warn("房间状态回写失败",
			zap.String("room_id", roomID),
			zap.String("target", string(target)),
			zap.Int("attempt", attempts),
			zap.Error(lastErr),
		)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, attempts, lastErr
}

func (c *coordinator) partialCommit(ctx context.Context, trace *OperationTrace, alloc *model.Allocation, attempts int, cause error) error {
	pc := &PartialCommitError{
		Operation:     trace.Operation,
		AllocationID:  alloc.AllocationID,
		RoomID:        alloc.RoomID,
		StudentID:     alloc.StudentID,
		CompletedStep: trace.Last(),
		FailedStep:    StepRoomUpdated,
		Attempts:      attempts,
		Cause:         cause,
	}

	c.logger.Error("多步操作部分提交，需要对账",
		zap.String("operation", string(pc.Operation)),
		zap.String("allocation_id", pc.AllocationID),
		zap.String("room_id", pc.RoomID),
		zap.String("student_id", pc.StudentID),
		zap.Int("attempts", attempts),
		trace.field(),
		zap.Error(cause),
	)

	c.record(ctx, redis.ReconcileEntry{
		ID:            roomEntryID(pc.RoomID, pc.AllocationID),
		Kind:          EntryPartialCommit,
		Operation:     string(pc.Operation),
		AllocationID:  pc.AllocationID,
		RoomID:        pc.RoomID,
		StudentID:     pc.StudentID,
		CompletedStep: string(pc.CompletedStep),
		FailedStep:    string(pc.FailedStep),
		Error:         cause.Error(),
	})
	return pc
}

// ────────────────────── ReplaceAttendanceDay ──────────────────────

func (c *coordinator) ReplaceAttendanceDay(ctx context.Context, key DayKey, markings []Marking, markedBy string) (*AttendanceOutcome, error) {
	trace := newTrace(OpReplaceDay)

	key, err := key.normalize()
	if err != nil {
		return nil, c.abort(trace, err)
	}

	records, report, err := replaceDay(ctx, c.attendance, key, markings, markedBy, c.run, trace)
	if err != nil {
		var incomplete *ReconciliationIncompleteError
		if errors.As(err, &incomplete) {
			c.logger.Error("考勤替换未完成，当天记录为空，需整批重试",
				zap.String("key", key.String()),
				zap.Int64("deleted", incomplete.Deleted),
				zap.Int("attempted", incomplete.Attempted),
				trace.field(),
				zap.Error(incomplete.Cause),
			)
			c.record(ctx, redis.ReconcileEntry{
				ID:            attendanceEntryID(key),
				Kind:          EntryReconciliationIncomplete,
				Operation:     string(OpReplaceDay),
				Course:        key.Course,
				Subject:       key.Subject,
				Date:          key.Date.Format(model.DateLayout),
				CompletedStep: string(StepOldReplaced),
				FailedStep:    string(StepNewWritten),
				Deleted:       incomplete.Deleted,
				Attempted:     incomplete.Attempted,
				Error:         incomplete.Cause.Error(),
			})
			return nil, err
		}
		return nil, c.abort(trace, err)
	}

	// 成功的整批替换同时了结此前未完成的同键替换
	c.resolve(ctx, attendanceEntryID(key))

	c.logger.Info("考勤已替换",
		zap.String("key", key.String()),
		zap.Int("resolved", report.Resolved),
		zap.Int("deduplicated", report.Deduplicated),
		zap.Int("unresolved", report.Unresolved),
		zap.Int64("deleted", report.Deleted),
		trace.field(),
	)
	return &AttendanceOutcome{Records: records, Report: report, Trace: trace}, nil
}

// ────────────────────── ReconcileRoom ──────────────────────

func (c *coordinator) ReconcileRoom(ctx context.Context, roomID, callerID string) (*model.Room, error) {
	trace := newTrace(OpReconcile)

	var room *model.Room
	if err := c.run(ctx, func(ctx context.Context) error {
		var err error
		room, err = c.rooms.Get(ctx, roomID)
		return err
	}); err != nil {
		return nil, c.abort(trace, err)
	}
	trace.advance(StepRoomChecked)

	var active *model.Allocation
	if err := c.run(ctx, func(ctx context.Context) error {
		var err error
		active, err = c.ledger.ActiveForRoom(ctx, roomID)
		return err
	}); err != nil {
		return nil, c.abort(trace, err)
	}
	trace.advance(StepAllocationChecked)

	target := model.RoomAvailable
	if active != nil {
		target = model.RoomOccupied
	}

	if room.Status != model.RoomMaintenance && room.Status != target {
		if err := c.run(ctx, func(ctx context.Context) error {
			var err error
			room, err = c.rooms.SetStatus(ctx, roomID, target, callerID)
			return err
		}); err != nil {
			return nil, c.abort(trace, err)
		}
		trace.advance(StepRoomUpdated)
		c.logger.Info("房间状态已按分配重算",
			zap.String("room_id", roomID),
			zap.String("status", string(target)),
		)
	}
	trace.advance(StepDone)

	entries, err := c.journal.List(ctx)
	if err != nil {
		c.logger.Warn("读取对账日志失败", zap.Error(err))
		return room, nil
	}
	for _, e := range entries {
		if e.Kind == EntryPartialCommit && e.RoomID == roomID {
			c.resolve(ctx, e.ID)
		}
	}
	return room, nil
}

func (c *coordinator) PendingReconciliations(ctx context.Context) ([]redis.ReconcileEntry, error) {
	entries, err := c.journal.List(ctx)
	if err != nil {
		c.logger.Error("读取对账日志失败", zap.Error(err))
		return nil, err
	}
	return entries, nil
}

// ── 内部辅助方法 ──

// abort 在首个写入之前或写入被拒绝时结束操作，原样返回错误
func (c *coordinator) abort(trace *OperationTrace, err error) error {
	fields := []zap.Field{
		zap.String("operation", string(trace.Operation)),
		zap.String("last_step", string(trace.Last())),
		zap.Error(err),
	}
	switch {
	case errors.Is(err, ErrDataIntegrity):
		c.logger.Error("操作中止：数据完整性被破坏", fields...)
	case errors.Is(err, ErrConflict):
		c.logger.Info("操作中止：并发写入冲突", fields...)
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrNotActive), errors.Is(err, ErrEmptyBatch), errors.Is(err, ErrInvalidArgument):
		c.logger.Info("操作中止", fields...)
	default:
		c.logger.Warn("操作失败", fields...)
	}
	return err
}

// record 写入对账日志；调用方的 ctx 可能已超时，使用独立的短超时
func (c *coordinator) record(ctx context.Context, entry redis.ReconcileEntry) {
	jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()
	if err := c.journal.Record(jctx, entry); err != nil {
		c.logger.Error("写入对账日志失败", zap.String("id", entry.ID), zap.Error(err))
	}
}

func (c *coordinator) resolve(ctx context.Context, id string) {
	if err := c.journal.Resolve(ctx, id); err != nil {
		c.logger.Warn("清除对账记录失败", zap.String("id", id), zap.Error(err))
	}
}
