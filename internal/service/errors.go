package service

import (
	"errors"
	"fmt"
	"time"
)

// ── 错误分类 ──
//
// NotFound / InvalidTransition / Conflict / EmptyBatch 是调用方可处理的预期结果；
// DataIntegrity / PartialCommit / ReconciliationIncomplete 说明系统自身的不变量受到威胁，
// 必须原样上报，不能被重试吞掉或降级为普通失败。

var (
	ErrNotFound                 = errors.New("记录不存在")
	ErrInvalidTransition        = errors.New("状态转换不合法")
	ErrConflict                 = errors.New("并发写入冲突")
	ErrNotActive                = errors.New("分配已处于终态")
	ErrDataIntegrity            = errors.New("数据完整性被破坏")
	ErrPartialCommit            = errors.New("多步操作部分提交")
	ErrReconciliationIncomplete = errors.New("考勤替换未完成")
	ErrEmptyBatch               = errors.New("考勤批次为空")
	ErrInvalidArgument          = errors.New("参数无效")
)

// ── 具体业务错误（均可通过 errors.Is 归入上面的分类）──

var (
	ErrRoomNotFound       = fmt.Errorf("%w: 房间不存在", ErrNotFound)
	ErrAllocationNotFound = fmt.Errorf("%w: 分配记录不存在", ErrNotFound)
	ErrStudentNotFound    = fmt.Errorf("%w: 学生不存在", ErrNotFound)

	ErrRoomUnavailable         = fmt.Errorf("%w: 房间当前不可分配", ErrInvalidTransition)
	ErrStudentAlreadyAllocated = fmt.Errorf("%w: 学生已有有效分配", ErrInvalidTransition)
	ErrRoomInUse               = fmt.Errorf("%w: 房间仍有有效分配", ErrInvalidTransition)
	ErrCheckInBeforeAllocation = fmt.Errorf("%w: 入住日期早于分配日期", ErrInvalidTransition)

	ErrRoomTaken    = fmt.Errorf("%w: 房间已被其他分配占用", ErrConflict)
	ErrStudentTaken = fmt.Errorf("%w: 学生已被并发分配", ErrConflict)
	ErrRoomExists   = fmt.Errorf("%w: 同楼栋房号已存在", ErrConflict)
	ErrRoomModified = fmt.Errorf("%w: 房间状态已被并发修改", ErrConflict)

	ErrInvalidMarking = fmt.Errorf("%w: 考勤标记无效", ErrInvalidArgument)
	ErrInvalidDayKey  = fmt.Errorf("%w: 课程、科目与日期不能为空", ErrInvalidArgument)
	ErrInvalidRoom    = fmt.Errorf("%w: 房间信息无效", ErrInvalidArgument)
)

// PartialCommitError 分配台账已写入、房间状态补偿重试后仍失败
// 分配保持有效，房间停留在旧状态，需要调用方或运维通过 ReconcileRoom 收尾
type PartialCommitError struct {
	Operation     Operation
	AllocationID  string
	RoomID        string
	StudentID     string
	CompletedStep Step
	FailedStep    Step
	Attempts      int
	Cause         error
}

func (e *PartialCommitError) Error() string {
	return fmt.Sprintf("%s 部分提交: allocation=%s room=%s 已完成=%s 失败于=%s (尝试 %d 次): %v",
		e.Operation, e.AllocationID, e.RoomID, e.CompletedStep, e.FailedStep, e.Attempts, e.Cause)
}

func (e *PartialCommitError) Unwrap() error { return e.Cause }

// Is 让 errors.Is(err, ErrPartialCommit) 成立
func (e *PartialCommitError) Is(target error) bool { return target == ErrPartialCommit }

// ReconciliationIncompleteError 旧考勤已删除、新考勤写入失败，当天该键下无记录
// 整批替换幂等，原样重试即可恢复
type ReconciliationIncompleteError struct {
	Course    string
	Subject   string
	Date      time.Time
	Deleted   int64
	Attempted int
	Cause     error
}

func (e *ReconciliationIncompleteError) Error() string {
	return fmt.Sprintf("考勤替换未完成: %s/%s/%s 已删除 %d 条, 待写入 %d 条未写入: %v",
		e.Course, e.Subject, e.Date.Format("2006-01-02"), e.Deleted, e.Attempted, e.Cause)
}

func (e *ReconciliationIncompleteError) Unwrap() error { return e.Cause }

// Is 让 errors.Is(err, ErrReconciliationIncomplete) 成立
func (e *ReconciliationIncompleteError) Is(target error) bool {
	return target == ErrReconciliationIncomplete
}

// DataIntegrityError 观测到本应被阻止的不变量破坏
type DataIntegrityError struct {
	Entity string
	Key    string
	Detail string
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("数据完整性被破坏: %s=%s %s", e.Entity, e.Key, e.Detail)
}

// Is 让 errors.Is(err, ErrDataIntegrity) 成立
func (e *DataIntegrityError) Is(target error) bool { return target == ErrDataIntegrity }
