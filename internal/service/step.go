package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Operation 协调器编排的多步操作
type Operation string

const (
	OpAllocate   Operation = "allocate"
	OpDeallocate Operation = "deallocate"
	OpCancel     Operation = "cancel"
	OpReplaceDay Operation = "replace_attendance_day"
	OpReconcile  Operation = "reconcile_room"
)

// Step 状态机中的一个节点
type Step string

const (
	StepRequested         Step = "requested"
	StepRoomChecked       Step = "room_checked"
	StepAllocationChecked Step = "allocation_checked"
	StepLedgerWritten     Step = "ledger_written"
	StepRoomUpdated       Step = "room_updated"
	StepRoomSkipped       Step = "room_skipped" // 房间处于 maintenance，不回写
	StepDirectoryLoaded   Step = "directory_loaded"
	StepDeduplicated      Step = "deduplicated"
	StepOldReplaced       Step = "old_replaced"
	StepNewWritten        Step = "new_written"
	StepDone              Step = "done"
)

// OperationTrace 记录一次操作实际走过的步骤，随结果返回并写入日志
type OperationTrace struct {
	Operation Operation `json:"operation"`
	Steps     []Step    `json:"steps"`
}

func newTrace(op Operation) *OperationTrace {
	return &OperationTrace{Operation: op, Steps: []Step{StepRequested}}
}

func (t *OperationTrace) advance(step Step) {
	if t == nil {
		return
	}
	t.Steps = append(t.Steps, step)
}

// Last 最后到达的步骤
func (t *OperationTrace) Last() Step {
	if t == nil || len(t.Steps) == 0 {
		return ""
	}
	return t.Steps[len(t.Steps)-1]
}

// Reached 是否到达过某步骤
func (t *OperationTrace) Reached(step Step) bool {
	if t == nil {
		return false
	}
	for _, s := range t.Steps {
		if s == step {
			return true
		}
	}
	return false
}

func (t *OperationTrace) field() zap.Field {
	steps := make([]string, 0, len(t.Steps))
	for _, s := range t.Steps {
		steps = append(steps, string(s))
	}
	return zap.Strings("steps", steps)
}

// stepRunner 执行单个步骤的外部调用
type stepRunner func(ctx context.Context, fn func(ctx context.Context) error) error

// direct 不附加超时，直接执行
func direct(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// withTimeout 每个步骤独立超时；超时与该步骤失败同等对待
func withTimeout(timeout time.Duration) stepRunner {
	return func(ctx context.Context, fn func(ctx context.Context) error) error {
		if timeout <= 0 {
			return fn(ctx)
		}
		stepCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return fn(stepCtx)
	}
}
