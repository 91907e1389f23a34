package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"campus-core/backend/internal/model"
	"campus-core/backend/internal/service"
	"campus-core/backend/pkg/response"
)

// ── 业务错误码 ──
//
// 201xx 不存在  202xx 并发冲突  203xx 状态不允许  204xx 参数
// 209xx 一致性异常：响应 details 携带完成对账所需的标识

const (
	CodeNotFound           = 20100
	CodeRoomNotFound       = 20101
	CodeAllocationNotFound = 20102
	CodeStudentNotFound    = 20103
	CodeNoActiveAllocation = 20104

	CodeConflict      = 20200
	CodeRoomTaken     = 20201
	CodeStudentTaken  = 20202
	CodeRoomExists    = 20203
	CodeRoomModified  = 20204
	CodeNotActive     = 20205
	CodeInvalidState  = 20300
	CodeRoomBusy      = 20301
	CodeStudentHoused = 20302
	CodeRoomInUse     = 20303
	CodeCheckInDate   = 20304

	CodeInvalidArgument = 20400
	CodeEmptyBatch      = 20401
	CodeInvalidMarking  = 20402
	CodeInvalidDayKey   = 20403
	CodeInvalidRoom     = 20404

	CodePartialCommit            = 20901
	CodeReconciliationIncomplete = 20902
	CodeDataIntegrity            = 20903
	CodeStepTimeout              = 20904
)

// handleServiceError 统一映射 service 层错误
//
// 一致性异常必须先于 Conflict 等分类判断：它们的 Unwrap 可能暴露出普通的冲突原因，
// 但调用方需要的是部分提交的事实，而不是一次可重试的冲突
func handleServiceError(c *gin.Context, err error) {
	_ = c.Error(err)

	var partial *service.PartialCommitError
	var incomplete *service.ReconciliationIncompleteError
	var integrity *service.DataIntegrityError

	switch {
	case errors.As(err, &partial):
		response.ErrorWithDetails(c, http.StatusInternalServerError, CodePartialCommit,
			"分配已生效但房间状态未同步，请执行房间对账", gin.H{
				"operation":      partial.Operation,
				"allocation_id":  partial.AllocationID,
				"room_id":        partial.RoomID,
				"student_id":     partial.StudentID,
				"completed_step": partial.CompletedStep,
				"failed_step":    partial.FailedStep,
				"attempts":       partial.Attempts,
			})
	case errors.As(err, &incomplete):
		response.ErrorWithDetails(c, http.StatusInternalServerError, CodeReconciliationIncomplete,
			"旧考勤已删除但新考勤未写入，请原样重试", gin.H{
				"course":    incomplete.Course,
				"subject":   incomplete.Subject,
				"date":      incomplete.Date.Format(model.DateLayout),
				"deleted":   incomplete.Deleted,
				"attempted": incomplete.Attempted,
			})
	case errors.As(err, &integrity):
		response.ErrorWithDetails(c, http.StatusInternalServerError, CodeDataIntegrity,
			"数据完整性被破坏", gin.H{
				"entity": integrity.Entity,
				"key":    integrity.Key,
				"detail": integrity.Detail,
			})

	// 不存在
	case errors.Is(err, service.ErrRoomNotFound):
		response.NotFound(c, CodeRoomNotFound, "房间不存在")
	case errors.Is(err, service.ErrAllocationNotFound):
		response.NotFound(c, CodeAllocationNotFound, "分配记录不存在")
	case errors.Is(err, service.ErrStudentNotFound):
		response.NotFound(c, CodeStudentNotFound, "学生不存在")
	case errors.Is(err, service.ErrNotFound):
		response.NotFound(c, CodeNotFound, "记录不存在")

	// 并发冲突
	case errors.Is(err, service.ErrRoomTaken):
		response.Conflict(c, CodeRoomTaken, "房间已被其他分配占用")
	case errors.Is(err, service.ErrStudentTaken):
		response.Conflict(c, CodeStudentTaken, "学生已被并发分配")
	case errors.Is(err, service.ErrRoomExists):
		response.Conflict(c, CodeRoomExists, "同楼栋房号已存在")
	case errors.Is(err, service.ErrRoomModified):
		response.Conflict(c, CodeRoomModified, "房间状态已被并发修改，请刷新后重试")
	case errors.Is(err, service.ErrConflict):
		response.Conflict(c, CodeConflict, "并发写入冲突")
	case errors.Is(err, service.ErrNotActive):
		response.Conflict(c, CodeNotActive, "分配已处于终态")

	// 状态不允许
	case errors.Is(err, service.ErrRoomUnavailable):
		response.Unprocessable(c, CodeRoomBusy, "房间当前不可分配")
	case errors.Is(err, service.ErrStudentAlreadyAllocated):
		response.Unprocessable(c, CodeStudentHoused, "学生已有有效分配")
	case errors.Is(err, service.ErrRoomInUse):
		response.Unprocessable(c, CodeRoomInUse, "房间仍有有效分配")
	case errors.Is(err, service.ErrCheckInBeforeAllocation):
		response.Unprocessable(c, CodeCheckInDate, "入住日期早于分配日期")
	case errors.Is(err, service.ErrInvalidTransition):
		response.Unprocessable(c, CodeInvalidState, "状态转换不合法")

	// 参数
	case errors.Is(err, service.ErrEmptyBatch):
		response.BadRequest(c, CodeEmptyBatch, "考勤批次为空")
	case errors.Is(err, service.ErrInvalidMarking):
		response.BadRequest(c, CodeInvalidMarking, "考勤标记无效：学号与序号需二选一，状态需为 present/absent/late")
	case errors.Is(err, service.ErrInvalidDayKey):
		response.BadRequest(c, CodeInvalidDayKey, "课程、科目与日期不能为空")
	case errors.Is(err, service.ErrInvalidRoom):
		response.BadRequest(c, CodeInvalidRoom, "房间信息无效")
	case errors.Is(err, service.ErrInvalidArgument):
		response.BadRequest(c, CodeInvalidArgument, "参数无效")

	case errors.Is(err, context.DeadlineExceeded):
		response.Error(c, http.StatusGatewayTimeout, CodeStepTimeout, "存储响应超时")
	default:
		response.InternalError(c)
	}
}
