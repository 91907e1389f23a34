package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"campus-core/backend/internal/model"
	"campus-core/backend/internal/repository"
	"campus-core/backend/internal/service"
	"campus-core/backend/pkg/redis"
	"campus-core/backend/pkg/response"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const (
	testRoomID  = "3f0c2a8e-5b1d-4c7e-9a61-0d2f4b8c1e11"
	testAllocID = "7a9e1c4d-2b3f-4e5a-8c6d-1f2e3a4b5c6d"
)

// ═══════════════════════════════════════════════════════════
// Mock Services
// ═══════════════════════════════════════════════════════════

// ── Mock RoomRegistry ──

type mockRoomRegistry struct {
	room       *model.Room
	rooms      []model.Room
	err        error
	lastFilter repository.RoomFilter
	lastStatus model.RoomStatus
	lastInput  service.CreateRoomInput
}

func (m *mockRoomRegistry) Get(_ context.Context, _ string) (*model.Room, error) {
	return m.room, m.err
}
func (m *mockRoomRegistry) List(_ context.Context, f repository.RoomFilter) ([]model.Room, error) {
	m.lastFilter = f
	return m.rooms, m.err
}
func (m *mockRoomRegistry) ListAvailable(_ context.Context, _ *string) ([]model.Room, error) {
	return m.rooms, m.err
}
func (m *mockRoomRegistry) SetStatus(_ context.Context, _ string, s model.RoomStatus, _ string) (*model.Room, error) {
	m.lastStatus = s
	return m.room, m.err
}
func (m *mockRoomRegistry) ActiveAllocations(_ context.Context, _ string) (int64, error) {
	return 0, m.err
}
func (m *mockRoomRegistry) Create(_ context.Context, in service.CreateRoomInput, _ string) (*model.Room, error) {
	m.lastInput = in
	return m.room, m.err
}
func (m *mockRoomRegistry) Delete(_ context.Context, _ string, _ string) error {
	return m.err
}

// ── Mock AllocationLedger ──

type mockLedger struct {
	alloc  *model.Allocation
	allocs []model.Allocation
	err    error
}

func (m *mockLedger) Allocate(_ context.Context, _, _ string, _ time.Time, _ string) (*model.Allocation, error) {
	return m.alloc, m.err
}
func (m *mockLedger) Deallocate(_ context.Context, _ string, _ time.Time, _ string) (*model.Allocation, error) {
	return m.alloc, m.err
}
func (m *mockLedger) Cancel(_ context.Context, _, _, _ string) (*model.Allocation, error) {
	return m.alloc, m.err
}
func (m *mockLedger) CheckIn(_ context.Context, _ string, _ time.Time) (*model.Allocation, error) {
	return m.alloc, m.err
}
func (m *mockLedger) Get(_ context.Context, _ string) (*model.Allocation, error) {
	return m.alloc, m.err
}
func (m *mockLedger) ActiveFor(_ context.Context, _ string) (*model.Allocation, error) {
	return m.alloc, m.err
}
func (m *mockLedger) ActiveForRoom(_ context.Context, _ string) (*model.Allocation, error) {
	return m.alloc, m.err
}
func (m *mockLedger) ListByStudent(_ context.Context, _ string) ([]model.Allocation, error) {
	return m.allocs, m.err
}
func (m *mockLedger) ListByRoom(_ context.Context, _ string) ([]model.Allocation, error) {
	return m.allocs, m.err
}

// ── Mock AttendanceReconciler ──

type mockReconciler struct {
	records  []model.AttendanceRecord
	summary  *service.DaySummary
	err      error
	lastCall string
	lastKey  service.DayKey
}

func (m *mockReconciler) Resolve(_ context.Context, _ []service.Marking) (*service.ResolvedBatch, error) {
	return nil, m.err
}
func (m *mockReconciler) DeleteDay(_ context.Context, _ service.DayKey) (int64, error) {
	return 0, m.err
}
func (m *mockReconciler) WriteDay(_ context.Context, _ service.DayKey, _ *service.ResolvedBatch, _ string) ([]model.AttendanceRecord, error) {
	return m.records, m.err
}
func (m *mockReconciler) ReplaceDay(_ context.Context, _ service.DayKey, _ []service.Marking, _ string) ([]model.AttendanceRecord, *service.ReplaceReport, error) {
	return m.records, nil, m.err
}
func (m *mockReconciler) ByStudent(_ context.Context, _ string) ([]model.AttendanceRecord, error) {
	m.lastCall = "student"
	return m.records, m.err
}
func (m *mockReconciler) ByDate(_ context.Context, _ time.Time) ([]model.AttendanceRecord, error) {
	m.lastCall = "date"
	return m.records, m.err
}
func (m *mockReconciler) ByCourseAndSubject(_ context.Context, _, _ string) ([]model.AttendanceRecord, error) {
	m.lastCall = "course"
	return m.records, m.err
}
func (m *mockReconciler) ByDay(_ context.Context, key service.DayKey) ([]model.AttendanceRecord, error) {
	m.lastCall = "day"
	m.lastKey = key
	return m.records, m.err
}
func (m *mockReconciler) Summary(_ context.Context, key service.DayKey) (*service.DaySummary, error) {
	m.lastKey = key
	return m.summary, m.err
}

// ── Mock Coordinator ──

type mockCoordinator struct {
	allocOut    *service.AllocationOutcome
	attendOut   *service.AttendanceOutcome
	room        *model.Room
	entries     []redis.ReconcileEntry
	err         error
	lastCaller  string
	lastDate    time.Time
	lastMarking []service.Marking
}

func (m *mockCoordinator) AllocateRoom(_ context.Context, _, _ string, date time.Time, callerID string) (*service.AllocationOutcome, error) {
	m.lastCaller = callerID
	m.lastDate = date
	return m.allocOut, m.err
}
func (m *mockCoordinator) DeallocateRoom(_ context.Context, _ string, date time.Time, callerID string) (*service.AllocationOutcome, error) {
	m.lastCaller = callerID
	m.lastDate = date
	return m.allocOut, m.err
}
func (m *mockCoordinator) CancelAllocation(_ context.Context, _, _, callerID string) (*service.AllocationOutcome, error) {
	m.lastCaller = callerID
	return m.allocOut, m.err
}
func (m *mockCoordinator) ReplaceAttendanceDay(_ context.Context, _ service.DayKey, markings []service.Marking, markedBy string) (*service.AttendanceOutcome, error) {
	m.lastCaller = markedBy
	m.lastMarking = markings
	return m.attendOut, m.err
}
func (m *mockCoordinator) ReconcileRoom(_ context.Context, _, callerID string) (*model.Room, error) {
	m.lastCaller = callerID
	return m.room, m.err
}
func (m *mockCoordinator) PendingReconciliations(_ context.Context) ([]redis.ReconcileEntry, error) {
	return m.entries, m.err
}

// ── Mock ExportService ──

type mockExportService struct {
	buf      *bytes.Buffer
	filename string
	err      error
}

func (m *mockExportService) ExportAttendance(_ context.Context, _ service.DayKey) (*bytes.Buffer, string, error) {
	return m.buf, m.filename, m.err
}

// ═══════════════════════════════════════════════════════════
// Test Helpers
// ═══════════════════════════════════════════════════════════

// newRouter 带认证上下文的测试路由
func newRouter() *gin.Engine {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("user_id", "warden-1")
		c.Set("role", "warden")
		c.Next()
	})
	return r
}

func jsonBody(v interface{}) io.Reader {
	b, _ := json.Marshal(v)
	return bytes.NewReader(b)
}

func serve(r *gin.Engine, method, path string, body io.Reader) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	r.ServeHTTP(w, req)
	return w
}

func parseResponse(w *httptest.ResponseRecorder) response.Response {
	var resp response.Response
	json.Unmarshal(w.Body.Bytes(), &resp)
	return resp
}

func sampleRoom(status model.RoomStatus) *model.Room {
	room := &model.Room{RoomID: testRoomID, RoomNumber: "A-101", Block: "A", Floor: 1, Capacity: 1, Gender: "mixed", Status: status}
	room.Version = 2
	return room
}

func sampleAllocation() *model.Allocation {
	return &model.Allocation{
		AllocationID:   testAllocID,
		StudentID:      "stu-01",
		RoomID:         testRoomID,
		AllocationDate: time.Date(2025, 10, 2, 0, 0, 0, 0, time.UTC),
		Status:         model.AllocationActive,
	}
}

// ═══════════════════════════════════════════════════════════
// RoomHandler Tests
// ═══════════════════════════════════════════════════════════

func TestRoomHandler_ListRooms_Filter(t *testing.T) {
	rooms := &mockRoomRegistry{rooms: []model.Room{*sampleRoom(model.RoomAvailable)}}
	h := NewRoomHandler(rooms, &mockCoordinator{})

	r := newRouter()
	r.GET("/rooms", h.ListRooms)
	w := serve(r, "GET", "/rooms?status=available&block=A", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("期望 200，实际: %d", w.Code)
	}
	if rooms.lastFilter.Status == nil || *rooms.lastFilter.Status != model.RoomAvailable {
		t.Errorf("status 过滤未传递: %+v", rooms.lastFilter)
	}
	if rooms.lastFilter.Block == nil || *rooms.lastFilter.Block != "A" {
		t.Errorf("block 过滤未传递: %+v", rooms.lastFilter)
	}
	if rooms.lastFilter.Gender != nil {
		t.Error("未提供 gender 时不应过滤")
	}

	var body struct {
		Data struct {
			List  []map[string]interface{} `json:"list"`
			Total int                      `json:"total"`
		} `json:"data"`
	}
	json.Unmarshal(w.Body.Bytes(), &body)
	if body.Data.Total != 1 || body.Data.List[0]["room_id"] != testRoomID {
		t.Errorf("列表内容不正确: %s", w.Body.String())
	}
}

func TestRoomHandler_ListRooms_InvalidStatus(t *testing.T) {
	h := NewRoomHandler(&mockRoomRegistry{}, &mockCoordinator{})

	r := newRouter()
	r.GET("/rooms", h.ListRooms)
	w := serve(r, "GET", "/rooms?status=haunted", nil)

	if w.Code != http.StatusBadRequest {
		t.Errorf("期望 400，实际: %d", w.Code)
	}
}

func TestRoomHandler_ListRooms_EmptyIsArray(t *testing.T) {
	h := NewRoomHandler(&mockRoomRegistry{}, &mockCoordinator{})

	r := newRouter()
	r.GET("/rooms/available", h.ListAvailableRooms)
	w := serve(r, "GET", "/rooms/available", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("期望 200，实际: %d", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte(`"list":[]`)) {
		t.Errorf("空列表应输出 []，实际: %s", w.Body.String())
	}
}

func TestRoomHandler_GetRoom_InvalidID(t *testing.T) {
	h := NewRoomHandler(&mockRoomRegistry{}, &mockCoordinator{})

	r := newRouter()
	r.GET("/rooms/:id", h.GetRoom)
	w := serve(r, "GET", "/rooms/not-a-uuid", nil)

	if w.Code != http.StatusBadRequest {
		t.Errorf("期望 400，实际: %d", w.Code)
	}
}

func TestRoomHandler_GetRoom_NotFound(t *testing.T) {
	h := NewRoomHandler(&mockRoomRegistry{err: service.ErrRoomNotFound}, &mockCoordinator{})

	r := newRouter()
	r.GET("/rooms/:id", h.GetRoom)
	w := serve(r, "GET", "/rooms/"+testRoomID, nil)

	if w.Code != http.StatusNotFound {
		t.Errorf("期望 404，实际: %d", w.Code)
	}
	if resp := parseResponse(w); resp.Code != CodeRoomNotFound {
		t.Errorf("期望错误码 %d，实际: %d", CodeRoomNotFound, resp.Code)
	}
}

func TestRoomHandler_CreateRoom(t *testing.T) {
	rooms := &mockRoomRegistry{room: sampleRoom(model.RoomAvailable)}
	h := NewRoomHandler(rooms, &mockCoordinator{})

	r := newRouter()
	r.POST("/rooms", h.CreateRoom)
	w := serve(r, "POST", "/rooms", jsonBody(map[string]interface{}{
		"room_number": "A-101", "block": "A", "floor": 1, "gender": "female",
	}))

	if w.Code != http.StatusCreated {
		t.Fatalf("期望 201，实际: %d (%s)", w.Code, w.Body.String())
	}
	if rooms.lastInput.RoomNumber != "A-101" || rooms.lastInput.Gender != "female" {
		t.Errorf("请求未正确转换: %+v", rooms.lastInput)
	}
}

func TestRoomHandler_CreateRoom_MissingFields(t *testing.T) {
	h := NewRoomHandler(&mockRoomRegistry{}, &mockCoordinator{})

	r := newRouter()
	r.POST("/rooms", h.CreateRoom)
	w := serve(r, "POST", "/rooms", jsonBody(map[string]interface{}{"floor": 1}))

	if w.Code != http.StatusBadRequest {
		t.Errorf("期望 400，实际: %d", w.Code)
	}
}

func TestRoomHandler_SetRoomStatus_RoomInUse(t *testing.T) {
	rooms := &mockRoomRegistry{err: service.ErrRoomInUse}
	h := NewRoomHandler(rooms, &mockCoordinator{})

	r := newRouter()
	r.PUT("/rooms/:id/status", h.SetRoomStatus)
	w := serve(r, "PUT", "/rooms/"+testRoomID+"/status", jsonBody(map[string]string{"status": "available"}))

	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("期望 422，实际: %d", w.Code)
	}
	if rooms.lastStatus != model.RoomAvailable {
		t.Errorf("期望传递 available，实际: %s", rooms.lastStatus)
	}
}

func TestRoomHandler_ReconcileRoom(t *testing.T) {
	coord := &mockCoordinator{room: sampleRoom(model.RoomOccupied)}
	h := NewRoomHandler(&mockRoomRegistry{}, coord)

	r := newRouter()
	r.POST("/rooms/:id/reconcile", h.ReconcileRoom)
	w := serve(r, "POST", "/rooms/"+testRoomID+"/reconcile", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("期望 200，实际: %d", w.Code)
	}
	if coord.lastCaller != "warden-1" {
		t.Errorf("调用者未传递: %s", coord.lastCaller)
	}
}

func TestRoomHandler_ReconcileRoom_DataIntegrity(t *testing.T) {
	coord := &mockCoordinator{err: &service.DataIntegrityError{Entity: "room", Key: testRoomID, Detail: "2 条 active 分配"}}
	h := NewRoomHandler(&mockRoomRegistry{}, coord)

	r := newRouter()
	r.POST("/rooms/:id/reconcile", h.ReconcileRoom)
	w := serve(r, "POST", "/rooms/"+testRoomID+"/reconcile", nil)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("期望 500，实际: %d", w.Code)
	}
	resp := parseResponse(w)
	if resp.Code != CodeDataIntegrity {
		t.Errorf("期望错误码 %d，实际: %d", CodeDataIntegrity, resp.Code)
	}
	details, _ := resp.Details.(map[string]interface{})
	if details["key"] != testRoomID {
		t.Errorf("details 应携带房间 ID，实际: %v", resp.Details)
	}
}

// ═══════════════════════════════════════════════════════════
// AllocationHandler Tests
// ═══════════════════════════════════════════════════════════

func TestAllocationHandler_Allocate_Success(t *testing.T) {
	coord := &mockCoordinator{allocOut: &service.AllocationOutcome{
		Allocation: sampleAllocation(),
		Room:       sampleRoom(model.RoomOccupied),
		Trace: &service.OperationTrace{
			Operation: service.OpAllocate,
			Steps:     []service.Step{service.StepRequested, service.StepRoomChecked, service.StepLedgerWritten, service.StepRoomUpdated, service.StepDone},
		},
	}}
	h := NewAllocationHandler(&mockLedger{}, coord)

	r := newRouter()
	r.POST("/allocations", h.Allocate)
	w := serve(r, "POST", "/allocations", jsonBody(map[string]string{
		"student_id": "stu-01", "room_id": testRoomID, "date": "2025-10-02",
	}))

	if w.Code != http.StatusCreated {
		t.Fatalf("期望 201，实际: %d (%s)", w.Code, w.Body.String())
	}
	if !coord.lastDate.Equal(time.Date(2025, 10, 2, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("日期解析不正确: %v", coord.lastDate)
	}

	var body struct {
		Data struct {
			Allocation struct {
				AllocationDate string `json:"allocation_date"`
			} `json:"allocation"`
			Room struct {
				Status string `json:"status"`
			} `json:"room"`
			Trace struct {
				Steps []string `json:"steps"`
			} `json:"trace"`
		} `json:"data"`
	}
	json.Unmarshal(w.Body.Bytes(), &body)
	if body.Data.Allocation.AllocationDate != "2025-10-02" {
		t.Errorf("分配日期格式不正确: %s", body.Data.Allocation.AllocationDate)
	}
	if body.Data.Room.Status != "occupied" {
		t.Errorf("房间状态应为 occupied，实际: %s", body.Data.Room.Status)
	}
	if n := len(body.Data.Trace.Steps); n != 5 || body.Data.Trace.Steps[n-1] != "done" {
		t.Errorf("trace 不正确: %v", body.Data.Trace.Steps)
	}
}

func TestAllocationHandler_Allocate_BadDate(t *testing.T) {
	coord := &mockCoordinator{}
	h := NewAllocationHandler(&mockLedger{}, coord)

	r := newRouter()
	r.POST("/allocations", h.Allocate)
	w := serve(r, "POST", "/allocations", jsonBody(map[string]string{
		"student_id": "stu-01", "room_id": testRoomID, "date": "02/10/2025",
	}))

	if w.Code != http.StatusBadRequest {
		t.Errorf("期望 400，实际: %d", w.Code)
	}
	if coord.lastCaller != "" {
		t.Error("参数错误时不应调用协调器")
	}
}

func TestAllocationHandler_Allocate_Unauthenticated(t *testing.T) {
	h := NewAllocationHandler(&mockLedger{}, &mockCoordinator{})

	r := gin.New()
	r.POST("/allocations", h.Allocate)
	w := serve(r, "POST", "/allocations", jsonBody(map[string]string{
		"student_id": "stu-01", "room_id": testRoomID, "date": "2025-10-02",
	}))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("期望 401，实际: %d", w.Code)
	}
}

func TestAllocationHandler_Allocate_PartialCommit(t *testing.T) {
	partial := &service.PartialCommitError{
		Operation:     service.OpAllocate,
		AllocationID:  testAllocID,
		RoomID:        testRoomID,
		StudentID:     "stu-01",
		CompletedStep: service.StepLedgerWritten,
		FailedStep:    service.StepRoomUpdated,
		Attempts:      3,
		// 原因本身是一次冲突，但响应必须报告部分提交
		Cause: service.ErrRoomModified,
	}
	h := NewAllocationHandler(&mockLedger{}, &mockCoordinator{err: partial})

	r := newRouter()
	r.POST("/allocations", h.Allocate)
	w := serve(r, "POST", "/allocations", jsonBody(map[string]string{
		"student_id": "stu-01", "room_id": testRoomID, "date": "2025-10-02",
	}))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("期望 500，实际: %d", w.Code)
	}
	resp := parseResponse(w)
	if resp.Code != CodePartialCommit {
		t.Errorf("期望错误码 %d，实际: %d", CodePartialCommit, resp.Code)
	}
	details, _ := resp.Details.(map[string]interface{})
	if details["allocation_id"] != testAllocID || details["room_id"] != testRoomID {
		t.Errorf("details 应携带分配与房间 ID，实际: %v", resp.Details)
	}
	if details["failed_step"] != string(service.StepRoomUpdated) {
		t.Errorf("details 应携带失败步骤，实际: %v", details["failed_step"])
	}
}

func TestAllocationHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   int
	}{
		{"RoomNotFound", service.ErrRoomNotFound, 404, CodeRoomNotFound},
		{"StudentNotFound", service.ErrStudentNotFound, 404, CodeStudentNotFound},
		{"RoomTaken", service.ErrRoomTaken, 409, CodeRoomTaken},
		{"StudentTaken", service.ErrStudentTaken, 409, CodeStudentTaken},
		{"WrappedConflict", fmt.Errorf("allocate: %w", service.ErrConflict), 409, CodeConflict},
		{"RoomUnavailable", service.ErrRoomUnavailable, 422, CodeRoomBusy},
		{"AlreadyAllocated", service.ErrStudentAlreadyAllocated, 422, CodeStudentHoused},
		{"InvalidArgument", service.ErrInvalidArgument, 400, CodeInvalidArgument},
		{"Timeout", context.DeadlineExceeded, 504, CodeStepTimeout},
		{"InternalError", errors.New("unknown"), 500, 50000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewAllocationHandler(&mockLedger{}, &mockCoordinator{err: tt.err})

			r := newRouter()
			r.POST("/allocations", h.Allocate)
			w := serve(r, "POST", "/allocations", jsonBody(map[string]string{
				"student_id": "stu-01", "room_id": testRoomID, "date": "2025-10-02",
			}))

			if w.Code != tt.wantStatus {
				t.Errorf("期望状态 %d，实际: %d", tt.wantStatus, w.Code)
			}
			if resp := parseResponse(w); resp.Code != tt.wantCode {
				t.Errorf("期望错误码 %d，实际: %d", tt.wantCode, resp.Code)
			}
		})
	}
}

func TestAllocationHandler_Deallocate_NotActive(t *testing.T) {
	h := NewAllocationHandler(&mockLedger{}, &mockCoordinator{err: service.ErrNotActive})

	r := newRouter()
	r.POST("/allocations/:id/deallocate", h.Deallocate)
	w := serve(r, "POST", "/allocations/"+testAllocID+"/deallocate", jsonBody(map[string]string{"date": "2025-12-20"}))

	if w.Code != http.StatusConflict {
		t.Errorf("期望 409，实际: %d", w.Code)
	}
	if resp := parseResponse(w); resp.Code != CodeNotActive {
		t.Errorf("期望错误码 %d，实际: %d", CodeNotActive, resp.Code)
	}
}

func TestAllocationHandler_Cancel_RequiresReason(t *testing.T) {
	h := NewAllocationHandler(&mockLedger{}, &mockCoordinator{})

	r := newRouter()
	r.POST("/allocations/:id/cancel", h.Cancel)
	w := serve(r, "POST", "/allocations/"+testAllocID+"/cancel", jsonBody(map[string]string{}))

	if w.Code != http.StatusBadRequest {
		t.Errorf("期望 400，实际: %d", w.Code)
	}
}

func TestAllocationHandler_CheckIn_BeforeAllocation(t *testing.T) {
	h := NewAllocationHandler(&mockLedger{err: service.ErrCheckInBeforeAllocation}, &mockCoordinator{})

	r := newRouter()
	r.POST("/allocations/:id/check-in", h.CheckIn)
	w := serve(r, "POST", "/allocations/"+testAllocID+"/check-in", jsonBody(map[string]string{"date": "2025-09-01"}))

	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("期望 422，实际: %d", w.Code)
	}
	if resp := parseResponse(w); resp.Code != CodeCheckInDate {
		t.Errorf("期望错误码 %d，实际: %d", CodeCheckInDate, resp.Code)
	}
}

func TestAllocationHandler_ListAllocations_RequiresOneFilter(t *testing.T) {
	h := NewAllocationHandler(&mockLedger{}, &mockCoordinator{})

	r := newRouter()
	r.GET("/allocations", h.ListAllocations)

	for _, path := range []string{"/allocations", "/allocations?student_id=stu-01&room_id=" + testRoomID} {
		if w := serve(r, "GET", path, nil); w.Code != http.StatusBadRequest {
			t.Errorf("%s 期望 400，实际: %d", path, w.Code)
		}
	}

	w := serve(r, "GET", "/allocations?student_id=stu-01", nil)
	if w.Code != http.StatusOK {
		t.Errorf("按学生查询期望 200，实际: %d", w.Code)
	}
}

func TestAllocationHandler_GetActiveAllocation_None(t *testing.T) {
	h := NewAllocationHandler(&mockLedger{}, &mockCoordinator{})

	r := newRouter()
	r.GET("/students/:id/allocation", h.GetActiveAllocation)
	w := serve(r, "GET", "/students/stu-01/allocation", nil)

	if w.Code != http.StatusNotFound {
		t.Errorf("期望 404，实际: %d", w.Code)
	}
	if resp := parseResponse(w); resp.Code != CodeNoActiveAllocation {
		t.Errorf("期望错误码 %d，实际: %d", CodeNoActiveAllocation, resp.Code)
	}
}

// ═══════════════════════════════════════════════════════════
// AttendanceHandler Tests
// ═══════════════════════════════════════════════════════════

func TestAttendanceHandler_ReplaceDay_Success(t *testing.T) {
	coord := &mockCoordinator{attendOut: &service.AttendanceOutcome{
		Records: []model.AttendanceRecord{{StudentID: "stu-01", Course: "CSE301", Subject: "DS",
			Date: time.Date(2025, 10, 2, 0, 0, 0, 0, time.UTC), Status: model.AttendancePresent, MarkedBy: "warden-1"}},
		Report: &service.ReplaceReport{Course: "CSE301", Subject: "DS", Date: "2025-10-02", Resolved: 1, Deduplicated: 2},
		Trace:  &service.OperationTrace{Operation: service.OpReplaceDay, Steps: []service.Step{service.StepRequested, service.StepDone}},
	}}
	h := NewAttendanceHandler(&mockReconciler{}, coord)

	present, absent := true, false
	r := newRouter()
	r.PUT("/attendance/day", h.ReplaceDay)
	w := serve(r, "PUT", "/attendance/day", jsonBody(map[string]interface{}{
		"course": "CSE301", "subject": "DS", "date": "2025-10-02",
		"markings": []map[string]interface{}{
			{"ordinal": 1, "present": present},
			{"ordinal": 2, "present": absent},
			{"student_id": "stu-03", "status": "late"},
		},
	}))

	if w.Code != http.StatusOK {
		t.Fatalf("期望 200，实际: %d (%s)", w.Code, w.Body.String())
	}
	if coord.lastCaller != "warden-1" {
		t.Errorf("marked_by 应取自认证用户，实际: %s", coord.lastCaller)
	}
	if len(coord.lastMarking) != 3 {
		t.Fatalf("期望传递 3 条标记，实际: %d", len(coord.lastMarking))
	}
	want := []model.AttendanceStatus{model.AttendancePresent, model.AttendanceAbsent, model.AttendanceLate}
	for i, m := range coord.lastMarking {
		if m.Status != want[i] {
			t.Errorf("第 %d 条期望 %s，实际: %s", i, want[i], m.Status)
		}
	}
	if !bytes.Contains(w.Body.Bytes(), []byte(`"deduplicated":2`)) {
		t.Errorf("响应应包含去重统计: %s", w.Body.String())
	}
}

func TestAttendanceHandler_ReplaceDay_InvalidStatus(t *testing.T) {
	h := NewAttendanceHandler(&mockReconciler{}, &mockCoordinator{})

	r := newRouter()
	r.PUT("/attendance/day", h.ReplaceDay)
	w := serve(r, "PUT", "/attendance/day", jsonBody(map[string]interface{}{
		"course": "CSE301", "subject": "DS", "date": "2025-10-02",
		"markings": []map[string]interface{}{{"ordinal": 1, "status": "sleeping"}},
	}))

	if w.Code != http.StatusBadRequest {
		t.Errorf("期望 400，实际: %d", w.Code)
	}
}

func TestAttendanceHandler_ReplaceDay_EmptyBatch(t *testing.T) {
	h := NewAttendanceHandler(&mockReconciler{}, &mockCoordinator{err: service.ErrEmptyBatch})

	r := newRouter()
	r.PUT("/attendance/day", h.ReplaceDay)
	w := serve(r, "PUT", "/attendance/day", jsonBody(map[string]interface{}{
		"course": "CSE301", "subject": "DS", "date": "2025-10-02", "markings": []interface{}{},
	}))

	if w.Code != http.StatusBadRequest {
		t.Errorf("期望 400，实际: %d", w.Code)
	}
	if resp := parseResponse(w); resp.Code != CodeEmptyBatch {
		t.Errorf("期望错误码 %d，实际: %d", CodeEmptyBatch, resp.Code)
	}
}

func TestAttendanceHandler_ReplaceDay_Incomplete(t *testing.T) {
	incomplete := &service.ReconciliationIncompleteError{
		Course: "CSE301", Subject: "DS", Date: time.Date(2025, 10, 2, 0, 0, 0, 0, time.UTC),
		Deleted: 45, Attempted: 45, Cause: errors.New("连接中断"),
	}
	h := NewAttendanceHandler(&mockReconciler{}, &mockCoordinator{err: incomplete})

	r := newRouter()
	r.PUT("/attendance/day", h.ReplaceDay)
	w := serve(r, "PUT", "/attendance/day", jsonBody(map[string]interface{}{
		"course": "CSE301", "subject": "DS", "date": "2025-10-02",
		"markings": []map[string]interface{}{{"ordinal": 1, "status": "present"}},
	}))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("期望 500，实际: %d", w.Code)
	}
	resp := parseResponse(w)
	if resp.Code != CodeReconciliationIncomplete {
		t.Errorf("期望错误码 %d，实际: %d", CodeReconciliationIncomplete, resp.Code)
	}
	details, _ := resp.Details.(map[string]interface{})
	if details["date"] != "2025-10-02" || details["deleted"] != float64(45) {
		t.Errorf("details 不正确: %v", resp.Details)
	}
}

func TestAttendanceHandler_ListAttendance_Dispatch(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{"student_id=stu-01", "student"},
		{"date=2025-10-02", "date"},
		{"course=CSE301&subject=DS", "course"},
		{"course=CSE301&subject=DS&date=2025-10-02", "day"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			rec := &mockReconciler{}
			h := NewAttendanceHandler(rec, &mockCoordinator{})

			r := newRouter()
			r.GET("/attendance", h.ListAttendance)
			w := serve(r, "GET", "/attendance?"+tt.query, nil)

			if w.Code != http.StatusOK {
				t.Fatalf("期望 200，实际: %d", w.Code)
			}
			if rec.lastCall != tt.want {
				t.Errorf("期望调用 %s，实际: %s", tt.want, rec.lastCall)
			}
		})
	}
}

func TestAttendanceHandler_ListAttendance_NoFilter(t *testing.T) {
	h := NewAttendanceHandler(&mockReconciler{}, &mockCoordinator{})

	r := newRouter()
	r.GET("/attendance", h.ListAttendance)

	for _, q := range []string{"", "?course=CSE301", "?date=yesterday"} {
		if w := serve(r, "GET", "/attendance"+q, nil); w.Code != http.StatusBadRequest {
			t.Errorf("%q 期望 400，实际: %d", q, w.Code)
		}
	}
}

func TestAttendanceHandler_Summary(t *testing.T) {
	rec := &mockReconciler{summary: &service.DaySummary{Course: "CSE301", Subject: "DS", Date: "2025-10-02", Total: 3, Present: 2, Late: 1}}
	h := NewAttendanceHandler(rec, &mockCoordinator{})

	r := newRouter()
	r.GET("/attendance/summary", h.Summary)
	w := serve(r, "GET", "/attendance/summary?course=CSE301&subject=DS&date=2025-10-02", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("期望 200，实际: %d", w.Code)
	}
	if rec.lastKey.Course != "CSE301" || rec.lastKey.Date.Day() != 2 {
		t.Errorf("考勤键未正确传递: %+v", rec.lastKey)
	}
}

// ═══════════════════════════════════════════════════════════
// ExportHandler Tests
// ═══════════════════════════════════════════════════════════

func TestExportHandler_Success(t *testing.T) {
	mock := &mockExportService{
		buf:      bytes.NewBufferString("excel content"),
		filename: "考勤表_CSE301_DS_2025-10-02.xlsx",
	}
	h := NewExportHandler(mock)

	r := newRouter()
	r.GET("/export/attendance", h.ExportAttendance)
	w := serve(r, "GET", "/export/attendance?course=CSE301&subject=DS&date=2025-10-02", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("期望 200，实际: %d", w.Code)
	}
	ct := w.Header().Get("Content-Type")
	if ct != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
		t.Errorf("Content-Type 不正确: %s", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); cd == "" {
		t.Error("缺少 Content-Disposition 头")
	}
}

func TestExportHandler_MissingKey(t *testing.T) {
	h := NewExportHandler(&mockExportService{})

	r := newRouter()
	r.GET("/export/attendance", h.ExportAttendance)
	w := serve(r, "GET", "/export/attendance?course=CSE301", nil)

	if w.Code != http.StatusBadRequest {
		t.Errorf("期望 400，实际: %d", w.Code)
	}
}

func TestExportHandler_NoRecords(t *testing.T) {
	h := NewExportHandler(&mockExportService{err: service.ErrExportNoRecords})

	r := newRouter()
	r.GET("/export/attendance", h.ExportAttendance)
	w := serve(r, "GET", "/export/attendance?course=CSE301&subject=DS&date=2025-10-02", nil)

	if w.Code != http.StatusNotFound {
		t.Errorf("期望 404，实际: %d", w.Code)
	}
}

// ═══════════════════════════════════════════════════════════
// ReconciliationHandler Tests
// ═══════════════════════════════════════════════════════════

func TestReconciliationHandler_ListPending(t *testing.T) {
	coord := &mockCoordinator{entries: []redis.ReconcileEntry{
		{ID: "room:" + testRoomID + ":" + testAllocID, Kind: "partial_commit", RoomID: testRoomID},
	}}
	h := NewReconciliationHandler(coord)

	r := newRouter()
	r.GET("/reconciliations", h.ListPending)
	w := serve(r, "GET", "/reconciliations", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("期望 200，实际: %d", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte(`"total":1`)) {
		t.Errorf("期望 1 条待对账记录: %s", w.Body.String())
	}
}
