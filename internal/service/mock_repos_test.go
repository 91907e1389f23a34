package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"campus-core/backend/internal/model"
	"campus-core/backend/internal/repository"
	pkgerrors "campus-core/backend/pkg/errors"
)

// errStoreDown 模拟存储调用失败
var errStoreDown = errors.New("store unavailable")

// waitOrDone 模拟慢调用：等待 d 或 ctx 结束
func waitOrDone(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ── Mock RoomRepository ──

type mockRoomRepo struct {
	mu    sync.Mutex
	rooms map[string]*model.Room

	// 故障注入
	failUpdates int           // 接下来 N 次 UpdateStatus 失败
	updateDelay time.Duration // UpdateStatus 延迟（配合步骤超时）
	updateCalls int
}

func newMockRoomRepo() *mockRoomRepo {
	return &mockRoomRepo{rooms: make(map[string]*model.Room)}
}

func (m *mockRoomRepo) Create(_ context.Context, room *model.Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rooms {
		if r.Block == room.Block && r.RoomNumber == room.RoomNumber {
			return &pkgerrors.DuplicateError{Constraint: "uq_rooms_block_number"}
		}
	}
	if room.RoomID == "" {
		room.RoomID = uuid.NewString()
	}
	if room.Version == 0 {
		room.Version = 1
	}
	cp := *room
	m.rooms[room.RoomID] = &cp
	return nil
}

func (m *mockRoomRepo) GetByID(_ context.Context, id string) (*model.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.rooms[id]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockRoomRepo) List(_ context.Context, filter repository.RoomFilter) ([]model.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []model.Room
	for _, r := range m.rooms {
		if filter.Status != nil && r.Status != *filter.Status {
			continue
		}
		if filter.Gender != nil && r.Gender != *filter.Gender {
			continue
		}
		if filter.Block != nil && r.Block != *filter.Block {
			continue
		}
		result = append(result, *r)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].RoomNumber != result[j].RoomNumber {
			return result[i].RoomNumber < result[j].RoomNumber
		}
		return result[i].Block < result[j].Block
	})
	return result, nil
}

func (m *mockRoomRepo) UpdateStatus(ctx context.Context, room *model.Room, status model.RoomStatus) error {
	if err := waitOrDone(ctx, m.updateDelay); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls++
	if m.failUpdates > 0 {
		m.failUpdates--
		return errStoreDown
	}
	stored, ok := m.rooms[room.RoomID]
	if !ok || stored.Version != room.Version {
		return pkgerrors.ErrOptimisticLock
	}
	stored.Status = status
	stored.Version++
	stored.UpdatedBy = room.UpdatedBy
	room.Status = status
	room.Version = stored.Version
	return nil
}

func (m *mockRoomRepo) Delete(_ context.Context, id string, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rooms, id)
	return nil
}

// put 直接写入存储状态，绕过业务校验（用于构造不一致场景）
func (m *mockRoomRepo) put(room model.Room) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if room.Version == 0 {
		room.Version = 1
	}
	m.rooms[room.RoomID] = &room
}

func (m *mockRoomRepo) status(id string) model.RoomStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.rooms[id]; ok {
		return r.Status
	}
	return ""
}

// ── Mock AllocationRepository ──

// mockAllocationRepo 在 Create 中模拟两条部分唯一索引
type mockAllocationRepo struct {
	mu     sync.Mutex
	allocs map[string]*model.Allocation
	seq    int

	failCreate error
	failClose  error
}

func newMockAllocationRepo() *mockAllocationRepo {
	return &mockAllocationRepo{allocs: make(map[string]*model.Allocation)}
}

func (m *mockAllocationRepo) Create(_ context.Context, alloc *model.Allocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreate != nil {
		return m.failCreate
	}
	for _, a := range m.allocs {
		if a.Status != model.AllocationActive {
			continue
		}
		if a.RoomID == alloc.RoomID {
			return &pkgerrors.DuplicateError{Constraint: repository.ConstraintActiveRoom}
		}
		if a.StudentID == alloc.StudentID {
			return &pkgerrors.DuplicateError{Constraint: repository.ConstraintActiveStudent}
		}
	}
	if alloc.AllocationID == "" {
		alloc.AllocationID = uuid.NewString()
	}
	m.seq++
	alloc.CreatedAt = time.Unix(int64(m.seq), 0)
	cp := *alloc
	m.allocs[alloc.AllocationID] = &cp
	return nil
}

func (m *mockAllocationRepo) GetByID(_ context.Context, id string) (*model.Allocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.allocs[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockAllocationRepo) filter(keep func(a *model.Allocation) bool) []model.Allocation {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []model.Allocation
	for _, a := range m.allocs {
		if keep(a) {
			result = append(result, *a)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result
}

func (m *mockAllocationRepo) ListActiveByStudent(_ context.Context, studentID string) ([]model.Allocation, error) {
	return m.filter(func(a *model.Allocation) bool {
		return a.StudentID == studentID && a.Status == model.AllocationActive
	}), nil
}

func (m *mockAllocationRepo) ListActiveByRoom(_ context.Context, roomID string) ([]model.Allocation, error) {
	return m.filter(func(a *model.Allocation) bool {
		return a.RoomID == roomID && a.Status == model.AllocationActive
	}), nil
}

func (m *mockAllocationRepo) CountActiveByRoom(ctx context.Context, roomID string) (int64, error) {
	list, _ := m.ListActiveByRoom(ctx, roomID)
	return int64(len(list)), nil
}

func (m *mockAllocationRepo) ListByStudent(_ context.Context, studentID string) ([]model.Allocation, error) {
	return m.filter(func(a *model.Allocation) bool { return a.StudentID == studentID }), nil
}

func (m *mockAllocationRepo) ListByRoom(_ context.Context, roomID string) ([]model.Allocation, error) {
	return m.filter(func(a *model.Allocation) bool { return a.RoomID == roomID }), nil
}

func (m *mockAllocationRepo) Close(_ context.Context, id string, change repository.AllocationClose) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failClose != nil {
		return m.failClose
	}
	a, ok := m.allocs[id]
	if !ok || a.Status != model.AllocationActive {
		return pkgerrors.ErrStaleState
	}
	a.Status = change.Status
	a.CheckOutDate = change.CheckOutDate
	a.CancelReason = change.CancelReason
	a.UpdatedBy = change.UpdatedBy
	return nil
}

func (m *mockAllocationRepo) SetCheckIn(_ context.Context, id string, date time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.allocs[id]
	if !ok || a.Status != model.AllocationActive {
		return pkgerrors.ErrStaleState
	}
	a.CheckInDate = &date
	return nil
}

// put 直接写入，绕过唯一索引（用于构造完整性破坏场景）
func (m *mockAllocationRepo) put(alloc model.Allocation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	alloc.CreatedAt = time.Unix(int64(m.seq), 0)
	m.allocs[alloc.AllocationID] = &alloc
}

func (m *mockAllocationRepo) activeCount() (rooms map[string]int, students map[string]int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rooms = make(map[string]int)
	students = make(map[string]int)
	for _, a := range m.allocs {
		if a.Status == model.AllocationActive {
			rooms[a.RoomID]++
			students[a.StudentID]++
		}
	}
	return rooms, students
}

// ── Mock AttendanceRepository ──

type mockAttendanceRepo struct {
	mu      sync.Mutex
	records []model.AttendanceRecord

	failDelete  error
	failCreate  error
	createCalls int
}

func newMockAttendanceRepo() *mockAttendanceRepo {
	return &mockAttendanceRepo{}
}

func sameDay(rec model.AttendanceRecord, course, subject string, date time.Time) bool {
	return rec.Course == course && rec.Subject == subject && rec.Date.Equal(date)
}

func (m *mockAttendanceRepo) DeleteByKey(_ context.Context, course, subject string, date time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failDelete != nil {
		return 0, m.failDelete
	}
	kept := m.records[:0]
	var deleted int64
	for _, rec := range m.records {
		if sameDay(rec, course, subject, date) {
			deleted++
			continue
		}
		kept = append(kept, rec)
	}
	m.records = kept
	return deleted, nil
}

// CreateBatch 与单条 INSERT 一致：要么全部写入，要么全部不写
func (m *mockAttendanceRepo) CreateBatch(_ context.Context, records []model.AttendanceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls++
	if m.failCreate != nil {
		return m.failCreate
	}
	for i := range records {
		if records[i].AttendanceID == "" {
			records[i].AttendanceID = uuid.NewString()
		}
	}
	m.records = append(m.records, records...)
	return nil
}

func (m *mockAttendanceRepo) filter(keep func(rec model.AttendanceRecord) bool) []model.AttendanceRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []model.AttendanceRecord
	for _, rec := range m.records {
		if keep(rec) {
			result = append(result, rec)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StudentID < result[j].StudentID })
	return result
}

func (m *mockAttendanceRepo) ListByKey(_ context.Context, course, subject string, date time.Time) ([]model.AttendanceRecord, error) {
	return m.filter(func(rec model.AttendanceRecord) bool { return sameDay(rec, course, subject, date) }), nil
}

func (m *mockAttendanceRepo) ListByStudent(_ context.Context, studentID string) ([]model.AttendanceRecord, error) {
	return m.filter(func(rec model.AttendanceRecord) bool { return rec.StudentID == studentID }), nil
}

func (m *mockAttendanceRepo) ListByDate(_ context.Context, date time.Time) ([]model.AttendanceRecord, error) {
	return m.filter(func(rec model.AttendanceRecord) bool { return rec.Date.Equal(date) }), nil
}

func (m *mockAttendanceRepo) ListByCourseAndSubject(_ context.Context, course, subject string) ([]model.AttendanceRecord, error) {
	return m.filter(func(rec model.AttendanceRecord) bool {
		return rec.Course == course && rec.Subject == subject
	}), nil
}

// ── Mock StudentRepository ──

type mockStudentRepo struct {
	mu       sync.Mutex
	students []model.Student
	failList error
}

// newMockStudentRepo 按给定顺序分配 roll_number
func newMockStudentRepo(ids ...string) *mockStudentRepo {
	m := &mockStudentRepo{}
	for i, id := range ids {
		m.students = append(m.students, model.Student{
			StudentID:  id,
			Name:       "学生" + id,
			RollNumber: i + 1,
			IsActive:   true,
		})
	}
	return m
}

func (m *mockStudentRepo) GetByID(_ context.Context, id string) (*model.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, st := range m.students {
		if st.StudentID == id {
			cp := st
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockStudentRepo) ListActiveOrdered(_ context.Context) ([]model.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failList != nil {
		return nil, m.failList
	}
	var result []model.Student
	for _, st := range m.students {
		if st.IsActive {
			result = append(result, st)
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].RollNumber < result[j].RollNumber })
	return result, nil
}

func (m *mockStudentRepo) Exists(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, st := range m.students {
		if st.StudentID == id && st.IsActive {
			return true, nil
		}
	}
	return false, nil
}

// ── 测试装配 ──

type testEnv struct {
	rooms      *mockRoomRepo
	allocs     *mockAllocationRepo
	attendance *mockAttendanceRepo
	students   *mockStudentRepo
	repo       *repository.Repository
}

func newTestEnv(studentIDs ...string) *testEnv {
	env := &testEnv{
		rooms:      newMockRoomRepo(),
		allocs:     newMockAllocationRepo(),
		attendance: newMockAttendanceRepo(),
		students:   newMockStudentRepo(studentIDs...),
	}
	env.repo = &repository.Repository{
		Room:       env.rooms,
		Allocation: env.allocs,
		Attendance: env.attendance,
		Student:    env.students,
	}
	return env
}

// addRoom 写入一个 available 房间并返回其 ID
func (e *testEnv) addRoom(number string) string {
	id := uuid.NewString()
	e.rooms.put(model.Room{
		RoomID:     id,
		RoomNumber: number,
		Block:      "A",
		Capacity:   1,
		Gender:     "mixed",
		Status:     model.RoomAvailable,
	})
	return id
}
