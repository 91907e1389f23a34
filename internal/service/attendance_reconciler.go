package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"campus-core/backend/internal/model"
	"campus-core/backend/internal/repository"
)

// OrdinalPolicy 花名册序号超出名录人数时的处理方式
type OrdinalPolicy string

const (
	// OrdinalModulo 序号按名录人数取模复用名录条目，随后去重
	OrdinalModulo OrdinalPolicy = "modulo"
	// OrdinalStrict 超出名录人数的序号计为无法解析
	OrdinalStrict OrdinalPolicy = "strict"
)

// DayKey 一天一门课一个科目的考勤快照键
type DayKey struct {
	Course  string
	Subject string
	Date    time.Time
}

func (k DayKey) normalize() (DayKey, error) {
	k.Course = strings.TrimSpace(k.Course)
	k.Subject = strings.TrimSpace(k.Subject)
	if k.Course == "" || k.Subject == "" || k.Date.IsZero() {
		return k, ErrInvalidDayKey
	}
	k.Date = truncateDate(k.Date)
	return k, nil
}

// String 用作对账日志条目的标识
func (k DayKey) String() string {
	return k.Course + "|" + k.Subject + "|" + k.Date.Format(model.DateLayout)
}

// Marking 一条考勤输入：按稳定学号或按花名册序号（从 1 开始）二选一
type Marking struct {
	StudentID string
	Ordinal   int
	Status    model.AttendanceStatus
}

// ResolvedMarking 解析到稳定身份后的考勤
type ResolvedMarking struct {
	StudentID string
	Status    model.AttendanceStatus
	Ordinal   int // 来源序号，按学号输入时为 0
}

// ResolvedBatch 解析与去重的结果
type ResolvedBatch struct {
	Markings      []ResolvedMarking
	DirectorySize int
	Deduplicated  int // 映射到已占用身份而被丢弃的条数
	Unresolved    int // 学号不在名录中，或 strict 策略下越界的序号
}

// ReplaceReport 整批替换的结果摘要
type ReplaceReport struct {
	Course       string `json:"course"`
	Subject      string `json:"subject"`
	Date         string `json:"date"`
	Resolved     int    `json:"resolved"`
	Deduplicated int    `json:"deduplicated"`
	Unresolved   int    `json:"unresolved"`
	Deleted      int64  `json:"deleted"`
}

// DaySummary 单个考勤键下的出勤汇总
type DaySummary struct {
	Course  string `json:"course"`
	Subject string `json:"subject"`
	Date    string `json:"date"`
	Total   int    `json:"total"`
	Present int    `json:"present"`
	Absent  int    `json:"absent"`
	Late    int    `json:"late"`
}

// AttendanceReconciler 考勤对账：按 (course, subject, date) 整批替换考勤快照
//
// 替换总是先删后插：宁可短暂无记录，也不出现同一键下互相矛盾的两份记录。
// 存储层不约束 (student, course, subject, date) 唯一，去重在 Resolve 中完成
type AttendanceReconciler interface {
	// Resolve 加载名录、解析序号并去重；结果为空时返回 ErrEmptyBatch
	Resolve(ctx context.Context, markings []Marking) (*ResolvedBatch, error)
	// DeleteDay 删除该键下的全部旧记录
	DeleteDay(ctx context.Context, key DayKey) (int64, error)
	// WriteDay 单条语句写入整批新记录
	WriteDay(ctx context.Context, key DayKey, batch *ResolvedBatch, markedBy string) ([]model.AttendanceRecord, error)
	ReplaceDay(ctx context.Context, key DayKey, markings []Marking, markedBy string) ([]model.AttendanceRecord, *ReplaceReport, error)

	ByStudent(ctx context.Context, studentID string) ([]model.AttendanceRecord, error)
	ByDate(ctx context.Context, date time.Time) ([]model.AttendanceRecord, error)
	ByCourseAndSubject(ctx context.Context, course, subject string) ([]model.AttendanceRecord, error)
	ByDay(ctx context.Context, key DayKey) ([]model.AttendanceRecord, error)
	Summary(ctx context.Context, key DayKey) (*DaySummary, error)
}

type attendanceReconciler struct {
	repo      *repository.Repository
	directory StudentDirectory
	policy    OrdinalPolicy
	logger    *zap.Logger
}

// NewAttendanceReconciler 创建 AttendanceReconciler 实例
func NewAttendanceReconciler(repo *repository.Repository, directory StudentDirectory, policy OrdinalPolicy, logger *zap.Logger) AttendanceReconciler {
	if policy != OrdinalStrict {
		policy = OrdinalModulo
	}
	return &attendanceReconciler{repo: repo, directory: directory, policy: policy, logger: logger}
}

// ────────────────────── Resolve ──────────────────────

// Resolve 按输入顺序逐条解析：
//   - 学号输入：名录中存在则接受，否则计为无法解析
//   - 序号输入：modulo 策略映射到 directory[(ordinal-1) mod n]；strict 策略下 ordinal > n 计为无法解析
//   - 先到先得：身份已被本批次占用时，后续映射到同一身份的条目被丢弃并计入 Deduplicated
func (s *attendanceReconciler) Resolve(ctx context.Context, markings []Marking) (*ResolvedBatch, error) {
	if len(markings) == 0 {
		return nil, ErrEmptyBatch
	}
	for i, m := range markings {
		if err := validateMarking(m); err != nil {
			return nil, fmt.Errorf("%w (第 %d 条)", err, i+1)
		}
	}

	directory, err := s.directory.ListStable(ctx)
	if err != nil {
		return nil, err
	}

	known := make(map[string]struct{}, len(directory))
	for _, st := range directory {
		known[st.StudentID] = struct{}{}
	}

	batch := &ResolvedBatch{
		Markings:      make([]ResolvedMarking, 0, len(markings)),
		DirectorySize: len(directory),
	}
	assigned := make(map[string]struct{}, len(markings))

	for _, m := range markings {
		studentID, ok := s.resolveOne(m, directory, known)
		if !ok {
			batch.Unresolved++
			continue
		}
		if _, dup := assigned[studentID]; dup {
			batch.Deduplicated++
			continue
		}
		assigned[studentID] = struct{}{}
		batch.Markings = append(batch.Markings, ResolvedMarking{
			StudentID: studentID,
			Status:    m.Status,
			Ordinal:   m.Ordinal,
		})
	}

	if len(batch.Markings) == 0 {
		return nil, ErrEmptyBatch
	}

	if batch.Deduplicated > 0 || batch.Unresolved > 0 {
		s.logger.Warn("考勤批次存在丢弃条目",
			zap.Int("input", len(markings)),
			zap.Int("resolved", len(batch.Markings)),
			zap.Int("deduplicated", batch.Deduplicated),
			zap.Int("unresolved", batch.Unresolved),
			zap.Int("directory_size", batch.DirectorySize),
		)
	}
	return batch, nil
}

func (s *attendanceReconciler) resolveOne(m Marking, directory []StudentIdentity, known map[string]struct{}) (string, bool) {
	if m.StudentID != "" {
		_, ok := known[m.StudentID]
		return m.StudentID, ok
	}
	n := len(directory)
	if n == 0 {
		return "", false
	}
	if s.policy == OrdinalStrict && m.Ordinal > n {
		return "", false
	}
	return directory[(m.Ordinal-1)%n].StudentID, true
}

func validateMarking(m Marking) error {
	hasID := strings.TrimSpace(m.StudentID) != ""
	hasOrdinal := m.Ordinal != 0
	if hasID == hasOrdinal {
		return ErrInvalidMarking
	}
	if hasOrdinal && m.Ordinal < 1 {
		return ErrInvalidMarking
	}
	if !m.Status.Valid() {
		return ErrInvalidMarking
	}
	return nil
}

// ────────────────────── 替换步骤 ──────────────────────

func (s *attendanceReconciler) DeleteDay(ctx context.Context, key DayKey) (int64, error) {
	deleted, err := s.repo.Attendance.DeleteByKey(ctx, key.Course, key.Subject, key.Date)
	if err != nil {
		s.logger.Error("删除旧考勤失败", zap.String("key", key.String()), zap.Error(err))
		return 0, err
	}
	return deleted, nil
}

func (s *attendanceReconciler) WriteDay(ctx context.Context, key DayKey, batch *ResolvedBatch, markedBy string) ([]model.AttendanceRecord, error) {
	now := time.Now()
	records := make([]model.AttendanceRecord, 0, len(batch.Markings))
	for _, m := range batch.Markings {
		records = append(records, model.AttendanceRecord{
			StudentID: m.StudentID,
			Course:    key.Course,
			Subject:   key.Subject,
			Date:      key.Date,
			Status:    m.Status,
			MarkedBy:  markedBy,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}

	if err := s.repo.Attendance.CreateBatch(ctx, records); err != nil {
		s.logger.Error("写入新考勤失败",
			zap.String("key", key.String()),
			zap.Int("attempted", len(records)),
			zap.Error(err),
		)
		return nil, err
	}
	return records, nil
}

// ReplaceDay 先删后插整批替换；单独使用时不附加步骤超时
func (s *attendanceReconciler) ReplaceDay(ctx context.Context, key DayKey, markings []Marking, markedBy string) ([]model.AttendanceRecord, *ReplaceReport, error) {
	return replaceDay(ctx, s, key, markings, markedBy, direct, nil)
}

// replaceDay Requested → DirectoryLoaded → Deduplicated → OldReplaced → NewWritten → Done
// 由 Reconciler 与 Coordinator 共用，Coordinator 传入带超时的 run 与 trace
func replaceDay(ctx context.Context, r AttendanceReconciler, key DayKey, markings []Marking, markedBy string,
	run stepRunner, trace *OperationTrace) ([]model.AttendanceRecord, *ReplaceReport, error) {
	key, err := key.normalize()
	if err != nil {
		return nil, nil, err
	}
	if strings.TrimSpace(markedBy) == "" {
		return nil, nil, ErrInvalidArgument
	}

	var batch *ResolvedBatch
	if err := run(ctx, func(ctx context.Context) error {
		var err error
		batch, err = r.Resolve(ctx, markings)
		return err
	}); err != nil {
		// 空批次或名录加载失败：尚未发出任何删除
		return nil, nil, err
	}
	trace.advance(StepDirectoryLoaded)
	trace.advance(StepDeduplicated)

	report := &ReplaceReport{
		Course:       key.Course,
		Subject:      key.Subject,
		Date:         key.Date.Format(model.DateLayout),
		Resolved:     len(batch.Markings),
		Deduplicated: batch.Deduplicated,
		Unresolved:   batch.Unresolved,
	}

	if err := run(ctx, func(ctx context.Context) error {
		var err error
		report.Deleted, err = r.DeleteDay(ctx, key)
		return err
	}); err != nil {
		// 删除是单条语句，失败即未生效，旧数据保持不变
		return nil, nil, err
	}
	trace.advance(StepOldReplaced)

	var records []model.AttendanceRecord
	if err := run(ctx, func(ctx context.Context) error {
		var err error
		records, err = r.WriteDay(ctx, key, batch, markedBy)
		return err
	}); err != nil {
		return nil, report, &ReconciliationIncompleteError{
			Course:    key.Course,
			Subject:   key.Subject,
			Date:      key.Date,
			Deleted:   report.Deleted,
			Attempted: len(batch.Markings),
			Cause:     err,
		}
	}
	trace.advance(StepNewWritten)
	trace.advance(StepDone)

	return records, report, nil
}

// ────────────────────── 查询 ──────────────────────

func (s *attendanceReconciler) ByStudent(ctx context.Context, studentID string) ([]model.AttendanceRecord, error) {
	records, err := s.repo.Attendance.ListByStudent(ctx, studentID)
	if err != nil {
		s.logger.Error("按学生查询考勤失败", zap.String("student_id", studentID), zap.Error(err))
		return nil, err
	}
	return records, nil
}

func (s *attendanceReconciler) ByDate(ctx context.Context, date time.Time) ([]model.AttendanceRecord, error) {
	records, err := s.repo.Attendance.ListByDate(ctx, truncateDate(date))
	if err != nil {
		s.logger.Error("按日期查询考勤失败", zap.Time("date", date), zap.Error(err))
		return nil, err
	}
	return records, nil
}

func (s *attendanceReconciler) ByCourseAndSubject(ctx context.Context, course, subject string) ([]model.AttendanceRecord, error) {
	records, err := s.repo.Attendance.ListByCourseAndSubject(ctx, course, subject)
	if err != nil {
		s.logger.Error("按课程科目查询考勤失败",
			zap.String("course", course),
			zap.String("subject", subject),
			zap.Error(err),
		)
		return nil, err
	}
	return records, nil
}

func (s *attendanceReconciler) ByDay(ctx context.Context, key DayKey) ([]model.AttendanceRecord, error) {
	key, err := key.normalize()
	if err != nil {
		return nil, err
	}
	records, err := s.repo.Attendance.ListByKey(ctx, key.Course, key.Subject, key.Date)
	if err != nil {
		s.logger.Error("查询考勤快照失败", zap.String("key", key.String()), zap.Error(err))
		return nil, err
	}
	return records, nil
}

// Summary 汇总单个考勤键的出勤情况
func (s *attendanceReconciler) Summary(ctx context.Context, key DayKey) (*DaySummary, error) {
	records, err := s.ByDay(ctx, key)
	if err != nil {
		return nil, err
	}

	key, _ = key.normalize()
	counts := summarize(records)
	return &DaySummary{
		Course:  key.Course,
		Subject: key.Subject,
		Date:    key.Date.Format(model.DateLayout),
		Total:   len(records),
		Present: counts.present,
		Absent:  counts.absent,
		Late:    counts.late,
	}, nil
}
