package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"campus-core/backend/internal/model"
)

// ── 导出模块业务错误 ──

var (
	ErrExportNoRecords    = errors.New("该课程当天暂无考勤记录")
	ErrExportGenerateFail = errors.New("生成 Excel 文件失败")
)

// ExportService 导出业务接口
//
//   - 导出以 bytes.Buffer 返回，由 Handler 层设置 HTTP 响应头后写入 Response
//   - 考勤表按名录顺序逐行列出学生，未标记的学生显示 "-"
type ExportService interface {
	// ExportAttendance 导出单个考勤键的考勤表
	ExportAttendance(ctx context.Context, key DayKey) (*bytes.Buffer, string, error)
}

type exportService struct {
	attendance AttendanceReconciler
	directory  StudentDirectory
	logger     *zap.Logger
}

// NewExportService 创建 ExportService 实例
func NewExportService(attendance AttendanceReconciler, directory StudentDirectory, logger *zap.Logger) ExportService {
	return &exportService{attendance: attendance, directory: directory, logger: logger}
}

// ═══════════════════════════════════════════════════════════
// ExportAttendance 导出考勤表为 Excel
// ═══════════════════════════════════════════════════════════
//
// 输出格式：
//   - 标题行：课程 / 科目 / 日期
//   - 表头：序号 | 学号 | 姓名 | 学生ID | 状态
//   - 名录外的记录追加在末尾，序号留空
//   - 末尾汇总：出勤 / 缺勤 / 迟到
//
// 返回值：buf（Excel 内容）, filename（建议文件名）, error

func (s *exportService) ExportAttendance(ctx context.Context, key DayKey) (*bytes.Buffer, string, error) {
	key, err := key.normalize()
	if err != nil {
		return nil, "", err
	}

	// 1. 查询当天记录
	records, err := s.attendance.ByDay(ctx, key)
	if err != nil {
		return nil, "", err
	}
	if len(records) == 0 {
		return nil, "", ErrExportNoRecords
	}

	// 2. 加载名录，决定行顺序
	directory, err := s.directory.ListStable(ctx)
	if err != nil {
		return nil, "", err
	}

	statusByStudent := make(map[string]model.AttendanceStatus, len(records))
	for _, rec := range records {
		statusByStudent[rec.StudentID] = rec.Status
	}

	// 3. 生成 Excel
	f := excelize.NewFile()
	defer f.Close()

	sheetName := "考勤表"
	idx, _ := f.NewSheet(sheetName)
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	f.SetColWidth(sheetName, "A", "A", 8)
	f.SetColWidth(sheetName, "B", "B", 10)
	f.SetColWidth(sheetName, "C", "C", 18)
	f.SetColWidth(sheetName, "D", "D", 38)
	f.SetColWidth(sheetName, "E", "E", 10)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})

	// 标题行
	f.SetCellValue(sheetName, "A1", fmt.Sprintf("%s / %s / %s", key.Course, key.Subject, key.Date.Format(model.DateLayout)))
	f.MergeCell(sheetName, "A1", "E1")
	f.SetCellStyle(sheetName, "A1", "A1", headerStyle)

	// 表头
	row := 2
	for i, title := range []string{"序号", "学号", "姓名", "学生ID", "状态"} {
		f.SetCellValue(sheetName, cell(colName(i), row), title)
	}
	f.SetCellStyle(sheetName, cell("A", row), cell("E", row), headerStyle)

	// 数据行：名录内学生
	row = 3
	listed := make(map[string]struct{}, len(directory))
	for i, st := range directory {
		listed[st.StudentID] = struct{}{}
		status := "-"
		if v, ok := statusByStudent[st.StudentID]; ok {
			status = string(v)
		}
		f.SetCellValue(sheetName, cell("A", row), i+1)
		f.SetCellValue(sheetName, cell("B", row), st.RollNumber)
		f.SetCellValue(sheetName, cell("C", row), st.Name)
		f.SetCellValue(sheetName, cell("D", row), st.StudentID)
		f.SetCellValue(sheetName, cell("E", row), status)
		row++
	}

	// 名录外记录（学生已离册等）
	for _, rec := range records {
		if _, ok := listed[rec.StudentID]; ok {
			continue
		}
		f.SetCellValue(sheetName, cell("D", row), rec.StudentID)
		f.SetCellValue(sheetName, cell("E", row), string(rec.Status))
		row++
	}

	// 汇总
	summary := summarize(records)
	row++
	f.SetCellValue(sheetName, cell("A", row), "汇总")
	f.SetCellValue(sheetName, cell("C", row), fmt.Sprintf("出勤 %d / 缺勤 %d / 迟到 %d", summary.present, summary.absent, summary.late))

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		s.logger.Error("写入 Excel 失败", zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}

	filename := fmt.Sprintf("考勤表_%s_%s_%s.xlsx", key.Course, key.Subject, key.Date.Format(model.DateLayout))
	return buf, filename, nil
}

// ── 辅助函数 ──

type statusCount struct {
	present, absent, late int
}

func summarize(records []model.AttendanceRecord) statusCount {
	var c statusCount
	for _, rec := range records {
		switch rec.Status {
		case model.AttendancePresent:
			c.present++
		case model.AttendanceAbsent:
			c.absent++
		case model.AttendanceLate:
			c.late++
		}
	}
	return c
}

func colName(idx int) string {
	name, _ := excelize.ColumnNumberToName(idx + 1)
	return name
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}
