package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"qr-attendance/internal/dto"
	"qr-attendance/internal/model"
	"qr-attendance/internal/repository"
)

// ── 签到台账业务错误 ──

var (
	ErrAttendanceNotFound = errors.New("签到记录不存在")
	ErrExportGenerateFail = errors.New("生成 Excel 文件失败")
)

// LedgerService 签到台账查询接口（只读，删除除外）
type LedgerService interface {
	GetHistory(ctx context.Context, studentUserID string, page *dto.PaginationRequest) ([]dto.AttendanceHistoryItem, int64, error)
	GetClassHistory(ctx context.Context, classID, operatorID, role string) ([]dto.SessionHistoryItem, error)
	// GetClassReport 某日全部会话的出勤/缺勤划分；两者互斥且覆盖全部在册学生
	GetClassReport(ctx context.Context, classID, date, operatorID, role string) (*dto.ClassReportResponse, error)
	GetPresent(ctx context.Context, classID, date, operatorID, role string) ([]dto.StudentBrief, error)
	GetAbsent(ctx context.Context, classID, date, operatorID, role string) ([]dto.StudentBrief, error)
	GetStudentStats(ctx context.Context, classID, operatorID, role string) ([]dto.StudentStatsItem, error)
	// RemoveAttendance 硬删除签到记录
	RemoveAttendance(ctx context.Context, attendanceID, operatorID, role string) error
	// ExportClassReport 导出某日出勤报告为 Excel，返回内容与建议文件名
	ExportClassReport(ctx context.Context, classID, date, operatorID, role string) (*bytes.Buffer, string, error)
}

type ledgerService struct {
	loc    *time.Location
	repo   *repository.Repository
	logger *zap.Logger
	now    func() time.Time
}

// NewLedgerService 创建 LedgerService 实例
func NewLedgerService(loc *time.Location, repo *repository.Repository, logger *zap.Logger) LedgerService {
	return &ledgerService{loc: loc, repo: repo, logger: logger, now: time.Now}
}

func (s *ledgerService) GetHistory(ctx context.Context, studentUserID string, page *dto.PaginationRequest) ([]dto.AttendanceHistoryItem, int64, error) {
	records, total, err := s.repo.Attendance.ListByStudent(ctx, studentUserID, page.GetOffset(), page.GetPageSize())
	if err != nil {
		s.logger.Error("查询签到历史失败", zap.String("student_id", studentUserID), zap.Error(err))
		return nil, 0, err
	}

	items := make([]dto.AttendanceHistoryItem, 0, len(records))
	for i := range records {
		r := &records[i]
		item := dto.AttendanceHistoryItem{
			AttendanceID: r.AttendanceID,
			ClassID:      r.ClassID,
			SessionID:    r.SessionID,
			CheckedInAt:  r.CheckedInAt.Format(time.RFC3339),
			Method:       r.Method,
		}
		if r.Class != nil {
			item.ClassName = r.Class.Name
		}
		if r.Session != nil {
			item.SessionDate = r.Session.SessionDate.Format(dateLayout)
		}
		items = append(items, item)
	}
	return items, total, nil
}

func (s *ledgerService) GetClassHistory(ctx context.Context, classID, operatorID, role string) ([]dto.SessionHistoryItem, error) {
	if _, err := s.loadOwnedClass(ctx, classID, operatorID, role); err != nil {
		return nil, err
	}

	summaries, err := s.repo.Session.ListSummariesByClass(ctx, classID)
	if err != nil {
		s.logger.Error("查询班级会话失败", zap.String("class_id", classID), zap.Error(err))
		return nil, err
	}

	items := make([]dto.SessionHistoryItem, 0, len(summaries))
	for i := range summaries {
		sm := &summaries[i]
		item := dto.SessionHistoryItem{
			SessionID:     sm.SessionID,
			SessionDate:   sm.SessionDate.Format(dateLayout),
			WindowOpenAt:  sm.WindowOpenAt.Format(time.RFC3339),
			WindowCloseAt: sm.WindowCloseAt.Format(time.RFC3339),
			PresentCount:  sm.PresentCount,
		}
		if sm.ScheduleID != nil {
			item.ScheduleID = *sm.ScheduleID
		}
		items = append(items, item)
	}
	return items, nil
}

// ════════════════════════════════════════════════════════════
// GetClassReport — 出勤 / 缺勤划分
// ════════════════════════════════════════════════════════════
//
// 一天可能有多节课（多个时间表），任一会话签到即视为当日出勤。

func (s *ledgerService) GetClassReport(ctx context.Context, classID, date, operatorID, role string) (*dto.ClassReportResponse, error) {
	class, err := s.loadOwnedClass(ctx, classID, operatorID, role)
	if err != nil {
		return nil, err
	}

	day, err := parseDate(date, s.now(), s.loc)
	if err != nil {
		return nil, err
	}
	dayStr := day.Format(dateLayout)

	sessions, err := s.repo.Session.ListByClassAndDate(ctx, classID, dayStr)
	if err != nil {
		s.logger.Error("查询班级会话失败", zap.String("class_id", classID), zap.Error(err))
		return nil, err
	}
	sessionIDs := make([]string, 0, len(sessions))
	for i := range sessions {
		sessionIDs = append(sessionIDs, sessions[i].SessionID)
	}

	records, err := s.repo.Attendance.ListBySessions(ctx, sessionIDs)
	if err != nil {
		s.logger.Error("查询签到记录失败", zap.String("class_id", classID), zap.Error(err))
		return nil, err
	}
	// 同一学生当天多节课只取最早一次
	firstByStudent := make(map[string]*model.Attendance, len(records))
	for i := range records {
		if _, ok := firstByStudent[records[i].StudentID]; !ok {
			firstByStudent[records[i].StudentID] = &records[i]
		}
	}

	roster, err := s.repo.Class.ListRoster(ctx, classID)
	if err != nil {
		s.logger.Error("查询班级名单失败", zap.String("class_id", classID), zap.Error(err))
		return nil, err
	}

	report := &dto.ClassReportResponse{
		ClassID:       class.ClassID,
		ClassName:     class.Name,
		Date:          dayStr,
		SessionIDs:    sessionIDs,
		Present:       []dto.StudentBrief{},
		Absent:        []dto.StudentBrief{},
		TotalEnrolled: len(roster),
	}
	for _, r := range roster {
		brief := dto.StudentBrief{UserID: r.UserID, StudentCode: r.StudentCode, FullName: r.FullName}
		if a, ok := firstByStudent[r.UserID]; ok {
			brief.AttendanceID = a.AttendanceID
			brief.CheckedInAt = a.CheckedInAt.Format(time.RFC3339)
			brief.Method = a.Method
			report.Present = append(report.Present, brief)
			continue
		}
		report.Absent = append(report.Absent, brief)
	}
	return report, nil
}

func (s *ledgerService) GetPresent(ctx context.Context, classID, date, operatorID, role string) ([]dto.StudentBrief, error) {
	report, err := s.GetClassReport(ctx, classID, date, operatorID, role)
	if err != nil {
		return nil, err
	}
	return report.Present, nil
}

func (s *ledgerService) GetAbsent(ctx context.Context, classID, date, operatorID, role string) ([]dto.StudentBrief, error) {
	report, err := s.GetClassReport(ctx, classID, date, operatorID, role)
	if err != nil {
		return nil, err
	}
	return report.Absent, nil
}

func (s *ledgerService) GetStudentStats(ctx context.Context, classID, operatorID, role string) ([]dto.StudentStatsItem, error) {
	if _, err := s.loadOwnedClass(ctx, classID, operatorID, role); err != nil {
		return nil, err
	}

	sessions, err := s.repo.Session.ListSummariesByClass(ctx, classID)
	if err != nil {
		s.logger.Error("查询班级会话失败", zap.String("class_id", classID), zap.Error(err))
		return nil, err
	}
	counts, err := s.repo.Attendance.CountByStudentInClass(ctx, classID)
	if err != nil {
		s.logger.Error("统计签到次数失败", zap.String("class_id", classID), zap.Error(err))
		return nil, err
	}
	countByStudent := make(map[string]int64, len(counts))
	for _, c := range counts {
		countByStudent[c.StudentID] = c.Count
	}

	roster, err := s.repo.Class.ListRoster(ctx, classID)
	if err != nil {
		s.logger.Error("查询班级名单失败", zap.String("class_id", classID), zap.Error(err))
		return nil, err
	}

	total := len(sessions)
	items := make([]dto.StudentStatsItem, 0, len(roster))
	for _, r := range roster {
		attended := countByStudent[r.UserID]
		item := dto.StudentStatsItem{
			UserID:        r.UserID,
			StudentCode:   r.StudentCode,
			FullName:      r.FullName,
			AttendedCount: attended,
			TotalSessions: total,
		}
		if total > 0 {
			item.Rate = float64(attended) / float64(total)
		}
		items = append(items, item)
	}
	return items, nil
}

func (s *ledgerService) RemoveAttendance(ctx context.Context, attendanceID, operatorID, role string) error {
	attendance, err := s.repo.Attendance.GetByID(ctx, attendanceID)
	if err != nil {
		if isNotFound(err) {
			return ErrAttendanceNotFound
		}
		s.logger.Error("查询签到记录失败", zap.String("attendance_id", attendanceID), zap.Error(err))
		return err
	}
	if _, err := s.loadOwnedClass(ctx, attendance.ClassID, operatorID, role); err != nil {
		return err
	}

	if err := s.repo.Attendance.Delete(ctx, attendanceID); err != nil {
		s.logger.Error("删除签到记录失败", zap.String("attendance_id", attendanceID), zap.Error(err))
		return err
	}

	s.logger.Info("删除签到记录",
		zap.String("attendance_id", attendanceID),
		zap.String("student_id", attendance.StudentID),
		zap.String("session_id", attendance.SessionID),
		zap.String("method", attendance.Method),
		zap.String("operator", operatorID),
	)
	return nil
}

// ════════════════════════════════════════════════════════════
// ExportClassReport — 导出出勤报告
// ════════════════════════════════════════════════════════════
//
// 单 Sheet：标题行 + 表头（序号 / 学号 / 姓名 / 状态 / 签到时间 / 方式），
// 先列出勤后列缺勤。

func (s *ledgerService) ExportClassReport(ctx context.Context, classID, date, operatorID, role string) (*bytes.Buffer, string, error) {
	report, err := s.GetClassReport(ctx, classID, date, operatorID, role)
	if err != nil {
		return nil, "", err
	}

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "出勤报告"
	idx, _ := f.NewSheet(sheetName)
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	f.SetColWidth(sheetName, "A", "A", 8)
	f.SetColWidth(sheetName, "B", "B", 16)
	f.SetColWidth(sheetName, "C", "C", 22)
	f.SetColWidth(sheetName, "D", "D", 10)
	f.SetColWidth(sheetName, "E", "E", 24)
	f.SetColWidth(sheetName, "F", "F", 10)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})

	f.SetCellValue(sheetName, "A1", fmt.Sprintf("%s %s 出勤报告（出勤 %d / 在册 %d）",
		report.ClassName, report.Date, len(report.Present), report.TotalEnrolled))
	f.MergeCell(sheetName, "A1", "F1")
	f.SetCellStyle(sheetName, "A1", "A1", headerStyle)

	headers := []string{"序号", "学号", "姓名", "状态", "签到时间", "方式"}
	for i, h := range headers {
		c, _ := excelize.CoordinatesToCellName(i+1, 2)
		f.SetCellValue(sheetName, c, h)
	}
	f.SetCellStyle(sheetName, "A2", "F2", headerStyle)

	row := 3
	writeRow := func(b dto.StudentBrief, status string) {
		values := []interface{}{row - 2, b.StudentCode, b.FullName, status, b.CheckedInAt, methodLabel(b.Method)}
		for i, v := range values {
			c, _ := excelize.CoordinatesToCellName(i+1, row)
			f.SetCellValue(sheetName, c, v)
		}
		row++
	}
	for _, b := range report.Present {
		writeRow(b, "出勤")
	}
	for _, b := range report.Absent {
		writeRow(b, "缺勤")
	}

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		s.logger.Error("写入 Excel 失败", zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}

	filename := fmt.Sprintf("attendance_%s_%s.xlsx", sanitizeFilename(report.ClassName), report.Date)
	return buf, filename, nil
}

// loadOwnedClass 查询班级并校验操作人为任课教师或管理员
func (s *ledgerService) loadOwnedClass(ctx context.Context, classID, operatorID, role string) (*model.Class, error) {
	class, err := s.repo.Class.GetByID(ctx, classID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrClassNotFound
		}
		s.logger.Error("查询班级失败", zap.String("class_id", classID), zap.Error(err))
		return nil, err
	}
	if !canManageClass(class, operatorID, role) {
		return nil, ErrNotScheduleOwner
	}
	return class, nil
}

func methodLabel(method string) string {
	switch method {
	case model.AttendanceMethodQR:
		return "扫码"
	case model.AttendanceMethodManual:
		return "补录"
	}
	return ""
}
