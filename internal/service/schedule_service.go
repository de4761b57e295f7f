package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"qr-attendance/config"
	"qr-attendance/internal/dto"
	"qr-attendance/internal/model"
	"qr-attendance/internal/repository"
	pkgerrors "qr-attendance/pkg/errors"
)

// ── 时间表模块业务错误 ──

var (
	ErrInvalidScheduleTime = errors.New("开始时间必须早于结束时间")
	ErrInvalidDayOfWeek    = errors.New("星期取值必须在 0-6 之间")
	ErrScheduleOverlap     = errors.New("与该班级同一天的其他上课时间重叠")
	ErrScheduleVersion     = errors.New("上课时间已被修改，请刷新后重试")
)

// ScheduleService 时间表与签到会话业务接口
//
// 签到会话由 (schedule_id, session_date) 唯一确定，首次签发二维码时隐式创建。
// 会话的签到窗口在创建时按时间表快照，之后修改时间表的窗口偏移不影响已有会话。
type ScheduleService interface {
	ListSchedules(ctx context.Context, classID string) ([]dto.ScheduleResponse, error)
	AddSchedule(ctx context.Context, classID string, req *dto.CreateScheduleRequest, operatorID, role string) (*dto.ScheduleResponse, error)
	DeleteSchedule(ctx context.Context, scheduleID, operatorID, role string) error
	UpdateAttendanceTime(ctx context.Context, req *dto.UpdateAttendanceTimeRequest, operatorID, role string) (*dto.ScheduleResponse, error)
	// ResolveOrCreateSession 幂等：并发调用只产生一条会话
	ResolveOrCreateSession(ctx context.Context, schedule *model.ClassSchedule, date time.Time) (*model.AttendanceSession, error)
}

type scheduleService struct {
	cfg    *config.AttendanceConfig
	loc    *time.Location
	repo   *repository.Repository
	logger *zap.Logger
}

// NewScheduleService 创建 ScheduleService 实例
func NewScheduleService(cfg *config.AttendanceConfig, loc *time.Location, repo *repository.Repository, logger *zap.Logger) ScheduleService {
	return &scheduleService{cfg: cfg, loc: loc, repo: repo, logger: logger}
}

func (s *scheduleService) ListSchedules(ctx context.Context, classID string) ([]dto.ScheduleResponse, error) {
	if _, err := s.repo.Class.GetByID(ctx, classID); err != nil {
		if isNotFound(err) {
			return nil, ErrClassNotFound
		}
		s.logger.Error("查询班级失败", zap.String("class_id", classID), zap.Error(err))
		return nil, err
	}

	schedules, err := s.repo.Schedule.ListByClass(ctx, classID)
	if err != nil {
		s.logger.Error("查询上课时间失败", zap.String("class_id", classID), zap.Error(err))
		return nil, err
	}

	result := make([]dto.ScheduleResponse, 0, len(schedules))
	for i := range schedules {
		result = append(result, toScheduleResponse(&schedules[i]))
	}
	return result, nil
}

// ════════════════════════════════════════════════════════════
// AddSchedule — 新增上课时间
// ════════════════════════════════════════════════════════════
//
// 在事务内锁定班级行后再做重叠检查，同一班级的并发新增被串行化。

func (s *scheduleService) AddSchedule(ctx context.Context, classID string, req *dto.CreateScheduleRequest, operatorID, role string) (*dto.ScheduleResponse, error) {
	if req.DayOfWeek == nil || *req.DayOfWeek < 0 || *req.DayOfWeek > 6 {
		return nil, ErrInvalidDayOfWeek
	}
	start, err := parseClock(req.StartTime)
	if err != nil {
		return nil, ErrInvalidScheduleTime
	}
	end, err := parseClock(req.EndTime)
	if err != nil {
		return nil, ErrInvalidScheduleTime
	}
	if start >= end {
		return nil, ErrInvalidScheduleTime
	}

	schedule := &model.ClassSchedule{
		ClassID:   classID,
		DayOfWeek: *req.DayOfWeek,
		StartTime: normalizeClock(req.StartTime),
		EndTime:   normalizeClock(req.EndTime),
	}
	schedule.CreatedBy = &operatorID
	schedule.UpdatedBy = &operatorID

	err = s.repo.Transaction(ctx, func(txRepo *repository.Repository) error {
		class, err := txRepo.Class.GetByIDForUpdate(ctx, classID)
		if err != nil {
			if isNotFound(err) {
				return ErrClassNotFound
			}
			return err
		}
		if !canManageClass(class, operatorID, role) {
			return ErrNotScheduleOwner
		}

		existing, err := txRepo.Schedule.ListByClassAndDay(ctx, classID, schedule.DayOfWeek)
		if err != nil {
			return err
		}
		for i := range existing {
			exStart, err1 := parseClock(existing[i].StartTime)
			exEnd, err2 := parseClock(existing[i].EndTime)
			if err1 != nil || err2 != nil {
				continue
			}
			// 首尾相接不算重叠
			if start < exEnd && exStart < end {
				return ErrScheduleOverlap
			}
		}

		return txRepo.Schedule.Create(ctx, schedule)
	})
	if err != nil {
		if !isScheduleBusinessError(err) {
			s.logger.Error("新增上课时间失败", zap.String("class_id", classID), zap.Error(err))
		}
		return nil, err
	}

	s.logger.Info("新增上课时间",
		zap.String("schedule_id", schedule.ScheduleID),
		zap.String("class_id", classID),
		zap.Int("day_of_week", schedule.DayOfWeek),
		zap.String("operator", operatorID),
	)

	resp := toScheduleResponse(schedule)
	return &resp, nil
}

func (s *scheduleService) DeleteSchedule(ctx context.Context, scheduleID, operatorID, role string) error {
	schedule, err := s.loadOwnedSchedule(ctx, scheduleID, operatorID, role)
	if err != nil {
		return err
	}

	if err := s.repo.Schedule.Delete(ctx, schedule.ScheduleID); err != nil {
		s.logger.Error("删除上课时间失败", zap.String("schedule_id", scheduleID), zap.Error(err))
		return err
	}

	s.logger.Info("删除上课时间",
		zap.String("schedule_id", scheduleID),
		zap.String("class_id", schedule.ClassID),
		zap.String("operator", operatorID),
	)
	return nil
}

func (s *scheduleService) UpdateAttendanceTime(ctx context.Context, req *dto.UpdateAttendanceTimeRequest, operatorID, role string) (*dto.ScheduleResponse, error) {
	schedule, err := s.loadOwnedSchedule(ctx, req.ScheduleID, operatorID, role)
	if err != nil {
		return nil, err
	}
	if schedule.Version != req.Version {
		return nil, ErrScheduleVersion
	}

	schedule.OpenBeforeMinutes = req.OpenBeforeMinutes
	schedule.CloseAfterMinutes = req.CloseAfterMinutes
	schedule.UpdatedBy = &operatorID

	if err := s.repo.Schedule.UpdateAttendanceWindow(ctx, schedule); err != nil {
		if errors.Is(err, pkgerrors.ErrOptimisticLock) {
			return nil, ErrScheduleVersion
		}
		s.logger.Error("更新签到窗口失败", zap.String("schedule_id", req.ScheduleID), zap.Error(err))
		return nil, err
	}

	resp := toScheduleResponse(schedule)
	return &resp, nil
}

// ════════════════════════════════════════════════════════════
// ResolveOrCreateSession — 解析或创建签到会话
// ════════════════════════════════════════════════════════════
//
// 窗口：开始 = 日期 + 上课时间 − 提前量；结束 = 日期 + 下课时间 + 延后量。
// 提前量/延后量优先取时间表自身设置，否则取系统默认，按学校时区换算。

func (s *scheduleService) ResolveOrCreateSession(ctx context.Context, schedule *model.ClassSchedule, date time.Time) (*model.AttendanceSession, error) {
	openAt, closeAt, err := s.sessionWindow(schedule, date)
	if err != nil {
		return nil, err
	}

	scheduleID := schedule.ScheduleID
	session := &model.AttendanceSession{
		ScheduleID:    &scheduleID,
		ClassID:       schedule.ClassID,
		SessionDate:   time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC),
		WindowOpenAt:  openAt,
		WindowCloseAt: closeAt,
	}

	resolved, err := s.repo.Session.ResolveOrCreate(ctx, session)
	if err != nil {
		s.logger.Error("解析签到会话失败",
			zap.String("schedule_id", scheduleID),
			zap.String("date", date.Format(dateLayout)),
			zap.Error(err),
		)
		return nil, err
	}
	return resolved, nil
}

func (s *scheduleService) sessionWindow(schedule *model.ClassSchedule, date time.Time) (time.Time, time.Time, error) {
	start, err := parseClock(schedule.StartTime)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := parseClock(schedule.EndTime)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	openBefore := s.cfg.WindowOpenBefore
	if schedule.OpenBeforeMinutes != nil {
		openBefore = time.Duration(*schedule.OpenBeforeMinutes) * time.Minute
	}
	closeAfter := s.cfg.WindowCloseAfter
	if schedule.CloseAfterMinutes != nil {
		closeAfter = time.Duration(*schedule.CloseAfterMinutes) * time.Minute
	}

	openAt := atLocalClock(date, start, s.loc).Add(-openBefore)
	closeAt := atLocalClock(date, end, s.loc).Add(closeAfter)
	return openAt, closeAt, nil
}

// loadOwnedSchedule 查询时间表并校验操作人是否为班级任课教师
func (s *scheduleService) loadOwnedSchedule(ctx context.Context, scheduleID, operatorID, role string) (*model.ClassSchedule, error) {
	schedule, err := s.repo.Schedule.GetByID(ctx, scheduleID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrScheduleNotFound
		}
		s.logger.Error("查询上课时间失败", zap.String("schedule_id", scheduleID), zap.Error(err))
		return nil, err
	}

	class := schedule.Class
	if class == nil {
		class, err = s.repo.Class.GetByID(ctx, schedule.ClassID)
		if err != nil {
			if isNotFound(err) {
				return nil, ErrClassNotFound
			}
			return nil, err
		}
	}
	if !canManageClass(class, operatorID, role) {
		return nil, ErrNotScheduleOwner
	}
	return schedule, nil
}

func isScheduleBusinessError(err error) bool {
	if _, ok := AttendanceErrorKindOf(err); ok {
		return true
	}
	return errors.Is(err, ErrScheduleOverlap)
}

func toScheduleResponse(s *model.ClassSchedule) dto.ScheduleResponse {
	return dto.ScheduleResponse{
		ID:                s.ScheduleID,
		ClassID:           s.ClassID,
		DayOfWeek:         s.DayOfWeek,
		StartTime:         normalizeClock(s.StartTime),
		EndTime:           normalizeClock(s.EndTime),
		OpenBeforeMinutes: s.OpenBeforeMinutes,
		CloseAfterMinutes: s.CloseAfterMinutes,
		Version:           s.Version,
	}
}
