package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
	"go.uber.org/zap"

	"qr-attendance/internal/repository"
)

// CalendarService 班级课表日历导出接口
type CalendarService interface {
	// ExportClassCalendar 生成 iCalendar，每个上课时间对应一个按周重复的事件
	ExportClassCalendar(ctx context.Context, classID string) (string, string, error)
}

type calendarService struct {
	loc    *time.Location
	repo   *repository.Repository
	logger *zap.Logger
	now    func() time.Time
}

// NewCalendarService 创建 CalendarService 实例
func NewCalendarService(loc *time.Location, repo *repository.Repository, logger *zap.Logger) CalendarService {
	return &calendarService{loc: loc, repo: repo, logger: logger, now: time.Now}
}

var icsWeekdays = [7]string{"SU", "MO", "TU", "WE", "TH", "FR", "SA"}

func (s *calendarService) ExportClassCalendar(ctx context.Context, classID string) (string, string, error) {
	class, err := s.repo.Class.GetByID(ctx, classID)
	if err != nil {
		if isNotFound(err) {
			return "", "", ErrClassNotFound
		}
		s.logger.Error("查询班级失败", zap.String("class_id", classID), zap.Error(err))
		return "", "", err
	}

	schedules, err := s.repo.Schedule.ListByClass(ctx, classID)
	if err != nil {
		s.logger.Error("查询上课时间失败", zap.String("class_id", classID), zap.Error(err))
		return "", "", err
	}

	now := s.now()
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//qr-attendance//class schedule//ZH")
	cal.SetXWRCalName(class.Name)
	cal.SetXWRTimezone(s.loc.String())

	for i := range schedules {
		sc := &schedules[i]
		start, err1 := parseClock(sc.StartTime)
		end, err2 := parseClock(sc.EndTime)
		if err1 != nil || err2 != nil {
			s.logger.Warn("跳过时间格式无效的上课时间", zap.String("schedule_id", sc.ScheduleID))
			continue
		}

		first := nextWeekday(calendarDate(now, s.loc), sc.DayOfWeek)
		event := cal.AddEvent(sc.ScheduleID + "@qr-attendance")
		event.SetDtStampTime(now)
		event.SetSummary(fmt.Sprintf("%s (%s)", class.Name, class.Code))
		event.SetStartAt(atLocalClock(first, start, s.loc))
		event.SetEndAt(atLocalClock(first, end, s.loc))
		event.AddProperty(ics.ComponentPropertyRrule, "FREQ=WEEKLY;BYDAY="+icsWeekdays[sc.DayOfWeek])
	}

	filename := fmt.Sprintf("%s.ics", sanitizeFilename(class.Code))
	return cal.Serialize(), filename, nil
}

// nextWeekday 返回 from 当天或之后第一个星期为 dayOfWeek 的日期
func nextWeekday(from time.Time, dayOfWeek int) time.Time {
	diff := (dayOfWeek - int(from.Weekday()) + 7) % 7
	return from.AddDate(0, 0, diff)
}

// sanitizeFilename 去掉文件名中的路径与引号字符
func sanitizeFilename(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', '"', ':', '*', '?', '<', '>', '|':
			return '_'
		}
		return r
	}, name)
}
