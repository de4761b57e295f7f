package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"qr-attendance/internal/model"
)

// ── 时间与权限辅助 ──

const (
	dateLayout  = "2006-01-02"
	clockLayout = "15:04"
)

// ErrInvalidDate 日期参数格式错误
var ErrInvalidDate = errors.New("日期格式无效，应为 YYYY-MM-DD")

// parseClock 解析 "HH:MM"，兼容数据库 time 类型返回的 "HH:MM:SS"
func parseClock(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	layout := clockLayout
	if strings.Count(s, ":") == 2 {
		layout = "15:04:05"
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return 0, fmt.Errorf("时间格式无效: %q", s)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute + time.Duration(t.Second())*time.Second, nil
}

// normalizeClock 统一为 "HH:MM"
func normalizeClock(s string) string {
	d, err := parseClock(s)
	if err != nil {
		return s
	}
	return fmt.Sprintf("%02d:%02d", int(d.Hours()), int(d.Minutes())%60)
}

// calendarDate 取 t 在 loc 中的日历日，以 UTC 零点表示（与数据库 date 列一致）
func calendarDate(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// parseDate 解析 "YYYY-MM-DD"；空串表示学校时区的今天
func parseDate(s string, now time.Time, loc *time.Location) (time.Time, error) {
	if s == "" {
		return calendarDate(now, loc), nil
	}
	d, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return d, nil
}

// atLocalClock 返回日历日 date 在 loc 中 offset 时刻对应的绝对时间
func atLocalClock(date time.Time, offset time.Duration, loc *time.Location) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, loc).Add(offset)
}

// canManageClass 管理员或班级任课教师可管理班级
func canManageClass(class *model.Class, operatorID, role string) bool {
	return role == model.RoleAdmin || class.TeacherID == operatorID
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
