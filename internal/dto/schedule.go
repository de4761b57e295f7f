package dto

// ── 时间表模块 DTO ──

// CreateScheduleRequest 新增班级上课时间请求
type CreateScheduleRequest struct {
	DayOfWeek *int   `json:"day_of_week" binding:"required,min=0,max=6"` // 0=周日
	StartTime string `json:"start_time"  binding:"required"`             // "HH:MM"
	EndTime   string `json:"end_time"    binding:"required"`
}

// UpdateAttendanceTimeRequest 调整签到窗口请求
// 仅影响之后新建的签到会话；传 null 表示恢复系统默认
type UpdateAttendanceTimeRequest struct {
	ScheduleID        string `json:"schedule_id"         binding:"required,uuid"`
	OpenBeforeMinutes *int   `json:"open_before_minutes" binding:"omitempty,min=0,max=240"`
	CloseAfterMinutes *int   `json:"close_after_minutes" binding:"omitempty,min=0,max=240"`
	Version           int    `json:"version"             binding:"required,min=1"`
}

// ── 响应 ──

// ScheduleResponse 上课时间响应
type ScheduleResponse struct {
	ID                string `json:"id"`
	ClassID           string `json:"class_id"`
	DayOfWeek         int    `json:"day_of_week"`
	StartTime         string `json:"start_time"`
	EndTime           string `json:"end_time"`
	OpenBeforeMinutes *int   `json:"open_before_minutes"`
	CloseAfterMinutes *int   `json:"close_after_minutes"`
	Version           int    `json:"version"`
}
