package dto

// ── 签到模块 DTO ──

// GenerateQRRequest 教师生成签到二维码请求
type GenerateQRRequest struct {
	ClassID         string `json:"class_id"         binding:"required,uuid"`
	ScheduleID      string `json:"schedule_id"      binding:"required,uuid"`
	DurationMinutes int    `json:"duration_minutes"` // 取值范围由 Service 层校验，不做截断
}

// CheckInRequest 学生扫码签到请求
type CheckInRequest struct {
	QRData string `json:"qr_data" binding:"required"`
}

// ManualAttendanceRequest 教师补录签到请求
type ManualAttendanceRequest struct {
	ClassID    string `json:"class_id"    binding:"required,uuid"`
	StudentID  string `json:"student_id"  binding:"required,uuid"` // 学生账号 user_id
	Date       string `json:"date"        binding:"required"`      // "YYYY-MM-DD"
	ScheduleID string `json:"schedule_id" binding:"omitempty,uuid"`
}

// ClassDateQuery 按班级 + 日期查询参数
type ClassDateQuery struct {
	Date string `form:"date"` // 为空时取学校时区的今天
}

// ── 响应 ──

// QRResponse 二维码签发结果
type QRResponse struct {
	TokenID   string `json:"token_id"`
	SessionID string `json:"session_id"`
	QRData    string `json:"qr_data"`     // 扫码内容
	QRCodeURL string `json:"qr_code_url"` // data:image/png;base64,...
	IssuedAt  string `json:"issued_at"`
	ExpiresAt string `json:"expires_at"`
}

// AttendanceReceipt 签到回执
type AttendanceReceipt struct {
	AttendanceID string `json:"attendance_id"`
	ClassID      string `json:"class_id"`
	ClassName    string `json:"class_name"`
	SessionDate  string `json:"session_date"`
	CheckedInAt  string `json:"checked_in_at"`
	Method       string `json:"method"`
	StudentCode  string `json:"student_code"`
	StudentName  string `json:"student_name"`
}

// AttendanceHistoryItem 学生签到历史条目
type AttendanceHistoryItem struct {
	AttendanceID string `json:"attendance_id"`
	ClassID      string `json:"class_id"`
	ClassName    string `json:"class_name"`
	SessionID    string `json:"session_id"`
	SessionDate  string `json:"session_date"`
	CheckedInAt  string `json:"checked_in_at"`
	Method       string `json:"method"`
}

// StudentBrief 名单中的学生
type StudentBrief struct {
	UserID       string `json:"user_id"`
	StudentCode  string `json:"student_code"`
	FullName     string `json:"full_name"`
	AttendanceID string `json:"attendance_id,omitempty"` // 仅出勤名单
	CheckedInAt  string `json:"checked_in_at,omitempty"`
	Method       string `json:"method,omitempty"`
}

// ClassReportResponse 班级某日出勤报告（出勤与缺勤互斥且覆盖全部在册学生）
type ClassReportResponse struct {
	ClassID       string         `json:"class_id"`
	ClassName     string         `json:"class_name"`
	Date          string         `json:"date"`
	SessionIDs    []string       `json:"session_ids"`
	Present       []StudentBrief `json:"present"`
	Absent        []StudentBrief `json:"absent"`
	TotalEnrolled int            `json:"total_enrolled"`
}

// SessionHistoryItem 班级会话历史条目
type SessionHistoryItem struct {
	SessionID     string `json:"session_id"`
	ScheduleID    string `json:"schedule_id,omitempty"`
	SessionDate   string `json:"session_date"`
	WindowOpenAt  string `json:"window_open_at"`
	WindowCloseAt string `json:"window_close_at"`
	PresentCount  int64  `json:"present_count"`
}

// StudentStatsItem 学生出勤统计
type StudentStatsItem struct {
	UserID        string  `json:"user_id"`
	StudentCode   string  `json:"student_code"`
	FullName      string  `json:"full_name"`
	AttendedCount int64   `json:"attended_count"`
	TotalSessions int     `json:"total_sessions"`
	Rate          float64 `json:"rate"` // 0~1
}
