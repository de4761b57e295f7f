package model

import "time"

// 签到方式
const (
	AttendanceMethodQR     = "qr"
	AttendanceMethodManual = "manual"
)

// Attendance 签到记录表 — 对应 attendances
// (student_id, session_id) 唯一，由数据库约束保证；记录创建后不再修改，只允许硬删除
type Attendance struct {
	AttendanceID string    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"attendance_id"`
	StudentID    string    `gorm:"type:uuid;not null"                             json:"student_id"` // 学生账号 user_id
	SessionID    string    `gorm:"type:uuid;not null"                             json:"session_id"`
	ClassID      string    `gorm:"type:uuid;not null"                             json:"class_id"`
	CheckedInAt  time.Time `gorm:"not null"                                       json:"checked_in_at"`
	Method       string    `gorm:"type:varchar(10);not null"                      json:"method"`
	TokenID      *string   `gorm:"type:uuid"                                      json:"token_id,omitempty"`
	MarkedBy     *string   `gorm:"type:uuid"                                      json:"marked_by,omitempty"`

	// 关联
	Session *AttendanceSession `gorm:"foreignKey:SessionID;references:SessionID" json:"session,omitempty"`
	Class   *Class             `gorm:"foreignKey:ClassID;references:ClassID"     json:"class,omitempty"`
}

func (Attendance) TableName() string { return "attendances" }

// SessionSummary 会话出勤汇总
type SessionSummary struct {
	AttendanceSession
	PresentCount int64 `json:"present_count"`
}

// StudentAttendanceCount 学生出勤次数汇总
type StudentAttendanceCount struct {
	StudentID string `json:"student_id"`
	Count     int64  `json:"count"`
}
