package model

import "time"

// AttendanceSession 一次具体上课（某个时间表在某一天的实例）— 对应 attendance_sessions
// (schedule_id, session_date) 唯一；签到窗口在创建时按时间表快照
type AttendanceSession struct {
	SessionID     string    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"session_id"`
	ScheduleID    *string   `gorm:"type:uuid"                                      json:"schedule_id"` // 时间表删除后置空，历史签到保留
	ClassID       string    `gorm:"type:uuid;not null"                             json:"class_id"`
	SessionDate   time.Time `gorm:"type:date;not null"                             json:"session_date"`
	WindowOpenAt  time.Time `gorm:"not null"                                       json:"window_open_at"`
	WindowCloseAt time.Time `gorm:"not null"                                       json:"window_close_at"`
	CreatedAt     time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"             json:"created_at"`
}

func (AttendanceSession) TableName() string { return "attendance_sessions" }

// QRToken 已签发的二维码令牌 — 对应 qr_tokens（签发后不可变）
type QRToken struct {
	TokenID   string    `gorm:"type:uuid;primaryKey" json:"token_id"`
	SessionID string    `gorm:"type:uuid;not null"   json:"session_id"`
	IssuedBy  string    `gorm:"type:uuid;not null"   json:"issued_by"`
	IssuedAt  time.Time `gorm:"not null"             json:"issued_at"`
	ExpiresAt time.Time `gorm:"not null"             json:"expires_at"`
}

func (QRToken) TableName() string { return "qr_tokens" }
