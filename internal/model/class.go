package model

import "time"

// Class 班级（课程班）表 — 对应 classes
type Class struct {
	ClassID   string    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"class_id"`
	Name      string    `gorm:"type:varchar(200);not null"                     json:"name"`
	Code      string    `gorm:"type:varchar(50);not null;uniqueIndex"          json:"code"`
	TeacherID string    `gorm:"type:uuid;not null"                             json:"teacher_id"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"             json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"             json:"updated_at"`
}

func (Class) TableName() string { return "classes" }

// ClassEnrollment 选课关系表 — 对应 class_enrollments
type ClassEnrollment struct {
	ClassID       string    `gorm:"type:uuid;primaryKey"               json:"class_id"`
	StudentUserID string    `gorm:"type:uuid;primaryKey"               json:"student_user_id"`
	EnrolledAt    time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"enrolled_at"`
}

func (ClassEnrollment) TableName() string { return "class_enrollments" }

// RosterEntry 班级名单行（选课关系 + 学生档案）
type RosterEntry struct {
	UserID      string `json:"user_id"`
	StudentCode string `json:"student_code"`
	FullName    string `json:"full_name"`
}
