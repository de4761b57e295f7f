package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"qr-attendance/internal/model"
)

// dateLayout 会话日期在查询中的文本格式
const dateLayout = "2006-01-02"

// SessionRepository 签到会话数据访问接口
type SessionRepository interface {
	// ResolveOrCreate 以 (schedule_id, session_date) 为键原子地“不存在则插入”，
	// 并发调用只会产生一条会话，所有调用方拿到同一行
	ResolveOrCreate(ctx context.Context, session *model.AttendanceSession) (*model.AttendanceSession, error)
	GetByID(ctx context.Context, id string) (*model.AttendanceSession, error)
	GetByScheduleAndDate(ctx context.Context, scheduleID, date string) (*model.AttendanceSession, error)
	ListByClassAndDate(ctx context.Context, classID, date string) ([]model.AttendanceSession, error)
	// ListSummariesByClass 列出班级全部会话及其出勤人数，最近的在前
	ListSummariesByClass(ctx context.Context, classID string) ([]model.SessionSummary, error)
}

type sessionRepo struct {
	db *gorm.DB
}

// NewSessionRepo 创建 SessionRepository 实例
func NewSessionRepo(db *gorm.DB) SessionRepository {
	return &sessionRepo{db: db}
}

func (r *sessionRepo) ResolveOrCreate(ctx context.Context, session *model.AttendanceSession) (*model.AttendanceSession, error) {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "schedule_id"}, {Name: "session_date"}},
			DoNothing: true,
		}).
		Create(session).Error
	if err != nil {
		return nil, err
	}

	// 无论本次是否写入，都以库中的那一行为准
	return r.GetByScheduleAndDate(ctx, *session.ScheduleID, session.SessionDate.Format(dateLayout))
}

func (r *sessionRepo) GetByID(ctx context.Context, id string) (*model.AttendanceSession, error) {
	var session model.AttendanceSession
	err := r.db.WithContext(ctx).
		Where("session_id = ?", id).
		First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepo) GetByScheduleAndDate(ctx context.Context, scheduleID, date string) (*model.AttendanceSession, error) {
	var session model.AttendanceSession
	err := r.db.WithContext(ctx).
		Where("schedule_id = ? AND session_date = ?", scheduleID, date).
		First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepo) ListByClassAndDate(ctx context.Context, classID, date string) ([]model.AttendanceSession, error) {
	var sessions []model.AttendanceSession
	err := r.db.WithContext(ctx).
		Where("class_id = ? AND session_date = ?", classID, date).
		Order("window_open_at ASC").
		Find(&sessions).Error
	return sessions, err
}

func (r *sessionRepo) ListSummariesByClass(ctx context.Context, classID string) ([]model.SessionSummary, error) {
	var summaries []model.SessionSummary
	err := r.db.WithContext(ctx).
		Table("attendance_sessions AS s").
		Select("s.*, COUNT(a.attendance_id) AS present_count").
		Joins("LEFT JOIN attendances a ON a.session_id = s.session_id").
		Where("s.class_id = ?", classID).
		Group("s.session_id").
		Order("s.session_date DESC, s.window_open_at DESC").
		Scan(&summaries).Error
	return summaries, err
}
