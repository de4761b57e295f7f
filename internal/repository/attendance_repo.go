package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"qr-attendance/internal/model"
	pkgerrors "qr-attendance/pkg/errors"
)

// AttendanceRepository 签到记录数据访问接口
type AttendanceRepository interface {
	// Insert 条件插入签到记录；(student_id, session_id) 已存在时返回 pkgerrors.ErrDuplicateRecord
	Insert(ctx context.Context, attendance *model.Attendance) error
	Exists(ctx context.Context, studentID, sessionID string) (bool, error)
	GetByID(ctx context.Context, id string) (*model.Attendance, error)
	// ListByStudent 分页查询学生的签到历史，最近的在前
	ListByStudent(ctx context.Context, studentID string, offset, limit int) ([]model.Attendance, int64, error)
	ListBySessions(ctx context.Context, sessionIDs []string) ([]model.Attendance, error)
	CountByStudentInClass(ctx context.Context, classID string) ([]model.StudentAttendanceCount, error)
	Delete(ctx context.Context, id string) error
}

type attendanceRepo struct {
	db *gorm.DB
}

// NewAttendanceRepo 创建 AttendanceRepository 实例
func NewAttendanceRepo(db *gorm.DB) AttendanceRepository {
	return &attendanceRepo{db: db}
}

// Insert 依赖 uq_attendances_student_session 唯一约束：
// ON CONFLICT DO NOTHING 未写入任何行即表示并发竞争失败或重复提交
func (r *attendanceRepo) Insert(ctx context.Context, attendance *model.Attendance) error {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "student_id"}, {Name: "session_id"}},
			DoNothing: true,
		}).
		Create(attendance)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrDuplicateRecord
	}
	return nil
}

func (r *attendanceRepo) Exists(ctx context.Context, studentID, sessionID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Attendance{}).
		Where("student_id = ? AND session_id = ?", studentID, sessionID).
		Count(&count).Error
	return count > 0, err
}

func (r *attendanceRepo) GetByID(ctx context.Context, id string) (*model.Attendance, error) {
	var attendance model.Attendance
	err := r.db.WithContext(ctx).
		Where("attendance_id = ?", id).
		First(&attendance).Error
	if err != nil {
		return nil, err
	}
	return &attendance, nil
}

func (r *attendanceRepo) ListByStudent(ctx context.Context, studentID string, offset, limit int) ([]model.Attendance, int64, error) {
	var (
		records []model.Attendance
		total   int64
	)
	query := r.db.WithContext(ctx).Model(&model.Attendance{}).Where("student_id = ?", studentID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := query.
		Preload("Session").
		Preload("Class").
		Order("checked_in_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&records).Error
	return records, total, err
}

func (r *attendanceRepo) ListBySessions(ctx context.Context, sessionIDs []string) ([]model.Attendance, error) {
	if len(sessionIDs) == 0 {
		return nil, nil
	}
	var records []model.Attendance
	err := r.db.WithContext(ctx).
		Where("session_id IN ?", sessionIDs).
		Order("checked_in_at ASC").
		Find(&records).Error
	return records, err
}

func (r *attendanceRepo) CountByStudentInClass(ctx context.Context, classID string) ([]model.StudentAttendanceCount, error) {
	var counts []model.StudentAttendanceCount
	err := r.db.WithContext(ctx).
		Model(&model.Attendance{}).
		Select("student_id, COUNT(*) AS count").
		Where("class_id = ?", classID).
		Group("student_id").
		Scan(&counts).Error
	return counts, err
}

func (r *attendanceRepo) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Where("attendance_id = ?", id).
		Delete(&model.Attendance{}).Error
}
