package repository

import (
	"context"

	"gorm.io/gorm"

	"qr-attendance/internal/model"
	pkgerrors "qr-attendance/pkg/errors"
)

// ScheduleRepository 班级时间表数据访问接口
type ScheduleRepository interface {
	Create(ctx context.Context, schedule *model.ClassSchedule) error
	GetByID(ctx context.Context, id string) (*model.ClassSchedule, error)
	ListByClass(ctx context.Context, classID string) ([]model.ClassSchedule, error)
	ListByClassAndDay(ctx context.Context, classID string, dayOfWeek int) ([]model.ClassSchedule, error)
	// UpdateAttendanceWindow 乐观锁更新签到窗口偏移
	UpdateAttendanceWindow(ctx context.Context, schedule *model.ClassSchedule) error
	Delete(ctx context.Context, id string) error
}

type scheduleRepo struct {
	db *gorm.DB
}

// NewScheduleRepo 创建 ScheduleRepository 实例
func NewScheduleRepo(db *gorm.DB) ScheduleRepository {
	return &scheduleRepo{db: db}
}

func (r *scheduleRepo) Create(ctx context.Context, schedule *model.ClassSchedule) error {
	return r.db.WithContext(ctx).Create(schedule).Error
}

func (r *scheduleRepo) GetByID(ctx context.Context, id string) (*model.ClassSchedule, error) {
	var schedule model.ClassSchedule
	err := r.db.WithContext(ctx).
		Preload("Class").
		Where("schedule_id = ?", id).
		First(&schedule).Error
	if err != nil {
		return nil, err
	}
	return &schedule, nil
}

func (r *scheduleRepo) ListByClass(ctx context.Context, classID string) ([]model.ClassSchedule, error) {
	var schedules []model.ClassSchedule
	err := r.db.WithContext(ctx).
		Where("class_id = ?", classID).
		Order("day_of_week ASC, start_time ASC").
		Find(&schedules).Error
	return schedules, err
}

func (r *scheduleRepo) ListByClassAndDay(ctx context.Context, classID string, dayOfWeek int) ([]model.ClassSchedule, error) {
	var schedules []model.ClassSchedule
	err := r.db.WithContext(ctx).
		Where("class_id = ? AND day_of_week = ?", classID, dayOfWeek).
		Order("start_time ASC").
		Find(&schedules).Error
	return schedules, err
}

func (r *scheduleRepo) UpdateAttendanceWindow(ctx context.Context, schedule *model.ClassSchedule) error {
	oldVersion := schedule.Version
	result := r.db.WithContext(ctx).
		Model(&model.ClassSchedule{}).
		Where("schedule_id = ? AND version = ?", schedule.ScheduleID, oldVersion).
		Updates(map[string]interface{}{
			"open_before_minutes": schedule.OpenBeforeMinutes,
			"close_after_minutes": schedule.CloseAfterMinutes,
			"updated_by":          schedule.UpdatedBy,
			"updated_at":          gorm.Expr("NOW()"),
			"version":             oldVersion + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrOptimisticLock
	}
	schedule.Version = oldVersion + 1
	return nil
}

// Delete 硬删除时间表；已有会话的 schedule_id 由外键置空，历史签到记录保留
func (r *scheduleRepo) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Where("schedule_id = ?", id).
		Delete(&model.ClassSchedule{}).Error
}
