package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"qr-attendance/internal/model"
)

// ClassRepository 班级与选课关系数据访问接口（只读，名单维护不在本服务内）
type ClassRepository interface {
	GetByID(ctx context.Context, id string) (*model.Class, error)
	// GetByIDForUpdate 使用 SELECT ... FOR UPDATE 锁定班级行，串行化同一班级的时间表变更
	// 必须在事务中调用（通过 Repository.Transaction 注入事务连接）
	GetByIDForUpdate(ctx context.Context, id string) (*model.Class, error)
	IsEnrolled(ctx context.Context, classID, studentUserID string) (bool, error)
	ListRoster(ctx context.Context, classID string) ([]model.RosterEntry, error)
}

type classRepo struct {
	db *gorm.DB
}

// NewClassRepo 创建 ClassRepository 实例
func NewClassRepo(db *gorm.DB) ClassRepository {
	return &classRepo{db: db}
}

func (r *classRepo) GetByID(ctx context.Context, id string) (*model.Class, error) {
	var class model.Class
	err := r.db.WithContext(ctx).
		Where("class_id = ?", id).
		First(&class).Error
	if err != nil {
		return nil, err
	}
	return &class, nil
}

func (r *classRepo) GetByIDForUpdate(ctx context.Context, id string) (*model.Class, error) {
	var class model.Class
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("class_id = ?", id).
		First(&class).Error
	if err != nil {
		return nil, err
	}
	return &class, nil
}

func (r *classRepo) IsEnrolled(ctx context.Context, classID, studentUserID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.ClassEnrollment{}).
		Where("class_id = ? AND student_user_id = ?", classID, studentUserID).
		Count(&count).Error
	return count > 0, err
}

// ListRoster 返回班级名单；未建立学生档案的账号以账号姓名兜底
func (r *classRepo) ListRoster(ctx context.Context, classID string) ([]model.RosterEntry, error) {
	var roster []model.RosterEntry
	err := r.db.WithContext(ctx).
		Table("class_enrollments AS e").
		Select("e.student_user_id AS user_id, COALESCE(s.student_code, '') AS student_code, COALESCE(s.full_name, u.name) AS full_name").
		Joins("JOIN users u ON u.user_id = e.student_user_id").
		Joins("LEFT JOIN students s ON s.user_id = e.student_user_id").
		Where("e.class_id = ?", classID).
		Order("student_code ASC, full_name ASC").
		Scan(&roster).Error
	return roster, err
}
