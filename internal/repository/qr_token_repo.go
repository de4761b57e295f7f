package repository

import (
	"context"

	"gorm.io/gorm"

	"qr-attendance/internal/model"
)

// QRTokenRepository 二维码令牌数据访问接口（只增不改）
type QRTokenRepository interface {
	Create(ctx context.Context, token *model.QRToken) error
	GetByID(ctx context.Context, id string) (*model.QRToken, error)
}

type qrTokenRepo struct {
	db *gorm.DB
}

// NewQRTokenRepo 创建 QRTokenRepository 实例
func NewQRTokenRepo(db *gorm.DB) QRTokenRepository {
	return &qrTokenRepo{db: db}
}

func (r *qrTokenRepo) Create(ctx context.Context, token *model.QRToken) error {
	return r.db.WithContext(ctx).Create(token).Error
}

func (r *qrTokenRepo) GetByID(ctx context.Context, id string) (*model.QRToken, error) {
	var token model.QRToken
	err := r.db.WithContext(ctx).
		Where("token_id = ?", id).
		First(&token).Error
	if err != nil {
		return nil, err
	}
	return &token, nil
}
