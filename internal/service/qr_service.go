package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"qr-attendance/config"
	"qr-attendance/internal/dto"
	"qr-attendance/internal/model"
	"qr-attendance/internal/repository"
	"qr-attendance/pkg/metrics"
	"qr-attendance/pkg/qrtoken"
)

// QRService 签到二维码签发业务接口
type QRService interface {
	// Generate 为时间表今天的签到会话签发一个新令牌
	// 同一会话可多次签发，旧令牌在各自过期前仍然有效
	Generate(ctx context.Context, req *dto.GenerateQRRequest, operatorID, role string) (*dto.QRResponse, error)
}

type qrService struct {
	cfg       *config.AttendanceConfig
	loc       *time.Location
	repo      *repository.Repository
	schedules ScheduleService
	signer    *qrtoken.Signer
	cache     TokenCache
	metrics   *metrics.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// NewQRService 创建 QRService 实例；cache 与 m 可为 nil
func NewQRService(
	cfg *config.AttendanceConfig,
	loc *time.Location,
	repo *repository.Repository,
	schedules ScheduleService,
	signer *qrtoken.Signer,
	cache TokenCache,
	m *metrics.Metrics,
	logger *zap.Logger,
) QRService {
	return &qrService{
		cfg:       cfg,
		loc:       loc,
		repo:      repo,
		schedules: schedules,
		signer:    signer,
		cache:     cache,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *qrService) Generate(ctx context.Context, req *dto.GenerateQRRequest, operatorID, role string) (*dto.QRResponse, error) {
	// 1. 有效时长越界直接拒绝，不做截断
	if req.DurationMinutes < s.cfg.MinDurationMinutes || req.DurationMinutes > s.cfg.MaxDurationMinutes {
		return nil, ErrInvalidDuration
	}

	// 2. 时间表必须存在且属于该班级
	schedule, err := s.repo.Schedule.GetByID(ctx, req.ScheduleID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrScheduleNotFound
		}
		s.logger.Error("查询上课时间失败", zap.String("schedule_id", req.ScheduleID), zap.Error(err))
		return nil, err
	}
	if schedule.ClassID != req.ClassID {
		return nil, ErrScheduleNotFound
	}

	// 3. 仅任课教师（或管理员）可签发
	class := schedule.Class
	if class == nil {
		if class, err = s.repo.Class.GetByID(ctx, schedule.ClassID); err != nil {
			if isNotFound(err) {
				return nil, ErrScheduleNotFound
			}
			return nil, err
		}
	}
	if !canManageClass(class, operatorID, role) {
		return nil, ErrNotScheduleOwner
	}

	// 4. 解析或创建今天的会话
	issuedAt := s.now().Truncate(time.Second)
	session, err := s.schedules.ResolveOrCreateSession(ctx, schedule, calendarDate(issuedAt, s.loc))
	if err != nil {
		return nil, err
	}

	// 5. 持久化令牌
	token := &model.QRToken{
		TokenID:   uuid.NewString(),
		SessionID: session.SessionID,
		IssuedBy:  operatorID,
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(time.Duration(req.DurationMinutes) * time.Minute),
	}
	if err := s.repo.QRToken.Create(ctx, token); err != nil {
		s.logger.Error("保存二维码令牌失败", zap.String("session_id", session.SessionID), zap.Error(err))
		return nil, err
	}

	// 6. 签名并渲染
	raw, err := s.signer.Sign(qrtoken.Payload{
		TokenID:   token.TokenID,
		SessionID: token.SessionID,
		IssuedAt:  token.IssuedAt,
		ExpiresAt: token.ExpiresAt,
	})
	if err != nil {
		s.logger.Error("签名二维码令牌失败", zap.Error(err))
		return nil, err
	}
	imageURL, err := qrtoken.RenderDataURL(raw, qrtoken.DefaultImageSize)
	if err != nil {
		s.logger.Error("渲染二维码失败", zap.Error(err))
		return nil, err
	}

	if s.cfg.TokenCacheEnabled && s.cache != nil {
		if err := s.cache.Set(ctx, token, token.ExpiresAt.Sub(s.now())); err != nil {
			s.logger.Warn("写入令牌缓存失败", zap.String("token_id", token.TokenID), zap.Error(err))
		}
	}
	s.metrics.IncQRIssued()

	s.logger.Info("签发签到二维码",
		zap.String("token_id", token.TokenID),
		zap.String("session_id", token.SessionID),
		zap.String("class_id", class.ClassID),
		zap.Int("duration_minutes", req.DurationMinutes),
		zap.String("operator", operatorID),
	)

	return &dto.QRResponse{
		TokenID:   token.TokenID,
		SessionID: token.SessionID,
		QRData:    raw,
		QRCodeURL: imageURL,
		IssuedAt:  token.IssuedAt.Format(time.RFC3339),
		ExpiresAt: token.ExpiresAt.Format(time.RFC3339),
	}, nil
}
