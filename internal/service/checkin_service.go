package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"qr-attendance/config"
	"qr-attendance/internal/dto"
	"qr-attendance/internal/model"
	"qr-attendance/internal/repository"
	pkgerrors "qr-attendance/pkg/errors"
	"qr-attendance/pkg/metrics"
	"qr-attendance/pkg/qrtoken"
)

// CheckInService 签到校验与写入业务接口
// 签到记录只能经由本服务写入
type CheckInService interface {
	// CheckIn 学生扫码签到
	CheckIn(ctx context.Context, studentUserID, rawPayload string) (*dto.AttendanceReceipt, error)
	// AddManual 教师为学生补录签到
	AddManual(ctx context.Context, req *dto.ManualAttendanceRequest, operatorID, role string) (*dto.AttendanceReceipt, error)
}

type checkInService struct {
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

// NewCheckInService 创建 CheckInService 实例；cache 与 m 可为 nil
func NewCheckInService(
	cfg *config.AttendanceConfig,
	loc *time.Location,
	repo *repository.Repository,
	schedules ScheduleService,
	signer *qrtoken.Signer,
	cache TokenCache,
	m *metrics.Metrics,
	logger *zap.Logger,
) CheckInService {
	return &checkInService{
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

// ════════════════════════════════════════════════════════════
// CheckIn — 扫码签到
// ════════════════════════════════════════════════════════════
//
// 按固定顺序校验，第一个失败的步骤决定返回的错误：
//  1. 令牌可解析且签名正确
//  2. 令牌已签发
//  3. 会话、班级、时间表仍存在
//  4. 学生已加入班级
//  5. 学生档案存在
//  6. 令牌未过期
//  7. 处于签到窗口内
//  8. 本节课尚未签到
//  9. 条件插入签到记录
//
// 过期与窗口判断使用同一次时钟读数。

func (s *checkInService) CheckIn(ctx context.Context, studentUserID, rawPayload string) (*dto.AttendanceReceipt, error) {
	started := time.Now()
	receipt, err := s.checkIn(ctx, studentUserID, rawPayload)
	s.metrics.ObserveCheckIn(checkInResult(err), time.Since(started))
	return receipt, err
}

func (s *checkInService) checkIn(ctx context.Context, studentUserID, rawPayload string) (*dto.AttendanceReceipt, error) {
	now := s.now()

	// 1. 解析与验签
	payload, err := s.signer.Parse(rawPayload)
	if err != nil {
		return nil, ErrMalformedPayload
	}

	// 2. 令牌必须已签发，且与签名内容一致
	token, err := s.lookupToken(ctx, payload.TokenID)
	if err != nil {
		return nil, err
	}
	if token.SessionID != payload.SessionID || token.ExpiresAt.Unix() != payload.ExpiresAt.Unix() {
		return nil, ErrTokenNotFound
	}

	// 3. 会话 → 班级 → 时间表
	session, err := s.repo.Session.GetByID(ctx, token.SessionID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrSessionNotFound
		}
		return nil, s.storageError("查询签到会话失败", err)
	}
	class, err := s.repo.Class.GetByID(ctx, session.ClassID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrClassNotFound
		}
		return nil, s.storageError("查询班级失败", err)
	}
	if session.ScheduleID == nil {
		return nil, ErrSessionNotFound
	}
	if _, err := s.repo.Schedule.GetByID(ctx, *session.ScheduleID); err != nil {
		if isNotFound(err) {
			return nil, ErrSessionNotFound
		}
		return nil, s.storageError("查询上课时间失败", err)
	}

	// 4. 选课关系
	enrolled, err := s.repo.Class.IsEnrolled(ctx, class.ClassID, studentUserID)
	if err != nil {
		return nil, s.storageError("查询选课关系失败", err)
	}
	if !enrolled {
		return nil, ErrNotEnrolled
	}

	// 5. 学生档案
	student, err := s.repo.User.GetStudentProfile(ctx, studentUserID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrStudentProfileNotFound
		}
		return nil, s.storageError("查询学生档案失败", err)
	}

	// 6. 令牌有效期（含 expiresAt 当刻）
	if now.After(token.ExpiresAt) {
		return nil, ErrTokenExpired
	}

	// 7. 签到窗口（闭区间）
	if now.Before(session.WindowOpenAt) {
		return nil, &AttendanceError{Kind: KindWindowNotOpenYet, Wait: session.WindowOpenAt.Sub(now)}
	}
	if now.After(session.WindowCloseAt) {
		return nil, &AttendanceError{Kind: KindWindowClosed, Elapsed: now.Sub(session.WindowCloseAt)}
	}

	// 8 + 9. 查重并写入
	tokenID := token.TokenID
	attendance := &model.Attendance{
		StudentID:   studentUserID,
		SessionID:   session.SessionID,
		ClassID:     class.ClassID,
		CheckedInAt: now,
		Method:      model.AttendanceMethodQR,
		TokenID:     &tokenID,
	}
	if err := s.commit(ctx, attendance); err != nil {
		return nil, err
	}

	s.logger.Info("学生签到成功",
		zap.String("attendance_id", attendance.AttendanceID),
		zap.String("student_id", studentUserID),
		zap.String("session_id", session.SessionID),
		zap.String("token_id", tokenID),
	)

	return toReceipt(attendance, class, session, student), nil
}

// ════════════════════════════════════════════════════════════
// AddManual — 教师补录
// ════════════════════════════════════════════════════════════

func (s *checkInService) AddManual(ctx context.Context, req *dto.ManualAttendanceRequest, operatorID, role string) (*dto.AttendanceReceipt, error) {
	now := s.now()

	class, err := s.repo.Class.GetByID(ctx, req.ClassID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrClassNotFound
		}
		return nil, s.storageError("查询班级失败", err)
	}
	if !canManageClass(class, operatorID, role) {
		return nil, ErrNotScheduleOwner
	}

	date, err := parseDate(req.Date, now, s.loc)
	if err != nil {
		return nil, err
	}

	schedule, err := s.pickSchedule(ctx, class.ClassID, req.ScheduleID, date)
	if err != nil {
		return nil, err
	}

	enrolled, err := s.repo.Class.IsEnrolled(ctx, class.ClassID, req.StudentID)
	if err != nil {
		return nil, s.storageError("查询选课关系失败", err)
	}
	if !enrolled {
		return nil, ErrNotEnrolled
	}

	student, err := s.repo.User.GetStudentProfile(ctx, req.StudentID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrStudentProfileNotFound
		}
		return nil, s.storageError("查询学生档案失败", err)
	}

	session, err := s.schedules.ResolveOrCreateSession(ctx, schedule, date)
	if err != nil {
		return nil, err
	}

	attendance := &model.Attendance{
		StudentID:   req.StudentID,
		SessionID:   session.SessionID,
		ClassID:     class.ClassID,
		CheckedInAt: now,
		Method:      model.AttendanceMethodManual,
		MarkedBy:    &operatorID,
	}
	if err := s.commit(ctx, attendance); err != nil {
		return nil, err
	}

	s.logger.Info("教师补录签到",
		zap.String("attendance_id", attendance.AttendanceID),
		zap.String("student_id", req.StudentID),
		zap.String("session_id", session.SessionID),
		zap.String("operator", operatorID),
	)

	return toReceipt(attendance, class, session, student), nil
}

// pickSchedule 指定了 scheduleID 时使用该时间表，否则取当天星期最早的一节
func (s *checkInService) pickSchedule(ctx context.Context, classID, scheduleID string, date time.Time) (*model.ClassSchedule, error) {
	if scheduleID != "" {
		schedule, err := s.repo.Schedule.GetByID(ctx, scheduleID)
		if err != nil {
			if isNotFound(err) {
				return nil, ErrScheduleNotFound
			}
			return nil, s.storageError("查询上课时间失败", err)
		}
		if schedule.ClassID != classID {
			return nil, ErrScheduleNotFound
		}
		return schedule, nil
	}

	schedules, err := s.repo.Schedule.ListByClassAndDay(ctx, classID, int(date.Weekday()))
	if err != nil {
		return nil, s.storageError("查询上课时间失败", err)
	}
	if len(schedules) == 0 {
		return nil, ErrScheduleNotFound
	}
	return &schedules[0], nil
}

// commit 查重后条件插入；查重与插入之间的竞争由唯一约束兜底
func (s *checkInService) commit(ctx context.Context, attendance *model.Attendance) error {
	exists, err := s.repo.Attendance.Exists(ctx, attendance.StudentID, attendance.SessionID)
	if err != nil {
		return s.storageError("查询签到记录失败", err)
	}
	if exists {
		return ErrAlreadyCheckedIn
	}

	if err := s.repo.Attendance.Insert(ctx, attendance); err != nil {
		if errors.Is(err, pkgerrors.ErrDuplicateRecord) {
			return ErrStorageConflict
		}
		return s.storageError("写入签到记录失败", err)
	}
	return nil
}

// lookupToken 先查缓存再回源；缓存故障只记录日志
func (s *checkInService) lookupToken(ctx context.Context, tokenID string) (*model.QRToken, error) {
	if s.cfg.TokenCacheEnabled && s.cache != nil {
		token, err := s.cache.Get(ctx, tokenID)
		if err == nil {
			return token, nil
		}
		if !isCacheMiss(err) {
			s.logger.Warn("读取令牌缓存失败", zap.String("token_id", tokenID), zap.Error(err))
		}
	}

	token, err := s.repo.QRToken.GetByID(ctx, tokenID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrTokenNotFound
		}
		return nil, s.storageError("查询二维码令牌失败", err)
	}
	return token, nil
}

func (s *checkInService) storageError(msg string, err error) error {
	s.logger.Error(msg, zap.Error(err))
	return err
}

// checkInResult 指标标签：成功为 ok，业务拒绝为错误类别，其余为 error
func checkInResult(err error) string {
	if err == nil {
		return "ok"
	}
	if kind, ok := AttendanceErrorKindOf(err); ok {
		return string(kind)
	}
	return "error"
}

func toReceipt(a *model.Attendance, class *model.Class, session *model.AttendanceSession, student *model.Student) *dto.AttendanceReceipt {
	return &dto.AttendanceReceipt{
		AttendanceID: a.AttendanceID,
		ClassID:      class.ClassID,
		ClassName:    class.Name,
		SessionDate:  session.SessionDate.Format(dateLayout),
		CheckedInAt:  a.CheckedInAt.Format(time.RFC3339),
		Method:       a.Method,
		StudentCode:  student.StudentCode,
		StudentName:  student.FullName,
	}
}
