package handler

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"qr-attendance/internal/dto"
	"qr-attendance/internal/service"
	"qr-attendance/pkg/response"
)

// ScheduleHandler 班级上课时间模块 HTTP 处理器
type ScheduleHandler struct {
	scheduleSvc service.ScheduleService
	calendarSvc service.CalendarService
}

// NewScheduleHandler 创建 ScheduleHandler
func NewScheduleHandler(scheduleSvc service.ScheduleService, calendarSvc service.CalendarService) *ScheduleHandler {
	return &ScheduleHandler{scheduleSvc: scheduleSvc, calendarSvc: calendarSvc}
}

// ListSchedules 班级上课时间列表
// GET /api/v1/classes/:id/schedules
func (h *ScheduleHandler) ListSchedules(c *gin.Context) {
	list, err := h.scheduleSvc.ListSchedules(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleScheduleError(c, err)
		return
	}
	response.OK(c, gin.H{"list": list})
}

// AddSchedule 新增上课时间
// POST /api/v1/classes/:id/schedules
func (h *ScheduleHandler) AddSchedule(c *gin.Context) {
	var req dto.CreateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 12001, "参数校验失败")
		return
	}

	operatorID, role, ok := MustGetOperator(c)
	if !ok {
		return
	}

	result, err := h.scheduleSvc.AddSchedule(c.Request.Context(), c.Param("id"), &req, operatorID, role)
	if err != nil {
		h.handleScheduleError(c, err)
		return
	}
	response.Created(c, result)
}

// DeleteSchedule 删除上课时间（已有签到记录保留）
// DELETE /api/v1/schedules/:id
func (h *ScheduleHandler) DeleteSchedule(c *gin.Context) {
	operatorID, role, ok := MustGetOperator(c)
	if !ok {
		return
	}

	if err := h.scheduleSvc.DeleteSchedule(c.Request.Context(), c.Param("id"), operatorID, role); err != nil {
		h.handleScheduleError(c, err)
		return
	}
	response.OK(c, nil)
}

// UpdateAttendanceTime 调整签到窗口
// PUT /api/v1/attendance/schedule/attendance-time
func (h *ScheduleHandler) UpdateAttendanceTime(c *gin.Context) {
	var req dto.UpdateAttendanceTimeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 12001, "参数校验失败")
		return
	}

	operatorID, role, ok := MustGetOperator(c)
	if !ok {
		return
	}

	result, err := h.scheduleSvc.UpdateAttendanceTime(c.Request.Context(), &req, operatorID, role)
	if err != nil {
		h.handleScheduleError(c, err)
		return
	}
	response.OK(c, result)
}

// ExportCalendar 导出班级课表 iCalendar
// GET /api/v1/classes/:id/calendar.ics
func (h *ScheduleHandler) ExportCalendar(c *gin.Context) {
	body, filename, err := h.calendarSvc.ExportClassCalendar(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleScheduleError(c, err)
		return
	}

	c.Header("Content-Disposition", "attachment; filename*=UTF-8''"+url.QueryEscape(filename))
	c.Data(http.StatusOK, "text/calendar; charset=utf-8", []byte(body))
}

func (h *ScheduleHandler) handleScheduleError(c *gin.Context, err error) {
	if respondAttendanceError(c, err) {
		return
	}
	switch {
	case errors.Is(err, service.ErrInvalidScheduleTime):
		response.BadRequest(c, 12101, "开始时间必须早于结束时间")
	case errors.Is(err, service.ErrInvalidDayOfWeek):
		response.BadRequest(c, 12102, "星期取值必须在 0-6 之间")
	case errors.Is(err, service.ErrScheduleOverlap):
		response.Conflict(c, 12103, "与该班级同一天的其他上课时间重叠")
	case errors.Is(err, service.ErrScheduleVersion):
		response.Conflict(c, 12104, "上课时间已被修改，请刷新后重试")
	default:
		response.InternalError(c)
	}
}
