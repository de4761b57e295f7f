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

// AttendanceHandler 签到模块 HTTP 处理器
type AttendanceHandler struct {
	qrSvc      service.QRService
	checkInSvc service.CheckInService
	ledgerSvc  service.LedgerService
}

// NewAttendanceHandler 创建 AttendanceHandler
func NewAttendanceHandler(qrSvc service.QRService, checkInSvc service.CheckInService, ledgerSvc service.LedgerService) *AttendanceHandler {
	return &AttendanceHandler{qrSvc: qrSvc, checkInSvc: checkInSvc, ledgerSvc: ledgerSvc}
}

// ── 签发与签到 ──

// GenerateQR 教师生成签到二维码
// POST /api/v1/attendance/generate-qr
func (h *AttendanceHandler) GenerateQR(c *gin.Context) {
	var req dto.GenerateQRRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 14001, "参数校验失败")
		return
	}

	operatorID, role, ok := MustGetOperator(c)
	if !ok {
		return
	}

	result, err := h.qrSvc.Generate(c.Request.Context(), &req, operatorID, role)
	if err != nil {
		h.handleAttendanceError(c, err)
		return
	}
	response.Created(c, result)
}

// CheckIn 学生扫码签到
// POST /api/v1/attendance/check-in
func (h *AttendanceHandler) CheckIn(c *gin.Context) {
	var req dto.CheckInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		// 缺少扫码内容与内容无法解析对调用方一致
		respondAttendanceError(c, service.ErrMalformedPayload)
		return
	}

	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	receipt, err := h.checkInSvc.CheckIn(c.Request.Context(), userID, req.QRData)
	if err != nil {
		h.handleAttendanceError(c, err)
		return
	}
	response.OK(c, receipt)
}

// AddManual 教师补录签到
// POST /api/v1/attendance/manual
func (h *AttendanceHandler) AddManual(c *gin.Context) {
	var req dto.ManualAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 14001, "参数校验失败")
		return
	}

	operatorID, role, ok := MustGetOperator(c)
	if !ok {
		return
	}

	receipt, err := h.checkInSvc.AddManual(c.Request.Context(), &req, operatorID, role)
	if err != nil {
		h.handleAttendanceError(c, err)
		return
	}
	response.Created(c, receipt)
}

// ── 台账查询 ──

// GetMyHistory 学生本人签到历史
// GET /api/v1/attendance/my-history
func (h *AttendanceHandler) GetMyHistory(c *gin.Context) {
	var page dto.PaginationRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		response.BadRequest(c, 14001, "参数校验失败")
		return
	}

	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	items, total, err := h.ledgerSvc.GetHistory(c.Request.Context(), userID, &page)
	if err != nil {
		h.handleAttendanceError(c, err)
		return
	}
	response.OKPage(c, items, total, page.GetPage(), page.GetPageSize())
}

// GetClassHistory 班级签到会话历史
// GET /api/v1/attendance/history/:classId
func (h *AttendanceHandler) GetClassHistory(c *gin.Context) {
	operatorID, role, ok := MustGetOperator(c)
	if !ok {
		return
	}

	items, err := h.ledgerSvc.GetClassHistory(c.Request.Context(), c.Param("classId"), operatorID, role)
	if err != nil {
		h.handleAttendanceError(c, err)
		return
	}
	response.OK(c, gin.H{"list": items})
}

// GetClassReport 班级某日出勤报告
// GET /api/v1/attendance/report/:classId?date=YYYY-MM-DD
func (h *AttendanceHandler) GetClassReport(c *gin.Context) {
	operatorID, role, ok := MustGetOperator(c)
	if !ok {
		return
	}

	report, err := h.ledgerSvc.GetClassReport(c.Request.Context(), c.Param("classId"), classDate(c), operatorID, role)
	if err != nil {
		h.handleAttendanceError(c, err)
		return
	}
	response.OK(c, report)
}

// GetPresent 某日出勤名单
// GET /api/v1/attendance/present/:classId?date=YYYY-MM-DD
func (h *AttendanceHandler) GetPresent(c *gin.Context) {
	operatorID, role, ok := MustGetOperator(c)
	if !ok {
		return
	}

	list, err := h.ledgerSvc.GetPresent(c.Request.Context(), c.Param("classId"), classDate(c), operatorID, role)
	if err != nil {
		h.handleAttendanceError(c, err)
		return
	}
	response.OK(c, gin.H{"list": list})
}

// GetAbsent 某日缺勤名单
// GET /api/v1/attendance/absent/:classId?date=YYYY-MM-DD
func (h *AttendanceHandler) GetAbsent(c *gin.Context) {
	operatorID, role, ok := MustGetOperator(c)
	if !ok {
		return
	}

	list, err := h.ledgerSvc.GetAbsent(c.Request.Context(), c.Param("classId"), classDate(c), operatorID, role)
	if err != nil {
		h.handleAttendanceError(c, err)
		return
	}
	response.OK(c, gin.H{"list": list})
}

// GetStudentStats 学生出勤统计
// GET /api/v1/attendance/stats/:classId
func (h *AttendanceHandler) GetStudentStats(c *gin.Context) {
	operatorID, role, ok := MustGetOperator(c)
	if !ok {
		return
	}

	list, err := h.ledgerSvc.GetStudentStats(c.Request.Context(), c.Param("classId"), operatorID, role)
	if err != nil {
		h.handleAttendanceError(c, err)
		return
	}
	response.OK(c, gin.H{"list": list})
}

// ExportClassReport 导出某日出勤报告
// GET /api/v1/attendance/report/:classId/export?date=YYYY-MM-DD
func (h *AttendanceHandler) ExportClassReport(c *gin.Context) {
	operatorID, role, ok := MustGetOperator(c)
	if !ok {
		return
	}

	buf, filename, err := h.ledgerSvc.ExportClassReport(c.Request.Context(), c.Param("classId"), classDate(c), operatorID, role)
	if err != nil {
		h.handleAttendanceError(c, err)
		return
	}

	c.Header("Content-Description", "File Transfer")
	c.Header("Content-Disposition", "attachment; filename*=UTF-8''"+url.QueryEscape(filename))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

// RemoveAttendance 删除签到记录
// DELETE /api/v1/attendance/:id
func (h *AttendanceHandler) RemoveAttendance(c *gin.Context) {
	operatorID, role, ok := MustGetOperator(c)
	if !ok {
		return
	}

	if err := h.ledgerSvc.RemoveAttendance(c.Request.Context(), c.Param("id"), operatorID, role); err != nil {
		h.handleAttendanceError(c, err)
		return
	}
	response.OK(c, nil)
}

// classDate 读取 ?date=；为空时由 Service 取学校时区的今天
func classDate(c *gin.Context) string {
	var q dto.ClassDateQuery
	_ = c.ShouldBindQuery(&q)
	return q.Date
}

func (h *AttendanceHandler) handleAttendanceError(c *gin.Context, err error) {
	if respondAttendanceError(c, err) {
		return
	}
	switch {
	case errors.Is(err, service.ErrAttendanceNotFound):
		response.NotFound(c, 14301, "签到记录不存在")
	case errors.Is(err, service.ErrInvalidDate):
		response.BadRequest(c, 14302, "日期格式无效，应为 YYYY-MM-DD")
	default:
		response.InternalError(c)
	}
}
