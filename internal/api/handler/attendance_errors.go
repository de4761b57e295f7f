package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"qr-attendance/internal/service"
	"qr-attendance/pkg/response"
)

// ── 签到协议错误码 ──
//
// 每个错误类别对应固定的业务码；StorageConflict 与 AlreadyCheckedIn 对调用方不可区分。

type attendanceErrorCode struct {
	status int
	code   int
}

var attendanceErrorCodes = map[service.AttendanceErrorKind]attendanceErrorCode{
	service.KindInvalidDuration:        {http.StatusBadRequest, 14101},
	service.KindScheduleNotFound:       {http.StatusNotFound, 14102},
	service.KindNotScheduleOwner:       {http.StatusForbidden, 14103},
	service.KindMalformedPayload:       {http.StatusBadRequest, 14201},
	service.KindTokenNotFound:          {http.StatusBadRequest, 14202},
	service.KindClassNotFound:          {http.StatusNotFound, 14203},
	service.KindSessionNotFound:        {http.StatusNotFound, 14204},
	service.KindNotEnrolled:            {http.StatusForbidden, 14205},
	service.KindStudentProfileNotFound: {http.StatusNotFound, 14206},
	service.KindTokenExpired:           {http.StatusBadRequest, 14207},
	service.KindWindowNotOpenYet:       {http.StatusBadRequest, 14208},
	service.KindWindowClosed:           {http.StatusBadRequest, 14209},
	service.KindAlreadyCheckedIn:       {http.StatusConflict, 14210},
	service.KindStorageConflict:        {http.StatusConflict, 14210},
}

// respondAttendanceError 签到协议错误写入响应并返回 true；其他错误不处理
func respondAttendanceError(c *gin.Context, err error) bool {
	kind, ok := service.AttendanceErrorKindOf(err)
	if !ok {
		return false
	}
	ec, ok := attendanceErrorCodes[kind]
	if !ok {
		return false
	}
	if kind == service.KindStorageConflict {
		kind = service.KindAlreadyCheckedIn
	}
	response.ErrorWithDetails(c, ec.status, ec.code, err.Error(), string(kind))
	return true
}
