package service

import (
	"errors"
	"fmt"
	"time"
)

// ── 签到协议错误分类 ──
//
// 分类是封闭的：签到失败只会返回其中一种，且对应校验流程中第一个失败的步骤。
// 调用方按 Kind 分支，提示文案只用于展示。

// AttendanceErrorKind 签到协议错误类别
type AttendanceErrorKind string

const (
	KindInvalidDuration        AttendanceErrorKind = "INVALID_DURATION"
	KindScheduleNotFound       AttendanceErrorKind = "SCHEDULE_NOT_FOUND"
	KindNotScheduleOwner       AttendanceErrorKind = "NOT_SCHEDULE_OWNER"
	KindMalformedPayload       AttendanceErrorKind = "MALFORMED_PAYLOAD"
	KindTokenNotFound          AttendanceErrorKind = "TOKEN_NOT_FOUND"
	KindClassNotFound          AttendanceErrorKind = "CLASS_NOT_FOUND"
	KindSessionNotFound        AttendanceErrorKind = "SESSION_NOT_FOUND"
	KindNotEnrolled            AttendanceErrorKind = "NOT_ENROLLED"
	KindStudentProfileNotFound AttendanceErrorKind = "STUDENT_PROFILE_NOT_FOUND"
	KindTokenExpired           AttendanceErrorKind = "TOKEN_EXPIRED"
	KindWindowNotOpenYet       AttendanceErrorKind = "WINDOW_NOT_OPEN_YET"
	KindWindowClosed           AttendanceErrorKind = "WINDOW_CLOSED"
	KindAlreadyCheckedIn       AttendanceErrorKind = "ALREADY_CHECKED_IN"
	KindStorageConflict        AttendanceErrorKind = "STORAGE_CONFLICT"
)

var kindMessages = map[AttendanceErrorKind]string{
	KindInvalidDuration:        "二维码有效时长超出允许范围",
	KindScheduleNotFound:       "上课时间不存在",
	KindNotScheduleOwner:       "无权操作该班级",
	KindMalformedPayload:       "二维码数据无效",
	KindTokenNotFound:          "二维码数据无效",
	KindClassNotFound:          "班级不存在",
	KindSessionNotFound:        "签到会话不存在",
	KindNotEnrolled:            "您未加入该班级",
	KindStudentProfileNotFound: "未找到学生档案",
	KindTokenExpired:           "二维码已过期",
	KindWindowNotOpenYet:       "签到尚未开始",
	KindWindowClosed:           "签到已结束",
	KindAlreadyCheckedIn:       "本节课已签到",
	KindStorageConflict:        "本节课已签到",
}

// AttendanceError 签到协议业务错误
// Wait 仅在 WindowNotOpenYet 时有值，Elapsed 仅在 WindowClosed 时有值
type AttendanceError struct {
	Kind    AttendanceErrorKind
	Wait    time.Duration
	Elapsed time.Duration
}

func (e *AttendanceError) Error() string {
	msg := kindMessages[e.Kind]
	switch e.Kind {
	case KindWindowNotOpenYet:
		return fmt.Sprintf("%s，还需等待 %s", msg, formatMinutes(e.Wait))
	case KindWindowClosed:
		return fmt.Sprintf("%s，已结束 %s", msg, formatMinutes(e.Elapsed))
	}
	return msg
}

// Is 按类别比较，使 errors.Is(err, ErrWindowClosed) 对携带时长的实例同样成立
func (e *AttendanceError) Is(target error) bool {
	t, ok := target.(*AttendanceError)
	return ok && t.Kind == e.Kind
}

var (
	ErrInvalidDuration        = &AttendanceError{Kind: KindInvalidDuration}
	ErrScheduleNotFound       = &AttendanceError{Kind: KindScheduleNotFound}
	ErrNotScheduleOwner       = &AttendanceError{Kind: KindNotScheduleOwner}
	ErrMalformedPayload       = &AttendanceError{Kind: KindMalformedPayload}
	ErrTokenNotFound          = &AttendanceError{Kind: KindTokenNotFound}
	ErrClassNotFound          = &AttendanceError{Kind: KindClassNotFound}
	ErrSessionNotFound        = &AttendanceError{Kind: KindSessionNotFound}
	ErrNotEnrolled            = &AttendanceError{Kind: KindNotEnrolled}
	ErrStudentProfileNotFound = &AttendanceError{Kind: KindStudentProfileNotFound}
	ErrTokenExpired           = &AttendanceError{Kind: KindTokenExpired}
	ErrWindowNotOpenYet       = &AttendanceError{Kind: KindWindowNotOpenYet}
	ErrWindowClosed           = &AttendanceError{Kind: KindWindowClosed}
	ErrAlreadyCheckedIn       = &AttendanceError{Kind: KindAlreadyCheckedIn}
	ErrStorageConflict        = &AttendanceError{Kind: KindStorageConflict}
)

// AttendanceErrorKindOf 提取错误类别；非签到协议错误返回 false
func AttendanceErrorKindOf(err error) (AttendanceErrorKind, bool) {
	var ae *AttendanceError
	if errors.As(err, &ae) {
		return ae.Kind, true
	}
	return "", false
}

func formatMinutes(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%d 秒", int(d.Seconds()))
	}
	return fmt.Sprintf("%d 分钟", int(d.Minutes()))
}
