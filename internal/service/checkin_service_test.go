package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"qr-attendance/internal/dto"
	"qr-attendance/internal/model"
	"qr-attendance/pkg/qrtoken"
)

func TestCheckInService_CheckIn_Success(t *testing.T) {
	f := newTestFixture(t)
	qr := f.issueAt(t, testClassStart, 5)

	scanned := testClassStart.Add(2 * time.Minute)
	receipt, err := f.scanAt(scanned, testStudentA, qr.QRData)
	if err != nil {
		t.Fatalf("签到应成功: %v", err)
	}
	if receipt.ClassName != "Data Structures" {
		t.Errorf("期望班级名 Data Structures，实际 %s", receipt.ClassName)
	}
	if receipt.SessionDate != "2024-03-04" {
		t.Errorf("期望会话日期 2024-03-04，实际 %s", receipt.SessionDate)
	}
	if receipt.StudentCode != "S001" || receipt.Method != model.AttendanceMethodQR {
		t.Errorf("回执内容不符: %+v", receipt)
	}
	checkedIn, _ := time.Parse(time.RFC3339, receipt.CheckedInAt)
	if !checkedIn.Equal(scanned) {
		t.Errorf("期望签到时间 %s，实际 %s", scanned, checkedIn)
	}
	if n := f.db.attendanceCount(); n != 1 {
		t.Errorf("期望 1 条签到记录，实际 %d", n)
	}
}

func TestCheckInService_CheckIn_MalformedPayload(t *testing.T) {
	f := newTestFixture(t)
	qr := f.issueAt(t, testClassStart, 5)

	forged := qrtoken.NewSigner("another-secret-of-enough-length")
	forgedRaw, _ := forged.Sign(qrtoken.Payload{
		TokenID:   qr.TokenID,
		SessionID: qr.SessionID,
		IssuedAt:  testClassStart,
		ExpiresAt: testClassStart.Add(time.Hour),
	})

	cases := map[string]string{
		"空串":   "",
		"乱码":   "definitely not a token",
		"篡改签名": qr.QRData[:len(qr.QRData)-2] + "xx",
		"伪造密钥": forgedRaw,
	}
	for name, raw := range cases {
		_, err := f.scanAt(testClassStart.Add(time.Minute), testStudentA, raw)
		if !errors.Is(err, ErrMalformedPayload) {
			t.Errorf("%s: 期望 ErrMalformedPayload，实际: %v", name, err)
		}
	}
}

func TestCheckInService_CheckIn_TokenNotFound(t *testing.T) {
	f := newTestFixture(t)
	qr := f.issueAt(t, testClassStart, 5)

	// 签名正确但从未签发
	raw, _ := f.signer.Sign(qrtoken.Payload{
		TokenID:   "never-issued",
		SessionID: qr.SessionID,
		IssuedAt:  testClassStart,
		ExpiresAt: testClassStart.Add(5 * time.Minute),
	})
	if _, err := f.scanAt(testClassStart.Add(time.Minute), testStudentA, raw); !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("期望 ErrTokenNotFound，实际: %v", err)
	}

	// 复用已签发的 jti 但延长过期时间
	extended, _ := f.signer.Sign(qrtoken.Payload{
		TokenID:   qr.TokenID,
		SessionID: qr.SessionID,
		IssuedAt:  testClassStart,
		ExpiresAt: testClassStart.Add(time.Hour),
	})
	if _, err := f.scanAt(testClassStart.Add(time.Minute), testStudentA, extended); !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("延长过期时间的令牌期望 ErrTokenNotFound，实际: %v", err)
	}
}

func TestCheckInService_CheckIn_SessionNotFoundAfterScheduleDeleted(t *testing.T) {
	f := newTestFixture(t)
	qr := f.issueAt(t, testClassStart, 5)

	if err := f.schedules.DeleteSchedule(context.Background(), testSchedule, testTeacherID, model.RoleTeacher); err != nil {
		t.Fatalf("删除时间表失败: %v", err)
	}

	_, err := f.scanAt(testClassStart.Add(time.Minute), testStudentA, qr.QRData)
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("期望 ErrSessionNotFound，实际: %v", err)
	}
}

func TestCheckInService_CheckIn_ClassNotFound(t *testing.T) {
	f := newTestFixture(t)
	qr := f.issueAt(t, testClassStart, 5)

	f.db.deleteClass(testClassID)

	_, err := f.scanAt(testClassStart.Add(time.Minute), testStudentA, qr.QRData)
	if !errors.Is(err, ErrClassNotFound) {
		t.Errorf("期望 ErrClassNotFound，实际: %v", err)
	}
}

func TestCheckInService_CheckIn_NotEnrolled(t *testing.T) {
	f := newTestFixture(t)
	qr := f.issueAt(t, testClassStart, 5)

	_, err := f.scanAt(testClassStart.Add(time.Minute), testStudentB, qr.QRData)
	if !errors.Is(err, ErrNotEnrolled) {
		t.Errorf("期望 ErrNotEnrolled，实际: %v", err)
	}
	if n := f.db.attendanceCount(); n != 0 {
		t.Errorf("未选课学生不应产生记录，实际 %d", n)
	}
}

func TestCheckInService_CheckIn_NotEnrolledPrecedesExpiry(t *testing.T) {
	f := newTestFixture(t)
	qr := f.issueAt(t, testClassStart, 1)

	// 令牌已过期，但选课校验在前
	_, err := f.scanAt(testClassStart.Add(10*time.Minute), testStudentB, qr.QRData)
	if !errors.Is(err, ErrNotEnrolled) {
		t.Errorf("期望 ErrNotEnrolled，实际: %v", err)
	}
}

func TestCheckInService_CheckIn_StudentProfileNotFound(t *testing.T) {
	f := newTestFixture(t)
	qr := f.issueAt(t, testClassStart, 5)

	_, err := f.scanAt(testClassStart.Add(time.Minute), testStudentC, qr.QRData)
	if !errors.Is(err, ErrStudentProfileNotFound) {
		t.Errorf("期望 ErrStudentProfileNotFound，实际: %v", err)
	}
}

func TestCheckInService_CheckIn_ExpiryBoundary(t *testing.T) {
	f := newTestFixture(t)
	qr := f.issueAt(t, testClassStart, 5)
	expiresAt := testClassStart.Add(5 * time.Minute)

	if _, err := f.scanAt(expiresAt.Add(-time.Second), testStudentA, qr.QRData); err != nil {
		t.Errorf("expiresAt-1s 应成功，实际: %v", err)
	}

	f2 := newTestFixture(t)
	qr2 := f2.issueAt(t, testClassStart, 5)
	if _, err := f2.scanAt(expiresAt, testStudentA, qr2.QRData); err != nil {
		t.Errorf("expiresAt 当刻应成功，实际: %v", err)
	}

	f3 := newTestFixture(t)
	qr3 := f3.issueAt(t, testClassStart, 5)
	_, err := f3.scanAt(expiresAt.Add(time.Second), testStudentA, qr3.QRData)
	if !errors.Is(err, ErrTokenExpired) {
		t.Errorf("expiresAt+1s 期望 ErrTokenExpired，实际: %v", err)
	}
}

func TestCheckInService_CheckIn_WindowNotOpenYet(t *testing.T) {
	f := newTestFixture(t)
	opensAt := testClassStart.Add(-15 * time.Minute)

	// 窗口开放前签发的令牌仍在有效期内
	qr := f.issueAt(t, opensAt.Add(-5*time.Minute), 10)

	_, err := f.scanAt(opensAt.Add(-time.Second), testStudentA, qr.QRData)
	if !errors.Is(err, ErrWindowNotOpenYet) {
		t.Fatalf("期望 ErrWindowNotOpenYet，实际: %v", err)
	}
	var ae *AttendanceError
	if !errors.As(err, &ae) || ae.Wait != time.Second {
		t.Errorf("期望剩余等待 1s，实际: %+v", ae)
	}

	if _, err := f.scanAt(opensAt, testStudentA, qr.QRData); err != nil {
		t.Errorf("窗口开放当刻应成功，实际: %v", err)
	}
}

func TestCheckInService_CheckIn_WindowClosed(t *testing.T) {
	f := newTestFixture(t)
	closesAt := testClassStart.Add(90 * time.Minute)

	qr := f.issueAt(t, closesAt.Add(-5*time.Minute), 15)

	_, err := f.scanAt(closesAt.Add(time.Second), testStudentA, qr.QRData)
	if !errors.Is(err, ErrWindowClosed) {
		t.Fatalf("期望 ErrWindowClosed，实际: %v", err)
	}
	var ae *AttendanceError
	if !errors.As(err, &ae) || ae.Elapsed != time.Second {
		t.Errorf("期望已结束 1s，实际: %+v", ae)
	}

	if _, err := f.scanAt(closesAt, testStudentA, qr.QRData); err != nil {
		t.Errorf("窗口结束当刻应成功，实际: %v", err)
	}
}

func TestCheckInService_CheckIn_AlreadyCheckedIn(t *testing.T) {
	f := newTestFixture(t)
	qr := f.issueAt(t, testClassStart, 5)

	if _, err := f.scanAt(testClassStart.Add(time.Minute), testStudentA, qr.QRData); err != nil {
		t.Fatalf("首次签到应成功: %v", err)
	}
	_, err := f.scanAt(testClassStart.Add(2*time.Minute), testStudentA, qr.QRData)
	if !errors.Is(err, ErrAlreadyCheckedIn) {
		t.Errorf("期望 ErrAlreadyCheckedIn，实际: %v", err)
	}

	// 重新签发的令牌属于同一会话，同样视为重复
	again := f.issueAt(t, testClassStart.Add(3*time.Minute), 5)
	_, err = f.scanAt(testClassStart.Add(4*time.Minute), testStudentA, again.QRData)
	if !errors.Is(err, ErrAlreadyCheckedIn) {
		t.Errorf("新令牌期望 ErrAlreadyCheckedIn，实际: %v", err)
	}
}

func TestCheckInService_CheckIn_StorageConflict(t *testing.T) {
	f := newTestFixture(t)
	qr := f.issueAt(t, testClassStart, 5)

	if _, err := f.scanAt(testClassStart.Add(time.Minute), testStudentA, qr.QRData); err != nil {
		t.Fatalf("首次签到应成功: %v", err)
	}

	// 模拟查重通过后被并发请求抢先写入
	f.db.hideExisting = true
	_, err := f.scanAt(testClassStart.Add(time.Minute), testStudentA, qr.QRData)
	if !errors.Is(err, ErrStorageConflict) {
		t.Errorf("期望 ErrStorageConflict，实际: %v", err)
	}
	if n := f.db.attendanceCount(); n != 1 {
		t.Errorf("期望仍只有 1 条记录，实际 %d", n)
	}
}

func TestCheckInService_CheckIn_ConcurrentDuplicates(t *testing.T) {
	f := newTestFixture(t)
	qr := f.issueAt(t, testClassStart, 5)
	f.clock.Set(testClassStart.Add(time.Minute))

	const n = 50
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		rejected  int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.checkIn.CheckIn(context.Background(), testStudentA, qr.QRData)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrAlreadyCheckedIn), errors.Is(err, ErrStorageConflict):
				rejected++
			default:
				t.Errorf("意外错误: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Errorf("期望恰好 1 次成功，实际 %d", successes)
	}
	if rejected != n-1 {
		t.Errorf("期望 %d 次重复拒绝，实际 %d", n-1, rejected)
	}
	if c := f.db.attendanceCount(); c != 1 {
		t.Errorf("期望 1 条签到记录，实际 %d", c)
	}
}

func TestCheckInService_CheckIn_ReissueKeepsOldTokenValid(t *testing.T) {
	f := newTestFixture(t)
	f.db.addUser(&model.User{UserID: "student-d", Name: "Dan", Role: model.RoleStudent})
	f.db.addStudent(&model.Student{StudentID: "stu-d", UserID: "student-d", StudentCode: "S004", FullName: "Dan Le"})
	f.db.enroll(testClassID, "student-d")

	old := f.issueAt(t, testClassStart, 10)
	_ = f.issueAt(t, testClassStart.Add(time.Minute), 10)

	if _, err := f.scanAt(testClassStart.Add(2*time.Minute), "student-d", old.QRData); err != nil {
		t.Errorf("重新签发后旧令牌在有效期内仍应可用，实际: %v", err)
	}
}

// 签发 T，时长 5 分钟：A 在 T+4m59s 成功，随后重复被拒；B 未选课；T+5m01s 过期
func TestCheckInService_CheckIn_ClassroomScenario(t *testing.T) {
	f := newTestFixture(t)
	T := testClassStart
	qr := f.issueAt(t, T, 5)

	receipt, err := f.scanAt(T.Add(4*time.Minute+59*time.Second), testStudentA, qr.QRData)
	if err != nil {
		t.Fatalf("A 在 T+4m59s 应成功: %v", err)
	}
	checkedIn, _ := time.Parse(time.RFC3339, receipt.CheckedInAt)
	if checkedIn.Before(T) || checkedIn.After(T.Add(5*time.Minute)) {
		t.Errorf("签到时间应在 [T, T+5m] 内，实际 %s", checkedIn)
	}

	_, err = f.scanAt(T.Add(5*time.Minute), testStudentA, qr.QRData)
	if !errors.Is(err, ErrAlreadyCheckedIn) {
		t.Errorf("A 重复扫码期望 ErrAlreadyCheckedIn，实际: %v", err)
	}

	_, err = f.scanAt(T.Add(time.Minute), testStudentB, qr.QRData)
	if !errors.Is(err, ErrNotEnrolled) {
		t.Errorf("B 期望 ErrNotEnrolled，实际: %v", err)
	}

	f.db.addStudent(&model.Student{StudentID: "stu-c", UserID: testStudentC, StudentCode: "S003", FullName: "Carol Pham"})
	_, err = f.scanAt(T.Add(5*time.Minute+time.Second), testStudentC, qr.QRData)
	if !errors.Is(err, ErrTokenExpired) {
		t.Errorf("T+5m01s 期望 ErrTokenExpired，实际: %v", err)
	}
}

// ── 令牌缓存 ──

type memoryTokenCache struct {
	mu     sync.Mutex
	tokens map[string]*model.QRToken
	hits   int
}

func (c *memoryTokenCache) Get(_ context.Context, tokenID string) (*model.QRToken, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if tok, ok := c.tokens[tokenID]; ok {
		c.hits++
		cp := *tok
		return &cp, nil
	}
	return nil, errCacheMissForTest
}

func (c *memoryTokenCache) Set(_ context.Context, token *model.QRToken, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *token
	c.tokens[token.TokenID] = &cp
	return nil
}

var errCacheMissForTest = errors.New("miss")

func TestCheckInService_CheckIn_UsesTokenCache(t *testing.T) {
	f := newTestFixture(t)
	cache := &memoryTokenCache{tokens: make(map[string]*model.QRToken)}
	f.cfg.TokenCacheEnabled = true
	f.qr.cache = cache
	f.checkIn.cache = cache

	qr := f.issueAt(t, testClassStart, 5)
	if _, err := f.scanAt(testClassStart.Add(time.Minute), testStudentA, qr.QRData); err != nil {
		t.Fatalf("签到应成功: %v", err)
	}
	if cache.hits != 1 {
		t.Errorf("期望命中缓存 1 次，实际 %d", cache.hits)
	}
}

// ── AddManual ──

func TestCheckInService_AddManual_Success(t *testing.T) {
	f := newTestFixture(t)

	receipt, err := f.checkIn.AddManual(context.Background(), &dto.ManualAttendanceRequest{
		ClassID:   testClassID,
		StudentID: testStudentA,
		Date:      "2024-03-11",
	}, testTeacherID, model.RoleTeacher)
	if err != nil {
		t.Fatalf("补录应成功: %v", err)
	}
	if receipt.Method != model.AttendanceMethodManual || receipt.SessionDate != "2024-03-11" {
		t.Errorf("回执内容不符: %+v", receipt)
	}

	_, err = f.checkIn.AddManual(context.Background(), &dto.ManualAttendanceRequest{
		ClassID:   testClassID,
		StudentID: testStudentA,
		Date:      "2024-03-11",
	}, testTeacherID, model.RoleTeacher)
	if !errors.Is(err, ErrAlreadyCheckedIn) {
		t.Errorf("重复补录期望 ErrAlreadyCheckedIn，实际: %v", err)
	}
}

func TestCheckInService_AddManual_NoScheduleThatDay(t *testing.T) {
	f := newTestFixture(t)

	// 2024-03-05 为周二，无课
	_, err := f.checkIn.AddManual(context.Background(), &dto.ManualAttendanceRequest{
		ClassID:   testClassID,
		StudentID: testStudentA,
		Date:      "2024-03-05",
	}, testTeacherID, model.RoleTeacher)
	if !errors.Is(err, ErrScheduleNotFound) {
		t.Errorf("期望 ErrScheduleNotFound，实际: %v", err)
	}
}

func TestCheckInService_AddManual_Validation(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()

	_, err := f.checkIn.AddManual(ctx, &dto.ManualAttendanceRequest{
		ClassID: testClassID, StudentID: testStudentA, Date: "2024-03-04",
	}, testOtherID, model.RoleTeacher)
	if !errors.Is(err, ErrNotScheduleOwner) {
		t.Errorf("非任课教师期望 ErrNotScheduleOwner，实际: %v", err)
	}

	_, err = f.checkIn.AddManual(ctx, &dto.ManualAttendanceRequest{
		ClassID: testClassID, StudentID: testStudentB, Date: "2024-03-04",
	}, testTeacherID, model.RoleTeacher)
	if !errors.Is(err, ErrNotEnrolled) {
		t.Errorf("未选课学生期望 ErrNotEnrolled，实际: %v", err)
	}

	_, err = f.checkIn.AddManual(ctx, &dto.ManualAttendanceRequest{
		ClassID: testClassID, StudentID: testStudentA, Date: "04/03/2024",
	}, testTeacherID, model.RoleTeacher)
	if !errors.Is(err, ErrInvalidDate) {
		t.Errorf("日期格式错误期望 ErrInvalidDate，实际: %v", err)
	}

	_, err = f.checkIn.AddManual(ctx, &dto.ManualAttendanceRequest{
		ClassID: testClassID, StudentID: testStudentA, Date: "2024-03-04", ScheduleID: "missing",
	}, testTeacherID, model.RoleTeacher)
	if !errors.Is(err, ErrScheduleNotFound) {
		t.Errorf("指定不存在的时间表期望 ErrScheduleNotFound，实际: %v", err)
	}
}
