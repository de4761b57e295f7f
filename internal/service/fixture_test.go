package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"qr-attendance/config"
	"qr-attendance/internal/dto"
	"qr-attendance/internal/model"
	"qr-attendance/internal/repository"
	"qr-attendance/pkg/qrtoken"
)

// ── 测试夹具 ──
//
// 班级 CS201 由 teacher-1 任教，周一 08:00-09:30 上课（默认提前 15 分钟开放签到）。
// student-a 已选课且有档案；student-b 有档案但未选课；student-c 已选课但无档案。

const (
	testTeacherID = "teacher-1"
	testOtherID   = "teacher-2"
	testAdminID   = "admin-1"
	testClassID   = "class-1"
	testSchedule  = "sched-mon-0800"
	testStudentA  = "student-a"
	testStudentB  = "student-b"
	testStudentC  = "student-c"
	testQRSecret  = "test-qr-secret-for-unit-testing"
)

var testLoc = time.FixedZone("ICT", 7*3600)

// testClassStart 2024-03-04（周一）08:00 ICT
var testClassStart = time.Date(2024, 3, 4, 8, 0, 0, 0, testLoc)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type testFixture struct {
	db        *mockDB
	repo      *repository.Repository
	cfg       *config.AttendanceConfig
	clock     *fakeClock
	signer    *qrtoken.Signer
	schedules ScheduleService
	qr        *qrService
	checkIn   *checkInService
	ledger    *ledgerService
	calendar  *calendarService
}

func testAttendanceConfig() *config.AttendanceConfig {
	return &config.AttendanceConfig{
		QRSecret:           testQRSecret,
		Timezone:           "Asia/Ho_Chi_Minh",
		WindowOpenBefore:   15 * time.Minute,
		WindowCloseAfter:   0,
		MinDurationMinutes: 1,
		MaxDurationMinutes: 15,
	}
}

func newTestFixture(t *testing.T) *testFixture {
	t.Helper()

	db := newMockDB()
	db.addUser(&model.User{UserID: testTeacherID, Name: "Teacher One", Email: "t1@school.edu", Role: model.RoleTeacher})
	db.addUser(&model.User{UserID: testOtherID, Name: "Teacher Two", Email: "t2@school.edu", Role: model.RoleTeacher})
	db.addUser(&model.User{UserID: testStudentA, Name: "Alice", Email: "a@school.edu", Role: model.RoleStudent})
	db.addUser(&model.User{UserID: testStudentB, Name: "Bob", Email: "b@school.edu", Role: model.RoleStudent})
	db.addUser(&model.User{UserID: testStudentC, Name: "Carol", Email: "c@school.edu", Role: model.RoleStudent})
	db.addStudent(&model.Student{StudentID: "stu-a", UserID: testStudentA, StudentCode: "S001", FullName: "Alice Nguyen"})
	db.addStudent(&model.Student{StudentID: "stu-b", UserID: testStudentB, StudentCode: "S002", FullName: "Bob Tran"})
	db.addClass(&model.Class{ClassID: testClassID, Name: "Data Structures", Code: "CS201", TeacherID: testTeacherID})
	db.enroll(testClassID, testStudentA)
	db.enroll(testClassID, testStudentC)
	db.addSchedule(&model.ClassSchedule{
		ScheduleID: testSchedule,
		ClassID:    testClassID,
		DayOfWeek:  int(time.Monday),
		StartTime:  "08:00",
		EndTime:    "09:30",
	})

	cfg := testAttendanceConfig()
	repo := db.repository()
	logger := zap.NewNop()
	clock := &fakeClock{t: testClassStart}
	signer := qrtoken.NewSigner(testQRSecret)

	schedules := NewScheduleService(cfg, testLoc, repo, logger)

	qr := NewQRService(cfg, testLoc, repo, schedules, signer, nil, nil, logger).(*qrService)
	qr.now = clock.Now
	checkIn := NewCheckInService(cfg, testLoc, repo, schedules, signer, nil, nil, logger).(*checkInService)
	checkIn.now = clock.Now
	ledger := NewLedgerService(testLoc, repo, logger).(*ledgerService)
	ledger.now = clock.Now
	calendar := NewCalendarService(testLoc, repo, logger).(*calendarService)
	calendar.now = clock.Now

	return &testFixture{
		db:        db,
		repo:      repo,
		cfg:       cfg,
		clock:     clock,
		signer:    signer,
		schedules: schedules,
		qr:        qr,
		checkIn:   checkIn,
		ledger:    ledger,
		calendar:  calendar,
	}
}

// issueAt 在指定时刻以任课教师身份签发二维码
func (f *testFixture) issueAt(t *testing.T, at time.Time, minutes int) *dto.QRResponse {
	t.Helper()
	f.clock.Set(at)
	resp, err := f.qr.Generate(context.Background(), &dto.GenerateQRRequest{
		ClassID:         testClassID,
		ScheduleID:      testSchedule,
		DurationMinutes: minutes,
	}, testTeacherID, model.RoleTeacher)
	if err != nil {
		t.Fatalf("签发二维码失败: %v", err)
	}
	return resp
}

// scanAt 在指定时刻以学生身份扫码
func (f *testFixture) scanAt(at time.Time, studentUserID, raw string) (*dto.AttendanceReceipt, error) {
	f.clock.Set(at)
	return f.checkIn.CheckIn(context.Background(), studentUserID, raw)
}
