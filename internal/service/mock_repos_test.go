package service

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"qr-attendance/internal/model"
	"qr-attendance/internal/repository"
	pkgerrors "qr-attendance/pkg/errors"
)

// ── 内存数据库 ──
//
// 所有 mock repository 共享同一把锁，唯一约束的“检查 + 写入”在锁内完成，
// 与数据库唯一约束的原子语义一致。

type mockDB struct {
	mu sync.Mutex

	users       map[string]*model.User
	students    map[string]*model.Student // key: user_id
	classes     map[string]*model.Class
	enrollments map[string]bool // key: class_id|user_id
	schedules   map[string]*model.ClassSchedule
	sessions    map[string]*model.AttendanceSession
	tokens      map[string]*model.QRToken
	attendances map[string]*model.Attendance

	// hideExisting 使 Exists 永远返回 false，用于模拟查重与写入之间的竞争
	hideExisting bool
}

func newMockDB() *mockDB {
	return &mockDB{
		users:       make(map[string]*model.User),
		students:    make(map[string]*model.Student),
		classes:     make(map[string]*model.Class),
		enrollments: make(map[string]bool),
		schedules:   make(map[string]*model.ClassSchedule),
		sessions:    make(map[string]*model.AttendanceSession),
		tokens:      make(map[string]*model.QRToken),
		attendances: make(map[string]*model.Attendance),
	}
}

func (db *mockDB) repository() *repository.Repository {
	return &repository.Repository{
		User:       &mockUserRepo{db},
		Class:      &mockClassRepo{db},
		Schedule:   &mockScheduleRepo{db},
		Session:    &mockSessionRepo{db},
		QRToken:    &mockQRTokenRepo{db},
		Attendance: &mockAttendanceRepo{db},
	}
}

func (db *mockDB) addUser(u *model.User) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.users[u.UserID] = u
}

func (db *mockDB) addStudent(s *model.Student) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.students[s.UserID] = s
}

func (db *mockDB) addClass(c *model.Class) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.classes[c.ClassID] = c
}

func (db *mockDB) enroll(classID, userID string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.enrollments[classID+"|"+userID] = true
}

func (db *mockDB) addSchedule(s *model.ClassSchedule) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if s.Version == 0 {
		s.Version = 1
	}
	db.schedules[s.ScheduleID] = s
}

func (db *mockDB) deleteClass(id string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.classes, id)
}

func (db *mockDB) attendanceCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.attendances)
}

func (db *mockDB) sessionCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.sessions)
}

// ── Mock UserRepository ──

type mockUserRepo struct{ db *mockDB }

func (m *mockUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if u, ok := m.db.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, u := range m.db.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockUserRepo) GetStudentProfile(_ context.Context, userID string) (*model.Student, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if s, ok := m.db.students[userID]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

// ── Mock ClassRepository ──

type mockClassRepo struct{ db *mockDB }

func (m *mockClassRepo) GetByID(_ context.Context, id string) (*model.Class, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if c, ok := m.db.classes[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockClassRepo) GetByIDForUpdate(ctx context.Context, id string) (*model.Class, error) {
	return m.GetByID(ctx, id)
}

func (m *mockClassRepo) IsEnrolled(_ context.Context, classID, studentUserID string) (bool, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	return m.db.enrollments[classID+"|"+studentUserID], nil
}

func (m *mockClassRepo) ListRoster(_ context.Context, classID string) ([]model.RosterEntry, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var roster []model.RosterEntry
	for key := range m.db.enrollments {
		parts := strings.SplitN(key, "|", 2)
		if parts[0] != classID {
			continue
		}
		entry := model.RosterEntry{UserID: parts[1]}
		if s, ok := m.db.students[parts[1]]; ok {
			entry.StudentCode = s.StudentCode
			entry.FullName = s.FullName
		} else if u, ok := m.db.users[parts[1]]; ok {
			entry.FullName = u.Name
		}
		roster = append(roster, entry)
	}
	sort.Slice(roster, func(i, j int) bool { return roster[i].StudentCode < roster[j].StudentCode })
	return roster, nil
}

// ── Mock ScheduleRepository ──

type mockScheduleRepo struct{ db *mockDB }

func (m *mockScheduleRepo) Create(_ context.Context, schedule *model.ClassSchedule) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if schedule.ScheduleID == "" {
		schedule.ScheduleID = uuid.NewString()
	}
	schedule.Version = 1
	cp := *schedule
	m.db.schedules[schedule.ScheduleID] = &cp
	return nil
}

func (m *mockScheduleRepo) GetByID(_ context.Context, id string) (*model.ClassSchedule, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	s, ok := m.db.schedules[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *s
	if c, ok := m.db.classes[s.ClassID]; ok {
		class := *c
		cp.Class = &class
	}
	return &cp, nil
}

func (m *mockScheduleRepo) ListByClass(_ context.Context, classID string) ([]model.ClassSchedule, error) {
	return m.list(func(s *model.ClassSchedule) bool { return s.ClassID == classID }), nil
}

func (m *mockScheduleRepo) ListByClassAndDay(_ context.Context, classID string, dayOfWeek int) ([]model.ClassSchedule, error) {
	return m.list(func(s *model.ClassSchedule) bool {
		return s.ClassID == classID && s.DayOfWeek == dayOfWeek
	}), nil
}

func (m *mockScheduleRepo) list(match func(*model.ClassSchedule) bool) []model.ClassSchedule {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var result []model.ClassSchedule
	for _, s := range m.db.schedules {
		if match(s) {
			result = append(result, *s)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].DayOfWeek != result[j].DayOfWeek {
			return result[i].DayOfWeek < result[j].DayOfWeek
		}
		return result[i].StartTime < result[j].StartTime
	})
	return result
}

func (m *mockScheduleRepo) UpdateAttendanceWindow(_ context.Context, schedule *model.ClassSchedule) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	s, ok := m.db.schedules[schedule.ScheduleID]
	if !ok || s.Version != schedule.Version {
		return pkgerrors.ErrOptimisticLock
	}
	s.OpenBeforeMinutes = schedule.OpenBeforeMinutes
	s.CloseAfterMinutes = schedule.CloseAfterMinutes
	s.Version++
	schedule.Version = s.Version
	return nil
}

// Delete 与外键 ON DELETE SET NULL 一致：会话保留，schedule_id 置空
func (m *mockScheduleRepo) Delete(_ context.Context, id string) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	delete(m.db.schedules, id)
	for _, s := range m.db.sessions {
		if s.ScheduleID != nil && *s.ScheduleID == id {
			s.ScheduleID = nil
		}
	}
	return nil
}

// ── Mock SessionRepository ──

type mockSessionRepo struct{ db *mockDB }

func (m *mockSessionRepo) ResolveOrCreate(_ context.Context, session *model.AttendanceSession) (*model.AttendanceSession, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	date := session.SessionDate.Format(dateLayout)
	for _, s := range m.db.sessions {
		if s.ScheduleID != nil && *s.ScheduleID == *session.ScheduleID && s.SessionDate.Format(dateLayout) == date {
			cp := *s
			return &cp, nil
		}
	}
	cp := *session
	cp.SessionID = uuid.NewString()
	m.db.sessions[cp.SessionID] = &cp
	out := cp
	return &out, nil
}

func (m *mockSessionRepo) GetByID(_ context.Context, id string) (*model.AttendanceSession, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if s, ok := m.db.sessions[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockSessionRepo) GetByScheduleAndDate(_ context.Context, scheduleID, date string) (*model.AttendanceSession, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, s := range m.db.sessions {
		if s.ScheduleID != nil && *s.ScheduleID == scheduleID && s.SessionDate.Format(dateLayout) == date {
			cp := *s
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockSessionRepo) ListByClassAndDate(_ context.Context, classID, date string) ([]model.AttendanceSession, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var result []model.AttendanceSession
	for _, s := range m.db.sessions {
		if s.ClassID == classID && s.SessionDate.Format(dateLayout) == date {
			result = append(result, *s)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].WindowOpenAt.Before(result[j].WindowOpenAt) })
	return result, nil
}

func (m *mockSessionRepo) ListSummariesByClass(_ context.Context, classID string) ([]model.SessionSummary, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var result []model.SessionSummary
	for _, s := range m.db.sessions {
		if s.ClassID != classID {
			continue
		}
		summary := model.SessionSummary{AttendanceSession: *s}
		for _, a := range m.db.attendances {
			if a.SessionID == s.SessionID {
				summary.PresentCount++
			}
		}
		result = append(result, summary)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].WindowOpenAt.After(result[j].WindowOpenAt) })
	return result, nil
}

// ── Mock QRTokenRepository ──

type mockQRTokenRepo struct{ db *mockDB }

func (m *mockQRTokenRepo) Create(_ context.Context, token *model.QRToken) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	cp := *token
	m.db.tokens[token.TokenID] = &cp
	return nil
}

func (m *mockQRTokenRepo) GetByID(_ context.Context, id string) (*model.QRToken, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if t, ok := m.db.tokens[id]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

// ── Mock AttendanceRepository ──

type mockAttendanceRepo struct{ db *mockDB }

func (m *mockAttendanceRepo) Insert(_ context.Context, attendance *model.Attendance) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, a := range m.db.attendances {
		if a.StudentID == attendance.StudentID && a.SessionID == attendance.SessionID {
			return pkgerrors.ErrDuplicateRecord
		}
	}
	attendance.AttendanceID = uuid.NewString()
	cp := *attendance
	m.db.attendances[cp.AttendanceID] = &cp
	return nil
}

func (m *mockAttendanceRepo) Exists(_ context.Context, studentID, sessionID string) (bool, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if m.db.hideExisting {
		return false, nil
	}
	for _, a := range m.db.attendances {
		if a.StudentID == studentID && a.SessionID == sessionID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockAttendanceRepo) GetByID(_ context.Context, id string) (*model.Attendance, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if a, ok := m.db.attendances[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockAttendanceRepo) ListByStudent(_ context.Context, studentID string, offset, limit int) ([]model.Attendance, int64, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var all []model.Attendance
	for _, a := range m.db.attendances {
		if a.StudentID != studentID {
			continue
		}
		cp := *a
		if s, ok := m.db.sessions[a.SessionID]; ok {
			session := *s
			cp.Session = &session
		}
		if c, ok := m.db.classes[a.ClassID]; ok {
			class := *c
			cp.Class = &class
		}
		all = append(all, cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CheckedInAt.After(all[j].CheckedInAt) })

	total := int64(len(all))
	if offset >= len(all) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (m *mockAttendanceRepo) ListBySessions(_ context.Context, sessionIDs []string) ([]model.Attendance, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	wanted := make(map[string]bool, len(sessionIDs))
	for _, id := range sessionIDs {
		wanted[id] = true
	}
	var result []model.Attendance
	for _, a := range m.db.attendances {
		if wanted[a.SessionID] {
			result = append(result, *a)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CheckedInAt.Before(result[j].CheckedInAt) })
	return result, nil
}

func (m *mockAttendanceRepo) CountByStudentInClass(_ context.Context, classID string) ([]model.StudentAttendanceCount, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	counts := make(map[string]int64)
	for _, a := range m.db.attendances {
		if a.ClassID == classID {
			counts[a.StudentID]++
		}
	}
	var result []model.StudentAttendanceCount
	for id, n := range counts {
		result = append(result, model.StudentAttendanceCount{StudentID: id, Count: n})
	}
	return result, nil
}

func (m *mockAttendanceRepo) Delete(_ context.Context, id string) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	delete(m.db.attendances, id)
	return nil
}
