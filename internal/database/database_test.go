package database

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/yogaflow/attendance/internal/config"
	"github.com/yogaflow/attendance/internal/models"
)

// DatabaseTestSuite runs the store against sqlite by default, or against
// postgres when DB_TYPE=postgres is set.
type DatabaseTestSuite struct {
	suite.Suite
	cfg config.Database
	db  *DB
	ctx context.Context
}

func (s *DatabaseTestSuite) SetupTest() {
	s.ctx = context.Background()

	switch os.Getenv("DB_TYPE") {
	case "postgres", "pgx":
		s.cfg = config.Database{
			Driver:   os.Getenv("DB_TYPE"),
			Host:     "localhost",
			Port:     5433,
			Name:     "yoga_test",
			User:     "yoga_test",
			Password: "testpassword",
			SSLMode:  "disable",
		}
	default:
		s.cfg = config.Database{
			Driver: "sqlite",
			Path:   filepath.Join(s.T().TempDir(), "test_yoga.db"),
		}
	}

	db, err := Open(s.ctx, s.cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(s.T(), err, "Database initialization should succeed")
	s.db = db
}

func (s *DatabaseTestSuite) TearDownTest() {
	if s.db == nil {
		return
	}
	if s.db.dialect == dialectPostgres {
		s.db.conn.Exec(`DROP TABLE IF EXISTS users, attendance, refresh_tokens, user_sessions,
			level_cursors, daily_progress, notifications, schema_migrations CASCADE`)
	}
	s.db.Close()
}

func TestDatabaseTestSuite(t *testing.T) {
	suite.Run(t, new(DatabaseTestSuite))
}

func (s *DatabaseTestSuite) createUser(username string, role models.Role) *models.User {
	u := &models.User{
		Name:         username,
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "digest",
		Role:         role,
	}
	require.NoError(s.T(), s.db.CreateUser(s.ctx, u))
	return u
}

func (s *DatabaseTestSuite) TestMigrationsAreIdempotent() {
	require.NoError(s.T(), s.db.RunMigrations(s.ctx))

	applied, err := s.db.AppliedMigrations(s.ctx)
	require.NoError(s.T(), err)
	assert.Len(s.T(), applied, len(GetMigrations(s.db.dialect)))
}

func (s *DatabaseTestSuite) TestCreateAndGetUser() {
	user := s.createUser("alice", models.RoleUser)
	assert.NotEmpty(s.T(), user.ID)
	assert.Equal(s.T(), models.MinLevel, user.Level)

	byName, err := s.db.GetUserByUsername(s.ctx, "alice")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), user.ID, byName.ID)
	assert.Equal(s.T(), models.RoleUser, byName.Role)
	assert.False(s.T(), byName.Approved)
	assert.Nil(s.T(), byName.ResetCodeExpiry)

	byEmail, err := s.db.GetUserByEmail(s.ctx, "alice@example.com")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), user.ID, byEmail.ID)

	_, err = s.db.GetUserByUsername(s.ctx, "nobody")
	assert.ErrorIs(s.T(), err, ErrNotFound)
}

func (s *DatabaseTestSuite) TestDuplicateUsername() {
	s.createUser("alice", models.RoleUser)

	err := s.db.CreateUser(s.ctx, &models.User{
		Name: "Other", Username: "alice", Email: "other@example.com", PasswordHash: "x",
	})
	assert.ErrorIs(s.T(), err, ErrAlreadyExists)
}

func (s *DatabaseTestSuite) TestApproveAndListUsers() {
	s.createUser("alice", models.RoleUser)
	s.createUser("bob", models.RoleUser)
	s.createUser("root", models.RoleAdmin)
	require.NoError(s.T(), s.db.ApproveUser(s.ctx, "root"))

	pending, err := s.db.ListPendingUsers(s.ctx)
	require.NoError(s.T(), err)
	assert.Len(s.T(), pending, 2)

	require.NoError(s.T(), s.db.ApproveUser(s.ctx, "alice"))
	pending, err = s.db.ListPendingUsers(s.ctx)
	require.NoError(s.T(), err)
	require.Len(s.T(), pending, 1)
	assert.Equal(s.T(), "bob", pending[0].Username)

	admins, err := s.db.ListUsersByRole(s.ctx, models.RoleAdmin)
	require.NoError(s.T(), err)
	require.Len(s.T(), admins, 1)
	assert.Equal(s.T(), "root", admins[0].Username)

	assert.ErrorIs(s.T(), s.db.ApproveUser(s.ctx, "ghost"), ErrNotFound)
}

func (s *DatabaseTestSuite) TestResetAttemptsAreBounded() {
	s.createUser("alice", models.RoleUser)

	ok, err := s.db.ConsumeResetAttempt(s.ctx, "alice", 3)
	require.NoError(s.T(), err)
	assert.False(s.T(), ok, "no code set")

	require.NoError(s.T(), s.db.SetResetCode(s.ctx, "alice", "hash", time.Now().Add(time.Minute)))
	for i := 0; i < 3; i++ {
		ok, err := s.db.ConsumeResetAttempt(s.ctx, "alice", 3)
		require.NoError(s.T(), err)
		assert.True(s.T(), ok)
	}
	ok, err = s.db.ConsumeResetAttempt(s.ctx, "alice", 3)
	require.NoError(s.T(), err)
	assert.False(s.T(), ok)

	u, err := s.db.GetUserByUsername(s.ctx, "alice")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 3, u.ResetAttempts)

	// a new code starts a new count
	require.NoError(s.T(), s.db.SetResetCode(s.ctx, "alice", "hash2", time.Now().Add(time.Minute)))
	ok, err = s.db.ConsumeResetAttempt(s.ctx, "alice", 3)
	require.NoError(s.T(), err)
	assert.True(s.T(), ok)

	require.NoError(s.T(), s.db.ClearResetCode(s.ctx, "alice"))
	u, err = s.db.GetUserByUsername(s.ctx, "alice")
	require.NoError(s.T(), err)
	assert.Empty(s.T(), u.ResetCodeHash)
	assert.Nil(s.T(), u.ResetCodeExpiry)
}

func (s *DatabaseTestSuite) TestAdvanceLevelOnlyFromExpectedLevel() {
	s.createUser("alice", models.RoleUser)

	ok, err := s.db.AdvanceLevel(s.ctx, "alice", 1, 2)
	require.NoError(s.T(), err)
	assert.True(s.T(), ok)

	ok, err = s.db.AdvanceLevel(s.ctx, "alice", 1, 2)
	require.NoError(s.T(), err)
	assert.False(s.T(), ok, "a stale level must not advance twice")

	u, err := s.db.GetUserByUsername(s.ctx, "alice")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 2, u.Level)
}

func (s *DatabaseTestSuite) TestLevelCursorReset() {
	_, err := s.db.GetLevelCursor(s.ctx, "alice")
	assert.ErrorIs(s.T(), err, ErrNotFound)

	require.NoError(s.T(), s.db.ResetLevelCursor(s.ctx, "alice", 2))
	c, err := s.db.GetLevelCursor(s.ctx, "alice")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 2, c.Level)
	assert.Equal(s.T(), 0, c.CurrentIndex)

	require.NoError(s.T(), s.db.ResetLevelCursor(s.ctx, "alice", 3))
	c, err = s.db.GetLevelCursor(s.ctx, "alice")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 3, c.Level)
}

func (s *DatabaseTestSuite) TestAttendanceUniquePerDay() {
	s.createUser("alice", models.RoleUser)

	first := &models.AttendanceRecord{Username: "alice", Date: "2024-03-01", Attended: true, Level: 1, Device: "web"}
	require.NoError(s.T(), s.db.CreateAttendance(s.ctx, first))

	second := &models.AttendanceRecord{Username: "alice", Date: "2024-03-01", Attended: false, Level: 1, Device: "ios"}
	err := s.db.CreateAttendance(s.ctx, second)
	assert.ErrorIs(s.T(), err, ErrAlreadyExists)

	other := &models.AttendanceRecord{Username: "alice", Date: "2024-03-02", Attended: true, Level: 1}
	assert.NoError(s.T(), s.db.CreateAttendance(s.ctx, other))

	got, err := s.db.GetAttendanceByDate(s.ctx, "alice", "2024-03-01")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), first.ID, got.ID)
	assert.True(s.T(), got.Attended)
	assert.Equal(s.T(), "web", got.Device)
}

func (s *DatabaseTestSuite) TestConcurrentAttendanceInsertsKeepOneRecord() {
	s.createUser("alice", models.RoleUser)

	const workers = 8
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		successes  int
		duplicates int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.db.CreateAttendance(s.ctx, &models.AttendanceRecord{
				Username: "alice", Date: "2024-03-01", Attended: true, Level: 1,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrAlreadyExists):
				duplicates++
			default:
				s.T().Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(s.T(), 1, successes)
	assert.Equal(s.T(), workers-1, duplicates)

	records, err := s.db.ListAttendanceByUser(s.ctx, "alice")
	require.NoError(s.T(), err)
	assert.Len(s.T(), records, 1)
}

func (s *DatabaseTestSuite) TestCountAttendedByLevel() {
	s.createUser("alice", models.RoleUser)
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(s.T(), s.db.CreateAttendance(s.ctx, &models.AttendanceRecord{
			Username: "alice", Date: day.AddDate(0, 0, i).Format(models.DateLayout), Attended: true, Level: 1,
		}))
	}
	require.NoError(s.T(), s.db.CreateAttendance(s.ctx, &models.AttendanceRecord{
		Username: "alice", Date: day.AddDate(0, 0, 5).Format(models.DateLayout), Attended: false, Level: 1,
	}))
	require.NoError(s.T(), s.db.CreateAttendance(s.ctx, &models.AttendanceRecord{
		Username: "alice", Date: day.AddDate(0, 0, 6).Format(models.DateLayout), Attended: true, Level: 2,
	}))

	n, err := s.db.CountAttended(s.ctx, "alice", 1)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 5, n)

	n, err = s.db.CountAttended(s.ctx, "alice", 2)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 1, n)
}

func (s *DatabaseTestSuite) TestSetAttendedAndListFilters() {
	s.createUser("alice", models.RoleUser)
	s.createUser("root", models.RoleAdmin)

	rec := &models.AttendanceRecord{Username: "alice", Date: "2024-03-01", Attended: false, Level: 1}
	require.NoError(s.T(), s.db.CreateAttendance(s.ctx, rec))
	require.NoError(s.T(), s.db.CreateAttendance(s.ctx, &models.AttendanceRecord{Username: "alice", Date: "2024-03-05", Attended: true, Level: 1}))
	require.NoError(s.T(), s.db.CreateAttendance(s.ctx, &models.AttendanceRecord{Username: "root", Date: "2024-03-01", Attended: true, Level: 1}))

	require.NoError(s.T(), s.db.SetAttended(s.ctx, rec.ID, true))
	got, err := s.db.GetAttendance(s.ctx, rec.ID)
	require.NoError(s.T(), err)
	assert.True(s.T(), got.Attended)

	assert.ErrorIs(s.T(), s.db.SetAttended(s.ctx, "missing", true), ErrNotFound)

	all, err := s.db.ListAttendance(s.ctx, AttendanceFilter{})
	require.NoError(s.T(), err)
	assert.Len(s.T(), all, 3)

	users, err := s.db.ListAttendance(s.ctx, AttendanceFilter{ExcludeAdmins: true})
	require.NoError(s.T(), err)
	require.Len(s.T(), users, 2)
	assert.Equal(s.T(), "2024-03-05", users[0].Date, "newest first")

	window, err := s.db.ListAttendance(s.ctx, AttendanceFilter{From: "2024-03-02", To: "2024-03-31", ExcludeAdmins: true})
	require.NoError(s.T(), err)
	require.Len(s.T(), window, 1)
	assert.Equal(s.T(), "2024-03-05", window[0].Date)
}

func (s *DatabaseTestSuite) TestDailyProgressUpsert() {
	p := &models.DailyProgress{Username: "alice", Date: "2024-03-01", VideoCompleted: true}
	require.NoError(s.T(), s.db.UpsertDailyProgress(s.ctx, p))

	full := &models.DailyProgress{Username: "alice", Date: "2024-03-01"}
	full.CompleteAll()
	require.NoError(s.T(), s.db.UpsertDailyProgress(s.ctx, full))

	got, err := s.db.GetDailyProgress(s.ctx, "alice", "2024-03-01")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), p.ID, got.ID, "upsert keeps the original row")
	assert.True(s.T(), got.AllTasksCompleted)
	assert.True(s.T(), got.QACompleted)
}

func (s *DatabaseTestSuite) TestListDailyProgressNewestFirst() {
	for _, date := range []string{"2024-03-02", "2024-03-04", "2024-03-03"} {
		require.NoError(s.T(), s.db.UpsertDailyProgress(s.ctx, &models.DailyProgress{Username: "alice", Date: date}))
	}
	require.NoError(s.T(), s.db.UpsertDailyProgress(s.ctx, &models.DailyProgress{Username: "bob", Date: "2024-03-05"}))

	days, err := s.db.ListDailyProgress(s.ctx, "alice", 2)
	require.NoError(s.T(), err)
	require.Len(s.T(), days, 2)
	assert.Equal(s.T(), "2024-03-04", days[0].Date)
	assert.Equal(s.T(), "2024-03-03", days[1].Date)
}

func (s *DatabaseTestSuite) TestRefreshTokenLifecycle() {
	now := time.Now().UTC()
	live := &models.RefreshToken{TokenHash: "hash-live", Username: "alice", ExpiresAt: now.Add(time.Hour), Device: "web", IPAddress: "10.0.0.1"}
	expired := &models.RefreshToken{TokenHash: "hash-old", Username: "alice", ExpiresAt: now.Add(-time.Hour)}
	other := &models.RefreshToken{TokenHash: "hash-bob", Username: "bob", ExpiresAt: now.Add(time.Hour)}
	for _, t := range []*models.RefreshToken{live, expired, other} {
		require.NoError(s.T(), s.db.CreateRefreshToken(s.ctx, t))
	}

	got, err := s.db.GetRefreshTokenByHash(s.ctx, "hash-live")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), live.ID, got.ID)
	assert.Equal(s.T(), "10.0.0.1", got.IPAddress)
	assert.WithinDuration(s.T(), live.ExpiresAt, got.ExpiresAt, time.Second)

	purged, err := s.db.DeleteExpiredRefreshTokens(s.ctx, now)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), int64(1), purged)

	deleted, err := s.db.DeleteRefreshTokensByUsername(s.ctx, "alice")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), int64(1), deleted)

	n, err := s.db.CountRefreshTokens(s.ctx, "bob")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 1, n)

	require.NoError(s.T(), s.db.DeleteRefreshToken(s.ctx, other.ID))
	_, err = s.db.GetRefreshTokenByHash(s.ctx, "hash-bob")
	assert.ErrorIs(s.T(), err, ErrNotFound)
}

func (s *DatabaseTestSuite) TestSessionDeactivation() {
	a := &models.Session{Username: "alice", TokenHash: "a", Device: "web", Active: true}
	b := &models.Session{Username: "alice", TokenHash: "b", Device: "ios", Active: true}
	c := &models.Session{Username: "bob", TokenHash: "c", Device: "web", Active: true}
	for _, sess := range []*models.Session{a, b, c} {
		require.NoError(s.T(), s.db.CreateSession(s.ctx, sess))
	}

	require.NoError(s.T(), s.db.DeactivateSession(s.ctx, a.ID))
	active, err := s.db.ListActiveSessions(s.ctx, "alice")
	require.NoError(s.T(), err)
	require.Len(s.T(), active, 1)
	assert.Equal(s.T(), b.ID, active[0].ID)

	closed, err := s.db.GetSession(s.ctx, a.ID)
	require.NoError(s.T(), err)
	assert.False(s.T(), closed.Active, "closed sessions are kept")

	n, err := s.db.DeactivateSessionsByUsername(s.ctx, "alice")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), int64(1), n)

	active, err = s.db.ListActiveSessions(s.ctx, "bob")
	require.NoError(s.T(), err)
	assert.Len(s.T(), active, 1)

	assert.ErrorIs(s.T(), s.db.DeactivateSession(s.ctx, "missing"), ErrNotFound)
}

func (s *DatabaseTestSuite) TestTouchSession() {
	sess := &models.Session{Username: "alice", TokenHash: "a", Active: true, CreatedAt: time.Now().Add(-time.Hour)}
	require.NoError(s.T(), s.db.CreateSession(s.ctx, sess))

	later := time.Now().UTC()
	require.NoError(s.T(), s.db.TouchSession(s.ctx, "a", later))

	got, err := s.db.GetSession(s.ctx, sess.ID)
	require.NoError(s.T(), err)
	assert.WithinDuration(s.T(), later, got.LastActivity, time.Second)
}

func (s *DatabaseTestSuite) TestNotifications() {
	old := &models.Notification{Username: "alice", Title: "Mark Your Attendance", Kind: models.KindReminder,
		CreatedAt: time.Now().Add(-48 * time.Hour)}
	fresh := &models.Notification{Username: "alice", Title: "Level Up!", Message: "Level 2", Kind: models.KindLevelUp}
	require.NoError(s.T(), s.db.CreateNotification(s.ctx, old))
	require.NoError(s.T(), s.db.CreateNotification(s.ctx, fresh))

	list, err := s.db.ListNotifications(s.ctx, "alice")
	require.NoError(s.T(), err)
	require.Len(s.T(), list, 2)
	assert.Equal(s.T(), fresh.ID, list[0].ID)

	require.NoError(s.T(), s.db.MarkNotificationRead(s.ctx, fresh.ID, "alice"))
	assert.ErrorIs(s.T(), s.db.MarkNotificationRead(s.ctx, fresh.ID, "bob"), ErrNotFound)

	has, err := s.db.HasNotificationSince(s.ctx, "alice", models.KindReminder, time.Now().Add(-24*time.Hour))
	require.NoError(s.T(), err)
	assert.False(s.T(), has)

	n, err := s.db.DeleteNotificationsBefore(s.ctx, models.KindReminder, time.Now().Add(-24*time.Hour))
	require.NoError(s.T(), err)
	assert.Equal(s.T(), int64(1), n)
}

func (s *DatabaseTestSuite) TestDeleteUser() {
	s.createUser("alice", models.RoleUser)
	require.NoError(s.T(), s.db.CreateAttendance(s.ctx, &models.AttendanceRecord{Username: "alice", Date: "2024-03-01", Attended: true, Level: 1}))
	require.NoError(s.T(), s.db.CreateRefreshToken(s.ctx, &models.RefreshToken{TokenHash: "h", Username: "alice", ExpiresAt: time.Now().Add(time.Hour)}))
	sess := &models.Session{Username: "alice", TokenHash: "a", Active: true}
	require.NoError(s.T(), s.db.CreateSession(s.ctx, sess))

	require.NoError(s.T(), s.db.DeleteUser(s.ctx, "alice"))

	_, err := s.db.GetUserByUsername(s.ctx, "alice")
	assert.ErrorIs(s.T(), err, ErrNotFound)
	records, err := s.db.ListAttendanceByUser(s.ctx, "alice")
	require.NoError(s.T(), err)
	assert.Empty(s.T(), records)
	n, err := s.db.CountRefreshTokens(s.ctx, "alice")
	require.NoError(s.T(), err)
	assert.Zero(s.T(), n)

	kept, err := s.db.GetSession(s.ctx, sess.ID)
	require.NoError(s.T(), err)
	assert.False(s.T(), kept.Active)

	assert.ErrorIs(s.T(), s.db.DeleteUser(s.ctx, "alice"), ErrNotFound)
}

func TestRebind(t *testing.T) {
	pg := &DB{dialect: dialectPostgres}
	lite := &DB{dialect: dialectSQLite}

	query := "SELECT * FROM t WHERE a = ? AND b = ?"
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", pg.rebind(query))
	assert.Equal(t, query, lite.rebind(query))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.Database{Driver: "oracle"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}
