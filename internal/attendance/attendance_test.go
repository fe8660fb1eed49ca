package attendance

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/yogaflow/attendance/internal/apperrors"
	"github.com/yogaflow/attendance/internal/config"
	"github.com/yogaflow/attendance/internal/database"
	"github.com/yogaflow/attendance/internal/models"
)

type sent struct {
	target, title, kind string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sent
}

func (n *recordingNotifier) Notify(_ context.Context, target, title, _, kind string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sent{target: target, title: title, kind: kind})
}

func (n *recordingNotifier) ofKind(kind string) []sent {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []sent
	for _, s := range n.sent {
		if s.kind == kind {
			out = append(out, s)
		}
	}
	return out
}

type AttendanceTestSuite struct {
	suite.Suite
	ctx      context.Context
	db       *database.DB
	notifier *recordingNotifier
	clock    Clock
	engine   *Engine
	recorder *Recorder
	now      time.Time
}

func (s *AttendanceTestSuite) SetupTest() {
	s.ctx = context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := database.Open(s.ctx, config.Database{
		Driver: "sqlite",
		Path:   filepath.Join(s.T().TempDir(), "attendance.db"),
	}, log)
	require.NoError(s.T(), err)
	s.db = db

	s.now = time.Date(2025, 6, 15, 9, 30, 0, 0, time.UTC)
	s.clock = Clock{Now: func() time.Time { return s.now }, Location: time.UTC}
	s.notifier = &recordingNotifier{}
	s.engine = NewEngine(db, s.notifier, nil, DefaultThreshold, models.MaxLevel, log)
	s.recorder = NewRecorder(db, s.engine, NewBackfiller(db), s.clock, nil, log)
}

func (s *AttendanceTestSuite) TearDownTest() {
	s.db.Close()
}

func TestAttendanceTestSuite(t *testing.T) {
	suite.Run(t, new(AttendanceTestSuite))
}

func (s *AttendanceTestSuite) createUser(username string, level int, role models.Role) {
	require.NoError(s.T(), s.db.CreateUser(s.ctx, &models.User{
		Name:         username,
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "digest",
		Role:         role,
		Level:        level,
		Approved:     true,
	}))
}

// seed writes n past records for username at level, one per day
func (s *AttendanceTestSuite) seed(username string, n, level int, attended bool) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		require.NoError(s.T(), s.db.CreateAttendance(s.ctx, &models.AttendanceRecord{
			Username: username,
			Date:     start.AddDate(0, 0, i).Format(models.DateLayout),
			Attended: attended,
			Level:    level,
		}))
	}
}

func (s *AttendanceTestSuite) level(username string) int {
	u, err := s.db.GetUserByUsername(s.ctx, username)
	require.NoError(s.T(), err)
	return u.Level
}

func (s *AttendanceTestSuite) TestMarkSnapshotsLevel() {
	s.createUser("alice", 2, models.RoleUser)

	res, err := s.recorder.Mark(s.ctx, "alice", true, "Pixel 8")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), MarkedMessage, res.Message)
	assert.Equal(s.T(), 2, res.Level)

	rec, err := s.db.GetAttendanceByDate(s.ctx, "alice", "2025-06-15")
	require.NoError(s.T(), err)
	assert.True(s.T(), rec.Attended)
	assert.Equal(s.T(), 2, rec.Level)
	assert.Equal(s.T(), "Pixel 8", rec.Device)
}

func (s *AttendanceTestSuite) TestMarkUnknownUser() {
	_, err := s.recorder.Mark(s.ctx, "ghost", true, "")
	assert.ErrorIs(s.T(), err, ErrUserNotFound)
	assert.Equal(s.T(), apperrors.KindNotFound, apperrors.KindOf(err))
}

func (s *AttendanceTestSuite) TestMarkTwiceSameDay() {
	s.createUser("alice", 1, models.RoleUser)

	_, err := s.recorder.Mark(s.ctx, "alice", false, "")
	require.NoError(s.T(), err)

	_, err = s.recorder.Mark(s.ctx, "alice", true, "")
	assert.ErrorIs(s.T(), err, ErrDuplicateAttendance)
	assert.Equal(s.T(), apperrors.KindDuplicateAttendance, apperrors.KindOf(err))

	// next day is fine
	s.now = s.now.Add(24 * time.Hour)
	_, err = s.recorder.Mark(s.ctx, "alice", true, "")
	assert.NoError(s.T(), err)
}

func (s *AttendanceTestSuite) TestConcurrentMarks() {
	s.createUser("alice", 1, models.RoleUser)

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		dupes     int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.recorder.Mark(s.ctx, "alice", true, "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case apperrors.KindOf(err) == apperrors.KindDuplicateAttendance:
				dupes++
			}
		}()
	}
	wg.Wait()

	assert.Equal(s.T(), 1, successes)
	assert.Equal(s.T(), workers-1, dupes)

	records, err := s.db.ListAttendanceByUser(s.ctx, "alice")
	require.NoError(s.T(), err)
	assert.Len(s.T(), records, 1)
}

func (s *AttendanceTestSuite) TestThresholdCrossingAdvances() {
	s.createUser("alice", 1, models.RoleUser)
	s.seed("alice", DefaultThreshold-1, 1, true)

	res, err := s.recorder.Mark(s.ctx, "alice", true, "")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 2, res.Level)
	assert.Equal(s.T(), 2, s.level("alice"))

	cursor, err := s.db.GetLevelCursor(s.ctx, "alice")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 2, cursor.Level)
	assert.Zero(s.T(), cursor.CurrentIndex)

	levelUps := s.notifier.ofKind(models.KindLevelUp)
	require.Len(s.T(), levelUps, 1)
	assert.Equal(s.T(), "alice", levelUps[0].target)

	// level 1 records no longer count
	level, err := s.engine.Evaluate(s.ctx, "alice")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 2, level)
	assert.Len(s.T(), s.notifier.ofKind(models.KindLevelUp), 1)
}

func (s *AttendanceTestSuite) TestBelowThresholdAndAbsencesDoNotAdvance() {
	s.createUser("alice", 1, models.RoleUser)
	s.seed("alice", DefaultThreshold-2, 1, true)

	res, err := s.recorder.Mark(s.ctx, "alice", true, "")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 1, res.Level)

	s.createUser("bob", 1, models.RoleUser)
	s.seed("bob", DefaultThreshold+10, 1, false)
	res, err = s.recorder.Mark(s.ctx, "bob", false, "")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 1, res.Level)
	assert.Empty(s.T(), s.notifier.ofKind(models.KindLevelUp))
}

func (s *AttendanceTestSuite) TestRecordsAtOtherLevelsDoNotCount() {
	s.createUser("alice", 2, models.RoleUser)
	s.seed("alice", DefaultThreshold+5, 1, true)

	level, err := s.engine.Evaluate(s.ctx, "alice")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 2, level)
}

func (s *AttendanceTestSuite) TestMaxLevelIsTerminal() {
	s.createUser("alice", models.MaxLevel, models.RoleUser)
	s.seed("alice", DefaultThreshold+1, models.MaxLevel, true)

	level, err := s.engine.Evaluate(s.ctx, "alice")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), models.MaxLevel, level)
	assert.Equal(s.T(), models.MaxLevel, s.level("alice"))
}

func (s *AttendanceTestSuite) TestLateEvaluationStillAdvances() {
	s.createUser("alice", 1, models.RoleUser)
	s.seed("alice", DefaultThreshold+3, 1, true)

	level, err := s.engine.Evaluate(s.ctx, "alice")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 2, level)
}

func (s *AttendanceTestSuite) TestCorrectBackfillsAndEvaluates() {
	s.createUser("alice", 1, models.RoleUser)
	s.seed("alice", DefaultThreshold-1, 1, true)

	res, err := s.recorder.Mark(s.ctx, "alice", false, "")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 1, res.Level)

	rec, err := s.recorder.Correct(s.ctx, res.Record.ID, true)
	require.NoError(s.T(), err)
	assert.True(s.T(), rec.Attended)

	progress, err := s.db.GetDailyProgress(s.ctx, "alice", "2025-06-15")
	require.NoError(s.T(), err)
	assert.True(s.T(), progress.AllTasksCompleted)
	assert.True(s.T(), progress.VideoCompleted)

	assert.Equal(s.T(), 2, s.level("alice"))

	// un-marking never lowers the level
	_, err = s.recorder.Correct(s.ctx, res.Record.ID, false)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 2, s.level("alice"))
}

func (s *AttendanceTestSuite) TestCorrectTrueToTrueSkipsBackfill() {
	s.createUser("alice", 1, models.RoleUser)
	res, err := s.recorder.Mark(s.ctx, "alice", true, "")
	require.NoError(s.T(), err)

	_, err = s.recorder.Correct(s.ctx, res.Record.ID, true)
	require.NoError(s.T(), err)

	_, err = s.db.GetDailyProgress(s.ctx, "alice", "2025-06-15")
	assert.ErrorIs(s.T(), err, database.ErrNotFound)
}

func (s *AttendanceTestSuite) TestProgress() {
	s.createUser("alice", 1, models.RoleUser)
	s.seed("alice", 10, 1, true)

	p, err := s.recorder.Progress(s.ctx, "alice")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 1, p.Level)
	assert.Equal(s.T(), 10, p.AttendedAtLevel)
	assert.Equal(s.T(), DefaultThreshold, p.Threshold)
	assert.Equal(s.T(), DefaultThreshold-10, p.Remaining)
	assert.Equal(s.T(), 1, p.Cursor.Level)
	assert.Equal(s.T(), 0, p.Cursor.CurrentIndex)
	assert.Empty(s.T(), p.Days)

	res, err := s.recorder.Mark(s.ctx, "alice", false, "")
	require.NoError(s.T(), err)
	_, err = s.recorder.Correct(s.ctx, res.Record.ID, true)
	require.NoError(s.T(), err)

	p, err = s.recorder.Progress(s.ctx, "alice")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 11, p.AttendedAtLevel)
	require.Len(s.T(), p.Days, 1)
	assert.Equal(s.T(), "2025-06-15", p.Days[0].Date)
	assert.True(s.T(), p.Days[0].AllTasksCompleted)
}

func (s *AttendanceTestSuite) TestProgressAfterLevelUp() {
	s.createUser("alice", 1, models.RoleUser)
	s.seed("alice", DefaultThreshold, 1, true)
	_, err := s.engine.Evaluate(s.ctx, "alice")
	require.NoError(s.T(), err)

	p, err := s.recorder.Progress(s.ctx, "alice")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 2, p.Level)
	assert.Equal(s.T(), 0, p.AttendedAtLevel)
	assert.Equal(s.T(), DefaultThreshold, p.Remaining)
	assert.Equal(s.T(), 2, p.Cursor.Level)

	s.createUser("bob", models.MaxLevel, models.RoleUser)
	p, err = s.recorder.Progress(s.ctx, "bob")
	require.NoError(s.T(), err)
	assert.Zero(s.T(), p.Remaining)

	_, err = s.recorder.Progress(s.ctx, "ghost")
	assert.ErrorIs(s.T(), err, ErrUserNotFound)
}

func (s *AttendanceTestSuite) TestCorrectMissingRecord() {
	_, err := s.recorder.Correct(s.ctx, "missing", true)
	assert.ErrorIs(s.T(), err, ErrRecordNotFound)
}

func (s *AttendanceTestSuite) TestSweep() {
	s.createUser("alice", 1, models.RoleUser)
	s.createUser("bob", 1, models.RoleUser)
	s.createUser("root", 1, models.RoleAdmin)
	s.seed("alice", DefaultThreshold, 1, true)
	s.seed("root", DefaultThreshold, 1, true)

	advanced, err := s.engine.Sweep(s.ctx)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 1, advanced)
	assert.Equal(s.T(), 2, s.level("alice"))
	assert.Equal(s.T(), 1, s.level("bob"))
	assert.Equal(s.T(), 1, s.level("root"))

	advanced, err = s.engine.Sweep(s.ctx)
	require.NoError(s.T(), err)
	assert.Zero(s.T(), advanced)
}

func (s *AttendanceTestSuite) TestListing() {
	s.createUser("alice", 1, models.RoleUser)
	s.createUser("root", 1, models.RoleAdmin)
	s.seed("alice", 3, 1, true)
	s.seed("root", 2, 1, true)

	records, err := s.recorder.ForUser(s.ctx, "alice")
	require.NoError(s.T(), err)
	require.Len(s.T(), records, 3)
	assert.Equal(s.T(), "2024-01-03", records[0].Date)

	all, err := s.recorder.All(s.ctx, "", "")
	require.NoError(s.T(), err)
	assert.Len(s.T(), all, 3)

	ranged, err := s.recorder.All(s.ctx, "2024-01-02", "2024-01-02")
	require.NoError(s.T(), err)
	assert.Len(s.T(), ranged, 1)

	_, err = s.recorder.All(s.ctx, "yesterday", "")
	assert.Equal(s.T(), apperrors.KindValidation, apperrors.KindOf(err))
}

func (s *AttendanceTestSuite) TestReminderOncePerDay() {
	inbox := &inboxNotifier{db: s.db}
	reminder := NewReminder(s.db, inbox, s.clock, slog.New(slog.NewTextHandler(io.Discard, nil)))

	s.createUser("alice", 1, models.RoleUser)
	s.createUser("root", 1, models.RoleAdmin)

	sentNow, err := reminder.OnAppOpen(s.ctx, "alice")
	require.NoError(s.T(), err)
	assert.True(s.T(), sentNow)

	sentNow, err = reminder.OnAppOpen(s.ctx, "alice")
	require.NoError(s.T(), err)
	assert.False(s.T(), sentNow)

	sentNow, err = reminder.OnAppOpen(s.ctx, "root")
	require.NoError(s.T(), err)
	assert.False(s.T(), sentNow)

	_, err = reminder.OnAppOpen(s.ctx, "ghost")
	assert.ErrorIs(s.T(), err, ErrUserNotFound)
}

func (s *AttendanceTestSuite) TestNoReminderAfterMarking() {
	reminder := NewReminder(s.db, s.notifier, s.clock, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.createUser("alice", 1, models.RoleUser)

	_, err := s.recorder.Mark(s.ctx, "alice", true, "")
	require.NoError(s.T(), err)

	sentNow, err := reminder.OnAppOpen(s.ctx, "alice")
	require.NoError(s.T(), err)
	assert.False(s.T(), sentNow)
}

// inboxNotifier writes straight to the notifications table
type inboxNotifier struct {
	db *database.DB
}

func (n *inboxNotifier) Notify(ctx context.Context, target, title, body, kind string) {
	_ = n.db.CreateNotification(ctx, &models.Notification{Username: target, Title: title, Message: body, Kind: kind})
}

func TestClock(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)

	// 20:00 UTC is already the next day in India
	c := Clock{Now: func() time.Time { return time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC) }, Location: loc}
	assert.Equal(t, "2025-03-02", c.Today())
	assert.Equal(t, time.Date(2025, 3, 2, 0, 0, 0, 0, loc), c.StartOfDay())
}

func TestValidateDate(t *testing.T) {
	assert.NoError(t, ValidateDate("2025-02-28"))
	assert.Error(t, ValidateDate("2025-02-30"))
	assert.Error(t, ValidateDate("15/06/2025"))
}
