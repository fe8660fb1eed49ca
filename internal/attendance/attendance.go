// Package attendance records daily practice and advances users through the
// program levels based on what was recorded.
package attendance

import (
	"context"
	"time"

	"github.com/yogaflow/attendance/internal/apperrors"
	"github.com/yogaflow/attendance/internal/database"
	"github.com/yogaflow/attendance/internal/models"
)

// DefaultThreshold is the number of attended days at a level needed to
// advance to the next one.
const DefaultThreshold = 120

var (
	ErrDuplicateAttendance = apperrors.New(apperrors.KindDuplicateAttendance, "attendance already marked for today")
	ErrRecordNotFound      = apperrors.New(apperrors.KindNotFound, "attendance record not found")
	ErrUserNotFound        = apperrors.New(apperrors.KindNotFound, "user not found")
)

// Store is the persistence the package needs. *database.DB satisfies it.
type Store interface {
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	ListUsersBelowLevel(ctx context.Context, max int) ([]*models.User, error)
	AdvanceLevel(ctx context.Context, username string, from, to int) (bool, error)
	ResetLevelCursor(ctx context.Context, username string, level int) error
	GetLevelCursor(ctx context.Context, username string) (*models.LevelCursor, error)

	CreateAttendance(ctx context.Context, r *models.AttendanceRecord) error
	GetAttendance(ctx context.Context, id string) (*models.AttendanceRecord, error)
	GetAttendanceByDate(ctx context.Context, username, date string) (*models.AttendanceRecord, error)
	SetAttended(ctx context.Context, id string, attended bool) error
	CountAttended(ctx context.Context, username string, level int) (int, error)
	ListAttendanceByUser(ctx context.Context, username string) ([]*models.AttendanceRecord, error)
	ListAttendance(ctx context.Context, filter database.AttendanceFilter) ([]*models.AttendanceRecord, error)

	UpsertDailyProgress(ctx context.Context, p *models.DailyProgress) error
	ListDailyProgress(ctx context.Context, username string, limit int) ([]*models.DailyProgress, error)
	HasNotificationSince(ctx context.Context, username, kind string, since time.Time) (bool, error)
}

// Notifier delivers fire-and-forget notifications
type Notifier interface {
	Notify(ctx context.Context, target, title, body, kind string)
}

// Clock supplies the current time and the zone calendar days are cut in
type Clock struct {
	Now      func() time.Time
	Location *time.Location
}

// SystemClock returns a Clock on the wall time in loc
func SystemClock(loc *time.Location) Clock {
	if loc == nil {
		loc = time.UTC
	}
	return Clock{Now: time.Now, Location: loc}
}

// Today returns the current calendar day
func (c Clock) Today() string {
	return models.DateOf(c.Now(), c.Location)
}

// StartOfDay returns midnight of the current calendar day
func (c Clock) StartOfDay() time.Time {
	now := c.Now().In(c.Location)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, c.Location)
}
