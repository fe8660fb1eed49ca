package attendance

import (
	"context"
	"errors"
	"fmt"

	"github.com/yogaflow/attendance/internal/database"
	"github.com/yogaflow/attendance/internal/models"
)

// RecentDays is how many daily progress rows Progress returns
const RecentDays = 30

// Progress is where a user stands in the program
type Progress struct {
	Username        string
	Level           int
	MaxLevel        int
	AttendedAtLevel int
	Threshold       int
	// Remaining is the number of attended days still needed to advance,
	// zero at the top level
	Remaining int
	Cursor    *models.LevelCursor
	Days      []*models.DailyProgress
}

// Progress reports the user's level, how far they are towards the next one,
// their content cursor and their recent daily progress.
func (r *Recorder) Progress(ctx context.Context, username string) (*Progress, error) {
	const op = "attendance.Recorder.Progress"

	user, err := r.store.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	count, err := r.store.CountAttended(ctx, username, user.Level)
	if err != nil {
		return nil, fmt.Errorf("%s: count: %w", op, err)
	}

	cursor, err := r.store.GetLevelCursor(ctx, username)
	switch {
	case errors.Is(err, database.ErrNotFound):
		// never advanced, so still at the start of the first level
		cursor = &models.LevelCursor{Username: username, Level: user.Level}
	case err != nil:
		return nil, fmt.Errorf("%s: cursor: %w", op, err)
	}

	days, err := r.store.ListDailyProgress(ctx, username, RecentDays)
	if err != nil {
		return nil, fmt.Errorf("%s: daily progress: %w", op, err)
	}

	p := &Progress{
		Username:        username,
		Level:           user.Level,
		MaxLevel:        r.engine.maxLevel,
		AttendedAtLevel: count,
		Threshold:       r.engine.threshold,
		Cursor:          cursor,
		Days:            days,
	}
	if !user.AtMaxLevel(r.engine.maxLevel) && count < p.Threshold {
		p.Remaining = p.Threshold - count
	}
	return p, nil
}
