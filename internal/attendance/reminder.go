package attendance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/yogaflow/attendance/internal/database"
	"github.com/yogaflow/attendance/internal/models"
)

// Reminder nudges users who open the app without having marked attendance
type Reminder struct {
	store    Store
	notifier Notifier
	clock    Clock
	log      *slog.Logger
}

func NewReminder(store Store, notifier Notifier, clock Clock, log *slog.Logger) *Reminder {
	return &Reminder{store: store, notifier: notifier, clock: clock, log: log}
}

// OnAppOpen sends at most one reminder per calendar day and reports whether
// it sent one. Admins and users who already marked today get nothing.
func (r *Reminder) OnAppOpen(ctx context.Context, username string) (bool, error) {
	const op = "attendance.Reminder.OnAppOpen"

	user, err := r.store.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return false, ErrUserNotFound
		}
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if user.IsAdmin() {
		return false, nil
	}

	if _, err := r.store.GetAttendanceByDate(ctx, username, r.clock.Today()); err == nil {
		return false, nil
	} else if !errors.Is(err, database.ErrNotFound) {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	reminded, err := r.store.HasNotificationSince(ctx, username, models.KindReminder, r.clock.StartOfDay())
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if reminded {
		return false, nil
	}

	r.notifier.Notify(ctx, username, "Mark Your Attendance",
		"Don't forget to mark today's attendance after your practice.", models.KindReminder)
	r.log.Debug("attendance reminder sent", slog.String("op", op), slog.String("username", username))
	return true, nil
}
