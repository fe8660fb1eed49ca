package attendance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/yogaflow/attendance/internal/database"
	"github.com/yogaflow/attendance/internal/metrics"
	"github.com/yogaflow/attendance/internal/models"
)

const MarkedMessage = "Attendance marked successfully"

// MarkResult is returned by a successful Mark
type MarkResult struct {
	Message string
	Level   int
	Record  *models.AttendanceRecord
}

// Recorder keeps at most one attendance record per user per calendar day
type Recorder struct {
	store      Store
	engine     *Engine
	backfiller *Backfiller
	clock      Clock
	metrics    *metrics.Metrics
	log        *slog.Logger
}

func NewRecorder(store Store, engine *Engine, backfiller *Backfiller, clock Clock, m *metrics.Metrics, log *slog.Logger) *Recorder {
	return &Recorder{
		store:      store,
		engine:     engine,
		backfiller: backfiller,
		clock:      clock,
		metrics:    m,
		log:        log,
	}
}

// Mark records today's attendance for username. The record keeps the level
// the user held when it was written. Attended days trigger an evaluation;
// if that fails the record stays and the next evaluation catches up.
func (r *Recorder) Mark(ctx context.Context, username string, attended bool, device string) (*MarkResult, error) {
	const op = "attendance.Recorder.Mark"
	log := r.log.With(slog.String("op", op), slog.String("username", username))

	user, err := r.store.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	today := r.clock.Today()
	if _, err := r.store.GetAttendanceByDate(ctx, username, today); err == nil {
		return nil, ErrDuplicateAttendance
	} else if !errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	record := &models.AttendanceRecord{
		Username:  username,
		Date:      today,
		Attended:  attended,
		Level:     user.Level,
		Device:    device,
		CreatedAt: r.clock.Now(),
	}
	// the unique (username, date) index settles concurrent marks
	if err := r.store.CreateAttendance(ctx, record); err != nil {
		if errors.Is(err, database.ErrAlreadyExists) {
			return nil, ErrDuplicateAttendance
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	r.metrics.AttendanceMarked(attended)

	level := user.Level
	if attended {
		newLevel, err := r.engine.Evaluate(ctx, username)
		if err != nil {
			log.Error("level evaluation failed after marking attendance", slog.Any("error", err))
		} else {
			level = newLevel
		}
	}

	log.Info("attendance marked", slog.String("date", today), slog.Bool("attended", attended), slog.Int("level", level))
	return &MarkResult{Message: MarkedMessage, Level: level, Record: record}, nil
}

// Correct overwrites the attended flag of a record. A change from absent to
// attended backfills the day's progress and re-evaluates the user.
func (r *Recorder) Correct(ctx context.Context, id string, attended bool) (*models.AttendanceRecord, error) {
	const op = "attendance.Recorder.Correct"
	log := r.log.With(slog.String("op", op), slog.String("record", id))

	record, err := r.store.GetAttendance(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := r.store.SetAttended(ctx, id, attended); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	wasAttended := record.Attended
	record.Attended = attended

	if !wasAttended && attended {
		if err := r.backfiller.Backfill(ctx, record.Username, record.Date); err != nil {
			log.Error("progress backfill failed", slog.String("username", record.Username), slog.Any("error", err))
		}
		if _, err := r.engine.Evaluate(ctx, record.Username); err != nil {
			log.Error("level evaluation failed after correction", slog.String("username", record.Username), slog.Any("error", err))
		}
	}

	log.Info("attendance corrected", slog.String("username", record.Username), slog.Bool("attended", attended))
	return record, nil
}

// ForUser returns a user's records, newest first
func (r *Recorder) ForUser(ctx context.Context, username string) ([]*models.AttendanceRecord, error) {
	records, err := r.store.ListAttendanceByUser(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("attendance.Recorder.ForUser: %w", err)
	}
	return records, nil
}

// All returns every non-admin record between from and to inclusive. Empty
// bounds are open.
func (r *Recorder) All(ctx context.Context, from, to string) ([]*models.AttendanceRecord, error) {
	for _, d := range []string{from, to} {
		if d == "" {
			continue
		}
		if err := ValidateDate(d); err != nil {
			return nil, err
		}
	}
	records, err := r.store.ListAttendance(ctx, database.AttendanceFilter{From: from, To: to, ExcludeAdmins: true})
	if err != nil {
		return nil, fmt.Errorf("attendance.Recorder.All: %w", err)
	}
	return records, nil
}
