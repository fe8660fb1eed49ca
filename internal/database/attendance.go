package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/yogaflow/attendance/internal/models"
)

const attendanceColumns = `a.id, a.username, a.attendance_date, a.attended, a.level, a.device_info, a.created_at`

func scanAttendance(row rowScanner) (*models.AttendanceRecord, error) {
	var r models.AttendanceRecord
	if err := row.Scan(&r.ID, &r.Username, &r.Date, &r.Attended, &r.Level, &r.Device, &r.CreatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

// AttendanceFilter narrows ListAttendance. Empty fields do not filter.
type AttendanceFilter struct {
	From          string
	To            string
	ExcludeAdmins bool
}

// CreateAttendance inserts a record. The (username, date) unique constraint
// turns a second insert for the same day into ErrAlreadyExists.
func (db *DB) CreateAttendance(ctx context.Context, r *models.AttendanceRecord) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.CreatedAt = orNow(r.CreatedAt)

	_, err := db.exec(ctx, `
		INSERT INTO attendance (id, username, attendance_date, attended, level, device_info, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Username, r.Date, r.Attended, r.Level, r.Device, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create attendance %s/%s: %w", r.Username, r.Date, mapError(err))
	}
	return nil
}

// GetAttendance retrieves a record by id
func (db *DB) GetAttendance(ctx context.Context, id string) (*models.AttendanceRecord, error) {
	r, err := scanAttendance(db.queryRow(ctx, `SELECT `+attendanceColumns+` FROM attendance a WHERE a.id = ?`, id))
	if err != nil {
		return nil, mapError(err)
	}
	return r, nil
}

// GetAttendanceByDate retrieves the user's record for a calendar day
func (db *DB) GetAttendanceByDate(ctx context.Context, username, date string) (*models.AttendanceRecord, error) {
	r, err := scanAttendance(db.queryRow(ctx,
		`SELECT `+attendanceColumns+` FROM attendance a WHERE a.username = ? AND a.attendance_date = ?`,
		username, date))
	if err != nil {
		return nil, mapError(err)
	}
	return r, nil
}

// SetAttended overwrites the attended flag of a record
func (db *DB) SetAttended(ctx context.Context, id string, attended bool) error {
	res, err := db.exec(ctx, `UPDATE attendance SET attended = ? WHERE id = ?`, attended, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// CountAttended counts attended records the user created while at level
func (db *DB) CountAttended(ctx context.Context, username string, level int) (int, error) {
	var n int
	err := db.queryRow(ctx, `SELECT COUNT(*) FROM attendance WHERE username = ? AND attended = ? AND level = ?`,
		username, true, level).Scan(&n)
	return n, err
}

// ListAttendanceByUser returns a user's records, newest first
func (db *DB) ListAttendanceByUser(ctx context.Context, username string) ([]*models.AttendanceRecord, error) {
	return db.queryAttendance(ctx,
		`SELECT `+attendanceColumns+` FROM attendance a WHERE a.username = ? ORDER BY a.attendance_date DESC`,
		username)
}

// ListAttendance returns records matching filter, newest first
func (db *DB) ListAttendance(ctx context.Context, filter AttendanceFilter) ([]*models.AttendanceRecord, error) {
	query := `SELECT ` + attendanceColumns + ` FROM attendance a`
	var (
		where []string
		args  []any
	)
	if filter.ExcludeAdmins {
		query += ` JOIN users u ON u.username = a.username`
		where = append(where, `u.role <> ?`)
		args = append(args, string(models.RoleAdmin))
	}
	if filter.From != "" {
		where = append(where, `a.attendance_date >= ?`)
		args = append(args, filter.From)
	}
	if filter.To != "" {
		where = append(where, `a.attendance_date <= ?`)
		args = append(args, filter.To)
	}
	for i, clause := range where {
		if i == 0 {
			query += ` WHERE ` + clause
		} else {
			query += ` AND ` + clause
		}
	}
	query += ` ORDER BY a.attendance_date DESC, a.username`

	return db.queryAttendance(ctx, query, args...)
}

func (db *DB) queryAttendance(ctx context.Context, query string, args ...any) ([]*models.AttendanceRecord, error) {
	rows, err := db.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*models.AttendanceRecord
	for rows.Next() {
		r, err := scanAttendance(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// UpsertDailyProgress creates or overwrites the user's progress row for p.Date
func (db *DB) UpsertDailyProgress(ctx context.Context, p *models.DailyProgress) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.UpdatedAt = orNow(p.UpdatedAt)

	_, err := db.exec(ctx, `
		INSERT INTO daily_progress (id, username, progress_date, video_completed, routine_completed,
			habits_completed, qa_completed, all_tasks_completed, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (username, progress_date) DO UPDATE SET
			video_completed = excluded.video_completed,
			routine_completed = excluded.routine_completed,
			habits_completed = excluded.habits_completed,
			qa_completed = excluded.qa_completed,
			all_tasks_completed = excluded.all_tasks_completed,
			updated_at = excluded.updated_at`,
		p.ID, p.Username, p.Date, p.VideoCompleted, p.RoutineCompleted,
		p.HabitsCompleted, p.QACompleted, p.AllTasksCompleted, p.UpdatedAt,
	)
	return err
}

const progressColumns = `id, username, progress_date, video_completed, routine_completed, habits_completed,
	qa_completed, all_tasks_completed, updated_at`

func scanDailyProgress(row rowScanner) (*models.DailyProgress, error) {
	var p models.DailyProgress
	err := row.Scan(&p.ID, &p.Username, &p.Date, &p.VideoCompleted, &p.RoutineCompleted, &p.HabitsCompleted,
		&p.QACompleted, &p.AllTasksCompleted, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetDailyProgress returns the user's progress row for a calendar day
func (db *DB) GetDailyProgress(ctx context.Context, username, date string) (*models.DailyProgress, error) {
	p, err := scanDailyProgress(db.queryRow(ctx,
		`SELECT `+progressColumns+` FROM daily_progress WHERE username = ? AND progress_date = ?`,
		username, date,
	))
	if err != nil {
		return nil, mapError(err)
	}
	return p, nil
}

// ListDailyProgress returns the user's most recent progress rows, newest first
func (db *DB) ListDailyProgress(ctx context.Context, username string, limit int) ([]*models.DailyProgress, error) {
	rows, err := db.query(ctx,
		`SELECT `+progressColumns+` FROM daily_progress WHERE username = ? ORDER BY progress_date DESC LIMIT ?`,
		username, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var days []*models.DailyProgress
	for rows.Next() {
		p, err := scanDailyProgress(rows)
		if err != nil {
			return nil, err
		}
		days = append(days, p)
	}
	return days, rows.Err()
}
