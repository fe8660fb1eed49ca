package models

import "time"

// DateLayout is the storage and wire format of a calendar day
const DateLayout = "2006-01-02"

// AttendanceRecord is one user's practice entry for one calendar day.
// At most one record exists per (Username, Date).
type AttendanceRecord struct {
	ID        string    `json:"id" db:"id"`
	Username  string    `json:"username" db:"username"`
	Date      string    `json:"date" db:"attendance_date"`
	Attended  bool      `json:"attended" db:"attended"`
	Level     int       `json:"level" db:"level"` // user's level when the record was created
	Device    string    `json:"deviceInfo" db:"device_info"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// DailyProgress holds the per-task completion flags of one day
type DailyProgress struct {
	ID                string    `json:"id" db:"id"`
	Username          string    `json:"username" db:"username"`
	Date              string    `json:"date" db:"progress_date"`
	VideoCompleted    bool      `json:"videoCompleted" db:"video_completed"`
	RoutineCompleted  bool      `json:"routineCompleted" db:"routine_completed"`
	HabitsCompleted   bool      `json:"habitsCompleted" db:"habits_completed"`
	QACompleted       bool      `json:"qaCompleted" db:"qa_completed"`
	AllTasksCompleted bool      `json:"allTasksCompleted" db:"all_tasks_completed"`
	UpdatedAt         time.Time `json:"updatedAt" db:"updated_at"`
}

// CompleteAll marks every task of the day as done
func (p *DailyProgress) CompleteAll() {
	p.VideoCompleted = true
	p.RoutineCompleted = true
	p.HabitsCompleted = true
	p.QACompleted = true
	p.AllTasksCompleted = true
}

// DateOf returns the calendar day of t in loc
func DateOf(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DateLayout)
}
