package api

import (
	"time"

	"github.com/yogaflow/attendance/internal/attendance"
	"github.com/yogaflow/attendance/internal/models"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
	SessionID    string      `json:"sessionId,omitempty"`
	Username     string      `json:"username"`
	Role         models.Role `json:"role"`
	Level        int         `json:"level"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type tokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type registerRequest struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Email       string `json:"email"`
	OTP         string `json:"otp"`
	NewPassword string `json:"newPassword"`
}

type sessionResponse struct {
	ID           string    `json:"id"`
	DeviceInfo   string    `json:"deviceInfo"`
	IPAddress    string    `json:"ipAddress"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
}

type userResponse struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	Username      string      `json:"username"`
	Email         string      `json:"email"`
	Phone         string      `json:"phone,omitempty"`
	Role          models.Role `json:"role"`
	Level         int         `json:"level"`
	Approved      bool        `json:"approved"`
	EmailVerified bool        `json:"emailVerified"`
	CreatedAt     time.Time   `json:"createdAt"`
}

type markAttendanceRequest struct {
	Attended   *bool  `json:"attended"`
	DeviceInfo string `json:"deviceInfo"`
}

type markAttendanceResponse struct {
	Message string `json:"message"`
	Level   int    `json:"level"`
}

type correctAttendanceRequest struct {
	Attended *bool `json:"attended"`
}

type correctAttendanceResponse struct {
	Message string                   `json:"message"`
	Record  *models.AttendanceRecord `json:"record"`
}

type appOpenResponse struct {
	ReminderSent bool `json:"reminderSent"`
}

type archiveResponse struct {
	Message string `json:"message"`
	Key     string `json:"key"`
}

type progressResponse struct {
	Username        string                  `json:"username"`
	Level           int                     `json:"level"`
	MaxLevel        int                     `json:"maxLevel"`
	AttendedAtLevel int                     `json:"attendedAtLevel"`
	Threshold       int                     `json:"threshold"`
	Remaining       int                     `json:"remaining"`
	Cursor          *models.LevelCursor     `json:"cursor"`
	Days            []*models.DailyProgress `json:"days"`
}

func toProgressResponse(p *attendance.Progress) progressResponse {
	days := p.Days
	if days == nil {
		days = []*models.DailyProgress{}
	}
	return progressResponse{
		Username:        p.Username,
		Level:           p.Level,
		MaxLevel:        p.MaxLevel,
		AttendedAtLevel: p.AttendedAtLevel,
		Threshold:       p.Threshold,
		Remaining:       p.Remaining,
		Cursor:          p.Cursor,
		Days:            days,
	}
}

func toSessionResponses(sessions []*models.Session) []sessionResponse {
	out := make([]sessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionResponse{
			ID:           s.ID,
			DeviceInfo:   s.Device,
			IPAddress:    s.IPAddress,
			CreatedAt:    s.CreatedAt,
			LastActivity: s.LastActivity,
		})
	}
	return out
}

func toUserResponses(users []*models.User) []userResponse {
	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, userResponse{
			ID:            u.ID,
			Name:          u.Name,
			Username:      u.Username,
			Email:         u.Email,
			Phone:         u.Phone,
			Role:          u.Role,
			Level:         u.Level,
			Approved:      u.Approved,
			EmailVerified: u.EmailVerified,
			CreatedAt:     u.CreatedAt,
		})
	}
	return out
}

func nonNilRecords(records []*models.AttendanceRecord) []*models.AttendanceRecord {
	if records == nil {
		return []*models.AttendanceRecord{}
	}
	return records
}
