package api

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/yogaflow/attendance/internal/apperrors"
	"github.com/yogaflow/attendance/internal/auth"
	"github.com/yogaflow/attendance/internal/models"
)

func (api *Api) MarkAttendanceHandler(w http.ResponseWriter, r *http.Request) {
	var req markAttendanceRequest
	if err := decodeJSON(r, &req, false); err != nil {
		api.writeError(w, r, err)
		return
	}
	if req.Attended == nil {
		api.writeError(w, r, apperrors.Validation("attended is required"))
		return
	}
	device := req.DeviceInfo
	if device == "" {
		device = r.UserAgent()
	}

	res, err := api.deps.Recorder.Mark(r.Context(), api.principal(r).Username, *req.Attended, device)
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, markAttendanceResponse{Message: res.Message, Level: res.Level})
}

func (api *Api) UserAttendanceHandler(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	if !api.principal(r).CanActFor(username) {
		api.writeError(w, r, auth.ErrForbidden)
		return
	}

	records, err := api.deps.Recorder.ForUser(r.Context(), username)
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNilRecords(records))
}

func (api *Api) ProgressHandler(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	if !api.principal(r).CanActFor(username) {
		api.writeError(w, r, auth.ErrForbidden)
		return
	}

	progress, err := api.deps.Recorder.Progress(r.Context(), username)
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProgressResponse(progress))
}

func (api *Api) AllAttendanceHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	records, err := api.deps.Recorder.All(r.Context(), q.Get("from"), q.Get("to"))
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNilRecords(records))
}

func (api *Api) ListUsersHandler(w http.ResponseWriter, r *http.Request) {
	users, err := api.deps.Accounts.Users(r.Context())
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponses(users))
}

func (api *Api) CorrectAttendanceHandler(w http.ResponseWriter, r *http.Request) {
	var req correctAttendanceRequest
	if err := decodeJSON(r, &req, false); err != nil {
		api.writeError(w, r, err)
		return
	}
	if req.Attended == nil {
		api.writeError(w, r, apperrors.Validation("attended is required"))
		return
	}

	record, err := api.deps.Recorder.Correct(r.Context(), chi.URLParam(r, "id"), *req.Attended)
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, correctAttendanceResponse{Message: "Attendance updated successfully", Record: record})
}

func (api *Api) AppOpenHandler(w http.ResponseWriter, r *http.Request) {
	sent, err := api.deps.Reminder.OnAppOpen(r.Context(), api.principal(r).Username)
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appOpenResponse{ReminderSent: sent})
}

func (api *Api) ListNotificationsHandler(w http.ResponseWriter, r *http.Request) {
	notifications, err := api.deps.Inbox.ListNotifications(r.Context(), api.principal(r).Username)
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	if notifications == nil {
		notifications = []*models.Notification{}
	}
	writeJSON(w, http.StatusOK, notifications)
}

func (api *Api) MarkNotificationReadHandler(w http.ResponseWriter, r *http.Request) {
	if err := api.deps.Inbox.MarkNotificationRead(r.Context(), chi.URLParam(r, "id"), api.principal(r).Username); err != nil {
		api.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Notification marked as read"})
}

func (api *Api) ExportAttendanceHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var buf bytes.Buffer
	if _, err := api.deps.Exporter.Export(r.Context(), &buf, q.Get("from"), q.Get("to")); err != nil {
		api.writeError(w, r, err)
		return
	}

	filename := fmt.Sprintf("attendance-%s.csv", time.Now().UTC().Format("20060102"))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func (api *Api) ArchiveAttendanceHandler(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = models.DateOf(time.Now().AddDate(0, 0, -1), api.Config.Location())
	}

	key, err := api.deps.Exporter.Archive(r.Context(), date)
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, archiveResponse{Message: "Attendance archived", Key: key})
}
