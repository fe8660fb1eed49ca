package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/yogaflow/attendance/internal/auth"
)

func (api *Api) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req, false); err != nil {
		api.writeError(w, r, err)
		return
	}

	res, err := api.deps.Auth.Login(r.Context(), req.Username, req.Password, r.UserAgent(), clientAddr(r))
	if err != nil {
		api.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		SessionID:    res.SessionID,
		Username:     res.Username,
		Role:         res.Role,
		Level:        res.Level,
	})
}

func (api *Api) RefreshHandler(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req, false); err != nil {
		api.writeError(w, r, err)
		return
	}

	pair, err := api.deps.Auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

func (api *Api) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req, false); err != nil {
		api.writeError(w, r, err)
		return
	}

	_, err := api.deps.Accounts.Register(r.Context(), auth.Registration{
		Name:     req.Name,
		Username: req.Username,
		Email:    req.Email,
		Phone:    req.Phone,
		Password: req.Password,
	})
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, messageResponse{Message: auth.RegistrationAck})
}

func (api *Api) ForgotPasswordHandler(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := decodeJSON(r, &req, false); err != nil {
		api.writeError(w, r, err)
		return
	}
	if err := api.deps.Accounts.ForgotPassword(r.Context(), req.Email); err != nil {
		api.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: auth.ForgotPasswordAck})
}

func (api *Api) ResetPasswordHandler(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(r, &req, false); err != nil {
		api.writeError(w, r, err)
		return
	}
	if err := api.deps.Accounts.ResetPassword(r.Context(), req.Email, req.OTP, req.NewPassword); err != nil {
		api.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Password reset successfully. Please log in again."})
}

func (api *Api) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if err := api.deps.Auth.Logout(r.Context(), api.principal(r)); err != nil {
		api.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Logged out successfully"})
}

func (api *Api) LogoutAllHandler(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	if err := api.deps.Auth.LogoutAllDevices(r.Context(), api.principal(r), username); err != nil {
		api.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Logged out from all devices"})
}

func (api *Api) ListSessionsHandler(w http.ResponseWriter, r *http.Request) {
	sessions, err := api.deps.Auth.ActiveSessions(r.Context(), api.principal(r), chi.URLParam(r, "username"))
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponses(sessions))
}

func (api *Api) LogoutSessionHandler(w http.ResponseWriter, r *http.Request) {
	if err := api.deps.Auth.LogoutSession(r.Context(), api.principal(r), chi.URLParam(r, "sessionId")); err != nil {
		api.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Session logged out"})
}

func (api *Api) PendingUsersHandler(w http.ResponseWriter, r *http.Request) {
	users, err := api.deps.Accounts.PendingUsers(r.Context())
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponses(users))
}

func (api *Api) ApproveUserHandler(w http.ResponseWriter, r *http.Request) {
	if err := api.deps.Accounts.Approve(r.Context(), chi.URLParam(r, "username")); err != nil {
		api.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "User approved successfully"})
}

func (api *Api) RejectUserHandler(w http.ResponseWriter, r *http.Request) {
	if err := api.deps.Accounts.Reject(r.Context(), chi.URLParam(r, "username")); err != nil {
		api.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "User rejected successfully"})
}

func (api *Api) DeleteUserHandler(w http.ResponseWriter, r *http.Request) {
	if err := api.deps.Accounts.Delete(r.Context(), chi.URLParam(r, "username")); err != nil {
		api.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "User deleted successfully"})
}
