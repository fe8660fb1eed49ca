package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/yogaflow/attendance/internal/apperrors"
	"github.com/yogaflow/attendance/internal/auth"
	"github.com/yogaflow/attendance/internal/database"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError renders err with the status of its kind. Unclassified errors
// are logged in full and reported as a generic internal error.
func (api *Api) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if e, ok := apperrors.As(err); ok && e.Kind != apperrors.KindInternal {
		writeJSON(w, e.Kind.HTTPStatus(), errorResponse{Error: e.Message, Code: e.Code()})
		return
	}
	if errors.Is(err, database.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found", Code: apperrors.KindNotFound.String()})
		return
	}

	api.log.Error("request failed",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.Any("error", err),
	)
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error", Code: apperrors.KindInternal.String()})
}

// decodeJSON reads a JSON body into v. An empty body is accepted when
// allowEmpty is set.
func decodeJSON(r *http.Request, v any, allowEmpty bool) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if err == nil || (allowEmpty && errors.Is(err, io.EOF)) {
		return nil
	}
	return apperrors.Validation("invalid request body")
}

func (api *Api) principal(r *http.Request) auth.Principal {
	p, _ := auth.PrincipalFromContext(r.Context())
	return p
}

// clientAddr returns the caller address, rewritten by middleware.RealIP
// when proxies are trusted
func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
