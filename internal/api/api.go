package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/yogaflow/attendance/internal/attendance"
	"github.com/yogaflow/attendance/internal/auth"
	"github.com/yogaflow/attendance/internal/config"
	"github.com/yogaflow/attendance/internal/export"
	"github.com/yogaflow/attendance/internal/metrics"
	"github.com/yogaflow/attendance/internal/models"
	"github.com/yogaflow/attendance/internal/ratelimit"
)

// Inbox reads a user's stored notifications
type Inbox interface {
	ListNotifications(ctx context.Context, username string) ([]*models.Notification, error)
	MarkNotificationRead(ctx context.Context, id, username string) error
}

// Deps are the services the handlers call. Limiter and Metrics may be nil.
type Deps struct {
	Auth     *auth.Service
	Accounts *auth.Accounts
	Recorder *attendance.Recorder
	Reminder *attendance.Reminder
	Exporter *export.Exporter
	Inbox    Inbox
	Limiter  ratelimit.Limiter
	Metrics  *metrics.Metrics
}

type Api struct {
	Config *config.Config
	Router *chi.Mux
	deps   Deps
	log    *slog.Logger
}

func NewApi(cfg *config.Config, deps Deps, log *slog.Logger) (*Api, error) {
	if cfg == nil || cfg.APIPort == 0 {
		return nil, errors.New("Must have at least a port to start API")
	}

	api := &Api{
		Config: cfg,
		Router: chi.NewRouter(),
		deps:   deps,
		log:    log,
	}
	api.setupRoutes()
	return api, nil
}

func (api *Api) setupRoutes() {
	r := api.Router

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   api.Config.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.RequestID)
	if api.Config.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(api.deps.Metrics.Middleware)
	r.Use(middleware.Heartbeat("/heartbeat"))
	if api.deps.Limiter != nil {
		r.Use(ratelimit.Middleware(api.deps.Limiter, api.deps.Metrics, api.log))
	}

	if api.deps.Metrics != nil {
		r.Handle("/metrics", api.deps.Metrics.Handler())
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "route not found", Code: "NOT_FOUND"})
	})

	requireAuth := auth.Middleware(api.deps.Auth, api.writeError)
	requireAdmin := auth.RequireAdmin(api.writeError)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", api.LoginHandler)
			r.Post("/refresh", api.RefreshHandler)
			r.Post("/register", api.RegisterHandler)
			r.Post("/forgot-password", api.ForgotPasswordHandler)
			r.Post("/reset-password", api.ResetPasswordHandler)

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Post("/logout", api.LogoutHandler)
				r.Post("/logout-all/{username}", api.LogoutAllHandler)
				r.Get("/sessions/{username}", api.ListSessionsHandler)
				r.Delete("/sessions/{sessionId}", api.LogoutSessionHandler)

				r.Group(func(r chi.Router) {
					r.Use(requireAdmin)
					r.Get("/pending-users", api.PendingUsersHandler)
					r.Post("/approve-user/{username}", api.ApproveUserHandler)
					r.Post("/reject-user/{username}", api.RejectUserHandler)
					r.Delete("/delete-user/{username}", api.DeleteUserHandler)
				})
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)

			r.Post("/attendance/mark", api.MarkAttendanceHandler)
			r.Get("/attendance/user/{username}", api.UserAttendanceHandler)
			r.Get("/progress/{username}", api.ProgressHandler)
			r.Post("/app/open", api.AppOpenHandler)
			r.Get("/notifications", api.ListNotificationsHandler)
			r.Put("/notifications/{id}/read", api.MarkNotificationReadHandler)

			r.Group(func(r chi.Router) {
				r.Use(requireAdmin)
				r.Get("/attendance/all", api.AllAttendanceHandler)
				r.Get("/attendance/users", api.ListUsersHandler)
				r.Get("/attendance/export", api.ExportAttendanceHandler)
				r.Post("/attendance/export/archive", api.ArchiveAttendanceHandler)
				r.Put("/attendance/{id}", api.CorrectAttendanceHandler)
			})
		})
	})
}

// Serve listens until ctx is cancelled, then drains in-flight requests
func (api *Api) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf("0.0.0.0:%d", api.Config.APIPort),
		Handler:           api.Router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		api.log.Info("starting API server", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	api.log.Info("shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}
