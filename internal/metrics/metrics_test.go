package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.LoginAttempt("success")
		m.TokenRefresh("expired")
		m.AttendanceMarked(true)
		m.LevelUpgraded(2)
		m.RateLimited()
		m.NotificationFailed("amqp")
	})

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	assert.NotNil(t, m.Middleware(next))
}

func TestCounters(t *testing.T) {
	m := New()
	m.LoginAttempt("success")
	m.LoginAttempt("success")
	m.LoginAttempt("pending_approval")
	m.LevelUpgraded(2)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.loginAttempts.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.loginAttempts.WithLabelValues("pending_approval")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.levelUpgrades.WithLabelValues("2")))
}

func TestHandlerExposesRouteLatency(t *testing.T) {
	m := New()

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/users/{username}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Handle("/metrics", m.Handler())

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/users/alice", nil))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `route="/users/{username}"`), "route pattern label missing")
	assert.True(t, strings.Contains(body, `status="418"`))
}
