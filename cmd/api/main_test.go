package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yogaflow/attendance/internal/config"
)

func TestInitializeAPI(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "app.yml")

	configContent := []byte(`
apiPort: 8080
environment: test
auth:
  jwtSecret: test-secret
database:
  driver: sqlite
  path: ` + filepath.Join(dir, "yoga.db") + `
rateLimit:
  enabled: true
`)
	require.NoError(t, os.WriteFile(configPath, configContent, 0644))

	cfg, err := config.LoadConfig(configPath)
	require.NoError(t, err)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	app, err := initializeAPI(context.Background(), cfg, log)
	require.NoError(t, err)
	require.NotNil(t, app)
	defer app.close()

	rr := httptest.NewRecorder()
	app.api.Router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/heartbeat", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestInitializeAPIBadDatabase(t *testing.T) {
	cfg := config.Default()
	cfg.Environment = "test"
	cfg.Database.Driver = "oracle"

	app, err := initializeAPI(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
	assert.Nil(t, app)
}

func TestNewLogger(t *testing.T) {
	cfg := config.Default()
	cfg.Log.Level = "debug"
	log := newLogger(cfg)
	assert.True(t, log.Enabled(context.Background(), slog.LevelDebug))

	cfg.Log.Level = "nonsense"
	log = newLogger(cfg)
	assert.False(t, log.Enabled(context.Background(), slog.LevelDebug))
}
