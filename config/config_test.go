package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "rosterd.yaml", `
listen:
  host: 127.0.0.1
  port: 9090
cors:
  origin: https://console.example.com
database:
  driver: postgres
  dsn: postgres://rosterd@localhost/rosterd
sessions:
  ttl: 48h
  sweep_schedule: "0 * * * *"
telemetry:
  otlp_endpoint: otel-collector:4318
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9090", cfg.Listen.Addr())
	assert.Equal(t, "https://console.example.com", cfg.CORS.Origin)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 48*time.Hour, cfg.Sessions.TTL.Std())
	assert.Equal(t, "0 * * * *", cfg.Sessions.SweepSchedule)
	assert.Equal(t, "otel-collector:4318", cfg.Telemetry.OTLPEndpoint)
}

func TestLoadBadDuration(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "rosterd.yaml", `
sessions:
  ttl: two days
`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestListenAddrDefaultsPort(t *testing.T) {
	assert.Equal(t, ":8080", Listen{}.Addr())
	assert.Equal(t, "0.0.0.0:8080", Listen{Host: "0.0.0.0"}.Addr())
}

func TestDiscoverExplicitPath(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "custom.yaml", "listen:\n  port: 1\n")

	got, found, err := DiscoverFrom(path, dir, dir)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, path, got)

	// An explicit path that does not exist is an error, not a fallback.
	_, _, err = DiscoverFrom(filepath.Join(dir, "missing.yaml"), dir, dir)
	require.Error(t, err)
}

func TestDiscoverProjectBeforeHome(t *testing.T) {
	cwd := t.TempDir()
	home := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(home, ".rosterd"), 0o700))
	writeConfig(t, filepath.Join(home, ".rosterd"), "config.yaml", "listen:\n  port: 2\n")

	got, found, err := DiscoverFrom("", cwd, home)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, filepath.Join(home, ".rosterd", "config.yaml"), got)

	projectPath := writeConfig(t, cwd, "rosterd.yaml", "listen:\n  port: 3\n")
	got, found, err = DiscoverFrom("", cwd, home)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, projectPath, got, "project config wins over home config")
}

func TestDiscoverNothingFound(t *testing.T) {
	_, found, err := DiscoverFrom("", t.TempDir(), t.TempDir())
	require.NoError(t, err)
	assert.False(t, found)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("ROSTERD_LISTEN_HOST", "10.0.0.5")
	t.Setenv("ROSTERD_LISTEN_PORT", "7070")
	t.Setenv("ROSTERD_CORS_ORIGIN", "https://env.example.com")
	t.Setenv("ROSTERD_DB_DRIVER", "postgres")
	t.Setenv("ROSTERD_DB_DSN", "postgres://env@localhost/rosterd")
	t.Setenv("ROSTERD_SESSION_TTL", "12h")
	t.Setenv("ROSTERD_SWEEP_SCHEDULE", "*/5 * * * *")
	t.Setenv("ROSTERD_OTLP_ENDPOINT", "collector:4318")

	cfg := File{}
	cfg.Listen.Host = "from-file"
	require.NoError(t, ApplyEnv(&cfg))

	assert.Equal(t, "10.0.0.5", cfg.Listen.Host, "environment wins over file")
	assert.Equal(t, 7070, cfg.Listen.Port)
	assert.Equal(t, "https://env.example.com", cfg.CORS.Origin)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://env@localhost/rosterd", cfg.Database.DSN)
	assert.Equal(t, 12*time.Hour, cfg.Sessions.TTL.Std())
	assert.Equal(t, "*/5 * * * *", cfg.Sessions.SweepSchedule)
	assert.Equal(t, "collector:4318", cfg.Telemetry.OTLPEndpoint)
}

func TestApplyEnvBadValues(t *testing.T) {
	t.Setenv("ROSTERD_LISTEN_PORT", "not-a-port")
	cfg := File{}
	require.Error(t, ApplyEnv(&cfg))

	t.Setenv("ROSTERD_LISTEN_PORT", "8080")
	t.Setenv("ROSTERD_SESSION_TTL", "sometime")
	cfg = File{}
	require.Error(t, ApplyEnv(&cfg))
}
