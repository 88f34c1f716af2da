package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "focuspact.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, "storage:\n  sqlite:\n    path: "+filepath.Join(dir, "data", "fp.db")+"\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.APIPort)
	assert.Equal(t, "sqlite", cfg.Storage.Type)
	assert.Equal(t, "local", cfg.Session.Owner)
	assert.Equal(t, "1m", cfg.Usage.PollInterval)
	assert.Equal(t, 256, cfg.Limits.CacheSize)
	assert.DirExists(t, filepath.Join(dir, "data"))
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("FOCUSPACT_STORAGE_SQLITE_PATH", ":memory:")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":memory:", cfg.Storage.SQLite.Path)
}

func TestLoad_EnvOverride(t *testing.T) {
	path := writeConfig(t, "storage:\n  type: redis\n")
	t.Setenv("FOCUSPACT_SESSION_OWNER", "device-42")
	t.Setenv("FOCUSPACT_STORAGE_REDIS_HOST", "cache.internal")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "device-42", cfg.Session.Owner)
	assert.Equal(t, "cache.internal", cfg.Storage.Redis.Host)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad storage type", "storage:\n  type: bolt\n"},
		{"backend without key", "storage:\n  sqlite:\n    path: \":memory:\"\nbackend:\n  url: https://example.test\n"},
		{"bad poll interval", "storage:\n  sqlite:\n    path: \":memory:\"\nusage:\n  poll_interval: soon\n"},
		{"retention shorter than window", "storage:\n  sqlite:\n    path: \":memory:\"\nusage:\n  window_days: 7\n  retention_days: 3\n"},
		{"bad log format", "storage:\n  sqlite:\n    path: \":memory:\"\nlogging:\n  format: xml\n"},
		{"bad timezone", "storage:\n  sqlite:\n    path: \":memory:\"\nsession:\n  timezone: Mars/Olympus\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestSessionLocation(t *testing.T) {
	loc, err := SessionConfig{Timezone: "Europe/Berlin"}.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", loc.String())

	loc, err = SessionConfig{}.Location()
	require.NoError(t, err)
	assert.Equal(t, "Local", loc.String())
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, 9090, cfg.Server.MetricsPort)
	assert.Equal(t, 35, cfg.Usage.RetentionDays)
	assert.Equal(t, "03:00", cfg.Usage.PruneTime)
}

func TestUnknownKeys(t *testing.T) {
	path := writeConfig(t, "storage:\n  type: sqlite\n  sqllite:\n    path: /tmp/x.db\nlogging:\n  level: debug\n  colour: true\n")

	unknown, err := UnknownKeys(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"logging.colour", "storage.sqllite.path"}, unknown)
}
