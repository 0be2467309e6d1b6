package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, defaultListen, cfg.Listen)
	assert.Equal(t, 31, cfg.HorizonDays)
	assert.Equal(t, 31*24*time.Hour, cfg.Horizon())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoadNormalizesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
timezone: America/Chicago
horizon_days: 0
log:
  level: DEBUG
  format: json
ics:
  - url: https://example.test/a.ics
  - url: ""
    id: empty
redis:
  addr: localhost:6379
  history_ttl: 2h
scheduler:
  merge_tolerance: 2s
  recurrence_spread_days: 2
preferences:
  wake_time: "08:00"
  bed_time: "23:00"
  blackout_days: [sat]
  time_of_day_ranks:
    morning: 1
    evening: 2
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "America/Chicago", cfg.Timezone)
	assert.Equal(t, defaultHorizonDays, cfg.HorizonDays)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 2*time.Hour, cfg.Redis.HistoryTTL)
	assert.Equal(t, "08:00", cfg.Preferences.WakeTime)
	assert.Equal(t, 1, cfg.Preferences.TimeOfDayRanks["morning"])
	assert.Equal(t, "yes", cfg.Preferences.Weekends)

	srcs := cfg.Sources()
	require.Len(t, srcs, 1)
	assert.Equal(t, "ics-1", srcs[0].ID)

	opts := cfg.EngineOptions()
	assert.Equal(t, 2*time.Second, opts.MergeTolerance)
	assert.Equal(t, 2, opts.RecurrenceSpreadDays)
	assert.Equal(t, cfg.Horizon(), opts.Horizon)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: [unterminated"), 0o600))
	_, err := Load(path)
	assert.Error(t, err)

	_, err = Load("")
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.ICS = append(cfg.ICS, ICSConfig{ID: "school", URL: "https://example.test/s.ics"})
	cfg.BasicAuth = &BasicAuthConfig{Username: "u", Password: "p"}
	cfg.Redis.HistoryTTL = 90 * time.Minute
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.ICS, loaded.ICS)
	assert.Equal(t, cfg.BasicAuth, loaded.BasicAuth)
	assert.Equal(t, 90*time.Minute, loaded.Redis.HistoryTTL)

	assert.Error(t, Save(path, nil))
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("STUDYCAL_LISTEN", ":9000")
	t.Setenv("STUDYCAL_DATABASE_DSN", "postgres://localhost/studycal")
	t.Setenv("STUDYCAL_LOG_LEVEL", "WARN")
	t.Setenv("STUDYCAL_HORIZON_DAYS", "14")

	cfg, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Listen)
	assert.Equal(t, "postgres://localhost/studycal", cfg.Database.DSN)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 14, cfg.HorizonDays)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("STUDYCAL_TIMEZONE=Europe/Berlin\n"), 0o600))
	t.Setenv("STUDYCAL_TIMEZONE", "")
	require.NoError(t, os.Unsetenv("STUDYCAL_TIMEZONE"))

	require.NoError(t, LoadDotEnv(envFile, filepath.Join(dir, "missing.env")))
	assert.Equal(t, "Europe/Berlin", os.Getenv("STUDYCAL_TIMEZONE"))
}
