package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "task_log.json", cfg.TasksFile)
	require.Equal(t, "headless_state.json", cfg.StateDSN)
	require.Equal(t, 60*time.Second, cfg.Interval)
	require.Equal(t, time.Second, cfg.SendDelay)
	require.Equal(t, "smtp.gmail.com", cfg.SMTP.Host)
	require.Equal(t, 465, cfg.SMTP.Port)
	require.Equal(t, "automation.log", cfg.Log.File)
	require.False(t, cfg.WatchTasks)
}

func TestLoadConfigFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(`
tasks_file: tasks.yaml
interval: 5m
google:
  token_file: secrets/token.json
status:
  addr: ":8090"
`), 0o644))
	t.Setenv("AUTOMPP_STATE_DSN", "sqlite:///tmp/state.db")
	t.Setenv("AUTOMPP_INTERVAL_JITTER", "0.2")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "tasks.yaml", cfg.TasksFile)
	require.Equal(t, 5*time.Minute, cfg.Interval)
	require.Equal(t, "secrets/token.json", cfg.Google.TokenFile)
	require.Equal(t, ":8090", cfg.Status.Addr)
	require.Equal(t, "sqlite:///tmp/state.db", cfg.StateDSN)
	require.InDelta(t, 0.2, cfg.IntervalJitter, 1e-9)
}

func TestLoadLegacySMTPVariables(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("AUTOMATION_SMTP_EMAIL", "ops@example.com")
	t.Setenv("AUTOMATION_SMTP_PASSWORD", "app-password")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "ops@example.com", cfg.SMTP.Username)
	require.Equal(t, "app-password", cfg.SMTP.Password)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("AUTOMPP_TEST_DOTENV_TASKS=from-dotenv.json\n"), 0o644))
	t.Setenv("AUTOMPP_TEST_DOTENV_TASKS", "")
	require.NoError(t, os.Unsetenv("AUTOMPP_TEST_DOTENV_TASKS"))

	_, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "from-dotenv.json", os.Getenv("AUTOMPP_TEST_DOTENV_TASKS"))
}

func TestLoadExplicitMissingFileFails(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := Load("does-not-exist.yaml")
	require.Error(t, err)
}
