package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gradegate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultsAreValid(t *testing.T) {
	cfg, err := LoadWithEnv("", env(nil))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, 15*time.Second, cfg.Dashboard.RefreshInterval)
	assert.Equal(t, 16, cfg.Dashboard.BufferSize)
	assert.Equal(t, 3, cfg.Proposal.DecideRetryAttempts)
}

func TestYAMLOverlayWithEnvPrecedence(t *testing.T) {
	path := writeYAML(t, `
server:
  addr: ":9000"
database:
  driver: sqlite
  url: /tmp/gradegate.db
dashboard:
  refresh_interval: 5s
  buffer_size: 32
audit:
  brokers: ["kafka-1:9092"]
`)
	cfg, err := LoadWithEnv(path, env(map[string]string{
		"DASHBOARD_REFRESH_INTERVAL": "2s",
		"KAFKA_BROKERS":              "a:9092, b:9092",
		"LOG_LEVEL":                  "debug",
	}))
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr, "file value kept when env is unset")
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 2*time.Second, cfg.Dashboard.RefreshInterval, "env wins over file")
	assert.Equal(t, 32, cfg.Dashboard.BufferSize)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Audit.Brokers)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "gradegate.audit", cfg.Audit.Topic, "defaults survive a partial file")
}

func TestUnknownYAMLFieldRejected(t *testing.T) {
	path := writeYAML(t, "dashbord:\n  buffer_size: 4\n")
	_, err := LoadWithEnv(path, env(nil))
	require.Error(t, err)
}

func TestValidation(t *testing.T) {
	cases := map[string]map[string]string{
		"bad driver":          {"DATABASE_DRIVER": "mysql"},
		"sql without url":     {"DATABASE_DRIVER": "pgx"},
		"zero buffer":         {"DASHBOARD_BUFFER": "0"},
		"single slot buffer":  {"DASHBOARD_BUFFER": "1"},
		"no retry attempts":   {"DECIDE_RETRY_ATTEMPTS": "0"},
		"unparsable integer":  {"DASHBOARD_BUFFER": "lots"},
		"unparsable interval": {"DASHBOARD_REFRESH_INTERVAL": "soon"},
		"zero write budget":   {"RATE_LIMIT_WRITE": "0"},
	}
	for name, vars := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadWithEnv("", env(vars))
			assert.Error(t, err)
		})
	}
}

func TestSmallestDashboardBuffer(t *testing.T) {
	cfg, err := LoadWithEnv("", env(map[string]string{"DASHBOARD_BUFFER": "2"}))
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Dashboard.BufferSize)
}

func TestRateLimitCanBeDisabled(t *testing.T) {
	cfg, err := LoadWithEnv("", env(map[string]string{
		"RATE_LIMIT_ENABLED": "false",
		"RATE_LIMIT_WRITE":   "0",
	}))
	require.NoError(t, err)
	assert.False(t, cfg.RateLimit.Enabled)
}

func TestBlankEnvIgnored(t *testing.T) {
	cfg, err := LoadWithEnv("", env(map[string]string{"GRADEGATE_ADDR": "  "}))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}
