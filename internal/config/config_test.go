package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultsAreValid(t *testing.T) {
	cfg := Defaults()
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"bad mode", func(c *Config) { c.Mode = "daemon" }, "unknown mode"},
		{"bad log level", func(c *Config) { c.LogLevel = "trace" }, "unknown log_level"},
		{"bad ledger backend", func(c *Config) { c.Ledger.Backend = "sqlite" }, "unknown backend"},
		{"empty namespace", func(c *Config) { c.Ledger.Namespace = "" }, "namespace"},
		{"empty redis addr", func(c *Config) { c.Redis.Addr = "" }, "redis: addr"},
		{"bad server port", func(c *Config) { c.Server.Port = 70000 }, "server: port"},
		{"pool min above max", func(c *Config) {
			c.Database.PoolMinConns = 20
			c.Database.PoolMaxConns = 5
		}, "pool_min_conns"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestValidateDSNSkipsHostChecks(t *testing.T) {
	cfg := Defaults()
	cfg.Database.DSN = "postgres://u:p@db:5432/escrowd"
	cfg.Database.Host = ""
	cfg.Database.Port = 0
	cfg.Database.Database = ""
	assert.NoError(t, cfg.Validate())
}

func TestValidateArchivingRequiresS3(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "archive"
	cfg.Archive.Enabled = true
	cfg.S3.Endpoint = ""
	cfg.S3.Bucket = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3: endpoint")
	assert.Contains(t, err.Error(), "s3: bucket")
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
mode = "full"
log_level = "debug"

[server]
port = 9090
rate_window = "5s"

[ledger]
backend = "memory"
setup_cost = 42
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "full", cfg.Mode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.RateWindow.Duration)
	assert.Equal(t, "memory", cfg.Ledger.Backend)
	assert.Equal(t, uint64(42), cfg.Ledger.SetupCost)

	// Untouched sections keep their defaults.
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "escrowd", cfg.Ledger.Namespace)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
[server]
port = 9090
`)

	t.Setenv("ESCROWD_SERVER_PORT", "7070")
	t.Setenv("ESCROWD_SERVER_API_KEY", "sekrit")
	t.Setenv("ESCROWD_DATABASE_PASSWORD", "hunter2")
	t.Setenv("ESCROWD_LEDGER_SETUP_COST", "100")
	t.Setenv("ESCROWD_ARCHIVE_INTERVAL", "30m")
	t.Setenv("ESCROWD_NOTIFY_EVENTS", "wager_settled, wager_activated")
	t.Setenv("ESCROWD_MODE", "archive")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port, "env must win over file")
	assert.Equal(t, "sekrit", cfg.Server.APIKey)
	assert.Equal(t, "hunter2", cfg.Database.Password)
	assert.Equal(t, uint64(100), cfg.Ledger.SetupCost)
	assert.Equal(t, 30*time.Minute, cfg.Archive.Interval.Duration)
	assert.Equal(t, []string{"wager_settled", "wager_activated"}, cfg.Notify.Events)
	assert.Equal(t, "archive", cfg.Mode)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestRedactedConfigHidesSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Server.APIKey = "sekrit"
	cfg.Database.Password = "hunter2"
	cfg.Database.DSN = "postgres://u:p@db/escrowd"
	cfg.Redis.Password = "redispass"
	cfg.S3.SecretKey = "s3secret"
	cfg.Notify.TelegramToken = "tg-token"

	red := RedactedConfig(&cfg)

	assert.Equal(t, "***", red.Server.APIKey)
	assert.Equal(t, "***", red.Database.Password)
	assert.Equal(t, "***", red.Database.DSN)
	assert.Equal(t, "***", red.Redis.Password)
	assert.Equal(t, "***", red.S3.SecretKey)
	assert.Equal(t, "***", red.Notify.TelegramToken)

	// Redaction must not mutate the original.
	assert.Equal(t, "sekrit", cfg.Server.APIKey)
}
