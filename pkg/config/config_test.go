package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/observability"
)

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_STRING", "custom")
	t.Setenv("TEST_BOOL_TRUE", "TRUE")
	t.Setenv("TEST_BOOL_ONE", "1")
	t.Setenv("TEST_INT", "42")
	t.Setenv("TEST_INT_BAD", "forty-two")
	t.Setenv("TEST_DURATION", "90s")

	assert.Equal(t, "custom", getEnv("TEST_STRING", "default"))
	assert.Equal(t, "default", getEnv("TEST_STRING_UNSET", "default"))
	assert.True(t, getEnvBool("TEST_BOOL_TRUE", false))
	assert.True(t, getEnvBool("TEST_BOOL_ONE", false))
	assert.True(t, getEnvBool("TEST_BOOL_UNSET", true))
	assert.Equal(t, 42, getEnvInt("TEST_INT", 0))
	assert.Equal(t, 7, getEnvInt("TEST_INT_BAD", 7))
	assert.Equal(t, int64(42), getEnvInt64("TEST_INT", 0))
	assert.Equal(t, 90*time.Second, getEnvDuration("TEST_DURATION", time.Second))
	assert.Equal(t, time.Second, getEnvDuration("TEST_DURATION_UNSET", time.Second))
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "9090", cfg.Server.HealthPort)
	assert.Empty(t, cfg.Server.TrustedProxies)
	assert.Equal(t, 90, cfg.Audit.RetentionDays)
	assert.Equal(t, 20, cfg.Audit.DefaultPageSize)
	assert.Equal(t, 100, cfg.Audit.MaxPageSize)
	assert.Equal(t, 10000, cfg.Audit.ExportMaxRows)
	assert.Equal(t, "none", cfg.Storage.ArchiveType)
	assert.Equal(t, observability.InfoLevel, cfg.Observability.LogLevel)
	assert.False(t, cfg.OTel().Enabled)
}

func TestLoadConfig_FromEnv(t *testing.T) {
	t.Setenv("BOS_PORT", "8000")
	t.Setenv("BOS_LOG_LEVEL", "debug")
	t.Setenv("BOS_AUDIT_RETENTION_DAYS", "30")
	t.Setenv("BOS_EXPORT_ARCHIVE", "S3")
	t.Setenv("BOS_S3_BUCKET", "exports")
	t.Setenv("BOS_AUTHZ_CACHE_TTL", "5s")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, observability.DebugLevel, cfg.Observability.LogLevel)
	assert.Equal(t, 30, cfg.Audit.RetentionDays)
	assert.Equal(t, "s3", cfg.Storage.ArchiveType)
	assert.Equal(t, "exports", cfg.Storage.S3Bucket)
	assert.Equal(t, 5*time.Second, cfg.Authz.CacheTTL)
}

func TestLoadConfig_TrustedProxies(t *testing.T) {
	t.Setenv("BOS_TRUSTED_PROXIES", " 10.0.0.0/8, ,192.0.2.1 ")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.0/8", "192.0.2.1"}, cfg.Server.TrustedProxies)
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"same ports", func(c *Config) { c.Server.HealthPort = c.Server.Port }, "must be different"},
		{"missing postgres", func(c *Config) { c.Storage.PostgresURL = "" }, "postgres URL is required"},
		{"s3 without bucket", func(c *Config) { c.Storage.ArchiveType = "s3" }, "S3 bucket is required"},
		{"unknown archive", func(c *Config) { c.Storage.ArchiveType = "ftp" }, "invalid export archive"},
		{"zero retention", func(c *Config) { c.Audit.RetentionDays = 0 }, "retention"},
		{"max below default", func(c *Config) { c.Audit.MaxPageSize = 10 }, "page sizes"},
		{"bad trusted proxy", func(c *Config) { c.Server.TrustedProxies = []string{"10.0.0.0/8", "gateway"} }, "invalid trusted proxy"},
		{"bad cron", func(c *Config) { c.Audit.CleanupSchedule = "every night" }, "cleanup schedule"},
		{"otel without endpoint", func(c *Config) {
			c.Observability.OTelEnabled = true
			c.Observability.OTelEndpoint = ""
		}, "endpoint is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadConfig()
			require.NoError(t, err)

			tt.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
