package config

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/observability"
	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Storage       storage.Config
	Observability ObservabilityConfig
	Audit         AuditConfig
	Authz         AuthzConfig
	Auth          AuthConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64

	// RateLimitPerMinute caps requests per user; 0 disables limiting
	RateLimitPerMinute int

	// Health/metrics server (separate port for k8s probes)
	HealthPort string

	// TrustedProxies are the IPs or CIDR ranges whose X-Forwarded-For and
	// X-Real-IP headers are believed
	TrustedProxies []string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
}

// AuditConfig holds activity log settings
type AuditConfig struct {
	RetentionDays    int
	DefaultPageSize  int
	MaxPageSize      int
	ExportMaxRows    int
	CleanupBatchSize int

	// CleanupEnabled runs the retention scheduler inside bos-server
	CleanupEnabled  bool
	CleanupSchedule string
}

// AuthzConfig holds permission cache settings
type AuthzConfig struct {
	CacheSize           int
	CacheTTL            time.Duration
	SharedCacheTTL      time.Duration
	InvalidationChannel string
	TenantCacheSize     int
	TenantCacheTTL      time.Duration
}

// AuthConfig holds bearer token settings
type AuthConfig struct {
	TokenTTL time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Observability: loadObservabilityConfig(),
		Audit:         loadAuditConfig(),
		Authz:         loadAuthzConfig(),
		Auth:          AuthConfig{TokenTTL: getEnvDuration("BOS_TOKEN_TTL", 30*24*time.Hour)},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:               getEnv("BOS_HOST", "0.0.0.0"),
		Port:               getEnv("BOS_PORT", "8080"),
		ReadTimeout:        getEnvDuration("BOS_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:       getEnvDuration("BOS_WRITE_TIMEOUT", 60*time.Second),
		IdleTimeout:        getEnvDuration("BOS_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout:    getEnvDuration("BOS_SHUTDOWN_TIMEOUT", 30*time.Second),
		MaxBodyBytes:       getEnvInt64("BOS_MAX_BODY_BYTES", 1<<20),
		RateLimitPerMinute: getEnvInt("BOS_RATE_LIMIT_PER_MINUTE", 600),
		HealthPort:         getEnv("BOS_HEALTH_PORT", "9090"),
		TrustedProxies:     getEnvList("BOS_TRUSTED_PROXIES"),
	}
}

func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	cfg.PostgresURL = getEnv("BOS_POSTGRES_URL", cfg.PostgresURL)
	cfg.PostgresReplicaURLs = getEnv("BOS_POSTGRES_REPLICA_URLS", cfg.PostgresReplicaURLs)
	if maxConns := getEnvInt("BOS_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.PostgresMaxConns = maxConns
	}
	if minConns := getEnvInt("BOS_POSTGRES_MIN_CONNS", 0); minConns > 0 {
		cfg.PostgresMinConns = minConns
	}
	cfg.PostgresTimeout = getEnvDuration("BOS_POSTGRES_TIMEOUT", cfg.PostgresTimeout)

	cfg.RedisURL = getEnv("BOS_REDIS_URL", "")
	cfg.RedisPassword = getEnv("BOS_REDIS_PASSWORD", "")
	if redisDB := getEnvInt("BOS_REDIS_DB", -1); redisDB >= 0 {
		cfg.RedisDB = redisDB
	}
	if poolSize := getEnvInt("BOS_REDIS_POOL_SIZE", 0); poolSize > 0 {
		cfg.RedisPoolSize = poolSize
	}

	cfg.ArchiveType = strings.ToLower(getEnv("BOS_EXPORT_ARCHIVE", cfg.ArchiveType))
	cfg.ArchiveDir = getEnv("BOS_EXPORT_DIR", cfg.ArchiveDir)
	cfg.S3Endpoint = getEnv("BOS_S3_ENDPOINT", "")
	cfg.S3Region = getEnv("BOS_S3_REGION", cfg.S3Region)
	cfg.S3Bucket = getEnv("BOS_S3_BUCKET", "")
	cfg.S3AccessKey = getEnv("BOS_S3_ACCESS_KEY", "")
	cfg.S3SecretKey = getEnv("BOS_S3_SECRET_KEY", "")
	cfg.S3UsePathStyle = getEnvBool("BOS_S3_USE_PATH_STYLE", false)

	return cfg
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(getEnv("BOS_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("BOS_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("BOS_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("BOS_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("BOS_OTEL_SERVICE_NAME", "bos-server"),
		OTelServiceVersion: getEnv("BOS_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("BOS_OTEL_INSECURE", true),
	}
}

func loadAuditConfig() AuditConfig {
	return AuditConfig{
		RetentionDays:    getEnvInt("BOS_AUDIT_RETENTION_DAYS", 90),
		DefaultPageSize:  getEnvInt("BOS_AUDIT_PAGE_SIZE", 20),
		MaxPageSize:      getEnvInt("BOS_AUDIT_MAX_PAGE_SIZE", 100),
		ExportMaxRows:    getEnvInt("BOS_AUDIT_EXPORT_MAX_ROWS", 10000),
		CleanupBatchSize: getEnvInt("BOS_AUDIT_CLEANUP_BATCH_SIZE", 1000),
		CleanupEnabled:   getEnvBool("BOS_AUDIT_CLEANUP_ENABLED", false),
		CleanupSchedule:  getEnv("BOS_AUDIT_CLEANUP_SCHEDULE", "0 3 * * *"),
	}
}

func loadAuthzConfig() AuthzConfig {
	return AuthzConfig{
		CacheSize:           getEnvInt("BOS_AUTHZ_CACHE_SIZE", 1024),
		CacheTTL:            getEnvDuration("BOS_AUTHZ_CACHE_TTL", 30*time.Second),
		SharedCacheTTL:      getEnvDuration("BOS_AUTHZ_SHARED_CACHE_TTL", 10*time.Minute),
		InvalidationChannel: getEnv("BOS_AUTHZ_INVALIDATION_CHANNEL", "bos:authz:invalidate"),
		TenantCacheSize:     getEnvInt("BOS_TENANT_CACHE_SIZE", 1024),
		TenantCacheTTL:      getEnvDuration("BOS_TENANT_CACHE_TTL", 30*time.Second),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}
	for _, proxy := range c.Server.TrustedProxies {
		if _, err := netip.ParsePrefix(proxy); err == nil {
			continue
		}
		if _, err := netip.ParseAddr(proxy); err != nil {
			return fmt.Errorf("invalid trusted proxy %q", proxy)
		}
	}

	if c.Storage.PostgresURL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	switch c.Storage.ArchiveType {
	case "none":
	case "filesystem":
		if c.Storage.ArchiveDir == "" {
			return fmt.Errorf("export directory is required for filesystem archive")
		}
	case "s3":
		if c.Storage.S3Bucket == "" {
			return fmt.Errorf("S3 bucket is required for s3 archive")
		}
	default:
		return fmt.Errorf("invalid export archive: %s (must be none, filesystem or s3)", c.Storage.ArchiveType)
	}

	if c.Audit.RetentionDays < 1 {
		return fmt.Errorf("audit retention must be at least 1 day")
	}
	if c.Audit.DefaultPageSize < 1 || c.Audit.MaxPageSize < c.Audit.DefaultPageSize {
		return fmt.Errorf("audit page sizes are invalid: default %d, max %d", c.Audit.DefaultPageSize, c.Audit.MaxPageSize)
	}
	if c.Audit.ExportMaxRows < 1 {
		return fmt.Errorf("audit export row cap must be positive")
	}
	if c.Audit.CleanupBatchSize < 1 {
		return fmt.Errorf("audit cleanup batch size must be positive")
	}
	if _, err := cron.ParseStandard(c.Audit.CleanupSchedule); err != nil {
		return fmt.Errorf("invalid audit cleanup schedule %q: %w", c.Audit.CleanupSchedule, err)
	}

	if c.Authz.CacheSize < 1 {
		return fmt.Errorf("authz cache size must be positive")
	}
	if c.Authz.CacheTTL <= 0 {
		return fmt.Errorf("authz cache TTL must be positive")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// OTel returns the telemetry settings in the shape observability expects
func (c *Config) OTel() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        c.Observability.OTelEnabled,
		Endpoint:       c.Observability.OTelEndpoint,
		ServiceName:    c.Observability.OTelServiceName,
		ServiceVersion: c.Observability.OTelServiceVersion,
		Insecure:       c.Observability.OTelInsecure,
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvList splits a comma-separated environment variable, dropping blanks
func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
