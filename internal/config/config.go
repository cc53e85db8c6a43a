package config

import "time"

// Config holds all application configuration.
type Config struct {
	App           AppConfig           `koanf:"app"`
	Connections   []ConnectionConfig  `koanf:"connections"`
	Observability ObservabilityConfig `koanf:"otel"`
	Log           LogConfig           `koanf:"log"`
	Resilience    ResilienceConfig    `koanf:"resilience"`
}

// ConnectionConfig describes one named Postgres-compatible connection the
// registry can open pools against. Password may be a literal string or,
// when PasswordCmd is set, the path (plus arguments) of an executable whose
// captured stdout supplies the password; PasswordCmd takes precedence.
type ConnectionConfig struct {
	Name     string `koanf:"name"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	// PasswordCmd, if non-empty, is run to produce the password instead of
	// using Password directly. Its stdout (trimmed of trailing newline) is
	// the materialized password; stderr is streamed to the lifecycle event
	// bus; a 10s timeout and non-zero exit both fail materialization.
	PasswordCmd []string `koanf:"password_cmd"`

	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Database string `koanf:"database"`
	SSL      bool   `koanf:"ssl"`

	PoolSize           int           `koanf:"pool_size"`
	CheckoutTimeout    time.Duration `koanf:"checkout_timeout"`
	IdleTimeout        time.Duration `koanf:"idle_timeout"`
	HealthCheckTimeout time.Duration `koanf:"health_check_timeout"`
}

// WithDefaults returns a copy of c with zero-valued tunables replaced by
// the package defaults (5432, 30s checkout, 30min idle, 5s health check).
func (c ConnectionConfig) WithDefaults() ConnectionConfig {
	if c.Port == 0 {
		c.Port = 5432
	}
	if c.PoolSize == 0 {
		c.PoolSize = 5
	}
	if c.CheckoutTimeout == 0 {
		c.CheckoutTimeout = 30 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 30 * time.Minute
	}
	if c.HealthCheckTimeout == 0 {
		c.HealthCheckTimeout = 5 * time.Second
	}
	return c
}

// ResilienceConfig holds settings for retry, circuit breaker, timeout,
// bulkhead, and shutdown-drain behavior applied around pool and catalog
// operations. Field shapes mirror internal/infra/resilience's own config
// types; that package converts from here rather than this package
// importing resilience, to avoid an import cycle.
type ResilienceConfig struct {
	CBMaxRequests      int           `koanf:"cb_max_requests"`
	CBInterval         time.Duration `koanf:"cb_interval"`
	CBTimeout          time.Duration `koanf:"cb_timeout"`
	CBFailureThreshold int           `koanf:"cb_failure_threshold"`

	RetryMaxAttempts  int           `koanf:"retry_max_attempts"`
	RetryInitialDelay time.Duration `koanf:"retry_initial_delay"`
	RetryMaxDelay     time.Duration `koanf:"retry_max_delay"`
	RetryMultiplier   float64       `koanf:"retry_multiplier"`

	TimeoutDefault  time.Duration `koanf:"timeout_default"`
	TimeoutDatabase time.Duration `koanf:"timeout_database"`

	BulkheadMaxConcurrent int `koanf:"bulkhead_max_concurrent"`
	BulkheadMaxWaiting    int `koanf:"bulkhead_max_waiting"`

	ShutdownDrainPeriod time.Duration `koanf:"shutdown_drain_period"`
	ShutdownGracePeriod time.Duration `koanf:"shutdown_grace_period"`
}

// AppConfig holds application settings.
type AppConfig struct {
	Name string `koanf:"name"`
	Env  string `koanf:"env"` // development, staging, production
}

// ObservabilityConfig holds OpenTelemetry settings.
type ObservabilityConfig struct {
	ExporterEndpoint string `koanf:"exporter_otlp_endpoint"`
	ServiceName      string `koanf:"service_name"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, console
}
