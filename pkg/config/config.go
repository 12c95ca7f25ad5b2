package config

import (
	"time"

	"arbor-hq/gatekeeper/pkg/limits"
)

// Config is the root configuration structure for the gatekeeper. It covers
// the HTTP server, admission control, the rate-limit tables, the counter
// store, and telemetry.
type Config struct {
	// Server contains HTTP server configuration including listen address,
	// upstream target, timeouts, and the concurrency model used to derive
	// queue depth.
	Server ServerConfig `yaml:"server"`

	// Admission contains resource-pressure admission control settings.
	Admission AdmissionConfig `yaml:"admission"`

	// Limits contains the tier rate-limit tables and the repository
	// volume caps.
	Limits LimitsConfig `yaml:"limits"`

	// Store selects and configures the shared counter store backend.
	Store StoreConfig `yaml:"store"`

	// Telemetry contains logging and metrics configuration.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains configuration for the HTTP server.
type ServerConfig struct {
	// ListenAddress is the address and port to listen on.
	// Default: "127.0.0.1:8080"
	ListenAddress string `yaml:"listen_address"`

	// UpstreamURL is the base URL of the graph service that admitted
	// requests are proxied to. Required for `run`.
	UpstreamURL string `yaml:"upstream_url"`

	// ReadTimeout is the maximum duration for reading the entire request.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out response
	// writes. Default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the keep-alive idle timeout. Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout bounds graceful shutdown. Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes limits request header size. Default: 1MB
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// ConcurrencyTarget is the number of requests the node is expected to
	// serve comfortably in parallel. In-flight requests beyond this count
	// are treated as queued for admission purposes. Default: 64
	ConcurrencyTarget int `yaml:"concurrency_target"`

	// MaxQueueSize is the queue bound fed to the admission controller.
	// Default: 256
	MaxQueueSize int `yaml:"max_queue_size"`
}

// AdmissionConfig contains resource-pressure admission settings. The
// threshold semantics follow the admission package.
type AdmissionConfig struct {
	// Enabled is the load-shedding kill-switch. Default: true.
	Enabled *bool `yaml:"enabled"`

	// MemoryThreshold is the hard memory-percent limit. Default: 85
	MemoryThreshold float64 `yaml:"memory_threshold"`

	// CPUThreshold is the hard cpu-percent limit. Default: 90
	CPUThreshold float64 `yaml:"cpu_threshold"`

	// QueueThreshold is the queue-fullness ratio above which probabilistic
	// shedding starts. Default: 0.8
	QueueThreshold float64 `yaml:"queue_threshold"`

	// ResourceCheckInterval is the minimum time between OS resource reads.
	// Default: 1s
	ResourceCheckInterval time.Duration `yaml:"resource_check_interval"`
}

// LimitsConfig contains the tier and repository limit tables. Empty tables
// use the compiled-in defaults from the limits package.
type LimitsConfig struct {
	// FailurePolicy is "open" or "closed" and decides the outcome of a
	// limit check when the counter store is unreachable. Default: "open"
	FailurePolicy string `yaml:"failure_policy"`

	// BaseLimits is the free-tier budget per endpoint category. Higher
	// tiers scale these by Multipliers.
	BaseLimits map[limits.EndpointCategory]limits.TierLimit `yaml:"base_limits"`

	// Multipliers scale the base limits per tier.
	Multipliers map[limits.Tier]int64 `yaml:"multipliers"`

	// RepositoryCaps is the per-shared-repository volume table.
	RepositoryCaps map[string]map[limits.OperationType]limits.VolumeCap `yaml:"repository_caps"`
}

// StoreConfig selects the counter store backend.
type StoreConfig struct {
	// Backend is "memory", "redis", or "sqlite". Default: "memory"
	Backend string `yaml:"backend"`

	// Redis configures the redis backend.
	Redis RedisStoreConfig `yaml:"redis"`

	// SQLite configures the sqlite backend.
	SQLite SQLiteStoreConfig `yaml:"sqlite"`
}

// RedisStoreConfig contains redis connection settings.
type RedisStoreConfig struct {
	// Addr is the host:port of the redis server. Default: "127.0.0.1:6379"
	Addr string `yaml:"addr"`

	// Password is the redis AUTH password, if any.
	Password string `yaml:"password"`

	// DB is the redis database number. Default: 0
	DB int `yaml:"db"`

	// KeyPrefix namespaces counter keys. Default: "gatekeeper:rl"
	KeyPrefix string `yaml:"key_prefix"`
}

// SQLiteStoreConfig contains sqlite backend settings.
type SQLiteStoreConfig struct {
	// Path is the database file path. Default: "data/counters.db"
	Path string `yaml:"path"`

	// SweepSchedule is the cron expression for expired-window cleanup.
	// Default: "@every 1m"
	SweepSchedule string `yaml:"sweep_schedule"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	// Logging configures the structured logger.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics configures Prometheus metrics exposure.
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig contains structured logging settings.
type LoggingConfig struct {
	// Level is one of "debug", "info", "warn", "error". Default: "info"
	Level string `yaml:"level"`

	// Format is "json" or "text". Default: "json"
	Format string `yaml:"format"`
}

// MetricsConfig contains Prometheus settings.
type MetricsConfig struct {
	// Enabled controls whether /metrics is served. Default: true
	Enabled *bool `yaml:"enabled"`

	// Path is the metrics endpoint path. Default: "/metrics"
	Path string `yaml:"path"`
}
