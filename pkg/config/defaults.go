package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress     = "127.0.0.1:8080"
	DefaultReadTimeout       = 30 * time.Second
	DefaultWriteTimeout      = 30 * time.Second
	DefaultIdleTimeout       = 120 * time.Second
	DefaultShutdownTimeout   = 30 * time.Second
	DefaultMaxHeaderBytes    = 1048576 // 1MB
	DefaultConcurrencyTarget = 64
	DefaultMaxQueueSize      = 256

	// Admission defaults
	DefaultAdmissionEnabled       = true
	DefaultMemoryThreshold        = 85.0
	DefaultCPUThreshold           = 90.0
	DefaultQueueThreshold         = 0.8
	DefaultResourceCheckInterval  = time.Second

	// Limits defaults
	DefaultFailurePolicy = "open"

	// Store defaults
	DefaultStoreBackend  = "memory"
	DefaultRedisAddr     = "127.0.0.1:6379"
	DefaultRedisPrefix   = "gatekeeper:rl"
	DefaultSQLitePath    = "data/counters.db"
	DefaultSweepSchedule = "@every 1m"

	// Telemetry defaults
	DefaultLoggingLevel   = "info"
	DefaultLoggingFormat  = "json"
	DefaultMetricsEnabled = true
	DefaultMetricsPath    = "/metrics"
)

// ApplyDefaults fills in default values for every unset field. It mutates
// the given config in place and never overrides an explicitly set value.
func ApplyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.MaxHeaderBytes == 0 {
		cfg.Server.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if cfg.Server.ConcurrencyTarget == 0 {
		cfg.Server.ConcurrencyTarget = DefaultConcurrencyTarget
	}
	if cfg.Server.MaxQueueSize == 0 {
		cfg.Server.MaxQueueSize = DefaultMaxQueueSize
	}

	// Admission defaults
	if cfg.Admission.Enabled == nil {
		enabled := DefaultAdmissionEnabled
		cfg.Admission.Enabled = &enabled
	}
	if cfg.Admission.MemoryThreshold == 0 {
		cfg.Admission.MemoryThreshold = DefaultMemoryThreshold
	}
	if cfg.Admission.CPUThreshold == 0 {
		cfg.Admission.CPUThreshold = DefaultCPUThreshold
	}
	if cfg.Admission.QueueThreshold == 0 {
		cfg.Admission.QueueThreshold = DefaultQueueThreshold
	}
	if cfg.Admission.ResourceCheckInterval == 0 {
		cfg.Admission.ResourceCheckInterval = DefaultResourceCheckInterval
	}

	// Limits defaults
	if cfg.Limits.FailurePolicy == "" {
		cfg.Limits.FailurePolicy = DefaultFailurePolicy
	}

	// Store defaults
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = DefaultStoreBackend
	}
	if cfg.Store.Redis.Addr == "" {
		cfg.Store.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Store.Redis.KeyPrefix == "" {
		cfg.Store.Redis.KeyPrefix = DefaultRedisPrefix
	}
	if cfg.Store.SQLite.Path == "" {
		cfg.Store.SQLite.Path = DefaultSQLitePath
	}
	if cfg.Store.SQLite.SweepSchedule == "" {
		cfg.Store.SQLite.SweepSchedule = DefaultSweepSchedule
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.Enabled == nil {
		enabled := DefaultMetricsEnabled
		cfg.Telemetry.Metrics.Enabled = &enabled
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
}
