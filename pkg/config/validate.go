package config

import (
	"fmt"
	"net/url"
	"strings"

	"arbor-hq/gatekeeper/pkg/limits"
)

// FieldError represents a validation error for a specific configuration
// field.
type FieldError struct {
	// Field is the dotted path to the field (e.g. "server.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError collects every validation failure found in a
// configuration so the operator sees them all at once.
type ValidationError struct {
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate checks the entire configuration and returns a ValidationError
// if any rule fails. All errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateAdmission(&cfg.Admission)...)
	errs = append(errs, validateLimits(&cfg.Limits)...)
	errs = append(errs, validateStore(&cfg.Store)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateServer(s *ServerConfig) []FieldError {
	var errs []FieldError

	if s.ListenAddress == "" {
		errs = append(errs, FieldError{"server.listen_address", "must not be empty"})
	}
	if s.UpstreamURL != "" {
		u, err := url.Parse(s.UpstreamURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, FieldError{"server.upstream_url", "must be an absolute URL"})
		}
	}
	if s.ConcurrencyTarget < 0 {
		errs = append(errs, FieldError{"server.concurrency_target", "must not be negative"})
	}
	if s.MaxQueueSize < 0 {
		errs = append(errs, FieldError{"server.max_queue_size", "must not be negative"})
	}
	return errs
}

func validateAdmission(a *AdmissionConfig) []FieldError {
	var errs []FieldError

	if a.MemoryThreshold <= 0 || a.MemoryThreshold > 100 {
		errs = append(errs, FieldError{"admission.memory_threshold", "must be in (0, 100]"})
	}
	if a.CPUThreshold <= 0 || a.CPUThreshold > 100 {
		errs = append(errs, FieldError{"admission.cpu_threshold", "must be in (0, 100]"})
	}
	if a.QueueThreshold <= 0 || a.QueueThreshold > 1 {
		errs = append(errs, FieldError{"admission.queue_threshold", "must be in (0, 1]"})
	}
	if a.ResourceCheckInterval < 0 {
		errs = append(errs, FieldError{"admission.resource_check_interval", "must not be negative"})
	}
	return errs
}

func validateLimits(l *LimitsConfig) []FieldError {
	var errs []FieldError

	switch limits.FailurePolicy(l.FailurePolicy) {
	case limits.FailOpen, limits.FailClosed:
	default:
		errs = append(errs, FieldError{"limits.failure_policy", `must be "open" or "closed"`})
	}

	// Table validation, including the tier-ordering invariant, lives in
	// the limits resolver; building one here surfaces the same errors at
	// load time.
	if _, err := limits.NewResolver(l.BaseLimits, l.Multipliers); err != nil {
		errs = append(errs, FieldError{"limits", err.Error()})
	}

	for repo, ops := range l.RepositoryCaps {
		for op, vc := range ops {
			if vc.Hourly < 0 || vc.Daily < 0 {
				errs = append(errs, FieldError{
					Field:   fmt.Sprintf("limits.repository_caps.%s.%s", repo, op),
					Message: "caps must not be negative",
				})
			}
			if vc.Hourly > 0 && vc.Daily > 0 && vc.Daily < vc.Hourly {
				errs = append(errs, FieldError{
					Field:   fmt.Sprintf("limits.repository_caps.%s.%s", repo, op),
					Message: "daily cap must not be below the hourly cap",
				})
			}
		}
	}
	return errs
}

func validateStore(s *StoreConfig) []FieldError {
	var errs []FieldError

	switch s.Backend {
	case "memory", "redis", "sqlite":
	default:
		errs = append(errs, FieldError{"store.backend", `must be "memory", "redis", or "sqlite"`})
	}
	if s.Backend == "redis" && s.Redis.Addr == "" {
		errs = append(errs, FieldError{"store.redis.addr", "must not be empty"})
	}
	if s.Backend == "sqlite" && s.SQLite.Path == "" {
		errs = append(errs, FieldError{"store.sqlite.path", "must not be empty"})
	}
	return errs
}

func validateTelemetry(t *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch t.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, FieldError{"telemetry.logging.level", `must be one of "debug", "info", "warn", "error"`})
	}
	switch t.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, FieldError{"telemetry.logging.format", `must be "json" or "text"`})
	}
	if t.Metrics.Path != "" && !strings.HasPrefix(t.Metrics.Path, "/") {
		errs = append(errs, FieldError{"telemetry.metrics.path", "must start with /"})
	}
	return errs
}
