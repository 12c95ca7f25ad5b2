// Package telemetry groups the observability subsystems: structured
// logging, Prometheus metrics, and health checking.
package telemetry
