// Package server ties the gatekeeper together: it composes the admission
// controller, the tiered and repository rate limiters, and the telemetry
// endpoints into one HTTP server fronting the upstream graph service.
//
// # Routes
//
//   - GET /healthz - liveness probe (always 200)
//   - GET /readyz - readiness probe (counter store reachability)
//   - GET /status - admission health report plus component checks
//   - GET /version - build information
//   - GET /metrics - Prometheus exposition (when enabled)
//   - *           - gateway checkpoint, then reverse proxy to the upstream
//
// # Middleware Chain
//
// Requests pass through, outermost first:
//  1. Recovery: panics become 500s
//  2. RequestID: correlation ID generation and propagation
//  3. Logging: one structured line per request
//  4. Tracking: in-flight accounting feeding the admission queue view
//  5. Gateway: admission control and both rate-limit layers (proxied
//     paths only; infrastructure endpoints bypass it)
//
// # Graceful Shutdown
//
// Start blocks until SIGINT/SIGTERM, context cancellation, or
// RequestShutdown, then drains in-flight requests up to the configured
// shutdown timeout.
package server
