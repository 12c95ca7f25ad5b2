// Package metrics exposes the gatekeeper's Prometheus metrics.
//
// The Collector owns its own registry so tests never collide on global
// state. Metrics cover the three decision layers (admission, tier rate
// limiting, repository volume caps) plus HTTP request accounting.
package metrics
