// Arbor Gatekeeper is the admission-control and rate-limiting front end
// for the Arbor multi-tenant graph service.
//
// It sits between the load balancer and the graph service, providing:
//   - Resource-pressure admission control with priority-aware load shedding
//   - Tiered per-identity rate limits across endpoint categories
//   - Volume caps and operation deny-lists for shared data repositories
//   - Prometheus metrics and health endpoints
//
// Usage:
//
//	# Start the gatekeeper with default configuration
//	gatekeeper run
//
//	# Start with a custom configuration file
//	gatekeeper run --config /etc/gatekeeper/config.yaml
//
//	# Validate a configuration file without starting
//	gatekeeper validate --config /etc/gatekeeper/config.yaml
//
//	# Show version information
//	gatekeeper version
package main

func main() {
	Execute()
}
