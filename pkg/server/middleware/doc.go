// Package middleware contains the gatekeeper's HTTP middleware chain:
// panic recovery, request IDs, request logging, in-flight tracking, and
// the gateway itself, the per-request entry point that runs admission
// control and both rate-limiting layers before a request reaches the
// upstream graph service.
package middleware
