// Package health implements the gatekeeper's health checking.
//
// A Checker aggregates named component checks (counter store reachability,
// admission pressure) into liveness and readiness probes, plus a status
// endpoint that reports the full admission health view.
package health
