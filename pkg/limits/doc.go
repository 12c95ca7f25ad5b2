// Package limits implements subscription-tier-aware, category-scoped rate
// limiting for the gatekeeper.
//
// Every request is classified into an EndpointCategory (graph_read,
// graph_write, query, analytics, ...) and the caller's subscription tier
// determines the budget for that category. Budgets are independent: one
// caller's graph_read usage never drains their analytics budget. Counters
// live in a shared store (see the store subpackage) so all gateway
// instances enforce one limit.
//
// A second, independent layer applies to shared curated data repositories:
// RepositoryLimiter caps hourly and daily volume per repository and
// operation, on top of (not instead of) the tier limiter, and statically
// blocks destructive operations on shared repositories outright.
package limits
