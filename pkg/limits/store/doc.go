// Package store provides the shared counter substrate for rate limiting.
//
// A Counter implements atomic fixed-window counting: each key tracks how
// many increments occurred in the current window, and the key expires on
// its own when the window ends. Three backends are provided:
//
//   - RedisCounter: shared across service instances, backed by a single
//     Lua script so concurrent increments from many processes never
//     under-count. This is the backend for multi-instance deployments.
//   - SQLiteCounter: single-node persistent counters. Windows survive
//     process restarts. Expired windows are swept on a cron schedule
//     because SQLite has no TTL mechanism.
//   - MemoryCounter: in-process fallback when no shared backend is
//     configured. Trades cross-instance accuracy for availability.
//
// All backends implement the same Counter interface and are selected by
// configuration at startup.
package store
