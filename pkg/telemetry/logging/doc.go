// Package logging wraps log/slog with level and format parsing and the
// context plumbing used to carry request-scoped fields through the
// gateway.
package logging
