// Package internal holds helpers private to rolecalc.
//
// # Sub-packages
//
//   - flows: the authentication flow machine and its transitions
//   - logging: slog setup shared by the engine and the binaries
//   - rate: Redis-backed failed-attempt lockout used by the sandbox
//   - transport: JSON over HTTP with request ids and debug logging
package internal
