// Package middleware exposes HTTP middleware that authenticates requests with
// provider-issued tokens.
//
// # Guards
//
//   - [Guard] verifies the Authorization token and stores its claims.
//   - [RequireGroup] admits only callers whose group claim holds a group.
//
// # What this package must NOT do
//
//   - Issue tokens.
//   - Decide per-operation permissions. Handlers do that with the stored claims.
package middleware
