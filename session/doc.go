// Package session persists the client's credential (identity plus token) across
// process restarts.
//
// # Binary encoding
//
// Records are stored in a compact versioned binary format. The encoder is
// append-only: new versions add fields but never reinterpret old ones.
//
// # Backends
//
// [RedisStore] keeps records in Redis with a TTL bounded by the token expiry,
// [FileStore] keeps one 0600 file per key, and [MemoryStore] is process-local.
//
// # What this package must NOT do
//
//   - Import rolecalc, jwt, or permission (no upward imports).
//   - Interpret the token or derive roles from it.
//   - Log token contents.
package session
