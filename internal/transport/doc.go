// Package transport performs the JSON-over-HTTP round trips shared by the
// identity-provider client and the calculation service client.
//
// Transport failures (dial, TLS, timeouts, truncated bodies) are wrapped with
// [ErrNetwork]. Non-2xx responses are not errors at this layer; callers classify
// them by status.
package transport
