// Package rolecalc is the client for a role-gated calculator: it signs users
// in against a hosted identity provider, derives their permitted arithmetic
// operations from token group claims and server-defined roles, and gates every
// calculation and admin call on that policy.
//
// The package is safe for concurrent use: Engine methods may be called from
// multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// rolecalc is the public surface. It exposes [Engine], [Builder], [Config],
// [AdminSurface] and value types (Principal, FlowState, CalculationResult).
// Flow sequencing lives in internal/flows; wire protocols live in idp and api;
// role evaluation lives in permission.
//
// # Session context
//
// The live principal, its role catalog and the derived policy form one
// immutable value. Sign-in, role refresh, logout and token rejection each
// publish a new value; no field is edited in place.
//
// # What this package must NOT do
//
//   - Treat its own permission check as authoritative. The service re-checks
//     every call and its 403 wins.
//   - Verify token signatures. That is the identity provider's job.
//   - Log passwords, codes, tokens or challenge session handles.
package rolecalc
