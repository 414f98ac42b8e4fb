// Package flows contains the authentication state machine and the pure-function
// orchestrators that drive it.
//
// Each flow function (RunSignIn, RunRespond, RunRegister, ...) accepts a typed
// dependency struct and returns the resulting [State]. State values are immutable;
// the [Machine] swaps them under a lock and refuses to commit a response whose
// [Ticket] no longer matches the current flow.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the identity provider client, audit, and
// metrics. They do NOT own any of these resources; ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Import rolecalc (to avoid import cycles).
//   - Perform I/O directly; all I/O is mediated through dependency functions.
//   - Reset a flow because a challenge answer was wrong.
package flows
