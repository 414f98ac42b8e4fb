// Package logging builds the structured logger shared by the engine, the
// command-line client and the sandbox server.
//
// Records are written through log/slog in JSON or text form. Passwords,
// codes, tokens and provider session handles are never passed to the logger.
package logging
