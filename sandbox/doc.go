// Package sandbox runs the identity provider and the calculation service in
// process, speaking the same wire protocols as the hosted deployment.
//
// The provider answers SignUp, ConfirmSignUp, InitiateAuth and
// RespondToAuthChallenge on a single endpoint selected by X-Amz-Target. It
// supports password sign-in with optional SMS or TOTP MFA and a phone OTP
// custom challenge. One-time codes are reported through Config.OnCode instead
// of being delivered.
//
// The service authorizes every request from the caller's live directory entry:
// a token for a deleted or disabled user is refused with 401, and calculation
// permission is evaluated against the groups the user holds now, not the ones
// in the token.
//
// A Sandbox is for tests and local development. State lives in memory and is
// lost on exit.
package sandbox
