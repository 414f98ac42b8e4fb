// Package jwt decodes identity-provider tokens into claim sets and issues
// provider-style tokens for the sandbox.
//
// [DecodeClaims] never verifies signatures: the client trusts the transport and the
// provider that handed it the token. Decode failures are reported as [ErrDecode] and
// callers treat them as a principal with no roles. [Issuer] signs and verifies tokens
// and is used only by the in-process provider.
package jwt
