// Package idp is the client for the hosted identity provider.
//
// Every operation is one JSON round trip to a single endpoint, the operation
// selected by the X-Amz-Target header. Responses are converted at this boundary
// into a closed [Outcome] union ([Authenticated] or [ChallengeRequired]) so callers
// never inspect raw response shapes. Rejections are returned as [*AuthError] carrying
// the provider's message verbatim.
package idp
