// Package password hashes and verifies credentials with argon2id. The sandbox
// identity provider stores user passwords through it.
//
// # Output format
//
// Hashes are encoded in PHC string format with unpadded base64:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Argon2.NeedsUpgrade] reports hashes produced with weaker parameters so the
// caller can re-hash after the next successful sign-in.
//
// # What this package must NOT do
//
//   - Store passwords. Callers supply plaintext and keep the hash.
//   - Log plaintext passwords.
package password
