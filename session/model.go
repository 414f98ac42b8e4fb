package session

import "time"

// Record is a persisted credential. ExpiresAt is the token expiry in unix
// seconds when known, zero otherwise.
type Record struct {
	Identity  string
	Token     string
	SavedAt   int64
	ExpiresAt int64
}

// TTL returns how long r should be kept from now. It returns fallback when
// the expiry is unknown and a non-positive duration when already expired.
func (r *Record) TTL(now time.Time, fallback time.Duration) time.Duration {
	if r.ExpiresAt == 0 {
		return fallback
	}
	return time.Unix(r.ExpiresAt, 0).Sub(now)
}
