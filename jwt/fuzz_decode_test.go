package jwt

import (
	"testing"
	"time"
)

// FuzzDecodeClaims feeds arbitrary strings to the unverified decoder.
// Goal: no panics; failures are always ErrDecode.
func FuzzDecodeClaims(f *testing.F) {
	iss, err := NewIssuer(IssuerConfig{TTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: []byte("fuzz-secret-fuzz-secret")})
	if err != nil {
		f.Fatal(err)
	}
	valid, err := iss.Issue(IssueInput{Username: "u", Groups: []string{"ASrole"}, SingleGroupAsScalar: true})
	if err != nil {
		f.Fatal(err)
	}

	f.Add(valid)
	f.Add("")
	f.Add("a.b.c")
	f.Add("..")
	f.Add("eyJhbGciOiJub25lIn0.eyJjb2duaXRvOmdyb3VwcyI6bnVsbH0.")

	f.Fuzz(func(t *testing.T, token string) {
		claims, err := DecodeClaims(token)
		if err != nil {
			if claims != nil {
				t.Fatal("claims must be nil on error")
			}
			return
		}
		_ = claims.Roles()
	})
}
