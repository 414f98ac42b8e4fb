package jwt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrDecode is returned when a token cannot be decoded into a claim set.
var ErrDecode = errors.New("token decode failed")

// Claims is the claim payload carried by identity and access tokens.
//
// Groups accepts either a single string or an array on the wire.
type Claims struct {
	Username    string           `json:"cognito:username,omitempty"`
	Email       string           `json:"email,omitempty"`
	PhoneNumber string           `json:"phone_number,omitempty"`
	Groups      jwt.ClaimStrings `json:"cognito:groups,omitempty"`
	CustomRole  string           `json:"custom:role,omitempty"`
	TokenUse    string           `json:"token_use,omitempty"`
	jwt.RegisteredClaims
}

// DecodeClaims parses the payload segment of token without verifying its
// signature. The header and signature segments are not inspected.
func DecodeClaims(token string) (*Claims, error) {
	parts := strings.Split(strings.TrimSpace(token), ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: expected 3 segments", ErrDecode)
	}

	raw, err := jwt.NewParser().DecodeSegment(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrDecode, err)
	}
	claims := &Claims{}
	if err := json.Unmarshal(raw, claims); err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrDecode, err)
	}
	return claims, nil
}

// Roles returns the group claim with empty and duplicate entries removed,
// preserving order.
func (c *Claims) Roles() []string {
	if c == nil || len(c.Groups) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(c.Groups))
	out := make([]string, 0, len(c.Groups))
	for _, g := range c.Groups {
		g = strings.TrimSpace(g)
		if g == "" {
			continue
		}
		if _, ok := seen[g]; ok {
			continue
		}
		seen[g] = struct{}{}
		out = append(out, g)
	}
	return out
}

// Identity returns the provider username, falling back to the subject.
func (c *Claims) Identity() string {
	if c == nil {
		return ""
	}
	if c.Username != "" {
		return c.Username
	}
	return c.Subject
}

// Expired reports whether the token carries an expiry at or before now. A token
// without an expiry is never reported as expired.
func (c *Claims) Expired(now time.Time) bool {
	if c == nil || c.ExpiresAt == nil {
		return false
	}
	return !now.Before(c.ExpiresAt.Time)
}
