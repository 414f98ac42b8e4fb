package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the algorithm an [Issuer] signs with.
type SigningMethod string

const (
	MethodEd25519 SigningMethod = "ed25519"
	MethodHS256   SigningMethod = "hs256"
)

// Token use values.
const (
	TokenUseID     = "id"
	TokenUseAccess = "access"
)

// IssuerConfig configures an [Issuer].
type IssuerConfig struct {
	TTL           time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
}

// Issuer signs and verifies provider tokens.
//
// Issuer instances are configured once and treated as immutable.
type Issuer struct {
	config IssuerConfig
}

// IssueInput is the principal data embedded in an issued token.
type IssueInput struct {
	Subject     string
	Username    string
	Email       string
	PhoneNumber string
	Groups      []string
	CustomRole  string
	TokenUse    string

	// SingleGroupAsScalar emits a one-element group claim as a bare string, the
	// way some providers do.
	SingleGroupAsScalar bool
}

// issuedClaims mirrors Claims but lets the group claim be a string or array.
type issuedClaims struct {
	Username    string `json:"cognito:username,omitempty"`
	Email       string `json:"email,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
	Groups      any    `json:"cognito:groups,omitempty"`
	CustomRole  string `json:"custom:role,omitempty"`
	TokenUse    string `json:"token_use,omitempty"`
	jwt.RegisteredClaims
}

// NewIssuer validates cfg and returns an [Issuer].
func NewIssuer(cfg IssuerConfig) (*Issuer, error) {
	if cfg.TTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("hs256 requires private key")
		}
	case MethodEd25519:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("ed25519 requires private key")
		}
		if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
			return nil, err
		}
		if len(cfg.PublicKey) == 0 {
			return nil, errors.New("ed25519 requires public key")
		}
		if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("unsupported signing method")
	}
	return &Issuer{config: cfg}, nil
}

// Issue signs a token for in.
func (i *Issuer) Issue(in IssueInput) (string, error) {
	now := time.Now()
	claims := issuedClaims{
		Username:    in.Username,
		Email:       in.Email,
		PhoneNumber: in.PhoneNumber,
		CustomRole:  in.CustomRole,
		TokenUse:    in.TokenUse,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   in.Subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(i.config.TTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    i.config.Issuer,
		},
	}
	if i.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{i.config.Audience}
	}
	switch {
	case len(in.Groups) == 1 && in.SingleGroupAsScalar:
		claims.Groups = in.Groups[0]
	case len(in.Groups) > 0:
		claims.Groups = append([]string(nil), in.Groups...)
	}

	token := jwt.NewWithClaims(i.method(), claims)
	if i.config.KeyID != "" {
		token.Header["kid"] = i.config.KeyID
	}

	key, err := i.signKey()
	if err != nil {
		return "", err
	}
	return token.SignedString(key)
}

// Verify checks the signature, issuer, audience and expiry of token.
func (i *Issuer) Verify(token string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{i.method().Alg()}),
		jwt.WithExpirationRequired(),
	}
	if i.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(i.config.Leeway))
	}
	if i.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(i.config.Issuer))
	}
	if i.config.Audience != "" {
		options = append(options, jwt.WithAudience(i.config.Audience))
	}

	parsed, err := jwt.NewParser(options...).ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != i.method().Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		if i.config.KeyID != "" {
			kid, _ := t.Header["kid"].(string)
			if kid != i.config.KeyID {
				return nil, errors.New("unknown kid")
			}
		}
		return i.verifyKey()
	})
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

func (i *Issuer) method() jwt.SigningMethod {
	switch i.config.SigningMethod {
	case MethodHS256:
		return jwt.SigningMethodHS256
	default:
		return jwt.SigningMethodEdDSA
	}
}

func (i *Issuer) signKey() (interface{}, error) {
	switch i.config.SigningMethod {
	case MethodHS256:
		return i.config.PrivateKey, nil
	default:
		return parseEdPrivateKey(i.config.PrivateKey)
	}
}

func (i *Issuer) verifyKey() (interface{}, error) {
	switch i.config.SigningMethod {
	case MethodHS256:
		return i.config.PrivateKey, nil
	default:
		return parseEdPublicKey(i.config.PublicKey)
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
