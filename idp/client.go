package idp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/MrEthical07/rolecalc/internal/transport"
)

// DefaultPhoneIdentityPrefix tags identities derived from phone numbers.
const DefaultPhoneIdentityPrefix = "phone_"

// Config configures a [Client].
type Config struct {
	Endpoint            string
	ClientID            string
	PhoneIdentityPrefix string
}

// Client talks to the identity provider. It holds no flow state.
type Client struct {
	cfg       Config
	transport *transport.Client
	validate  *validator.Validate
}

// RegisterInput is the registration form. Contact is an email address or an
// E.164 phone number.
type RegisterInput struct {
	Identity string `validate:"required,max=128,printascii"`
	Contact  string `validate:"required,email|e164"`
	Password string `validate:"required,min=8"`
	Role     string `validate:"omitempty,max=64,alphanum"`
}

// NewClient validates cfg and returns a Client using t for transport.
func NewClient(cfg Config, t *transport.Client) (*Client, error) {
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	if cfg.Endpoint == "" {
		return nil, errors.New("identity provider endpoint required")
	}
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, errors.New("identity provider client id required")
	}
	if cfg.PhoneIdentityPrefix == "" {
		cfg.PhoneIdentityPrefix = DefaultPhoneIdentityPrefix
	}
	if t == nil {
		t = transport.New(nil, nil)
	}
	return &Client{cfg: cfg, transport: t, validate: validator.New()}, nil
}

// Register creates an unconfirmed account. The contact becomes the email or
// phone_number attribute; a non-empty role is sent as custom:role.
func (c *Client) Register(ctx context.Context, in RegisterInput) (RegistrationTicket, error) {
	in.Identity = strings.TrimSpace(in.Identity)
	in.Contact = strings.TrimSpace(in.Contact)
	in.Role = strings.TrimSpace(in.Role)
	if err := c.validate.Struct(in); err != nil {
		return RegistrationTicket{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	attrs := []Attribute{contactAttribute(in.Contact)}
	if in.Role != "" {
		attrs = append(attrs, Attribute{Name: AttrCustomRole, Value: in.Role})
	}

	var out SignUpResponse
	err := c.call(ctx, TargetSignUp, SignUpRequest{
		ClientId:       c.cfg.ClientID,
		Username:       in.Identity,
		Password:       in.Password,
		UserAttributes: attrs,
	}, &out, "Sign up failed")
	if err != nil {
		return RegistrationTicket{}, err
	}

	ticket := RegistrationTicket{
		Identity:  in.Identity,
		UserSub:   out.UserSub,
		Confirmed: out.UserConfirmed,
	}
	if out.CodeDeliveryDetails != nil {
		ticket.Delivery = *out.CodeDeliveryDetails
	}
	return ticket, nil
}

// ConfirmRegistration submits the confirmation code for identity.
func (c *Client) ConfirmRegistration(ctx context.Context, identity, code string) error {
	identity = strings.TrimSpace(identity)
	code = strings.TrimSpace(code)
	if identity == "" || code == "" {
		return fmt.Errorf("%w: identity and code required", ErrInvalidInput)
	}
	return c.call(ctx, TargetConfirmSignUp, ConfirmSignUpRequest{
		ClientId:         c.cfg.ClientID,
		Username:         identity,
		ConfirmationCode: code,
	}, nil, "Confirmation failed")
}

// SignIn starts a password sign-in.
func (c *Client) SignIn(ctx context.Context, identity, password string) (Outcome, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" || password == "" {
		return nil, fmt.Errorf("%w: identity and password required", ErrInvalidInput)
	}

	var out AuthResponse
	err := c.call(ctx, TargetInitiateAuth, InitiateAuthRequest{
		AuthFlow: FlowUserPassword,
		ClientId: c.cfg.ClientID,
		AuthParameters: map[string]string{
			ParamUsername: identity,
			ParamPassword: password,
		},
	}, &out, "Sign in failed")
	if err != nil {
		return nil, err
	}
	return toOutcome(identity, out)
}

// RespondToMFA answers an SMS or TOTP challenge.
func (c *Client) RespondToMFA(ctx context.Context, identity, code, session string, kind ChallengeKind) (Outcome, error) {
	var key string
	switch kind {
	case ChallengeSMSMFA:
		key = ParamSMSCode
	case ChallengeTOTPMFA:
		key = ParamTOTPCode
	default:
		return nil, fmt.Errorf("%w: %q is not an MFA challenge", ErrInvalidInput, kind)
	}
	return c.respond(ctx, identity, session, kind, key, code)
}

// RequestPhoneOTP starts a custom-auth sign-in for the identity derived from
// phone. The provider delivers the code out of band.
func (c *Client) RequestPhoneOTP(ctx context.Context, phone string) (PhoneChallenge, error) {
	identity := DerivePhoneIdentity(c.cfg.PhoneIdentityPrefix, phone)
	if identity == "" {
		return PhoneChallenge{}, fmt.Errorf("%w: phone number has no digits", ErrInvalidInput)
	}

	var out AuthResponse
	err := c.call(ctx, TargetInitiateAuth, InitiateAuthRequest{
		AuthFlow: FlowCustom,
		ClientId: c.cfg.ClientID,
		AuthParameters: map[string]string{
			ParamUsername: identity,
		},
	}, &out, "Failed to send code")
	if err != nil {
		return PhoneChallenge{}, err
	}

	if ChallengeKind(out.ChallengeName) != ChallengePhoneCustom || out.Session == "" {
		return PhoneChallenge{}, fmt.Errorf("%w: expected %s, got %q", ErrUnexpectedResponse, ChallengePhoneCustom, out.ChallengeName)
	}
	return PhoneChallenge{
		Identity:   identity,
		Session:    out.Session,
		Parameters: out.ChallengeParameters,
	}, nil
}

// RespondToPhoneOTP answers the custom challenge opened by [Client.RequestPhoneOTP].
func (c *Client) RespondToPhoneOTP(ctx context.Context, identity, code, session string) (Outcome, error) {
	return c.respond(ctx, identity, session, ChallengePhoneCustom, ParamAnswer, code)
}

// PhoneIdentity returns the identity this client derives for phone.
func (c *Client) PhoneIdentity(phone string) string {
	return DerivePhoneIdentity(c.cfg.PhoneIdentityPrefix, phone)
}

func (c *Client) respond(ctx context.Context, identity, session string, kind ChallengeKind, key, code string) (Outcome, error) {
	identity = strings.TrimSpace(identity)
	code = strings.TrimSpace(code)
	if identity == "" || code == "" || session == "" {
		return nil, fmt.Errorf("%w: identity, code and session required", ErrInvalidInput)
	}

	var out AuthResponse
	err := c.call(ctx, TargetRespondToAuthChallenge, RespondToAuthChallengeRequest{
		ChallengeName: string(kind),
		ClientId:      c.cfg.ClientID,
		Session:       session,
		ChallengeResponses: map[string]string{
			ParamUsername: identity,
			key:           code,
		},
	}, &out, "Verification failed")
	if err != nil {
		return nil, err
	}
	return toOutcome(identity, out)
}

func (c *Client) call(ctx context.Context, target string, body, out any, fallback string) error {
	resp, err := c.transport.Do(ctx, transport.Request{
		Method:      http.MethodPost,
		URL:         c.cfg.Endpoint,
		Header:      http.Header{HeaderTarget: []string{target}},
		ContentType: ContentType,
		Body:        body,
	})
	if err != nil {
		return err
	}

	if !resp.OK() {
		var e ErrorResponse
		_ = resp.DecodeJSON(&e)
		reason := e.Message
		if reason == "" {
			reason = fallback
		}
		return &AuthError{Status: resp.Status, Code: shortCode(e.Type), Reason: reason}
	}

	if out == nil {
		return nil
	}
	if err := resp.DecodeJSON(out); err != nil {
		return fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
	}
	return nil
}

func toOutcome(identity string, out AuthResponse) (Outcome, error) {
	if out.ChallengeName == "" {
		if out.AuthenticationResult == nil || out.AuthenticationResult.IdToken == "" {
			return nil, fmt.Errorf("%w: no tokens and no challenge", ErrUnexpectedResponse)
		}
		r := out.AuthenticationResult
		return Authenticated{
			IDToken:      r.IdToken,
			AccessToken:  r.AccessToken,
			RefreshToken: r.RefreshToken,
			ExpiresIn:    r.ExpiresIn,
		}, nil
	}

	kind, ok := ParseChallengeKind(out.ChallengeName)
	if !ok {
		return nil, &AuthError{
			Status: http.StatusOK,
			Code:   CodeUnsupportedChallenge,
			Reason: fmt.Sprintf("Unsupported challenge: %s", out.ChallengeName),
		}
	}
	if out.Session == "" {
		return nil, fmt.Errorf("%w: challenge %s without session", ErrUnexpectedResponse, kind)
	}
	return ChallengeRequired{
		Kind:       kind,
		Session:    out.Session,
		Identity:   identity,
		Parameters: out.ChallengeParameters,
	}, nil
}

func contactAttribute(contact string) Attribute {
	if strings.Contains(contact, "@") {
		return Attribute{Name: AttrEmail, Value: contact}
	}
	return Attribute{Name: AttrPhone, Value: contact}
}

func shortCode(t string) string {
	if i := strings.LastIndexByte(t, '#'); i >= 0 {
		return t[i+1:]
	}
	return t
}

// DerivePhoneIdentity strips every non-digit from phone and prefixes the result.
// It returns "" when phone contains no digits.
func DerivePhoneIdentity(prefix, phone string) string {
	var b strings.Builder
	b.Grow(len(prefix) + len(phone))
	b.WriteString(prefix)
	n := 0
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
			n++
		}
	}
	if n == 0 {
		return ""
	}
	return b.String()
}
