package idp

// ChallengeKind names an intermediate authentication step.
type ChallengeKind string

const (
	ChallengePassword            ChallengeKind = "PASSWORD"
	ChallengeSMSMFA              ChallengeKind = "SMS_MFA"
	ChallengeTOTPMFA             ChallengeKind = "SOFTWARE_TOKEN_MFA"
	ChallengePhoneCustom         ChallengeKind = "CUSTOM_CHALLENGE"
	ChallengePendingConfirmation ChallengeKind = "PENDING_CONFIRMATION"
)

// ParseChallengeKind maps a provider challenge name. Only challenges a client
// can answer are accepted.
func ParseChallengeKind(name string) (ChallengeKind, bool) {
	switch k := ChallengeKind(name); k {
	case ChallengeSMSMFA, ChallengeTOTPMFA, ChallengePhoneCustom:
		return k, true
	}
	return "", false
}

// IsMFA reports whether k is answered with an MFA code.
func (k ChallengeKind) IsMFA() bool {
	return k == ChallengeSMSMFA || k == ChallengeTOTPMFA
}

func (k ChallengeKind) String() string { return string(k) }

// Outcome is the result of a sign-in step. It is either [Authenticated] or
// [ChallengeRequired].
type Outcome interface {
	outcome()
}

// Authenticated carries the issued tokens.
type Authenticated struct {
	IDToken      string
	AccessToken  string
	RefreshToken string
	ExpiresIn    int
}

// ChallengeRequired means the provider needs another answer before issuing
// tokens. Session is the one-shot handle the answer must quote.
type ChallengeRequired struct {
	Kind       ChallengeKind
	Session    string
	Identity   string
	Parameters map[string]string
}

func (Authenticated) outcome()     {}
func (ChallengeRequired) outcome() {}

// RegistrationTicket is the result of a successful registration.
type RegistrationTicket struct {
	Identity  string
	UserSub   string
	Confirmed bool
	Delivery  CodeDeliveryDetails
}

// PhoneChallenge is the open custom challenge for a phone sign-in.
type PhoneChallenge struct {
	Identity   string
	Session    string
	Parameters map[string]string
}
