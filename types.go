package rolecalc

import (
	"net/http"
	"time"

	"github.com/MrEthical07/rolecalc/api"
	"github.com/MrEthical07/rolecalc/idp"
	"github.com/MrEthical07/rolecalc/internal/flows"
	"github.com/MrEthical07/rolecalc/permission"
	"github.com/MrEthical07/rolecalc/session"
)

// Operation is one of the four calculator operations.
type Operation = permission.Operation

const (
	OpAdd      = permission.OpAdd
	OpSubtract = permission.OpSubtract
	OpMultiply = permission.OpMultiply
	OpDivide   = permission.OpDivide
)

// RoleDefinition is one entry of the role catalog.
type RoleDefinition = permission.RoleDefinition

// Built-in role names.
const (
	RoleAddSubtract    = permission.RoleAddSubtract
	RoleDivideMultiply = permission.RoleDivideMultiply
	RoleAdmin          = permission.RoleAdmin
)

// RegisterInput is the registration form. Contact is an email address or an
// E.164 phone number; Role is requested, the provider decides.
type RegisterInput = idp.RegisterInput

// ChallengeKind names the challenge the provider is waiting on.
type ChallengeKind = idp.ChallengeKind

const (
	ChallengeSMSMFA              = idp.ChallengeSMSMFA
	ChallengeTOTPMFA             = idp.ChallengeTOTPMFA
	ChallengePhoneCustom         = idp.ChallengePhoneCustom
	ChallengePendingConfirmation = idp.ChallengePendingConfirmation
)

// FlowStep is the coarse position of the sign-in or registration flow.
type FlowStep = flows.Step

const (
	StepAnonymous            = flows.StepAnonymous
	StepAwaitingChallenge    = flows.StepAwaitingChallenge
	StepAwaitingConfirmation = flows.StepAwaitingConfirmation
	StepAuthenticated        = flows.StepAuthenticated
)

// FlowState is what a caller needs to render the current flow. The provider
// session handle is never exposed.
type FlowState struct {
	Step FlowStep
	// Challenge is the outstanding challenge kind in StepAwaitingChallenge.
	Challenge ChallengeKind
	// ChallengeIdentity is the identity the challenge was issued for.
	ChallengeIdentity string
	// ChallengeParameters carries provider hints such as the code delivery
	// destination.
	ChallengeParameters map[string]string
	// PendingIdentity is the registration awaiting confirmation.
	PendingIdentity string
	// PrefillIdentity is the last confirmed identity, offered for sign-in.
	PrefillIdentity string
	// Identity is set once authenticated.
	Identity string
}

func flowStateFrom(s flows.State) FlowState {
	out := FlowState{
		Step:            s.Step,
		PendingIdentity: s.PendingIdentity,
		PrefillIdentity: s.PrefillIdentity,
		Identity:        s.Identity,
	}
	if s.Challenge != nil {
		out.Challenge = s.Challenge.Kind
		out.ChallengeIdentity = s.Challenge.Identity
		if len(s.Challenge.Parameters) > 0 {
			out.ChallengeParameters = make(map[string]string, len(s.Challenge.Parameters))
			for k, v := range s.Challenge.Parameters {
				out.ChallengeParameters[k] = v
			}
		}
	}
	return out
}

// Principal is the authenticated identity and the roles derived from its
// token. A Principal is replaced wholesale, never edited.
type Principal struct {
	Identity string
	Token    string
	Roles    []string
	// ExpiresAt is the token's exp claim, zero when absent or undecodable.
	ExpiresAt time.Time
	// DecodeErr is set when the token could not be decoded; Roles is empty.
	DecodeErr error
}

// CalculationResult is one answered calculation.
type CalculationResult struct {
	Operand1  float64
	Operand2  float64
	Operation Operation
	Result    float64
	// History is the service's recent history, newest first. Empty offline.
	History []api.HistoryEntry
	// Offline is true when the result was computed locally because the
	// service was unreachable.
	Offline bool
}

// Expression renders the calculation as "a op b = r".
func (r CalculationResult) Expression() string {
	return FormatExpression(r.Operand1, r.Operand2, r.Operation, r.Result)
}

// HistoryEntry is one stored calculation.
type HistoryEntry = api.HistoryEntry

// UserRecord is a user as listed by the admin service.
type UserRecord = api.UserRecord

// RoleRecord is a role as listed by the admin service.
type RoleRecord = api.RoleRecord

// AdminOverview is the first paint of the admin panel.
type AdminOverview struct {
	Users   []UserRecord
	Roles   []RoleRecord
	History []HistoryEntry
}

// HTTPDoer sends HTTP requests. *http.Client satisfies it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// SessionStore persists the live principal across restarts.
type SessionStore = session.Store

// SessionRecord is the persisted form of a principal.
type SessionRecord = session.Record
