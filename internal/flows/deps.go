package flows

import (
	"context"

	"github.com/MrEthical07/rolecalc/idp"
)

// AuthMetrics carries metric IDs used by the authentication flows.
type AuthMetrics struct {
	SignInSuccess       int
	SignInFailure       int
	ChallengeIssued     int
	ChallengeSuccess    int
	ChallengeFailure    int
	RegistrationSuccess int
	RegistrationFailure int
	ConfirmationSuccess int
	ConfirmationFailure int
	PhoneOTPRequested   int
	FlowSuperseded      int
}

// AuthEvents carries audit event names used by the authentication flows.
type AuthEvents struct {
	SignInSuccess       string
	SignInFailure       string
	ChallengeIssued     string
	ChallengeSuccess    string
	ChallengeFailure    string
	RegistrationSuccess string
	RegistrationFailure string
	ConfirmationSuccess string
	ConfirmationFailure string
	PhoneOTPRequested   string
	PhoneOTPFailure     string
}

// AuthErrors carries host-level sentinel errors used by the authentication flows.
type AuthErrors struct {
	EngineNotReady        error
	NoChallenge           error
	NoPendingConfirmation error
	Superseded            error
}

// AuthDeps captures the authentication flow dependencies.
type AuthDeps struct {
	SignIn              func(ctx context.Context, identity, password string) (idp.Outcome, error)
	RespondToMFA        func(ctx context.Context, identity, code, session string, kind idp.ChallengeKind) (idp.Outcome, error)
	RequestPhoneOTP     func(ctx context.Context, phone string) (idp.PhoneChallenge, error)
	RespondToPhoneOTP   func(ctx context.Context, identity, code, session string) (idp.Outcome, error)
	Register            func(ctx context.Context, in idp.RegisterInput) (idp.RegistrationTicket, error)
	ConfirmRegistration func(ctx context.Context, identity, code string) error

	// OnAuthenticated runs under the machine lock when a flow reaches
	// StepAuthenticated. Returning an error keeps the previous state.
	OnAuthenticated func(ctx context.Context, s State) error

	MetricInc func(int)
	EmitAudit func(ctx context.Context, event string, success bool, identity string, err error, metadata func() map[string]string)

	Metrics AuthMetrics
	Events  AuthEvents
	Errors  AuthErrors
}

func (d *AuthDeps) normalize() {
	if d.MetricInc == nil {
		d.MetricInc = func(int) {}
	}
	if d.EmitAudit == nil {
		d.EmitAudit = func(context.Context, string, bool, string, error, func() map[string]string) {}
	}
	if d.Errors.Superseded == nil {
		d.Errors.Superseded = ErrSuperseded
	}
}
