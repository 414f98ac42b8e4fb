package rolecalc

import (
	"context"
	"strings"

	"github.com/MrEthical07/rolecalc/internal/flows"
)

func (e *Engine) flowDeps() flows.AuthDeps {
	return flows.AuthDeps{
		SignIn:              e.provider.SignIn,
		RespondToMFA:        e.provider.RespondToMFA,
		RequestPhoneOTP:     e.provider.RequestPhoneOTP,
		RespondToPhoneOTP:   e.provider.RespondToPhoneOTP,
		Register:            e.provider.Register,
		ConfirmRegistration: e.provider.ConfirmRegistration,
		OnAuthenticated:     e.onAuthenticated,
		MetricInc: func(id int) {
			e.metricInc(MetricID(id))
		},
		EmitAudit: e.emitAudit,
		Metrics: flows.AuthMetrics{
			SignInSuccess:       int(MetricSignInSuccess),
			SignInFailure:       int(MetricSignInFailure),
			ChallengeIssued:     int(MetricChallengeIssued),
			ChallengeSuccess:    int(MetricChallengeSuccess),
			ChallengeFailure:    int(MetricChallengeFailure),
			RegistrationSuccess: int(MetricRegistrationSuccess),
			RegistrationFailure: int(MetricRegistrationFailure),
			ConfirmationSuccess: int(MetricConfirmationSuccess),
			ConfirmationFailure: int(MetricConfirmationFailure),
			PhoneOTPRequested:   int(MetricPhoneOTPRequested),
			FlowSuperseded:      int(MetricFlowSuperseded),
		},
		Events: flows.AuthEvents{
			SignInSuccess:       auditEventSignInSuccess,
			SignInFailure:       auditEventSignInFailure,
			ChallengeIssued:     auditEventChallengeIssued,
			ChallengeSuccess:    auditEventChallengeSuccess,
			ChallengeFailure:    auditEventChallengeFailure,
			RegistrationSuccess: auditEventRegistrationSuccess,
			RegistrationFailure: auditEventRegistrationFailure,
			ConfirmationSuccess: auditEventConfirmationSuccess,
			ConfirmationFailure: auditEventConfirmationFailure,
			PhoneOTPRequested:   auditEventPhoneOTPRequested,
			PhoneOTPFailure:     auditEventPhoneOTPFailure,
		},
		Errors: flowErrors(),
	}
}

// onAuthenticated runs under the flow lock and publishes the new principal
// with the built-in catalog. The previous principal, its catalog and any admin
// surface bound to it are discarded.
func (e *Engine) onAuthenticated(_ context.Context, s flows.State) error {
	principal := e.principalFromToken(s.Identity, s.Token)
	e.current.Store(e.newContext(principal, nil))
	return nil
}

// afterAuthenticated persists the principal and loads the role catalog. Both
// are best effort; failures are logged and do not undo the sign-in.
func (e *Engine) afterAuthenticated(ctx context.Context, st flows.State) {
	sc := e.load()
	if sc == nil || st.Step != flows.StepAuthenticated || sc.principal.Token != st.Token {
		return
	}
	if err := e.persist(ctx, sc.principal); err != nil {
		e.logger.Warn("persisting session failed", "identity", sc.principal.Identity, "error", err)
	}
	if e.config.API.LoadRolesOnAuth && sc.principal.DecodeErr == nil {
		if _, err := e.RefreshRoles(ctx); err != nil {
			e.logger.Info("role catalog not loaded; using built-in roles", "identity", sc.principal.Identity, "error", err)
		}
	}
}

func (e *Engine) finishFlow(ctx context.Context, st flows.State, err error) (FlowState, error) {
	if err != nil {
		return flowStateFrom(st), mapLeafError(err)
	}
	if st.Step == flows.StepAuthenticated {
		e.afterAuthenticated(ctx, st)
	}
	return flowStateFrom(st), nil
}

// SignIn starts a password sign-in. Any outstanding challenge or pending
// confirmation is discarded first. The returned state is StepAuthenticated or
// StepAwaitingChallenge.
func (e *Engine) SignIn(ctx context.Context, identity, password string) (FlowState, error) {
	if err := e.ready(); err != nil {
		return FlowState{}, err
	}
	if strings.TrimSpace(identity) == "" || password == "" {
		return e.FlowState(), ErrInvalidInput
	}
	st, err := e.flows.SignIn(ctx, identity, password)
	return e.finishFlow(ctx, st, err)
}

// RequestPhoneOTP starts a phone sign-in. The identity is derived from the
// digits of phone; the provider sends a one-time code.
func (e *Engine) RequestPhoneOTP(ctx context.Context, phone string) (FlowState, error) {
	if err := e.ready(); err != nil {
		return FlowState{}, err
	}
	st, err := e.flows.RequestPhoneOTP(ctx, phone)
	return e.finishFlow(ctx, st, err)
}

// RespondToChallenge answers the outstanding MFA or phone challenge. A wrong
// code returns the provider's AuthError and keeps the challenge outstanding.
// If a newer flow started while the answer was in flight, ErrFlowSuperseded is
// returned and nothing changes.
func (e *Engine) RespondToChallenge(ctx context.Context, code string) (FlowState, error) {
	if err := e.ready(); err != nil {
		return FlowState{}, err
	}
	if strings.TrimSpace(code) == "" {
		return e.FlowState(), ErrInvalidInput
	}
	st, err := e.flows.Respond(ctx, strings.TrimSpace(code))
	return e.finishFlow(ctx, st, err)
}

// Register creates an account and moves to StepAwaitingConfirmation.
func (e *Engine) Register(ctx context.Context, in RegisterInput) (FlowState, error) {
	if err := e.ready(); err != nil {
		return FlowState{}, err
	}
	st, err := e.flows.Register(ctx, in)
	return e.finishFlow(ctx, st, err)
}

// ConfirmRegistration confirms identity with code. An empty identity confirms
// the pending registration. On success the flow returns to StepAnonymous with
// the identity offered as PrefillIdentity; the user is not signed in.
func (e *Engine) ConfirmRegistration(ctx context.Context, identity, code string) (FlowState, error) {
	if err := e.ready(); err != nil {
		return FlowState{}, err
	}
	if strings.TrimSpace(code) == "" {
		return e.FlowState(), ErrInvalidInput
	}
	st, err := e.flows.Confirm(ctx, identity, strings.TrimSpace(code))
	return e.finishFlow(ctx, st, err)
}

// AbandonFlow drops an outstanding challenge or pending confirmation. A late
// response to the abandoned flow is ignored. It does nothing once
// authenticated; use Logout.
func (e *Engine) AbandonFlow() FlowState {
	if e.ready() != nil {
		return FlowState{}
	}
	return flowStateFrom(e.flows.Abandon())
}

// FlowState returns the current flow position.
func (e *Engine) FlowState() FlowState {
	if e.ready() != nil {
		return FlowState{}
	}
	return flowStateFrom(e.flows.State())
}

// PhoneIdentity returns the identity a phone sign-in would use for phone.
func (e *Engine) PhoneIdentity(phone string) string {
	if e == nil || e.provider == nil {
		return ""
	}
	return e.provider.PhoneIdentity(phone)
}
