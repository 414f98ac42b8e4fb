package flows

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/rolecalc/idp"
)

// RunSignIn starts a password sign-in. Any outstanding challenge is discarded
// before the request is sent.
func RunSignIn(ctx context.Context, m *Machine, identity, password string, deps AuthDeps) (State, error) {
	deps.normalize()
	if m == nil || deps.SignIn == nil {
		return State{}, deps.Errors.EngineNotReady
	}
	identity = strings.TrimSpace(identity)

	ticket := m.Start(BeginFlow)

	out, err := deps.SignIn(ctx, identity, password)
	if err != nil {
		deps.MetricInc(deps.Metrics.SignInFailure)
		deps.EmitAudit(ctx, deps.Events.SignInFailure, false, identity, err, nil)
		return m.State(), err
	}

	return commitOutcome(ctx, m, ticket, identity, out, deps, deps.Metrics.SignInSuccess, deps.Events.SignInSuccess)
}

// RunRequestPhoneOTP starts a phone custom-auth sign-in.
func RunRequestPhoneOTP(ctx context.Context, m *Machine, phone string, deps AuthDeps) (State, error) {
	deps.normalize()
	if m == nil || deps.RequestPhoneOTP == nil {
		return State{}, deps.Errors.EngineNotReady
	}

	ticket := m.Start(BeginFlow)

	ch, err := deps.RequestPhoneOTP(ctx, phone)
	if err != nil {
		deps.EmitAudit(ctx, deps.Events.PhoneOTPFailure, false, "", err, nil)
		return m.State(), err
	}
	deps.MetricInc(deps.Metrics.PhoneOTPRequested)
	deps.EmitAudit(ctx, deps.Events.PhoneOTPRequested, true, ch.Identity, nil, nil)

	out := idp.ChallengeRequired{
		Kind:       idp.ChallengePhoneCustom,
		Session:    ch.Session,
		Identity:   ch.Identity,
		Parameters: ch.Parameters,
	}
	return commitOutcome(ctx, m, ticket, ch.Identity, out, deps, deps.Metrics.SignInSuccess, deps.Events.SignInSuccess)
}

// RunRespond answers the outstanding challenge. A rejected answer leaves the
// flow in StepAwaitingChallenge so the caller may retry.
func RunRespond(ctx context.Context, m *Machine, code string, deps AuthDeps) (State, error) {
	deps.normalize()
	if m == nil || deps.RespondToMFA == nil || deps.RespondToPhoneOTP == nil {
		return State{}, deps.Errors.EngineNotReady
	}

	current := m.State()
	if current.Step != StepAwaitingChallenge || current.Challenge == nil {
		return current, deps.Errors.NoChallenge
	}
	ticket := TicketFor(current)
	ch := *current.Challenge

	var (
		out idp.Outcome
		err error
	)
	switch {
	case ch.Kind.IsMFA():
		out, err = deps.RespondToMFA(ctx, ch.Identity, code, ch.Session, ch.Kind)
	case ch.Kind == idp.ChallengePhoneCustom:
		out, err = deps.RespondToPhoneOTP(ctx, ch.Identity, code, ch.Session)
	default:
		return current, deps.Errors.NoChallenge
	}
	if err != nil {
		deps.MetricInc(deps.Metrics.ChallengeFailure)
		deps.EmitAudit(ctx, deps.Events.ChallengeFailure, false, ch.Identity, err, func() map[string]string {
			return map[string]string{"challenge": string(ch.Kind)}
		})
		if !ticket.Matches(m.State()) {
			deps.MetricInc(deps.Metrics.FlowSuperseded)
			return m.State(), deps.Errors.Superseded
		}
		return m.State(), err
	}

	return commitOutcome(ctx, m, ticket, ch.Identity, out, deps, deps.Metrics.ChallengeSuccess, deps.Events.ChallengeSuccess)
}

// RunRegister submits a registration and moves to StepAwaitingConfirmation.
func RunRegister(ctx context.Context, m *Machine, in idp.RegisterInput, deps AuthDeps) (State, error) {
	deps.normalize()
	if m == nil || deps.Register == nil {
		return State{}, deps.Errors.EngineNotReady
	}

	ticket := m.Start(BeginFlow)

	reg, err := deps.Register(ctx, in)
	if err != nil {
		deps.MetricInc(deps.Metrics.RegistrationFailure)
		deps.EmitAudit(ctx, deps.Events.RegistrationFailure, false, in.Identity, err, nil)
		return m.State(), err
	}
	if reg.Identity == "" {
		reg.Identity = strings.TrimSpace(in.Identity)
	}
	deps.MetricInc(deps.Metrics.RegistrationSuccess)
	deps.EmitAudit(ctx, deps.Events.RegistrationSuccess, true, reg.Identity, nil, func() map[string]string {
		return map[string]string{"role": in.Role}
	})

	return commit(m, ticket, deps, func(s State) (State, error) {
		return ApplyRegistered(s, reg), nil
	})
}

// RunConfirm confirms a registration. An empty identity uses the pending one.
func RunConfirm(ctx context.Context, m *Machine, identity, code string, deps AuthDeps) (State, error) {
	deps.normalize()
	if m == nil || deps.ConfirmRegistration == nil {
		return State{}, deps.Errors.EngineNotReady
	}

	current := m.State()
	identity = strings.TrimSpace(identity)
	if identity == "" {
		if current.Step != StepAwaitingConfirmation {
			return current, deps.Errors.NoPendingConfirmation
		}
		identity = current.PendingIdentity
	}
	ticket := TicketFor(current)

	if err := deps.ConfirmRegistration(ctx, identity, code); err != nil {
		deps.MetricInc(deps.Metrics.ConfirmationFailure)
		deps.EmitAudit(ctx, deps.Events.ConfirmationFailure, false, identity, err, nil)
		return m.State(), err
	}
	deps.MetricInc(deps.Metrics.ConfirmationSuccess)
	deps.EmitAudit(ctx, deps.Events.ConfirmationSuccess, true, identity, nil, nil)

	return commit(m, ticket, deps, func(s State) (State, error) {
		if s.Step == StepAuthenticated {
			return s, nil
		}
		return ApplyConfirmed(s, identity), nil
	})
}

func commitOutcome(ctx context.Context, m *Machine, ticket Ticket, identity string, out idp.Outcome, deps AuthDeps, successMetric int, successEvent string) (State, error) {
	return commit(m, ticket, deps, func(s State) (State, error) {
		next := ApplyOutcome(s, identity, out)
		switch next.Step {
		case StepAuthenticated:
			if deps.OnAuthenticated != nil {
				if err := deps.OnAuthenticated(ctx, next); err != nil {
					return s, err
				}
			}
			deps.MetricInc(successMetric)
			deps.EmitAudit(ctx, successEvent, true, identity, nil, nil)
		case StepAwaitingChallenge:
			kind := next.Challenge.Kind
			deps.MetricInc(deps.Metrics.ChallengeIssued)
			deps.EmitAudit(ctx, deps.Events.ChallengeIssued, true, next.Challenge.Identity, nil, func() map[string]string {
				return map[string]string{"challenge": string(kind)}
			})
		}
		return next, nil
	})
}

func commit(m *Machine, ticket Ticket, deps AuthDeps, fn func(State) (State, error)) (State, error) {
	s, err := m.Commit(ticket, fn)
	if errors.Is(err, ErrSuperseded) {
		deps.MetricInc(deps.Metrics.FlowSuperseded)
		return s, deps.Errors.Superseded
	}
	return s, err
}
