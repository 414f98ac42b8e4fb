package flows

import "github.com/MrEthical07/rolecalc/idp"

// Step is the coarse position of the authentication flow.
type Step uint8

const (
	StepAnonymous Step = iota
	StepAwaitingChallenge
	StepAwaitingConfirmation
	StepAuthenticated
)

func (s Step) String() string {
	switch s {
	case StepAnonymous:
		return "anonymous"
	case StepAwaitingChallenge:
		return "awaiting_challenge"
	case StepAwaitingConfirmation:
		return "awaiting_confirmation"
	case StepAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Challenge is the single outstanding provider challenge.
type Challenge struct {
	Kind       idp.ChallengeKind
	Session    string
	Identity   string
	Parameters map[string]string
}

// State is an immutable snapshot of the flow. Transitions return a new value.
//
// Generation increases every time a new flow starts or the current one is
// abandoned; responses belonging to an older generation are discarded.
type State struct {
	Step       Step
	Generation uint64

	// Challenge is set only in StepAwaitingChallenge.
	Challenge *Challenge
	// PendingIdentity is set only in StepAwaitingConfirmation.
	PendingIdentity string
	// PrefillIdentity is the last confirmed identity, offered for sign-in.
	PrefillIdentity string

	// Identity and Token are set only in StepAuthenticated.
	Identity string
	Token    string
}

// ChallengeKind returns the outstanding challenge kind, or "" when none.
func (s State) ChallengeKind() idp.ChallengeKind {
	if s.Challenge == nil {
		return ""
	}
	return s.Challenge.Kind
}

// Ticket identifies the flow a request was started for.
type Ticket struct {
	Generation uint64
	Handle     string
}

// TicketFor returns the ticket of the flow currently described by s.
func TicketFor(s State) Ticket {
	t := Ticket{Generation: s.Generation}
	if s.Challenge != nil {
		t.Handle = s.Challenge.Session
	}
	return t
}

// Matches reports whether t still refers to the flow in s.
func (t Ticket) Matches(s State) bool {
	if t.Generation != s.Generation {
		return false
	}
	if t.Handle == "" {
		return true
	}
	return s.Challenge != nil && s.Challenge.Session == t.Handle
}

// BeginFlow starts a fresh flow, discarding any outstanding challenge or
// pending confirmation.
func BeginFlow(s State) State {
	return State{
		Step:            StepAnonymous,
		Generation:      s.Generation + 1,
		PrefillIdentity: s.PrefillIdentity,
	}
}

// ApplyOutcome moves to Authenticated or AwaitingChallenge depending on out.
// Any other value leaves s unchanged.
func ApplyOutcome(s State, identity string, out idp.Outcome) State {
	switch o := out.(type) {
	case idp.Authenticated:
		return State{
			Step:       StepAuthenticated,
			Generation: s.Generation,
			Identity:   identity,
			Token:      o.IDToken,
		}
	case idp.ChallengeRequired:
		subject := o.Identity
		if subject == "" {
			subject = identity
		}
		return State{
			Step:       StepAwaitingChallenge,
			Generation: s.Generation,
			Challenge: &Challenge{
				Kind:       o.Kind,
				Session:    o.Session,
				Identity:   subject,
				Parameters: o.Parameters,
			},
			PrefillIdentity: s.PrefillIdentity,
		}
	default:
		return s
	}
}

// ApplyRegistered records a successful registration. An account the provider
// already confirmed goes straight back to Anonymous with the identity prefilled.
func ApplyRegistered(s State, ticket idp.RegistrationTicket) State {
	if ticket.Confirmed {
		return State{
			Step:            StepAnonymous,
			Generation:      s.Generation,
			PrefillIdentity: ticket.Identity,
		}
	}
	return State{
		Step:            StepAwaitingConfirmation,
		Generation:      s.Generation,
		PendingIdentity: ticket.Identity,
		PrefillIdentity: s.PrefillIdentity,
	}
}

// ApplyConfirmed returns to Anonymous with identity prefilled. It does not
// sign in.
func ApplyConfirmed(s State, identity string) State {
	return State{
		Step:            StepAnonymous,
		Generation:      s.Generation,
		PrefillIdentity: identity,
	}
}

// Abandon drops the current flow and returns to Anonymous. An authenticated
// state is returned unchanged.
func Abandon(s State) State {
	if s.Step == StepAuthenticated {
		return s
	}
	return State{
		Step:            StepAnonymous,
		Generation:      s.Generation + 1,
		PrefillIdentity: s.PrefillIdentity,
	}
}

// Reset clears everything, including the prefilled identity.
func Reset(s State) State {
	return State{Step: StepAnonymous, Generation: s.Generation + 1}
}
