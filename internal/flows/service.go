package flows

import (
	"context"

	"github.com/MrEthical07/rolecalc/idp"
)

// Service is the flow runner built once by the root engine. It owns the
// [Machine]; dependencies are immutable after construction.
type Service struct {
	machine *Machine
	deps    AuthDeps
}

// New returns a flow service with immutable dependency wiring.
func New(deps AuthDeps) *Service {
	return &Service{machine: &Machine{}, deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s *Service) Initialized() bool {
	return s != nil && s.deps.SignIn != nil
}

func (s *Service) State() State {
	return s.machine.State()
}

func (s *Service) SignIn(ctx context.Context, identity, password string) (State, error) {
	return RunSignIn(ctx, s.machine, identity, password, s.deps)
}

func (s *Service) RequestPhoneOTP(ctx context.Context, phone string) (State, error) {
	return RunRequestPhoneOTP(ctx, s.machine, phone, s.deps)
}

func (s *Service) Respond(ctx context.Context, code string) (State, error) {
	return RunRespond(ctx, s.machine, code, s.deps)
}

func (s *Service) Register(ctx context.Context, in idp.RegisterInput) (State, error) {
	return RunRegister(ctx, s.machine, in, s.deps)
}

func (s *Service) Confirm(ctx context.Context, identity, code string) (State, error) {
	return RunConfirm(ctx, s.machine, identity, code, s.deps)
}

func (s *Service) Abandon() State {
	return s.machine.Apply(Abandon)
}

func (s *Service) Reset() State {
	return s.machine.Apply(Reset)
}

// Restore places the machine in StepAuthenticated for a credential loaded from
// storage, starting a new generation. It reports false and leaves the state
// alone unless the machine is Anonymous.
func (s *Service) Restore(identity, token string) (State, bool) {
	ok := false
	st := s.machine.Apply(func(cur State) State {
		if cur.Step != StepAnonymous {
			return cur
		}
		ok = true
		return State{
			Step:       StepAuthenticated,
			Generation: cur.Generation + 1,
			Identity:   identity,
			Token:      token,
		}
	})
	return st, ok
}
