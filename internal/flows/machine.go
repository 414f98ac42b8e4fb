package flows

import (
	"errors"
	"sync"
)

// ErrSuperseded is returned when a response arrives for a flow that is no
// longer current.
var ErrSuperseded = errors.New("flow superseded")

// Machine holds the current [State]. All writes replace the state wholesale.
type Machine struct {
	mu    sync.Mutex
	state State
}

// State returns the current snapshot.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Apply replaces the state with fn(current) unconditionally.
func (m *Machine) Apply(fn func(State) State) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = fn(m.state)
	return m.state
}

// Start applies fn and returns a ticket for the resulting flow.
func (m *Machine) Start(fn func(State) State) Ticket {
	return TicketFor(m.Apply(fn))
}

// Commit applies fn only if t still matches the current flow. fn runs under
// the machine lock and must not call back into the Machine. If fn returns an
// error the state is left unchanged.
func (m *Machine) Commit(t Ticket, fn func(State) (State, error)) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !t.Matches(m.state) {
		return m.state, ErrSuperseded
	}
	next, err := fn(m.state)
	if err != nil {
		return m.state, err
	}
	m.state = next
	return m.state, nil
}
