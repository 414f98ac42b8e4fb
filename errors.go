package rolecalc

import (
	"errors"
	"fmt"

	"github.com/MrEthical07/rolecalc/api"
	"github.com/MrEthical07/rolecalc/idp"
	"github.com/MrEthical07/rolecalc/internal/flows"
	"github.com/MrEthical07/rolecalc/internal/transport"
	"github.com/MrEthical07/rolecalc/jwt"
	"github.com/MrEthical07/rolecalc/permission"
	"github.com/MrEthical07/rolecalc/session"
)

var (
	// ErrPermissionDenied is matched by every [*PermissionDenied].
	ErrPermissionDenied = errors.New("permission denied")
	// ErrNotAuthenticated is returned by operations that need a live principal.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrSessionExpired is returned when the service rejected the token; the
	// session has been cleared.
	ErrSessionExpired = errors.New("session expired")
	// ErrNoChallenge is returned when a challenge answer is submitted with no
	// challenge outstanding.
	ErrNoChallenge = errors.New("no challenge outstanding")
	// ErrNoPendingConfirmation is returned by confirmation with no identity and no
	// pending registration.
	ErrNoPendingConfirmation = errors.New("no pending registration")
	// ErrFlowSuperseded is returned when a response arrives for a flow that a newer
	// flow already replaced. The response is discarded.
	ErrFlowSuperseded = errors.New("authentication flow superseded")
	// ErrEngineNotReady is returned by a zero or closed Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrInvalidInput is returned for requests rejected before any network call.
	ErrInvalidInput = errors.New("invalid input")
	// ErrAdminStale is returned by an AdminSurface whose session has ended.
	ErrAdminStale = errors.New("admin surface no longer bound to the current session")
	// ErrDivisionByZero is the local error marker for division by zero.
	ErrDivisionByZero = errors.New("division by zero")
)

// Errors defined by leaf packages, re-exported so callers need only this package.
var (
	// ErrDecode marks a malformed token. The principal gets no roles.
	ErrDecode = jwt.ErrDecode
	// ErrNetwork marks a transport failure reaching any service.
	ErrNetwork = transport.ErrNetwork
	// ErrSessionStoreUnavailable marks a Redis session backend failure.
	ErrSessionStoreUnavailable = session.ErrRedisUnavailable
)

// AuthError is a rejected identity-provider call. Its message is the
// provider's, unchanged.
type AuthError = idp.AuthError

// StatusError is a non-2xx response from the calculation or admin service.
type StatusError = api.StatusError

// PermissionDenied reports an operation refused by the local policy or by the
// service. It never clears the session.
type PermissionDenied struct {
	Operation permission.Operation
	// Remote is true when the service refused a request the local policy allowed.
	Remote  bool
	Message string
}

func (e *PermissionDenied) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Operation != "" {
		return fmt.Sprintf("permission denied for %s", e.Operation)
	}
	return ErrPermissionDenied.Error()
}

func (e *PermissionDenied) Unwrap() error { return ErrPermissionDenied }

func flowErrors() flows.AuthErrors {
	return flows.AuthErrors{
		EngineNotReady:        ErrEngineNotReady,
		NoChallenge:           ErrNoChallenge,
		NoPendingConfirmation: ErrNoPendingConfirmation,
		Superseded:            ErrFlowSuperseded,
	}
}

func mapLeafError(err error) error {
	if errors.Is(err, idp.ErrInvalidInput) {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return err
}
