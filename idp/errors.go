package idp

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is returned for requests rejected before any call is made.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnexpectedResponse is returned when a 2xx body matches no known shape.
	ErrUnexpectedResponse = errors.New("unexpected identity provider response")
)

// Provider error codes the client reacts to.
const (
	CodeNotAuthorized        = "NotAuthorizedException"
	CodeCodeMismatch         = "CodeMismatchException"
	CodeExpiredCode          = "ExpiredCodeException"
	CodeUsernameExists       = "UsernameExistsException"
	CodeInvalidPassword      = "InvalidPasswordException"
	CodeInvalidParameter     = "InvalidParameterException"
	CodeUserNotFound         = "UserNotFoundException"
	CodeUserNotConfirmed     = "UserNotConfirmedException"
	CodeTooManyRequests      = "TooManyRequestsException"
	CodeUnsupportedChallenge = "UnsupportedChallengeException"
)

// AuthError is a rejected identity-provider call. Error returns Reason
// unchanged so it can be shown to the user as-is.
type AuthError struct {
	Status int
	Code   string
	Reason string
}

func (e *AuthError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	if e.Code != "" {
		return e.Code
	}
	return fmt.Sprintf("identity provider rejected request (%d)", e.Status)
}

// Is matches any *AuthError target with an empty Code, or one with the same Code.
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	if !ok {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// IsCode reports whether err is an [*AuthError] with the given code.
func IsCode(err error, code string) bool {
	var ae *AuthError
	return errors.As(err, &ae) && ae.Code == code
}
