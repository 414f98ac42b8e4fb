package rolecalc

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/rolecalc/api"
	"github.com/MrEthical07/rolecalc/idp"
	"github.com/MrEthical07/rolecalc/jwt"
	"github.com/MrEthical07/rolecalc/session"
)

const (
	auditEventSignInSuccess        = "sign_in_success"
	auditEventSignInFailure        = "sign_in_failure"
	auditEventChallengeIssued      = "challenge_issued"
	auditEventChallengeSuccess     = "challenge_success"
	auditEventChallengeFailure     = "challenge_failure"
	auditEventRegistrationSuccess  = "registration_success"
	auditEventRegistrationFailure  = "registration_failure"
	auditEventConfirmationSuccess  = "confirmation_success"
	auditEventConfirmationFailure  = "confirmation_failure"
	auditEventPhoneOTPRequested    = "phone_otp_requested"
	auditEventPhoneOTPFailure      = "phone_otp_failure"
	auditEventSessionRestored      = "session_restored"
	auditEventSessionCleared       = "session_cleared"
	auditEventLogout               = "logout"
	auditEventPermissionDenied     = "permission_denied"
	auditEventCalculation          = "calculation"
	auditEventRoleCatalogRefreshed = "role_catalog_refreshed"
	auditEventRolesUpdated         = "roles_updated"
	auditEventAdminAction          = "admin_action"
)

// AuditErrorCode is the stable error label written into audit events in place
// of the raw error text.
type AuditErrorCode string

const (
	auditErrPermissionDenied   AuditErrorCode = "permission_denied"
	auditErrNotAuthenticated   AuditErrorCode = "not_authenticated"
	auditErrSessionExpired     AuditErrorCode = "session_expired"
	auditErrNoChallenge        AuditErrorCode = "no_challenge"
	auditErrNoPending          AuditErrorCode = "no_pending_confirmation"
	auditErrSuperseded         AuditErrorCode = "superseded"
	auditErrInvalidInput       AuditErrorCode = "invalid_input"
	auditErrDecode             AuditErrorCode = "token_decode"
	auditErrNetwork            AuditErrorCode = "network"
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrCodeMismatch       AuditErrorCode = "code_mismatch"
	auditErrCodeExpired        AuditErrorCode = "code_expired"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrProvider           AuditErrorCode = "provider_rejected"
	auditErrService            AuditErrorCode = "service_rejected"
	auditErrDivisionByZero     AuditErrorCode = "division_by_zero"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	identity string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Identity:  identity,
		RequestID: requestIDFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	var authErr *idp.AuthError
	if errors.As(err, &authErr) {
		switch authErr.Code {
		case idp.CodeNotAuthorized, idp.CodeUserNotFound:
			return auditErrInvalidCredentials
		case idp.CodeCodeMismatch:
			return auditErrCodeMismatch
		case idp.CodeExpiredCode:
			return auditErrCodeExpired
		case idp.CodeUsernameExists:
			return auditErrDuplicate
		case idp.CodeTooManyRequests:
			return auditErrRateLimited
		case idp.CodeInvalidPassword, idp.CodeInvalidParameter:
			return auditErrInvalidInput
		default:
			return auditErrProvider
		}
	}

	switch {
	case errors.Is(err, ErrPermissionDenied):
		return auditErrPermissionDenied
	case errors.Is(err, ErrSessionExpired):
		return auditErrSessionExpired
	case errors.Is(err, ErrNotAuthenticated),
		errors.Is(err, ErrAdminStale):
		return auditErrNotAuthenticated
	case errors.Is(err, ErrNoChallenge):
		return auditErrNoChallenge
	case errors.Is(err, ErrNoPendingConfirmation):
		return auditErrNoPending
	case errors.Is(err, ErrFlowSuperseded):
		return auditErrSuperseded
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, idp.ErrInvalidInput):
		return auditErrInvalidInput
	case errors.Is(err, ErrDivisionByZero):
		return auditErrDivisionByZero
	case errors.Is(err, jwt.ErrDecode):
		return auditErrDecode
	case errors.Is(err, ErrNetwork):
		return auditErrNetwork
	case errors.Is(err, session.ErrRedisUnavailable),
		errors.Is(err, session.ErrFileUnavailable):
		return auditErrUnavailable
	}

	if _, ok := api.AsStatus(err); ok {
		return auditErrService
	}
	return auditErrInternal
}
