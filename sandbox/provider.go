package sandbox

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/rolecalc/idp"
	"github.com/MrEthical07/rolecalc/internal"
	"github.com/MrEthical07/rolecalc/internal/rate"
	"github.com/MrEthical07/rolecalc/jwt"
	"github.com/MrEthical07/rolecalc/permission"
)

const (
	msgBadCredentials  = "Incorrect username or password."
	msgSessionExpired  = "Invalid session for the user, session is expired."
	msgCodeMismatch    = "Invalid code received for user"
	msgAttemptsExhaust = "Password attempts exceeded"
)

type providerError struct {
	status  int
	code    string
	message string
}

func (e *providerError) Error() string { return e.code + ": " + e.message }

func badRequest(code, message string) *providerError {
	return &providerError{status: http.StatusBadRequest, code: code, message: message}
}

func writeProviderError(w http.ResponseWriter, e *providerError) {
	writeProviderJSON(w, e.status, idp.ErrorResponse{Type: e.code, Message: e.message})
}

func writeProviderJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", idp.ContentType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// authSession is an open challenge.
type authSession struct {
	username string
	kind     idp.ChallengeKind
	code     string
	expires  time.Time
	attempts int
}

func (s *Sandbox) serveProvider(w http.ResponseWriter, r *http.Request) {
	target := r.Header.Get(idp.HeaderTarget)
	var (
		out any
		err error
	)
	switch target {
	case idp.TargetSignUp:
		var req idp.SignUpRequest
		if err = decodeProvider(r, &req); err == nil {
			out, err = s.signUp(r.Context(), req)
		}
	case idp.TargetConfirmSignUp:
		var req idp.ConfirmSignUpRequest
		if err = decodeProvider(r, &req); err == nil {
			out, err = s.confirmSignUp(req)
		}
	case idp.TargetInitiateAuth:
		var req idp.InitiateAuthRequest
		if err = decodeProvider(r, &req); err == nil {
			out, err = s.initiateAuth(r.Context(), req)
		}
	case idp.TargetRespondToAuthChallenge:
		var req idp.RespondToAuthChallengeRequest
		if err = decodeProvider(r, &req); err == nil {
			out, err = s.respondToChallenge(req)
		}
	default:
		err = badRequest("UnknownOperationException", fmt.Sprintf("Unknown operation %q", target))
	}

	if err != nil {
		var pe *providerError
		if !errors.As(err, &pe) {
			s.logger.Error("provider request failed", "target", target, "error", err)
			pe = &providerError{status: http.StatusInternalServerError, code: "InternalErrorException", message: "Internal error"}
		}
		s.logger.Debug("provider request rejected", "target", target, "code", pe.code)
		writeProviderError(w, pe)
		return
	}
	writeProviderJSON(w, http.StatusOK, out)
}

func decodeProvider(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return badRequest("SerializationException", "Invalid request body")
	}
	return nil
}

func (s *Sandbox) checkClient(clientID string) error {
	if clientID != s.cfg.ClientID {
		return badRequest("ResourceNotFoundException", fmt.Sprintf("User pool client %s does not exist.", clientID))
	}
	return nil
}

func (s *Sandbox) signUp(_ context.Context, req idp.SignUpRequest) (*idp.SignUpResponse, error) {
	if err := s.checkClient(req.ClientId); err != nil {
		return nil, err
	}
	username := strings.TrimSpace(req.Username)
	if username == "" {
		return nil, badRequest(idp.CodeInvalidParameter, "Username is required")
	}
	if err := s.hasher.CheckPolicy(req.Password); err != nil {
		return nil, badRequest(idp.CodeInvalidPassword, "Password did not conform with policy: "+err.Error())
	}

	u := User{Username: username, Enabled: true}
	for _, a := range req.UserAttributes {
		switch a.Name {
		case idp.AttrEmail:
			if err := s.validate.Var(a.Value, "email"); err != nil {
				return nil, badRequest(idp.CodeInvalidParameter, "Invalid email address format.")
			}
			u.Email = a.Value
		case idp.AttrPhone:
			if err := s.validate.Var(a.Value, "e164"); err != nil {
				return nil, badRequest(idp.CodeInvalidParameter, "Invalid phone number format.")
			}
			u.Phone = a.Value
		case idp.AttrCustomRole:
			u.CustomRole = a.Value
		}
	}
	if u.Email == "" && u.Phone == "" {
		return nil, badRequest(idp.CodeInvalidParameter, "An email or phone_number attribute is required")
	}
	if _, exists := s.dir.User(username); exists {
		return nil, badRequest(idp.CodeUsernameExists, "User already exists")
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}
	code, err := internal.NewOTP(6)
	if err != nil {
		return nil, err
	}
	u.PasswordHash = hash
	u.confirmCode = code
	u.confirmExpires = s.cfg.Now().Add(s.cfg.ConfirmationTTL)
	u = s.dir.Put(u)

	delivery := &idp.CodeDeliveryDetails{AttributeName: idp.AttrEmail, DeliveryMedium: "EMAIL", Destination: maskEmail(u.Email)}
	dest := u.Email
	if u.Email == "" {
		delivery = &idp.CodeDeliveryDetails{AttributeName: idp.AttrPhone, DeliveryMedium: "SMS", Destination: maskPhone(u.Phone)}
		dest = u.Phone
	}
	s.emitCode(CodeEvent{Kind: CodeConfirmSignUp, Username: u.Username, Destination: dest, Code: code})

	return &idp.SignUpResponse{
		UserConfirmed:       false,
		UserSub:             u.Sub,
		CodeDeliveryDetails: delivery,
	}, nil
}

// postConfirmationRole is the group a newly confirmed user joins: the
// requested custom:role when it names a calculator role, ASrole otherwise.
func postConfirmationRole(requested string) string {
	switch requested {
	case permission.RoleAddSubtract, permission.RoleDivideMultiply:
		return requested
	}
	return permission.RoleAddSubtract
}

func (s *Sandbox) confirmSignUp(req idp.ConfirmSignUpRequest) (struct{}, error) {
	if err := s.checkClient(req.ClientId); err != nil {
		return struct{}{}, err
	}
	var perr *providerError
	found := s.dir.Update(req.Username, func(u *User) {
		switch {
		case u.Confirmed:
			perr = badRequest(idp.CodeNotAuthorized, "User cannot be confirmed. Current status is CONFIRMED")
		case s.cfg.Now().After(u.confirmExpires):
			perr = badRequest(idp.CodeExpiredCode, "Invalid code provided, please request a code again.")
		case subtle.ConstantTimeCompare([]byte(u.confirmCode), []byte(strings.TrimSpace(req.ConfirmationCode))) != 1:
			perr = badRequest(idp.CodeCodeMismatch, "Invalid verification code provided, please try again.")
		default:
			role := postConfirmationRole(u.CustomRole)
			u.Confirmed = true
			u.confirmCode = ""
			u.CustomRole = role
			u.Groups = normalizeGroups(append(u.Groups, role))
		}
	})
	if !found {
		return struct{}{}, badRequest(idp.CodeUserNotFound, "Username/client id combination not found.")
	}
	if perr != nil {
		return struct{}{}, perr
	}
	s.logger.Info("user confirmed", "username", req.Username)
	return struct{}{}, nil
}

func (s *Sandbox) initiateAuth(ctx context.Context, req idp.InitiateAuthRequest) (*idp.AuthResponse, error) {
	if err := s.checkClient(req.ClientId); err != nil {
		return nil, err
	}
	username := strings.TrimSpace(req.AuthParameters[idp.ParamUsername])
	if username == "" {
		return nil, badRequest(idp.CodeInvalidParameter, "Missing required parameter USERNAME")
	}
	switch req.AuthFlow {
	case idp.FlowUserPassword:
		return s.passwordAuth(ctx, username, req.AuthParameters[idp.ParamPassword])
	case idp.FlowCustom:
		return s.customAuth(username)
	default:
		return nil, badRequest(idp.CodeInvalidParameter, fmt.Sprintf("Unsupported auth flow %q", req.AuthFlow))
	}
}

func (s *Sandbox) passwordAuth(ctx context.Context, username, password string) (*idp.AuthResponse, error) {
	if s.lockout != nil {
		if err := s.lockout.Check(ctx, username); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				return nil, badRequest(idp.CodeNotAuthorized, msgAttemptsExhaust)
			}
			s.logger.Warn("sign-in lockout unavailable", "error", err)
		}
	}

	u, ok := s.dir.User(username)
	if !ok {
		return nil, badRequest(idp.CodeUserNotFound, "User does not exist.")
	}
	match := false
	if u.PasswordHash != "" {
		var err error
		match, err = s.hasher.Verify(password, u.PasswordHash)
		if err != nil {
			s.logger.Debug("password verify error", "username", username, "error", err)
		}
	}
	if !match {
		if s.lockout != nil {
			if err := s.lockout.Fail(ctx, username); err != nil && !errors.Is(err, rate.ErrRateLimited) {
				s.logger.Warn("sign-in lockout unavailable", "error", err)
			}
		}
		return nil, badRequest(idp.CodeNotAuthorized, msgBadCredentials)
	}
	if !u.Confirmed {
		return nil, badRequest(idp.CodeUserNotConfirmed, "User is not confirmed.")
	}
	if !u.Enabled {
		return nil, badRequest(idp.CodeNotAuthorized, "User is disabled.")
	}
	if s.lockout != nil {
		if err := s.lockout.Reset(ctx, username); err != nil {
			s.logger.Warn("sign-in lockout unavailable", "error", err)
		}
	}

	switch u.MFA {
	case MFASMS:
		code, err := internal.NewOTP(6)
		if err != nil {
			return nil, err
		}
		handle := s.openSession(u.Username, idp.ChallengeSMSMFA, code)
		s.emitCode(CodeEvent{Kind: CodeSMSMFA, Username: u.Username, Destination: u.Phone, Code: code})
		return &idp.AuthResponse{
			ChallengeName: string(idp.ChallengeSMSMFA),
			Session:       handle,
			ChallengeParameters: map[string]string{
				"CODE_DELIVERY_DELIVERY_MEDIUM": "SMS",
				"CODE_DELIVERY_DESTINATION":     maskPhone(u.Phone),
			},
		}, nil
	case MFATOTP:
		handle := s.openSession(u.Username, idp.ChallengeTOTPMFA, "")
		return &idp.AuthResponse{
			ChallengeName:       string(idp.ChallengeTOTPMFA),
			Session:             handle,
			ChallengeParameters: map[string]string{},
		}, nil
	}
	return s.authenticated(u)
}

func (s *Sandbox) customAuth(username string) (*idp.AuthResponse, error) {
	u, ok := s.dir.User(username)
	if !ok {
		return nil, badRequest(idp.CodeUserNotFound, "User does not exist.")
	}
	if !u.Enabled {
		return nil, badRequest(idp.CodeNotAuthorized, "User is disabled.")
	}
	code, err := internal.NewOTP(6)
	if err != nil {
		return nil, err
	}
	handle := s.openSession(u.Username, idp.ChallengePhoneCustom, code)
	s.emitCode(CodeEvent{Kind: CodeCustomChallenge, Username: u.Username, Destination: u.Phone, Code: code})
	return &idp.AuthResponse{
		ChallengeName:       string(idp.ChallengePhoneCustom),
		Session:             handle,
		ChallengeParameters: map[string]string{"phone": lastDigits(u.Phone, 4)},
	}, nil
}

func (s *Sandbox) respondToChallenge(req idp.RespondToAuthChallengeRequest) (*idp.AuthResponse, error) {
	if err := s.checkClient(req.ClientId); err != nil {
		return nil, err
	}
	now := s.cfg.Now()

	s.mu.Lock()
	sess, ok := s.sessions[req.Session]
	if ok && now.After(sess.expires) {
		delete(s.sessions, req.Session)
		ok = false
	}
	if !ok {
		s.mu.Unlock()
		return nil, badRequest(idp.CodeNotAuthorized, msgSessionExpired)
	}
	if string(sess.kind) != req.ChallengeName {
		s.mu.Unlock()
		return nil, badRequest(idp.CodeInvalidParameter, fmt.Sprintf("Challenge %s does not match session", req.ChallengeName))
	}
	if req.ChallengeResponses[idp.ParamUsername] != sess.username {
		s.mu.Unlock()
		return nil, badRequest(idp.CodeNotAuthorized, msgBadCredentials)
	}

	var (
		answered bool
		err      error
	)
	switch sess.kind {
	case idp.ChallengeSMSMFA:
		answered = codeEqual(sess.code, req.ChallengeResponses[idp.ParamSMSCode])
	case idp.ChallengeTOTPMFA:
		u, found := s.dir.User(sess.username)
		if found {
			answered, err = s.totp.Verify(u.TOTPSecret, strings.TrimSpace(req.ChallengeResponses[idp.ParamTOTPCode]), now)
			if err != nil {
				s.logger.Debug("totp verify error", "username", sess.username, "error", err)
				answered = false
			}
		}
	case idp.ChallengePhoneCustom:
		answered = codeEqual(sess.code, req.ChallengeResponses[idp.ParamAnswer])
	}

	if !answered {
		if sess.kind == idp.ChallengePhoneCustom {
			delete(s.sessions, req.Session)
			s.mu.Unlock()
			return nil, badRequest(idp.CodeNotAuthorized, msgBadCredentials)
		}
		sess.attempts++
		if sess.attempts >= s.cfg.MaxMFAAttempts {
			delete(s.sessions, req.Session)
			s.mu.Unlock()
			return nil, badRequest(idp.CodeNotAuthorized, msgSessionExpired)
		}
		s.mu.Unlock()
		return nil, badRequest(idp.CodeCodeMismatch, msgCodeMismatch)
	}
	delete(s.sessions, req.Session)
	s.mu.Unlock()

	u, found := s.dir.User(sess.username)
	if !found {
		return nil, badRequest(idp.CodeUserNotFound, "User does not exist.")
	}
	if !u.Enabled {
		return nil, badRequest(idp.CodeNotAuthorized, "User is disabled.")
	}
	return s.authenticated(u)
}

func (s *Sandbox) openSession(username string, kind idp.ChallengeKind, code string) string {
	handle := uuid.NewString()
	now := s.cfg.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for h, sess := range s.sessions {
		if now.After(sess.expires) {
			delete(s.sessions, h)
		}
	}
	s.sessions[handle] = &authSession{
		username: username,
		kind:     kind,
		code:     code,
		expires:  now.Add(s.cfg.ChallengeTTL),
	}
	return handle
}

func (s *Sandbox) authenticated(u User) (*idp.AuthResponse, error) {
	idToken, err := s.issue(u, jwt.TokenUseID)
	if err != nil {
		return nil, err
	}
	accessToken, err := s.issue(u, jwt.TokenUseAccess)
	if err != nil {
		return nil, err
	}
	s.logger.Info("user authenticated", "username", u.Username)
	return &idp.AuthResponse{
		AuthenticationResult: &idp.AuthenticationResult{
			IdToken:      idToken,
			AccessToken:  accessToken,
			RefreshToken: uuid.NewString(),
			ExpiresIn:    int(s.cfg.TokenTTL / time.Second),
			TokenType:    "Bearer",
		},
	}, nil
}

func codeEqual(want, got string) bool {
	got = strings.TrimSpace(got)
	if want == "" || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}

func lastDigits(phone string, n int) string {
	digits := make([]byte, 0, len(phone))
	for i := 0; i < len(phone); i++ {
		if phone[i] >= '0' && phone[i] <= '9' {
			digits = append(digits, phone[i])
		}
	}
	if len(digits) > n {
		digits = digits[len(digits)-n:]
	}
	return string(digits)
}

func maskPhone(phone string) string {
	last := lastDigits(phone, 4)
	if last == "" {
		return ""
	}
	return "+*******" + last
}

func maskEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" {
		return ""
	}
	return local[:1] + "***@" + domain
}
