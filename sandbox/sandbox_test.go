package sandbox

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/rolecalc/api"
	"github.com/MrEthical07/rolecalc/idp"
	"github.com/MrEthical07/rolecalc/internal/transport"
	"github.com/MrEthical07/rolecalc/password"
	"github.com/MrEthical07/rolecalc/permission"
)

const testClientID = "sandbox-client"

func fastPasswords() password.Config {
	return password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	}
}

type codeLog struct {
	mu     sync.Mutex
	events []CodeEvent
}

func (l *codeLog) record(ev CodeEvent) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *codeLog) last(t *testing.T, kind string) CodeEvent {
	t.Helper()
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.events) - 1; i >= 0; i-- {
		if l.events[i].Kind == kind {
			return l.events[i]
		}
	}
	t.Fatalf("no %s code issued", kind)
	return CodeEvent{}
}

type fixture struct {
	sb       *Sandbox
	codes    *codeLog
	provider *idp.Client
	service  *api.Client
	now      *time.Time
}

func newFixture(t *testing.T, mutate func(*Config)) *fixture {
	t.Helper()
	codes := &codeLog{}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cfg := Config{
		ClientID: testClientID,
		Password: fastPasswords(),
		OnCode:   codes.record,
		Now:      func() time.Time { return now },
	}
	if mutate != nil {
		mutate(&cfg)
	}
	sb, err := New(cfg)
	require.NoError(t, err)

	srv := httptest.NewServer(sb.Handler())
	t.Cleanup(srv.Close)
	tc := transport.New(srv.Client(), nil)

	provider, err := idp.NewClient(idp.Config{Endpoint: srv.URL + "/idp", ClientID: testClientID}, tc)
	require.NoError(t, err)
	service, err := api.NewClient(api.Config{Endpoint: srv.URL + "/api"}, tc)
	require.NoError(t, err)

	return &fixture{sb: sb, codes: codes, provider: provider, service: service, now: &now}
}

func (f *fixture) signIn(t *testing.T, username, pw string) string {
	t.Helper()
	out, err := f.provider.SignIn(context.Background(), username, pw)
	require.NoError(t, err)
	auth, ok := out.(idp.Authenticated)
	require.True(t, ok, "expected tokens, got %T", out)
	return auth.IDToken
}

func TestSignUpConfirmAssignsPostConfirmationRole(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	ticket, err := f.provider.Register(ctx, idp.RegisterInput{
		Identity: "carol",
		Contact:  "carol@example.test",
		Password: "correct-horse",
		Role:     "DMrole",
	})
	require.NoError(t, err)
	require.False(t, ticket.Confirmed)
	require.NotEmpty(t, ticket.UserSub)
	require.Equal(t, "EMAIL", ticket.Delivery.DeliveryMedium)

	_, err = f.provider.SignIn(ctx, "carol", "correct-horse")
	require.True(t, idp.IsCode(err, idp.CodeUserNotConfirmed), "got %v", err)

	err = f.provider.ConfirmRegistration(ctx, "carol", "000000x")
	require.True(t, idp.IsCode(err, idp.CodeCodeMismatch), "got %v", err)

	code := f.codes.last(t, CodeConfirmSignUp)
	require.Equal(t, "carol@example.test", code.Destination)
	require.NoError(t, f.provider.ConfirmRegistration(ctx, "carol", code.Code))

	u, ok := f.sb.Directory().User("carol")
	require.True(t, ok)
	require.Equal(t, []string{permission.RoleDivideMultiply}, u.Groups)
	require.Equal(t, StatusConfirmed, u.Status())

	err = f.provider.ConfirmRegistration(ctx, "carol", code.Code)
	require.True(t, idp.IsCode(err, idp.CodeNotAuthorized), "got %v", err)
}

func TestSignUpUnknownRoleFallsBackToAddSubtract(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.provider.Register(ctx, idp.RegisterInput{
		Identity: "dave",
		Contact:  "+14155550100",
		Password: "correct-horse",
		Role:     "AdminRole",
	})
	require.NoError(t, err)
	code := f.codes.last(t, CodeConfirmSignUp)
	require.Equal(t, "+14155550100", code.Destination)
	require.NoError(t, f.provider.ConfirmRegistration(ctx, "dave", code.Code))

	u, _ := f.sb.Directory().User("dave")
	require.Equal(t, []string{permission.RoleAddSubtract}, u.Groups)
	require.Equal(t, permission.RoleAddSubtract, u.CustomRole)
}

func TestSignUpRejections(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.sb.AddUser(UserSpec{Username: "erin", Password: "correct-horse", Email: "erin@example.test"})
	require.NoError(t, err)

	_, err = f.provider.Register(ctx, idp.RegisterInput{Identity: "erin", Contact: "erin@example.test", Password: "correct-horse"})
	require.True(t, idp.IsCode(err, idp.CodeUsernameExists), "got %v", err)

	// The client checks min=8 itself, so go around it.
	_, err = f.sb.signUp(ctx, idp.SignUpRequest{
		ClientId:       testClientID,
		Username:       "frank",
		Password:       "short",
		UserAttributes: []idp.Attribute{{Name: idp.AttrEmail, Value: "frank@example.test"}},
	})
	require.ErrorContains(t, err, idp.CodeInvalidPassword)
}

func TestConfirmationCodeExpires(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.provider.Register(ctx, idp.RegisterInput{Identity: "gina", Contact: "gina@example.test", Password: "correct-horse"})
	require.NoError(t, err)
	code := f.codes.last(t, CodeConfirmSignUp)

	*f.now = f.now.Add(25 * time.Hour)
	err = f.provider.ConfirmRegistration(ctx, "gina", code.Code)
	require.True(t, idp.IsCode(err, idp.CodeExpiredCode), "got %v", err)
}

func TestWrongClientIDRejected(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.sb.initiateAuth(context.Background(), idp.InitiateAuthRequest{
		AuthFlow:       idp.FlowUserPassword,
		ClientId:       "someone-else",
		AuthParameters: map[string]string{idp.ParamUsername: "x", idp.ParamPassword: "y"},
	})
	require.ErrorContains(t, err, "ResourceNotFoundException")
}

func TestPasswordSignInIssuesVerifiableTokens(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.SingleGroupAsScalar = true })
	_, err := f.sb.AddUser(UserSpec{Username: "alice", Password: "correct-horse", Email: "alice@example.test", Groups: []string{permission.RoleAddSubtract}})
	require.NoError(t, err)

	token := f.signIn(t, "alice", "correct-horse")
	claims, err := f.sb.Issuer().Verify(token)
	require.NoError(t, err)
	require.Equal(t, "alice", claims.Identity())
	require.Equal(t, []string{permission.RoleAddSubtract}, claims.Roles())

	_, err = f.provider.SignIn(context.Background(), "alice", "wrong-horse")
	require.True(t, idp.IsCode(err, idp.CodeNotAuthorized), "got %v", err)
	require.EqualError(t, err, msgBadCredentials)

	_, err = f.provider.SignIn(context.Background(), "nobody", "correct-horse")
	require.True(t, idp.IsCode(err, idp.CodeUserNotFound), "got %v", err)
}

func TestDisabledUserCannotSignIn(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.sb.AddUser(UserSpec{Username: "hank", Password: "correct-horse", Disabled: true})
	require.NoError(t, err)

	_, err = f.provider.SignIn(context.Background(), "hank", "correct-horse")
	require.True(t, idp.IsCode(err, idp.CodeNotAuthorized), "got %v", err)
}

func TestSMSMFAWrongCodeKeepsSessionUntilAttemptsRunOut(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.MaxMFAAttempts = 2 })
	ctx := context.Background()
	_, err := f.sb.AddUser(UserSpec{Username: "ivy", Password: "correct-horse", Phone: "+14155550111", MFA: MFASMS, Groups: []string{permission.RoleAddSubtract}})
	require.NoError(t, err)

	out, err := f.provider.SignIn(ctx, "ivy", "correct-horse")
	require.NoError(t, err)
	ch, ok := out.(idp.ChallengeRequired)
	require.True(t, ok)
	require.Equal(t, idp.ChallengeSMSMFA, ch.Kind)
	require.Equal(t, "+*******0111", ch.Parameters["CODE_DELIVERY_DESTINATION"])

	_, err = f.provider.RespondToMFA(ctx, "ivy", "999999x", ch.Session, idp.ChallengeSMSMFA)
	require.True(t, idp.IsCode(err, idp.CodeCodeMismatch), "got %v", err)

	code := f.codes.last(t, CodeSMSMFA)
	out, err = f.provider.RespondToMFA(ctx, "ivy", code.Code, ch.Session, idp.ChallengeSMSMFA)
	require.NoError(t, err)
	require.IsType(t, idp.Authenticated{}, out)

	// Second sign-in: burn every attempt.
	out, err = f.provider.SignIn(ctx, "ivy", "correct-horse")
	require.NoError(t, err)
	ch = out.(idp.ChallengeRequired)
	_, err = f.provider.RespondToMFA(ctx, "ivy", "999999x", ch.Session, idp.ChallengeSMSMFA)
	require.True(t, idp.IsCode(err, idp.CodeCodeMismatch))
	_, err = f.provider.RespondToMFA(ctx, "ivy", "999999x", ch.Session, idp.ChallengeSMSMFA)
	require.True(t, idp.IsCode(err, idp.CodeNotAuthorized), "got %v", err)

	code = f.codes.last(t, CodeSMSMFA)
	_, err = f.provider.RespondToMFA(ctx, "ivy", code.Code, ch.Session, idp.ChallengeSMSMFA)
	require.True(t, idp.IsCode(err, idp.CodeNotAuthorized), "session must be gone, got %v", err)
}

func TestTOTPChallenge(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	u, err := f.sb.AddUser(UserSpec{Username: "jack", Password: "correct-horse", MFA: MFATOTP})
	require.NoError(t, err)
	require.NotEmpty(t, u.TOTPSecret)

	out, err := f.provider.SignIn(ctx, "jack", "correct-horse")
	require.NoError(t, err)
	ch := out.(idp.ChallengeRequired)
	require.Equal(t, idp.ChallengeTOTPMFA, ch.Kind)

	code, err := f.sb.TOTP().Code(u.TOTPSecret, *f.now)
	require.NoError(t, err)
	out, err = f.provider.RespondToMFA(ctx, "jack", code, ch.Session, idp.ChallengeTOTPMFA)
	require.NoError(t, err)
	require.IsType(t, idp.Authenticated{}, out)
}

func TestChallengeSessionExpires(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.sb.AddUser(UserSpec{Username: "kim", Password: "correct-horse", Phone: "+14155550122", MFA: MFASMS})
	require.NoError(t, err)

	out, err := f.provider.SignIn(ctx, "kim", "correct-horse")
	require.NoError(t, err)
	ch := out.(idp.ChallengeRequired)
	code := f.codes.last(t, CodeSMSMFA)

	*f.now = f.now.Add(4 * time.Minute)
	_, err = f.provider.RespondToMFA(ctx, "kim", code.Code, ch.Session, idp.ChallengeSMSMFA)
	require.True(t, idp.IsCode(err, idp.CodeNotAuthorized), "got %v", err)
	require.EqualError(t, err, msgSessionExpired)
}

func TestPhoneOTPWrongAnswerEndsSession(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	identity := f.provider.PhoneIdentity("+91 98-949 54524")
	require.Equal(t, "phone_919894954524", identity)
	_, err := f.sb.AddUser(UserSpec{Username: identity, Phone: "+919894954524", Groups: []string{permission.RoleAddSubtract}})
	require.NoError(t, err)

	ch, err := f.provider.RequestPhoneOTP(ctx, "919894954524")
	require.NoError(t, err)
	require.Equal(t, identity, ch.Identity)
	require.Equal(t, "4524", ch.Parameters["phone"])

	_, err = f.provider.RespondToPhoneOTP(ctx, identity, "000000x", ch.Session)
	require.True(t, idp.IsCode(err, idp.CodeNotAuthorized), "got %v", err)

	code := f.codes.last(t, CodeCustomChallenge)
	_, err = f.provider.RespondToPhoneOTP(ctx, identity, code.Code, ch.Session)
	require.True(t, idp.IsCode(err, idp.CodeNotAuthorized), "one wrong answer ends the challenge, got %v", err)

	ch, err = f.provider.RequestPhoneOTP(ctx, "+91 98949 54524")
	require.NoError(t, err)
	code = f.codes.last(t, CodeCustomChallenge)
	out, err := f.provider.RespondToPhoneOTP(ctx, identity, code.Code, ch.Session)
	require.NoError(t, err)
	require.IsType(t, idp.Authenticated{}, out)
}

func TestPhoneOTPUnknownUser(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.provider.RequestPhoneOTP(context.Background(), "+15550000000")
	require.True(t, idp.IsCode(err, idp.CodeUserNotFound), "got %v", err)
}

func TestLockoutAfterRepeatedFailures(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	f := newFixture(t, func(c *Config) {
		c.Redis = rdb
		c.MaxSignInFailures = 2
		c.LockoutWindow = time.Minute
	})
	ctx := context.Background()
	_, err := f.sb.AddUser(UserSpec{Username: "lou", Password: "correct-horse"})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = f.provider.SignIn(ctx, "lou", "wrong-horse")
		require.EqualError(t, err, msgBadCredentials)
	}
	_, err = f.provider.SignIn(ctx, "lou", "correct-horse")
	require.EqualError(t, err, msgAttemptsExhaust)

	mr.FastForward(2 * time.Minute)
	f.signIn(t, "lou", "correct-horse")
}

func TestProviderRateLimit(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.ProviderRateLimit = 2 })
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := f.provider.SignIn(ctx, "nobody", "correct-horse")
		require.True(t, idp.IsCode(err, idp.CodeUserNotFound))
	}
	_, err := f.provider.SignIn(ctx, "nobody", "correct-horse")
	require.True(t, idp.IsCode(err, idp.CodeTooManyRequests), "got %v", err)
}

func TestCalculateEnforcesLiveGroups(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.sb.AddUser(UserSpec{Username: "mia", Password: "correct-horse", Groups: []string{permission.RoleAddSubtract}})
	require.NoError(t, err)
	token := f.signIn(t, "mia", "correct-horse")

	resp, err := f.service.Calculate(ctx, token, api.CalculateRequest{Operand1: 2, Operand2: 3, Operation: permission.OpAdd})
	require.NoError(t, err)
	require.Equal(t, 5.0, resp.Result.Float64())
	require.Len(t, resp.History, 1)
	require.Equal(t, []string{permission.RoleAddSubtract}, resp.UserRoles)

	_, err = f.service.Calculate(ctx, token, api.CalculateRequest{Operand1: 2, Operand2: 3, Operation: permission.OpMultiply})
	se, ok := api.AsStatus(err)
	require.True(t, ok)
	require.True(t, se.Forbidden())
	require.Equal(t, []string{permission.RoleAddSubtract}, se.Roles)

	// The token still says ASrole; the service reads the directory.
	require.True(t, f.sb.Directory().AssignRole("mia", permission.RoleDivideMultiply))
	resp, err = f.service.Calculate(ctx, token, api.CalculateRequest{Operand1: 2, Operand2: 3, Operation: permission.OpMultiply})
	require.NoError(t, err)
	require.Equal(t, 6.0, resp.Result.Float64())
	require.Equal(t, []string{permission.RoleDivideMultiply}, resp.UserRoles)
}

func TestCalculateValidationOrder(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.sb.AddUser(UserSpec{Username: "ned", Password: "correct-horse", Groups: []string{permission.RoleDivideMultiply}})
	require.NoError(t, err)
	token := f.signIn(t, "ned", "correct-horse")

	_, err = f.service.Calculate(ctx, token, api.CalculateRequest{Operand1: 1, Operand2: 2, Operation: "modulo"})
	se, _ := api.AsStatus(err)
	require.Equal(t, http.StatusBadRequest, se.Status)
	require.Equal(t, "Unknown operation: modulo", se.Message)

	_, err = f.service.Calculate(ctx, token, api.CalculateRequest{Operand1: 1, Operand2: 0, Operation: permission.OpAdd})
	se, _ = api.AsStatus(err)
	require.Equal(t, http.StatusForbidden, se.Status)

	_, err = f.service.Calculate(ctx, token, api.CalculateRequest{Operand1: 1, Operand2: 0, Operation: permission.OpDivide})
	se, _ = api.AsStatus(err)
	require.Equal(t, http.StatusBadRequest, se.Status)
	require.Equal(t, "Division by zero", se.Message)

	require.Empty(t, f.sb.Directory().History("", 0))
}

func TestCalculateMissingField(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.sb.AddUser(UserSpec{Username: "ola", Password: "correct-horse", Groups: []string{permission.RoleAddSubtract}})
	require.NoError(t, err)
	token, err := f.sb.IssueToken("ola")
	require.NoError(t, err)

	srv := httptest.NewServer(f.sb.ServiceHandler())
	t.Cleanup(srv.Close)

	for body, want := range map[string]string{
		`{"operand2":1,"operation":"add"}`: "Missing field: 'operand1'",
		`{"operand1":1,"operand2":1}`:      "Missing field: 'operation'",
		`{not json`:                        "Invalid JSON body",
	} {
		req, err := http.NewRequest(http.MethodPost, srv.URL+"/calculate", strings.NewReader(body))
		require.NoError(t, err)
		req.Header.Set("Authorization", token)
		res, err := srv.Client().Do(req)
		require.NoError(t, err)
		var out serviceError
		require.NoError(t, decodeJSONBody(res, &out))
		require.Equal(t, http.StatusBadRequest, res.StatusCode)
		require.Equal(t, want, out.Error)
	}
}

func TestCalculateHistoryNewestFirstCapped(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.sb.AddUser(UserSpec{Username: "pia", Password: "correct-horse", Groups: []string{permission.RoleAddSubtract}})
	require.NoError(t, err)
	token := f.signIn(t, "pia", "correct-horse")

	var resp *api.CalculateResponse
	for i := 0; i < 12; i++ {
		resp, err = f.service.Calculate(ctx, token, api.CalculateRequest{Operand1: float64(i), Operand2: 1, Operation: permission.OpAdd})
		require.NoError(t, err)
	}
	require.Len(t, resp.History, calculationHistoryLimit)
	require.Equal(t, 11.0, resp.History[0].Operand1.Float64())
	require.Greater(t, resp.History[0].Timestamp, resp.History[1].Timestamp)
}

func TestServiceRejectsDisabledAndDeletedUsers(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.sb.AddUser(UserSpec{Username: "quinn", Password: "correct-horse", Groups: []string{permission.RoleAddSubtract}})
	require.NoError(t, err)
	token := f.signIn(t, "quinn", "correct-horse")

	f.sb.Directory().Update("quinn", func(u *User) { u.Enabled = false })
	_, err = f.service.Calculate(ctx, token, api.CalculateRequest{Operand1: 1, Operand2: 1, Operation: permission.OpAdd})
	se, ok := api.AsStatus(err)
	require.True(t, ok)
	require.True(t, se.Unauthorized())

	f.sb.Directory().Delete("quinn")
	_, err = f.service.ListRoles(ctx, token)
	se, _ = api.AsStatus(err)
	require.True(t, se.Unauthorized())

	_, err = f.service.ListRoles(ctx, "not-a-token")
	se, _ = api.AsStatus(err)
	require.True(t, se.Unauthorized())
}

func TestAdminRoutes(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.sb.AddUser(UserSpec{Username: "root", Password: "correct-horse", Email: "root@example.test", Groups: []string{permission.RoleAdmin}})
	require.NoError(t, err)
	_, err = f.sb.AddUser(UserSpec{Username: "rae", Password: "correct-horse", Email: "rae@example.test", Groups: []string{permission.RoleAddSubtract}})
	require.NoError(t, err)
	admin := f.signIn(t, "root", "correct-horse")
	user := f.signIn(t, "rae", "correct-horse")

	roles, err := f.service.ListRoles(ctx, user)
	require.NoError(t, err)
	require.Len(t, roles, 2)
	require.True(t, roles[0].IsDefault)

	_, err = f.service.ListUsers(ctx, user)
	se, _ := api.AsStatus(err)
	require.True(t, se.Forbidden())
	require.Equal(t, "Admin access required", se.Message)

	msg, err := f.service.CreateRole(ctx, admin, "Multiplier", []permission.Operation{permission.OpMultiply})
	require.NoError(t, err)
	require.Equal(t, "Role Multiplier created", msg)

	_, err = f.service.CreateRole(ctx, admin, "Bad", []permission.Operation{"modulo"})
	se, _ = api.AsStatus(err)
	require.Equal(t, http.StatusBadRequest, se.Status)

	msg, err = f.service.SetUserRole(ctx, admin, "rae", "Multiplier")
	require.NoError(t, err)
	require.Equal(t, "Role updated to Multiplier", msg)
	resp, err := f.service.Calculate(ctx, user, api.CalculateRequest{Operand1: 4, Operand2: 5, Operation: permission.OpMultiply})
	require.NoError(t, err)
	require.Equal(t, 20.0, resp.Result.Float64())

	_, err = f.service.SetUserRole(ctx, admin, "ghost", "Multiplier")
	se, _ = api.AsStatus(err)
	require.Equal(t, http.StatusNotFound, se.Status)
	_, err = f.service.SetUserRole(ctx, admin, "rae", "Nope")
	se, _ = api.AsStatus(err)
	require.Equal(t, http.StatusBadRequest, se.Status)

	users, err := f.service.ListUsers(ctx, admin)
	require.NoError(t, err)
	require.Len(t, users, 2)
	require.Equal(t, "rae", users[0].Username)
	require.Equal(t, "Multiplier", users[0].Role)
	require.Equal(t, StatusConfirmed, users[0].Status)

	history, err := f.service.ListHistory(ctx, admin)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.NotEmpty(t, history[0].UserID)

	msg, err = f.service.DeleteHistory(ctx, admin, history[0].UserID, history[0].Timestamp)
	require.NoError(t, err)
	require.Equal(t, "History entry deleted", msg)
	_, err = f.service.DeleteHistory(ctx, admin, history[0].UserID, history[0].Timestamp)
	se, _ = api.AsStatus(err)
	require.Equal(t, http.StatusNotFound, se.Status)

	_, err = f.service.DeleteRole(ctx, admin, permission.RoleAddSubtract)
	se, _ = api.AsStatus(err)
	require.Equal(t, "Cannot delete default roles", se.Message)
	msg, err = f.service.DeleteRole(ctx, admin, "Multiplier")
	require.NoError(t, err)
	require.Equal(t, "Role Multiplier deleted", msg)
	u, _ := f.sb.Directory().User("rae")
	require.Empty(t, u.Groups)

	msg, err = f.service.SetUserBlocked(ctx, admin, "rae", true)
	require.NoError(t, err)
	require.Equal(t, "User blocked", msg)
	_, err = f.service.ListRoles(ctx, user)
	se, _ = api.AsStatus(err)
	require.True(t, se.Unauthorized())
	msg, err = f.service.SetUserBlocked(ctx, admin, "rae", false)
	require.NoError(t, err)
	require.Equal(t, "User unblocked", msg)

	msg, err = f.service.DeleteUser(ctx, admin, "rae")
	require.NoError(t, err)
	require.Equal(t, "User deleted", msg)
	_, ok := f.sb.Directory().User("rae")
	require.False(t, ok)
}

func TestSecureHeadersApplied(t *testing.T) {
	f := newFixture(t, nil)
	srv := httptest.NewServer(f.sb.Handler())
	t.Cleanup(srv.Close)

	res, err := srv.Client().Post(srv.URL+"/idp", idp.ContentType, strings.NewReader("{}"))
	require.NoError(t, err)
	_ = res.Body.Close()
	require.Equal(t, "DENY", res.Header.Get("X-Frame-Options"))
	require.Equal(t, "nosniff", res.Header.Get("X-Content-Type-Options"))
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func decodeJSONBody(res *http.Response, v any) error {
	defer res.Body.Close()
	return json.NewDecoder(res.Body).Decode(v)
}
