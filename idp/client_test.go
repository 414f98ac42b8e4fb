package idp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/rolecalc/internal/transport"
)

type recorded struct {
	target string
	ct     string
	body   map[string]any
}

func fakeProvider(t *testing.T, handler func(target string, body map[string]any) (int, any)) (*Client, *[]recorded) {
	t.Helper()
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		target := r.Header.Get(HeaderTarget)
		calls = append(calls, recorded{target: target, ct: r.Header.Get("Content-Type"), body: body})
		status, out := handler(target, body)
		w.Header().Set("Content-Type", ContentType)
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(out)
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{Endpoint: srv.URL + "/", ClientID: "client-1"}, transport.New(srv.Client(), nil))
	require.NoError(t, err)
	return c, &calls
}

func TestSignInDirectSuccess(t *testing.T) {
	c, calls := fakeProvider(t, func(string, map[string]any) (int, any) {
		return http.StatusOK, AuthResponse{AuthenticationResult: &AuthenticationResult{IdToken: "id.tok.en", AccessToken: "acc", ExpiresIn: 3600}}
	})

	out, err := c.SignIn(context.Background(), "alice", "Password1!")
	require.NoError(t, err)
	auth, ok := out.(Authenticated)
	require.True(t, ok)
	require.Equal(t, "id.tok.en", auth.IDToken)

	require.Len(t, *calls, 1)
	call := (*calls)[0]
	require.Equal(t, TargetInitiateAuth, call.target)
	require.Equal(t, ContentType, call.ct)
	require.Equal(t, FlowUserPassword, call.body["AuthFlow"])
	require.Equal(t, "client-1", call.body["ClientId"])
	params := call.body["AuthParameters"].(map[string]any)
	require.Equal(t, "alice", params[ParamUsername])
}

func TestSignInChallengeThenMFA(t *testing.T) {
	c, calls := fakeProvider(t, func(target string, body map[string]any) (int, any) {
		if target == TargetInitiateAuth {
			return http.StatusOK, AuthResponse{ChallengeName: "SMS_MFA", Session: "handle-1"}
		}
		responses := body["ChallengeResponses"].(map[string]any)
		if responses[ParamSMSCode] != "123456" {
			return http.StatusBadRequest, ErrorResponse{Type: CodeCodeMismatch, Message: "Invalid code or auth state for the user."}
		}
		return http.StatusOK, AuthResponse{AuthenticationResult: &AuthenticationResult{IdToken: "a.b.c"}}
	})

	out, err := c.SignIn(context.Background(), "alice", "Password1!")
	require.NoError(t, err)
	ch, ok := out.(ChallengeRequired)
	require.True(t, ok)
	require.Equal(t, ChallengeSMSMFA, ch.Kind)
	require.Equal(t, "handle-1", ch.Session)
	require.Equal(t, "alice", ch.Identity)

	_, err = c.RespondToMFA(context.Background(), "alice", "000000", ch.Session, ch.Kind)
	var ae *AuthError
	require.True(t, errors.As(err, &ae))
	require.Equal(t, "Invalid code or auth state for the user.", err.Error())
	require.True(t, IsCode(err, CodeCodeMismatch))

	out, err = c.RespondToMFA(context.Background(), "alice", "123456", ch.Session, ch.Kind)
	require.NoError(t, err)
	require.IsType(t, Authenticated{}, out)

	last := (*calls)[len(*calls)-1]
	require.Equal(t, TargetRespondToAuthChallenge, last.target)
	require.Equal(t, "SMS_MFA", last.body["ChallengeName"])
	require.Equal(t, "handle-1", last.body["Session"])
}

func TestRespondToMFARejectsNonMFAKind(t *testing.T) {
	c, calls := fakeProvider(t, func(string, map[string]any) (int, any) { return http.StatusOK, AuthResponse{} })
	_, err := c.RespondToMFA(context.Background(), "alice", "1", "s", ChallengePhoneCustom)
	require.ErrorIs(t, err, ErrInvalidInput)
	require.Empty(t, *calls)
}

func TestUnsupportedChallenge(t *testing.T) {
	c, _ := fakeProvider(t, func(string, map[string]any) (int, any) {
		return http.StatusOK, AuthResponse{ChallengeName: "NEW_PASSWORD_REQUIRED", Session: "s"}
	})
	_, err := c.SignIn(context.Background(), "alice", "pw")
	require.True(t, IsCode(err, CodeUnsupportedChallenge))
}

func TestRegisterSendsAttributes(t *testing.T) {
	c, calls := fakeProvider(t, func(string, map[string]any) (int, any) {
		return http.StatusOK, SignUpResponse{UserSub: "sub-1", CodeDeliveryDetails: &CodeDeliveryDetails{DeliveryMedium: "SMS", Destination: "+*******4524"}}
	})

	ticket, err := c.Register(context.Background(), RegisterInput{
		Identity: "bob",
		Contact:  "+919894954524",
		Password: "Password1!",
		Role:     "DMrole",
	})
	require.NoError(t, err)
	require.Equal(t, "sub-1", ticket.UserSub)
	require.False(t, ticket.Confirmed)
	require.Equal(t, "SMS", ticket.Delivery.DeliveryMedium)

	attrs := (*calls)[0].body["UserAttributes"].([]any)
	require.Len(t, attrs, 2)
	require.Equal(t, AttrPhone, attrs[0].(map[string]any)["Name"])
	require.Equal(t, AttrCustomRole, attrs[1].(map[string]any)["Name"])
	require.Equal(t, "DMrole", attrs[1].(map[string]any)["Value"])
}

func TestRegisterValidation(t *testing.T) {
	c, calls := fakeProvider(t, func(string, map[string]any) (int, any) { return http.StatusOK, SignUpResponse{} })

	cases := []RegisterInput{
		{Identity: "", Contact: "a@b.co", Password: "Password1!"},
		{Identity: "bob", Contact: "not-a-contact", Password: "Password1!"},
		{Identity: "bob", Contact: "a@b.co", Password: "short"},
		{Identity: "bob", Contact: "a@b.co", Password: "Password1!", Role: "bad role"},
	}
	for i, in := range cases {
		_, err := c.Register(context.Background(), in)
		require.ErrorIs(t, err, ErrInvalidInput, "case %d", i)
	}
	require.Empty(t, *calls)
}

func TestRegisterProviderMessageVerbatim(t *testing.T) {
	c, _ := fakeProvider(t, func(string, map[string]any) (int, any) {
		return http.StatusBadRequest, ErrorResponse{Type: "com.amazonaws#" + CodeUsernameExists, Message: "User already exists"}
	})
	_, err := c.Register(context.Background(), RegisterInput{Identity: "bob", Contact: "bob@example.com", Password: "Password1!"})
	require.EqualError(t, err, "User already exists")
	require.True(t, IsCode(err, CodeUsernameExists))
}

func TestFallbackReasonWhenMessageMissing(t *testing.T) {
	c, _ := fakeProvider(t, func(string, map[string]any) (int, any) {
		return http.StatusBadRequest, map[string]string{}
	})
	err := c.ConfirmRegistration(context.Background(), "bob", "123")
	require.EqualError(t, err, "Confirmation failed")
}

func TestPhoneOTPFlow(t *testing.T) {
	c, calls := fakeProvider(t, func(target string, body map[string]any) (int, any) {
		if target == TargetInitiateAuth {
			return http.StatusOK, AuthResponse{ChallengeName: "CUSTOM_CHALLENGE", Session: "otp-1", ChallengeParameters: map[string]string{"phone": "4524"}}
		}
		return http.StatusOK, AuthResponse{AuthenticationResult: &AuthenticationResult{IdToken: "x.y.z"}}
	})

	ch, err := c.RequestPhoneOTP(context.Background(), "+91 98-949 54524")
	require.NoError(t, err)
	require.Equal(t, "phone_919894954524", ch.Identity)
	require.Equal(t, "otp-1", ch.Session)

	first := (*calls)[0]
	require.Equal(t, FlowCustom, first.body["AuthFlow"])

	out, err := c.RespondToPhoneOTP(context.Background(), ch.Identity, "654321", ch.Session)
	require.NoError(t, err)
	require.IsType(t, Authenticated{}, out)

	responses := (*calls)[1].body["ChallengeResponses"].(map[string]any)
	require.Equal(t, "654321", responses[ParamAnswer])
	require.Equal(t, "phone_919894954524", responses[ParamUsername])
}

func TestDerivePhoneIdentity(t *testing.T) {
	a := DerivePhoneIdentity(DefaultPhoneIdentityPrefix, "+91 98-949 54524")
	b := DerivePhoneIdentity(DefaultPhoneIdentityPrefix, "919894954524")
	require.Equal(t, a, b)
	require.Equal(t, "phone_919894954524", a)
	require.Equal(t, "", DerivePhoneIdentity(DefaultPhoneIdentityPrefix, "+-() "))
}

func TestNetworkFailureIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	c, err := NewClient(Config{Endpoint: url, ClientID: "c"}, nil)
	require.NoError(t, err)
	_, err = c.SignIn(context.Background(), "alice", "pw")
	require.ErrorIs(t, err, transport.ErrNetwork)
}
