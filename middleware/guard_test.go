package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MrEthical07/rolecalc/jwt"
)

func newTestIssuer(t *testing.T) *jwt.Issuer {
	t.Helper()
	iss, err := jwt.NewIssuer(jwt.IssuerConfig{
		TTL:           time.Minute,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
	})
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	return iss
}

func TestGuardAcceptsRawAndBearerTokens(t *testing.T) {
	iss := newTestIssuer(t)
	token, err := iss.Issue(jwt.IssueInput{Username: "alice", Groups: []string{"ASrole"}})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	var seen string
	h := Guard(iss)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, ok := ClaimsFromContext(r.Context())
		if !ok {
			t.Fatal("expected claims in context")
		}
		seen = c.Identity()
		w.WriteHeader(http.StatusNoContent)
	}))

	for _, header := range []string{token, "Bearer " + token, "bearer " + token} {
		seen = ""
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", header)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("header %q: expected 204, got %d", header[:6], rec.Code)
		}
		if seen != "alice" {
			t.Fatalf("expected identity alice, got %q", seen)
		}
	}
}

func TestGuardRejectsMissingAndForgedTokens(t *testing.T) {
	iss := newTestIssuer(t)
	other, err := jwt.NewIssuer(jwt.IssuerConfig{
		TTL:           time.Minute,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte("ffffffffffffffffffffffffffffffff"),
	})
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	forged, _ := other.Issue(jwt.IssueInput{Username: "mallory", Groups: []string{"AdminRole"}})

	h := Guard(iss)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	for _, header := range []string{"", "Bearer ", forged, "not-a-token"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	}
}

func TestRequireGroup(t *testing.T) {
	iss := newTestIssuer(t)
	admin, _ := iss.Issue(jwt.IssueInput{Username: "root", Groups: []string{"AdminRole"}, SingleGroupAsScalar: true})
	user, _ := iss.Issue(jwt.IssueInput{Username: "bob", Groups: []string{"ASrole", "DMrole"}})

	h := Guard(iss)(RequireGroup("AdminRole", "Admin access required")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{name: "admin scalar group", token: admin, want: http.StatusOK},
		{name: "non admin", token: user, want: http.StatusForbidden},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", tc.token)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rec.Code)
			}
		})
	}
}
