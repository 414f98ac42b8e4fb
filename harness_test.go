package rolecalc

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/rolecalc/idp"
	"github.com/MrEthical07/rolecalc/password"
	"github.com/MrEthical07/rolecalc/sandbox"
)

const harnessPassword = "correct-horse"

// harness is a sandbox provider and service on an httptest server plus an
// engine pointed at it.
type harness struct {
	t      testing.TB
	sb     *sandbox.Sandbox
	srv    *httptest.Server
	codes  *codeRecorder
	engine *Engine
}

type harnessOptions struct {
	config  func(*Config)
	sandbox func(*sandbox.Config)
	doer    func(base HTTPDoer) HTTPDoer
	store   SessionStore
	redis   redis.UniversalClient
	sink    AuditSink
	logger  *slog.Logger
}

type codeRecorder struct {
	mu     sync.Mutex
	events []sandbox.CodeEvent
}

func (r *codeRecorder) record(ev sandbox.CodeEvent) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *codeRecorder) last(t *testing.T, kind string) string {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Kind == kind {
			return r.events[i].Code
		}
	}
	t.Fatalf("no %s code issued", kind)
	return ""
}

func newHarness(t testing.TB, opts harnessOptions) *harness {
	t.Helper()
	codes := &codeRecorder{}
	sbCfg := sandbox.Config{
		ClientID: "rolecalc-test",
		Password: password.Config{
			Memory:      8 * 1024,
			Time:        1,
			Parallelism: 1,
			SaltLength:  16,
			KeyLength:   16,
		},
		OnCode: codes.record,
	}
	if opts.sandbox != nil {
		opts.sandbox(&sbCfg)
	}
	sb, err := sandbox.New(sbCfg)
	require.NoError(t, err)

	srv := httptest.NewServer(sb.Handler())
	t.Cleanup(srv.Close)

	h := &harness{t: t, sb: sb, srv: srv, codes: codes}
	h.engine = h.newEngine(opts)
	return h
}

// newEngine builds another engine against the same sandbox.
func (h *harness) newEngine(opts harnessOptions) *Engine {
	h.t.Helper()
	cfg := DefaultConfig()
	cfg.Provider.Endpoint = h.srv.URL + "/idp"
	cfg.Provider.ClientID = "rolecalc-test"
	cfg.API.Endpoint = h.srv.URL + "/api/"
	cfg.Metrics.Enabled = true
	if opts.config != nil {
		opts.config(&cfg)
	}

	var doer HTTPDoer = h.srv.Client()
	if opts.doer != nil {
		doer = opts.doer(doer)
	}
	b := New().WithConfig(cfg).WithHTTPClient(doer)
	if opts.store != nil {
		b = b.WithSessionStore(opts.store)
	}
	if opts.redis != nil {
		b = b.WithRedis(opts.redis)
	}
	if opts.sink != nil {
		b = b.WithAuditSink(opts.sink)
	}
	if opts.logger != nil {
		b = b.WithLogger(opts.logger)
	}
	engine, err := b.Build()
	require.NoError(h.t, err)
	h.t.Cleanup(engine.Close)
	return engine
}

func (h *harness) addUser(spec sandbox.UserSpec) sandbox.User {
	h.t.Helper()
	if spec.Password == "" {
		spec.Password = harnessPassword
	}
	u, err := h.sb.AddUser(spec)
	require.NoError(h.t, err)
	return u
}

// signIn adds a user holding groups and signs the engine in as it.
func (h *harness) signIn(username string, groups ...string) {
	h.t.Helper()
	h.addUser(sandbox.UserSpec{Username: username, Email: username + "@example.test", Groups: groups})
	st, err := h.engine.SignIn(context.Background(), username, harnessPassword)
	require.NoError(h.t, err)
	require.Equal(h.t, StepAuthenticated, st.Step)
}

// otherCode returns a well-formed code that differs from code.
func otherCode(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}

// switchDoer fails every request under the service path with a transport
// error while offline is set.
type switchDoer struct {
	base    HTTPDoer
	offline atomic.Bool
	calls   atomic.Int64
}

func (d *switchDoer) Do(req *http.Request) (*http.Response, error) {
	if strings.Contains(req.URL.Path, "/api/") {
		d.calls.Add(1)
		if d.offline.Load() {
			return nil, errors.New("dial tcp: connection refused")
		}
	}
	return d.base.Do(req)
}

// gateDoer holds provider requests for one target until released.
type gateDoer struct {
	base    HTTPDoer
	target  string
	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func newGateDoer(base HTTPDoer, target string) *gateDoer {
	return &gateDoer{
		base:    base,
		target:  target,
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
}

func (d *gateDoer) Do(req *http.Request) (*http.Response, error) {
	if d.armed.Load() && req.Header.Get(idp.HeaderTarget) == d.target {
		d.entered <- struct{}{}
		<-d.release
	}
	return d.base.Do(req)
}
