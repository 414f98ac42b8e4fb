package rolecalc

import (
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/rolecalc/api"
	"github.com/MrEthical07/rolecalc/idp"
	"github.com/MrEthical07/rolecalc/internal/flows"
	"github.com/MrEthical07/rolecalc/jwt"
	"github.com/MrEthical07/rolecalc/permission"
	"github.com/MrEthical07/rolecalc/session"
	"golang.org/x/sync/singleflight"
)

// Engine is the client-side orchestrator: it drives the authentication flow,
// owns the live principal and its role policy, and gates every calculation and
// admin call.
//
// Engine methods are safe for concurrent use. The principal, catalog and
// policy live in one immutable session context that is swapped atomically;
// readers never observe a partially updated view.
type Engine struct {
	config   Config
	logger   *slog.Logger
	registry *permission.Registry
	builtins *permission.Catalog

	provider *idp.Client
	service  *api.Client
	store    session.Store
	flows    *flows.Service

	current atomic.Pointer[sessionContext]
	epoch   atomic.Uint64
	refresh singleflight.Group

	audit   *auditDispatcher
	metrics *Metrics

	closers []io.Closer
	closed  atomic.Bool
	now     func() time.Time
}

// sessionContext is the live principal with its catalog and derived policy.
// It is never modified after being published. id identifies the sign-in; it
// survives catalog and role updates and changes on every new principal.
type sessionContext struct {
	id        uint64
	principal Principal
	catalog   *permission.Catalog
	policy    permission.Policy
}

func (e *Engine) load() *sessionContext {
	if e == nil {
		return nil
	}
	return e.current.Load()
}

// newContext starts a session for principal, evaluated against catalog (the
// built-in catalog when nil).
func (e *Engine) newContext(principal Principal, catalog *permission.Catalog) *sessionContext {
	if catalog == nil {
		catalog = e.builtins
	}
	return &sessionContext{
		id:        e.epoch.Add(1),
		principal: principal,
		catalog:   catalog,
		policy:    permission.Evaluate(catalog, principal.Roles),
	}
}

// with returns a copy of sc for the same session with the policy re-derived.
func (sc *sessionContext) with(principal Principal, catalog *permission.Catalog) *sessionContext {
	return &sessionContext{
		id:        sc.id,
		principal: principal,
		catalog:   catalog,
		policy:    permission.Evaluate(catalog, principal.Roles),
	}
}

// replace publishes fn(cur) as long as the live context belongs to session id.
// It reports false once that session has ended.
func (e *Engine) replace(id uint64, fn func(cur *sessionContext) *sessionContext) bool {
	for {
		cur := e.current.Load()
		if cur == nil || cur.id != id {
			return false
		}
		if e.current.CompareAndSwap(cur, fn(cur)) {
			return true
		}
	}
}

// principalFromToken decodes token without verifying it. A malformed token
// yields a principal with no roles and DecodeErr set.
func (e *Engine) principalFromToken(identity, token string) Principal {
	p := Principal{Identity: identity, Token: token}
	claims, err := jwt.DecodeClaims(token)
	if err != nil {
		e.logger.Warn("token decode failed; principal has no roles", "identity", identity, "error", err)
		p.DecodeErr = err
		return p
	}
	p.Roles = claims.Roles()
	if p.Identity == "" {
		p.Identity = claims.Identity()
	}
	if claims.ExpiresAt != nil {
		p.ExpiresAt = claims.ExpiresAt.Time
	}
	return p
}

// Close stops the audit dispatcher and releases backends created by Build.
// The Engine rejects further calls with ErrEngineNotReady.
func (e *Engine) Close() {
	if e == nil || !e.closed.CompareAndSwap(false, true) {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
	for _, c := range e.closers {
		if err := c.Close(); err != nil {
			e.logger.Warn("closing backend failed", "error", err)
		}
	}
}

func (e *Engine) ready() error {
	if e == nil || !e.flows.Initialized() || e.closed.Load() {
		return ErrEngineNotReady
	}
	return nil
}

// AuditDropped returns the number of audit events dropped on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// AuditFailed returns the number of audit events lost to a panicking sink.
func (e *Engine) AuditFailed() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Failed()
}

// MetricsSnapshot returns a copy of every engine counter.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricObserve(id MetricID, d time.Duration) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Observe(id, d)
}
