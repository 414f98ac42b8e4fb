package rolecalc

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/rolecalc/internal/flows"
	"github.com/MrEthical07/rolecalc/session"
)

func (e *Engine) persist(ctx context.Context, p Principal) error {
	if e.store == nil {
		return nil
	}
	rec := &session.Record{
		Identity: p.Identity,
		Token:    p.Token,
		SavedAt:  e.now().Unix(),
	}
	if !p.ExpiresAt.IsZero() {
		rec.ExpiresAt = p.ExpiresAt.Unix()
	}
	return e.store.Save(ctx, e.config.Session.Key, rec)
}

// Restore loads the persisted principal, if any. The stored token is of
// unknown freshness: roles are re-derived from it, and the first request the
// service rejects for authentication clears it again.
//
// Restore is a no-op returning the live principal when one already exists.
// It reports false with a nil error when nothing is stored.
func (e *Engine) Restore(ctx context.Context) (Principal, bool, error) {
	if err := e.ready(); err != nil {
		return Principal{}, false, err
	}
	if sc := e.load(); sc != nil {
		return sc.principal, true, nil
	}
	if e.store == nil || e.flows.State().Step != flows.StepAnonymous {
		return Principal{}, false, nil
	}

	rec, err := e.store.Load(ctx, e.config.Session.Key)
	if errors.Is(err, session.ErrNotFound) {
		return Principal{}, false, nil
	}
	if errors.Is(err, session.ErrCorrupt) {
		e.logger.Warn("stored session corrupt; discarded", "error", err)
		return Principal{}, false, nil
	}
	if err != nil {
		return Principal{}, false, fmt.Errorf("loading session: %w", err)
	}
	if rec.Token == "" {
		if err := e.store.Delete(ctx, e.config.Session.Key); err != nil {
			e.logger.Warn("deleting empty stored session failed", "error", err)
		}
		return Principal{}, false, nil
	}

	principal := e.principalFromToken(rec.Identity, rec.Token)
	sc := e.newContext(principal, nil)
	if !e.current.CompareAndSwap(nil, sc) {
		// A sign-in finished first; it wins.
		cur := e.load()
		if cur == nil {
			return Principal{}, false, nil
		}
		return cur.principal, true, nil
	}
	if _, ok := e.flows.Restore(principal.Identity, principal.Token); !ok {
		// A sign-in or registration is in progress; it keeps its handle.
		e.current.CompareAndSwap(sc, nil)
		e.logger.Debug("session restore skipped; flow in progress", "identity", principal.Identity)
		return Principal{}, false, nil
	}

	e.metricInc(MetricSessionRestored)
	e.emitAudit(ctx, auditEventSessionRestored, true, principal.Identity, principal.DecodeErr, nil)
	e.logger.Info("session restored", "identity", principal.Identity, "roles", len(principal.Roles))

	if e.config.API.LoadRolesOnAuth && principal.DecodeErr == nil {
		if _, err := e.RefreshRoles(ctx); err != nil {
			if errors.Is(err, ErrSessionExpired) {
				return Principal{}, false, err
			}
			e.logger.Info("role catalog not loaded; using built-in roles", "identity", principal.Identity, "error", err)
		}
	}

	sc = e.load()
	if sc == nil {
		return Principal{}, false, nil
	}
	return sc.principal, true, nil
}

// Principal returns the live principal.
func (e *Engine) Principal() (Principal, bool) {
	sc := e.load()
	if sc == nil {
		return Principal{}, false
	}
	return sc.principal, true
}

// Logout clears the principal, its roles and catalog, the flow state and the
// persisted record in one step. Admin surfaces obtained earlier become stale.
func (e *Engine) Logout(ctx context.Context) error {
	if err := e.ready(); err != nil {
		return err
	}
	prev := e.reset()
	identity := ""
	if prev != nil {
		identity = prev.principal.Identity
	}

	var err error
	if e.store != nil {
		if derr := e.store.Delete(ctx, e.config.Session.Key); derr != nil {
			err = fmt.Errorf("deleting stored session: %w", derr)
		}
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, err == nil, identity, err, nil)
	return err
}

// clearSession ends sc's session after the service rejected its token. It
// only acts if that session is still live.
func (e *Engine) clearSession(ctx context.Context, sc *sessionContext, cause error) error {
	expired := fmt.Errorf("%w: %w", ErrSessionExpired, cause)
	if !e.replace(sc.id, func(*sessionContext) *sessionContext { return nil }) {
		return expired
	}
	e.flows.Reset()
	if e.store != nil {
		if err := e.store.Delete(ctx, e.config.Session.Key); err != nil {
			e.logger.Warn("deleting stored session failed", "error", err)
		}
	}
	e.metricInc(MetricSessionCleared)
	e.emitAudit(ctx, auditEventSessionCleared, true, sc.principal.Identity, cause, nil)
	e.logger.Info("session cleared after rejected token", "identity", sc.principal.Identity)
	return expired
}

func (e *Engine) reset() *sessionContext {
	prev := e.current.Swap(nil)
	e.flows.Reset()
	return prev
}
