package rolecalc

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// AdminSurface is the admin panel bound to the session that opened it. Every
// call is a direct authenticated request; the service makes the authorization
// decision. After logout or a new sign-in every method returns ErrAdminStale.
type AdminSurface struct {
	engine   *Engine
	id       uint64
	identity string
	overview atomic.Pointer[AdminOverview]
}

// Admin opens the admin surface for the live principal. Principals without
// AdminRole get a *PermissionDenied; this only hides the affordance, the
// service enforces the boundary.
func (e *Engine) Admin() (*AdminSurface, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	sc := e.load()
	if sc == nil {
		return nil, ErrNotAuthenticated
	}
	if !sc.policy.IsAdmin() {
		e.metricInc(MetricPermissionDeniedLocal)
		return nil, &PermissionDenied{Message: "admin access required"}
	}
	return &AdminSurface{engine: e, id: sc.id, identity: sc.principal.Identity}, nil
}

func (a *AdminSurface) bound() (*sessionContext, error) {
	if a == nil || a.engine == nil {
		return nil, ErrAdminStale
	}
	if err := a.engine.ready(); err != nil {
		return nil, err
	}
	sc := a.engine.load()
	if sc == nil || sc.id != a.id {
		a.overview.Store(nil)
		return nil, ErrAdminStale
	}
	return sc, nil
}

func (a *AdminSurface) do(ctx context.Context, action, target string, fn func(token string) error) error {
	sc, err := a.bound()
	if err != nil {
		return err
	}
	e := a.engine
	if err := fn(sc.principal.Token); err != nil {
		err = e.serviceError(ctx, sc, "", err)
		if canceled(ctx, err) {
			e.logger.Debug("admin action canceled", "action", action, "target", target)
			return err
		}
		e.metricInc(MetricAdminActionFailure)
		e.emitAudit(ctx, auditEventAdminAction, false, sc.principal.Identity, err, func() map[string]string {
			return map[string]string{"action": action, "target": target}
		})
		return err
	}
	e.metricInc(MetricAdminAction)
	if action != "list" {
		a.overview.Store(nil)
		e.emitAudit(ctx, auditEventAdminAction, true, sc.principal.Identity, nil, func() map[string]string {
			return map[string]string{"action": action, "target": target}
		})
	}
	return nil
}

func requireName(kind, v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", fmt.Errorf("%w: %s required", ErrInvalidInput, kind)
	}
	return v, nil
}

// ListUsers returns every user of the pool.
func (a *AdminSurface) ListUsers(ctx context.Context) ([]UserRecord, error) {
	var out []UserRecord
	err := a.do(ctx, "list", "users", func(token string) error {
		var err error
		out, err = a.engine.service.ListUsers(ctx, token)
		return err
	})
	return out, err
}

// SetUserRole replaces the user's role assignment with role.
func (a *AdminSurface) SetUserRole(ctx context.Context, username, role string) (string, error) {
	username, err := requireName("username", username)
	if err != nil {
		return "", err
	}
	role, err = requireName("role", role)
	if err != nil {
		return "", err
	}
	var msg string
	err = a.do(ctx, "set_role", username, func(token string) error {
		msg, err = a.engine.service.SetUserRole(ctx, token, username, role)
		return err
	})
	return msg, err
}

// SetUserBlocked disables (block=true) or re-enables a user.
func (a *AdminSurface) SetUserBlocked(ctx context.Context, username string, block bool) (string, error) {
	username, err := requireName("username", username)
	if err != nil {
		return "", err
	}
	var msg string
	action := "unblock"
	if block {
		action = "block"
	}
	err = a.do(ctx, action, username, func(token string) error {
		msg, err = a.engine.service.SetUserBlocked(ctx, token, username, block)
		return err
	})
	return msg, err
}

func (a *AdminSurface) DeleteUser(ctx context.Context, username string) (string, error) {
	username, err := requireName("username", username)
	if err != nil {
		return "", err
	}
	var msg string
	err = a.do(ctx, "delete_user", username, func(token string) error {
		msg, err = a.engine.service.DeleteUser(ctx, token, username)
		return err
	})
	return msg, err
}

// ListRoles returns default roles followed by custom ones, as stored by the
// service. It does not change the engine's catalog; use Engine.RefreshRoles.
func (a *AdminSurface) ListRoles(ctx context.Context) ([]RoleRecord, error) {
	var out []RoleRecord
	err := a.do(ctx, "list", "roles", func(token string) error {
		var err error
		out, err = a.engine.service.ListRoles(ctx, token)
		return err
	})
	return out, err
}

// CreateRole stores a custom role granting perms.
func (a *AdminSurface) CreateRole(ctx context.Context, name string, perms []Operation) (string, error) {
	name, err := requireName("role name", name)
	if err != nil {
		return "", err
	}
	if len(perms) == 0 {
		return "", fmt.Errorf("%w: at least one permission required", ErrInvalidInput)
	}
	for _, op := range perms {
		if !op.Valid() {
			return "", fmt.Errorf("%w: unknown operation %q", ErrInvalidInput, string(op))
		}
	}
	var msg string
	err = a.do(ctx, "create_role", name, func(token string) error {
		msg, err = a.engine.service.CreateRole(ctx, token, name, perms)
		return err
	})
	return msg, err
}

// DeleteRole removes a custom role. Principals that already loaded it keep it
// until their next catalog refresh.
func (a *AdminSurface) DeleteRole(ctx context.Context, name string) (string, error) {
	name, err := requireName("role name", name)
	if err != nil {
		return "", err
	}
	var msg string
	err = a.do(ctx, "delete_role", name, func(token string) error {
		msg, err = a.engine.service.DeleteRole(ctx, token, name)
		return err
	})
	return msg, err
}

// ListHistory returns the global calculation history, newest first.
func (a *AdminSurface) ListHistory(ctx context.Context) ([]HistoryEntry, error) {
	var out []HistoryEntry
	err := a.do(ctx, "list", "history", func(token string) error {
		var err error
		out, err = a.engine.service.ListHistory(ctx, token)
		return err
	})
	return out, err
}

// DeleteHistory removes one history entry, keyed by owner and timestamp.
func (a *AdminSurface) DeleteHistory(ctx context.Context, userID, timestamp string) (string, error) {
	userID, err := requireName("user id", userID)
	if err != nil {
		return "", err
	}
	timestamp, err = requireName("timestamp", timestamp)
	if err != nil {
		return "", err
	}
	var msg string
	err = a.do(ctx, "delete_history", userID+"@"+timestamp, func(token string) error {
		msg, err = a.engine.service.DeleteHistory(ctx, token, userID, timestamp)
		return err
	})
	return msg, err
}

// Overview loads users, roles and history concurrently. The first failure
// cancels the others. The result is cached until the next mutation or until
// the surface goes stale.
func (a *AdminSurface) Overview(ctx context.Context) (*AdminOverview, error) {
	if _, err := a.bound(); err != nil {
		return nil, err
	}

	var out AdminOverview
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		users, err := a.ListUsers(gctx)
		out.Users = users
		return err
	})
	g.Go(func() error {
		roles, err := a.ListRoles(gctx)
		out.Roles = roles
		return err
	})
	g.Go(func() error {
		history, err := a.ListHistory(gctx)
		out.History = history
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if _, err := a.bound(); err != nil {
		return nil, err
	}
	a.overview.Store(&out)
	a.engine.logger.Debug("admin overview loaded", "users", len(out.Users), "roles", len(out.Roles), "history", len(out.History))
	return &out, nil
}

// Cached returns the last Overview, or nil when none is cached or the
// surface is stale.
func (a *AdminSurface) Cached() *AdminOverview {
	if _, err := a.bound(); err != nil {
		return nil
	}
	return a.overview.Load()
}

// Identity is the admin the surface was opened for.
func (a *AdminSurface) Identity() string {
	if a == nil {
		return ""
	}
	return a.identity
}
