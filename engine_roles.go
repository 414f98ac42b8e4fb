package rolecalc

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"strings"

	"github.com/MrEthical07/rolecalc/api"
	"github.com/MrEthical07/rolecalc/permission"
)

// RefreshRoles loads the custom role definitions from the admin service and
// merges them over the built-in roles; on a name collision the service's
// definition wins. The principal's policy is re-derived against the new
// catalog. Concurrent calls for the same session share one request.
func (e *Engine) RefreshRoles(ctx context.Context) ([]RoleDefinition, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	sc := e.load()
	if sc == nil {
		return nil, ErrNotAuthenticated
	}

	// The shared request outlives any single caller's cancellation.
	shared := context.WithoutCancel(ctx)
	ch := e.refresh.DoChan(strconv.FormatUint(sc.id, 10), func() (any, error) {
		ctx := shared
		records, err := e.service.ListRoles(ctx, sc.principal.Token)
		if err != nil {
			e.metricInc(MetricRoleCatalogRefreshFailure)
			return nil, e.serviceError(ctx, sc, "", err)
		}

		catalog := e.builtins.Merge(roleDefinitions(records))
		if !e.replace(sc.id, func(cur *sessionContext) *sessionContext {
			return cur.with(cur.principal, catalog)
		}) {
			return nil, ErrNotAuthenticated
		}

		e.metricInc(MetricRoleCatalogRefresh)
		e.emitAudit(ctx, auditEventRoleCatalogRefreshed, true, sc.principal.Identity, nil, func() map[string]string {
			return map[string]string{"roles": strconv.Itoa(catalog.Len())}
		})
		e.logger.Debug("role catalog refreshed", "identity", sc.principal.Identity, "roles", catalog.Len())
		return catalog.Roles(), nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]RoleDefinition), nil
	}
}

func roleDefinitions(records []api.RoleRecord) []permission.RoleDefinition {
	defs := make([]permission.RoleDefinition, 0, len(records))
	for _, r := range records {
		perms := make([]permission.Operation, 0, len(r.Permissions))
		for _, op := range r.Permissions {
			if op.Valid() {
				perms = append(perms, op)
			}
		}
		defs = append(defs, permission.RoleDefinition{
			Name:        r.RoleName,
			Permissions: perms,
			Builtin:     r.IsDefault,
		})
	}
	return defs
}

// applyServerRoles replaces the principal's roles with the list the service
// reported. The token is unchanged.
func (e *Engine) applyServerRoles(ctx context.Context, sc *sessionContext, roles []string) {
	if sameRoles(sc.principal.Roles, roles) {
		return
	}
	updated := e.replace(sc.id, func(cur *sessionContext) *sessionContext {
		p := cur.principal
		p.Roles = append([]string(nil), roles...)
		return cur.with(p, cur.catalog)
	})
	if !updated {
		return
	}
	e.emitAudit(ctx, auditEventRolesUpdated, true, sc.principal.Identity, nil, func() map[string]string {
		return map[string]string{"roles": strings.Join(roles, ",")}
	})
	e.logger.Info("principal roles updated from service", "identity", sc.principal.Identity, "roles", roles)
}

func sameRoles(a, b []string) bool {
	x := append([]string(nil), a...)
	y := append([]string(nil), b...)
	slices.Sort(x)
	slices.Sort(y)
	return slices.Equal(slices.Compact(x), slices.Compact(y))
}

// serviceError classifies a failed service call made for sc. A 401 ends the
// session; a 403 becomes a remote PermissionDenied and applies any role list
// the service sent back.
func (e *Engine) serviceError(ctx context.Context, sc *sessionContext, op Operation, err error) error {
	if se, ok := api.AsStatus(err); ok {
		switch {
		case se.Unauthorized():
			return e.clearSession(ctx, sc, err)
		case se.Forbidden():
			e.metricInc(MetricPermissionDeniedRemote)
			if len(se.Roles) > 0 {
				e.applyServerRoles(ctx, sc, se.Roles)
			}
			e.emitAudit(ctx, auditEventPermissionDenied, false, sc.principal.Identity, ErrPermissionDenied, func() map[string]string {
				return map[string]string{"operation": string(op), "source": "remote"}
			})
			return &PermissionDenied{Operation: op, Remote: true, Message: se.Message}
		}
		return err
	}
	if errors.Is(err, ErrNetwork) && !canceled(ctx, err) {
		e.metricInc(MetricNetworkFailure)
	}
	return err
}

// canceled reports whether err comes from the caller giving up rather than
// from the service or the network.
func canceled(ctx context.Context, err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled)
}

// Catalog returns the role catalog of the live session, or the built-in roles
// when nobody is signed in.
func (e *Engine) Catalog() []RoleDefinition {
	if e == nil {
		return nil
	}
	if sc := e.load(); sc != nil {
		return sc.catalog.Roles()
	}
	return e.builtins.Roles()
}

// Permissions returns the operations the live principal may perform.
func (e *Engine) Permissions() []Operation {
	sc := e.load()
	if sc == nil {
		return nil
	}
	return sc.policy.Permissions()
}

// CanPerform reports whether the live principal may perform op. It is false
// when nobody is signed in. The answer is advisory; the service re-checks.
func (e *Engine) CanPerform(op Operation) bool {
	sc := e.load()
	if sc == nil {
		return false
	}
	return sc.policy.CanPerform(op)
}

// IsAdmin reports whether the live principal holds AdminRole.
func (e *Engine) IsAdmin() bool {
	sc := e.load()
	if sc == nil {
		return false
	}
	return sc.policy.IsAdmin()
}
